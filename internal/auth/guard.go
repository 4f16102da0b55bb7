package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/gatepass/backend/internal/models"
)

// AdminStore is the subset of the repository the guard needs.
type AdminStore interface {
	GetRole(ctx context.Context, userID uuid.UUID) (models.Role, error)
	IsEventAdmin(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
}

// Guard decides whether a staff identity may confirm bookings or scan
// tickets for a given event. Pure lookup, called on every confirm/scan.
type Guard struct {
	store AdminStore
}

// NewGuard creates an authorization guard.
func NewGuard(store AdminStore) *Guard {
	return &Guard{store: store}
}

// IsAuthorized returns true if the user is a super-admin or is paired with
// the event through event_admins.
func (g *Guard) IsAuthorized(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	role, err := g.store.GetRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if role == models.RoleAdmin {
		return true, nil
	}
	return g.store.IsEventAdmin(ctx, userID, eventID)
}
