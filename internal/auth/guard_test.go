package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatepass/backend/internal/models"
)

type fakeAdminStore struct {
	roles  map[uuid.UUID]models.Role
	grants map[uuid.UUID]uuid.UUID // userID -> eventID
}

func (f *fakeAdminStore) GetRole(_ context.Context, userID uuid.UUID) (models.Role, error) {
	role, ok := f.roles[userID]
	if !ok {
		return "", models.ErrUserNotFound
	}
	return role, nil
}

func (f *fakeAdminStore) IsEventAdmin(_ context.Context, userID, eventID uuid.UUID) (bool, error) {
	return f.grants[userID] == eventID, nil
}

func TestGuardIsAuthorized(t *testing.T) {
	admin := uuid.New()
	staff := uuid.New()
	attendee := uuid.New()
	eventA := uuid.New()
	eventB := uuid.New()

	guard := NewGuard(&fakeAdminStore{
		roles: map[uuid.UUID]models.Role{
			admin:    models.RoleAdmin,
			staff:    models.RoleStaff,
			attendee: models.RoleAttendee,
		},
		grants: map[uuid.UUID]uuid.UUID{staff: eventA},
	})

	t.Run("super admin passes for any event", func(t *testing.T) {
		for _, event := range []uuid.UUID{eventA, eventB} {
			ok, err := guard.IsAuthorized(context.Background(), admin, event)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("staff passes only for granted event", func(t *testing.T) {
		ok, err := guard.IsAuthorized(context.Background(), staff, eventA)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = guard.IsAuthorized(context.Background(), staff, eventB)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("attendee never passes", func(t *testing.T) {
		ok, err := guard.IsAuthorized(context.Background(), attendee, eventA)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown user errors", func(t *testing.T) {
		_, err := guard.IsAuthorized(context.Background(), uuid.New(), eventA)
		assert.ErrorIs(t, err, models.ErrUserNotFound)
	})
}
