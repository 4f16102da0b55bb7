package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatepass/backend/internal/models"
)

// Repository handles user and event-admin persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, email, password_hash, full_name, role, created_at, updated_at
		FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, email, password_hash, full_name, role, created_at, updated_at
		FROM users WHERE email = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, email).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, full_name, role, created_at, updated_at`
	var u models.User
	err := r.pool.QueryRow(ctx, q, email, passwordHash, fullName, string(role)).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AddEventAdmin pairs a user with an event, granting confirm/scan authority.
// Re-granting is a no-op.
func (r *Repository) AddEventAdmin(ctx context.Context, eventID, userID uuid.UUID) (*models.EventAdmin, error) {
	const q = `INSERT INTO event_admins (event_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (event_id, user_id) DO UPDATE SET event_id = EXCLUDED.event_id
		RETURNING id, event_id, user_id, created_at`
	var ea models.EventAdmin
	err := r.pool.QueryRow(ctx, q, eventID, userID).
		Scan(&ea.ID, &ea.EventID, &ea.UserID, &ea.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ea, nil
}

// IsEventAdmin reports whether an event_admins row pairs userID with eventID.
func (r *Repository) IsEventAdmin(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM event_admins WHERE user_id = $1 AND event_id = $2)`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, userID, eventID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// GetRole returns the role of a user.
func (r *Repository) GetRole(ctx context.Context, userID uuid.UUID) (models.Role, error) {
	const q = `SELECT role FROM users WHERE id = $1`
	var role models.Role
	err := r.pool.QueryRow(ctx, q, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrUserNotFound
		}
		return "", err
	}
	return role, nil
}
