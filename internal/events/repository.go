package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/models"
)

// CapacityError reports a reservation that would oversell the event.
// Remaining is a best-effort snapshot taken after the rejected attempt.
type CapacityError struct {
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded: %d tickets remaining", e.Remaining)
}

const eventColumns = `id, name, COALESCE(description,''), COALESCE(venue,''), starts_at,
	capacity, price_cents, reserved_count, is_published, created_by, created_at, updated_at`

// Repository handles event persistence and is the capacity ledger: the
// reserved_count column is only ever moved through Reserve and Release
// (and the failure-path release inside the bookings repository), all of
// which are single conditional statements.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Venue, &e.StartsAt,
		&e.Capacity, &e.PriceCents, &e.ReservedCount, &e.IsPublished, &e.CreatedBy,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Create inserts an event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (name, description, venue, starts_at, capacity, price_cents, is_published, created_by)
		VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5, $6, $7, $8)
		RETURNING ` + eventColumns
	created, err := scanEvent(r.pool.QueryRow(ctx, q,
		e.Name, e.Description, e.Venue, e.StartsAt, e.Capacity, e.PriceCents, e.IsPublished, e.CreatedBy))
	if err != nil {
		return err
	}
	*e = *created
	return nil
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	return scanEvent(r.pool.QueryRow(ctx, q, id))
}

// List returns events, optionally only published ones.
func (r *Repository) List(ctx context.Context, publishedOnly bool) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events ORDER BY starts_at`
	if publishedOnly {
		q = `SELECT ` + eventColumns + ` FROM events WHERE is_published ORDER BY starts_at`
	}
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// Reserve holds n tickets for an event. The check-and-increment is a single
// conditional UPDATE so two concurrent callers can never jointly exceed
// capacity; losing callers see zero rows affected.
func (r *Repository) Reserve(ctx context.Context, eventID uuid.UUID, n int) error {
	const q = `UPDATE events
		SET reserved_count = reserved_count + $2, updated_at = NOW()
		WHERE id = $1 AND reserved_count + $2 <= capacity`
	tag, err := r.pool.Exec(ctx, q, eventID, n)
	if err != nil {
		return fmt.Errorf("reserve capacity: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var remaining int
	err = r.pool.QueryRow(ctx, `SELECT capacity - reserved_count FROM events WHERE id = $1`, eventID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("read remaining capacity: %w", err)
	}
	return &CapacityError{Remaining: remaining}
}

// Release returns n previously reserved tickets to the pool. Releasing more
// than is outstanding (double release, unknown reservation) is a no-op
// reported as a warning.
func (r *Repository) Release(ctx context.Context, eventID uuid.UUID, n int) error {
	const q = `UPDATE events
		SET reserved_count = reserved_count - $2, updated_at = NOW()
		WHERE id = $1 AND reserved_count >= $2`
	tag, err := r.pool.Exec(ctx, q, eventID, n)
	if err != nil {
		return fmt.Errorf("release capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("capacity release without matching reservation",
			zap.String("event_id", eventID.String()),
			zap.Int("tickets", n),
		)
	}
	return nil
}
