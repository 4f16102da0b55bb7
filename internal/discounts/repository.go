package discounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/models"
)

const discountColumns = `id, event_id, code, discount_type, value, max_uses, used_count,
	valid_until, is_active, created_at, updated_at`

// Repository handles discount persistence. used_count moves only through
// the conditional ReserveUse/ReleaseUse statements (and the failure-path
// release inside the bookings repository).
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a discounts repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

func scanDiscount(row pgx.Row) (*models.Discount, error) {
	var d models.Discount
	err := row.Scan(&d.ID, &d.EventID, &d.Code, &d.DiscountType, &d.Value, &d.MaxUses,
		&d.UsedCount, &d.ValidUntil, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a discount; the code is normalized to uppercase.
func (r *Repository) Create(ctx context.Context, d *models.Discount) error {
	const q = `INSERT INTO discounts (event_id, code, discount_type, value, max_uses, valid_until, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + discountColumns
	created, err := scanDiscount(r.pool.QueryRow(ctx, q,
		d.EventID, strings.ToUpper(strings.TrimSpace(d.Code)), d.DiscountType, d.Value,
		d.MaxUses, d.ValidUntil, d.IsActive))
	if err != nil {
		return err
	}
	*d = *created
	return nil
}

// GetByCode returns the discount for an event by its normalized code.
func (r *Repository) GetByCode(ctx context.Context, eventID uuid.UUID, code string) (*models.Discount, error) {
	const q = `SELECT ` + discountColumns + ` FROM discounts WHERE event_id = $1 AND code = $2`
	d, err := scanDiscount(r.pool.QueryRow(ctx, q, eventID, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListByEvent returns all discounts for an event.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Discount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+discountColumns+` FROM discounts WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *d)
	}
	return list, rows.Err()
}

// ReserveUse consumes one use of the discount. The increment only applies
// when the post-increment count stays within max_uses, as one conditional
// UPDATE, so concurrent reservations for the same code cannot overshoot.
func (r *Repository) ReserveUse(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE discounts
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1 AND (max_uses IS NULL OR used_count < max_uses)`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("reserve discount use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExhausted
	}
	return nil
}

// ReleaseUse returns one reserved use to the pool (abandoned or failed
// booking attempt). Releasing with nothing outstanding is a warned no-op.
func (r *Repository) ReleaseUse(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE discounts
		SET used_count = used_count - 1, updated_at = NOW()
		WHERE id = $1 AND used_count > 0`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("release discount use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("discount release without matching reservation", zap.String("discount_id", id.String()))
	}
	return nil
}
