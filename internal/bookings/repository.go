package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/models"
)

const bookingColumns = `id, event_id, user_id, ticket_count, amount_cents, discount_id,
	status, gateway_order_id, gateway_payment_id, payment_verified_at, failure_reason,
	COALESCE(idempotency_key, ''), expires_at, created_at, updated_at`

// ErrDuplicateKey reports an insert that lost the race on the per-user
// idempotency key; the caller re-reads the winning row.
var ErrDuplicateKey = errors.New("idempotency key already used")

// Repository handles booking persistence. Status only ever leaves PENDING
// through the conditional statements below, so every transition happens at
// most once no matter how many callers race.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a bookings repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.TicketCount, &b.AmountCents,
		&b.DiscountID, &b.Status, &b.GatewayOrderID, &b.GatewayPaymentID,
		&b.PaymentVerifiedAt, &b.FailureReason, &b.IdempotencyKey,
		&b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// Create inserts a PENDING booking. A duplicate idempotency key for the
// same user returns ErrDuplicateKey.
func (r *Repository) Create(ctx context.Context, b *models.Booking) error {
	const q = `INSERT INTO bookings (event_id, user_id, ticket_count, amount_cents, discount_id, idempotency_key, expires_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING ` + bookingColumns
	created, err := scanBooking(r.pool.QueryRow(ctx, q,
		b.EventID, b.UserID, b.TicketCount, b.AmountCents, b.DiscountID, b.IdempotencyKey, b.ExpiresAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return err
	}
	*b = *created
	return nil
}

// GetByID returns a booking by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.pool.QueryRow(ctx, q, id))
}

// GetByIdempotencyKey returns the booking a user previously created with
// the given key, if any.
func (r *Repository) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 AND idempotency_key = $2`
	return scanBooking(r.pool.QueryRow(ctx, q, userID, key))
}

// ListByUser returns a user's bookings, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
	var list []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *b)
	}
	return list, rows.Err()
}

// SetGatewayOrder records the gateway order created for a booking.
func (r *Repository) SetGatewayOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE bookings SET gateway_order_id = $2, updated_at = NOW() WHERE id = $1`, id, orderID)
	return err
}

// ConfirmPending flips a PENDING booking to CONFIRMED, recording the
// gateway payment. The update is gated on the current status, so of any
// number of racing confirmations exactly one reports applied=true; the
// rest re-read the row and resolve replay or conflict from it.
func (r *Repository) ConfirmPending(ctx context.Context, id uuid.UUID, paymentID string, verifiedAt time.Time) (*models.Booking, bool, error) {
	const q = `UPDATE bookings
		SET status = 'CONFIRMED', gateway_payment_id = $2, payment_verified_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + bookingColumns
	b, err := scanBooking(r.pool.QueryRow(ctx, q, id, paymentID, verifiedAt))
	if err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			current, getErr := r.GetByID(ctx, id)
			if getErr != nil {
				return nil, false, getErr
			}
			return current, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// CloseAndRelease flips a PENDING booking to the given terminal status and,
// in the same transaction, returns its tickets to the event and its
// discount use to the code. A booking already out of PENDING is left
// untouched and reported applied=false, which makes expiry, cancellation
// and gateway failure callbacks safe to repeat or race.
func (r *Repository) CloseAndRelease(ctx context.Context, id uuid.UUID, status models.BookingStatus, reason string) (*models.Booking, bool, error) {
	if !status.Terminal() || status == models.BookingConfirmed {
		return nil, false, fmt.Errorf("close booking: invalid target status %q", status)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin close tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `UPDATE bookings
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + bookingColumns
	b, err := scanBooking(tx.QueryRow(ctx, q, id, status, reason))
	if err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			current, getErr := r.GetByID(ctx, id)
			if getErr != nil {
				return nil, false, getErr
			}
			return current, false, nil
		}
		return nil, false, err
	}

	tag, err := tx.Exec(ctx, `UPDATE events
		SET reserved_count = reserved_count - $2, updated_at = NOW()
		WHERE id = $1 AND reserved_count >= $2`, b.EventID, b.TicketCount)
	if err != nil {
		return nil, false, fmt.Errorf("release capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("capacity release without matching reservation",
			zap.String("booking_id", b.ID.String()),
			zap.String("event_id", b.EventID.String()),
		)
	}

	if b.DiscountID != nil {
		_, err = tx.Exec(ctx, `UPDATE discounts
			SET used_count = used_count - 1, updated_at = NOW()
			WHERE id = $1 AND used_count > 0`, *b.DiscountID)
		if err != nil {
			return nil, false, fmt.Errorf("release discount use: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit close tx: %w", err)
	}
	return b, true, nil
}

// ListExpiredPending returns IDs of PENDING bookings whose payment window
// has passed. Database backstop for the Redis expiry schedule.
func (r *Repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM bookings WHERE status = 'PENDING' AND expires_at <= $1 ORDER BY expires_at LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
