package checkin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatepass/backend/internal/models"
)

const verificationColumns = `id, booking_id, event_id, scanner_id, verified_at`

// Repository handles verification persistence. The booking_id unique
// constraint is the exactly-once mechanism: of any number of concurrent
// inserts for one booking, the database admits one.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a check-in repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanVerification(row pgx.Row) (*models.Verification, error) {
	var v models.Verification
	err := row.Scan(&v.ID, &v.BookingID, &v.EventID, &v.ScannerID, &v.VerifiedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Insert records a verification for a booking. When the booking is already
// verified the insert is a no-op and the existing record is returned with
// created=false, so concurrent scanners both learn the true outcome.
func (r *Repository) Insert(ctx context.Context, bookingID, eventID, scannerID uuid.UUID) (*models.Verification, bool, error) {
	const q = `INSERT INTO verifications (booking_id, event_id, scanner_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING ` + verificationColumns
	v, err := scanVerification(r.pool.QueryRow(ctx, q, bookingID, eventID, scannerID))
	if err == nil {
		return v, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := r.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByBooking returns the verification for a booking, if any.
func (r *Repository) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Verification, error) {
	const q = `SELECT ` + verificationColumns + ` FROM verifications WHERE booking_id = $1`
	return scanVerification(r.pool.QueryRow(ctx, q, bookingID))
}

// ListByEvent returns an event's verifications, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Verification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+verificationColumns+` FROM verifications WHERE event_id = $1 ORDER BY verified_at DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}
