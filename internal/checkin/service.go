package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/models"
)

// AlreadyVerifiedError reports a second scan of a ticket, carrying who
// admitted it and when so the gate can show the duplicate to the scanner.
type AlreadyVerifiedError struct {
	ScannerID  uuid.UUID
	VerifiedAt time.Time
}

func (e *AlreadyVerifiedError) Error() string {
	return fmt.Sprintf("ticket already verified at %s", e.VerifiedAt.Format(time.RFC3339))
}

// NotConfirmedError reports a scan of a booking that never completed
// payment (or was cancelled), carrying its actual status.
type NotConfirmedError struct {
	Status models.BookingStatus
}

func (e *NotConfirmedError) Error() string {
	return fmt.Sprintf("booking is %s, not CONFIRMED", e.Status)
}

// BookingStore resolves scanned bookings.
type BookingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

// Store is the verification persistence surface.
type Store interface {
	Insert(ctx context.Context, bookingID, eventID, scannerID uuid.UUID) (*models.Verification, bool, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Verification, error)
}

// Authorizer decides whether a scanner may admit for an event.
type Authorizer interface {
	IsAuthorized(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
}

// Service verifies tickets at the gate. Checks run in a fixed order so a
// scan failing several ways always reports the same error: unknown
// booking, unauthorized scanner, unpaid booking, duplicate scan.
type Service struct {
	store    Store
	bookings BookingStore
	guard    Authorizer
	notifier Notifier
	logger   *zap.Logger
}

// Notifier pushes check-in events to live dashboards. May be nil.
type Notifier interface {
	Publish(ctx context.Context, eventID uuid.UUID, kind string, payload interface{})
}

// NewService wires the check-in service.
func NewService(store Store, bookings BookingStore, guard Authorizer, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, bookings: bookings, guard: guard, notifier: notifier, logger: logger}
}

// Verify admits the ticket for a booking exactly once. The booking must
// belong to the event the scanner is working; a ticket for another event
// reads as not found. Concurrent scans of the same ticket race on the
// insert; the loser gets AlreadyVerifiedError with the winner's details.
func (s *Service) Verify(ctx context.Context, scannerID, bookingID, eventID uuid.UUID) (*models.Verification, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.EventID != eventID {
		return nil, models.ErrBookingNotFound
	}

	ok, err := s.guard.IsAuthorized(ctx, scannerID, b.EventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrUnauthorized
	}

	if b.Status != models.BookingConfirmed {
		return nil, &NotConfirmedError{Status: b.Status}
	}

	v, created, err := s.store.Insert(ctx, b.ID, b.EventID, scannerID)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, &AlreadyVerifiedError{ScannerID: v.ScannerID, VerifiedAt: v.VerifiedAt}
	}

	if s.notifier != nil {
		s.notifier.Publish(ctx, b.EventID, "checkin", v)
	}
	s.logger.Info("ticket verified",
		zap.String("booking_id", b.ID.String()),
		zap.String("event_id", b.EventID.String()),
		zap.String("scanner_id", scannerID.String()),
	)
	return v, nil
}

// ListByEvent returns an event's check-ins for an authorized viewer.
func (s *Service) ListByEvent(ctx context.Context, viewerID, eventID uuid.UUID) ([]models.Verification, error) {
	ok, err := s.guard.IsAuthorized(ctx, viewerID, eventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrUnauthorized
	}
	return s.store.ListByEvent(ctx, eventID)
}
