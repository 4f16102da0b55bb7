package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/models"
)

// IntegrityConflictError reports a confirmation replay carrying a payment
// ID different from the one already recorded. Either the gateway double
// charged or someone is replaying a captured callback, so it is surfaced
// loudly rather than absorbed as an idempotent retry.
type IntegrityConflictError struct {
	BookingID          uuid.UUID
	RecordedPaymentID  string
	AttemptedPaymentID string
}

func (e *IntegrityConflictError) Error() string {
	return fmt.Sprintf("booking %s already confirmed with payment %s, refusing payment %s",
		e.BookingID, e.RecordedPaymentID, e.AttemptedPaymentID)
}

// StateError reports an operation attempted against a booking whose status
// does not allow it.
type StateError struct {
	Status models.BookingStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("booking is %s", e.Status)
}

// EventStore is the capacity surface the admission flow needs.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Reserve(ctx context.Context, eventID uuid.UUID, n int) error
	Release(ctx context.Context, eventID uuid.UUID, n int) error
}

// DiscountValidator checks and reserves discount codes.
type DiscountValidator interface {
	Validate(ctx context.Context, eventID uuid.UUID, code string) (*models.Discount, error)
	Reserve(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID) error
}

// Store is the booking persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error)
	SetGatewayOrder(ctx context.Context, id uuid.UUID, orderID string) error
	ConfirmPending(ctx context.Context, id uuid.UUID, paymentID string, verifiedAt time.Time) (*models.Booking, bool, error)
	CloseAndRelease(ctx context.Context, id uuid.UUID, status models.BookingStatus, reason string) (*models.Booking, bool, error)
}

// Gateway creates payment orders for bookings.
type Gateway interface {
	CreateOrder(ctx context.Context, b *models.Booking) (orderID string, err error)
}

// Scheduler tracks payment deadlines for pending bookings.
type Scheduler interface {
	Schedule(ctx context.Context, bookingID uuid.UUID, deadline time.Time) error
	Remove(ctx context.Context, bookingID uuid.UUID) error
}

// Notifier pushes booking lifecycle events to live dashboards. May be nil.
type Notifier interface {
	Publish(ctx context.Context, eventID uuid.UUID, kind string, payload interface{})
}

// Authorizer decides whether a user may administer an event.
type Authorizer interface {
	IsAuthorized(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
}

// CreateInput is the admission request for a new booking.
type CreateInput struct {
	EventID        uuid.UUID
	UserID         uuid.UUID
	TicketCount    int
	DiscountCode   string
	IdempotencyKey string
}

// Service runs booking admission and the payment confirmation state
// machine. Admission holds resources step by step and compensates on
// failure; confirmation rides the conditional updates in the repository.
type Service struct {
	store     Store
	events    EventStore
	discounts DiscountValidator
	gateway   Gateway
	schedule  Scheduler
	notifier  Notifier
	guard     Authorizer
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the booking service.
func NewService(store Store, events EventStore, discounts DiscountValidator, gateway Gateway,
	schedule Scheduler, notifier Notifier, guard Authorizer, pendingTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		events:    events,
		discounts: discounts,
		gateway:   gateway,
		schedule:  schedule,
		notifier:  notifier,
		guard:     guard,
		ttl:       pendingTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// Create admits a booking: validates the request, reserves the discount
// use and the event capacity, prices the tickets and persists a PENDING
// booking with a gateway order attached. Any step failing after a resource
// was held releases that resource before returning, so a rejected request
// leaves no trace in the ledgers.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Booking, error) {
	if in.TicketCount < 1 {
		return nil, models.ErrInvalidInput
	}

	if in.IdempotencyKey != "" {
		existing, err := s.store.GetByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, models.ErrBookingNotFound) {
			return nil, err
		}
	}

	event, err := s.events.GetByID(ctx, in.EventID)
	if err != nil {
		return nil, err
	}

	var discount *models.Discount
	if in.DiscountCode != "" {
		discount, err = s.discounts.Validate(ctx, in.EventID, in.DiscountCode)
		if err != nil {
			return nil, err
		}
		if err := s.discounts.Reserve(ctx, discount.ID); err != nil {
			return nil, err
		}
	}

	if err := s.events.Reserve(ctx, in.EventID, in.TicketCount); err != nil {
		if discount != nil {
			s.release(ctx, "discount", func(ctx context.Context) error {
				return s.discounts.Release(ctx, discount.ID)
			})
		}
		return nil, err
	}

	perTicket := event.PriceCents
	b := &models.Booking{
		EventID:        in.EventID,
		UserID:         in.UserID,
		TicketCount:    in.TicketCount,
		IdempotencyKey: in.IdempotencyKey,
		ExpiresAt:      s.now().Add(s.ttl),
	}
	if discount != nil {
		perTicket = discount.DiscountedPrice(event.PriceCents)
		b.DiscountID = &discount.ID
	}
	b.AmountCents = perTicket * int64(in.TicketCount)

	if err := s.store.Create(ctx, b); err != nil {
		s.rollbackAdmission(ctx, in.EventID, in.TicketCount, discount)
		if errors.Is(err, ErrDuplicateKey) && in.IdempotencyKey != "" {
			// lost the insert race for this key; the winner's row is the answer
			return s.store.GetByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
		}
		return nil, err
	}

	orderID, err := s.gateway.CreateOrder(ctx, b)
	if err != nil {
		s.logger.Error("gateway order creation failed",
			zap.String("booking_id", b.ID.String()), zap.Error(err))
		if _, _, closeErr := s.store.CloseAndRelease(ctx, b.ID, models.BookingFailed, "gateway order creation failed"); closeErr != nil {
			s.logger.Error("failed to close booking after gateway error",
				zap.String("booking_id", b.ID.String()), zap.Error(closeErr))
		}
		return nil, fmt.Errorf("create payment order: %w", err)
	}
	if err := s.store.SetGatewayOrder(ctx, b.ID, orderID); err != nil {
		return nil, err
	}
	b.GatewayOrderID = orderID

	if s.schedule != nil {
		// the worker's database sweep catches the booking if this fails
		if err := s.schedule.Schedule(ctx, b.ID, b.ExpiresAt); err != nil {
			s.logger.Warn("expiry scheduling failed",
				zap.String("booking_id", b.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("booking admitted",
		zap.String("booking_id", b.ID.String()),
		zap.String("event_id", in.EventID.String()),
		zap.Int("tickets", in.TicketCount),
		zap.Int64("amount_cents", b.AmountCents),
	)
	return b, nil
}

func (s *Service) rollbackAdmission(ctx context.Context, eventID uuid.UUID, tickets int, discount *models.Discount) {
	s.release(ctx, "capacity", func(ctx context.Context) error {
		return s.events.Release(ctx, eventID, tickets)
	})
	if discount != nil {
		s.release(ctx, "discount", func(ctx context.Context) error {
			return s.discounts.Release(ctx, discount.ID)
		})
	}
}

func (s *Service) release(ctx context.Context, what string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.logger.Error("admission rollback failed", zap.String("resource", what), zap.Error(err))
	}
}

// Confirm settles a payment against a booking. PENDING flips to CONFIRMED
// exactly once; a replay with the same payment ID returns the confirmed
// booking unchanged; a replay with a different payment ID is an
// IntegrityConflictError; FAILED and CANCELLED refuse with a StateError.
func (s *Service) Confirm(ctx context.Context, bookingID uuid.UUID, paymentID string) (*models.Booking, error) {
	if paymentID == "" {
		return nil, models.ErrInvalidInput
	}

	b, applied, err := s.store.ConfirmPending(ctx, bookingID, paymentID, s.now())
	if err != nil {
		return nil, err
	}
	if applied {
		if s.schedule != nil {
			if err := s.schedule.Remove(ctx, b.ID); err != nil {
				s.logger.Warn("expiry removal failed", zap.String("booking_id", b.ID.String()), zap.Error(err))
			}
		}
		if s.notifier != nil {
			s.notifier.Publish(ctx, b.EventID, "booking_confirmed", b)
		}
		s.logger.Info("booking confirmed",
			zap.String("booking_id", b.ID.String()),
			zap.String("gateway_payment_id", paymentID),
		)
		return b, nil
	}

	switch b.Status {
	case models.BookingConfirmed:
		if b.GatewayPaymentID == paymentID {
			return b, nil
		}
		conflict := &IntegrityConflictError{
			BookingID:          b.ID,
			RecordedPaymentID:  b.GatewayPaymentID,
			AttemptedPaymentID: paymentID,
		}
		s.logger.Error("payment integrity conflict",
			zap.String("booking_id", b.ID.String()),
			zap.String("recorded_payment_id", b.GatewayPaymentID),
			zap.String("attempted_payment_id", paymentID),
		)
		return nil, conflict
	default:
		s.logger.Error("confirmation against settled booking",
			zap.String("booking_id", b.ID.String()),
			zap.String("status", string(b.Status)),
		)
		return nil, &StateError{Status: b.Status}
	}
}

// MarkFailed moves a PENDING booking to FAILED and releases its capacity
// and discount use. Repeating the call on an already-FAILED booking is a
// no-op; a failure reported against a CONFIRMED or CANCELLED booking is a
// conflicting transition from a terminal state and is rejected with a
// StateError, never applied.
func (s *Service) MarkFailed(ctx context.Context, bookingID uuid.UUID, reason string) error {
	b, applied, err := s.store.CloseAndRelease(ctx, bookingID, models.BookingFailed, reason)
	if err != nil {
		return err
	}
	if !applied {
		if b.Status == models.BookingFailed {
			return nil
		}
		s.logger.Error("failure transition against settled booking",
			zap.String("booking_id", b.ID.String()),
			zap.String("status", string(b.Status)),
			zap.String("reason", reason),
		)
		return &StateError{Status: b.Status}
	}
	if s.schedule != nil {
		_ = s.schedule.Remove(ctx, b.ID)
	}
	s.logger.Info("booking failed",
		zap.String("booking_id", b.ID.String()),
		zap.String("reason", reason),
	)
	return nil
}

// Cancel lets the booking's owner abandon it while payment is pending.
func (s *Service) Cancel(ctx context.Context, bookingID, userID uuid.UUID) (*models.Booking, error) {
	b, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, models.ErrUnauthorized
	}
	if b.Status.Terminal() {
		return nil, &StateError{Status: b.Status}
	}
	closed, applied, err := s.store.CloseAndRelease(ctx, bookingID, models.BookingCancelled, "cancelled by user")
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, &StateError{Status: closed.Status}
	}
	if s.schedule != nil {
		_ = s.schedule.Remove(ctx, closed.ID)
	}
	s.logger.Info("booking cancelled", zap.String("booking_id", closed.ID.String()))
	return closed, nil
}

// AdminConfirm is the manual confirmation path for event staff (cash sales,
// gateway outages). The caller must administer the booking's event.
func (s *Service) AdminConfirm(ctx context.Context, staffID, bookingID uuid.UUID, paymentID string) (*models.Booking, error) {
	b, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	ok, err := s.guard.IsAuthorized(ctx, staffID, b.EventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrUnauthorized
	}
	return s.Confirm(ctx, bookingID, paymentID)
}

// Get returns a booking visible to the requester: its owner, or staff
// authorized for its event.
func (s *Service) Get(ctx context.Context, requesterID, bookingID uuid.UUID) (*models.Booking, error) {
	b, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID == requesterID {
		return b, nil
	}
	ok, err := s.guard.IsAuthorized(ctx, requesterID, b.EventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrUnauthorized
	}
	return b, nil
}

// ListMine returns the requester's bookings.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	return s.store.ListByUser(ctx, userID)
}
