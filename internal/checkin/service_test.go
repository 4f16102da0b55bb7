package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatepass/backend/internal/models"
)

type fakeBookings struct {
	bookings map[uuid.UUID]*models.Booking
}

func (f *fakeBookings) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

type fakeVerifications struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.Verification
}

func newFakeVerifications() *fakeVerifications {
	return &fakeVerifications{records: make(map[uuid.UUID]*models.Verification)}
}

func (f *fakeVerifications) Insert(_ context.Context, bookingID, eventID, scannerID uuid.UUID) (*models.Verification, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.records[bookingID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	v := &models.Verification{
		ID:         uuid.New(),
		BookingID:  bookingID,
		EventID:    eventID,
		ScannerID:  scannerID,
		VerifiedAt: time.Now(),
	}
	f.records[bookingID] = v
	cp := *v
	return &cp, true, nil
}

func (f *fakeVerifications) ListByEvent(_ context.Context, eventID uuid.UUID) ([]models.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []models.Verification
	for _, v := range f.records {
		if v.EventID == eventID {
			list = append(list, *v)
		}
	}
	return list, nil
}

type allowGuard struct {
	allowed map[uuid.UUID]bool
}

func (g *allowGuard) IsAuthorized(_ context.Context, userID, _ uuid.UUID) (bool, error) {
	return g.allowed[userID], nil
}

func setup(status models.BookingStatus) (*Service, *models.Booking, uuid.UUID) {
	booking := &models.Booking{
		ID:      uuid.New(),
		EventID: uuid.New(),
		UserID:  uuid.New(),
		Status:  status,
	}
	scanner := uuid.New()
	guard := &allowGuard{allowed: map[uuid.UUID]bool{scanner: true}}
	svc := NewService(newFakeVerifications(), &fakeBookings{bookings: map[uuid.UUID]*models.Booking{booking.ID: booking}}, guard, nil, nil)
	return svc, booking, scanner
}

func TestVerify(t *testing.T) {
	t.Run("confirmed booking admits once", func(t *testing.T) {
		svc, booking, scanner := setup(models.BookingConfirmed)
		v, err := svc.Verify(context.Background(), scanner, booking.ID, booking.EventID)
		require.NoError(t, err)
		assert.Equal(t, booking.ID, v.BookingID)
		assert.Equal(t, scanner, v.ScannerID)
	})

	t.Run("unknown booking", func(t *testing.T) {
		svc, _, scanner := setup(models.BookingConfirmed)
		_, err := svc.Verify(context.Background(), scanner, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})

	t.Run("booking for another event reads as not found", func(t *testing.T) {
		svc, booking, scanner := setup(models.BookingConfirmed)
		_, err := svc.Verify(context.Background(), scanner, booking.ID, uuid.New())
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})

	t.Run("unauthorized scanner", func(t *testing.T) {
		svc, booking, _ := setup(models.BookingConfirmed)
		_, err := svc.Verify(context.Background(), uuid.New(), booking.ID, booking.EventID)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("pending booking refused with its status", func(t *testing.T) {
		svc, booking, scanner := setup(models.BookingPending)
		_, err := svc.Verify(context.Background(), scanner, booking.ID, booking.EventID)
		var unpaid *NotConfirmedError
		require.ErrorAs(t, err, &unpaid)
		assert.Equal(t, models.BookingPending, unpaid.Status)
	})

	t.Run("second scan reports the first", func(t *testing.T) {
		svc, booking, scanner := setup(models.BookingConfirmed)
		first, err := svc.Verify(context.Background(), scanner, booking.ID, booking.EventID)
		require.NoError(t, err)

		_, err = svc.Verify(context.Background(), scanner, booking.ID, booking.EventID)
		var already *AlreadyVerifiedError
		require.ErrorAs(t, err, &already)
		assert.Equal(t, first.ScannerID, already.ScannerID)
		assert.Equal(t, first.VerifiedAt, already.VerifiedAt)
	})
}

func TestVerifyConcurrentScansAdmitOne(t *testing.T) {
	booking := &models.Booking{
		ID:      uuid.New(),
		EventID: uuid.New(),
		Status:  models.BookingConfirmed,
	}
	guard := &allowGuard{allowed: map[uuid.UUID]bool{}}
	scanners := make([]uuid.UUID, 8)
	for i := range scanners {
		scanners[i] = uuid.New()
		guard.allowed[scanners[i]] = true
	}
	svc := NewService(newFakeVerifications(), &fakeBookings{bookings: map[uuid.UUID]*models.Booking{booking.ID: booking}}, guard, nil, nil)

	var wg sync.WaitGroup
	errs := make(chan error, len(scanners))
	for _, scanner := range scanners {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := svc.Verify(context.Background(), id, booking.ID, booking.EventID)
			errs <- err
		}(scanner)
	}
	wg.Wait()
	close(errs)

	var admitted, duplicate int
	for err := range errs {
		if err == nil {
			admitted++
			continue
		}
		var already *AlreadyVerifiedError
		require.ErrorAs(t, err, &already)
		duplicate++
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, len(scanners)-1, duplicate)
}
