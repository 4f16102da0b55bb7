package discounts

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

type fakeStore struct {
	mu        sync.Mutex
	discounts map[uuid.UUID]*models.Discount
}

func newFakeStore(ds ...*models.Discount) *fakeStore {
	s := &fakeStore{discounts: make(map[uuid.UUID]*models.Discount)}
	for _, d := range ds {
		s.discounts[d.ID] = d
	}
	return s
}

func (s *fakeStore) GetByCode(_ context.Context, eventID uuid.UUID, code string) (*models.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.discounts {
		if d.EventID == eventID && d.Code == code {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) ReserveUse(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discounts[id]
	if !ok {
		return ErrNotFound
	}
	if d.MaxUses != nil && d.UsedCount >= *d.MaxUses {
		return ErrExhausted
	}
	d.UsedCount++
	return nil
}

func (s *fakeStore) ReleaseUse(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.discounts[id]; ok && d.UsedCount > 0 {
		d.UsedCount--
	}
	return nil
}

func intPtr(n int) *int { return &n }

func testDiscount(eventID uuid.UUID) *models.Discount {
	return &models.Discount{
		ID:           uuid.New(),
		EventID:      eventID,
		Code:         "SAVE10",
		DiscountType: models.DiscountPercentage,
		Value:        10,
		IsActive:     true,
	}
}

func TestValidate(t *testing.T) {
	eventID := uuid.New()
	past := time.Now().Add(-time.Hour)

	t.Run("valid code passes", func(t *testing.T) {
		d := testDiscount(eventID)
		v := NewValidator(newFakeStore(d))
		got, err := v.Validate(context.Background(), eventID, "SAVE10")
		require.NoError(t, err)
		assert.Equal(t, d.ID, got.ID)
	})

	t.Run("unknown code", func(t *testing.T) {
		v := NewValidator(newFakeStore())
		_, err := v.Validate(context.Background(), eventID, "NOPE")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("inactive code", func(t *testing.T) {
		d := testDiscount(eventID)
		d.IsActive = false
		v := NewValidator(newFakeStore(d))
		_, err := v.Validate(context.Background(), eventID, "SAVE10")
		assert.ErrorIs(t, err, ErrInactive)
	})

	t.Run("expired code", func(t *testing.T) {
		d := testDiscount(eventID)
		d.ValidUntil = &past
		v := NewValidator(newFakeStore(d))
		_, err := v.Validate(context.Background(), eventID, "SAVE10")
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("exhausted code", func(t *testing.T) {
		d := testDiscount(eventID)
		d.MaxUses = intPtr(5)
		d.UsedCount = 5
		v := NewValidator(newFakeStore(d))
		_, err := v.Validate(context.Background(), eventID, "SAVE10")
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("inactive wins over expired", func(t *testing.T) {
		d := testDiscount(eventID)
		d.IsActive = false
		d.ValidUntil = &past
		v := NewValidator(newFakeStore(d))
		_, err := v.Validate(context.Background(), eventID, "SAVE10")
		assert.ErrorIs(t, err, ErrInactive)
	})
}

func TestReserveNeverOvershootsMaxUses(t *testing.T) {
	eventID := uuid.New()
	d := testDiscount(eventID)
	d.MaxUses = intPtr(5)
	store := newFakeStore(d)
	v := NewValidator(store)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- v.Reserve(context.Background(), d.ID)
		}()
	}
	wg.Wait()
	close(results)

	var ok, exhausted int
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, ErrExhausted)
			exhausted++
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, attempts-5, exhausted)
	assert.Equal(t, 5, store.discounts[d.ID].UsedCount)
}

func TestReleaseReopensUse(t *testing.T) {
	eventID := uuid.New()
	d := testDiscount(eventID)
	d.MaxUses = intPtr(1)
	d.UsedCount = 1
	v := NewValidator(newFakeStore(d))

	require.ErrorIs(t, v.Reserve(context.Background(), d.ID), ErrExhausted)
	require.NoError(t, v.Release(context.Background(), d.ID))
	assert.NoError(t, v.Reserve(context.Background(), d.ID))
}
