package worker

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatepass/backend/internal/bookings"
	"github.com/gatepass/backend/internal/models"
	"github.com/gatepass/backend/pkg/queue"
)

type fakeFailer struct {
	mu      sync.Mutex
	calls   []uuid.UUID
	settled map[uuid.UUID]models.BookingStatus
}

func (f *fakeFailer) MarkFailed(_ context.Context, id uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if status, ok := f.settled[id]; ok {
		return &bookings.StateError{Status: status}
	}
	return nil
}

func TestClaimDueToleratesSettledBookings(t *testing.T) {
	db, mock := redismock.NewClientMock()
	schedule := queue.NewExpirySchedule(db, nil)

	confirmed := uuid.New()
	pending := uuid.New()
	failer := &fakeFailer{settled: map[uuid.UUID]models.BookingStatus{
		confirmed: models.BookingConfirmed,
	}}
	p := NewExpiryProcessor(schedule, failer, nil, nil)

	now := time.Now()
	mock.ExpectZRangeByScore(queue.KeyBookingExpiry, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: queue.ClaimBatch,
	}).SetVal([]string{confirmed.String(), pending.String()})
	mock.ExpectZRem(queue.KeyBookingExpiry, confirmed.String()).SetVal(1)
	mock.ExpectZRem(queue.KeyBookingExpiry, pending.String()).SetVal(1)

	ids, err := schedule.ClaimDue(context.Background(), now)
	require.NoError(t, err)
	p.fail(context.Background(), ids)

	// the confirmed booking's conflict must not stop the rest of the batch
	assert.Equal(t, []uuid.UUID{confirmed, pending}, failer.calls)
}
