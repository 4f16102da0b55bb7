package queue

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewExpirySchedule(db, nil)

	id := uuid.New()
	deadline := time.Now().Add(15 * time.Minute)
	mock.ExpectZAdd(KeyBookingExpiry, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: id.String(),
	}).SetVal(1)

	require.NoError(t, s.Schedule(context.Background(), id, deadline))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemove(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewExpirySchedule(db, nil)

	id := uuid.New()
	mock.ExpectZRem(KeyBookingExpiry, id.String()).SetVal(1)

	require.NoError(t, s.Remove(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimDue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewExpirySchedule(db, nil)

	now := time.Now()
	due1 := uuid.New()
	due2 := uuid.New()
	mock.ExpectZRangeByScore(KeyBookingExpiry, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: ClaimBatch,
	}).SetVal([]string{due1.String(), due2.String()})
	mock.ExpectZRem(KeyBookingExpiry, due1.String()).SetVal(1)
	mock.ExpectZRem(KeyBookingExpiry, due2.String()).SetVal(1)

	ids, err := s.ClaimDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{due1, due2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimDueDropsInvalidMembers(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewExpirySchedule(db, nil)

	now := time.Now()
	due := uuid.New()
	mock.ExpectZRangeByScore(KeyBookingExpiry, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: ClaimBatch,
	}).SetVal([]string{"not-a-uuid", due.String()})
	mock.ExpectZRem(KeyBookingExpiry, "not-a-uuid").SetVal(1)
	mock.ExpectZRem(KeyBookingExpiry, due.String()).SetVal(1)

	ids, err := s.ClaimDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{due}, ids)
}

func TestClaimDueEmpty(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewExpirySchedule(db, nil)

	now := time.Now()
	mock.ExpectZRangeByScore(KeyBookingExpiry, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: ClaimBatch,
	}).SetVal([]string{})

	ids, err := s.ClaimDue(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
