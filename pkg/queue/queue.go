package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// KeyBookingExpiry is the Redis sorted set of pending bookings scored by
	// their payment deadline (unix seconds).
	KeyBookingExpiry = "bookings:expiry"
	// ClaimBatch is the maximum number of due bookings claimed per sweep.
	ClaimBatch = 100
	// RetryBackoff is the delay before a failed claim is retried.
	RetryBackoff = 10 * time.Second
)

// ExpirySchedule tracks payment deadlines for PENDING bookings in Redis.
// Claiming is best-effort: two workers may claim the same booking, which is
// harmless because the failure transition it drives is idempotent. The
// database sweep in the worker is the backstop if Redis loses the entry.
type ExpirySchedule struct {
	client *redis.Client
	logger *zap.Logger
}

// NewExpirySchedule creates a Redis-backed booking expiry schedule.
func NewExpirySchedule(client *redis.Client, logger *zap.Logger) *ExpirySchedule {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySchedule{client: client, logger: logger}
}

// Schedule registers a booking's payment deadline.
func (s *ExpirySchedule) Schedule(ctx context.Context, bookingID uuid.UUID, deadline time.Time) error {
	err := s.client.ZAdd(ctx, KeyBookingExpiry, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: bookingID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd expiry: %w", err)
	}
	s.logger.Debug("booking expiry scheduled",
		zap.String("booking_id", bookingID.String()),
		zap.Time("deadline", deadline),
	)
	return nil
}

// Remove drops a booking from the schedule (payment settled or booking cancelled).
func (s *ExpirySchedule) Remove(ctx context.Context, bookingID uuid.UUID) error {
	return s.client.ZRem(ctx, KeyBookingExpiry, bookingID.String()).Err()
}

// ClaimDue returns bookings whose deadline has passed and removes them from
// the schedule.
func (s *ExpirySchedule) ClaimDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	members, err := s.client.ZRangeByScore(ctx, KeyBookingExpiry, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: ClaimBatch,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore expiry: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			s.logger.Warn("invalid expiry member dropped", zap.String("member", m))
			_ = s.client.ZRem(ctx, KeyBookingExpiry, m).Err()
			continue
		}
		if err := s.client.ZRem(ctx, KeyBookingExpiry, m).Err(); err != nil {
			return ids, fmt.Errorf("zrem expiry: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
