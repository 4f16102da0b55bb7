package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatepass/backend/internal/bookings"
	"github.com/gatepass/backend/pkg/queue"
)

// ExpiryReason is recorded on bookings failed by the worker.
const ExpiryReason = "payment window expired"

// SweepInterval is how often the database backstop runs.
const SweepInterval = time.Minute

// BookingFailer is the slice of the booking service the worker drives.
// MarkFailed is idempotent, so duplicate claims from Redis and the sweep
// are harmless.
type BookingFailer interface {
	MarkFailed(ctx context.Context, bookingID uuid.UUID, reason string) error
}

// PendingLister finds PENDING bookings the Redis schedule may have lost.
type PendingLister interface {
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// ExpiryProcessor fails bookings whose payment window has closed. The
// Redis schedule delivers most of them promptly; a periodic database sweep
// catches any the schedule dropped.
type ExpiryProcessor struct {
	schedule *queue.ExpirySchedule
	bookings BookingFailer
	pending  PendingLister
	logger   *zap.Logger
}

// NewExpiryProcessor creates the booking expiry processor.
func NewExpiryProcessor(schedule *queue.ExpirySchedule, bookings BookingFailer, pending PendingLister, logger *zap.Logger) *ExpiryProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryProcessor{schedule: schedule, bookings: bookings, pending: pending, logger: logger}
}

// Run starts the worker loop: claim due bookings from Redis, fail them,
// and periodically sweep the database.
func (p *ExpiryProcessor) Run(ctx context.Context) {
	claim := time.NewTicker(time.Second)
	sweep := time.NewTicker(SweepInterval)
	defer claim.Stop()
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("expiry worker stopping")
			return
		case <-claim.C:
			p.claimDue(ctx)
		case <-sweep.C:
			p.sweepDatabase(ctx)
		}
	}
}

func (p *ExpiryProcessor) claimDue(ctx context.Context) {
	ids, err := p.schedule.ClaimDue(ctx, time.Now())
	if err != nil {
		p.logger.Warn("expiry claim error", zap.Error(err))
		time.Sleep(queue.RetryBackoff)
		return
	}
	p.fail(ctx, ids)
}

func (p *ExpiryProcessor) sweepDatabase(ctx context.Context) {
	ids, err := p.pending.ListExpiredPending(ctx, time.Now(), queue.ClaimBatch)
	if err != nil {
		p.logger.Warn("expiry sweep error", zap.Error(err))
		return
	}
	if len(ids) > 0 {
		p.logger.Info("expiry sweep found bookings missed by schedule", zap.Int("count", len(ids)))
	}
	p.fail(ctx, ids)
}

func (p *ExpiryProcessor) fail(ctx context.Context, ids []uuid.UUID) {
	for _, id := range ids {
		if err := p.bookings.MarkFailed(ctx, id, ExpiryReason); err != nil {
			// a payment that landed between scheduling and the claim settles
			// the booking first; that race is expected here
			var state *bookings.StateError
			if errors.As(err, &state) {
				p.logger.Debug("booking settled before expiry",
					zap.String("booking_id", id.String()),
					zap.String("status", string(state.Status)),
				)
				continue
			}
			p.logger.Error("expire booking failed", zap.String("booking_id", id.String()), zap.Error(err))
			continue
		}
		p.logger.Debug("booking expired", zap.String("booking_id", id.String()))
	}
}
