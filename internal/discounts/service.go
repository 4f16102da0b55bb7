package discounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gatepass/backend/internal/models"
)

// Validation failures, ordered by the checks Validate performs.
var (
	ErrNotFound  = errors.New("discount code not found")
	ErrInactive  = errors.New("discount code is inactive")
	ErrExpired   = errors.New("discount code has expired")
	ErrExhausted = errors.New("discount code usage limit reached")
)

// Store is the persistence surface the validator needs.
type Store interface {
	GetByCode(ctx context.Context, eventID uuid.UUID, code string) (*models.Discount, error)
	ReserveUse(ctx context.Context, id uuid.UUID) error
	ReleaseUse(ctx context.Context, id uuid.UUID) error
}

// Validator checks and reserves discount codes during booking admission.
type Validator struct {
	store Store
	now   func() time.Time
}

// NewValidator creates a Validator backed by the given store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store, now: time.Now}
}

// Validate looks up a code for an event and checks it in order: existence,
// active flag, expiry, remaining uses. The first failure wins. A passing
// result does not hold a use; call Reserve for that.
func (v *Validator) Validate(ctx context.Context, eventID uuid.UUID, code string) (*models.Discount, error) {
	d, err := v.store.GetByCode(ctx, eventID, code)
	if err != nil {
		return nil, err
	}
	if !d.IsActive {
		return nil, ErrInactive
	}
	if d.ValidUntil != nil && v.now().After(*d.ValidUntil) {
		return nil, ErrExpired
	}
	if d.MaxUses != nil && d.UsedCount >= *d.MaxUses {
		return nil, ErrExhausted
	}
	return d, nil
}

// Reserve atomically consumes one use; ErrExhausted when the conditional
// update finds no headroom (the usual loser of a race on the last use).
func (v *Validator) Reserve(ctx context.Context, id uuid.UUID) error {
	return v.store.ReserveUse(ctx, id)
}

// Release returns a previously reserved use.
func (v *Validator) Release(ctx context.Context, id uuid.UUID) error {
	return v.store.ReleaseUse(ctx, id)
}
