package models

import (
	"time"

	"github.com/google/uuid"
)

// DiscountType is percentage or fixed.
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// Discount is a limited-use discount code scoped to one event.
// Code is stored uppercase; lookups normalize before comparing.
type Discount struct {
	ID           uuid.UUID  `json:"id"`
	EventID      uuid.UUID  `json:"event_id"`
	Code         string     `json:"code"`
	DiscountType string     `json:"discount_type"`
	Value        int64      `json:"value"` // percent for percentage, cents for fixed
	MaxUses      *int       `json:"max_uses,omitempty"` // nil = unlimited
	UsedCount    int        `json:"used_count"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DiscountedPrice applies the discount to a per-ticket price in cents.
// Integer math, floored at zero for both types.
func (d *Discount) DiscountedPrice(priceCents int64) int64 {
	switch d.DiscountType {
	case DiscountPercentage:
		if p := priceCents * (100 - d.Value) / 100; p > 0 {
			return p
		}
		return 0
	case DiscountFixed:
		if p := priceCents - d.Value; p > 0 {
			return p
		}
		return 0
	}
	return priceCents
}
