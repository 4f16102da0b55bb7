package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the closed set of booking states.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingFailed    BookingStatus = "FAILED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
// PENDING is the only non-terminal state: it may move to CONFIRMED,
// FAILED or CANCELLED exactly once; everything else is final.
func (s BookingStatus) Terminal() bool {
	return s != BookingPending
}

// Booking reserves ticket_count tickets for one event by one user.
// Created PENDING by the admission flow; status and payment fields are
// mutated only by the confirmation state machine afterwards.
type Booking struct {
	ID                uuid.UUID     `json:"id"`
	EventID           uuid.UUID     `json:"event_id"`
	UserID            uuid.UUID     `json:"user_id"`
	TicketCount       int           `json:"ticket_count"`
	AmountCents       int64         `json:"amount_cents"`
	DiscountID        *uuid.UUID    `json:"discount_id,omitempty"`
	Status            BookingStatus `json:"status"`
	GatewayOrderID    string        `json:"gateway_order_id,omitempty"`
	GatewayPaymentID  string        `json:"gateway_payment_id,omitempty"`
	PaymentVerifiedAt *time.Time    `json:"payment_verified_at,omitempty"`
	FailureReason     string        `json:"failure_reason,omitempty"`
	IdempotencyKey    string        `json:"-"`
	ExpiresAt         time.Time     `json:"expires_at"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
