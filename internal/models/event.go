package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a published happening with finite capacity.
// ReservedCount counts tickets held by PENDING and CONFIRMED bookings; the
// events repository only ever moves it with conditional updates, so
// ReservedCount <= Capacity holds at all times.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Venue         string    `json:"venue,omitempty"`
	StartsAt      time.Time `json:"starts_at"`
	Capacity      int       `json:"capacity"`
	PriceCents    int64     `json:"price_cents"`
	ReservedCount int       `json:"reserved_count"`
	IsPublished   bool      `json:"is_published"`
	CreatedBy     uuid.UUID `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Remaining is the number of tickets still reservable.
func (e *Event) Remaining() int {
	if r := e.Capacity - e.ReservedCount; r > 0 {
		return r
	}
	return 0
}
