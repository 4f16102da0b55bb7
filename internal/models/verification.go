package models

import (
	"time"

	"github.com/google/uuid"
)

// Verification records one booking being redeemed at the door. At most one
// row exists per booking (unique index on booking_id); rows are never
// updated or deleted in the normal flow.
type Verification struct {
	ID         uuid.UUID `json:"id"`
	BookingID  uuid.UUID `json:"booking_id"`
	EventID    uuid.UUID `json:"event_id"`
	ScannerID  uuid.UUID `json:"scanner_id"`
	VerifiedAt time.Time `json:"verified_at"`
}
