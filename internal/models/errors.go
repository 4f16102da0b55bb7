package models

import "errors"

// Sentinel errors shared across the core packages.
var (
	ErrEventNotFound   = errors.New("event not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrUnauthorized    = errors.New("not authorized for this event")
	ErrInvalidInput    = errors.New("invalid input")
)
