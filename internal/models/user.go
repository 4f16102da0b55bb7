package models

import (
	"time"

	"github.com/google/uuid"
)

// Role determines what a user may do platform-wide.
type Role string

const (
	// RoleAdmin is a super-admin: may manage events and act on any event.
	RoleAdmin Role = "admin"
	// RoleStaff may confirm bookings and scan tickets for events they are assigned to.
	RoleStaff Role = "staff"
	// RoleAttendee is a regular ticket buyer.
	RoleAttendee Role = "attendee"
)

// User is a platform account (attendee, door staff or admin).
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // bcrypt hash
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserPublic is the user shape returned to clients.
type UserPublic struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Public strips private fields.
func (u *User) Public() UserPublic {
	return UserPublic{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role, CreatedAt: u.CreatedAt}
}

// EventAdmin grants a staff user confirm/scan authority for one event.
type EventAdmin struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
