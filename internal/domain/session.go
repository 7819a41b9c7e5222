package domain

import (
	"time"
)

// SessionStatus represents the lifecycle state of a class session
type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "scheduled"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusCancelled  SessionStatus = "cancelled"
	SessionStatusPostponed  SessionStatus = "postponed"
)

// Session represents a scheduled class occurrence with bounded capacity
type Session struct {
	ID              string        `json:"id"`
	ClassID         string        `json:"class_id"`
	TrainerID       string        `json:"trainer_id"`
	RoomID          string        `json:"room_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Price           int64         `json:"price"`
	MaxCapacity     int           `json:"max_capacity"`
	CurrentBookings int           `json:"current_bookings"`
	WaitlistCount   int           `json:"waitlist_count"`
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// HasEnded reports whether the session is over at the given time
func (s *Session) HasEnded(now time.Time) bool {
	return !now.Before(s.EndTime)
}

// IsActive reports whether the session still accepts members; drop-in
// bookings are allowed while a session is in progress
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusScheduled || s.Status == SessionStatusInProgress
}

// IsBookable reports whether new bookings are accepted at the given time
func (s *Session) IsBookable(now time.Time) bool {
	return s.IsActive() && !s.HasEnded(now)
}

// IsFree reports whether the class requires no payment
func (s *Session) IsFree() bool {
	return s.Price <= 0
}

// AvailableSpots returns the number of unclaimed seats
func (s *Session) AvailableSpots() int {
	spots := s.MaxCapacity - s.CurrentBookings
	if spots < 0 {
		return 0
	}
	return spots
}
