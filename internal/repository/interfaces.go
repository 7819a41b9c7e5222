package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fitverse/class-booking/internal/domain"
)

// SessionRepository defines data access for class sessions
type SessionRepository interface {
	// GetByID retrieves a session by its ID
	GetByID(ctx context.Context, id string) (*domain.Session, error)

	// IncrementBookings adds one to current_bookings; returns
	// domain.ErrSessionFull when the session is at capacity
	IncrementBookings(ctx context.Context, id string) error

	// DecrementBookings subtracts one from current_bookings, never
	// going below zero
	DecrementBookings(ctx context.Context, id string) error

	// SetWaitlistCount stores the authoritative waitlist size
	SetWaitlistCount(ctx context.Context, id string, count int) error

	// WithTx returns a copy of the repository bound to the transaction
	WithTx(tx pgx.Tx) SessionRepository
}

// BookingRepository defines data access for bookings and waitlist entries
type BookingRepository interface {
	// Create inserts a new booking record
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by its ID
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetBySessionAndMember retrieves the member's booking row for a
	// session regardless of status; returns (nil, nil) when absent
	GetBySessionAndMember(ctx context.Context, sessionID, memberID string) (*domain.Booking, error)

	// Update persists all mutable booking fields
	Update(ctx context.Context, booking *domain.Booking) error

	// Delete removes a booking row entirely
	Delete(ctx context.Context, id string) error

	// GetByMemberID retrieves a member's bookings, newest first
	GetByMemberID(ctx context.Context, memberID string, limit, offset int) ([]*domain.Booking, error)

	// CountByMemberID counts a member's bookings
	CountByMemberID(ctx context.Context, memberID string) (int, error)

	// CountSeat flips seat_counted to true; reports whether this call
	// performed the flip (false = already counted or not found)
	CountSeat(ctx context.Context, id string) (bool, error)

	// CountPendingSeatClaims counts active non-waitlist bookings whose
	// seat is not yet reflected in current_bookings
	CountPendingSeatClaims(ctx context.Context, sessionID string) (int, error)

	// GetWaitlist retrieves active waitlist entries ordered by position
	GetWaitlist(ctx context.Context, sessionID string) ([]*domain.Booking, error)

	// GetNextWaitlistEntry retrieves the active entry with the lowest
	// position; returns (nil, nil) when the waitlist is empty
	GetNextWaitlistEntry(ctx context.Context, sessionID string) (*domain.Booking, error)

	// CountActiveWaitlist counts active waitlist entries for a session
	CountActiveWaitlist(ctx context.Context, sessionID string) (int, error)

	// RecompactWaitlistPositions renumbers active entries 1..N by join
	// time and returns the new size
	RecompactWaitlistPositions(ctx context.Context, sessionID string) (int, error)

	// GetStalePendingBookings retrieves active non-waitlist bookings
	// still awaiting payment that were booked before the cutoff
	GetStalePendingBookings(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error)

	// CountRecentCancellations counts the member's cancellations since
	// the given time
	CountRecentCancellations(ctx context.Context, memberID string, since time.Time) (int, error)

	// WithTx returns a copy of the repository bound to the transaction
	WithTx(tx pgx.Tx) BookingRepository
}
