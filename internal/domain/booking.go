package domain

import (
	"time"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// PaymentStatus represents the payment state of a booking
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Booking represents a member's claim on a session seat, or their place
// on the session's waitlist
type Booking struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	MemberID  string        `json:"member_id"`
	Status    BookingStatus `json:"status"`

	IsWaitlist       bool `json:"is_waitlist"`
	WaitlistPosition int  `json:"waitlist_position,omitempty"`

	PaymentStatus PaymentStatus `json:"payment_status"`
	Price         int64         `json:"price"`
	AmountPaid    int64         `json:"amount_paid"`

	// SeatCounted records whether this booking currently contributes to
	// the session's current_bookings counter
	SeatCounted bool `json:"-"`

	Notes              string     `json:"notes,omitempty"`
	BookedAt           time.Time  `json:"booked_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCancelled reports whether the booking has been cancelled
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// IsActive reports whether the booking still claims a seat or waitlist spot
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusConfirmed
}

// IsPaid reports whether payment has been completed
func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

// IsPendingPayment reports whether the booking awaits payment confirmation
func (b *Booking) IsPendingPayment() bool {
	return b.IsActive() && b.PaymentStatus == PaymentStatusPending
}
