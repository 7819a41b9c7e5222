package dto

import (
	"time"

	"github.com/fitverse/class-booking/internal/domain"
)

// CreateBookingRequest represents a request to book a session seat
type CreateBookingRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	MemberID  string `json:"member_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// CreateBookingResponse represents the outcome of a booking attempt;
// Waitlisted is true when the seat claim landed on the waitlist instead.
// Payment carries the billing handle for payment-pending bookings so the
// client can complete checkout
type CreateBookingResponse struct {
	Booking    *BookingResponse       `json:"booking"`
	Waitlisted bool                   `json:"waitlisted"`
	Payment    *PaymentIntentResponse `json:"payment,omitempty"`
	Message    string                 `json:"message,omitempty"`
}

// PaymentIntentResponse represents the billing charge attached to a
// payment-pending booking
type PaymentIntentResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
	Status   string `json:"status"`
}

// PaymentIntentFromDomain converts a domain PaymentIntent
func PaymentIntentFromDomain(p *domain.PaymentIntent) *PaymentIntentResponse {
	if p == nil {
		return nil
	}
	return &PaymentIntentResponse{
		ID:       p.ID,
		Amount:   p.Amount,
		Currency: p.Currency,
		Status:   string(p.Status),
	}
}

// ConfirmPaymentRequest represents a payment confirmation callback
type ConfirmPaymentRequest struct {
	Amount    int64  `json:"amount" binding:"required"`
	PaymentID string `json:"payment_id,omitempty"`
}

// CancelBookingRequest represents a request to cancel a booking
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelBookingResponse represents the outcome of a cancellation
type CancelBookingResponse struct {
	BookingID    string `json:"booking_id"`
	Status       string `json:"status"`
	RefundAmount int64  `json:"refund_amount"`
	Message      string `json:"message,omitempty"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID               string     `json:"id"`
	SessionID        string     `json:"session_id"`
	MemberID         string     `json:"member_id"`
	MemberName       string     `json:"member_name,omitempty"`
	Status           string     `json:"status"`
	IsWaitlist       bool       `json:"is_waitlist"`
	WaitlistPosition int        `json:"waitlist_position,omitempty"`
	PaymentStatus    string     `json:"payment_status"`
	Price            int64      `json:"price"`
	AmountPaid       int64      `json:"amount_paid"`
	Notes            string     `json:"notes,omitempty"`
	BookedAt         time.Time  `json:"booked_at"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

// BookingListResponse represents a paginated list of bookings
type BookingListResponse struct {
	Bookings []*BookingResponse `json:"bookings"`
	Total    int                `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// WaitlistEntryResponse represents one waitlist position
type WaitlistEntryResponse struct {
	BookingID  string    `json:"booking_id"`
	MemberID   string    `json:"member_id"`
	MemberName string    `json:"member_name,omitempty"`
	Position   int       `json:"position"`
	JoinedAt   time.Time `json:"joined_at"`
}

// WaitlistResponse represents a session's full waitlist
type WaitlistResponse struct {
	SessionID string                   `json:"session_id"`
	Count     int                      `json:"count"`
	Entries   []*WaitlistEntryResponse `json:"entries"`
}

// PromoteResponse represents the outcome of a waitlist promotion
type PromoteResponse struct {
	Booking *BookingResponse `json:"booking"`
	Message string           `json:"message,omitempty"`
}

// FromDomain converts a domain Booking to a BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:               b.ID,
		SessionID:        b.SessionID,
		MemberID:         b.MemberID,
		Status:           string(b.Status),
		IsWaitlist:       b.IsWaitlist,
		WaitlistPosition: b.WaitlistPosition,
		PaymentStatus:    string(b.PaymentStatus),
		Price:            b.Price,
		AmountPaid:       b.AmountPaid,
		Notes:            b.Notes,
		BookedAt:         b.BookedAt,
		CancelledAt:      b.CancelledAt,
	}
}

// WaitlistEntryFromDomain converts a waitlist booking to a response entry
func WaitlistEntryFromDomain(b *domain.Booking) *WaitlistEntryResponse {
	return &WaitlistEntryResponse{
		BookingID: b.ID,
		MemberID:  b.MemberID,
		Position:  b.WaitlistPosition,
		JoinedAt:  b.BookedAt,
	}
}
