package domain

import "time"

// PaymentIntentStatus represents the billing service's view of a charge
type PaymentIntentStatus string

const (
	PaymentIntentPending   PaymentIntentStatus = "pending"
	PaymentIntentSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentFailed    PaymentIntentStatus = "failed"
)

// PaymentIntent is a charge created at the billing service for a booking
type PaymentIntent struct {
	ID        string              `json:"id"`
	BookingID string              `json:"booking_id"`
	MemberID  string              `json:"member_id"`
	Amount    int64               `json:"amount"`
	Currency  string              `json:"currency"`
	Status    PaymentIntentStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

// RefundStatus represents the billing service's view of a refund
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund is a (possibly partial) reversal of a booking payment
type Refund struct {
	ID        string       `json:"id"`
	BookingID string       `json:"booking_id"`
	Amount    int64        `json:"amount"`
	Reason    string       `json:"reason,omitempty"`
	Status    RefundStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}
