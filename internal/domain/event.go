package domain

import (
	"time"
)

// BookingEventType identifies a booking lifecycle event
type BookingEventType string

const (
	BookingEventCreated          BookingEventType = "booking.created"
	BookingEventPaymentConfirmed BookingEventType = "booking.payment_confirmed"
	BookingEventCancelled        BookingEventType = "booking.cancelled"
	BookingEventWaitlistJoined   BookingEventType = "booking.waitlist_joined"
	BookingEventWaitlistPromoted BookingEventType = "booking.waitlist_promoted"
	BookingEventSeatReclaimed    BookingEventType = "booking.seat_reclaimed"
)

// BookingEvent is the message envelope published for booking lifecycle changes
type BookingEvent struct {
	EventID    string           `json:"event_id"`
	EventType  BookingEventType `json:"event_type"`
	OccurredAt time.Time        `json:"occurred_at"`

	BookingID        string        `json:"booking_id"`
	SessionID        string        `json:"session_id"`
	MemberID         string        `json:"member_id"`
	Status           BookingStatus `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	IsWaitlist       bool          `json:"is_waitlist"`
	WaitlistPosition int           `json:"waitlist_position,omitempty"`
	Amount           int64         `json:"amount,omitempty"`
}

// NewBookingEvent builds an event envelope from a booking snapshot
func NewBookingEvent(eventType BookingEventType, booking *Booking, eventID string) *BookingEvent {
	return &BookingEvent{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       time.Now().UTC(),
		BookingID:        booking.ID,
		SessionID:        booking.SessionID,
		MemberID:         booking.MemberID,
		Status:           booking.Status,
		PaymentStatus:    booking.PaymentStatus,
		IsWaitlist:       booking.IsWaitlist,
		WaitlistPosition: booking.WaitlistPosition,
		Amount:           booking.AmountPaid,
	}
}

// Key returns the partition key; events for the same session stay ordered
func (e *BookingEvent) Key() string {
	return e.SessionID
}
