package service

import (
	"time"
)

// RefundPolicy computes refund amounts from cancellation lead time:
// a full refund at or beyond FullRefundLead before the session start,
// half between HalfRefundLead and FullRefundLead, nothing inside
// HalfRefundLead.
type RefundPolicy struct {
	FullRefundLead time.Duration
	HalfRefundLead time.Duration
}

// DefaultRefundPolicy returns the standard 24h/12h policy
func DefaultRefundPolicy() *RefundPolicy {
	return &RefundPolicy{
		FullRefundLead: 24 * time.Hour,
		HalfRefundLead: 12 * time.Hour,
	}
}

// RefundFor returns the refund due on amountPaid when cancelling at
// now for a session starting at startTime
func (p *RefundPolicy) RefundFor(amountPaid int64, startTime, now time.Time) int64 {
	if amountPaid <= 0 {
		return 0
	}

	lead := startTime.Sub(now)
	switch {
	case lead >= p.FullRefundLead:
		return amountPaid
	case lead >= p.HalfRefundLead:
		return amountPaid / 2
	default:
		return 0
	}
}

// CancellationPolicy flags members who cancel too often: more than
// PenaltyThreshold cancellations inside Window costs loyalty points,
// more than BlockThreshold blocks new bookings for BlockDuration.
type CancellationPolicy struct {
	Window           time.Duration
	PenaltyThreshold int
	BlockThreshold   int
	BlockDuration    time.Duration
}

// DefaultCancellationPolicy returns the standard abuse thresholds
func DefaultCancellationPolicy() *CancellationPolicy {
	return &CancellationPolicy{
		Window:           30 * 24 * time.Hour,
		PenaltyThreshold: 3,
		BlockThreshold:   5,
		BlockDuration:    7 * 24 * time.Hour,
	}
}

// ShouldDeductPoints reports whether the cancellation count triggers a
// loyalty point deduction
func (p *CancellationPolicy) ShouldDeductPoints(recentCancellations int) bool {
	return recentCancellations > p.PenaltyThreshold
}

// ShouldBlock reports whether the cancellation count triggers a
// temporary booking block
func (p *CancellationPolicy) ShouldBlock(recentCancellations int) bool {
	return recentCancellations > p.BlockThreshold
}
