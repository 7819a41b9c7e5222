package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fitverse/class-booking/pkg/telemetry"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsConfirmed *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	BookingsFailed    *telemetry.Counter
	SeatsReclaimed    *telemetry.Counter

	// Waitlist counters
	WaitlistJoins      *telemetry.Counter
	WaitlistPromotions *telemetry.Counter

	// Refund counters
	RefundsIssued *telemetry.Counter
	RefundsFailed *telemetry.Counter

	// Concurrency counters
	LockContentions *telemetry.Counter

	// Histograms
	RequestDuration *telemetry.Histogram
	RefundAmount    *telemetry.Histogram

	// Gauges
	PendingPayments *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	BookingsCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_bookings_created_total",
		Description: "Total number of session bookings created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_bookings_confirmed_total",
		Description: "Total number of payment confirmations applied",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_bookings_cancelled_total",
		Description: "Total number of bookings cancelled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_bookings_failed_total",
		Description: "Total number of failed booking attempts",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SeatsReclaimed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_seats_reclaimed_total",
		Description: "Total number of seats reclaimed from stale pending bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WaitlistJoins, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_waitlist_joins_total",
		Description: "Total number of waitlist joins",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WaitlistPromotions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_waitlist_promotions_total",
		Description: "Total number of waitlist promotions",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RefundsIssued, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_refunds_issued_total",
		Description: "Total number of refunds requested",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RefundsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_refunds_failed_total",
		Description: "Total number of refund requests that failed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	LockContentions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "class_session_lock_contentions_total",
		Description: "Total number of booking attempts rejected by a busy session lock",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RequestDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "class_booking_request_duration_seconds",
		Description: "HTTP request duration in seconds",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	if err != nil {
		return err
	}

	RefundAmount, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "class_refund_amount",
		Description: "Refund amounts in minor currency units",
		Unit:        "1",
	}, []float64{0, 10000, 50000, 100000, 500000, 1000000, 5000000})
	if err != nil {
		return err
	}

	PendingPayments, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "class_bookings_pending_payment",
		Description: "Current number of bookings awaiting payment",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordBookingCreated records a booking creation
func RecordBookingCreated(ctx context.Context, sessionID string, waitlisted bool) {
	if BookingsCreated != nil {
		BookingsCreated.Inc(ctx,
			attribute.String("session_id", sessionID),
			attribute.Bool("waitlisted", waitlisted),
		)
	}
	if waitlisted && WaitlistJoins != nil {
		WaitlistJoins.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordPendingPayment tracks the pending-payment gauge
func RecordPendingPayment(ctx context.Context, delta int64) {
	if PendingPayments != nil {
		PendingPayments.Add(ctx, delta)
	}
}

// RecordConfirmation records a payment confirmation
func RecordConfirmation(ctx context.Context, sessionID string) {
	if BookingsConfirmed != nil {
		BookingsConfirmed.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordCancellation records a booking cancellation
func RecordCancellation(ctx context.Context, sessionID string) {
	if BookingsCancelled != nil {
		BookingsCancelled.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordFailure records a failed booking attempt
func RecordFailure(ctx context.Context, sessionID, reason string) {
	if BookingsFailed != nil {
		BookingsFailed.Inc(ctx,
			attribute.String("session_id", sessionID),
			attribute.String("reason", reason),
		)
	}
}

// RecordPromotion records a waitlist promotion
func RecordPromotion(ctx context.Context, sessionID string) {
	if WaitlistPromotions != nil {
		WaitlistPromotions.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordRefund records a refund outcome
func RecordRefund(ctx context.Context, sessionID string, amount int64, failed bool) {
	if failed {
		if RefundsFailed != nil {
			RefundsFailed.Inc(ctx, attribute.String("session_id", sessionID))
		}
		return
	}
	if RefundsIssued != nil {
		RefundsIssued.Inc(ctx, attribute.String("session_id", sessionID))
	}
	if RefundAmount != nil {
		RefundAmount.Record(ctx, float64(amount), attribute.String("session_id", sessionID))
	}
}

// RecordLockContention records a busy-lock rejection
func RecordLockContention(ctx context.Context, sessionID string) {
	if LockContentions != nil {
		LockContentions.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordSeatReclaimed records seats reclaimed by the worker
func RecordSeatReclaimed(ctx context.Context, sessionID string, count int64) {
	if SeatsReclaimed != nil {
		SeatsReclaimed.Add(ctx, count, attribute.String("session_id", sessionID))
	}
}

// RecordRequestDuration records HTTP request duration
func RecordRequestDuration(ctx context.Context, operation string, durationSeconds float64) {
	if RequestDuration != nil {
		RequestDuration.Record(ctx, durationSeconds,
			attribute.String("operation", operation),
		)
	}
}
