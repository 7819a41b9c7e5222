package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/fitverse/class-booking/pkg/kafka"
	"github.com/fitverse/class-booking/pkg/logger"
)

// Notifier delivers member and staff notifications; delivery is always
// best effort and never blocks a booking operation
type Notifier interface {
	Publish(ctx context.Context, kind string, payload interface{})
}

// Notification kinds
const (
	NotifyBookingConfirmed    = "booking_confirmed"
	NotifyBookingCancelled    = "booking_cancelled"
	NotifyWaitlistJoined      = "waitlist_joined"
	NotifyWaitlistPromoted    = "waitlist_promoted"
	NotifySpotAvailable       = "spot_available"
	NotifyStaffBookingAlert   = "staff_booking_alert"
	NotifyCancellationPenalty = "cancellation_penalty"
	NotifyMemberBlocked       = "member_blocked"
)

// KafkaNotifier publishes notifications to a Kafka topic consumed by
// the notification service
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaNotifier creates a Kafka-backed notifier
func NewKafkaNotifier(producer *kafka.Producer, topic string) *KafkaNotifier {
	if topic == "" {
		topic = "notifications"
	}
	return &KafkaNotifier{producer: producer, topic: topic}
}

// Publish sends a notification; failures are logged and swallowed
func (n *KafkaNotifier) Publish(ctx context.Context, kind string, payload interface{}) {
	headers := map[string]string{"kind": kind}
	if err := n.producer.ProduceJSON(ctx, n.topic, kind, payload, headers); err != nil {
		logger.Get().Warn("failed to publish notification",
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

// NoOpNotifier swallows all notifications, for tests and local runs
type NoOpNotifier struct{}

// NewNoOpNotifier creates a no-op notifier
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Publish does nothing
func (n *NoOpNotifier) Publish(ctx context.Context, kind string, payload interface{}) {}

// Ensure implementations satisfy Notifier
var (
	_ Notifier = (*KafkaNotifier)(nil)
	_ Notifier = (*NoOpNotifier)(nil)
)
