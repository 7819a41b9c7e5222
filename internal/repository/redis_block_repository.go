package repository

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fitverse/class-booking/pkg/redis"
	"github.com/fitverse/class-booking/pkg/telemetry"
)

const memberBlockKeyPrefix = "block:member:"

// MemberBlockStore tracks temporary booking blocks for members who
// cancel too often
type MemberBlockStore interface {
	// IsBlocked reports whether the member currently has a booking block
	IsBlocked(ctx context.Context, memberID string) (bool, error)

	// Block places a booking block on the member for the given duration
	Block(ctx context.Context, memberID string, duration time.Duration) error

	// Unblock lifts a member's booking block early
	Unblock(ctx context.Context, memberID string) error
}

// RedisMemberBlockStore implements MemberBlockStore on Redis with TTL
// expiry doing the unblocking
type RedisMemberBlockStore struct {
	client *redis.Client
}

// NewRedisMemberBlockStore creates a Redis-backed member block store
func NewRedisMemberBlockStore(client *redis.Client) *RedisMemberBlockStore {
	return &RedisMemberBlockStore{client: client}
}

// IsBlocked reports whether the member currently has a booking block
func (s *RedisMemberBlockStore) IsBlocked(ctx context.Context, memberID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.member_block.is_blocked")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", memberID))

	n, err := s.client.Exists(ctx, memberBlockKeyPrefix+memberID).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to check member block: %w", err)
	}

	span.SetAttributes(attribute.Bool("blocked", n > 0))
	span.SetStatus(codes.Ok, "")
	return n > 0, nil
}

// Block places a booking block on the member for the given duration
func (s *RedisMemberBlockStore) Block(ctx context.Context, memberID string, duration time.Duration) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.member_block.block")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", memberID))

	err := s.client.Set(ctx, memberBlockKeyPrefix+memberID, time.Now().UTC().Format(time.RFC3339), duration).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to block member: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Unblock lifts a member's booking block early
func (s *RedisMemberBlockStore) Unblock(ctx context.Context, memberID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.member_block.unblock")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", memberID))

	if err := s.client.Del(ctx, memberBlockKeyPrefix+memberID).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to unblock member: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Ensure RedisMemberBlockStore implements MemberBlockStore
var _ MemberBlockStore = (*RedisMemberBlockStore)(nil)
