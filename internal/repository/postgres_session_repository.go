package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/pkg/telemetry"
)

// PostgresSessionRepository implements SessionRepository using PostgreSQL
type PostgresSessionRepository struct {
	q Querier
}

// NewPostgresSessionRepository creates a new PostgresSessionRepository
func NewPostgresSessionRepository(q Querier) *PostgresSessionRepository {
	return &PostgresSessionRepository{q: q}
}

// WithTx returns a copy bound to the transaction
func (r *PostgresSessionRepository) WithTx(tx pgx.Tx) SessionRepository {
	return &PostgresSessionRepository{q: tx}
}

// GetByID retrieves a session by its ID
func (r *PostgresSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", id))

	query := `
		SELECT
			id, class_id, trainer_id, room_id, start_time, end_time,
			price, max_capacity, current_bookings, waitlist_count,
			status, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`

	session := &domain.Session{}
	var status string

	err := r.q.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.ClassID,
		&session.TrainerID,
		&session.RoomID,
		&session.StartTime,
		&session.EndTime,
		&session.Price,
		&session.MaxCapacity,
		&session.CurrentBookings,
		&session.WaitlistCount,
		&status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.Status = domain.SessionStatus(status)
	span.SetStatus(codes.Ok, "")
	return session, nil
}

// IncrementBookings adds one to current_bookings while enforcing capacity
func (r *PostgresSessionRepository) IncrementBookings(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.increment_bookings")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", id))

	query := `
		UPDATE sessions SET
			current_bookings = current_bookings + 1,
			updated_at = $2
		WHERE id = $1 AND current_bookings < max_capacity
	`

	result, err := r.q.Exec(ctx, query, id, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to increment bookings: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)", id).Scan(&exists); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		if !exists {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrSessionNotFound
		}
		span.SetStatus(codes.Error, "session full")
		return domain.ErrSessionFull
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// DecrementBookings subtracts one from current_bookings, clamped at zero
func (r *PostgresSessionRepository) DecrementBookings(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.decrement_bookings")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", id))

	query := `
		UPDATE sessions SET
			current_bookings = GREATEST(current_bookings - 1, 0),
			updated_at = $2
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, id, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to decrement bookings: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrSessionNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// SetWaitlistCount stores the authoritative waitlist size
func (r *PostgresSessionRepository) SetWaitlistCount(ctx context.Context, id string, count int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.set_waitlist_count")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", id),
		attribute.Int("count", count),
	)

	query := `
		UPDATE sessions SET
			waitlist_count = $2,
			updated_at = $3
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, id, count, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to set waitlist count: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrSessionNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Ensure PostgresSessionRepository implements SessionRepository
var _ SessionRepository = (*PostgresSessionRepository)(nil)
