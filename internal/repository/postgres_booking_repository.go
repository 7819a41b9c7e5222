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

const bookingColumns = `
	id, session_id, member_id, status, is_waitlist, waitlist_position,
	payment_status, price, amount_paid, seat_counted, notes,
	booked_at, cancelled_at, cancellation_reason, created_at, updated_at
`

// PostgresBookingRepository implements BookingRepository using PostgreSQL
type PostgresBookingRepository struct {
	q Querier
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(q Querier) *PostgresBookingRepository {
	return &PostgresBookingRepository{q: q}
}

// WithTx returns a copy bound to the transaction
func (r *PostgresBookingRepository) WithTx(tx pgx.Tx) BookingRepository {
	return &PostgresBookingRepository{q: tx}
}

// Create inserts a new booking record
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("session_id", booking.SessionID),
		attribute.String("member_id", booking.MemberID),
	)

	query := `
		INSERT INTO bookings (
			id, session_id, member_id, status, is_waitlist, waitlist_position,
			payment_status, price, amount_paid, seat_counted, notes,
			booked_at, cancelled_at, cancellation_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)
	`

	_, err := r.q.Exec(ctx, query,
		booking.ID,
		booking.SessionID,
		booking.MemberID,
		string(booking.Status),
		booking.IsWaitlist,
		nullPosition(booking.WaitlistPosition),
		string(booking.PaymentStatus),
		booking.Price,
		booking.AmountPaid,
		booking.SeatCounted,
		nullString(booking.Notes),
		booking.BookedAt,
		booking.CancelledAt,
		nullString(booking.CancellationReason),
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			span.SetStatus(codes.Error, "already booked")
			return domain.ErrAlreadyBooked
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBookingRow(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetBySessionAndMember retrieves the member's booking row for a session
func (r *PostgresBookingRepository) GetBySessionAndMember(ctx context.Context, sessionID, memberID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_session_member")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("member_id", memberID),
	)

	// Prefer the active row; fall back to the most recent cancelled one
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE session_id = $1 AND member_id = $2
		ORDER BY (status <> 'cancelled') DESC, updated_at DESC
		LIMIT 1
	`

	booking, err := scanBookingRow(r.q.QueryRow(ctx, query, sessionID, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "not found")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking by session and member: %w", err)
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// Update persists all mutable booking fields
func (r *PostgresBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", booking.ID))

	query := `
		UPDATE bookings SET
			status = $2,
			is_waitlist = $3,
			waitlist_position = $4,
			payment_status = $5,
			amount_paid = $6,
			seat_counted = $7,
			notes = $8,
			booked_at = $9,
			cancelled_at = $10,
			cancellation_reason = $11,
			updated_at = $12
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query,
		booking.ID,
		string(booking.Status),
		booking.IsWaitlist,
		nullPosition(booking.WaitlistPosition),
		string(booking.PaymentStatus),
		booking.AmountPaid,
		booking.SeatCounted,
		nullString(booking.Notes),
		booking.BookedAt,
		booking.CancelledAt,
		nullString(booking.CancellationReason),
		time.Now(),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Delete removes a booking row entirely
func (r *PostgresBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.delete")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	result, err := r.q.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByMemberID retrieves a member's bookings, newest first
func (r *PostgresBookingRepository) GetByMemberID(ctx context.Context, memberID string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_member_id")
	defer span.End()

	span.SetAttributes(
		attribute.String("member_id", memberID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE member_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.Query(ctx, query, memberID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get bookings by member ID: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// CountByMemberID counts a member's bookings
func (r *PostgresBookingRepository) CountByMemberID(ctx context.Context, memberID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.count_by_member_id")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", memberID))

	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE member_id = $1`, memberID).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// CountSeat flips seat_counted to true exactly once; waitlist entries
// never count until promotion clears is_waitlist
func (r *PostgresBookingRepository) CountSeat(ctx context.Context, id string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.count_seat")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `
		UPDATE bookings SET
			seat_counted = TRUE,
			updated_at = $2
		WHERE id = $1 AND seat_counted = FALSE AND is_waitlist = FALSE AND status <> 'cancelled'
	`

	result, err := r.q.Exec(ctx, query, id, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to count seat: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return result.RowsAffected() > 0, nil
}

// CountPendingSeatClaims counts active non-waitlist bookings not yet
// reflected in current_bookings
func (r *PostgresBookingRepository) CountPendingSeatClaims(ctx context.Context, sessionID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.count_pending_claims")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	query := `
		SELECT COUNT(*) FROM bookings
		WHERE session_id = $1
			AND status = 'confirmed'
			AND is_waitlist = FALSE
			AND seat_counted = FALSE
	`

	var count int
	err := r.q.QueryRow(ctx, query, sessionID).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count pending seat claims: %w", err)
	}

	span.SetAttributes(attribute.Int("count", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// GetWaitlist retrieves active waitlist entries ordered by position
func (r *PostgresBookingRepository) GetWaitlist(ctx context.Context, sessionID string) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_waitlist")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE session_id = $1 AND is_waitlist = TRUE AND status <> 'cancelled'
		ORDER BY waitlist_position ASC
	`

	rows, err := r.q.Query(ctx, query, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get waitlist: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// GetNextWaitlistEntry retrieves the entry with the lowest position
func (r *PostgresBookingRepository) GetNextWaitlistEntry(ctx context.Context, sessionID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_next_waitlist_entry")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE session_id = $1 AND is_waitlist = TRUE AND status <> 'cancelled'
		ORDER BY waitlist_position ASC
		LIMIT 1
	`

	booking, err := scanBookingRow(r.q.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "empty")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get next waitlist entry: %w", err)
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// CountActiveWaitlist counts active waitlist entries for a session
func (r *PostgresBookingRepository) CountActiveWaitlist(ctx context.Context, sessionID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.count_active_waitlist")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	query := `
		SELECT COUNT(*) FROM bookings
		WHERE session_id = $1 AND is_waitlist = TRUE AND status <> 'cancelled'
	`

	var count int
	err := r.q.QueryRow(ctx, query, sessionID).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count waitlist: %w", err)
	}

	span.SetAttributes(attribute.Int("count", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// RecompactWaitlistPositions renumbers active entries 1..N by join time
func (r *PostgresBookingRepository) RecompactWaitlistPositions(ctx context.Context, sessionID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.recompact_waitlist")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	query := `
		WITH ordered AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY booked_at ASC, id ASC) AS new_position
			FROM bookings
			WHERE session_id = $1 AND is_waitlist = TRUE AND status <> 'cancelled'
		)
		UPDATE bookings b SET
			waitlist_position = o.new_position,
			updated_at = $2
		FROM ordered o
		WHERE b.id = o.id
	`

	result, err := r.q.Exec(ctx, query, sessionID, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to recompact waitlist: %w", err)
	}

	count := int(result.RowsAffected())
	span.SetAttributes(attribute.Int("count", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// GetStalePendingBookings retrieves payment-pending seat claims booked
// before the cutoff
func (r *PostgresBookingRepository) GetStalePendingBookings(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_stale_pending")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'confirmed'
			AND is_waitlist = FALSE
			AND payment_status = 'pending'
			AND booked_at < $1
		ORDER BY booked_at ASC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get stale pending bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// CountRecentCancellations counts the member's cancellations since the
// given time
func (r *PostgresBookingRepository) CountRecentCancellations(ctx context.Context, memberID string, since time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.count_recent_cancellations")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", memberID))

	query := `
		SELECT COUNT(*) FROM bookings
		WHERE member_id = $1 AND status = 'cancelled' AND cancelled_at >= $2
	`

	var count int
	err := r.q.QueryRow(ctx, query, memberID, since).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count recent cancellations: %w", err)
	}

	span.SetAttributes(attribute.Int("count", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// scanBookingRow scans a single row into a Booking struct
func scanBookingRow(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		status             string
		paymentStatus      string
		waitlistPosition   *int
		notes              *string
		cancelledAt        *time.Time
		cancellationReason *string
	)

	err := row.Scan(
		&booking.ID,
		&booking.SessionID,
		&booking.MemberID,
		&status,
		&booking.IsWaitlist,
		&waitlistPosition,
		&paymentStatus,
		&booking.Price,
		&booking.AmountPaid,
		&booking.SeatCounted,
		&notes,
		&booking.BookedAt,
		&cancelledAt,
		&cancellationReason,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatus(status)
	booking.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if waitlistPosition != nil {
		booking.WaitlistPosition = *waitlistPosition
	}
	if notes != nil {
		booking.Notes = *notes
	}
	booking.CancelledAt = cancelledAt
	if cancellationReason != nil {
		booking.CancellationReason = *cancellationReason
	}

	return booking, nil
}

// collectBookings drains rows into Booking structs
func collectBookings(rows pgx.Rows) ([]*domain.Booking, error) {
	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBookingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

// nullString converts empty string to nil pointer
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullPosition converts a zero position to nil
func nullPosition(p int) *int {
	if p <= 0 {
		return nil
	}
	return &p
}

// Ensure PostgresBookingRepository implements BookingRepository
var _ BookingRepository = (*PostgresBookingRepository)(nil)
