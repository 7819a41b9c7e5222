package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/internal/dto"
	"github.com/fitverse/class-booking/internal/gateway"
	"github.com/fitverse/class-booking/internal/metrics"
	"github.com/fitverse/class-booking/internal/repository"
	"github.com/fitverse/class-booking/pkg/logger"
	"github.com/fitverse/class-booking/pkg/telemetry"
)

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking claims a seat for the member, or a waitlist spot
	// when the session is full
	CreateBooking(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error)

	// ConfirmPayment applies a payment confirmation to a booking;
	// confirming an already-paid booking is a no-op
	ConfirmPayment(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error)

	// CancelBooking cancels a booking, issues the policy refund, and
	// attempts one waitlist promotion for the freed seat
	CancelBooking(ctx context.Context, bookingID, memberID string, req *dto.CancelBookingRequest) (*dto.CancelBookingResponse, error)

	// GetBooking retrieves a booking by ID
	GetBooking(ctx context.Context, bookingID string) (*dto.BookingResponse, error)

	// GetMemberBookings retrieves a member's bookings, newest first
	GetMemberBookings(ctx context.Context, memberID string, limit, offset int) (*dto.BookingListResponse, error)
}

// bookingService implements BookingService
type bookingService struct {
	sessionRepo    repository.SessionRepository
	bookingRepo    repository.BookingRepository
	blockStore     repository.MemberBlockStore
	txRunner       TxRunner
	locker         SessionLocker
	waitlist       WaitlistService
	paymentClient  gateway.PaymentClient
	memberClient   gateway.MemberClient
	notifier       gateway.Notifier
	eventPublisher EventPublisher

	refundPolicy       *RefundPolicy
	cancellationPolicy *CancellationPolicy
}

// BookingServiceDeps contains the collaborators of the booking service
type BookingServiceDeps struct {
	SessionRepo    repository.SessionRepository
	BookingRepo    repository.BookingRepository
	BlockStore     repository.MemberBlockStore
	TxRunner       TxRunner
	Locker         SessionLocker
	Waitlist       WaitlistService
	PaymentClient  gateway.PaymentClient
	MemberClient   gateway.MemberClient
	Notifier       gateway.Notifier
	EventPublisher EventPublisher

	RefundPolicy       *RefundPolicy
	CancellationPolicy *CancellationPolicy
}

// NewBookingService creates a new booking service
func NewBookingService(deps BookingServiceDeps) BookingService {
	refundPolicy := deps.RefundPolicy
	if refundPolicy == nil {
		refundPolicy = DefaultRefundPolicy()
	}
	cancellationPolicy := deps.CancellationPolicy
	if cancellationPolicy == nil {
		cancellationPolicy = DefaultCancellationPolicy()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = gateway.NewNoOpNotifier()
	}
	eventPublisher := deps.EventPublisher
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}

	return &bookingService{
		sessionRepo:        deps.SessionRepo,
		bookingRepo:        deps.BookingRepo,
		blockStore:         deps.BlockStore,
		txRunner:           deps.TxRunner,
		locker:             deps.Locker,
		waitlist:           deps.Waitlist,
		paymentClient:      deps.PaymentClient,
		memberClient:       deps.MemberClient,
		notifier:           notifier,
		eventPublisher:     eventPublisher,
		refundPolicy:       refundPolicy,
		cancellationPolicy: cancellationPolicy,
	}
}

// CreateBooking claims a seat, or a waitlist spot when the session is full
func (s *bookingService) CreateBooking(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	if memberID == "" {
		span.SetStatus(codes.Error, "invalid member_id")
		return nil, domain.ErrInvalidMemberID
	}
	if req == nil || req.SessionID == "" {
		span.SetStatus(codes.Error, "invalid session_id")
		return nil, domain.ErrInvalidSessionID
	}

	span.SetAttributes(
		attribute.String("member_id", memberID),
		attribute.String("session_id", req.SessionID),
	)

	// The member must exist; a missing member is a hard failure
	member, err := s.memberClient.GetMember(ctx, memberID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordFailure(ctx, req.SessionID, "member_not_found")
		return nil, err
	}

	if s.blockStore != nil {
		blocked, err := s.blockStore.IsBlocked(ctx, memberID)
		if err != nil {
			logger.Get().Warn("member block check failed",
				zap.String("member_id", memberID),
				zap.Error(err),
			)
		} else if blocked {
			span.SetStatus(codes.Error, "member blocked")
			metrics.RecordFailure(ctx, req.SessionID, "member_blocked")
			return nil, domain.ErrMemberBlocked
		}
	}

	session, err := s.sessionRepo.GetByID(ctx, req.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !session.IsBookable(time.Now()) {
		span.SetStatus(codes.Error, "session not bookable")
		metrics.RecordFailure(ctx, session.ID, "not_bookable")
		return nil, domain.ErrSessionNotBookable
	}

	// A still-pending seat claim is resumed, not duplicated
	existing, err := s.bookingRepo.GetBySessionAndMember(ctx, session.ID, memberID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if existing != nil && existing.IsActive() {
		if existing.IsPendingPayment() && !existing.IsWaitlist {
			span.SetStatus(codes.Ok, "resumed pending booking")
			return &dto.CreateBookingResponse{
				Booking: dto.FromDomain(existing),
				Payment: dto.PaymentIntentFromDomain(s.resumePaymentIntent(ctx, existing)),
				Message: "booking already exists, awaiting payment",
			}, nil
		}
		span.SetStatus(codes.Error, "already booked")
		return nil, domain.ErrAlreadyBooked
	}

	held, err := s.locker.AcquireSession(ctx, session.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionBusy) {
			metrics.RecordLockContention(ctx, session.ID)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer func() {
		if relErr := held.Release(ctx); relErr != nil {
			logger.Get().Warn("failed to release session lock",
				zap.String("session_id", session.ID),
				zap.Error(relErr),
			)
		}
	}()

	var (
		booking     *domain.Booking
		waitlisted  bool
		reactivated bool
	)
	err = s.txRunner.WithSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sessionRepo := s.sessionRepo.WithTx(tx)
		bookingRepo := s.bookingRepo.WithTx(tx)

		current, err := sessionRepo.GetByID(ctx, session.ID)
		if err != nil {
			return err
		}

		// Seats already counted plus claims still awaiting payment
		pendingClaims, err := bookingRepo.CountPendingSeatClaims(ctx, current.ID)
		if err != nil {
			return err
		}

		if current.CurrentBookings+pendingClaims >= current.MaxCapacity {
			entry, err := s.waitlist.AddEntry(ctx, tx, current, memberID, req.Notes)
			if err != nil {
				return err
			}
			booking = entry
			waitlisted = true
			return nil
		}

		now := time.Now()
		row, err := bookingRepo.GetBySessionAndMember(ctx, current.ID, memberID)
		if err != nil {
			return err
		}

		if row != nil && row.IsCancelled() {
			// Reuse the cancelled row; the partial unique index keeps
			// one live booking per member and session
			reactivated = true
			booking = row
			booking.Status = domain.BookingStatusConfirmed
			booking.IsWaitlist = false
			booking.WaitlistPosition = 0
			booking.Price = current.Price
			booking.AmountPaid = 0
			booking.Notes = req.Notes
			booking.BookedAt = now
			booking.CancelledAt = nil
			booking.CancellationReason = ""
		} else if row != nil {
			return domain.ErrAlreadyBooked
		} else {
			booking = &domain.Booking{
				ID:        uuid.New().String(),
				SessionID: current.ID,
				MemberID:  memberID,
				Status:    domain.BookingStatusConfirmed,
				Price:     current.Price,
				Notes:     req.Notes,
				BookedAt:  now,
				CreatedAt: now,
				UpdatedAt: now,
			}
		}

		if current.IsFree() {
			// Free classes claim their seat immediately
			booking.PaymentStatus = domain.PaymentStatusPaid
			booking.SeatCounted = true
		} else {
			booking.PaymentStatus = domain.PaymentStatusPending
			booking.SeatCounted = false
		}

		if reactivated {
			if err := bookingRepo.Update(ctx, booking); err != nil {
				return err
			}
		} else {
			if err := bookingRepo.Create(ctx, booking); err != nil {
				return err
			}
		}

		if booking.SeatCounted {
			if err := sessionRepo.IncrementBookings(ctx, current.ID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Payment initiation happens outside the lock to keep the critical
	// section short; on failure the claim is rolled back entirely
	var intent *domain.PaymentIntent
	if !waitlisted && booking.PaymentStatus == domain.PaymentStatusPending {
		intent, err = s.paymentClient.InitiatePayment(ctx, booking)
		if err != nil {
			s.rollbackFailedClaim(ctx, booking, reactivated)
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordFailure(ctx, session.ID, "payment_initiation")
			return nil, err
		}
		metrics.RecordPendingPayment(ctx, 1)
	}

	metrics.RecordBookingCreated(ctx, session.ID, waitlisted)
	s.publishCreated(ctx, booking, member, waitlisted)

	message := "booking confirmed"
	if waitlisted {
		message = "session full, added to waitlist"
	} else if booking.PaymentStatus == domain.PaymentStatusPending {
		message = "booking created, awaiting payment"
	}

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.Bool("waitlisted", waitlisted),
	)
	span.SetStatus(codes.Ok, "")

	return &dto.CreateBookingResponse{
		Booking:    dto.FromDomain(booking),
		Waitlisted: waitlisted,
		Payment:    dto.PaymentIntentFromDomain(intent),
		Message:    message,
	}, nil
}

// ConfirmPayment applies a payment confirmation to a booking
func (s *bookingService) ConfirmPayment(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.confirm_payment")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}
	if req == nil || req.Amount <= 0 {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, domain.ErrInvalidAmount
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if booking.IsCancelled() {
		span.SetStatus(codes.Error, "already cancelled")
		return nil, domain.ErrAlreadyCancelled
	}
	if booking.IsPaid() {
		// Duplicate confirmation callbacks are absorbed silently
		span.SetStatus(codes.Ok, "already paid")
		return dto.FromDomain(booking), nil
	}
	if booking.IsWaitlist {
		// Waitlist entries hold no seat; payment applies only after promotion
		span.SetStatus(codes.Error, "still on waitlist")
		return nil, domain.ErrStillOnWaitlist
	}
	if req.Amount != booking.Price {
		span.SetStatus(codes.Error, "amount mismatch")
		return nil, domain.ErrPaymentAmountMismatch
	}

	held, err := s.locker.AcquireSession(ctx, booking.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer func() {
		if relErr := held.Release(ctx); relErr != nil {
			logger.Get().Warn("failed to release session lock",
				zap.String("session_id", booking.SessionID),
				zap.Error(relErr),
			)
		}
	}()

	var confirmed *domain.Booking
	err = s.txRunner.WithSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sessionRepo := s.sessionRepo.WithTx(tx)
		bookingRepo := s.bookingRepo.WithTx(tx)

		current, err := bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.IsCancelled() {
			return domain.ErrAlreadyCancelled
		}
		if current.IsPaid() {
			confirmed = current
			return nil
		}
		if current.IsWaitlist {
			return domain.ErrStillOnWaitlist
		}

		current.PaymentStatus = domain.PaymentStatusPaid
		current.AmountPaid = req.Amount
		if err := bookingRepo.Update(ctx, current); err != nil {
			return err
		}

		// The seat is counted exactly once, here for bookings that
		// claimed it pending payment
		counted, err := bookingRepo.CountSeat(ctx, current.ID)
		if err != nil {
			return err
		}
		if counted {
			current.SeatCounted = true
			if err := sessionRepo.IncrementBookings(ctx, current.SessionID); err != nil {
				return err
			}
		}

		confirmed = current
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordConfirmation(ctx, confirmed.SessionID)
	metrics.RecordPendingPayment(ctx, -1)

	s.publishAsync(ctx, confirmed, func(ctx context.Context, b *domain.Booking) {
		if err := s.eventPublisher.PublishPaymentConfirmed(ctx, b); err != nil {
			logger.Get().Warn("failed to publish payment confirmed event", zap.Error(err))
		}
		s.notifier.Publish(ctx, gateway.NotifyBookingConfirmed, dto.FromDomain(b))
	})

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(confirmed), nil
}

// CancelBooking cancels a booking, refunds per policy, and attempts one
// waitlist promotion
func (s *bookingService) CancelBooking(ctx context.Context, bookingID, memberID string, req *dto.CancelBookingRequest) (*dto.CancelBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if memberID != "" && booking.MemberID != memberID {
		span.SetStatus(codes.Error, "not found for member")
		return nil, domain.ErrBookingNotFound
	}
	if booking.IsCancelled() {
		span.SetStatus(codes.Error, "already cancelled")
		return nil, domain.ErrAlreadyCancelled
	}

	session, err := s.sessionRepo.GetByID(ctx, booking.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reason := ""
	if req != nil {
		reason = req.Reason
	}

	held, err := s.locker.AcquireSession(ctx, booking.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionBusy) {
			metrics.RecordLockContention(ctx, booking.SessionID)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if relErr := held.Release(ctx); relErr != nil {
			logger.Get().Warn("failed to release session lock",
				zap.String("session_id", booking.SessionID),
				zap.Error(relErr),
			)
		}
	}
	defer release()

	var (
		cancelled   *domain.Booking
		seatFreed   bool
		wasWaitlist bool
	)
	err = s.txRunner.WithSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sessionRepo := s.sessionRepo.WithTx(tx)
		bookingRepo := s.bookingRepo.WithTx(tx)

		current, err := bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.IsCancelled() {
			return domain.ErrAlreadyCancelled
		}

		now := time.Now()
		wasWaitlist = current.IsWaitlist
		seatFreed = current.SeatCounted

		current.Status = domain.BookingStatusCancelled
		current.CancelledAt = &now
		current.CancellationReason = reason
		current.SeatCounted = false
		if wasWaitlist {
			current.WaitlistPosition = 0
		}
		if err := bookingRepo.Update(ctx, current); err != nil {
			return err
		}

		if seatFreed {
			if err := sessionRepo.DecrementBookings(ctx, current.SessionID); err != nil {
				return err
			}
		}

		if wasWaitlist {
			remaining, err := bookingRepo.RecompactWaitlistPositions(ctx, current.SessionID)
			if err != nil {
				return err
			}
			if err := sessionRepo.SetWaitlistCount(ctx, current.SessionID, remaining); err != nil {
				return err
			}
		}

		cancelled = current
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// The lease must be gone before the promotion attempt below:
	// PromoteNext takes the same session lease and would find it held
	release()

	if cancelled.PaymentStatus == domain.PaymentStatusPending {
		metrics.RecordPendingPayment(ctx, -1)
	}

	// Refund per policy; a failed refund is logged for manual follow-up
	// and never fails the cancellation
	refundAmount := s.refundPolicy.RefundFor(cancelled.AmountPaid, session.StartTime, time.Now())
	if refundAmount > 0 && s.paymentClient != nil {
		if _, err := s.paymentClient.CreateRefund(ctx, cancelled.ID, refundAmount, reason); err != nil {
			logger.Get().Error("refund failed, needs manual follow-up",
				zap.String("booking_id", cancelled.ID),
				zap.Int64("amount", refundAmount),
				zap.Error(err),
			)
			metrics.RecordRefund(ctx, cancelled.SessionID, refundAmount, true)
		} else {
			metrics.RecordRefund(ctx, cancelled.SessionID, refundAmount, false)
		}
	}

	// One promotion attempt for the freed capacity. An uncounted pending
	// claim frees a reserved spot just like a counted seat does, so any
	// non-waitlist cancellation can let an entry in. An empty waitlist or
	// a busy session is not an error for this cancellation
	if !wasWaitlist && s.waitlist != nil {
		if _, err := s.waitlist.PromoteNext(ctx, cancelled.SessionID); err != nil {
			if !errors.Is(err, domain.ErrWaitlistEntryNotFound) && !errors.Is(err, domain.ErrSessionFull) {
				logger.Get().Warn("waitlist promotion after cancel failed",
					zap.String("session_id", cancelled.SessionID),
					zap.Error(err),
				)
			}
		}
	}

	s.applyCancellationPenalties(ctx, cancelled.MemberID)

	metrics.RecordCancellation(ctx, cancelled.SessionID)
	s.publishAsync(ctx, cancelled, func(ctx context.Context, b *domain.Booking) {
		if err := s.eventPublisher.PublishBookingCancelled(ctx, b); err != nil {
			logger.Get().Warn("failed to publish cancellation event", zap.Error(err))
		}
		s.notifier.Publish(ctx, gateway.NotifyBookingCancelled, dto.FromDomain(b))
	})

	span.SetAttributes(attribute.Int64("refund_amount", refundAmount))
	span.SetStatus(codes.Ok, "")

	return &dto.CancelBookingResponse{
		BookingID:    cancelled.ID,
		Status:       string(cancelled.Status),
		RefundAmount: refundAmount,
		Message:      "booking cancelled",
	}, nil
}

// GetBooking retrieves a booking by ID
func (s *bookingService) GetBooking(ctx context.Context, bookingID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := dto.FromDomain(booking)
	if s.memberClient != nil {
		// Name enrichment is best effort
		if member, err := s.memberClient.GetMember(ctx, booking.MemberID); err == nil {
			resp.MemberName = member.FullName()
		}
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// GetMemberBookings retrieves a member's bookings, newest first
func (s *bookingService) GetMemberBookings(ctx context.Context, memberID string, limit, offset int) (*dto.BookingListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get_member_bookings")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", memberID))

	if memberID == "" {
		span.SetStatus(codes.Error, "invalid member_id")
		return nil, domain.ErrInvalidMemberID
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.bookingRepo.GetByMemberID(ctx, memberID, limit, offset)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	total, err := s.bookingRepo.CountByMemberID(ctx, memberID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := &dto.BookingListResponse{
		Bookings: make([]*dto.BookingResponse, 0, len(bookings)),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}
	for _, b := range bookings {
		resp.Bookings = append(resp.Bookings, dto.FromDomain(b))
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// resumePaymentIntent recovers the billing handle for a resumed
// payment-pending booking, falling back to a fresh charge when the
// original intent is not on file; a nil result just means the client
// has to retry checkout
func (s *bookingService) resumePaymentIntent(ctx context.Context, booking *domain.Booking) *domain.PaymentIntent {
	if s.paymentClient == nil {
		return nil
	}

	intent, err := s.paymentClient.FindIntentByReference(ctx, booking.ID)
	if err != nil {
		logger.Get().Warn("payment intent lookup failed",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}
	if intent != nil {
		return intent
	}

	intent, err = s.paymentClient.InitiatePayment(ctx, booking)
	if err != nil {
		logger.Get().Warn("payment re-initiation for resumed booking failed",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
		return nil
	}
	return intent
}

// rollbackFailedClaim removes the seat claim left by a failed payment
// initiation
func (s *bookingService) rollbackFailedClaim(ctx context.Context, booking *domain.Booking, reactivated bool) {
	err := s.txRunner.WithSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		bookingRepo := s.bookingRepo.WithTx(tx)
		if reactivated {
			now := time.Now()
			booking.Status = domain.BookingStatusCancelled
			booking.CancelledAt = &now
			booking.CancellationReason = "payment initiation failed"
			return bookingRepo.Update(ctx, booking)
		}
		return bookingRepo.Delete(ctx, booking.ID)
	})
	if err != nil {
		logger.Get().Error("failed to roll back booking after payment initiation failure",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}
}

// applyCancellationPenalties enforces the cancellation abuse policy
func (s *bookingService) applyCancellationPenalties(ctx context.Context, memberID string) {
	since := time.Now().Add(-s.cancellationPolicy.Window)
	count, err := s.bookingRepo.CountRecentCancellations(ctx, memberID, since)
	if err != nil {
		logger.Get().Warn("failed to count recent cancellations",
			zap.String("member_id", memberID),
			zap.Error(err),
		)
		return
	}

	if s.cancellationPolicy.ShouldBlock(count) {
		if s.blockStore != nil {
			if err := s.blockStore.Block(ctx, memberID, s.cancellationPolicy.BlockDuration); err != nil {
				logger.Get().Error("failed to place booking block",
					zap.String("member_id", memberID),
					zap.Error(err),
				)
			}
		}
		s.notifier.Publish(ctx, gateway.NotifyMemberBlocked, map[string]interface{}{
			"member_id":     memberID,
			"cancellations": count,
			"blocked_until": time.Now().Add(s.cancellationPolicy.BlockDuration).UTC(),
		})
		return
	}

	if s.cancellationPolicy.ShouldDeductPoints(count) {
		s.notifier.Publish(ctx, gateway.NotifyCancellationPenalty, map[string]interface{}{
			"member_id":     memberID,
			"cancellations": count,
		})
	}
}

// publishCreated emits the created/waitlisted events and notifications
func (s *bookingService) publishCreated(ctx context.Context, booking *domain.Booking, member *domain.Member, waitlisted bool) {
	s.publishAsync(ctx, booking, func(ctx context.Context, b *domain.Booking) {
		if waitlisted {
			if err := s.eventPublisher.PublishWaitlistJoined(ctx, b); err != nil {
				logger.Get().Warn("failed to publish waitlist joined event", zap.Error(err))
			}
			s.notifier.Publish(ctx, gateway.NotifyWaitlistJoined, dto.FromDomain(b))
		} else {
			if err := s.eventPublisher.PublishBookingCreated(ctx, b); err != nil {
				logger.Get().Warn("failed to publish booking created event", zap.Error(err))
			}
		}
		s.notifier.Publish(ctx, gateway.NotifyStaffBookingAlert, map[string]interface{}{
			"booking_id":  b.ID,
			"session_id":  b.SessionID,
			"member_id":   b.MemberID,
			"member_name": member.FullName(),
			"waitlisted":  waitlisted,
		})
	})
}

// publishAsync runs the publish function detached from the request
func (s *bookingService) publishAsync(ctx context.Context, booking *domain.Booking, fn func(ctx context.Context, b *domain.Booking)) {
	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, 10*time.Second)
		defer cancel()
		fn(ctx, booking)
	}()
}
