package service

import (
	"context"
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

// WaitlistService manages a session's FIFO waitlist
type WaitlistService interface {
	// AddEntry appends the member to the session's waitlist inside the
	// caller's transaction and returns the new entry
	AddEntry(ctx context.Context, tx pgx.Tx, session *domain.Session, memberID, notes string) (*domain.Booking, error)

	// PromoteNext moves the lowest-position entry into a free seat;
	// returns domain.ErrSessionFull when no seat is free and
	// domain.ErrWaitlistEntryNotFound when the waitlist is empty
	PromoteNext(ctx context.Context, sessionID string) (*dto.PromoteResponse, error)

	// RemoveEntry takes a member off the waitlist and closes the gap
	RemoveEntry(ctx context.Context, bookingID string) error

	// ListWaitlist returns the session's waitlist in position order
	ListWaitlist(ctx context.Context, sessionID string) (*dto.WaitlistResponse, error)

	// NotifyAvailability tells the first topN entries that a spot
	// opened up; delivery is best effort
	NotifyAvailability(ctx context.Context, sessionID string, topN int)
}

// waitlistService implements WaitlistService
type waitlistService struct {
	sessionRepo    repository.SessionRepository
	bookingRepo    repository.BookingRepository
	txRunner       TxRunner
	locker         SessionLocker
	paymentClient  gateway.PaymentClient
	memberClient   gateway.MemberClient
	notifier       gateway.Notifier
	eventPublisher EventPublisher
}

// WaitlistServiceDeps contains the collaborators of the waitlist service
type WaitlistServiceDeps struct {
	SessionRepo    repository.SessionRepository
	BookingRepo    repository.BookingRepository
	TxRunner       TxRunner
	Locker         SessionLocker
	PaymentClient  gateway.PaymentClient
	MemberClient   gateway.MemberClient
	Notifier       gateway.Notifier
	EventPublisher EventPublisher
}

// NewWaitlistService creates a new waitlist service
func NewWaitlistService(deps WaitlistServiceDeps) WaitlistService {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = gateway.NewNoOpNotifier()
	}
	eventPublisher := deps.EventPublisher
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &waitlistService{
		sessionRepo:    deps.SessionRepo,
		bookingRepo:    deps.BookingRepo,
		txRunner:       deps.TxRunner,
		locker:         deps.Locker,
		paymentClient:  deps.PaymentClient,
		memberClient:   deps.MemberClient,
		notifier:       notifier,
		eventPublisher: eventPublisher,
	}
}

// AddEntry appends the member to the session's waitlist inside the
// caller's transaction
func (s *waitlistService) AddEntry(ctx context.Context, tx pgx.Tx, session *domain.Session, memberID, notes string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.add_entry")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", session.ID),
		attribute.String("member_id", memberID),
	)

	bookingRepo := s.bookingRepo.WithTx(tx)
	sessionRepo := s.sessionRepo.WithTx(tx)

	count, err := bookingRepo.CountActiveWaitlist(ctx, session.ID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now()
	existing, err := bookingRepo.GetBySessionAndMember(ctx, session.ID, memberID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var entry *domain.Booking
	if existing != nil && existing.IsCancelled() {
		// Reactivate the cancelled row as a fresh waitlist entry
		entry = existing
		entry.Status = domain.BookingStatusConfirmed
		entry.IsWaitlist = true
		entry.WaitlistPosition = count + 1
		entry.PaymentStatus = domain.PaymentStatusPending
		entry.AmountPaid = 0
		entry.SeatCounted = false
		entry.Notes = notes
		entry.BookedAt = now
		entry.CancelledAt = nil
		entry.CancellationReason = ""
		if err := bookingRepo.Update(ctx, entry); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	} else if existing != nil {
		span.SetStatus(codes.Error, "already booked")
		return nil, domain.ErrAlreadyBooked
	} else {
		entry = &domain.Booking{
			ID:               uuid.New().String(),
			SessionID:        session.ID,
			MemberID:         memberID,
			Status:           domain.BookingStatusConfirmed,
			IsWaitlist:       true,
			WaitlistPosition: count + 1,
			PaymentStatus:    domain.PaymentStatusPending,
			Price:            session.Price,
			Notes:            notes,
			BookedAt:         now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := bookingRepo.Create(ctx, entry); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if err := sessionRepo.SetWaitlistCount(ctx, session.ID, count+1); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("position", entry.WaitlistPosition))
	span.SetStatus(codes.Ok, "")
	return entry, nil
}

// PromoteNext moves the lowest-position entry into a free seat
func (s *waitlistService) PromoteNext(ctx context.Context, sessionID string) (*dto.PromoteResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.promote_next")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	if sessionID == "" {
		span.SetStatus(codes.Error, "invalid session_id")
		return nil, domain.ErrInvalidSessionID
	}

	held, err := s.locker.AcquireSession(ctx, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer func() {
		if relErr := held.Release(ctx); relErr != nil {
			logger.Get().Warn("failed to release session lock",
				zap.String("session_id", sessionID),
				zap.Error(relErr),
			)
		}
	}()

	var promoted *domain.Booking
	err = s.txRunner.WithSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sessionRepo := s.sessionRepo.WithTx(tx)
		bookingRepo := s.bookingRepo.WithTx(tx)

		session, err := sessionRepo.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}

		// Uncounted pending claims hold capacity too; promoting past them
		// would oversubscribe the session once those claims pay
		pendingClaims, err := bookingRepo.CountPendingSeatClaims(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.CurrentBookings+pendingClaims >= session.MaxCapacity {
			return domain.ErrSessionFull
		}

		entry, err := bookingRepo.GetNextWaitlistEntry(ctx, sessionID)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrWaitlistEntryNotFound
		}

		// The seat is claimed at promotion time; a paid class keeps the
		// promoted booking payment-pending until the member pays
		entry.IsWaitlist = false
		entry.WaitlistPosition = 0
		entry.SeatCounted = true
		if session.IsFree() {
			entry.PaymentStatus = domain.PaymentStatusPaid
		}
		if err := bookingRepo.Update(ctx, entry); err != nil {
			return err
		}

		if err := sessionRepo.IncrementBookings(ctx, sessionID); err != nil {
			return err
		}

		remaining, err := bookingRepo.RecompactWaitlistPositions(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := sessionRepo.SetWaitlistCount(ctx, sessionID, remaining); err != nil {
			return err
		}

		promoted = entry
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Payment for a paid class starts outside the lock; if it never
	// completes, the reclaim worker frees the seat
	message := "promoted from waitlist"
	if promoted.PaymentStatus == domain.PaymentStatusPending && s.paymentClient != nil {
		if _, err := s.paymentClient.InitiatePayment(ctx, promoted); err != nil {
			logger.Get().Warn("payment initiation after promotion failed",
				zap.String("booking_id", promoted.ID),
				zap.Error(err),
			)
			message = "promoted from waitlist, payment initiation pending"
		} else {
			message = "promoted from waitlist, awaiting payment"
		}
	}

	s.publishAsync(ctx, promoted, func(ctx context.Context, b *domain.Booking) {
		if err := s.eventPublisher.PublishWaitlistPromoted(ctx, b); err != nil {
			logger.Get().Warn("failed to publish promotion event", zap.Error(err))
		}
		s.notifier.Publish(ctx, gateway.NotifyWaitlistPromoted, dto.FromDomain(b))
	})

	metrics.RecordPromotion(ctx, sessionID)
	span.SetAttributes(attribute.String("booking_id", promoted.ID))
	span.SetStatus(codes.Ok, "")

	return &dto.PromoteResponse{
		Booking: dto.FromDomain(promoted),
		Message: message,
	}, nil
}

// RemoveEntry takes a member off the waitlist and closes the gap
func (s *waitlistService) RemoveEntry(ctx context.Context, bookingID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.remove_entry")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return domain.ErrInvalidBookingID
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !booking.IsWaitlist || booking.IsCancelled() {
		span.SetStatus(codes.Error, "not on waitlist")
		return domain.ErrWaitlistEntryNotFound
	}

	held, err := s.locker.AcquireSession(ctx, booking.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer func() {
		if relErr := held.Release(ctx); relErr != nil {
			logger.Get().Warn("failed to release session lock",
				zap.String("session_id", booking.SessionID),
				zap.Error(relErr),
			)
		}
	}()

	var removed *domain.Booking
	err = s.txRunner.WithSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sessionRepo := s.sessionRepo.WithTx(tx)
		bookingRepo := s.bookingRepo.WithTx(tx)

		current, err := bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if !current.IsWaitlist || current.IsCancelled() {
			return domain.ErrWaitlistEntryNotFound
		}

		now := time.Now()
		current.Status = domain.BookingStatusCancelled
		current.CancelledAt = &now
		current.CancellationReason = "left waitlist"
		if err := bookingRepo.Update(ctx, current); err != nil {
			return err
		}

		remaining, err := bookingRepo.RecompactWaitlistPositions(ctx, current.SessionID)
		if err != nil {
			return err
		}
		if err := sessionRepo.SetWaitlistCount(ctx, current.SessionID, remaining); err != nil {
			return err
		}

		removed = current
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.publishAsync(ctx, removed, func(ctx context.Context, b *domain.Booking) {
		if err := s.eventPublisher.PublishBookingCancelled(ctx, b); err != nil {
			logger.Get().Warn("failed to publish cancellation event", zap.Error(err))
		}
	})

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListWaitlist returns the session's waitlist in position order
func (s *waitlistService) ListWaitlist(ctx context.Context, sessionID string) (*dto.WaitlistResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.list")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	if sessionID == "" {
		span.SetStatus(codes.Error, "invalid session_id")
		return nil, domain.ErrInvalidSessionID
	}

	if _, err := s.sessionRepo.GetByID(ctx, sessionID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	entries, err := s.bookingRepo.GetWaitlist(ctx, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := &dto.WaitlistResponse{
		SessionID: sessionID,
		Count:     len(entries),
		Entries:   make([]*dto.WaitlistEntryResponse, 0, len(entries)),
	}

	memberIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		memberIDs = append(memberIDs, entry.MemberID)
	}

	// Member names are decoration; directory failures must not break
	// the listing
	var members map[string]*domain.Member
	if s.memberClient != nil && len(memberIDs) > 0 {
		members, _ = s.memberClient.GetMembers(ctx, memberIDs)
	}

	for _, entry := range entries {
		item := dto.WaitlistEntryFromDomain(entry)
		if member, ok := members[entry.MemberID]; ok {
			item.MemberName = member.FullName()
		}
		resp.Entries = append(resp.Entries, item)
	}

	span.SetAttributes(attribute.Int("count", len(entries)))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// NotifyAvailability tells the first topN entries that a spot opened up
func (s *waitlistService) NotifyAvailability(ctx context.Context, sessionID string, topN int) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.notify_availability")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("top_n", topN),
	)

	if topN <= 0 {
		topN = 3
	}

	entries, err := s.bookingRepo.GetWaitlist(ctx, sessionID)
	if err != nil {
		logger.Get().Warn("failed to load waitlist for notification",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	for i, entry := range entries {
		if i >= topN {
			break
		}
		s.notifier.Publish(ctx, gateway.NotifySpotAvailable, dto.WaitlistEntryFromDomain(entry))
	}

	span.SetStatus(codes.Ok, "")
}

// publishAsync runs the publish function in the background, detached
// from the request's cancellation
func (s *waitlistService) publishAsync(ctx context.Context, booking *domain.Booking, fn func(ctx context.Context, b *domain.Booking)) {
	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, 10*time.Second)
		defer cancel()
		fn(ctx, booking)
	}()
}
