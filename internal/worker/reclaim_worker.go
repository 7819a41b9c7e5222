package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/internal/metrics"
	"github.com/fitverse/class-booking/internal/repository"
	"github.com/fitverse/class-booking/internal/service"
	"github.com/fitverse/class-booking/pkg/logger"
)

// ReclaimWorkerConfig contains configuration for the reclaim worker
type ReclaimWorkerConfig struct {
	// ScanInterval is the interval between scans for stale pending bookings
	ScanInterval time.Duration
	// PaymentTTL is how long a booking may sit awaiting payment before
	// its seat claim is reclaimed
	PaymentTTL time.Duration
	// BatchSize is the number of bookings to process in each scan
	BatchSize int
}

// DefaultReclaimWorkerConfig returns default configuration
func DefaultReclaimWorkerConfig() *ReclaimWorkerConfig {
	return &ReclaimWorkerConfig{
		ScanInterval: 30 * time.Second,
		PaymentTTL:   15 * time.Minute,
		BatchSize:    100,
	}
}

// ReclaimWorker scans for bookings whose payment window lapsed, cancels
// them, and hands the freed capacity to the waitlist
type ReclaimWorker struct {
	sessionRepo    repository.SessionRepository
	bookingRepo    repository.BookingRepository
	txRunner       service.TxRunner
	locker         service.SessionLocker
	waitlist       service.WaitlistService
	eventPublisher service.EventPublisher
	config         *ReclaimWorkerConfig
	log            *logger.Logger
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool

	// Stats
	totalReclaimed int64
	totalPromoted  int64
	lastScanTime   time.Time
	lastBatchCount int
}

// ReclaimWorkerDeps contains the collaborators of the reclaim worker
type ReclaimWorkerDeps struct {
	SessionRepo    repository.SessionRepository
	BookingRepo    repository.BookingRepository
	TxRunner       service.TxRunner
	Locker         service.SessionLocker
	Waitlist       service.WaitlistService
	EventPublisher service.EventPublisher
	Config         *ReclaimWorkerConfig
}

// NewReclaimWorker creates a new reclaim worker
func NewReclaimWorker(deps ReclaimWorkerDeps) *ReclaimWorker {
	cfg := deps.Config
	if cfg == nil {
		cfg = DefaultReclaimWorkerConfig()
	}
	eventPublisher := deps.EventPublisher
	if eventPublisher == nil {
		eventPublisher = service.NewNoOpEventPublisher()
	}

	return &ReclaimWorker{
		sessionRepo:    deps.SessionRepo,
		bookingRepo:    deps.BookingRepo,
		txRunner:       deps.TxRunner,
		locker:         deps.Locker,
		waitlist:       deps.Waitlist,
		eventPublisher: eventPublisher,
		config:         cfg,
		log:            logger.Get(),
		stopCh:         make(chan struct{}),
	}
}

// Start starts the reclaim worker
func (w *ReclaimWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("reclaim worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting reclaim worker")

	w.wg.Add(1)
	go w.scanStaleBookings(ctx)

	return nil
}

// Stop stops the reclaim worker
func (w *ReclaimWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping reclaim worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Reclaim worker stopped")
}

// scanStaleBookings periodically scans for stale pending bookings
func (w *ReclaimWorker) scanStaleBookings(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.processStaleBookings(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processStaleBookings(ctx)
		}
	}
}

// processStaleBookings fetches and reclaims stale pending bookings
func (w *ReclaimWorker) processStaleBookings(ctx context.Context) {
	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.mu.Unlock()

	cutoff := time.Now().Add(-w.config.PaymentTTL)
	stale, err := w.bookingRepo.GetStalePendingBookings(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to get stale pending bookings: %v", err))
		return
	}

	if len(stale) == 0 {
		return
	}

	w.log.Info(fmt.Sprintf("Found %d stale pending bookings to reclaim", len(stale)))
	w.mu.Lock()
	w.lastBatchCount = len(stale)
	w.mu.Unlock()

	for _, booking := range stale {
		if err := w.reclaimBooking(ctx, booking); err != nil {
			// A busy session is retried on the next scan
			if errors.Is(err, domain.ErrSessionBusy) {
				w.log.Debug(fmt.Sprintf("Session %s busy, will retry booking %s next scan",
					booking.SessionID, booking.ID))
				continue
			}
			w.log.Error(fmt.Sprintf("Failed to reclaim booking %s: %v", booking.ID, err))
			continue
		}
		metrics.RecordSeatReclaimed(ctx, booking.SessionID, 1)
		w.mu.Lock()
		w.totalReclaimed++
		w.mu.Unlock()
	}
}

// reclaimBooking cancels a single stale booking and promotes from the
// waitlist when the cancellation freed capacity
func (w *ReclaimWorker) reclaimBooking(ctx context.Context, booking *domain.Booking) error {
	held, err := w.locker.AcquireSession(ctx, booking.SessionID)
	if err != nil {
		return err
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if relErr := held.Release(ctx); relErr != nil {
			w.log.Warn(fmt.Sprintf("Failed to release session lock %s: %v", booking.SessionID, relErr))
		}
	}
	defer release()

	var (
		cancelled *domain.Booking
		seatFreed bool
	)
	err = w.txRunner.WithSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sessionRepo := w.sessionRepo.WithTx(tx)
		bookingRepo := w.bookingRepo.WithTx(tx)

		current, err := bookingRepo.GetByID(ctx, booking.ID)
		if err != nil {
			return err
		}
		// Payment may have landed between the scan and the lock
		if current.IsCancelled() || current.IsPaid() {
			return nil
		}

		now := time.Now()
		seatFreed = current.SeatCounted

		current.Status = domain.BookingStatusCancelled
		current.CancelledAt = &now
		current.CancellationReason = "payment window expired"
		current.SeatCounted = false
		if err := bookingRepo.Update(ctx, current); err != nil {
			return err
		}

		if seatFreed {
			if err := sessionRepo.DecrementBookings(ctx, current.SessionID); err != nil {
				return err
			}
		}

		cancelled = current
		return nil
	})
	if err != nil {
		return err
	}
	if cancelled == nil {
		return nil
	}

	// PromoteNext takes the same session lease; it must be free by then
	release()

	metrics.RecordPendingPayment(ctx, -1)

	if err := w.eventPublisher.PublishSeatReclaimed(ctx, cancelled); err != nil {
		w.log.Warn(fmt.Sprintf("Failed to publish seat reclaimed event for %s: %v", cancelled.ID, err))
	}

	w.log.Info(fmt.Sprintf("Reclaimed booking %s (session: %s, member: %s)",
		cancelled.ID, cancelled.SessionID, cancelled.MemberID))

	// The reclaimed claim frees one spot; offer it to the waitlist
	if w.waitlist != nil {
		if _, err := w.waitlist.PromoteNext(ctx, cancelled.SessionID); err != nil {
			if !errors.Is(err, domain.ErrWaitlistEntryNotFound) && !errors.Is(err, domain.ErrSessionFull) {
				w.log.Warn(fmt.Sprintf("Waitlist promotion after reclaim failed for session %s: %v",
					cancelled.SessionID, err))
			}
		} else {
			w.mu.Lock()
			w.totalPromoted++
			w.mu.Unlock()
		}
	}

	return nil
}

// GetStats returns worker statistics
func (w *ReclaimWorker) GetStats() *ReclaimWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ReclaimWorkerStats{
		IsRunning:      w.running,
		TotalReclaimed: w.totalReclaimed,
		TotalPromoted:  w.totalPromoted,
		LastScanTime:   w.lastScanTime,
		LastBatchCount: w.lastBatchCount,
	}
}

// ReclaimWorkerStats contains worker statistics
type ReclaimWorkerStats struct {
	IsRunning      bool      `json:"is_running"`
	TotalReclaimed int64     `json:"total_reclaimed"`
	TotalPromoted  int64     `json:"total_promoted"`
	LastScanTime   time.Time `json:"last_scan_time"`
	LastBatchCount int       `json:"last_batch_count"`
}
