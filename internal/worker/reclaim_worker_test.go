package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/internal/dto"
	"github.com/fitverse/class-booking/internal/repository"
	"github.com/fitverse/class-booking/internal/service"
)

type mockSessionRepo struct {
	decrements []string
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return nil, domain.ErrSessionNotFound
}

func (m *mockSessionRepo) IncrementBookings(ctx context.Context, id string) error { return nil }

func (m *mockSessionRepo) DecrementBookings(ctx context.Context, id string) error {
	m.decrements = append(m.decrements, id)
	return nil
}

func (m *mockSessionRepo) SetWaitlistCount(ctx context.Context, id string, count int) error {
	return nil
}

func (m *mockSessionRepo) WithTx(tx pgx.Tx) repository.SessionRepository { return m }

type mockBookingRepo struct {
	bookings map[string]*domain.Booking
	stale    []*domain.Booking
	updated  []*domain.Booking
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[string]*domain.Booking)}
}

func (m *mockBookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	m.bookings[b.ID] = b
	return nil
}

func (m *mockBookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if b, ok := m.bookings[id]; ok {
		return b, nil
	}
	return nil, domain.ErrBookingNotFound
}

func (m *mockBookingRepo) GetBySessionAndMember(ctx context.Context, sessionID, memberID string) (*domain.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepo) Update(ctx context.Context, b *domain.Booking) error {
	m.bookings[b.ID] = b
	m.updated = append(m.updated, b)
	return nil
}

func (m *mockBookingRepo) Delete(ctx context.Context, id string) error {
	delete(m.bookings, id)
	return nil
}

func (m *mockBookingRepo) GetByMemberID(ctx context.Context, memberID string, limit, offset int) ([]*domain.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepo) CountByMemberID(ctx context.Context, memberID string) (int, error) {
	return 0, nil
}

func (m *mockBookingRepo) CountSeat(ctx context.Context, id string) (bool, error) { return true, nil }

func (m *mockBookingRepo) CountPendingSeatClaims(ctx context.Context, sessionID string) (int, error) {
	return 0, nil
}

func (m *mockBookingRepo) GetWaitlist(ctx context.Context, sessionID string) ([]*domain.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepo) GetNextWaitlistEntry(ctx context.Context, sessionID string) (*domain.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepo) CountActiveWaitlist(ctx context.Context, sessionID string) (int, error) {
	return 0, nil
}

func (m *mockBookingRepo) RecompactWaitlistPositions(ctx context.Context, sessionID string) (int, error) {
	return 0, nil
}

func (m *mockBookingRepo) GetStalePendingBookings(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	return m.stale, nil
}

func (m *mockBookingRepo) CountRecentCancellations(ctx context.Context, memberID string, since time.Time) (int, error) {
	return 0, nil
}

func (m *mockBookingRepo) WithTx(tx pgx.Tx) repository.BookingRepository { return m }

type mockTxRunner struct{}

func (m *mockTxRunner) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type mockLock struct {
	locker    *mockLocker
	sessionID string
}

func (m *mockLock) Release(ctx context.Context) error {
	delete(m.locker.held, m.sessionID)
	return nil
}

// mockLocker is exclusive like the Redis lease: a session stays busy
// until its holder releases it
type mockLocker struct {
	busySessions map[string]bool
	held         map[string]bool
	acquired     []string
}

func (m *mockLocker) AcquireSession(ctx context.Context, sessionID string) (service.SessionLock, error) {
	if m.busySessions[sessionID] || m.held[sessionID] {
		return nil, domain.ErrSessionBusy
	}
	if m.held == nil {
		m.held = make(map[string]bool)
	}
	m.held[sessionID] = true
	m.acquired = append(m.acquired, sessionID)
	return &mockLock{locker: m, sessionID: sessionID}, nil
}

type mockWaitlist struct {
	promoted  []string
	promoteFn func(sessionID string) (*dto.PromoteResponse, error)
}

func (m *mockWaitlist) AddEntry(ctx context.Context, tx pgx.Tx, session *domain.Session, memberID, notes string) (*domain.Booking, error) {
	return nil, nil
}

func (m *mockWaitlist) PromoteNext(ctx context.Context, sessionID string) (*dto.PromoteResponse, error) {
	if m.promoteFn != nil {
		return m.promoteFn(sessionID)
	}
	m.promoted = append(m.promoted, sessionID)
	return &dto.PromoteResponse{Booking: &dto.BookingResponse{ID: uuid.New().String()}}, nil
}

func (m *mockWaitlist) RemoveEntry(ctx context.Context, bookingID string) error { return nil }

func (m *mockWaitlist) ListWaitlist(ctx context.Context, sessionID string) (*dto.WaitlistResponse, error) {
	return &dto.WaitlistResponse{SessionID: sessionID}, nil
}

func (m *mockWaitlist) NotifyAvailability(ctx context.Context, sessionID string, topN int) {}

func staleBooking(sessionID string, seatCounted bool) *domain.Booking {
	return &domain.Booking{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		MemberID:      uuid.New().String(),
		Status:        domain.BookingStatusConfirmed,
		PaymentStatus: domain.PaymentStatusPending,
		SeatCounted:   seatCounted,
		Price:         50000,
		BookedAt:      time.Now().Add(-time.Hour),
	}
}

func newTestWorker(sessions *mockSessionRepo, bookings *mockBookingRepo, locker *mockLocker, waitlist *mockWaitlist) *ReclaimWorker {
	return NewReclaimWorker(ReclaimWorkerDeps{
		SessionRepo: sessions,
		BookingRepo: bookings,
		TxRunner:    &mockTxRunner{},
		Locker:      locker,
		Waitlist:    waitlist,
	})
}

func TestReclaimWorker_ReclaimsStaleBooking(t *testing.T) {
	sessions := &mockSessionRepo{}
	bookings := newMockBookingRepo()
	locker := &mockLocker{}
	waitlist := &mockWaitlist{}

	b := staleBooking("session-1", true)
	require.NoError(t, bookings.Create(context.Background(), b))
	bookings.stale = []*domain.Booking{b}

	w := newTestWorker(sessions, bookings, locker, waitlist)
	w.processStaleBookings(context.Background())

	got := bookings.bookings[b.ID]
	assert.Equal(t, domain.BookingStatusCancelled, got.Status)
	assert.Equal(t, "payment window expired", got.CancellationReason)
	assert.False(t, got.SeatCounted)
	assert.NotNil(t, got.CancelledAt)

	// The counted seat is released and offered to the waitlist
	assert.Equal(t, []string{"session-1"}, sessions.decrements)
	assert.Equal(t, []string{"session-1"}, waitlist.promoted)

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.TotalReclaimed)
	assert.Equal(t, int64(1), stats.TotalPromoted)
	assert.Equal(t, 1, stats.LastBatchCount)
}

func TestReclaimWorker_UncountedClaimFreesNoSeat(t *testing.T) {
	sessions := &mockSessionRepo{}
	bookings := newMockBookingRepo()
	locker := &mockLocker{}
	waitlist := &mockWaitlist{}

	b := staleBooking("session-1", false)
	require.NoError(t, bookings.Create(context.Background(), b))
	bookings.stale = []*domain.Booking{b}

	w := newTestWorker(sessions, bookings, locker, waitlist)
	w.processStaleBookings(context.Background())

	assert.Equal(t, domain.BookingStatusCancelled, bookings.bookings[b.ID].Status)
	assert.Empty(t, sessions.decrements)
}

func TestReclaimWorker_SkipsPaidBooking(t *testing.T) {
	sessions := &mockSessionRepo{}
	bookings := newMockBookingRepo()
	locker := &mockLocker{}
	waitlist := &mockWaitlist{}

	// Payment landed between the scan and the lock
	b := staleBooking("session-1", true)
	require.NoError(t, bookings.Create(context.Background(), b))
	bookings.stale = []*domain.Booking{b}
	b.PaymentStatus = domain.PaymentStatusPaid

	w := newTestWorker(sessions, bookings, locker, waitlist)
	w.processStaleBookings(context.Background())

	assert.Equal(t, domain.BookingStatusConfirmed, bookings.bookings[b.ID].Status)
	assert.Empty(t, bookings.updated)
	assert.Empty(t, sessions.decrements)
	assert.Empty(t, waitlist.promoted)
}

func TestReclaimWorker_BusySessionRetriedNextScan(t *testing.T) {
	sessions := &mockSessionRepo{}
	bookings := newMockBookingRepo()
	locker := &mockLocker{busySessions: map[string]bool{"session-busy": true}}
	waitlist := &mockWaitlist{}

	busy := staleBooking("session-busy", true)
	free := staleBooking("session-free", true)
	require.NoError(t, bookings.Create(context.Background(), busy))
	require.NoError(t, bookings.Create(context.Background(), free))
	bookings.stale = []*domain.Booking{busy, free}

	w := newTestWorker(sessions, bookings, locker, waitlist)
	w.processStaleBookings(context.Background())

	// The busy session is left untouched, the rest of the batch proceeds
	assert.Equal(t, domain.BookingStatusConfirmed, bookings.bookings[busy.ID].Status)
	assert.Equal(t, domain.BookingStatusCancelled, bookings.bookings[free.ID].Status)
	assert.Equal(t, int64(1), w.GetStats().TotalReclaimed)
}

func TestReclaimWorker_PromotionAcquiresFreshLease(t *testing.T) {
	sessions := &mockSessionRepo{}
	bookings := newMockBookingRepo()
	locker := &mockLocker{}

	// Promotion goes through the same session lease the reclaim itself
	// takes; the worker must have let go of it by then
	waitlist := &mockWaitlist{}
	waitlist.promoteFn = func(sessionID string) (*dto.PromoteResponse, error) {
		held, err := locker.AcquireSession(context.Background(), sessionID)
		if err != nil {
			return nil, err
		}
		defer held.Release(context.Background())
		waitlist.promoted = append(waitlist.promoted, sessionID)
		return &dto.PromoteResponse{Booking: &dto.BookingResponse{ID: uuid.New().String()}}, nil
	}

	b := staleBooking("session-1", true)
	require.NoError(t, bookings.Create(context.Background(), b))
	bookings.stale = []*domain.Booking{b}

	w := newTestWorker(sessions, bookings, locker, waitlist)
	w.processStaleBookings(context.Background())

	assert.Equal(t, []string{"session-1"}, waitlist.promoted)
	assert.Equal(t, int64(1), w.GetStats().TotalPromoted)
	assert.Empty(t, locker.held, "all leases must be released after the batch")
}

func TestReclaimWorker_EmptyWaitlistTolerated(t *testing.T) {
	sessions := &mockSessionRepo{}
	bookings := newMockBookingRepo()
	locker := &mockLocker{}
	waitlist := &mockWaitlist{
		promoteFn: func(sessionID string) (*dto.PromoteResponse, error) {
			return nil, domain.ErrWaitlistEntryNotFound
		},
	}

	b := staleBooking("session-1", true)
	require.NoError(t, bookings.Create(context.Background(), b))
	bookings.stale = []*domain.Booking{b}

	w := newTestWorker(sessions, bookings, locker, waitlist)
	w.processStaleBookings(context.Background())

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.TotalReclaimed)
	assert.Equal(t, int64(0), stats.TotalPromoted)
}

func TestReclaimWorker_StartStop(t *testing.T) {
	w := newTestWorker(&mockSessionRepo{}, newMockBookingRepo(), &mockLocker{}, &mockWaitlist{})

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second Start must fail")
	assert.True(t, w.GetStats().IsRunning)

	w.Stop()
	assert.False(t, w.GetStats().IsRunning)

	// Stopping twice is safe
	w.Stop()
}
