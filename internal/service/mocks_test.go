package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/internal/repository"
)

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	GetByIDFunc           func(ctx context.Context, id string) (*domain.Session, error)
	IncrementBookingsFunc func(ctx context.Context, id string) error
	DecrementBookingsFunc func(ctx context.Context, id string) error
	SetWaitlistCountFunc  func(ctx context.Context, id string, count int) error
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockSessionRepository) IncrementBookings(ctx context.Context, id string) error {
	if m.IncrementBookingsFunc != nil {
		return m.IncrementBookingsFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionRepository) DecrementBookings(ctx context.Context, id string) error {
	if m.DecrementBookingsFunc != nil {
		return m.DecrementBookingsFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionRepository) SetWaitlistCount(ctx context.Context, id string, count int) error {
	if m.SetWaitlistCountFunc != nil {
		return m.SetWaitlistCountFunc(ctx, id, count)
	}
	return nil
}

func (m *MockSessionRepository) WithTx(tx pgx.Tx) repository.SessionRepository {
	return m
}

// MockBookingRepository is a mock implementation of BookingRepository
type MockBookingRepository struct {
	CreateFunc                     func(ctx context.Context, booking *domain.Booking) error
	GetByIDFunc                    func(ctx context.Context, id string) (*domain.Booking, error)
	GetBySessionAndMemberFunc      func(ctx context.Context, sessionID, memberID string) (*domain.Booking, error)
	UpdateFunc                     func(ctx context.Context, booking *domain.Booking) error
	DeleteFunc                     func(ctx context.Context, id string) error
	GetByMemberIDFunc              func(ctx context.Context, memberID string, limit, offset int) ([]*domain.Booking, error)
	CountByMemberIDFunc            func(ctx context.Context, memberID string) (int, error)
	CountSeatFunc                  func(ctx context.Context, id string) (bool, error)
	CountPendingSeatClaimsFunc     func(ctx context.Context, sessionID string) (int, error)
	GetWaitlistFunc                func(ctx context.Context, sessionID string) ([]*domain.Booking, error)
	GetNextWaitlistEntryFunc       func(ctx context.Context, sessionID string) (*domain.Booking, error)
	CountActiveWaitlistFunc        func(ctx context.Context, sessionID string) (int, error)
	RecompactWaitlistPositionsFunc func(ctx context.Context, sessionID string) (int, error)
	GetStalePendingBookingsFunc    func(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error)
	CountRecentCancellationsFunc   func(ctx context.Context, memberID string, since time.Time) (int, error)
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, booking)
	}
	return nil
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) GetBySessionAndMember(ctx context.Context, sessionID, memberID string) (*domain.Booking, error) {
	if m.GetBySessionAndMemberFunc != nil {
		return m.GetBySessionAndMemberFunc(ctx, sessionID, memberID)
	}
	return nil, nil
}

func (m *MockBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, booking)
	}
	return nil
}

func (m *MockBookingRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockBookingRepository) GetByMemberID(ctx context.Context, memberID string, limit, offset int) ([]*domain.Booking, error) {
	if m.GetByMemberIDFunc != nil {
		return m.GetByMemberIDFunc(ctx, memberID, limit, offset)
	}
	return []*domain.Booking{}, nil
}

func (m *MockBookingRepository) CountByMemberID(ctx context.Context, memberID string) (int, error) {
	if m.CountByMemberIDFunc != nil {
		return m.CountByMemberIDFunc(ctx, memberID)
	}
	return 0, nil
}

func (m *MockBookingRepository) CountSeat(ctx context.Context, id string) (bool, error) {
	if m.CountSeatFunc != nil {
		return m.CountSeatFunc(ctx, id)
	}
	return true, nil
}

func (m *MockBookingRepository) CountPendingSeatClaims(ctx context.Context, sessionID string) (int, error) {
	if m.CountPendingSeatClaimsFunc != nil {
		return m.CountPendingSeatClaimsFunc(ctx, sessionID)
	}
	return 0, nil
}

func (m *MockBookingRepository) GetWaitlist(ctx context.Context, sessionID string) ([]*domain.Booking, error) {
	if m.GetWaitlistFunc != nil {
		return m.GetWaitlistFunc(ctx, sessionID)
	}
	return []*domain.Booking{}, nil
}

func (m *MockBookingRepository) GetNextWaitlistEntry(ctx context.Context, sessionID string) (*domain.Booking, error) {
	if m.GetNextWaitlistEntryFunc != nil {
		return m.GetNextWaitlistEntryFunc(ctx, sessionID)
	}
	return nil, nil
}

func (m *MockBookingRepository) CountActiveWaitlist(ctx context.Context, sessionID string) (int, error) {
	if m.CountActiveWaitlistFunc != nil {
		return m.CountActiveWaitlistFunc(ctx, sessionID)
	}
	return 0, nil
}

func (m *MockBookingRepository) RecompactWaitlistPositions(ctx context.Context, sessionID string) (int, error) {
	if m.RecompactWaitlistPositionsFunc != nil {
		return m.RecompactWaitlistPositionsFunc(ctx, sessionID)
	}
	return 0, nil
}

func (m *MockBookingRepository) GetStalePendingBookings(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	if m.GetStalePendingBookingsFunc != nil {
		return m.GetStalePendingBookingsFunc(ctx, cutoff, limit)
	}
	return []*domain.Booking{}, nil
}

func (m *MockBookingRepository) CountRecentCancellations(ctx context.Context, memberID string, since time.Time) (int, error) {
	if m.CountRecentCancellationsFunc != nil {
		return m.CountRecentCancellationsFunc(ctx, memberID, since)
	}
	return 0, nil
}

func (m *MockBookingRepository) WithTx(tx pgx.Tx) repository.BookingRepository {
	return m
}

// MockBlockStore is a mock implementation of MemberBlockStore
type MockBlockStore struct {
	IsBlockedFunc func(ctx context.Context, memberID string) (bool, error)
	BlockFunc     func(ctx context.Context, memberID string, duration time.Duration) error
	UnblockFunc   func(ctx context.Context, memberID string) error
}

func (m *MockBlockStore) IsBlocked(ctx context.Context, memberID string) (bool, error) {
	if m.IsBlockedFunc != nil {
		return m.IsBlockedFunc(ctx, memberID)
	}
	return false, nil
}

func (m *MockBlockStore) Block(ctx context.Context, memberID string, duration time.Duration) error {
	if m.BlockFunc != nil {
		return m.BlockFunc(ctx, memberID, duration)
	}
	return nil
}

func (m *MockBlockStore) Unblock(ctx context.Context, memberID string) error {
	if m.UnblockFunc != nil {
		return m.UnblockFunc(ctx, memberID)
	}
	return nil
}

// mockTxRunner runs the transaction function directly with a nil tx;
// the mock repositories ignore WithTx
type mockTxRunner struct {
	WithSerializableTxFunc func(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

func (m *mockTxRunner) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if m.WithSerializableTxFunc != nil {
		return m.WithSerializableTxFunc(ctx, fn)
	}
	return fn(ctx, nil)
}

// mockLocker hands out mockLocks and records acquisitions
type mockLocker struct {
	AcquireSessionFunc func(ctx context.Context, sessionID string) (SessionLock, error)
	acquired           []string
}

func (m *mockLocker) AcquireSession(ctx context.Context, sessionID string) (SessionLock, error) {
	m.acquired = append(m.acquired, sessionID)
	if m.AcquireSessionFunc != nil {
		return m.AcquireSessionFunc(ctx, sessionID)
	}
	return &mockLock{}, nil
}

type mockLock struct {
	released bool
}

func (m *mockLock) Release(ctx context.Context) error {
	m.released = true
	return nil
}

// exclusiveLocker grants each session lease to a single holder at a
// time, the way the Redis lease lock behaves in production
type exclusiveLocker struct {
	held map[string]bool
}

func newExclusiveLocker() *exclusiveLocker {
	return &exclusiveLocker{held: make(map[string]bool)}
}

func (l *exclusiveLocker) AcquireSession(ctx context.Context, sessionID string) (SessionLock, error) {
	if l.held[sessionID] {
		return nil, domain.ErrSessionBusy
	}
	l.held[sessionID] = true
	return &exclusiveLock{locker: l, sessionID: sessionID}, nil
}

type exclusiveLock struct {
	locker    *exclusiveLocker
	sessionID string
}

func (l *exclusiveLock) Release(ctx context.Context) error {
	delete(l.locker.held, l.sessionID)
	return nil
}

// MockPaymentClient is a mock implementation of gateway.PaymentClient
type MockPaymentClient struct {
	InitiatePaymentFunc       func(ctx context.Context, booking *domain.Booking) (*domain.PaymentIntent, error)
	FindIntentByReferenceFunc func(ctx context.Context, bookingID string) (*domain.PaymentIntent, error)
	CreateRefundFunc          func(ctx context.Context, bookingID string, amount int64, reason string) (*domain.Refund, error)
}

func (m *MockPaymentClient) InitiatePayment(ctx context.Context, booking *domain.Booking) (*domain.PaymentIntent, error) {
	if m.InitiatePaymentFunc != nil {
		return m.InitiatePaymentFunc(ctx, booking)
	}
	return &domain.PaymentIntent{ID: "intent-001", BookingID: booking.ID, Amount: booking.Price}, nil
}

func (m *MockPaymentClient) FindIntentByReference(ctx context.Context, bookingID string) (*domain.PaymentIntent, error) {
	if m.FindIntentByReferenceFunc != nil {
		return m.FindIntentByReferenceFunc(ctx, bookingID)
	}
	return nil, nil
}

func (m *MockPaymentClient) CreateRefund(ctx context.Context, bookingID string, amount int64, reason string) (*domain.Refund, error) {
	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, bookingID, amount, reason)
	}
	return &domain.Refund{ID: "refund-001", BookingID: bookingID, Amount: amount}, nil
}

// MockMemberClient is a mock implementation of gateway.MemberClient
type MockMemberClient struct {
	GetMemberFunc  func(ctx context.Context, memberID string) (*domain.Member, error)
	GetMembersFunc func(ctx context.Context, memberIDs []string) (map[string]*domain.Member, error)
}

func (m *MockMemberClient) GetMember(ctx context.Context, memberID string) (*domain.Member, error) {
	if m.GetMemberFunc != nil {
		return m.GetMemberFunc(ctx, memberID)
	}
	return &domain.Member{
		ID:        memberID,
		FirstName: "Test",
		LastName:  "Member",
		Status:    domain.MemberStatusActive,
	}, nil
}

func (m *MockMemberClient) GetMembers(ctx context.Context, memberIDs []string) (map[string]*domain.Member, error) {
	if m.GetMembersFunc != nil {
		return m.GetMembersFunc(ctx, memberIDs)
	}
	members := make(map[string]*domain.Member, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = &domain.Member{ID: id, FirstName: "Test", LastName: "Member"}
	}
	return members, nil
}
