package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/pkg/lock"
)

// SessionLocker serializes capacity-changing work per session
type SessionLocker interface {
	// AcquireSession obtains the session's lease; returns
	// domain.ErrSessionBusy when it stays held elsewhere
	AcquireSession(ctx context.Context, sessionID string) (SessionLock, error)
}

// SessionLock is a held session lease
type SessionLock interface {
	Release(ctx context.Context) error
}

// TxRunner runs functions inside serializable transactions
type TxRunner interface {
	WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// redisSessionLocker adapts pkg/lock to SessionLocker
type redisSessionLocker struct {
	manager *lock.Manager
}

// NewSessionLocker wraps a lock manager for session leases
func NewSessionLocker(manager *lock.Manager) SessionLocker {
	return &redisSessionLocker{manager: manager}
}

// AcquireSession obtains the lease for a session
func (l *redisSessionLocker) AcquireSession(ctx context.Context, sessionID string) (SessionLock, error) {
	held, err := l.manager.Acquire(ctx, "session:"+sessionID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, domain.ErrSessionBusy
		}
		return nil, err
	}
	return held, nil
}
