package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/fitverse/class-booking/pkg/redis"
)

// Common errors
var (
	// ErrNotAcquired is returned when the lock is held by another owner
	// after all acquisition attempts
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld is returned when releasing a lock this instance no longer owns
	ErrNotHeld = errors.New("lock not held")
)

// releaseScript deletes the key only when the caller still owns it,
// so a lock that expired and was re-acquired elsewhere is never removed
// by the previous owner.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Config contains lock manager configuration
type Config struct {
	// TTL is the lock lease duration (default: 5s)
	TTL time.Duration
	// MaxRetries is the number of extra acquisition attempts after the
	// first one fails (0 = single attempt)
	MaxRetries int
	// RetryInterval is the base wait between attempts; actual waits are
	// jittered ±50% to avoid synchronized retries (default: 100ms)
	RetryInterval time.Duration
	// KeyPrefix namespaces lock keys (default: "lock:")
	KeyPrefix string
}

// DefaultConfig returns default lock configuration
func DefaultConfig() *Config {
	return &Config{
		TTL:           5 * time.Second,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		KeyPrefix:     "lock:",
	}
}

// Manager acquires short-lived leases backed by Redis SET NX
type Manager struct {
	client *redis.Client
	config *Config
}

// NewManager creates a new lock manager
func NewManager(client *redis.Client, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 100 * time.Millisecond
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "lock:"
	}

	return &Manager{
		client: client,
		config: cfg,
	}
}

// Lock is a held lease; it must be released by the same instance
type Lock struct {
	manager *Manager
	key     string
	token   string
}

// Key returns the full Redis key of the lease
func (l *Lock) Key() string {
	return l.key
}

// Acquire obtains the lease for name, retrying a bounded number of times
// with jittered backoff. Returns ErrNotAcquired when the lease stays busy.
func (m *Manager) Acquire(ctx context.Context, name string) (*Lock, error) {
	key := m.config.KeyPrefix + name
	token := uuid.New().String()

	var lastErr error
	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter(m.config.RetryInterval)):
			}
		}

		ok, err := m.client.SetNX(ctx, key, token, m.config.TTL).Result()
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return &Lock{manager: m, key: key, token: token}, nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, lastErr)
	}
	return nil, ErrNotAcquired
}

// Release gives the lease back. Safe to call after expiry; returns
// ErrNotHeld when the lease already belongs to someone else.
func (l *Lock) Release(ctx context.Context) error {
	deleted, err := l.manager.client.EvalWithFallback(
		ctx, "lock_release", releaseScript, []string{l.key}, l.token,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if deleted == 0 {
		return ErrNotHeld
	}
	return nil
}

// jitter returns base ±50%
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	f := 0.5 + rand.Float64()
	return time.Duration(float64(base) * f)
}
