package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockAcquisition is returned when a blocking acquire exhausts its retry budget.
var ErrLockAcquisition = errors.New("lock acquisition timed out")

// maxLockTTL bounds worst-case wedging when a holder dies without releasing.
const maxLockTTL = 30 * time.Second

const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 1 * time.Second
)

// releaseScript deletes the key only while this instance still owns it, so a
// lagging holder can never release a successor's lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("EXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// DistributedLock is an expiring, owner-fenced lease over a named resource.
// The owner token is fresh per instance; Release and Extend only succeed while
// the stored value still matches it. Mutual exclusion is only guaranteed for
// the duration of the lease: callers must finish their critical section
// within the TTL.
type DistributedLock struct {
	client      *redis.Client
	key         string
	ttl         time.Duration
	blocking    bool
	retryBudget time.Duration
	token       string
	acquired    bool
}

// LockOption configures a DistributedLock.
type LockOption func(*DistributedLock)

// WithBlocking makes Acquire retry with exponential backoff until the retry
// budget elapses instead of failing on first contention.
func WithBlocking(retryBudget time.Duration) LockOption {
	return func(l *DistributedLock) {
		l.blocking = true
		l.retryBudget = retryBudget
	}
}

// NewDistributedLock builds a lock over lock:<key>. TTL is capped at 30s.
func NewDistributedLock(client *redis.Client, key string, ttl time.Duration, opts ...LockOption) *DistributedLock {
	if ttl <= 0 || ttl > maxLockTTL {
		ttl = maxLockTTL
	}
	l := &DistributedLock{
		client:      client,
		key:         "lock:" + key,
		ttl:         ttl,
		retryBudget: 30 * time.Second,
		token:       uuid.NewString(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire attempts to take the lease. In non-blocking mode it returns false
// on contention; in blocking mode it retries until the budget elapses and
// then returns ErrLockAcquisition.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	if !l.blocking {
		return l.tryAcquireOnce(ctx)
	}

	deadline := time.Now().Add(l.retryBudget)
	delay := retryBaseDelay
	attempts := 0

	for time.Now().Before(deadline) {
		attempts++
		ok, err := l.tryAcquireOnce(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	return false, fmt.Errorf("%w: key %s after %d attempts", ErrLockAcquisition, l.key, attempts)
}

func (l *DistributedLock) tryAcquireOnce(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	l.acquired = ok
	return ok, nil
}

// Release drops the lease if this instance still owns it. It is idempotent
// and safe to call after expiry: a lapsed lease returns false, never an error.
func (l *DistributedLock) Release(ctx context.Context) (bool, error) {
	if !l.acquired {
		return false, nil
	}
	l.acquired = false

	released, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return released == 1, nil
}

// Extend resets the TTL while this instance still owns the lease.
func (l *DistributedLock) Extend(ctx context.Context, additionalTTL time.Duration) (bool, error) {
	if !l.acquired {
		return false, nil
	}
	if additionalTTL > maxLockTTL {
		additionalTTL = maxLockTTL
	}

	extended, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, int(additionalTTL.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	return extended == 1, nil
}

// Token exposes the owner token for logging.
func (l *DistributedLock) Token() string {
	return l.token
}
