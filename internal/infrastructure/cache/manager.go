package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld means another process owns the requested lock.
var ErrLockHeld = errors.New("lock held by another process")

// LockManager hands out scoped distributed locks.
type LockManager struct {
	client *redis.Client
}

func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{client: client}
}

// WithLock runs fn while holding an exclusive lock on key. It does not
// block: if the lock is taken it returns ErrLockHeld immediately.
func (m *LockManager) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock := NewDistributedLock(m.client, key, ttl)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLockHeld
	}
	defer lock.Release(context.WithoutCancel(ctx))

	return fn(ctx)
}
