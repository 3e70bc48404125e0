package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a sliding-window counter over a Redis sorted set.
// Each request purges entries older than the window, counts what remains,
// inserts the current timestamp and refreshes the key's expiry.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow reports whether the request under key fits the limit, along with the
// remaining quota and the UNIX timestamp at which the window resets.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, int64, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%f", float64(windowStart.UnixNano())/1e9))
	countCmd := pipe.ZCard(ctx, key)
	member := fmt.Sprintf("%d", now.UnixNano())
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()) / 1e9, Member: member})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, 0, fmt.Errorf("rate limit pipeline for %s: %w", key, err)
	}

	current := int(countCmd.Val())
	allowed := current < limit
	remaining := 0
	if allowed {
		remaining = limit - current - 1
		if remaining < 0 {
			remaining = 0
		}
	}
	reset := now.Add(window).Unix()

	return allowed, remaining, reset, nil
}

// Reset clears the window for a key.
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
