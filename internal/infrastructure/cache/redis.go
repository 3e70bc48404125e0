// Package cache wraps the shared Redis client used for idempotency records,
// distributed locks and rate limiting. Every key written through this package
// carries a TTL.
package cache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/payflow-labs/payflow/internal/config"
)

// Connect builds the Redis client and verifies connectivity.
func Connect(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("failed to ping redis", "addr", cfg.Addr, "error", err)
		return nil, err
	}

	logger.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}
