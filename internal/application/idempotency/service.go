// Package idempotency stores request outcomes in Redis so a retried POST
// returns the first response instead of running twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status of an idempotency record.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// ProcessingLockTTL bounds how long a crashed request can block its key.
const ProcessingLockTTL = 60 * time.Second

// DefaultCompletedTTL is the replay window for completed responses.
const DefaultCompletedTTL = 24 * time.Hour

// Record is the cached state for one idempotency key.
type Record struct {
	Status       string            `json:"status"`
	ResponseBody string            `json:"response_body,omitempty"`
	StatusCode   int               `json:"status_code,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

type Service struct {
	cache        *redis.Client
	completedTTL time.Duration
	logger       *slog.Logger
}

func NewService(cache *redis.Client, completedTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		cache:        cache,
		completedTTL: completedTTL,
		logger:       logger,
	}
}

// GenerateAutoKey derives a key from the caller identity and request body for
// clients that do not send one.
func GenerateAutoKey(authHeader, requestBody string) string {
	digest := sha256.Sum256([]byte(authHeader + ":" + requestBody))
	return fmt.Sprintf("auto-%x", digest[:16])
}

// CheckExisting returns the stored record for a key, or nil if none exists.
func (s *Service) CheckExisting(ctx context.Context, idempotencyKey string) (*Record, error) {
	data, err := s.cache.Get(ctx, cacheKey(idempotencyKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &record, nil
}

// AcquireLock claims a key for the current request. It returns false when
// another request holds the key, completed or in flight.
func (s *Service) AcquireLock(ctx context.Context, idempotencyKey string) (bool, error) {
	record := Record{
		Status:    StatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("encode idempotency lock: %w", err)
	}

	acquired, err := s.cache.SetNX(ctx, cacheKey(idempotencyKey), data, ProcessingLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire idempotency lock: %w", err)
	}

	if acquired {
		s.logger.Info("idempotency lock acquired", "key", idempotencyKey)
	} else {
		s.logger.Warn("idempotency lock conflict", "key", idempotencyKey)
	}
	return acquired, nil
}

// ReleaseLock frees a key after a failed request so the client can retry.
func (s *Service) ReleaseLock(ctx context.Context, idempotencyKey string) error {
	if err := s.cache.Del(ctx, cacheKey(idempotencyKey)).Err(); err != nil {
		return fmt.Errorf("release idempotency lock: %w", err)
	}
	s.logger.Info("idempotency lock released", "key", idempotencyKey)
	return nil
}

// SaveResponse replaces the processing lock with the completed response.
func (s *Service) SaveResponse(
	ctx context.Context,
	idempotencyKey string,
	responseBody []byte,
	statusCode int,
	headers map[string]string,
	resourceID string,
) error {
	now := time.Now().UTC()
	record := Record{
		Status:       StatusCompleted,
		ResponseBody: string(responseBody),
		StatusCode:   statusCode,
		Headers:      headers,
		ResourceID:   resourceID,
		CreatedAt:    now,
		CompletedAt:  &now,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}

	if err := s.cache.Set(ctx, cacheKey(idempotencyKey), data, s.completedTTL).Err(); err != nil {
		return fmt.Errorf("save idempotency record: %w", err)
	}

	s.logger.Info("idempotency response cached",
		"key", idempotencyKey,
		"status_code", statusCode,
		"resource_id", resourceID,
	)
	return nil
}

func cacheKey(idempotencyKey string) string {
	return "idempotency:" + idempotencyKey
}
