package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/config"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
	"github.com/payflow-labs/payflow/internal/metrics"
)

// WebhookWorker consumes delivery tasks and posts them to user endpoints.
// The delivery service owns the attempt bookkeeping on the delivery row; the
// worker only decides whether to requeue or dead letter.
type WebhookWorker struct {
	broker     *queue.Broker
	deliveries *services.WebhookDeliveryService
	maxRetries int
	backoffCap time.Duration
	logger     *slog.Logger
}

func NewWebhookWorker(
	broker *queue.Broker,
	deliveries *services.WebhookDeliveryService,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) *WebhookWorker {
	return &WebhookWorker{
		broker:     broker,
		deliveries: deliveries,
		maxRetries: cfg.WebhookMaxRetries,
		backoffCap: cfg.RetryBackoffMax,
		logger:     logger.With("component", "webhook_worker"),
	}
}

// Run blocks until the context is cancelled.
func (w *WebhookWorker) Run(ctx context.Context) error {
	return w.broker.Consume(ctx, queue.QueueWebhooks, w.handle)
}

func (w *WebhookWorker) handle(ctx context.Context, envelope *queue.TaskEnvelope) error {
	var task queue.WebhookTask
	if err := json.Unmarshal(envelope.Body, &task); err != nil {
		return w.deadLetter(ctx, envelope, fmt.Errorf("%w: %v", ErrMalformedTask, err))
	}

	deliveryID, err := uuid.Parse(task.DeliveryID)
	if err != nil {
		return w.deadLetter(ctx, envelope, fmt.Errorf("%w: bad delivery id %q", ErrMalformedTask, task.DeliveryID))
	}

	err = w.deliveries.Deliver(ctx, deliveryID)
	if err == nil {
		return nil
	}

	if errors.Is(err, services.ErrDeliveryRetryable) && envelope.RetryCount < w.maxRetries {
		return w.retry(ctx, envelope, err)
	}

	return w.deadLetter(ctx, envelope, err)
}

func (w *WebhookWorker) retry(ctx context.Context, envelope *queue.TaskEnvelope, cause error) error {
	delay := retryBackoff(envelope.RetryCount, w.backoffCap)

	w.logger.Warn("webhook delivery failed, scheduling retry",
		"task_id", envelope.TaskID,
		"retry_count", envelope.RetryCount,
		"delay", delay,
		"error", cause,
	)
	metrics.TaskRetriesTotal.WithLabelValues(envelope.TaskName).Inc()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	next := *envelope
	next.RetryCount++
	if err := w.broker.PublishWebhook(ctx, &next); err != nil {
		return fmt.Errorf("failed to republish webhook task %s: %w", envelope.TaskID, err)
	}
	return nil
}

func (w *WebhookWorker) deadLetter(ctx context.Context, envelope *queue.TaskEnvelope, cause error) error {
	w.logger.Error("webhook delivery exhausted, dead lettering",
		"task_id", envelope.TaskID,
		"retry_count", envelope.RetryCount,
		"error", cause,
	)

	letter := &queue.DeadLetter{
		TaskID:           envelope.TaskID,
		TaskName:         envelope.TaskName,
		Args:             string(envelope.Body),
		Kwargs:           "{}",
		ExceptionType:    fmt.Sprintf("%T", cause),
		ExceptionMessage: cause.Error(),
		RetryCount:       envelope.RetryCount,
		FailedAt:         time.Now().UTC(),
	}
	if err := w.broker.PublishDeadLetter(ctx, letter); err != nil {
		return fmt.Errorf("failed to dead letter webhook task %s: %w", envelope.TaskID, err)
	}

	metrics.DeadLetteredTasksTotal.WithLabelValues(envelope.TaskName).Inc()
	return nil
}
