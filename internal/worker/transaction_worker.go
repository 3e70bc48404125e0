package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/config"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
	"github.com/payflow-labs/payflow/internal/metrics"
)

const retryBackoffBase = 5 * time.Second

// TransactionWorker consumes deposit and withdrawal tasks. Transient bank
// failures are retried with exponential backoff by republishing the envelope
// with an incremented retry count. Exhausted tasks park the transaction in
// PENDING_REVIEW and go to the dead letter queue.
type TransactionWorker struct {
	broker     *queue.Broker
	processor  *Processor
	txns       transactionStore
	strategies map[string]Strategy
	maxRetries int
	backoffCap time.Duration
	logger     *slog.Logger
}

func NewTransactionWorker(
	broker *queue.Broker,
	processor *Processor,
	txns transactionStore,
	cfg config.WorkerConfig,
	strategies []Strategy,
	logger *slog.Logger,
) *TransactionWorker {
	byName := make(map[string]Strategy, len(strategies))
	for _, strat := range strategies {
		byName[strat.TaskName] = strat
	}
	return &TransactionWorker{
		broker:     broker,
		processor:  processor,
		txns:       txns,
		strategies: byName,
		maxRetries: cfg.MaxRetries,
		backoffCap: cfg.RetryBackoffMax,
		logger:     logger.With("component", "transaction_worker"),
	}
}

// Run blocks until the context is cancelled.
func (w *TransactionWorker) Run(ctx context.Context) error {
	return w.broker.Consume(ctx, queue.QueueTransactions, w.handle)
}

func (w *TransactionWorker) handle(ctx context.Context, envelope *queue.TaskEnvelope) error {
	strat, ok := w.strategies[envelope.TaskName]
	if !ok {
		return w.deadLetter(ctx, envelope, fmt.Errorf("no strategy for task %q", envelope.TaskName))
	}

	err := w.processor.Process(ctx, envelope, strat)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrMalformedTask) {
		return w.deadLetter(ctx, envelope, err)
	}

	category := application.CategorizeError(err)
	if category.IsRetryable() && envelope.RetryCount < w.maxRetries {
		return w.retry(ctx, envelope, err)
	}

	return w.deadLetter(ctx, envelope, err)
}

func (w *TransactionWorker) retry(ctx context.Context, envelope *queue.TaskEnvelope, cause error) error {
	delay := retryBackoff(envelope.RetryCount, w.backoffCap)

	w.logger.Warn("task failed, scheduling retry",
		"task_id", envelope.TaskID,
		"task_name", envelope.TaskName,
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
	if err := w.broker.PublishTransaction(ctx, &next); err != nil {
		return fmt.Errorf("failed to republish task %s: %w", envelope.TaskID, err)
	}
	return nil
}

func (w *TransactionWorker) deadLetter(ctx context.Context, envelope *queue.TaskEnvelope, cause error) error {
	w.logger.Error("task exhausted, dead lettering",
		"task_id", envelope.TaskID,
		"task_name", envelope.TaskName,
		"retry_count", envelope.RetryCount,
		"error", cause,
	)

	w.parkTransaction(ctx, envelope, cause)

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
		return fmt.Errorf("failed to dead letter task %s: %w", envelope.TaskID, err)
	}

	metrics.DeadLetteredTasksTotal.WithLabelValues(envelope.TaskName).Inc()
	return nil
}

// parkTransaction moves the underlying transaction to PENDING_REVIEW so it
// shows up for operators even before the dead letter is replayed.
func (w *TransactionWorker) parkTransaction(ctx context.Context, envelope *queue.TaskEnvelope, cause error) {
	var task queue.TransactionTask
	if err := json.Unmarshal(envelope.Body, &task); err != nil {
		return
	}
	transactionID, err := uuid.Parse(task.TransactionID)
	if err != nil {
		return
	}

	reason := fmt.Sprintf("retries exhausted: %v", cause)
	if _, err := w.txns.MarkPendingReview(ctx, transactionID, reason, nil); err != nil {
		w.logger.Error("failed to park transaction for review",
			"transaction_id", transactionID,
			"error", err,
		)
	}
}

// retryBackoff grows 5s, 10s, 20s per attempt with 20 percent jitter,
// capped by the configured maximum.
func retryBackoff(retryCount int, maxDelay time.Duration) time.Duration {
	jitter := 0.8 + 0.4*rand.Float64()
	delay := time.Duration(float64(retryBackoffBase<<retryCount) * jitter)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
