package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
)

// DLQWorker drains both dead letter queues into the failed_tasks table so
// operators can inspect and replay them through the admin API.
type DLQWorker struct {
	broker *queue.Broker
	dlq    *services.DLQService
	logger *slog.Logger
}

func NewDLQWorker(broker *queue.Broker, dlq *services.DLQService, logger *slog.Logger) *DLQWorker {
	return &DLQWorker{
		broker: broker,
		dlq:    dlq,
		logger: logger.With("component", "dlq_worker"),
	}
}

// Run consumes both DLQ queues until the context is cancelled.
func (w *DLQWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.broker.Consume(ctx, queue.QueueTransactionsDLQ, w.handle)
	})
	g.Go(func() error {
		return w.broker.Consume(ctx, queue.QueueWebhooksDLQ, w.handle)
	})
	return g.Wait()
}

func (w *DLQWorker) handle(ctx context.Context, envelope *queue.TaskEnvelope) error {
	var letter queue.DeadLetter
	if err := json.Unmarshal(envelope.Body, &letter); err != nil {
		w.logger.Error("unreadable dead letter, dropping",
			"task_id", envelope.TaskID,
			"error", err,
		)
		return nil
	}

	if err := w.dlq.StoreDeadLetter(ctx, &letter); err != nil {
		return fmt.Errorf("failed to store dead letter %s: %w", letter.TaskID, err)
	}
	return nil
}
