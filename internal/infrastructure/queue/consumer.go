package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one dequeued envelope. Returning nil acks the
// message; returning an error rejects it without requeue (the handler is
// responsible for republishing retries or dead-lettering).
type HandlerFunc func(ctx context.Context, envelope *TaskEnvelope) error

// Consume reads envelopes from queue until the context is cancelled.
// Messages are acked only after the handler returns, so a worker crash
// mid-task leaves the message for redelivery.
func (b *Broker) Consume(ctx context.Context, queue string, handler HandlerFunc) error {
	deliveries, err := b.channel.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", queue, err)
	}

	b.logger.Info("consuming", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			b.handleDelivery(ctx, queue, delivery, handler)
		}
	}
}

func (b *Broker) handleDelivery(ctx context.Context, queue string, delivery amqp.Delivery, handler HandlerFunc) {
	var envelope TaskEnvelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		b.logger.Error("dropping malformed message",
			"queue", queue,
			"message_id", delivery.MessageId,
			"error", err,
		)
		_ = delivery.Reject(false)
		return
	}

	if err := handler(ctx, &envelope); err != nil {
		b.logger.Error("task handler failed",
			"queue", queue,
			"task_id", envelope.TaskID,
			"task_name", envelope.TaskName,
			"error", err,
		)
		_ = delivery.Reject(false)
		return
	}

	_ = delivery.Ack(false)
}
