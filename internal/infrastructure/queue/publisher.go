package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher enqueues task envelopes.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, envelope *TaskEnvelope) error
}

func (b *Broker) Publish(ctx context.Context, exchange, routingKey string, envelope *TaskEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal task envelope: %w", err)
	}

	err = b.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.TaskID,
		Type:         envelope.TaskName,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", envelope.TaskName, routingKey, err)
	}

	b.logger.Info("task published",
		"task_id", envelope.TaskID,
		"task_name", envelope.TaskName,
		"routing_key", routingKey,
		"retry_count", envelope.RetryCount,
	)
	return nil
}

// PublishTransaction routes a deposit or withdrawal job to the transactions queue.
func (b *Broker) PublishTransaction(ctx context.Context, envelope *TaskEnvelope) error {
	return b.Publish(ctx, ExchangeDefault, RoutingKeyTransaction, envelope)
}

// PublishWebhook routes a delivery job to the webhooks queue.
func (b *Broker) PublishWebhook(ctx context.Context, envelope *TaskEnvelope) error {
	return b.Publish(ctx, ExchangeDefault, RoutingKeyWebhook, envelope)
}

// PublishDeadLetter wraps an exhausted task in a handle_failed_task envelope
// and routes it to the matching DLQ.
func (b *Broker) PublishDeadLetter(ctx context.Context, letter *DeadLetter) error {
	routingKey := RoutingKeyTransactionFailed
	if letter.TaskName == TaskDeliverWebhook {
		routingKey = RoutingKeyWebhookFailed
	}

	envelope, err := NewTaskEnvelope(TaskHandleFailedTask, letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter envelope: %w", err)
	}

	err = b.channel.PublishWithContext(ctx, ExchangeDLQ, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    letter.TaskID,
		Type:         TaskHandleFailedTask,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}

	b.logger.Error("task sent to dead letter queue",
		"task_id", letter.TaskID,
		"task_name", letter.TaskName,
		"retry_count", letter.RetryCount,
		"routing_key", routingKey,
	)
	return nil
}
