package queue

import (
	"fmt"
	"log/slog"

	"github.com/payflow-labs/payflow/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DLQ messages expire after 24 hours; the queue refuses growth past 10k.
var dlqArgs = amqp.Table{
	"x-message-ttl": int64(86400000),
	"x-max-length":  int64(10000),
}

// Broker owns the AMQP connection and topology.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// Connect dials RabbitMQ, opens a channel and declares the full topology.
func Connect(cfg config.BrokerConfig, logger *slog.Logger) (*Broker, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Qos(cfg.PrefetchCount, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	b := &Broker{conn: conn, channel: channel, logger: logger}
	if err := b.declareTopology(); err != nil {
		b.Close()
		return nil, err
	}

	logger.Info("connected to message broker", "prefetch_count", cfg.PrefetchCount)
	return b, nil
}

func (b *Broker) declareTopology() error {
	for _, exchange := range []string{ExchangeDefault, ExchangeDLQ} {
		if err := b.channel.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
		args       amqp.Table
	}{
		{QueueTransactions, ExchangeDefault, RoutingKeyTransaction, nil},
		{QueueTransactionsDLQ, ExchangeDLQ, RoutingKeyTransactionFailed, dlqArgs},
		{QueueWebhooks, ExchangeDefault, RoutingKeyWebhook, nil},
		{QueueWebhooksDLQ, ExchangeDLQ, RoutingKeyWebhookFailed, dlqArgs},
	}

	for _, bd := range bindings {
		if _, err := b.channel.QueueDeclare(bd.queue, true, false, false, false, bd.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", bd.queue, err)
		}
		if err := b.channel.QueueBind(bd.queue, bd.routingKey, bd.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", bd.queue, err)
		}
	}
	return nil
}

func (b *Broker) Close() {
	b.logger.Info("closing broker connection")
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
