// Package queue is the RabbitMQ transport for async work: transaction
// processing, webhook delivery and their dead letter queues.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Queue and routing names.
const (
	ExchangeDefault = "default"
	ExchangeDLQ     = "dlq"

	QueueTransactions    = "transactions"
	QueueTransactionsDLQ = "transactions.dlq"
	QueueWebhooks        = "webhooks"
	QueueWebhooksDLQ     = "webhooks.dlq"

	RoutingKeyTransaction       = "transaction"
	RoutingKeyTransactionFailed = "transaction.failed"
	RoutingKeyWebhook           = "webhook"
	RoutingKeyWebhookFailed     = "webhook.failed"
)

// Task names carried in the envelope.
const (
	TaskProcessDeposit    = "process_deposit"
	TaskProcessWithdrawal = "process_withdrawal"
	TaskDeliverWebhook    = "deliver_webhook"
	TaskHandleFailedTask  = "handle_failed_task"
)

// TaskEnvelope wraps every queued job. TaskID survives retries and
// republications so the dead letter store can deduplicate.
type TaskEnvelope struct {
	TaskID     string          `json:"task_id"`
	TaskName   string          `json:"task_name"`
	Body       json.RawMessage `json:"body"`
	RetryCount int             `json:"retry_count"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTaskEnvelope builds a fresh envelope with a generated task id.
func NewTaskEnvelope(taskName string, body any) (*TaskEnvelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &TaskEnvelope{
		TaskID:     uuid.NewString(),
		TaskName:   taskName,
		Body:       raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// TransactionTask is the body for deposit and withdrawal jobs.
type TransactionTask struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	Amount        string `json:"amount"`
	UserID        string `json:"user_id"`
}

// WebhookTask is the body for outbound webhook delivery jobs.
type WebhookTask struct {
	DeliveryID string `json:"delivery_id"`
}

// DeadLetter is published to a DLQ after a task exhausts its retries.
type DeadLetter struct {
	TaskID           string    `json:"task_id"`
	TaskName         string    `json:"task_name"`
	Args             string    `json:"args"`
	Kwargs           string    `json:"kwargs"`
	ExceptionType    string    `json:"exception_type"`
	ExceptionMessage string    `json:"exception_message"`
	Traceback        string    `json:"traceback"`
	RetryCount       int       `json:"retry_count"`
	FailedAt         time.Time `json:"failed_at"`
}
