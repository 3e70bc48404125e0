package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookDeliveryStatus tracks one outbound notification attempt set.
type WebhookDeliveryStatus string

const (
	DeliveryPending WebhookDeliveryStatus = "PENDING"
	DeliverySending WebhookDeliveryStatus = "SENDING"
	DeliverySuccess WebhookDeliveryStatus = "SUCCESS"
	DeliveryFailed  WebhookDeliveryStatus = "FAILED"
)

const (
	// DefaultMaxDeliveryAttempts bounds retries for one delivery row.
	DefaultMaxDeliveryAttempts = 5
	// MaxStoredResponseBytes truncates the receiver's response body before persisting.
	MaxStoredResponseBytes = 1000
)

// WebhookDelivery is one outbound notification with its payload snapshot.
// The payload is frozen at creation time so retries always send the same bytes.
type WebhookDelivery struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	WebhookURL    string
	Payload       json.RawMessage
	Status        WebhookDeliveryStatus

	AttemptCount int
	MaxAttempts  int

	HTTPStatusCode *int
	ResponseBody   *string
	ErrorMessage   *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether the delivery has reached a final outcome.
func (d *WebhookDelivery) IsTerminal() bool {
	return d.Status == DeliverySuccess || d.Status == DeliveryFailed
}

func NewWebhookDelivery(transactionID uuid.UUID, url string, payload json.RawMessage) *WebhookDelivery {
	now := time.Now().UTC()
	return &WebhookDelivery{
		ID:            uuid.New(),
		TransactionID: transactionID,
		WebhookURL:    url,
		Payload:       payload,
		Status:        DeliveryPending,
		MaxAttempts:   DefaultMaxDeliveryAttempts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
