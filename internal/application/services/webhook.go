package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
	"github.com/payflow-labs/payflow/internal/metrics"
)

const webhookUserAgent = "PaymentGateway-Webhook/1.0"

// ErrDeliveryRetryable tells the worker this attempt failed but the receiver
// might still accept a retry. ErrDeliveryExhausted means the row is FAILED
// and no further attempt may be made.
var (
	ErrDeliveryRetryable = errors.New("webhook delivery failed, retryable")
	ErrDeliveryExhausted = errors.New("webhook delivery attempts exhausted")
)

// WebhookDeliveryService executes a single outbound delivery attempt and
// records the outcome.
type WebhookDeliveryService struct {
	webhooks   *postgres.WebhookRepository
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhookDeliveryService(webhooks *postgres.WebhookRepository, timeout time.Duration, logger *slog.Logger) *WebhookDeliveryService {
	return &WebhookDeliveryService{
		webhooks:   webhooks,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Deliver POSTs the payload snapshot to the receiver. A nil return means the
// delivery reached a terminal state (SUCCESS or permanent FAILED); an
// ErrDeliveryRetryable return means the worker should schedule a retry, and
// ErrDeliveryExhausted that the final attempt just failed. Rows already in a
// terminal state are skipped without contacting the receiver.
func (s *WebhookDeliveryService) Deliver(ctx context.Context, deliveryID uuid.UUID) error {
	delivery, err := s.webhooks.FindByID(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, postgres.ErrWebhookDeliveryNotFound) {
			s.logger.Error("webhook delivery not found", "delivery_id", deliveryID)
			return nil
		}
		return err
	}

	if delivery.IsTerminal() {
		// Crash-redelivered task for a row that already settled.
		s.logger.Warn("skipping delivery in terminal state",
			"delivery_id", delivery.ID,
			"status", delivery.Status,
		)
		return nil
	}

	delivery.AttemptCount++
	delivery.Status = domain.DeliverySending
	if err := s.webhooks.Update(ctx, delivery); err != nil {
		return err
	}

	s.logger.Info("webhook sending",
		"delivery_id", delivery.ID,
		"attempt", delivery.AttemptCount,
		"max_attempts", delivery.MaxAttempts,
		"url", delivery.WebhookURL,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.WebhookURL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return s.recordPermanentFailure(ctx, delivery, fmt.Sprintf("invalid webhook request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	req.Header.Set("X-Webhook-Delivery-ID", delivery.ID.String())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return s.recordTransportError(ctx, delivery, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, domain.MaxStoredResponseBytes))
	responseBody := string(body)
	delivery.HTTPStatusCode = &resp.StatusCode
	delivery.ResponseBody = &responseBody

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		delivery.Status = domain.DeliverySuccess
		metrics.WebhookDeliveriesTotal.WithLabelValues("success").Inc()
		s.logger.Info("webhook delivered",
			"delivery_id", delivery.ID,
			"status_code", resp.StatusCode,
		)
		return s.webhooks.Update(ctx, delivery)

	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		errMsg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(responseBody, 500))
		return s.recordRetryableFailure(ctx, delivery, errMsg)

	default:
		// Remaining 4xx: the receiver rejected the payload, retrying won't help.
		errMsg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(responseBody, 500))
		return s.recordPermanentFailure(ctx, delivery, errMsg)
	}
}

func (s *WebhookDeliveryService) recordTransportError(ctx context.Context, delivery *domain.WebhookDelivery, cause error) error {
	return s.recordRetryableFailure(ctx, delivery, truncate(cause.Error(), 500))
}

func (s *WebhookDeliveryService) recordRetryableFailure(ctx context.Context, delivery *domain.WebhookDelivery, errMsg string) error {
	delivery.ErrorMessage = &errMsg

	if delivery.AttemptCount >= delivery.MaxAttempts {
		delivery.Status = domain.DeliveryFailed
		metrics.WebhookDeliveriesTotal.WithLabelValues("exhausted").Inc()
		s.logger.Error("webhook delivery failed, retries exhausted",
			"delivery_id", delivery.ID,
			"error", errMsg,
		)
		if err := s.webhooks.Update(ctx, delivery); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrDeliveryExhausted, errMsg)
	}

	delivery.Status = domain.DeliveryPending
	metrics.WebhookDeliveriesTotal.WithLabelValues("retry").Inc()
	s.logger.Warn("webhook delivery failed, will retry",
		"delivery_id", delivery.ID,
		"attempt", delivery.AttemptCount,
		"max_attempts", delivery.MaxAttempts,
		"error", errMsg,
	)
	if err := s.webhooks.Update(ctx, delivery); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrDeliveryRetryable, errMsg)
}

func (s *WebhookDeliveryService) recordPermanentFailure(ctx context.Context, delivery *domain.WebhookDelivery, errMsg string) error {
	delivery.Status = domain.DeliveryFailed
	delivery.ErrorMessage = &errMsg
	metrics.WebhookDeliveriesTotal.WithLabelValues("rejected").Inc()
	s.logger.Warn("webhook rejected by receiver",
		"delivery_id", delivery.ID,
		"error", errMsg,
	)
	return s.webhooks.Update(ctx, delivery)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
