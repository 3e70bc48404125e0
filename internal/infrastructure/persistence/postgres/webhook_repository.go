package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence"
)

var ErrWebhookDeliveryNotFound = errors.New("webhook delivery not found")

const webhookColumns = `
	id, transaction_id, webhook_url, payload, status,
	attempt_count, max_attempts, http_status_code, response_body, error_message,
	created_at, updated_at`

type WebhookRepository struct {
	q persistence.Executor
}

func NewWebhookRepository(db *persistence.DB) *WebhookRepository {
	return &WebhookRepository{q: db.Pool}
}

func (r *WebhookRepository) Create(ctx context.Context, delivery *domain.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, transaction_id, webhook_url, payload, status,
			attempt_count, max_attempts, http_status_code, response_body, error_message,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.Exec(ctx, query,
		delivery.ID,
		delivery.TransactionID,
		delivery.WebhookURL,
		[]byte(delivery.Payload),
		string(delivery.Status),
		delivery.AttemptCount,
		delivery.MaxAttempts,
		delivery.HTTPStatusCode,
		delivery.ResponseBody,
		delivery.ErrorMessage,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

func (r *WebhookRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.WebhookDelivery, error) {
	query := `SELECT` + webhookColumns + ` FROM webhook_deliveries WHERE id = $1`
	return scanWebhookDelivery(r.q.QueryRow(ctx, query, id))
}

func (r *WebhookRepository) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*domain.WebhookDelivery, error) {
	query := `SELECT` + webhookColumns + `
		FROM webhook_deliveries
		WHERE transaction_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.q.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query webhook deliveries: %w", err)
	}
	results, err := pgx.CollectRows(rows, collectWebhookDelivery)
	if err != nil {
		return nil, fmt.Errorf("scan webhook deliveries: %w", err)
	}
	return results, nil
}

// FindRecent lists deliveries newest first, optionally filtered by status.
func (r *WebhookRepository) FindRecent(ctx context.Context, status *domain.WebhookDeliveryStatus, limit, offset int) ([]*domain.WebhookDelivery, error) {
	query := `SELECT` + webhookColumns + `
		FROM webhook_deliveries
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var statusFilter *string
	if status != nil {
		s := string(*status)
		statusFilter = &s
	}

	rows, err := r.q.Query(ctx, query, statusFilter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query recent webhook deliveries: %w", err)
	}
	results, err := pgx.CollectRows(rows, collectWebhookDelivery)
	if err != nil {
		return nil, fmt.Errorf("scan recent webhook deliveries: %w", err)
	}
	return results, nil
}

func (r *WebhookRepository) Update(ctx context.Context, delivery *domain.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, attempt_count = $2,
			http_status_code = $3, response_body = $4, error_message = $5,
			updated_at = NOW()
		WHERE id = $6
	`

	result, err := r.q.Exec(ctx, query,
		string(delivery.Status),
		delivery.AttemptCount,
		delivery.HTTPStatusCode,
		delivery.ResponseBody,
		delivery.ErrorMessage,
		delivery.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWebhookDeliveryNotFound
	}
	return nil
}

func collectWebhookDelivery(row pgx.CollectableRow) (*domain.WebhookDelivery, error) {
	var m WebhookDeliveryModel
	err := row.Scan(
		&m.ID, &m.TransactionID, &m.WebhookURL, &m.Payload, &m.Status,
		&m.AttemptCount, &m.MaxAttempts, &m.HTTPStatusCode, &m.ResponseBody, &m.ErrorMessage,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return toWebhookDomain(m), nil
}

func scanWebhookDelivery(row pgx.Row) (*domain.WebhookDelivery, error) {
	var m WebhookDeliveryModel
	err := row.Scan(
		&m.ID, &m.TransactionID, &m.WebhookURL, &m.Payload, &m.Status,
		&m.AttemptCount, &m.MaxAttempts, &m.HTTPStatusCode, &m.ResponseBody, &m.ErrorMessage,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWebhookDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
	}
	return toWebhookDomain(m), nil
}
