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

const transactionColumns = `
	id, account_id, type, amount::text, currency, status,
	bank_transaction_id, bank_response, error_code, error_message,
	idempotency_key, task_id, created_at, updated_at`

type TransactionRepository struct {
	q persistence.Executor
}

func NewTransactionRepository(db *persistence.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, account_id, type, amount, currency, status,
			bank_transaction_id, bank_response, error_code, error_message,
			idempotency_key, task_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.q.Exec(ctx, query,
		txn.ID,
		txn.AccountID,
		string(txn.Type),
		txn.Amount.String(),
		txn.Currency,
		string(txn.Status),
		txn.BankTransactionID,
		txn.BankResponse,
		txn.ErrorCode,
		txn.ErrorMessage,
		txn.IdempotencyKey,
		txn.TaskID,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.q.QueryRow(ctx, query, id))
}

// FindByIDForUpdate retrieves a transaction with a row-level lock for
// status transitions. Must run inside a transaction.
func (r *TransactionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(r.q.QueryRow(ctx, query, id))
}

func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`
	return scanTransaction(r.q.QueryRow(ctx, query, key))
}

// FindByAccountID lists an account's transactions newest first, optionally
// filtered by type.
func (r *TransactionRepository) FindByAccountID(
	ctx context.Context,
	accountID uuid.UUID,
	kind *domain.TransactionType,
	limit, offset int,
) ([]*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1 AND ($2::text IS NULL OR type = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	var typeFilter *string
	if kind != nil {
		s := string(*kind)
		typeFilter = &s
	}

	rows, err := r.q.Query(ctx, query, accountID, typeFilter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query transactions by account_id: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Transaction, error) {
		var m TransactionModel
		if err := row.Scan(
			&m.ID, &m.AccountID, &m.Type, &m.Amount, &m.Currency, &m.Status,
			&m.BankTransactionID, &m.BankResponse, &m.ErrorCode, &m.ErrorMessage,
			&m.IdempotencyKey, &m.TaskID, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		return toTransactionDomain(m)
	})
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return results, nil
}

func (r *TransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $1,
			bank_transaction_id = $2, bank_response = $3,
			error_code = $4, error_message = $5, task_id = $6,
			updated_at = NOW()
		WHERE id = $7
	`

	result, err := r.q.Exec(ctx, query,
		string(txn.Status),
		txn.BankTransactionID,
		txn.BankResponse,
		txn.ErrorCode,
		txn.ErrorMessage,
		txn.TaskID,
		txn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var m TransactionModel
	err := row.Scan(
		&m.ID, &m.AccountID, &m.Type, &m.Amount, &m.Currency, &m.Status,
		&m.BankTransactionID, &m.BankResponse, &m.ErrorCode, &m.ErrorMessage,
		&m.IdempotencyKey, &m.TaskID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return toTransactionDomain(m)
}
