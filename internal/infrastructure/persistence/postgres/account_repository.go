package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
)

type AccountRepository struct {
	q persistence.Executor
}

func NewAccountRepository(db *persistence.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, balance, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.Exec(ctx, query,
		account.ID,
		account.UserID,
		account.Balance.String(),
		account.Currency,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, user_id, balance::text, currency, created_at, updated_at
		FROM accounts WHERE id = $1
	`
	return scanAccount(r.q.QueryRow(ctx, query, id))
}

func (r *AccountRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, user_id, balance::text, currency, created_at, updated_at
		FROM accounts WHERE user_id = $1
	`
	return scanAccount(r.q.QueryRow(ctx, query, userID))
}

// FindByIDForUpdate retrieves an account with a row-level exclusive lock.
// Must be called inside a transaction; the lock is held until commit.
func (r *AccountRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, user_id, balance::text, currency, created_at, updated_at
		FROM accounts WHERE id = $1
		FOR UPDATE
	`
	return scanAccount(r.q.QueryRow(ctx, query, id))
}

// AddBalance credits the account atomically in SQL.
func (r *AccountRepository) AddBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = balance + $1::numeric, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, amount.String(), id)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// SubtractBalance debits the account atomically. The WHERE clause refuses the
// debit when it would drive the balance negative; callers treat zero rows
// affected as insufficient balance.
func (r *AccountRepository) SubtractBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = balance - $1::numeric, updated_at = NOW()
		WHERE id = $2 AND balance >= $1::numeric
	`

	result, err := r.q.Exec(ctx, query, amount.String(), id)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var m AccountModel
	err := row.Scan(&m.ID, &m.UserID, &m.Balance, &m.Currency, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return toAccountDomain(m)
}
