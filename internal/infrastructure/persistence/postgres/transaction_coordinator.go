package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence"
)

// TxRepositories bundles repository instances bound to one database transaction.
type TxRepositories struct {
	Users        *UserRepository
	Accounts     *AccountRepository
	Transactions *TransactionRepository
	Webhooks     *WebhookRepository
	FailedTasks  *FailedTaskRepository
}

// TransactionCoordinator manages transactions across multiple repositories.
type TransactionCoordinator struct {
	pool *pgxpool.Pool
}

func NewTransactionCoordinator(db *persistence.DB) *TransactionCoordinator {
	return &TransactionCoordinator{pool: db.Pool}
}

// WithTransaction executes fn within a REPEATABLE READ transaction. Balance
// reads and writes race with the async workers, so the weaker default level
// is not enough.
func (tc *TransactionCoordinator) WithTransaction(
	ctx context.Context,
	fn func(ctx context.Context, repos *TxRepositories) error,
) error {
	tx, err := tc.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	repos := &TxRepositories{
		Users:        &UserRepository{q: tx},
		Accounts:     &AccountRepository{q: tx},
		Transactions: &TransactionRepository{q: tx},
		Webhooks:     &WebhookRepository{q: tx},
		FailedTasks:  &FailedTaskRepository{q: tx},
	}

	if err := fn(ctx, repos); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
