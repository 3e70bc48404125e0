package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
	"github.com/payflow-labs/payflow/internal/metrics"
)

// CreatePendingWithdrawal records a PENDING withdrawal. The balance check
// happens under a row lock so two concurrent withdrawals cannot both pass
// against the same funds, but nothing is debited until the bank confirms.
func (s *TransactionService) CreatePendingWithdrawal(ctx context.Context, cmd CreateTransactionCommand) (*domain.Transaction, error) {
	var txn *domain.Transaction
	err := s.coordinator.WithTransaction(ctx, func(ctx context.Context, repos *postgres.TxRepositories) error {
		account, err := repos.Accounts.FindByUserID(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		account, err = repos.Accounts.FindByIDForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}

		if !account.CanWithdraw(cmd.Amount) {
			metrics.InsufficientBalanceErrors.Inc()
			s.logger.Warn("withdrawal rejected, insufficient balance",
				"account_id", account.ID,
				"requested_amount", cmd.Amount.String(),
				"available_balance", account.Balance.String(),
			)
			return domain.NewInsufficientBalanceError(account.Balance, cmd.Amount)
		}

		txn, err = domain.NewTransaction(account.ID, domain.TypeWithdrawal, cmd.Amount, cmd.Currency)
		if err != nil {
			return err
		}
		if cmd.IdempotencyKey != "" {
			txn.IdempotencyKey = &cmd.IdempotencyKey
		}
		return repos.Transactions.Create(ctx, txn)
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAccountNotFound):
			return nil, application.NewNotFoundError("Account")
		case errors.Is(err, domain.ErrInsufficientBalance):
			return nil, application.NewInsufficientBalanceError(err)
		case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrMissingRequiredField):
			return nil, application.NewInvalidInputError(err.Error(), err)
		case errors.Is(err, domain.ErrDuplicateIdempotencyKey):
			return nil, application.NewConflictError("A transaction with this idempotency key already exists", err)
		default:
			return nil, application.NewInternalError(err)
		}
	}

	s.logger.Info("withdrawal pending created",
		"transaction_id", txn.ID,
		"account_id", txn.AccountID,
		"amount", cmd.Amount.String(),
	)

	if err := s.enqueueTransaction(ctx, txn, cmd.UserID); err != nil {
		return nil, err
	}
	return txn, nil
}

// CompleteWithdrawal debits the account and marks the transaction SUCCESS.
// The balance is re-checked under the row lock: it may have shrunk since the
// withdrawal was created.
func (s *TransactionService) CompleteWithdrawal(ctx context.Context, transactionID uuid.UUID, bankTransactionID string, bankResponse *string) (*domain.Transaction, error) {
	txn, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	var completed *domain.Transaction
	err = s.withAccountLock(ctx, txn.AccountID, func(ctx context.Context) error {
		return s.coordinator.WithTransaction(ctx, func(ctx context.Context, repos *postgres.TxRepositories) error {
			txn, err := repos.Transactions.FindByIDForUpdate(ctx, transactionID)
			if err != nil {
				return err
			}
			if txn.Status == domain.StatusSuccess {
				completed = txn
				return nil
			}
			if err := txn.CanTransitionTo(domain.StatusSuccess); err != nil {
				return err
			}

			account, err := repos.Accounts.FindByIDForUpdate(ctx, txn.AccountID)
			if err != nil {
				return err
			}
			if err := repos.Accounts.SubtractBalance(ctx, account.ID, txn.Amount); err != nil {
				return err
			}
			account.Balance = account.Balance.Sub(txn.Amount)

			txn.Status = domain.StatusSuccess
			txn.BankTransactionID = &bankTransactionID
			txn.BankResponse = bankResponse
			if err := repos.Transactions.Update(ctx, txn); err != nil {
				return err
			}

			completed = txn
			s.logger.Info("withdrawal completed",
				"transaction_id", txn.ID,
				"bank_transaction_id", bankTransactionID,
				"new_balance", account.Balance.String(),
			)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.TransactionsTotal.WithLabelValues(string(domain.TypeWithdrawal), string(domain.StatusSuccess)).Inc()
	s.notifyOutcome(ctx, completed)
	return completed, nil
}

// FailWithdrawal marks the transaction FAILED. Nothing was debited at
// creation, so there is nothing to restore.
func (s *TransactionService) FailWithdrawal(ctx context.Context, transactionID uuid.UUID, errorCode, errorMessage string, bankResponse *string) (*domain.Transaction, error) {
	return s.failTransaction(ctx, transactionID, domain.TypeWithdrawal, errorCode, errorMessage, bankResponse)
}
