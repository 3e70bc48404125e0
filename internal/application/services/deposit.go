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

// CreatePendingDeposit records a PENDING deposit and enqueues it for the
// async worker. The balance is untouched until the bank confirms.
func (s *TransactionService) CreatePendingDeposit(ctx context.Context, cmd CreateTransactionCommand) (*domain.Transaction, error) {
	account, err := s.accounts.FindByUserID(ctx, cmd.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, application.NewNotFoundError("Account")
		}
		return nil, application.NewInternalError(err)
	}

	txn, err := domain.NewTransaction(account.ID, domain.TypeDeposit, cmd.Amount, cmd.Currency)
	if err != nil {
		return nil, application.NewInvalidInputError(err.Error(), err)
	}
	if cmd.IdempotencyKey != "" {
		txn.IdempotencyKey = &cmd.IdempotencyKey
	}

	if err := s.transactions.Create(ctx, txn); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			return nil, application.NewConflictError("A transaction with this idempotency key already exists", err)
		}
		return nil, application.NewInternalError(err)
	}

	s.logger.Info("deposit pending created",
		"transaction_id", txn.ID,
		"account_id", account.ID,
		"amount", cmd.Amount.String(),
	)

	if err := s.enqueueTransaction(ctx, txn, cmd.UserID); err != nil {
		return nil, err
	}
	return txn, nil
}

// CompleteDeposit credits the account and marks the transaction SUCCESS.
// The account is guarded twice: a Redis lock across processes and a row
// lock inside the database transaction.
func (s *TransactionService) CompleteDeposit(ctx context.Context, transactionID uuid.UUID, bankTransactionID string, bankResponse *string) (*domain.Transaction, error) {
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
				// Redelivered job that already committed.
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
			if err := repos.Accounts.AddBalance(ctx, account.ID, txn.Amount); err != nil {
				return err
			}
			account.Balance = account.Balance.Add(txn.Amount)

			txn.Status = domain.StatusSuccess
			txn.BankTransactionID = &bankTransactionID
			txn.BankResponse = bankResponse
			if err := repos.Transactions.Update(ctx, txn); err != nil {
				return err
			}

			completed = txn
			s.logger.Info("deposit completed",
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

	metrics.TransactionsTotal.WithLabelValues(string(domain.TypeDeposit), string(domain.StatusSuccess)).Inc()
	s.notifyOutcome(ctx, completed)
	return completed, nil
}

// FailDeposit marks the transaction FAILED. No balance movement: the credit
// never happened.
func (s *TransactionService) FailDeposit(ctx context.Context, transactionID uuid.UUID, errorCode, errorMessage string, bankResponse *string) (*domain.Transaction, error) {
	return s.failTransaction(ctx, transactionID, domain.TypeDeposit, errorCode, errorMessage, bankResponse)
}

func (s *TransactionService) failTransaction(ctx context.Context, transactionID uuid.UUID, kind domain.TransactionType, errorCode, errorMessage string, bankResponse *string) (*domain.Transaction, error) {
	var failed *domain.Transaction
	err := s.coordinator.WithTransaction(ctx, func(ctx context.Context, repos *postgres.TxRepositories) error {
		txn, err := repos.Transactions.FindByIDForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn.Status == domain.StatusFailed {
			failed = txn
			return nil
		}
		if err := txn.CanTransitionTo(domain.StatusFailed); err != nil {
			return err
		}

		txn.Status = domain.StatusFailed
		txn.ErrorCode = &errorCode
		txn.ErrorMessage = &errorMessage
		txn.BankResponse = bankResponse
		if err := repos.Transactions.Update(ctx, txn); err != nil {
			return err
		}
		failed = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TransactionsTotal.WithLabelValues(string(kind), string(domain.StatusFailed)).Inc()
	s.logger.Warn("transaction failed",
		"transaction_id", transactionID,
		"transaction_type", string(kind),
		"error_code", errorCode,
		"error_message", errorMessage,
	)

	s.notifyOutcome(ctx, failed)
	return failed, nil
}

// notifyOutcome fires the owner's webhook for a terminal transaction.
func (s *TransactionService) notifyOutcome(ctx context.Context, txn *domain.Transaction) {
	account, err := s.accounts.FindByID(ctx, txn.AccountID)
	if err != nil {
		s.logger.Error("failed to load account for webhook", "transaction_id", txn.ID, "error", err)
		return
	}
	s.triggerWebhook(ctx, txn, account)
}
