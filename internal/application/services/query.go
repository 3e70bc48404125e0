package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QueryService serves the authenticated read surface. Every lookup checks
// that the caller owns the account the data belongs to.
type QueryService struct {
	transactions *postgres.TransactionRepository
	accounts     *postgres.AccountRepository
	webhooks     *postgres.WebhookRepository
	logger       *slog.Logger
}

func NewQueryService(
	transactions *postgres.TransactionRepository,
	accounts *postgres.AccountRepository,
	webhooks *postgres.WebhookRepository,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		transactions: transactions,
		accounts:     accounts,
		webhooks:     webhooks,
		logger:       logger,
	}
}

// GetAccount returns the caller's account.
func (s *QueryService) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, application.NewNotFoundError("Account")
		}
		return nil, application.NewInternalError(err)
	}
	return account, nil
}

// GetTransaction returns a transaction if the caller owns it. A foreign
// transaction id yields 403, not 404: the row exists, the caller may not see it.
func (s *QueryService) GetTransaction(ctx context.Context, userID, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, application.NewNotFoundError("Transaction")
		}
		return nil, application.NewInternalError(err)
	}

	if err := s.authorizeAccountAccess(ctx, userID, txn.AccountID); err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions returns the caller's transactions, newest first.
func (s *QueryService) ListTransactions(ctx context.Context, q ListTransactionsQuery) ([]*domain.Transaction, error) {
	account, err := s.GetAccount(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var kind *domain.TransactionType
	if q.Type != nil {
		t := domain.TransactionType(*q.Type)
		if t != domain.TypeDeposit && t != domain.TypeWithdrawal {
			return nil, application.NewInvalidInputError("type must be DEPOSIT or WITHDRAWAL", nil)
		}
		kind = &t
	}

	results, err := s.transactions.FindByAccountID(ctx, account.ID, kind, limit, offset)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return results, nil
}

// ListWebhookDeliveries returns deliveries for one of the caller's
// transactions, or their recent deliveries when transactionID is nil.
func (s *QueryService) ListWebhookDeliveries(ctx context.Context, userID uuid.UUID, transactionID *uuid.UUID, limit, offset int) ([]*domain.WebhookDelivery, error) {
	if transactionID != nil {
		txn, err := s.GetTransaction(ctx, userID, *transactionID)
		if err != nil {
			return nil, err
		}
		deliveries, err := s.webhooks.FindByTransactionID(ctx, txn.ID)
		if err != nil {
			return nil, application.NewInternalError(err)
		}
		return deliveries, nil
	}

	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	// Recent deliveries filtered down to the caller's transactions.
	recent, err := s.webhooks.FindRecent(ctx, nil, limit*5, offset)
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	owned := make([]*domain.WebhookDelivery, 0, limit)
	for _, delivery := range recent {
		txn, err := s.transactions.FindByID(ctx, delivery.TransactionID)
		if err != nil {
			continue
		}
		if txn.AccountID == account.ID {
			owned = append(owned, delivery)
			if len(owned) == limit {
				break
			}
		}
	}
	return owned, nil
}

// GetWebhookDelivery returns one delivery if the caller owns its transaction.
func (s *QueryService) GetWebhookDelivery(ctx context.Context, userID, deliveryID uuid.UUID) (*domain.WebhookDelivery, error) {
	delivery, err := s.webhooks.FindByID(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, postgres.ErrWebhookDeliveryNotFound) {
			return nil, application.NewNotFoundError("Webhook delivery")
		}
		return nil, application.NewInternalError(err)
	}

	if _, err := s.GetTransaction(ctx, userID, delivery.TransactionID); err != nil {
		return nil, err
	}
	return delivery, nil
}

func (s *QueryService) authorizeAccountAccess(ctx context.Context, userID, accountID uuid.UUID) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return application.NewInternalError(err)
	}
	if account.UserID != userID {
		s.logger.Warn("cross-account access rejected",
			"user_id", userID,
			"account_id", accountID,
		)
		return application.NewForbiddenError()
	}
	return nil
}
