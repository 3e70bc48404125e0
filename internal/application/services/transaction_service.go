package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/cache"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
	"github.com/payflow-labs/payflow/internal/metrics"
)

// accountLockTTL bounds how long a worker can hold an account hostage.
const accountLockTTL = 10 * time.Second

// TaskPublisher enqueues async jobs for the workers.
type TaskPublisher interface {
	PublishTransaction(ctx context.Context, envelope *queue.TaskEnvelope) error
	PublishWebhook(ctx context.Context, envelope *queue.TaskEnvelope) error
}

// TransactionService owns the transaction lifecycle: creating pending rows,
// applying bank verdicts to balances and fanning out webhooks.
type TransactionService struct {
	coordinator  *postgres.TransactionCoordinator
	transactions *postgres.TransactionRepository
	accounts     *postgres.AccountRepository
	users        *postgres.UserRepository
	webhooks     *postgres.WebhookRepository
	locks        *cache.LockManager
	publisher    TaskPublisher
	logger       *slog.Logger
}

func NewTransactionService(
	coordinator *postgres.TransactionCoordinator,
	transactions *postgres.TransactionRepository,
	accounts *postgres.AccountRepository,
	users *postgres.UserRepository,
	webhooks *postgres.WebhookRepository,
	locks *cache.LockManager,
	publisher TaskPublisher,
	logger *slog.Logger,
) *TransactionService {
	return &TransactionService{
		coordinator:  coordinator,
		transactions: transactions,
		accounts:     accounts,
		users:        users,
		webhooks:     webhooks,
		locks:        locks,
		publisher:    publisher,
		logger:       logger,
	}
}

func (s *TransactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.transactions.FindByID(ctx, id)
}

// UpdateStatus moves a transaction along its state machine.
func (s *TransactionService) UpdateStatus(ctx context.Context, id uuid.UUID, target domain.TransactionStatus) (*domain.Transaction, error) {
	var updated *domain.Transaction
	err := s.coordinator.WithTransaction(ctx, func(ctx context.Context, repos *postgres.TxRepositories) error {
		txn, err := repos.Transactions.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := txn.CanTransitionTo(target); err != nil {
			return err
		}
		txn.Status = target
		if err := repos.Transactions.Update(ctx, txn); err != nil {
			return err
		}
		updated = txn
		return nil
	})
	return updated, err
}

// MarkPendingReview parks a transaction for manual inspection after the
// worker gave up on it.
func (s *TransactionService) MarkPendingReview(ctx context.Context, id uuid.UUID, reason string, bankResponse *string) (*domain.Transaction, error) {
	var updated *domain.Transaction
	err := s.coordinator.WithTransaction(ctx, func(ctx context.Context, repos *postgres.TxRepositories) error {
		txn, err := repos.Transactions.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := txn.CanTransitionTo(domain.StatusPendingReview); err != nil {
			return err
		}
		txn.Status = domain.StatusPendingReview
		txn.ErrorMessage = &reason
		txn.BankResponse = bankResponse
		if err := repos.Transactions.Update(ctx, txn); err != nil {
			return err
		}
		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("transaction parked for review",
		"transaction_id", id,
		"transaction_type", string(updated.Type),
		"reason", reason,
	)
	return updated, nil
}

// SetTaskID records the queue task processed for this transaction.
func (s *TransactionService) SetTaskID(ctx context.Context, id uuid.UUID, taskID string) error {
	txn, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return err
	}
	txn.TaskID = &taskID
	return s.transactions.Update(ctx, txn)
}

// withAccountLock serializes balance mutations for one account across
// workers and the callback endpoint.
func (s *TransactionService) withAccountLock(ctx context.Context, accountID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("account:%s", accountID)
	err := s.locks.WithLock(ctx, key, accountLockTTL, fn)
	if err == cache.ErrLockHeld {
		return domain.NewConcurrentUpdateError(accountID)
	}
	return err
}

type webhookEvent struct {
	Event       string              `json:"event"`
	Transaction webhookTransaction  `json:"transaction"`
	Account     webhookAccountState `json:"account"`
}

type webhookTransaction struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	Amount            string  `json:"amount"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	BankTransactionID *string `json:"bank_transaction_id"`
	ErrorCode         *string `json:"error_code"`
	ErrorMessage      *string `json:"error_message"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type webhookAccountState struct {
	ID      string `json:"id"`
	Balance string `json:"balance"`
}

// triggerWebhook snapshots the transaction outcome into a delivery row and
// enqueues it. Failures here must not fail the transaction itself.
func (s *TransactionService) triggerWebhook(ctx context.Context, txn *domain.Transaction, account *domain.Account) {
	user, err := s.users.FindByID(ctx, account.UserID)
	if err != nil || user.WebhookURL == nil || *user.WebhookURL == "" {
		return
	}

	event := "transaction.failed"
	if txn.Status == domain.StatusSuccess {
		event = "transaction.completed"
	}

	payload, err := json.Marshal(webhookEvent{
		Event: event,
		Transaction: webhookTransaction{
			ID:                txn.ID.String(),
			Type:              string(txn.Type),
			Amount:            txn.Amount.String(),
			Currency:          txn.Currency,
			Status:            string(txn.Status),
			BankTransactionID: txn.BankTransactionID,
			ErrorCode:         txn.ErrorCode,
			ErrorMessage:      txn.ErrorMessage,
			CreatedAt:         txn.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:         txn.UpdatedAt.UTC().Format(time.RFC3339),
		},
		Account: webhookAccountState{
			ID:      account.ID.String(),
			Balance: account.Balance.String(),
		},
	})
	if err != nil {
		s.logger.Error("failed to encode webhook payload", "transaction_id", txn.ID, "error", err)
		return
	}

	delivery := domain.NewWebhookDelivery(txn.ID, *user.WebhookURL, payload)
	if err := s.webhooks.Create(ctx, delivery); err != nil {
		s.logger.Error("failed to store webhook delivery", "transaction_id", txn.ID, "error", err)
		return
	}

	envelope, err := queue.NewTaskEnvelope(queue.TaskDeliverWebhook, queue.WebhookTask{DeliveryID: delivery.ID.String()})
	if err != nil {
		s.logger.Error("failed to build webhook task", "delivery_id", delivery.ID, "error", err)
		return
	}
	if err := s.publisher.PublishWebhook(ctx, envelope); err != nil {
		s.logger.Error("failed to enqueue webhook delivery", "delivery_id", delivery.ID, "error", err)
		return
	}

	s.logger.Info("webhook queued",
		"transaction_id", txn.ID,
		"delivery_id", delivery.ID,
		"webhook_url", *user.WebhookURL,
	)
}

// enqueueTransaction publishes the processing job and stamps its task id on
// the row so support can correlate the two.
func (s *TransactionService) enqueueTransaction(ctx context.Context, txn *domain.Transaction, userID uuid.UUID) error {
	taskName := queue.TaskProcessDeposit
	if txn.Type == domain.TypeWithdrawal {
		taskName = queue.TaskProcessWithdrawal
	}

	envelope, err := queue.NewTaskEnvelope(taskName, queue.TransactionTask{
		TransactionID: txn.ID.String(),
		AccountID:     txn.AccountID.String(),
		Amount:        txn.Amount.String(),
		UserID:        userID.String(),
	})
	if err != nil {
		return application.NewInternalError(err)
	}

	if err := s.publisher.PublishTransaction(ctx, envelope); err != nil {
		return application.NewInternalError(err)
	}

	txn.TaskID = &envelope.TaskID
	if err := s.transactions.Update(ctx, txn); err != nil {
		s.logger.Error("failed to stamp task id", "transaction_id", txn.ID, "error", err)
	}

	metrics.TransactionsTotal.WithLabelValues(string(txn.Type), string(domain.StatusPending)).Inc()
	amount, _ := txn.Amount.Float64()
	metrics.TransactionAmount.WithLabelValues(string(txn.Type)).Observe(amount)
	return nil
}
