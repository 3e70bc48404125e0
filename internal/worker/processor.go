package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/bank"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
	"github.com/payflow-labs/payflow/internal/metrics"
)

// ErrMalformedTask marks envelopes whose body cannot be decoded. These go
// straight to the dead letter queue since a retry cannot fix them.
var ErrMalformedTask = errors.New("malformed task body")

// transactionStore is the slice of the transaction service the workers use.
type transactionStore interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, target domain.TransactionStatus) (*domain.Transaction, error)
	MarkPendingReview(ctx context.Context, id uuid.UUID, reason string, bankResponse *string) (*domain.Transaction, error)
}

// Processor drives one transaction through the bank and settles the result.
// It is safe to run the same task twice: terminal transactions are skipped,
// and the settlement paths are idempotent on re-entry.
type Processor struct {
	txns   transactionStore
	logger *slog.Logger
}

func NewProcessor(txns transactionStore, logger *slog.Logger) *Processor {
	return &Processor{
		txns:   txns,
		logger: logger.With("component", "processor"),
	}
}

func (p *Processor) Process(ctx context.Context, envelope *queue.TaskEnvelope, strat Strategy) error {
	var task queue.TransactionTask
	if err := json.Unmarshal(envelope.Body, &task); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}

	transactionID, err := uuid.Parse(task.TransactionID)
	if err != nil {
		return fmt.Errorf("%w: bad transaction id %q", ErrMalformedTask, task.TransactionID)
	}

	logger := p.logger.With(
		"task_id", envelope.TaskID,
		"transaction_id", transactionID,
		"operation", strat.Operation,
	)

	txn, err := p.txns.GetTransaction(ctx, transactionID)
	if err != nil {
		var svcErr *application.ServiceError
		if errors.As(err, &svcErr) && svcErr.Code == application.ErrCodeNotFound {
			logger.Warn("transaction gone, dropping task")
			return nil
		}
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	// Redelivered message for an already settled transaction.
	if txn.IsTerminal() {
		logger.Info("transaction already settled, skipping", "status", txn.Status)
		return nil
	}

	txn, err = p.txns.UpdateStatus(ctx, transactionID, domain.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark transaction processing: %w", err)
	}

	resp, err := strat.CallBank(ctx, bank.ProcessRequest{
		Amount:        task.Amount,
		Currency:      txn.Currency,
		UserID:        task.UserID,
		TransactionID: transactionID.String(),
	})
	if err != nil {
		metrics.BankCallsTotal.WithLabelValues(strat.Operation, "error").Inc()
		return fmt.Errorf("bank call failed: %w", err)
	}
	metrics.BankCallsTotal.WithLabelValues(strat.Operation, string(resp.Status)).Inc()

	bankResponse := marshalBankResponse(resp)

	switch resp.Status {
	case bank.StatusSuccess:
		if _, err := strat.Complete(ctx, transactionID, resp.TransactionID, bankResponse); err != nil {
			return fmt.Errorf("failed to complete transaction: %w", err)
		}
		logger.Info("transaction completed", "bank_transaction_id", resp.TransactionID)
		return nil

	case bank.StatusTimeout, bank.StatusUnavailable:
		// Transient on the bank side. Surface as a retryable bank error so
		// the worker reschedules the task.
		return &bank.BankError{
			Code:       defaultString(resp.ErrorCode, string(resp.Status)),
			Message:    defaultString(resp.Message, "bank did not process the request"),
			StatusCode: 503,
		}

	case bank.StatusFailed, bank.StatusInsufficientFunds:
		code := defaultString(resp.ErrorCode, string(resp.Status))
		message := defaultString(resp.Message, "bank declined the transaction")
		if _, err := strat.Fail(ctx, transactionID, code, message, bankResponse); err != nil {
			return fmt.Errorf("failed to record declined transaction: %w", err)
		}
		logger.Info("transaction declined by bank", "error_code", code)
		return nil

	default:
		// Never seen in practice. Park the transaction for a human instead
		// of guessing a settlement.
		reason := fmt.Sprintf("unrecognized bank status %q", resp.Status)
		if _, err := p.txns.MarkPendingReview(ctx, transactionID, reason, bankResponse); err != nil {
			return fmt.Errorf("failed to park transaction for review: %w", err)
		}
		logger.Error("unrecognized bank status, parked for review", "bank_status", resp.Status)
		return nil
	}
}

func marshalBankResponse(resp *bank.ProcessResponse) *string {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
