// Package worker hosts the queue consumers: transaction processing against
// the bank, outbound webhook delivery, and dead letter capture.
package worker

import (
	"context"

	"github.com/google/uuid"

	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/bank"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
)

// Strategy binds a task name to the bank operation it performs and the
// service calls that settle the transaction afterwards. Deposits and
// withdrawals share the whole processing pipeline except these three hooks.
type Strategy struct {
	TaskName  string
	Operation string

	CallBank func(ctx context.Context, req bank.ProcessRequest) (*bank.ProcessResponse, error)
	Complete func(ctx context.Context, transactionID uuid.UUID, bankTransactionID string, bankResponse *string) (*domain.Transaction, error)
	Fail     func(ctx context.Context, transactionID uuid.UUID, errorCode, errorMessage string, bankResponse *string) (*domain.Transaction, error)
}

func DepositStrategy(txns *services.TransactionService, client bank.Client) Strategy {
	return Strategy{
		TaskName:  queue.TaskProcessDeposit,
		Operation: "deposit",
		CallBank:  client.ProcessDeposit,
		Complete:  txns.CompleteDeposit,
		Fail:      txns.FailDeposit,
	}
}

func WithdrawalStrategy(txns *services.TransactionService, client bank.Client) Strategy {
	return Strategy{
		TaskName:  queue.TaskProcessWithdrawal,
		Operation: "withdrawal",
		CallBank:  client.ProcessWithdrawal,
		Complete:  txns.CompleteWithdrawal,
		Fail:      txns.FailWithdrawal,
	}
}
