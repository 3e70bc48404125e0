package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/domain"
)

// BankCallback is the bank's out-of-band verdict for one transaction.
type BankCallback struct {
	TransactionID     uuid.UUID
	Status            string
	BankTransactionID string
	Message           string
	ErrorCode         string
}

// ProcessBankCallback applies a verified bank callback to its transaction.
func (s *TransactionService) ProcessBankCallback(ctx context.Context, cb BankCallback) error {
	txn, err := s.transactions.FindByID(ctx, cb.TransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return application.NewNotFoundError("Transaction")
		}
		return application.NewInternalError(err)
	}

	bankTxID := cb.BankTransactionID
	if bankTxID == "" {
		bankTxID = "UNKNOWN"
	}
	errorCode := cb.ErrorCode
	if errorCode == "" {
		errorCode = "BANK_ERROR"
	}
	errorMessage := cb.Message
	if errorMessage == "" {
		errorMessage = "Bank processing failed"
	}
	var bankResponse *string
	if cb.Message != "" {
		bankResponse = &cb.Message
	}

	success := cb.Status == "SUCCESS"
	switch txn.Type {
	case domain.TypeDeposit:
		if success {
			_, err = s.CompleteDeposit(ctx, txn.ID, bankTxID, bankResponse)
		} else {
			_, err = s.FailDeposit(ctx, txn.ID, errorCode, errorMessage, bankResponse)
		}
	case domain.TypeWithdrawal:
		if success {
			_, err = s.CompleteWithdrawal(ctx, txn.ID, bankTxID, bankResponse)
		} else {
			_, err = s.FailWithdrawal(ctx, txn.ID, errorCode, errorMessage, bankResponse)
		}
	default:
		return application.NewInvalidInputError("unknown transaction type", nil)
	}

	if err != nil {
		s.logger.Error("bank callback processing failed",
			"transaction_id", cb.TransactionID,
			"bank_status", cb.Status,
			"error", err,
		)
		return err
	}

	s.logger.Info("bank callback processed",
		"transaction_id", cb.TransactionID,
		"bank_status", cb.Status,
	)
	return nil
}
