// Package domain defines the domain models for the payment gateway.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money moving into or out of an account.
type TransactionType string

const (
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
)

// TransactionStatus represents the current state of a transaction in its lifecycle
type TransactionStatus string

const (
	StatusPending       TransactionStatus = "PENDING"
	StatusProcessing    TransactionStatus = "PROCESSING"
	StatusSuccess       TransactionStatus = "SUCCESS"
	StatusFailed        TransactionStatus = "FAILED"
	StatusPendingReview TransactionStatus = "PENDING_REVIEW"
)

// Transaction is the immutable log entry for one money movement. The status
// column is the only field that changes after creation, and only along the
// state machine below.
type Transaction struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Type      TransactionType
	Amount    decimal.Decimal
	Currency  string
	Status    TransactionStatus

	BankTransactionID *string
	BankResponse      *string
	ErrorCode         *string
	ErrorMessage      *string

	IdempotencyKey *string
	TaskID         *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTransaction builds a PENDING transaction. Amount must be strictly positive.
func NewTransaction(accountID uuid.UUID, kind TransactionType, amount decimal.Decimal, currency string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, NewInvalidAmountError(amount)
	}
	if currency == "" {
		return nil, NewMissingRequiredFieldError("currency")
	}
	now := time.Now().UTC()
	return &Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      kind,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransitionTo validates whether a transaction can move from its current
// status to the target status. It returns nil if the transition is allowed.
//
// Valid transitions are:
//   - Pending → Processing, Failed
//   - Processing → Success, Failed, PendingReview
//
// SUCCESS, FAILED and PENDING_REVIEW are terminal; no backwards transitions.
func (t *Transaction) CanTransitionTo(target TransactionStatus) error {
	switch t.Status {
	case StatusSuccess, StatusFailed, StatusPendingReview:
		return NewInvalidTransitionError(t.Status, target)

	case StatusPending:
		if target == StatusProcessing || target == StatusFailed {
			return nil
		}

	case StatusProcessing:
		if target == StatusProcessing {
			// Redelivered job re-marking PROCESSING is a no-op, not an error.
			return nil
		}
		if target == StatusSuccess || target == StatusFailed || target == StatusPendingReview {
			return nil
		}
	}
	return NewInvalidTransitionError(t.Status, target)
}

func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusSuccess, StatusFailed, StatusPendingReview:
		return true
	default:
		return false
	}
}
