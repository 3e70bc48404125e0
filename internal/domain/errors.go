package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Domain validation errors
const (
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	ErrCodeConcurrentUpdate     = "CONCURRENT_UPDATE"
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
)

// Sentinel errors, wrapped by the constructors below so call sites can use
// errors.Is against a stable identity.
var (
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrConcurrentUpdate        = errors.New("concurrent update")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrUserNotFound            = errors.New("user not found")
	ErrAccountNotFound         = errors.New("account not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrEmailTaken              = errors.New("email already registered")
	ErrMissingRequiredField    = errors.New("missing required field")
)

func NewInvalidTransitionError(from, to TransactionStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
		Err:     ErrInvalidTransition,
	}
}

func NewInvalidAmountError(amount decimal.Decimal) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount %s: must be positive", amount),
		Err:     ErrInvalidAmount,
	}
}

func NewInsufficientBalanceError(available, required decimal.Decimal) *DomainError {
	return &DomainError{
		Code:    ErrCodeInsufficientBalance,
		Message: fmt.Sprintf("insufficient balance: available %s, required %s", available, required),
		Err:     ErrInsufficientBalance,
	}
}

func NewConcurrentUpdateError(accountID uuid.UUID) *DomainError {
	return &DomainError{
		Code:    ErrCodeConcurrentUpdate,
		Message: fmt.Sprintf("account %s is locked by another process", accountID),
		Err:     ErrConcurrentUpdate,
	}
}

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingRequiredField,
		Message: fmt.Sprintf("%s is required", field),
		Err:     ErrMissingRequiredField,
	}
}
