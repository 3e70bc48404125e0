package application

import (
	"context"
	"errors"
	"strings"

	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/bank"
)

// ErrorCategory represents the nature of an error for retry logic
type ErrorCategory string

const (
	CategoryTransient      ErrorCategory = "TRANSIENT"
	CategoryPermanent      ErrorCategory = "PERMANENT"
	CategoryBusinessRule   ErrorCategory = "BUSINESS_RULE"
	CategoryClientError    ErrorCategory = "CLIENT_ERROR"
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	// Context errors (transient network/timeout issues)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	// Business rules
	if errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrInvalidAmount) {
		return CategoryBusinessRule
	}

	// Losing the per-account lock race is transient, another worker simply
	// got there first.
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		return CategoryTransient
	}

	// State/transition errors are conflicts
	if errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		return CategoryBusinessRule
	}

	// Lookup failures
	if errors.Is(err, domain.ErrTransactionNotFound) ||
		errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrUserNotFound) ||
		errors.Is(err, domain.ErrMissingRequiredField) {
		return CategoryClientError
	}

	// Service/application errors
	if svcErr, ok := IsServiceError(err); ok {
		switch svcErr.Code {
		case ErrCodeInvalidInput, ErrCodeNotFound, ErrCodeForbidden:
			return CategoryClientError
		case ErrCodeInsufficientBalance:
			return CategoryBusinessRule
		case ErrCodeInternal:
			return CategoryInfrastructure
		}
	}

	// Bank errors (external API)
	if bankErr, ok := bank.IsBankError(err); ok {
		if bankErr.StatusCode >= 500 {
			return CategoryTransient
		}

		switch bankErr.Code {
		case "INSUFFICIENT_FUNDS", "INVALID_AMOUNT", "ACCOUNT_BLOCKED":
			return CategoryPermanent
		case "NOT_FOUND":
			return CategoryClientError
		case "BANK_TIMEOUT", "BANK_UNAVAILABLE":
			return CategoryTransient
		default:
			return CategoryPermanent
		}
	}

	// Infrastructure errors from the database or broker
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "timeout") {
		return CategoryInfrastructure
	}

	return CategoryTransient
}

// IsRetryable reports whether the worker should retry after this error.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient || c == CategoryInfrastructure
}
