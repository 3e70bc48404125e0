package application

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/bank"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
	}{
		{
			name:      "lock contention is transient",
			err:       domain.NewConcurrentUpdateError(uuid.New()),
			category:  CategoryTransient,
			retryable: true,
		},
		{
			name:      "duplicate idempotency key is a conflict",
			err:       domain.ErrDuplicateIdempotencyKey,
			category:  CategoryBusinessRule,
			retryable: false,
		},
		{
			name:      "insufficient balance is a business rule",
			err:       domain.NewInsufficientBalanceError(decimal.Zero, decimal.NewFromInt(10)),
			category:  CategoryBusinessRule,
			retryable: false,
		},
		{
			name:      "invalid transition is a business rule",
			err:       domain.NewInvalidTransitionError(domain.StatusSuccess, domain.StatusProcessing),
			category:  CategoryBusinessRule,
			retryable: false,
		},
		{
			name:      "transaction not found is a client error",
			err:       domain.ErrTransactionNotFound,
			category:  CategoryClientError,
			retryable: false,
		},
		{
			name:      "bank 5xx is transient",
			err:       &bank.BankError{StatusCode: 503, Code: "BANK_UNAVAILABLE"},
			category:  CategoryTransient,
			retryable: true,
		},
		{
			name:      "bank decline is permanent",
			err:       &bank.BankError{StatusCode: 400, Code: "INSUFFICIENT_FUNDS"},
			category:  CategoryPermanent,
			retryable: false,
		},
		{
			name:      "context deadline is transient",
			err:       context.DeadlineExceeded,
			category:  CategoryTransient,
			retryable: true,
		},
		{
			name:      "connection refused is infrastructure",
			err:       errors.New("dial tcp: connection refused"),
			category:  CategoryInfrastructure,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category := CategorizeError(tt.err)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, tt.retryable, category.IsRetryable())
		})
	}
}
