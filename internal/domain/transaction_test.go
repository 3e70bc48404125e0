package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransaction(t *testing.T) {
	accountID := uuid.New()

	t.Run("valid deposit", func(t *testing.T) {
		tx, err := NewTransaction(accountID, TypeDeposit, decimal.RequireFromString("100.00"), "USD")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, tx.Status)
		assert.Equal(t, TypeDeposit, tx.Type)
		assert.NotEqual(t, uuid.Nil, tx.ID)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		_, err := NewTransaction(accountID, TypeDeposit, decimal.Zero, "USD")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidAmount))
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		_, err := NewTransaction(accountID, TypeWithdrawal, decimal.RequireFromString("-5.00"), "USD")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidAmount))
	})

	t.Run("missing currency rejected", func(t *testing.T) {
		_, err := NewTransaction(accountID, TypeDeposit, decimal.RequireFromString("1.00"), "")
		require.Error(t, err)
	})
}

func TestTransaction_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    TransactionStatus
		to      TransactionStatus
		allowed bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to success", StatusPending, StatusSuccess, false},
		{"processing to success", StatusProcessing, StatusSuccess, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"processing to pending review", StatusProcessing, StatusPendingReview, true},
		{"processing re-marked processing", StatusProcessing, StatusProcessing, true},
		{"processing back to pending", StatusProcessing, StatusPending, false},
		{"success is terminal", StatusSuccess, StatusProcessing, false},
		{"failed is terminal", StatusFailed, StatusProcessing, false},
		{"pending review is terminal", StatusPendingReview, StatusSuccess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &Transaction{Status: tt.from}
			err := tx.CanTransitionTo(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
			}
		})
	}
}

func TestTransaction_IsTerminal(t *testing.T) {
	terminal := []TransactionStatus{StatusSuccess, StatusFailed, StatusPendingReview}
	for _, s := range terminal {
		assert.True(t, (&Transaction{Status: s}).IsTerminal(), string(s))
	}
	for _, s := range []TransactionStatus{StatusPending, StatusProcessing} {
		assert.False(t, (&Transaction{Status: s}).IsTerminal(), string(s))
	}
}

func TestAccount_CanWithdraw(t *testing.T) {
	acct := &Account{Balance: decimal.RequireFromString("100.00")}
	assert.True(t, acct.CanWithdraw(decimal.RequireFromString("100.00")))
	assert.True(t, acct.CanWithdraw(decimal.RequireFromString("99.99")))
	assert.False(t, acct.CanWithdraw(decimal.RequireFromString("100.01")))
}
