package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/bank"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
)

type fakeStore struct {
	txn *domain.Transaction

	getErr        error
	updatedTo     []domain.TransactionStatus
	reviewReasons []string
}

func (f *fakeStore) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.txn, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id uuid.UUID, target domain.TransactionStatus) (*domain.Transaction, error) {
	f.updatedTo = append(f.updatedTo, target)
	f.txn.Status = target
	return f.txn, nil
}

func (f *fakeStore) MarkPendingReview(ctx context.Context, id uuid.UUID, reason string, bankResponse *string) (*domain.Transaction, error) {
	f.reviewReasons = append(f.reviewReasons, reason)
	f.txn.Status = domain.StatusPendingReview
	return f.txn, nil
}

type settlement struct {
	completed bool
	failed    bool
	errorCode string
}

func stubStrategy(resp *bank.ProcessResponse, callErr error, rec *settlement) Strategy {
	return Strategy{
		TaskName:  queue.TaskProcessDeposit,
		Operation: "deposit",
		CallBank: func(ctx context.Context, req bank.ProcessRequest) (*bank.ProcessResponse, error) {
			return resp, callErr
		},
		Complete: func(ctx context.Context, id uuid.UUID, bankTxnID string, bankResponse *string) (*domain.Transaction, error) {
			rec.completed = true
			return nil, nil
		},
		Fail: func(ctx context.Context, id uuid.UUID, code, message string, bankResponse *string) (*domain.Transaction, error) {
			rec.failed = true
			rec.errorCode = code
			return nil, nil
		},
	}
}

func testEnvelope(t *testing.T, txn *domain.Transaction) *queue.TaskEnvelope {
	t.Helper()
	envelope, err := queue.NewTaskEnvelope(queue.TaskProcessDeposit, queue.TransactionTask{
		TransactionID: txn.ID.String(),
		AccountID:     txn.AccountID.String(),
		Amount:        txn.Amount.String(),
		UserID:        uuid.NewString(),
	})
	require.NoError(t, err)
	return envelope
}

func newPendingTransaction(t *testing.T) *domain.Transaction {
	t.Helper()
	txn, err := domain.NewTransaction(uuid.New(), domain.TypeDeposit, decimal.NewFromInt(100), "USD")
	require.NoError(t, err)
	return txn
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestProcessor_BankSuccess(t *testing.T) {
	txn := newPendingTransaction(t)
	store := &fakeStore{txn: txn}
	rec := &settlement{}
	strat := stubStrategy(&bank.ProcessResponse{
		Status:        bank.StatusSuccess,
		TransactionID: "BANK-123",
	}, nil, rec)

	p := NewProcessor(store, testLogger())
	err := p.Process(context.Background(), testEnvelope(t, txn), strat)

	require.NoError(t, err)
	assert.True(t, rec.completed)
	assert.False(t, rec.failed)
	assert.Equal(t, []domain.TransactionStatus{domain.StatusProcessing}, store.updatedTo)
}

func TestProcessor_BankDeclined(t *testing.T) {
	txn := newPendingTransaction(t)
	store := &fakeStore{txn: txn}
	rec := &settlement{}
	strat := stubStrategy(&bank.ProcessResponse{
		Status:    bank.StatusInsufficientFunds,
		ErrorCode: "INSUFFICIENT_FUNDS",
		Message:   "not enough money",
	}, nil, rec)

	p := NewProcessor(store, testLogger())
	err := p.Process(context.Background(), testEnvelope(t, txn), strat)

	require.NoError(t, err)
	assert.True(t, rec.failed)
	assert.False(t, rec.completed)
	assert.Equal(t, "INSUFFICIENT_FUNDS", rec.errorCode)
}

func TestProcessor_BankTimeoutIsRetryable(t *testing.T) {
	txn := newPendingTransaction(t)
	store := &fakeStore{txn: txn}
	rec := &settlement{}
	strat := stubStrategy(&bank.ProcessResponse{
		Status:  bank.StatusTimeout,
		Message: "bank timed out",
	}, nil, rec)

	p := NewProcessor(store, testLogger())
	err := p.Process(context.Background(), testEnvelope(t, txn), strat)

	require.Error(t, err)
	bankErr, ok := bank.IsBankError(err)
	require.True(t, ok)
	assert.True(t, bankErr.IsRetryable())
	assert.True(t, application.CategorizeError(err).IsRetryable())
	assert.False(t, rec.completed)
	assert.False(t, rec.failed)
}

func TestProcessor_TransportErrorPropagates(t *testing.T) {
	txn := newPendingTransaction(t)
	store := &fakeStore{txn: txn}
	rec := &settlement{}
	cause := errors.New("connection refused")
	strat := stubStrategy(nil, cause, rec)

	p := NewProcessor(store, testLogger())
	err := p.Process(context.Background(), testEnvelope(t, txn), strat)

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, application.CategorizeError(err).IsRetryable())
}

func TestProcessor_TerminalTransactionSkipped(t *testing.T) {
	txn := newPendingTransaction(t)
	txn.Status = domain.StatusSuccess
	store := &fakeStore{txn: txn}
	rec := &settlement{}
	strat := stubStrategy(&bank.ProcessResponse{Status: bank.StatusSuccess}, nil, rec)

	p := NewProcessor(store, testLogger())
	err := p.Process(context.Background(), testEnvelope(t, txn), strat)

	require.NoError(t, err)
	assert.False(t, rec.completed)
	assert.Empty(t, store.updatedTo)
}

func TestProcessor_MissingTransactionDropped(t *testing.T) {
	store := &fakeStore{getErr: application.NewNotFoundError("transaction")}
	rec := &settlement{}
	strat := stubStrategy(&bank.ProcessResponse{Status: bank.StatusSuccess}, nil, rec)

	txn := newPendingTransaction(t)
	p := NewProcessor(store, testLogger())
	err := p.Process(context.Background(), testEnvelope(t, txn), strat)

	require.NoError(t, err)
	assert.False(t, rec.completed)
}

func TestProcessor_MalformedBody(t *testing.T) {
	store := &fakeStore{}
	rec := &settlement{}
	strat := stubStrategy(nil, nil, rec)

	envelope := &queue.TaskEnvelope{
		TaskID:   uuid.NewString(),
		TaskName: queue.TaskProcessDeposit,
		Body:     json.RawMessage(`{"transaction_id": "not-a-uuid"}`),
	}

	p := NewProcessor(store, testLogger())
	err := p.Process(context.Background(), envelope, strat)

	assert.ErrorIs(t, err, ErrMalformedTask)
}

func TestProcessor_UnknownBankStatusParksForReview(t *testing.T) {
	txn := newPendingTransaction(t)
	store := &fakeStore{txn: txn}
	rec := &settlement{}
	strat := stubStrategy(&bank.ProcessResponse{Status: "SOMETHING_NEW"}, nil, rec)

	p := NewProcessor(store, testLogger())
	err := p.Process(context.Background(), testEnvelope(t, txn), strat)

	require.NoError(t, err)
	assert.False(t, rec.completed)
	assert.False(t, rec.failed)
	require.Len(t, store.reviewReasons, 1)
	assert.Contains(t, store.reviewReasons[0], "SOMETHING_NEW")
}

func TestRetryBackoff(t *testing.T) {
	maxDelay := 600 * time.Second

	first := retryBackoff(0, maxDelay)
	assert.GreaterOrEqual(t, first, 4*time.Second)
	assert.LessOrEqual(t, first, 6*time.Second)

	third := retryBackoff(2, maxDelay)
	assert.GreaterOrEqual(t, third, 16*time.Second)
	assert.LessOrEqual(t, third, 24*time.Second)

	// Jitter is applied before the clamp, so the cap is a hard ceiling.
	for i := 0; i < 20; i++ {
		assert.LessOrEqual(t, retryBackoff(10, maxDelay), maxDelay)
	}
}
