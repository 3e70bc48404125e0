package bank

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBankClient struct {
	resp *ProcessResponse
	err  error
}

func (c *stubBankClient) ProcessDeposit(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	return c.resp, c.err
}

func (c *stubBankClient) ProcessWithdrawal(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	return c.resp, c.err
}

func newBreakerClient(inner Client) *BreakerClient {
	return NewBreakerClient(inner, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBreakerClient_TimeoutBecomesRetryableBankError(t *testing.T) {
	client := newBreakerClient(&stubBankClient{err: context.DeadlineExceeded})

	_, err := client.ProcessDeposit(context.Background(), ProcessRequest{})
	require.Error(t, err)

	bankErr, ok := IsBankError(err)
	require.True(t, ok)
	assert.Equal(t, "BANK_TIMEOUT", bankErr.Code)
	assert.True(t, bankErr.IsRetryable())
}

func TestBreakerClient_NonTimeoutErrorPassesThrough(t *testing.T) {
	transport := errors.New("connection refused")
	client := newBreakerClient(&stubBankClient{err: transport})

	_, err := client.ProcessDeposit(context.Background(), ProcessRequest{})
	require.ErrorIs(t, err, transport)
	_, ok := IsBankError(err)
	assert.False(t, ok)
}

func TestBreakerClient_FailsFastWhileOpen(t *testing.T) {
	client := newBreakerClient(&stubBankClient{err: context.DeadlineExceeded})

	for i := 0; i < defaultFailureThreshold; i++ {
		_, err := client.ProcessDeposit(context.Background(), ProcessRequest{})
		require.Error(t, err)
	}

	resp, err := client.ProcessDeposit(context.Background(), ProcessRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, resp.Status)
	assert.Equal(t, "CIRCUIT_BREAKER_OPEN", resp.ErrorCode)
}

func TestBreakerClient_DeclinesDoNotTripBreaker(t *testing.T) {
	client := newBreakerClient(&stubBankClient{resp: &ProcessResponse{
		Status:    StatusFailed,
		ErrorCode: "INSUFFICIENT_FUNDS",
	}})

	for i := 0; i < defaultFailureThreshold+1; i++ {
		resp, err := client.ProcessDeposit(context.Background(), ProcessRequest{})
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, resp.Status)
	}
	assert.Equal(t, CircuitClosed, client.BreakerState().State)
}
