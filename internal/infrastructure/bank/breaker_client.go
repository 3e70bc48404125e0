package bank

import (
	"context"
	"log/slog"
	"time"
)

// Tried a threshold of 3 first but it tripped on normal failure noise.
const (
	defaultFailureThreshold = 5
	defaultTimeout          = 30 * time.Second
	defaultSuccessThreshold = 2
)

// BreakerClient guards a bank client with a circuit breaker. While the
// breaker is open it fails fast with an UNAVAILABLE response instead of
// hitting the bank. Only outages count as breaker failures: TIMEOUT and
// UNAVAILABLE verdicts and transport errors. Business declines such as
// INSUFFICIENT_FUNDS say nothing about the bank's health.
type BreakerClient struct {
	inner   Client
	breaker *CircuitBreaker
	logger  *slog.Logger
}

func NewBreakerClient(inner Client, logger *slog.Logger) *BreakerClient {
	return &BreakerClient{
		inner:   inner,
		breaker: NewCircuitBreaker("bank_api", defaultFailureThreshold, defaultTimeout, defaultSuccessThreshold, logger),
		logger:  logger,
	}
}

func (b *BreakerClient) ProcessDeposit(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	return b.execute(ctx, req, b.inner.ProcessDeposit)
}

func (b *BreakerClient) ProcessWithdrawal(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	return b.execute(ctx, req, b.inner.ProcessWithdrawal)
}

// BreakerState exposes the breaker snapshot for the admin endpoint.
func (b *BreakerClient) BreakerState() CircuitBreakerState {
	return b.breaker.State()
}

func (b *BreakerClient) execute(
	ctx context.Context,
	req ProcessRequest,
	call func(ctx context.Context, req ProcessRequest) (*ProcessResponse, error),
) (*ProcessResponse, error) {
	if !b.breaker.CanExecute() {
		b.logger.Warn("bank call rejected, circuit open",
			"transaction_id", req.TransactionID,
		)
		return &ProcessResponse{
			Status:    StatusUnavailable,
			Message:   "Bank service is currently unavailable (circuit breaker OPEN)",
			ErrorCode: "CIRCUIT_BREAKER_OPEN",
		}, nil
	}

	resp, err := call(ctx, req)
	if err != nil {
		b.breaker.RecordFailure()
		if IsTimeout(err) {
			return nil, &BankError{
				Code:       "BANK_TIMEOUT",
				Message:    err.Error(),
				StatusCode: 504,
			}
		}
		return nil, err
	}

	switch resp.Status {
	case StatusTimeout, StatusUnavailable:
		b.breaker.RecordFailure()
	case StatusSuccess:
		b.breaker.RecordSuccess()
	}
	return resp, nil
}
