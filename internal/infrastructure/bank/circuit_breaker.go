package bank

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitState is the breaker's current mode.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreakerState is a point-in-time snapshot for the admin surface.
type CircuitBreakerState struct {
	Name             string       `json:"name"`
	State            CircuitState `json:"state"`
	FailureCount     int          `json:"failure_count"`
	SuccessCount     int          `json:"success_count"`
	FailureThreshold int          `json:"failure_threshold"`
	TimeoutSeconds   int          `json:"timeout_seconds"`
	LastFailureTime  *time.Time   `json:"last_failure_time"`
}

// CircuitBreaker trips after failureThreshold consecutive failures, rejects
// calls for the timeout window, then lets probes through in half-open and
// closes again after successThreshold consecutive successes.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	timeout          time.Duration
	successThreshold int
	logger           *slog.Logger

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime *time.Time

	// now is swappable in tests.
	now func() time.Time
}

func NewCircuitBreaker(name string, failureThreshold int, timeout time.Duration, successThreshold int, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		timeout:          timeout,
		successThreshold: successThreshold,
		logger:           logger,
		state:            CircuitClosed,
		now:              time.Now,
	}
}

// CanExecute reports whether a call may proceed. An open breaker whose
// timeout has elapsed moves to half-open and admits the probe.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.shouldAttemptReset() {
			cb.transitionToHalfOpen()
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.successCount++
		cb.logger.Info("circuit breaker probe succeeded",
			"name", cb.name,
			"success_count", cb.successCount,
			"success_threshold", cb.successThreshold,
		)
		if cb.successCount >= cb.successThreshold {
			cb.transitionToClosed()
		}
		return
	}
	cb.failureCount = 0
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	now := cb.now()
	cb.lastFailureTime = &now

	cb.logger.Warn("circuit breaker failure recorded",
		"name", cb.name,
		"failure_count", cb.failureCount,
		"failure_threshold", cb.failureThreshold,
		"state", string(cb.state),
	)

	switch cb.state {
	case CircuitHalfOpen:
		cb.transitionToOpen()
	case CircuitClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.transitionToOpen()
		}
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerState{
		Name:             cb.name,
		State:            cb.state,
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		FailureThreshold: cb.failureThreshold,
		TimeoutSeconds:   int(cb.timeout.Seconds()),
		LastFailureTime:  cb.lastFailureTime,
	}
}

func (cb *CircuitBreaker) shouldAttemptReset() bool {
	if cb.lastFailureTime == nil {
		return false
	}
	return cb.now().Sub(*cb.lastFailureTime) >= cb.timeout
}

func (cb *CircuitBreaker) transitionToOpen() {
	cb.state = CircuitOpen
	cb.successCount = 0
	cb.logger.Error("circuit breaker opened",
		"name", cb.name,
		"failure_count", cb.failureCount,
	)
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.state = CircuitHalfOpen
	cb.failureCount = 0
	cb.successCount = 0
	cb.logger.Info("circuit breaker half-opened", "name", cb.name)
}

func (cb *CircuitBreaker) transitionToClosed() {
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.logger.Info("circuit breaker closed", "name", cb.name)
}
