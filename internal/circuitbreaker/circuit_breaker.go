// Package circuitbreaker guards the Letta backend from being hammered while
// it is failing
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"sync/atomic"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state before closing
	SuccessThreshold int
	// Timeout is the duration the circuit stays open before switching to half-open
	Timeout time.Duration
	// MaxConcurrentRequests in half-open state
	MaxConcurrentRequests int
	// IsFailure decides which errors count against the backend. Client
	// errors (missing entity, bad input) prove the backend is healthy.
	IsFailure func(error) bool
	// OnStateChange is called when the circuit state changes
	OnStateChange func(from, to State)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:      5,
		SuccessThreshold:      2,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 1,
		IsFailure:             mcperrors.IsRetryable,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	config *Config

	state           int32 // atomic State
	lastFailureTime int64 // atomic unix nano

	consecutiveFailures  int32
	consecutiveSuccesses int32
	halfOpenRequests     int32

	totalRequests   int64
	totalFailures   int64
	totalRejections int64
}

// New creates a new circuit breaker
func New(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.IsFailure == nil {
		config.IsFailure = mcperrors.IsRetryable
	}
	if config.MaxConcurrentRequests <= 0 {
		config.MaxConcurrentRequests = 1
	}

	return &CircuitBreaker{
		config: config,
		state:  int32(StateClosed),
	}
}

// Execute runs fn unless the circuit is open. Rejections are reported as
// ErrCircuitOpen or ErrTooManyConcurrentRequests.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.canExecute(); err != nil {
		atomic.AddInt64(&cb.totalRejections, 1)
		return err
	}

	atomic.AddInt64(&cb.totalRequests, 1)
	halfOpen := cb.getState() == StateHalfOpen

	err := fn(ctx)

	if err != nil && cb.config.IsFailure(err) {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
	if halfOpen {
		atomic.AddInt32(&cb.halfOpenRequests, -1)
	}

	return err
}

// canExecute checks if a request can be executed
func (cb *CircuitBreaker) canExecute() error {
	switch state := cb.getState(); state {
	case StateClosed:
		return nil

	case StateOpen:
		if !cb.openTimeoutElapsed() {
			return ErrCircuitOpen
		}
		cb.transitionTo(StateHalfOpen)
		return cb.admitHalfOpen()

	case StateHalfOpen:
		return cb.admitHalfOpen()

	default:
		return fmt.Errorf("unknown circuit breaker state: %v", state)
	}
}

func (cb *CircuitBreaker) admitHalfOpen() error {
	current := atomic.AddInt32(&cb.halfOpenRequests, 1)
	if current > int32(cb.config.MaxConcurrentRequests) { //nolint:gosec // small config value
		atomic.AddInt32(&cb.halfOpenRequests, -1)
		return ErrTooManyConcurrentRequests
	}
	return nil
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.getState() {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
	case StateHalfOpen:
		successes := atomic.AddInt32(&cb.consecutiveSuccesses, 1)
		if successes >= int32(cb.config.SuccessThreshold) { //nolint:gosec // small config value
			cb.transitionTo(StateClosed)
		}
	case StateOpen:
	}
}

func (cb *CircuitBreaker) recordFailure() {
	atomic.AddInt64(&cb.totalFailures, 1)
	atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())

	switch cb.getState() {
	case StateClosed:
		failures := atomic.AddInt32(&cb.consecutiveFailures, 1)
		if failures >= int32(cb.config.FailureThreshold) { //nolint:gosec // small config value
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		// Any failure in half-open state reopens the circuit
		cb.transitionTo(StateOpen)
	case StateOpen:
	}
}

func (cb *CircuitBreaker) openTimeoutElapsed() bool {
	lastFailure := atomic.LoadInt64(&cb.lastFailureTime)
	if lastFailure == 0 {
		return true
	}
	return time.Since(time.Unix(0, lastFailure)) >= cb.config.Timeout
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := State(atomic.SwapInt32(&cb.state, int32(newState)))
	if oldState == newState {
		return
	}

	switch newState {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	case StateOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	case StateHalfOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
		atomic.StoreInt32(&cb.halfOpenRequests, 0)
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, newState)
	}
}

func (cb *CircuitBreaker) getState() State {
	return State(atomic.LoadInt32(&cb.state))
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	return cb.getState()
}

// Stats holds circuit breaker statistics
type Stats struct {
	State             State
	TotalRequests     int64
	TotalFailures     int64
	TotalRejections   int64
	ConsecutiveErrors int32
}

// GetStats returns current statistics
func (cb *CircuitBreaker) GetStats() Stats {
	return Stats{
		State:             cb.getState(),
		TotalRequests:     atomic.LoadInt64(&cb.totalRequests),
		TotalFailures:     atomic.LoadInt64(&cb.totalFailures),
		TotalRejections:   atomic.LoadInt64(&cb.totalRejections),
		ConsecutiveErrors: atomic.LoadInt32(&cb.consecutiveFailures),
	}
}

// Errors
var (
	ErrCircuitOpen               = errors.New("circuit breaker is open")
	ErrTooManyConcurrentRequests = errors.New("too many concurrent requests in half-open state")
)
