// Package retry provides retry mechanisms with exponential backoff
package retry

import (
	"context"
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts     int              // Maximum number of attempts (0 = unlimited)
	InitialDelay    time.Duration    // Initial delay between retries
	MaxDelay        time.Duration    // Maximum delay between retries
	Multiplier      float64          // Backoff multiplier
	RandomizeFactor float64          // Jitter factor (0-1)
	RetryIf         func(error) bool // Function to determine if error is retryable
	OnRetry         func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         DefaultRetryIf,
	}
}

// Operation represents a retryable operation
type Operation func(ctx context.Context) error

// Result contains the result of a retry operation
type Result struct {
	Attempts int           // Number of attempts made
	Duration time.Duration // Total duration of all attempts
	Err      error         // Final error (nil if successful)
}

// Retrier provides retry functionality
type Retrier struct {
	config *Config
}

// New creates a new retrier with the given configuration
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.RandomizeFactor < 0 {
		config.RandomizeFactor = 0
	} else if config.RandomizeFactor > 1 {
		config.RandomizeFactor = 1
	}
	if config.RetryIf == nil {
		config.RetryIf = DefaultRetryIf
	}
	return &Retrier{config: config}
}

// Do executes the operation with retries. The last operation error is
// returned unwrapped so its classification survives.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	start := time.Now()
	result := &Result{Attempts: 0}

	var lastErr error
	delay := r.config.InitialDelay

retryLoop:
	for attempt := 1; r.config.MaxAttempts == 0 || attempt <= r.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		// Check context cancellation
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = fmt.Errorf("context cancelled: %w", err)
			}
			break
		}

		err := op(ctx)
		if err == nil {
			result.Duration = time.Since(start)
			return result
		}

		lastErr = err

		if !r.config.RetryIf(err) {
			break
		}

		if r.config.MaxAttempts > 0 && attempt >= r.config.MaxAttempts {
			break
		}

		nextDelay := r.calculateDelay(delay)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, nextDelay)
		}

		timer := time.NewTimer(nextDelay)
		select {
		case <-timer.C:
			delay = r.nextDelay(delay)
		case <-ctx.Done():
			timer.Stop()
			break retryLoop
		}
	}

	result.Duration = time.Since(start)
	result.Err = lastErr
	return result
}

// calculateDelay adds jitter to the delay
func (r *Retrier) calculateDelay(delay time.Duration) time.Duration {
	if r.config.RandomizeFactor == 0 {
		return delay
	}

	delta := float64(delay) * r.config.RandomizeFactor
	minDelay := float64(delay) - delta
	maxDelay := float64(delay) + delta

	randomDelay := minDelay + rand.Float64()*(maxDelay-minDelay) //nolint:gosec // jitter only
	return time.Duration(randomDelay)
}

// nextDelay calculates the next delay with exponential backoff
func (r *Retrier) nextDelay(currentDelay time.Duration) time.Duration {
	nextDelay := time.Duration(float64(currentDelay) * r.config.Multiplier)
	if nextDelay > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return nextDelay
}

// DefaultRetryIf retries only errors the taxonomy marks retryable; input
// errors, not-found and auth failures are returned on the first attempt
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	return mcperrors.IsRetryable(err)
}
