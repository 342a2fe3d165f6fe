package retry

import (
	"context"
	"errors"
	mcperrors "letta-mcp-server/internal/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetrier_RetriesBackendFailures(t *testing.T) {
	calls := 0
	result := New(fastConfig(3)).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return mcperrors.NewBackendError("status 503", nil, nil)
		}
		return nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
}

func TestRetrier_DoesNotRetryClassifiedClientErrors(t *testing.T) {
	tests := []error{
		mcperrors.NewNotFoundError("agent", "agent-1"),
		mcperrors.NewUnauthorizedError("bad password"),
		mcperrors.NewInvalidPayloadError("body", "rejected", nil),
	}

	for _, want := range tests {
		t.Run(string(mcperrors.CodeOf(want)), func(t *testing.T) {
			calls := 0
			result := New(fastConfig(5)).Do(context.Background(), func(context.Context) error {
				calls++
				return want
			})

			assert.Equal(t, 1, calls)
			assert.Same(t, want, result.Err)
		})
	}
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	var retried []int
	cfg := fastConfig(2)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	result := New(cfg).Do(context.Background(), func(context.Context) error {
		return errors.New("connection reset")
	})

	require.Error(t, result.Err)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, []int{1}, retried)
}

func TestRetrier_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := New(fastConfig(3)).Do(ctx, func(context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})

	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, context.Canceled)
}
