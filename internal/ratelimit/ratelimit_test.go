package ratelimit

import (
	"context"
	"errors"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/observability"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(rpm, burst int) *Config {
	return &Config{RequestsPerMinute: rpm, Burst: burst, Window: time.Minute, KeyPrefix: "test:"}
}

func setupRedis(t *testing.T, cfg *Config) (*miniredis.Miniredis, *RedisLimiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisLimiterFromClient(client, cfg)
	t.Cleanup(func() { _ = limiter.Close() })
	return mr, limiter
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"valid", testConfig(60, 5), false},
		{"zero rate", testConfig(0, 5), true},
		{"negative burst", testConfig(60, -1), true},
		{"zero window", &Config{RequestsPerMinute: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_PicksLocalWithoutRedis(t *testing.T) {
	limiter, err := New(testConfig(60, 1))
	require.NoError(t, err)
	assert.IsType(t, &LocalLimiter{}, limiter)

	_, err = New(testConfig(0, 1))
	assert.Error(t, err)
}

func TestLocalLimiter(t *testing.T) {
	limiter := NewLocalLimiter(testConfig(60, 2))
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Check(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i)
	}

	res, err := limiter.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, time.Second, res.RetryAfter, float64(10*time.Millisecond))

	other, err := limiter.Check(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(time.Second)
	res, err = limiter.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	limiter.Reset("client-a")
	assert.NoError(t, limiter.Close())
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	_, limiter := setupRedis(t, testConfig(2, 0))
	windowStart := time.UnixMilli(28_333_333 * 60_000)
	now := windowStart.Add(10 * time.Second)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := limiter.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, 1, first.Remaining)
	assert.Equal(t, "test:client-a", first.Key)

	second, err := limiter.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	denied, err := limiter.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 50*time.Second, denied.RetryAfter)
	assert.Equal(t, windowStart.Add(time.Minute).UnixMilli(), denied.ResetTime.UnixMilli())

	now = windowStart.Add(time.Minute + time.Second)
	next, err := limiter.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, next.Allowed)
	assert.Equal(t, 1, next.Count)
}

func TestRedisLimiter_Reset(t *testing.T) {
	_, limiter := setupRedis(t, testConfig(1, 0))
	ctx := context.Background()

	res, err := limiter.Check(ctx, "client-a")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	require.NoError(t, limiter.Reset(ctx, "client-a"))
	res, err = limiter.Check(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.NoError(t, limiter.IsHealthy(ctx))
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr, limiter := setupRedis(t, testConfig(1, 0))
	mr.Close()

	_, err := limiter.Check(context.Background(), "client-a")
	assert.Error(t, err)
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string) (*LimitResult, error) {
	return nil, errors.New("connection refused")
}
func (failingLimiter) Close() error { return nil }

func TestGuard(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(60, 1)
	local := NewLocalLimiter(cfg)
	now := time.Unix(1_700_000_000, 0)
	local.now = func() time.Time { return now }

	guard := NewGuard(local, cfg, nil, observability.NewMetrics())
	require.NoError(t, guard.Allow(ctx, "letta_job_monitor", "stdio"))

	err := guard.Allow(ctx, "letta_job_monitor", "stdio")
	require.Error(t, err)
	assert.Equal(t, mcperrors.ErrorCodeRateLimited, mcperrors.CodeOf(err))
	assert.True(t, mcperrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "60 requests per minute")

	t.Run("nil limiter allows", func(t *testing.T) {
		var g *Guard
		assert.NoError(t, g.Allow(ctx, "tool", "client"))
		assert.NoError(t, NewGuard(nil, cfg, nil, nil).Allow(ctx, "tool", "client"))
	})

	t.Run("limiter failure allows", func(t *testing.T) {
		g := NewGuard(failingLimiter{}, cfg, nil, nil)
		assert.NoError(t, g.Allow(ctx, "tool", "client"))
	})
}
