package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts calls per key in fixed windows.
// KEYS[1]: rate limit key
// ARGV[1]: limit, ARGV[2]: window in milliseconds, ARGV[3]: now in milliseconds
const fixedWindowScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local windowStart = math.floor(now / window) * window
local windowKey = key .. ':' .. windowStart

local current = tonumber(redis.call('GET', windowKey)) or 0
local allowed = 0
if current < limit then
    allowed = 1
    current = redis.call('INCR', windowKey)
    redis.call('PEXPIRE', windowKey, window)
end

local remaining = math.max(0, limit - current)
return {allowed, current, remaining, windowStart + window}
`

// RedisLimiter shares fixed-window counters between replicas
type RedisLimiter struct {
	client *redis.Client
	config *Config
	script *redis.Script
	now    func() time.Time
}

// NewRedisLimiter connects to the configured Redis URL
func NewRedisLimiter(cfg *Config) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisLimiterFromClient(rdb, cfg), nil
}

// NewRedisLimiterFromClient wraps an existing client
func NewRedisLimiterFromClient(client *redis.Client, cfg *Config) *RedisLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &RedisLimiter{
		client: client,
		config: cfg,
		script: redis.NewScript(fixedWindowScript),
		now:    time.Now,
	}
}

// Check counts one call under key in the current window
func (rl *RedisLimiter) Check(ctx context.Context, key string) (*LimitResult, error) {
	fullKey := rl.config.KeyPrefix + key
	now := rl.now()

	result, err := rl.script.Run(ctx, rl.client, []string{fullKey},
		rl.config.RequestsPerMinute, rl.config.Window.Milliseconds(), now.UnixMilli()).Result()
	if err != nil {
		return nil, fmt.Errorf("fixed window script failed: %w", err)
	}
	return rl.parseScriptResult(result, fullKey, now)
}

func (rl *RedisLimiter) parseScriptResult(result interface{}, key string, now time.Time) (*LimitResult, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) < 4 {
		return nil, fmt.Errorf("invalid script result format")
	}
	ints := make([]int64, 4)
	for i := range ints {
		v, err := strconv.ParseInt(fmt.Sprintf("%v", values[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse script result %d: %w", i, err)
		}
		ints[i] = v
	}

	resetTime := time.UnixMilli(ints[3])
	res := &LimitResult{
		Allowed:   ints[0] == 1,
		Count:     int(ints[1]),
		Limit:     rl.config.RequestsPerMinute,
		Remaining: int(ints[2]),
		ResetTime: resetTime,
		Key:       key,
	}
	if !res.Allowed {
		if wait := resetTime.Sub(now); wait > 0 {
			res.RetryAfter = wait
		}
	}
	return res, nil
}

// Reset clears the counter for key in the current window
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	window := rl.config.Window.Milliseconds()
	start := rl.now().UnixMilli() / window * window
	return rl.client.Del(ctx, fmt.Sprintf("%s%s:%d", rl.config.KeyPrefix, key, start)).Err()
}

// IsHealthy pings Redis
func (rl *RedisLimiter) IsHealthy(ctx context.Context) error {
	return rl.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (rl *RedisLimiter) Close() error {
	return rl.client.Close()
}
