// Package ratelimit throttles tool calls per client, either in process or
// shared across replicas through Redis
package ratelimit

import (
	"context"
	"fmt"
	"letta-mcp-server/internal/config"
	"time"
)

// DefaultKeyPrefix namespaces limiter keys in a shared Redis
const DefaultKeyPrefix = "letta-mcp:ratelimit:"

// Config represents the rate limiting configuration
type Config struct {
	RequestsPerMinute int           `json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `json:"burst" yaml:"burst"`
	Window            time.Duration `json:"window" yaml:"window"`
	KeyPrefix         string        `json:"key_prefix" yaml:"key_prefix"`
	RedisURL          string        `json:"-" yaml:"redis_url"`
}

// FromConfig maps the application rate limit section
func FromConfig(c config.RateLimitConfig) *Config {
	return &Config{
		RequestsPerMinute: c.RequestsPerMinute,
		Burst:             c.Burst,
		Window:            time.Minute,
		KeyPrefix:         DefaultKeyPrefix,
		RedisURL:          c.RedisURL,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests per minute must be positive")
	}
	if c.Burst < 0 {
		return fmt.Errorf("burst cannot be negative")
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	return nil
}

// windowLabel renders the window for error messages
func (c *Config) windowLabel() string {
	if c.Window == time.Minute {
		return "minute"
	}
	return c.Window.String()
}

// LimitResult represents the result of a rate limit check
type LimitResult struct {
	Allowed    bool          `json:"allowed"`
	Count      int           `json:"count"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
	ResetTime  time.Time     `json:"reset_time"`
	Key        string        `json:"key"`
}

// Limiter decides whether one more call under key may proceed
type Limiter interface {
	Check(ctx context.Context, key string) (*LimitResult, error)
	Close() error
}

// New returns a Redis limiter when a Redis URL is configured and an in
// process limiter otherwise
func New(cfg *Config) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.RedisURL != "" {
		return NewRedisLimiter(cfg)
	}
	return NewLocalLimiter(cfg), nil
}
