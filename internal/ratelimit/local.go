package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is a token bucket per key, held in process memory
type LocalLimiter struct {
	config   *Config
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

// NewLocalLimiter creates an in process limiter
func NewLocalLimiter(cfg *Config) *LocalLimiter {
	return &LocalLimiter{
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

func (l *LocalLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, found := l.limiters[key]
	if !found {
		perSecond := float64(l.config.RequestsPerMinute) / l.config.Window.Seconds()
		burst := l.config.Burst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSecond), burst)
		l.limiters[key] = lim
	}
	return lim
}

// Check consumes one token for key when one is available
func (l *LocalLimiter) Check(_ context.Context, key string) (*LimitResult, error) {
	lim := l.limiterFor(key)
	now := l.now()

	result := &LimitResult{Limit: l.config.RequestsPerMinute, Key: key}
	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		result.RetryAfter = delay
		result.ResetTime = now.Add(delay)
		return result, nil
	}

	result.Allowed = true
	result.Remaining = int(math.Max(0, math.Floor(lim.TokensAt(now))))
	result.ResetTime = now
	return result, nil
}

// Reset forgets the bucket for key
func (l *LocalLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// Close releases nothing; it satisfies Limiter
func (l *LocalLimiter) Close() error { return nil }
