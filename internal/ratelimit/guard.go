package ratelimit

import (
	"context"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/logging"
	"letta-mcp-server/internal/observability"
)

// Guard turns limiter decisions into tool errors
type Guard struct {
	limiter Limiter
	config  *Config
	logger  logging.Logger
	metrics *observability.Metrics
}

// NewGuard wraps limiter. A nil limiter allows every call.
func NewGuard(limiter Limiter, cfg *Config, logger logging.Logger, metrics *observability.Metrics) *Guard {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Guard{limiter: limiter, config: cfg, logger: logger.WithComponent("ratelimit"), metrics: metrics}
}

// Allow returns a RateLimited error when client has used its budget for
// tool. Limiter failures are logged and the call proceeds.
func (g *Guard) Allow(ctx context.Context, tool, client string) error {
	if g == nil || g.limiter == nil {
		return nil
	}
	res, err := g.limiter.Check(ctx, client)
	if err != nil {
		g.logger.WarnContext(ctx, "Rate limiter unavailable, allowing call", "tool", tool, "error", err.Error())
		return nil
	}
	if res.Allowed {
		return nil
	}
	g.metrics.RecordRateLimited(tool)
	g.logger.InfoContext(ctx, "Tool call rate limited", "tool", tool, "client", client, "retry_after", res.RetryAfter.String())
	return mcperrors.NewRateLimitError(g.config.RequestsPerMinute, g.config.windowLabel(), res.RetryAfter)
}

// Close releases the underlying limiter
func (g *Guard) Close() error {
	if g == nil || g.limiter == nil {
		return nil
	}
	return g.limiter.Close()
}
