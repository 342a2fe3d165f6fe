package cmd

import (
	"context"
	"errors"
	"fmt"
	"letta-mcp-server/internal/audit"
	"letta-mcp-server/internal/config"
	"letta-mcp-server/internal/letta"
	"letta-mcp-server/internal/observability"
	"letta-mcp-server/internal/ratelimit"
	"letta-mcp-server/internal/routers"
	"letta-mcp-server/internal/server"
	"letta-mcp-server/internal/transport"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var mode string
	var port int

	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Server.Transport = mode
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	c.Flags().StringVar(&mode, "transport", "", "transport to serve: stdio or http (overrides TRANSPORT)")
	c.Flags().IntVar(&port, "port", 0, "HTTP listen port (overrides PORT)")
	return c
}

// serve wires config, logging, telemetry, the backend client and the
// optional rate limiter and audit trail, then blocks on the transport
func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Logging)

	tracing, err := observability.NewTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", "error", err.Error())
		}
	}()
	metrics := observability.NewMetrics()

	client, err := letta.NewHTTPClient(cfg.Letta, logger)
	if err != nil {
		return err
	}

	all, err := routers.NewAll(client, routers.Options{
		Logger:  logger,
		Tracer:  tracing.Tracer(),
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	opts := server.Options{Logger: logger}

	if cfg.RateLimit.Enabled {
		rlConfig := ratelimit.FromConfig(cfg.RateLimit)
		limiter, err := ratelimit.New(rlConfig)
		if err != nil {
			return err
		}
		guard := ratelimit.NewGuard(limiter, rlConfig, logger, metrics)
		defer func() { _ = guard.Close() }()
		opts.Guard = guard
	}

	if cfg.Audit.Enabled {
		store, err := audit.Open(ctx, cfg.Audit.Driver, cfg.Audit.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		opts.Audit = store
	}

	s, err := server.New(all, opts)
	if err != nil {
		return err
	}

	logger.Info("Starting Letta MCP server",
		"version", config.ServiceVersion,
		"transport", cfg.Server.Transport,
		"backend", cfg.Letta.BaseURL,
	)

	switch cfg.Server.Transport {
	case config.TransportHTTP:
		h := transport.NewHTTP(cfg.Server, s, transport.HTTPOptions{
			Logger:  logger,
			Metrics: metrics,
			Health: func() map[string]interface{} {
				return map[string]interface{}{"backend_circuit": client.BreakerState()}
			},
		})
		err = h.Serve(ctx)
	default:
		err = transport.ServeStdio(ctx, s)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Transport stopped", "error", err.Error())
		return err
	}
	logger.Info("Letta MCP server stopped")
	return nil
}
