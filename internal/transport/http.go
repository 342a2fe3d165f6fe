// Package transport serves the MCP server over stdio, HTTP and WebSocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"letta-mcp-server/internal/config"
	"letta-mcp-server/internal/docs"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/logging"
	"letta-mcp-server/internal/observability"
	"letta-mcp-server/internal/server"
	"net/http"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// maxBodyBytes caps JSON-RPC and direct call bodies; file uploads travel
// base64 encoded inside them
const maxBodyBytes = 32 * 1024 * 1024

// HTTPOptions carries optional collaborators of the HTTP transport
type HTTPOptions struct {
	Logger  logging.Logger
	Metrics *observability.Metrics
	Version string

	// Health reports extra fields for /health, such as the backend breaker state
	Health func() map[string]interface{}
}

// HTTPServer routes HTTP and WebSocket traffic to a LettaServer
type HTTPServer struct {
	config   config.ServerConfig
	server   *server.LettaServer
	mux      *chi.Mux
	auth     *bearerAuth
	upgrader websocket.Upgrader
	errors   *mcperrors.MCPErrorHandler
	logger   logging.Logger
	metrics  *observability.Metrics
	version  string
	health   func() map[string]interface{}
}

// NewHTTP builds the router for s
func NewHTTP(cfg config.ServerConfig, s *server.LettaServer, opts HTTPOptions) *HTTPServer {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Version == "" {
		opts.Version = config.ServiceVersion
	}

	h := &HTTPServer{
		config: cfg,
		server: s,
		mux:    chi.NewRouter(),
		auth:   newBearerAuth(cfg.AuthTokenHash),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		errors:  mcperrors.NewMCPErrorHandler(),
		logger:  opts.Logger.WithComponent("http"),
		metrics: opts.Metrics,
		version: opts.Version,
		health:  opts.Health,
	}
	h.setupMiddleware()
	h.setupRoutes()
	return h
}

// Handler returns the HTTP handler
func (h *HTTPServer) Handler() http.Handler {
	return h.mux
}

func (h *HTTPServer) setupMiddleware() {
	h.mux.Use(chimiddleware.Recoverer)
	h.mux.Use(h.traceMiddleware)
	h.mux.Use(h.observeMiddleware)
	h.mux.Use(chimiddleware.Heartbeat("/ping"))
}

func (h *HTTPServer) setupRoutes() {
	h.mux.Get("/health", h.handleHealth)
	if h.metrics != nil {
		h.mux.Handle("/metrics", h.metrics.Handler())
	}
	h.mux.Mount("/docs", docs.Handler(h.server.Tools(), h.version))

	h.mux.Group(func(r chi.Router) {
		r.Use(h.auth.middleware(h.errors))
		r.With(chimiddleware.RequestSize(maxBodyBytes)).Post("/mcp", h.handleRPC)
		r.With(chimiddleware.RequestSize(maxBodyBytes)).Post("/tools/{toolname}", h.handleToolCall)
		r.Get("/ws", h.handleWebSocket)
	})

	h.mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.errors.HandleHTTPError(r.Context(), w, mcperrors.NewNotFoundError("endpoint", r.URL.Path))
	})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{
		"status":  "healthy",
		"server":  config.ServiceName,
		"version": h.version,
		"tools":   len(h.server.Tools()),
	}
	if h.health != nil {
		for k, v := range h.health() {
			status[k] = v
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// handleRPC answers one JSON-RPC request through the MCP server
func (h *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req protocol.JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, &protocol.JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   protocol.NewJSONRPCError(protocol.ParseError, "Parse error", err.Error()),
		})
		return
	}
	resp := h.server.MCPServer().HandleRequest(r.Context(), &req)
	writeJSON(w, http.StatusOK, resp)
}

// handleToolCall runs a tool with the request body as its arguments and
// maps failures onto HTTP statuses
func (h *HTTPServer) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var args map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		h.errors.HandleHTTPError(r.Context(), w, mcperrors.NewInvalidPayloadError("arguments", "body must be a JSON object", nil))
		return
	}
	out, err := h.server.Call(r.Context(), chi.URLParam(r, "toolname"), args)
	if err != nil {
		h.errors.HandleHTTPError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// traceMiddleware tags each request with a trace id, reusing X-Request-ID
func (h *HTTPServer) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Request-ID")
		if traceID == "" {
			traceID = logging.GenerateTraceID()
		}
		w.Header().Set("X-Request-ID", traceID)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
	})
}

// observeMiddleware records metrics and logs every request except probes
func (h *HTTPServer) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		h.metrics.RecordHTTPRequest(r.Method, route, fmt.Sprint(status), duration)

		if route == "/health" || route == "/ping" {
			return
		}
		h.logger.InfoContext(r.Context(), "HTTP request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", duration.Milliseconds(),
		)
	})
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully
func (h *HTTPServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.config.Addr(),
		Handler:           h.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(h.config.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(h.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.logger.Info("HTTP transport listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// The parent context is already cancelled here
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h.logger.Info("Shutting down HTTP transport")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
