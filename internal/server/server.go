// Package server exposes the consolidated Letta routers as MCP tools
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"letta-mcp-server/internal/audit"
	"letta-mcp-server/internal/config"
	"letta-mcp-server/internal/docs"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/logging"
	"letta-mcp-server/internal/ratelimit"
	"letta-mcp-server/internal/routers"
	"letta-mcp-server/internal/schema"
	"time"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"
)

// CatalogURI is the resource holding the Markdown tool catalogue
const CatalogURI = "letta://tools/catalog"

// StdioClient identifies the single client of a stdio session
const StdioClient = "stdio"

type clientKey struct{}

// WithClient tags ctx with the identity rate limits and audit records use
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFrom returns the client identity on ctx, defaulting to stdio
func ClientFrom(ctx context.Context) string {
	if client, ok := ctx.Value(clientKey{}).(string); ok && client != "" {
		return client
	}
	return StdioClient
}

// Options carries optional collaborators
type Options struct {
	Name    string
	Version string
	Logger  logging.Logger
	Guard   *ratelimit.Guard
	Audit   audit.Recorder
}

// LettaServer wires the routers into a gomcp-sdk server
type LettaServer struct {
	mcpServer *server.Server
	tools     []*schema.Tool
	entries   map[string]entry
	guard     *ratelimit.Guard
	audit     audit.Recorder
	errors    *mcperrors.MCPErrorHandler
	logger    logging.Logger
	now       func() time.Time
}

type entry struct {
	router routers.Router
	tool   *schema.Tool
}

// New builds the tool schemas and registers one MCP tool per router
func New(all []routers.Router, opts Options) (*LettaServer, error) {
	if len(all) == 0 {
		return nil, fmt.Errorf("server: no routers to register")
	}
	if opts.Name == "" {
		opts.Name = config.ServiceName
	}
	if opts.Version == "" {
		opts.Version = config.ServiceVersion
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}

	s := &LettaServer{
		mcpServer: mcp.NewServer(opts.Name, opts.Version),
		guard:     opts.Guard,
		audit:     opts.Audit,
		errors:    mcperrors.NewMCPErrorHandler(),
		logger:    opts.Logger.WithComponent("mcp"),
		entries:   make(map[string]entry, len(all)),
		now:       time.Now,
	}

	for _, r := range all {
		tool, err := schema.Build(r)
		if err != nil {
			return nil, err
		}
		inputSchema, err := tool.Map()
		if err != nil {
			return nil, err
		}
		if _, dup := s.entries[tool.Name]; dup {
			return nil, fmt.Errorf("server: duplicate tool %s", tool.Name)
		}
		s.entries[tool.Name] = entry{router: r, tool: tool}
		s.mcpServer.AddTool(mcp.NewTool(tool.Name, tool.Description, inputSchema),
			mcp.ToolHandlerFunc(s.handler(tool.Name)))
		s.tools = append(s.tools, tool)
	}

	s.mcpServer.AddResource(
		mcp.NewResource(CatalogURI, "Letta tool catalogue", "Operations and arguments of every Letta tool", "text/markdown"),
		mcp.ResourceHandlerFunc(func(_ context.Context, _ string) ([]protocol.Content, error) {
			return []protocol.Content{protocol.NewContent(docs.Markdown(s.tools))}, nil
		}),
	)

	s.logger.Info("Registered Letta tools", "count", len(s.tools))
	return s, nil
}

// MCPServer returns the underlying protocol server for transports
func (s *LettaServer) MCPServer() *server.Server { return s.mcpServer }

// Tools returns the generated tool schemas in registration order
func (s *LettaServer) Tools() []*schema.Tool { return s.tools }

// Call runs one tool call: rate limit, argument validation, dispatch and
// audit. It returns the JSON envelope or the structured error.
func (s *LettaServer) Call(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	e, found := s.entries[name]
	if !found {
		return "", mcperrors.NewNotFoundError("tool", name)
	}

	traceID := logging.GetTraceID(ctx)
	if traceID == "" {
		traceID = logging.GenerateTraceID()
		ctx = logging.WithTraceID(ctx, traceID)
	}
	start := s.now()
	client := ClientFrom(ctx)

	err := s.guard.Allow(ctx, name, client)
	if err == nil {
		err = e.tool.Validate(params)
	}
	var out string
	if err == nil {
		out, err = e.router.Dispatch(ctx, params)
	}

	event := audit.Event{
		Tool:      name,
		Operation: operationOf(params),
		Success:   err == nil,
		Duration:  s.now().Sub(start),
		Client:    client,
		TraceID:   traceID,
	}
	if err != nil {
		event.ErrorCode = string(mcperrors.CodeOf(err))
	} else {
		event.Success, event.ErrorCode = envelopeOutcome(out)
	}
	s.record(ctx, event)

	return out, err
}

// handler adapts Call to the MCP tool contract. Failures become isError
// results carrying the structured error.
func (s *LettaServer) handler(name string) func(context.Context, map[string]interface{}) (interface{}, error) {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		out, err := s.Call(ctx, name, params)
		if err != nil {
			return s.errors.ToolCallError(ctx, err), nil
		}
		return protocol.NewToolCallResult(protocol.NewContent(out)), nil
	}
}

func (s *LettaServer) record(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to record audit event", "tool", event.Tool, "error", err.Error())
	}
}

// envelopeOutcome reads the success flag of a rendered envelope. A bulk call
// that failed some items reports the code of its first failure.
func envelopeOutcome(out string) (bool, string) {
	var env struct {
		Success *bool `json:"success"`
		Errors  []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(out), &env); err != nil || env.Success == nil || *env.Success {
		return true, ""
	}
	if len(env.Errors) > 0 {
		return false, env.Errors[0].Code
	}
	return false, ""
}

func operationOf(params map[string]interface{}) string {
	if op, ok := params["operation"].(string); ok {
		return op
	}
	return ""
}
