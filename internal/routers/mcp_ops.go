package routers

import (
	"context"
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/letta"
	"sort"
	"time"
)

// MCPOpsName is the MCP tool served by MCPOpsRouter
const MCPOpsName = "letta_mcp_ops"

// MCPOperation enumerates the operations of letta_mcp_ops
type MCPOperation string

const (
	MCPAdd          MCPOperation = "add"
	MCPUpdate       MCPOperation = "update"
	MCPDelete       MCPOperation = "delete"
	MCPTest         MCPOperation = "test"
	MCPConnect      MCPOperation = "connect"
	MCPResync       MCPOperation = "resync"
	MCPExecute      MCPOperation = "execute"
	MCPListServers  MCPOperation = "list_servers"
	MCPListTools    MCPOperation = "list_tools"
	MCPRegisterTool MCPOperation = "register_tool"
)

// AllMCPOperations lists every MCPOperation in catalogue order
var AllMCPOperations = []MCPOperation{
	MCPAdd, MCPUpdate, MCPDelete, MCPTest, MCPConnect, MCPResync,
	MCPExecute, MCPListServers, MCPListTools, MCPRegisterTool,
}

// MCPRequest is the union of every letta_mcp_ops argument
type MCPRequest struct {
	Operation    MCPOperation           `json:"operation,omitempty" mapstructure:"operation"`
	ServerName   string                 `json:"server_name,omitempty" mapstructure:"server_name"`
	ServerConfig map[string]interface{} `json:"server_config,omitempty" mapstructure:"server_config"`
	ToolName     string                 `json:"tool_name,omitempty" mapstructure:"tool_name"`
	ToolArgs     map[string]interface{} `json:"tool_args,omitempty" mapstructure:"tool_args"`
	OAuthConfig  map[string]interface{} `json:"oauth_config,omitempty" mapstructure:"oauth_config"`
	Pagination   *Pagination            `json:"pagination,omitempty" mapstructure:"pagination"`

	RequestHeartbeat bool `json:"request_heartbeat,omitempty" mapstructure:"request_heartbeat"`
}

// config returns the server config with server_name filled from the
// request when the config omits it
func (req *MCPRequest) config() letta.MCPServerConfig {
	cfg := make(letta.MCPServerConfig, len(req.ServerConfig)+1)
	for k, v := range req.ServerConfig {
		cfg[k] = v
	}
	if _, set := cfg["server_name"]; !set && req.ServerName != "" {
		cfg["server_name"] = req.ServerName
	}
	return cfg
}

// MCPToolSummary is the simplified view of an external server tool
type MCPToolSummary struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema,omitempty"`
}

// MCPResponse is the letta_mcp_ops envelope
type MCPResponse struct {
	Envelope
	Count      *int                    `json:"count,omitempty"`
	Servers    []letta.MCPServerConfig `json:"servers,omitempty"`
	Tools      []MCPToolSummary        `json:"tools,omitempty"`
	ServerName string                  `json:"server_name,omitempty"`
	ToolName   string                  `json:"tool_name,omitempty"`
}

// MCPOpsRouter serves letta_mcp_ops
type MCPOpsRouter struct {
	*dispatcher[MCPOperation, MCPRequest]
	client letta.Client
	now    func() time.Time
}

var _ Router = (*MCPOpsRouter)(nil)

// NewMCPOpsRouter builds the router; it fails if any operation lacks a handler
func NewMCPOpsRouter(client letta.Client, opts Options) (*MCPOpsRouter, error) {
	r := &MCPOpsRouter{client: client, now: time.Now}
	routes := map[MCPOperation]route[MCPRequest]{
		MCPAdd:          {requires: need("server_config"), handle: r.add},
		MCPUpdate:       {requires: need("server_name", "server_config"), handle: r.update},
		MCPDelete:       {requires: need("server_name"), handle: r.delete},
		MCPTest:         {requires: need("server_config"), handle: r.test},
		MCPConnect:      {requires: need("server_name"), handle: r.unsupported("persistent connections are managed by the Letta server")},
		MCPResync:       {requires: need("server_name"), handle: r.unsupported("tool resync is not exposed by the Letta API")},
		MCPExecute:      {requires: need("server_name", "tool_name"), handle: r.unsupported("register the tool and attach it to an agent instead")},
		MCPListServers:  {handle: r.listServers},
		MCPListTools:    {requires: need("server_name"), handle: r.listTools},
		MCPRegisterTool: {requires: need("server_name", "tool_name"), handle: r.registerTool},
	}

	d, err := newDispatcher(MCPOpsName,
		"External MCP server management: add, update, delete, test, list_servers, list_tools and register_tool. connect, resync and execute are reported as not implemented.",
		AllMCPOperations, routes, opts)
	if err != nil {
		return nil, err
	}
	r.dispatcher = d
	return r, nil
}

func (r *MCPOpsRouter) add(ctx context.Context, req *MCPRequest) (response, error) {
	cfg := req.config()
	servers, err := r.client.MCPServers().Add(ctx, cfg)
	if err != nil {
		return nil, err
	}
	name, _ := cfg["server_name"].(string)
	return &MCPResponse{
		Envelope:   ok("MCP server added successfully", nonNil(servers)),
		ServerName: name,
	}, nil
}

func (r *MCPOpsRouter) update(ctx context.Context, req *MCPRequest) (response, error) {
	server, err := r.client.MCPServers().Update(ctx, req.ServerName, req.config())
	if err != nil {
		return nil, err
	}
	return &MCPResponse{Envelope: ok("MCP server updated successfully", server), ServerName: req.ServerName}, nil
}

func (r *MCPOpsRouter) delete(ctx context.Context, req *MCPRequest) (response, error) {
	servers, err := r.client.MCPServers().Delete(ctx, req.ServerName)
	if err != nil {
		return nil, err
	}
	return &MCPResponse{Envelope: ok("MCP server deleted successfully", nonNil(servers)), ServerName: req.ServerName}, nil
}

func (r *MCPOpsRouter) test(ctx context.Context, req *MCPRequest) (response, error) {
	start := r.now()
	result, err := r.client.MCPServers().Test(ctx, req.config())
	if err != nil {
		return nil, err
	}
	latency := r.now().Sub(start).Milliseconds()

	data := map[string]interface{}{}
	if fields, isMap := result.(map[string]interface{}); isMap {
		for k, v := range fields {
			data[k] = v
		}
	} else if result != nil {
		data["result"] = result
	}
	data["connected"] = true
	data["latency_ms"] = latency

	return &MCPResponse{Envelope: ok("MCP server connection successful", data), ServerName: req.ServerName}, nil
}

func (r *MCPOpsRouter) unsupported(capability string) func(context.Context, *MCPRequest) (response, error) {
	return func(_ context.Context, req *MCPRequest) (response, error) {
		return nil, mcperrors.NewNotImplementedError(string(req.Operation), capability)
	}
}

func (r *MCPOpsRouter) listServers(ctx context.Context, _ *MCPRequest) (response, error) {
	byName, err := r.client.MCPServers().List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	servers := make([]letta.MCPServerConfig, 0, len(names))
	for _, name := range names {
		server := letta.MCPServerConfig{"name": name}
		for k, v := range byName[name] {
			server[k] = v
		}
		servers = append(servers, server)
	}
	return &MCPResponse{
		Envelope: ok(fmt.Sprintf("Found %d MCP servers", len(servers)), servers),
		Count:    countOf(len(servers)),
		Servers:  servers,
	}, nil
}

func (r *MCPOpsRouter) listTools(ctx context.Context, req *MCPRequest) (response, error) {
	tools, err := r.client.MCPServers().ListTools(ctx, req.ServerName)
	if err != nil {
		return nil, err
	}
	summaries := make([]MCPToolSummary, 0, len(tools))
	for _, t := range tools {
		summaries = append(summaries, MCPToolSummary{Name: t.Name, Description: t.Description, Schema: t.Schema()})
	}
	return &MCPResponse{
		Envelope:   ok(fmt.Sprintf("Found %d tools on server %s", len(summaries), req.ServerName), summaries),
		Count:      countOf(len(summaries)),
		Tools:      summaries,
		ServerName: req.ServerName,
	}, nil
}

func (r *MCPOpsRouter) registerTool(ctx context.Context, req *MCPRequest) (response, error) {
	tool, err := r.client.MCPServers().RegisterTool(ctx, req.ServerName, req.ToolName)
	if err != nil {
		return nil, err
	}
	return &MCPResponse{
		Envelope:   ok(fmt.Sprintf("Tool %s from %s registered successfully in Letta", req.ToolName, req.ServerName), tool),
		ServerName: req.ServerName,
		ToolName:   req.ToolName,
	}, nil
}
