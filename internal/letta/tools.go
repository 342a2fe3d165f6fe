package letta

import (
	"context"
	"encoding/json"
	mcperrors "letta-mcp-server/internal/errors"
	"net/http"
)

type toolsAPI struct{ c *HTTPClient }

func (t *toolsAPI) List(ctx context.Context, params ListParams) ([]Tool, error) {
	var tools []Tool
	err := t.c.do(ctx, request{method: http.MethodGet, path: "/tools/", query: pageQuery(params.Limit, params.Offset)}, &tools)
	return tools, err
}

func (t *toolsAPI) Get(ctx context.Context, toolID ID) (*Tool, error) {
	return t.one(ctx, toolRequest(http.MethodGet, toolID))
}

func (t *toolsAPI) Create(ctx context.Context, req ToolCreateRequest) (*Tool, error) {
	return t.one(ctx, request{method: http.MethodPost, path: "/tools/", body: req})
}

func (t *toolsAPI) Upsert(ctx context.Context, req ToolCreateRequest) (*Tool, error) {
	return t.one(ctx, request{method: http.MethodPut, path: "/tools/", body: req})
}

func (t *toolsAPI) Update(ctx context.Context, toolID ID, patch map[string]interface{}) (*Tool, error) {
	req := toolRequest(http.MethodPatch, toolID)
	req.body = patch
	return t.one(ctx, req)
}

func (t *toolsAPI) Delete(ctx context.Context, toolID ID) error {
	return t.c.do(ctx, toolRequest(http.MethodDelete, toolID), nil)
}

func (t *toolsAPI) Run(ctx context.Context, req ToolRunRequest) (*ToolReturn, error) {
	var ret ToolReturn
	if err := t.c.do(ctx, request{method: http.MethodPost, path: "/tools/run", body: req}, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (t *toolsAPI) AddBaseTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	err := t.c.do(ctx, request{method: http.MethodPost, path: "/tools/add-base-tools"}, &tools)
	return tools, err
}

func (t *toolsAPI) one(ctx context.Context, req request) (*Tool, error) {
	var tool Tool
	if err := t.c.do(ctx, req, &tool); err != nil {
		return nil, err
	}
	return &tool, nil
}

func toolRequest(method string, toolID ID) request {
	return request{
		method:   method,
		path:     "/tools/" + escape(toolID.String()),
		resource: "tool",
		id:       toolID.String(),
	}
}

const mcpServersPath = "/tools/mcp/servers"

type mcpServersAPI struct{ c *HTTPClient }

func (m *mcpServersAPI) List(ctx context.Context) (map[string]MCPServerConfig, error) {
	var servers map[string]MCPServerConfig
	err := m.c.do(ctx, request{method: http.MethodGet, path: mcpServersPath}, &servers)
	return servers, err
}

func (m *mcpServersAPI) Add(ctx context.Context, config MCPServerConfig) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	err := m.c.do(ctx, request{method: http.MethodPut, path: mcpServersPath, body: config}, &servers)
	return servers, err
}

func (m *mcpServersAPI) Update(ctx context.Context, name string, config MCPServerConfig) (MCPServerConfig, error) {
	req := serverRequest(http.MethodPatch, name, "")
	req.body = config
	var updated MCPServerConfig
	err := m.c.do(ctx, req, &updated)
	return updated, err
}

func (m *mcpServersAPI) Delete(ctx context.Context, name string) ([]MCPServerConfig, error) {
	var remaining []MCPServerConfig
	err := m.c.do(ctx, serverRequest(http.MethodDelete, name, ""), &remaining)
	return remaining, err
}

func (m *mcpServersAPI) Test(ctx context.Context, config MCPServerConfig) (interface{}, error) {
	var result interface{}
	err := m.c.do(ctx, request{method: http.MethodPost, path: mcpServersPath + "/test", body: config}, &result)
	return result, err
}

// ListTools accepts both a bare tool array and an object carrying "tools"
func (m *mcpServersAPI) ListTools(ctx context.Context, name string) ([]MCPTool, error) {
	var raw rawResponse
	if err := m.c.do(ctx, serverRequest(http.MethodGet, name, "/tools"), &raw); err != nil {
		return nil, err
	}

	var tools []MCPTool
	if err := json.Unmarshal(raw, &tools); err == nil {
		return tools, nil
	}
	var wrapped struct {
		Tools []MCPTool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, mcperrors.NewBackendError("unexpected tool list shape", err, nil)
	}
	return wrapped.Tools, nil
}

func (m *mcpServersAPI) RegisterTool(ctx context.Context, serverName, toolName string) (*Tool, error) {
	req := serverRequest(http.MethodPost, serverName, "/"+escape(toolName))
	req.resource, req.id = "mcp tool", serverName+"/"+toolName
	var tool Tool
	if err := m.c.do(ctx, req, &tool); err != nil {
		return nil, err
	}
	return &tool, nil
}

func serverRequest(method, name, suffix string) request {
	return request{
		method:   method,
		path:     mcpServersPath + "/" + escape(name) + suffix,
		resource: "mcp server",
		id:       name,
	}
}
