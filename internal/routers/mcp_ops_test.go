package routers_test

import (
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/letta"
	"letta-mcp-server/internal/routers"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPOpsRouter_ListServersFlattensByName(t *testing.T) {
	h := newHarness(t)
	h.srv.AddMCPServer("zeta", letta.MCPServerConfig{"type": "sse", "server_url": "http://zeta"})
	h.srv.AddMCPServer("alpha", letta.MCPServerConfig{"type": "stdio", "command": "alpha"})

	env := h.call(t, routers.MCPOpsName, args("list_servers"))
	assert.Equal(t, "Found 2 MCP servers", env["message"])

	servers := env["servers"].([]interface{})
	require.Len(t, servers, 2)
	first := servers[0].(map[string]interface{})
	assert.Equal(t, "alpha", first["name"])
	assert.Equal(t, "stdio", first["type"])
	assert.Equal(t, "zeta", servers[1].(map[string]interface{})["name"])
}

func TestMCPOpsRouter_ListToolsSimplifies(t *testing.T) {
	h := newHarness(t)
	h.srv.AddMCPServer("weather", nil,
		letta.MCPTool{
			Name:        "forecast",
			Description: "Daily forecast",
			InputSchema: map[string]interface{}{"type": "object"},
		},
		letta.MCPTool{Name: "alerts"},
	)

	env := h.call(t, routers.MCPOpsName, args("list_tools", "server_name", "weather"))
	assert.Equal(t, "Found 2 tools on server weather", env["message"])
	assert.Equal(t, "weather", env["server_name"])

	tools := env["tools"].([]interface{})
	require.Len(t, tools, 2)
	forecast := tools[0].(map[string]interface{})
	assert.Equal(t, "forecast", forecast["name"])
	assert.Equal(t, map[string]interface{}{"type": "object"}, forecast["schema"])
	assert.NotContains(t, forecast, "inputSchema")
}

func TestMCPOpsRouter_AddTestDelete(t *testing.T) {
	h := newHarness(t)

	added := h.call(t, routers.MCPOpsName, args("add",
		"server_name", "files",
		"server_config", map[string]interface{}{"type": "stdio", "command": "mcp-files"},
	))
	assert.Equal(t, "MCP server added successfully", added["message"])
	assert.Equal(t, "files", added["server_name"])

	tested := h.call(t, routers.MCPOpsName, args("test",
		"server_config", map[string]interface{}{"server_name": "files", "type": "stdio"},
	))
	assert.Equal(t, "MCP server connection successful", tested["message"])
	data := tested["data"].(map[string]interface{})
	assert.Equal(t, true, data["connected"])
	assert.Contains(t, data, "latency_ms")
	assert.Equal(t, "success", data["status"])

	updated := h.call(t, routers.MCPOpsName, args("update",
		"server_name", "files",
		"server_config", map[string]interface{}{"command": "mcp-files-v2"},
	))
	assert.Equal(t, "mcp-files-v2", updated["data"].(map[string]interface{})["command"])

	h.call(t, routers.MCPOpsName, args("delete", "server_name", "files"))
	_, err := h.dispatch(routers.MCPOpsName, args("delete", "server_name", "files"))
	assert.True(t, mcperrors.IsNotFound(err))
}

func TestMCPOpsRouter_RegisterTool(t *testing.T) {
	h := newHarness(t)
	h.srv.AddMCPServer("weather", nil, letta.MCPTool{Name: "forecast"})

	env := h.call(t, routers.MCPOpsName, args("register_tool", "server_name", "weather", "tool_name", "forecast"))
	assert.Equal(t, "Tool forecast from weather registered successfully in Letta", env["message"])
	assert.Equal(t, "forecast", env["tool_name"])

	_, err := h.dispatch(routers.MCPOpsName, args("register_tool", "server_name", "weather", "tool_name", "missing"))
	assert.True(t, mcperrors.IsNotFound(err))
}

func TestMCPOpsRouter_NotImplemented(t *testing.T) {
	h := newHarness(t)

	tests := []map[string]interface{}{
		args("connect", "server_name", "weather"),
		args("resync", "server_name", "weather"),
		args("execute", "server_name", "weather", "tool_name", "forecast", "tool_args", map[string]interface{}{"city": "Lisbon"}),
	}
	for _, a := range tests {
		t.Run(a["operation"].(string), func(t *testing.T) {
			_, err := h.dispatch(routers.MCPOpsName, a)
			require.Error(t, err)
			assert.Equal(t, mcperrors.ErrorCodeNotImplemented, mcperrors.CodeOf(err))
			assert.NotEqual(t, mcperrors.ErrorCodeBackendInternal, mcperrors.CodeOf(err))
			assert.Contains(t, err.Error(), a["operation"].(string))
		})
	}
	assert.Zero(t, h.srv.Requests())
}
