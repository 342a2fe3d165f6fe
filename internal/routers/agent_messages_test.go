package routers_test

import (
	"letta-mcp-server/internal/routers"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userMessage(content string) []interface{} {
	return []interface{}{map[string]interface{}{"role": "user", "content": content}}
}

// converse sends one user message per content and returns the reply
// envelope of the last one
func converse(t *testing.T, h *harness, agentID string, contents ...string) map[string]interface{} {
	t.Helper()
	var env map[string]interface{}
	for _, content := range contents {
		env = h.call(t, routers.AgentToolName, args("send_message", "agent_id", agentID, "messages", userMessage(content)))
	}
	return env
}

func TestAgentRouter_SendMessageReply(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("scout")

	env := converse(t, h, agent.ID, "status report")
	assert.Equal(t, "Message sent successfully", env["message"])
	assert.Equal(t, float64(1), env["count"])

	data := env["data"].(map[string]interface{})
	messages := data["messages"].([]interface{})
	require.Len(t, messages, 1)
	reply := messages[0].(map[string]interface{})
	assert.Equal(t, "assistant_message", reply["message_type"])
	assert.Equal(t, "echo: status report", reply["content"])
	assert.Contains(t, data, "usage")
}

func TestAgentRouter_StreamingMessages(t *testing.T) {
	tests := []struct {
		name string
		args func(agentID string) map[string]interface{}
	}{
		{
			name: "stream operation",
			args: func(agentID string) map[string]interface{} {
				return args("stream", "agent_id", agentID, "messages", userMessage("ping"))
			},
		},
		{
			name: "send_message with stream",
			args: func(agentID string) map[string]interface{} {
				return args("send_message", "agent_id", agentID, "messages", userMessage("ping"), "stream", true)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			agent := h.srv.AddAgent("scout")

			env := h.call(t, routers.AgentToolName, tt.args(agent.ID))
			assert.Equal(t, "Streamed 2 chunks", env["message"])
			assert.Equal(t, float64(2), env["count"])
			assert.Equal(t, agent.ID, env["agent_id"])

			chunks := list(env)
			require.Len(t, chunks, 2)
			first := chunks[0].(map[string]interface{})
			assert.Equal(t, "assistant_message", first["message_type"])
			assert.Equal(t, "echo: ping", first["content"])
			assert.Equal(t, "usage_statistics", chunks[1].(map[string]interface{})["message_type"])
		})
	}
}

func TestAgentRouter_AsyncMessageAndCancel(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("scout")

	queued := h.call(t, routers.AgentToolName, args("async_message", "agent_id", agent.ID, "messages", userMessage("later")))
	run := queued["data"].(map[string]interface{})
	runID := run["id"].(string)
	assert.Equal(t, "Async message queued as run "+runID, queued["message"])
	assert.Equal(t, "created", run["status"])
	assert.Equal(t, agent.ID, run["agent_id"])
	assert.Equal(t, agent.ID, queued["agent_id"])

	cancelled := h.call(t, routers.AgentToolName, args("cancel_message", "agent_id", agent.ID, "run_ids", []interface{}{runID}))
	assert.Equal(t, "Cancellation requested", cancelled["message"])
	assert.Equal(t, map[string]interface{}{runID: "cancelled"}, cancelled["data"])
	assert.Equal(t, agent.ID, cancelled["agent_id"])
}

func TestAgentRouter_PreviewPayload(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("scout")

	env := h.call(t, routers.AgentToolName, args("preview_payload", "agent_id", agent.ID, "messages", userMessage("draft")))
	assert.Equal(t, "Payload preview generated", env["message"])
	assert.Equal(t, agent.ID, env["agent_id"])

	data := env["data"].(map[string]interface{})
	assert.Equal(t, "letta-fake", data["model"])
	require.Len(t, data["messages"], 1)
	found := h.call(t, routers.AgentToolName, args("search_messages", "agent_id", agent.ID, "query", "draft"))
	assert.Equal(t, "Found 0 messages", found["message"], "preview does not record the message")
}

func TestAgentRouter_SearchAndGetMessage(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("scout")
	converse(t, h, agent.ID, "weather in Lisbon", "weather in Porto")

	found := h.call(t, routers.AgentToolName, args("search_messages", "agent_id", agent.ID, "query", "weather"))
	assert.Equal(t, "Found 4 messages", found["message"])
	assert.Equal(t, float64(4), found["count"])
	assert.Equal(t, agent.ID, found["agent_id"])
	require.Len(t, list(found), 4)

	byRole := h.call(t, routers.AgentToolName, args("search_messages",
		"agent_id", agent.ID, "query", "weather",
		"search_filters", map[string]interface{}{"role": "assistant"},
	))
	assert.Equal(t, "Found 2 messages", byRole["message"])

	limited := h.call(t, routers.AgentToolName, args("search_messages", "agent_id", agent.ID, "query", "weather", "limit", 1))
	assert.Equal(t, float64(1), limited["count"])

	first := list(found)[0].(map[string]interface{})
	got := h.call(t, routers.AgentToolName, args("get_message", "agent_id", agent.ID, "message_id", first["id"]))
	assert.Equal(t, "Message retrieved successfully", got["message"])
	assert.Equal(t, agent.ID, got["agent_id"])
	message := got["data"].(map[string]interface{})
	assert.Equal(t, first["id"], message["id"])
	assert.Equal(t, "weather in Lisbon", message["content"])
}

func TestAgentRouter_ContextResetAndSummarize(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("scout")
	converse(t, h, agent.ID, "one", "two", "three")

	window := h.call(t, routers.AgentToolName, args("context", "agent_id", agent.ID))
	assert.Equal(t, "Context window retrieved", window["message"])
	assert.Equal(t, float64(6), window["data"].(map[string]interface{})["num_messages"])

	summarized := h.call(t, routers.AgentToolName, args("summarize", "agent_id", agent.ID, "max_message_length", 2))
	assert.Equal(t, "Conversation summarized", summarized["message"])
	assert.Equal(t, map[string]interface{}{"agent_id": agent.ID, "summarized": true}, summarized["data"])

	window = h.call(t, routers.AgentToolName, args("context", "agent_id", agent.ID))
	assert.Equal(t, float64(2), window["data"].(map[string]interface{})["num_messages"])

	reset := h.call(t, routers.AgentToolName, args("reset_messages", "agent_id", agent.ID))
	assert.Equal(t, "Messages reset for agent "+agent.ID, reset["message"])
	assert.Equal(t, agent.ID, reset["agent_id"])
	assert.Equal(t, agent.ID, reset["data"].(map[string]interface{})["id"])

	window = h.call(t, routers.AgentToolName, args("context", "agent_id", agent.ID))
	assert.Equal(t, float64(0), window["data"].(map[string]interface{})["num_messages"])
}

func TestAgentRouter_ExportImport(t *testing.T) {
	h := newHarness(t)
	tool := h.srv.AddTool("lookup")
	created := h.call(t, routers.AgentToolName, args("create",
		"name", "scout", "tags", []interface{}{"team-a"}, "tool_ids", []interface{}{tool.ID}))
	agentID := created["agent_id"].(string)

	exported := h.call(t, routers.AgentToolName, args("export", "agent_id", agentID))
	assert.Equal(t, "Agent exported successfully", exported["message"])
	assert.Equal(t, agentID, exported["agent_id"])
	export := exported["data"].(map[string]interface{})
	assert.Equal(t, "scout", export["name"])
	assert.Equal(t, []interface{}{tool.ID}, export["tool_ids"])

	imported := h.call(t, routers.AgentToolName, args("import", "export_data", export))
	assert.Equal(t, "Agent imported successfully", imported["message"])
	importedID := imported["agent_id"].(string)
	assert.NotEqual(t, agentID, importedID)

	agent, found := h.srv.Agent(importedID)
	require.True(t, found)
	assert.Equal(t, "scout", agent.Name)
	assert.Equal(t, []string{"team-a"}, agent.Tags)

	tools := h.call(t, routers.AgentToolName, args("list_tools", "agent_id", importedID))
	assert.Equal(t, float64(1), tools["count"])
}

func TestAgentRouter_GetConfigProjection(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("scout", "team-a")
	for _, name := range []string{"lookup", "notify"} {
		tool := h.srv.AddTool(name)
		h.call(t, routers.ToolManagerName, args("attach", "tool_id", tool.ID, "agent_id", agent.ID))
	}

	env := h.call(t, routers.AgentToolName, args("get_config", "agent_id", agent.ID))
	assert.Equal(t, "Agent configuration retrieved", env["message"])
	assert.Equal(t, agent.ID, env["agent_id"])

	cfg := env["data"].(map[string]interface{})
	assert.Equal(t, agent.ID, cfg["id"])
	assert.Equal(t, "scout", cfg["name"])
	assert.Equal(t, "memgpt_agent", cfg["agent_type"])
	assert.Equal(t, []interface{}{"team-a"}, cfg["tags"])
	assert.Equal(t, []interface{}{"lookup", "notify"}, cfg["tools"])
	assert.NotContains(t, cfg, "memory")
	assert.NotContains(t, cfg, "sources")
}
