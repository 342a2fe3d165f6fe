package routers_test

import (
	"fmt"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/letta"
	"letta-mcp-server/internal/routers"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentRouter_CreateThenGet(t *testing.T) {
	h := newHarness(t)

	created := h.call(t, routers.AgentToolName, args("create",
		"name", "scout",
		"description", "recon agent",
		"tags", []interface{}{"team-a"},
	))
	assert.Equal(t, true, created["success"])
	assert.Equal(t, "create", created["operation"])
	assert.Equal(t, "Agent created successfully", created["message"])
	agentID, _ := created["agent_id"].(string)
	require.NotEmpty(t, agentID)

	got := h.call(t, routers.AgentToolName, args("get", "agent_id", agentID))
	data := got["data"].(map[string]interface{})
	assert.Equal(t, "scout", data["name"])
	assert.Equal(t, "recon agent", data["description"])
	assert.Equal(t, agentID, got["agent_id"])
}

func TestAgentRouter_ListPagination(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 25; i++ {
		h.srv.AddAgent(fmt.Sprintf("agent-%02d", i))
	}

	env := h.call(t, routers.AgentToolName, args("list", "pagination", map[string]interface{}{"limit": 10}))
	assert.Len(t, list(env), 10)
	assert.Equal(t, float64(10), env["count"])
	assert.Equal(t, "Retrieved 10 agents", env["message"])

	env = h.call(t, routers.AgentToolName, args("list", "limit", 10, "offset", 20))
	assert.Len(t, list(env), 5)

	env = h.call(t, routers.AgentToolName, args("count"))
	assert.Equal(t, map[string]interface{}{"count": float64(25)}, env["data"])
	assert.Equal(t, "Total agents: 25", env["message"])

	_, err := h.dispatch(routers.AgentToolName, args("list", "limit", -1))
	assert.Equal(t, mcperrors.ErrorCodeInvalidPayload, mcperrors.CodeOf(err))
}

func TestAgentRouter_DeleteUnknownIsNotFound(t *testing.T) {
	h := newHarness(t)
	missing := letta.NewID("agent").String()

	_, err := h.dispatch(routers.AgentToolName, args("delete", "agent_id", missing))
	require.Error(t, err)
	assert.True(t, mcperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), missing)
	assert.Contains(t, err.Error(), "delete")
}

func TestAgentRouter_Update(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("scout")

	env := h.call(t, routers.AgentToolName, args("update",
		"agent_id", agent.ID,
		"update_data", map[string]interface{}{"description": "renamed"},
	))
	assert.Equal(t, "Agent updated successfully", env["message"])

	stored, found := h.srv.Agent(agent.ID)
	require.True(t, found)
	assert.Equal(t, "renamed", stored.Description)
	assert.Equal(t, "scout", stored.Name)
}

func TestAgentRouter_SendMessageValidatesRole(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("scout")

	_, err := h.dispatch(routers.AgentToolName, args("send_message",
		"agent_id", agent.ID,
		"messages", []interface{}{map[string]interface{}{"role": "robot", "content": "hi"}},
	))
	require.Error(t, err)
	assert.Equal(t, mcperrors.ErrorCodeInvalidPayload, mcperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "messages[0].role")
	assert.Zero(t, h.srv.Requests())

	env := h.call(t, routers.AgentToolName, args("send_message",
		"agent_id", agent.ID,
		"messages", []interface{}{map[string]interface{}{"role": "user", "content": "hi"}},
	))
	assert.Equal(t, "Message sent successfully", env["message"])
	assert.Equal(t, agent.ID, env["agent_id"])
}

func TestAgentRouter_BulkDeleteByTag(t *testing.T) {
	h := newHarness(t)
	doomed := []letta.Agent{h.srv.AddAgent("a", "temp"), h.srv.AddAgent("b", "temp")}
	keeper := h.srv.AddAgent("c", "prod")

	env := h.call(t, routers.AgentToolName, args("bulk_delete",
		"filters", map[string]interface{}{"agent_tag_filter": "temp"},
	))
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "all_succeeded", env["outcome"])
	assert.Equal(t, float64(2), env["count"])

	for _, a := range doomed {
		_, found := h.srv.Agent(a.ID)
		assert.False(t, found, a.Name)
	}
	_, found := h.srv.Agent(keeper.ID)
	assert.True(t, found)
}

func TestAgentRouter_BulkDeletePartial(t *testing.T) {
	h := newHarness(t)
	existing := h.srv.AddAgent("real")
	ghost := letta.NewID("agent").String()

	env := h.call(t, routers.AgentToolName, args("bulk_delete",
		"filters", map[string]interface{}{"agent_ids": []interface{}{existing.ID, ghost}},
	))
	assert.Equal(t, false, env["success"])
	assert.Equal(t, "partial", env["outcome"])
	assert.Equal(t, "Deleted 1 agents, 1 errors", env["message"])

	errs := env["errors"].([]interface{})
	require.Len(t, errs, 1)
	item := errs[0].(map[string]interface{})
	assert.Equal(t, ghost, item["id"])
	assert.Equal(t, string(mcperrors.ErrorCodeNotFound), item["code"])
}

func TestAgentRouter_BulkDeleteEmptyFilters(t *testing.T) {
	h := newHarness(t)
	h.srv.AddAgent("survivor")

	_, err := h.dispatch(routers.AgentToolName, args("bulk_delete",
		"filters", map[string]interface{}{"agent_name_filter": ""},
	))
	require.Error(t, err)
	assert.Equal(t, mcperrors.ErrorCodeMissingField, mcperrors.CodeOf(err))
	assert.Zero(t, h.srv.Requests())
}

func TestAgentRouter_CloneRenames(t *testing.T) {
	h := newHarness(t)
	source := h.srv.AddAgent("original")

	env := h.call(t, routers.AgentToolName, args("clone", "agent_id", source.ID, "name", "copy"))
	assert.Equal(t, "Agent cloned as copy", env["message"])
	cloneID := env["agent_id"].(string)
	assert.NotEqual(t, source.ID, cloneID)

	clone, found := h.srv.Agent(cloneID)
	require.True(t, found)
	assert.Equal(t, "copy", clone.Name)
}
