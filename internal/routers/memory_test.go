package routers_test

import (
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/routers"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRouter_BlockLifecycle(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("keeper")

	created := h.call(t, routers.MemoryToolName, args("create_block", "label", "persona", "value", "curious"))
	assert.Equal(t, "Block created successfully", created["message"])
	blockID := created["block_id"].(string)

	got := h.call(t, routers.MemoryToolName, args("get_block", "block_id", blockID))
	assert.Equal(t, "curious", got["data"].(map[string]interface{})["value"])

	h.call(t, routers.MemoryToolName, args("attach_block", "agent_id", agent.ID, "block_id", blockID))

	byLabel := h.call(t, routers.MemoryToolName, args("get_block_by_label", "agent_id", agent.ID, "block_label", "persona"))
	assert.Equal(t, "Block 'persona' retrieved successfully", byLabel["message"])
	assert.Equal(t, blockID, byLabel["block_id"])

	updated := h.call(t, routers.MemoryToolName, args("update_core_memory",
		"agent_id", agent.ID, "block_label", "persona", "value", "focused"))
	assert.Equal(t, "Core memory block 'persona' updated successfully", updated["message"])

	got = h.call(t, routers.MemoryToolName, args("get_block", "block_id", blockID))
	assert.Equal(t, "focused", got["data"].(map[string]interface{})["value"])

	users := h.call(t, routers.MemoryToolName, args("list_agents_using_block", "block_id", blockID))
	assert.Equal(t, "Found 1 agents using block", users["message"])

	h.call(t, routers.MemoryToolName, args("detach_block", "agent_id", agent.ID, "block_id", blockID))
	users = h.call(t, routers.MemoryToolName, args("list_agents_using_block", "block_id", blockID))
	assert.Equal(t, float64(0), users["count"])
}

func TestMemoryRouter_UpdateBlockKeepsUnsetFields(t *testing.T) {
	h := newHarness(t)
	block := h.srv.AddBlock("human", "likes tea")

	env := h.call(t, routers.MemoryToolName, args("update_block", "block_id", block.ID, "description", "preferences"))
	data := env["data"].(map[string]interface{})
	assert.Equal(t, "likes tea", data["value"])
	assert.Equal(t, "preferences", data["description"])
}

func TestMemoryRouter_ListBlocks(t *testing.T) {
	h := newHarness(t)
	h.srv.AddBlock("human", "a")
	h.srv.AddBlock("persona", "b")

	env := h.call(t, routers.MemoryToolName, args("list_blocks"))
	assert.Equal(t, "Found 2 blocks", env["message"])

	_, err := h.dispatch(routers.MemoryToolName, args("list_blocks", "agent_id", "nope"))
	assert.Equal(t, mcperrors.ErrorCodeInvalidIdentifier, mcperrors.CodeOf(err))
}

func TestMemoryRouter_Passages(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("archivist")

	created := h.call(t, routers.MemoryToolName, args("create_passage", "agent_id", agent.ID, "text", "The sky is blue"))
	passageID := created["passage_id"].(string)
	require.NotEmpty(t, passageID)
	h.call(t, routers.MemoryToolName, args("create_passage", "agent_id", agent.ID, "text", "Grass is green"))

	all := h.call(t, routers.MemoryToolName, args("list_passages", "agent_id", agent.ID))
	assert.Equal(t, float64(2), all["count"])

	found := h.call(t, routers.MemoryToolName, args("search_archival", "agent_id", agent.ID, "query", "sky"))
	assert.Equal(t, "Found 1 passages", found["message"])

	h.call(t, routers.MemoryToolName, args("update_passage", "agent_id", agent.ID, "passage_id", passageID, "text", "The sky is grey"))
	found = h.call(t, routers.MemoryToolName, args("search_archival", "agent_id", agent.ID, "query", "grey"))
	assert.Equal(t, float64(1), found["count"])

	deleted := h.call(t, routers.MemoryToolName, args("delete_passage", "agent_id", agent.ID, "passage_id", passageID))
	assert.Equal(t, "Passage deleted successfully", deleted["message"])

	all = h.call(t, routers.MemoryToolName, args("list_passages", "agent_id", agent.ID))
	assert.Equal(t, float64(1), all["count"])
}

func TestMemoryRouter_UpdateBlockClearsValue(t *testing.T) {
	h := newHarness(t)
	block := h.srv.AddBlock("human", "likes tea")

	env := h.call(t, routers.MemoryToolName, args("update_block", "block_id", block.ID, "value", ""))
	assert.Equal(t, "", env["data"].(map[string]interface{})["value"])

	_, err := h.dispatch(routers.MemoryToolName, args("update_block", "block_id", block.ID))
	assert.Equal(t, mcperrors.ErrorCodeMissingField, mcperrors.CodeOf(err))
}

func TestMemoryRouter_ListAgentBlocksPaged(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("keeper")
	for _, label := range []string{"human", "persona", "notes"} {
		created := h.call(t, routers.MemoryToolName, args("create_block", "label", label, "value", label))
		h.call(t, routers.MemoryToolName, args("attach_block", "agent_id", agent.ID, "block_id", created["block_id"]))
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   int
	}{
		{"default page", 0, 0, 3},
		{"first item", 1, 0, 1},
		{"tail", 5, 2, 1},
		{"past the end", 2, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := h.call(t, routers.MemoryToolName, args("list_blocks",
				"agent_id", agent.ID, "limit", tt.limit, "offset", tt.offset))
			assert.Equal(t, float64(tt.want), env["count"])
			assert.Len(t, list(env), tt.want)
		})
	}
}

func TestMemoryRouter_GetCoreMemory(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("keeper")
	block := h.srv.AddBlock("persona", "curious")
	h.call(t, routers.MemoryToolName, args("attach_block", "agent_id", agent.ID, "block_id", block.ID))

	env := h.call(t, routers.MemoryToolName, args("get_core_memory", "agent_id", agent.ID))
	assert.Equal(t, "Core memory retrieved successfully", env["message"])
	assert.Equal(t, agent.ID, env["agent_id"])
	assert.Equal(t, float64(1), env["count"])

	blocks := env["blocks"].([]interface{})
	require.Len(t, blocks, 1)
	assert.Equal(t, "curious", blocks[0].(map[string]interface{})["value"])

	core := env["core_memory"].(map[string]interface{})
	assert.Len(t, core["blocks"], 1)
	assert.NotEmpty(t, core["prompt_template"])
	assert.Equal(t, core, env["data"])
}
