package routers_test

import (
	"letta-mcp-server/internal/routers"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileFolderRouter_OpenFileEviction(t *testing.T) {
	h := newHarness(t)
	h.srv.SetMaxOpenFiles(1)
	agent := h.srv.AddAgent("reader")
	folder := h.srv.AddSource("docs")
	first := h.srv.AddFile(folder.ID, "first.md", "one")
	second := h.srv.AddFile(folder.ID, "second.md", "two")
	h.srv.AttachFolder(agent.ID, folder.ID)

	env := h.call(t, routers.FileFolderOpsName, args("open_file", "agent_id", agent.ID, "file_id", first.ID))
	assert.Equal(t, "File opened successfully", env["message"])
	assert.Equal(t, true, env["opened"])
	assert.Nil(t, env["evicted_files"])
	assert.Equal(t, []interface{}{}, env["data"].(map[string]interface{})["evicted_files"])

	env = h.call(t, routers.FileFolderOpsName, args("open_file", "agent_id", agent.ID, "file_id", second.ID))
	assert.Equal(t, []interface{}{"first.md"}, env["evicted_files"])
	assert.Equal(t, []string{second.ID}, h.srv.OpenFiles(agent.ID))

	files := h.call(t, routers.FileFolderOpsName, args("list_files", "agent_id", agent.ID))
	assert.Equal(t, "Found 2 files", files["message"])
}

func TestFileFolderRouter_CloseFiles(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("reader")
	folder := h.srv.AddSource("docs")
	a := h.srv.AddFile(folder.ID, "a.md", "a")
	b := h.srv.AddFile(folder.ID, "b.md", "b")
	h.srv.AttachFolder(agent.ID, folder.ID)

	h.call(t, routers.FileFolderOpsName, args("open_file", "agent_id", agent.ID, "file_id", a.ID))
	h.call(t, routers.FileFolderOpsName, args("open_file", "agent_id", agent.ID, "file_id", b.ID))

	closed := h.call(t, routers.FileFolderOpsName, args("close_file", "agent_id", agent.ID, "file_id", a.ID))
	assert.Equal(t, true, closed["closed"])
	assert.Equal(t, []string{b.ID}, h.srv.OpenFiles(agent.ID))

	all := h.call(t, routers.FileFolderOpsName, args("close_all_files", "agent_id", agent.ID))
	assert.Equal(t, "Closed 1 files", all["message"])
	assert.Equal(t, float64(1), all["closed_count"])
	assert.Equal(t, []interface{}{"b.md"}, all["closed_files"])
	assert.Empty(t, h.srv.OpenFiles(agent.ID))
}

func TestFileFolderRouter_FolderAttachment(t *testing.T) {
	h := newHarness(t)
	agent := h.srv.AddAgent("reader")
	folder := h.srv.AddSource("docs")

	env := h.call(t, routers.FileFolderOpsName, args("attach_folder",
		"agent_id", agent.ID, "folder_id", folder.ID, "request_heartbeat", true))
	assert.Equal(t, "Folder attached to agent successfully", env["message"])
	assert.Equal(t, true, env["attached"])
	require.NotNil(t, env["agent_state"])

	members := h.call(t, routers.FileFolderOpsName, args("list_agents_in_folder", "folder_id", folder.ID))
	assert.Equal(t, "Found 1 agents in folder", members["message"])
	assert.Equal(t, []interface{}{agent.ID}, members["agent_ids"])
	assert.Equal(t, []interface{}{map[string]interface{}{"id": agent.ID}}, members["agents"])

	env = h.call(t, routers.FileFolderOpsName, args("detach_folder", "agent_id", agent.ID, "folder_id", folder.ID))
	assert.Equal(t, true, env["detached"])

	members = h.call(t, routers.FileFolderOpsName, args("list_agents_in_folder", "folder_id", folder.ID))
	assert.Equal(t, float64(0), members["count"])

	folders := h.call(t, routers.FileFolderOpsName, args("list_folders"))
	assert.Equal(t, "Found 1 folders", folders["message"])
}
