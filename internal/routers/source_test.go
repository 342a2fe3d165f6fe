package routers_test

import (
	"encoding/base64"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/routers"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceRouter_CRUD(t *testing.T) {
	h := newHarness(t)

	created := h.call(t, routers.SourceManagerName, args("create", "name", "handbook", "description", "team docs"))
	assert.Equal(t, "Source created successfully", created["message"])
	sourceID := created["source_id"].(string)

	got := h.call(t, routers.SourceManagerName, args("get", "source_id", sourceID))
	assert.Equal(t, "handbook", got["data"].(map[string]interface{})["name"])

	updated := h.call(t, routers.SourceManagerName, args("update", "source_id", sourceID, "description", "all docs"))
	data := updated["data"].(map[string]interface{})
	assert.Equal(t, "handbook", data["name"])
	assert.Equal(t, "all docs", data["description"])

	count := h.call(t, routers.SourceManagerName, args("count"))
	assert.Equal(t, "Total sources: 1", count["message"])
	assert.Equal(t, map[string]interface{}{"count": float64(1)}, count["data"])

	h.call(t, routers.SourceManagerName, args("delete", "source_id", sourceID))
	_, err := h.dispatch(routers.SourceManagerName, args("get", "source_id", sourceID))
	assert.True(t, mcperrors.IsNotFound(err))
}

func TestSourceRouter_UploadAndListFiles(t *testing.T) {
	h := newHarness(t)
	source := h.srv.AddSource("handbook")

	env := h.call(t, routers.SourceManagerName, args("upload",
		"source_id", source.ID,
		"file_name", "notes.txt",
		"file_data", base64.StdEncoding.EncodeToString([]byte("hello world")),
	))
	assert.Equal(t, "File 'notes.txt' uploaded successfully", env["message"])

	files := h.call(t, routers.SourceManagerName, args("list_files", "source_id", source.ID, "include_content", true))
	require.Len(t, list(files), 1)
	file := list(files)[0].(map[string]interface{})
	assert.Equal(t, "notes.txt", file["file_name"])
	assert.Equal(t, "hello world", file["content"])

	contents := h.call(t, routers.SourceManagerName, args("get_folder_contents", "folder_id", source.ID))
	assert.Equal(t, "Found 1 files in folder", contents["message"])

	h.call(t, routers.SourceManagerName, args("delete_files", "source_id", source.ID, "file_id", file["id"]))
	files = h.call(t, routers.SourceManagerName, args("list_files", "source_id", source.ID))
	assert.Empty(t, list(files))
}

func TestSourceRouter_UploadRejectsBadBase64(t *testing.T) {
	h := newHarness(t)
	source := h.srv.AddSource("handbook")

	_, err := h.dispatch(routers.SourceManagerName, args("upload",
		"source_id", source.ID,
		"file_name", "notes.txt",
		"file_data", "%%% not base64 %%%",
	))
	require.Error(t, err)
	assert.Equal(t, mcperrors.ErrorCodeInvalidPayload, mcperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "file_data")
	assert.Zero(t, h.srv.Requests())
}

func TestSourceRouter_AttachDetach(t *testing.T) {
	h := newHarness(t)
	source := h.srv.AddSource("handbook")
	agent := h.srv.AddAgent("reader")

	h.call(t, routers.SourceManagerName, args("attach", "agent_id", agent.ID, "source_id", source.ID))

	attached := h.call(t, routers.SourceManagerName, args("list_attached", "agent_id", agent.ID))
	assert.Equal(t, "Found 1 attached sources", attached["message"])

	using := h.call(t, routers.SourceManagerName, args("list_agents_using", "source_id", source.ID))
	assert.Equal(t, []interface{}{agent.ID}, using["data"])

	h.call(t, routers.SourceManagerName, args("detach", "agent_id", agent.ID, "source_id", source.ID))
	attached = h.call(t, routers.SourceManagerName, args("list_attached", "agent_id", agent.ID))
	assert.Equal(t, float64(0), attached["count"])
}

func TestSourceRouter_ListFolders(t *testing.T) {
	h := newHarness(t)
	h.srv.AddSource("one")
	h.srv.AddSource("two")

	env := h.call(t, routers.SourceManagerName, args("list_folders"))
	assert.Equal(t, "Found 2 folders", env["message"])
}
