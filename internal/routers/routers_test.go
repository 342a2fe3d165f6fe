package routers_test

import (
	"context"
	"encoding/json"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/letta"
	"letta-mcp-server/internal/letta/lettatest"
	"letta-mcp-server/internal/routers"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness bundles a fake backend with the full router set
type harness struct {
	srv     *lettatest.Server
	routers map[string]routers.Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := lettatest.NewServer(t)
	all, err := routers.NewAll(srv.Client(t), routers.Options{})
	require.NoError(t, err)

	h := &harness{srv: srv, routers: make(map[string]routers.Router, len(all))}
	for _, r := range all {
		h.routers[r.Name()] = r
	}
	return h
}

// call dispatches args and decodes the envelope, failing the test on error
func (h *harness) call(t *testing.T, tool string, args map[string]interface{}) map[string]interface{} {
	t.Helper()
	out, err := h.dispatch(tool, args)
	require.NoError(t, err)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	return env
}

func (h *harness) dispatch(tool string, args map[string]interface{}) (string, error) {
	r, found := h.routers[tool]
	if !found {
		return "", mcperrors.NewInvalidPayloadError("tool", "unknown tool", tool)
	}
	return r.Dispatch(context.Background(), args)
}

func args(operation string, kv ...interface{}) map[string]interface{} {
	m := map[string]interface{}{"operation": operation}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func list(env map[string]interface{}) []interface{} {
	items, _ := env["data"].([]interface{})
	return items
}

func TestNewAll_Catalogue(t *testing.T) {
	h := newHarness(t)

	want := map[string]int{
		routers.AgentToolName:     22,
		routers.MemoryToolName:    15,
		routers.ToolManagerName:   13,
		routers.SourceManagerName: 15,
		routers.JobMonitorName:    4,
		routers.FileFolderOpsName: 8,
		routers.MCPOpsName:        10,
	}
	require.Len(t, h.routers, len(want))
	for name, n := range want {
		r, found := h.routers[name]
		require.True(t, found, name)
		assert.Len(t, r.Operations(), n, name)
		assert.NotEmpty(t, r.Description(), name)
	}
}

func TestNewAll_RequiresClient(t *testing.T) {
	_, err := routers.NewAll(nil, routers.Options{})
	assert.Error(t, err)
}

func TestDispatch_EveryOperationIsRouted(t *testing.T) {
	h := newHarness(t)

	for name, r := range h.routers {
		for _, op := range r.Operations() {
			t.Run(name+"/"+op.Name, func(t *testing.T) {
				out, err := r.Dispatch(context.Background(), args(op.Name))
				if err != nil {
					assert.NotContains(t, err.Error(), "unsupported operation")
					return
				}
				var env routers.Envelope
				require.NoError(t, json.Unmarshal([]byte(out), &env))
				assert.Equal(t, op.Name, env.Operation)
			})
		}
	}
}

func TestDispatch_OperationDiscriminator(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		args map[string]interface{}
		code mcperrors.ErrorCode
	}{
		{"missing", map[string]interface{}{}, mcperrors.ErrorCodeMissingField},
		{"blank", map[string]interface{}{"operation": "  "}, mcperrors.ErrorCodeMissingField},
		{"not a string", map[string]interface{}{"operation": 42.0}, mcperrors.ErrorCodeInvalidPayload},
		{"unknown", map[string]interface{}{"operation": "teleport"}, mcperrors.ErrorCodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.dispatch(routers.AgentToolName, tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.code, mcperrors.CodeOf(err))
		})
	}

	_, err := h.dispatch(routers.JobMonitorName, args("teleport"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list, get, cancel, list_active")
	assert.Zero(t, h.srv.Requests())
}

func TestDispatch_MissingFieldMakesNoBackendCall(t *testing.T) {
	tests := []struct {
		tool  string
		args  map[string]interface{}
		field string
	}{
		{routers.AgentToolName, args("get"), "agent_id"},
		{routers.AgentToolName, args("create"), "name"},
		{routers.AgentToolName, args("send_message", "agent_id", letta.NewID("agent").String()), "messages"},
		{routers.AgentToolName, args("bulk_delete"), "filters"},
		{routers.MemoryToolName, args("update_core_memory", "agent_id", letta.NewID("agent").String(), "block_label", "human"), "value"},
		{routers.MemoryToolName, args("update_block", "block_id", letta.NewID("block").String()), "value or label or description"},
		{routers.MemoryToolName, args("create_passage", "agent_id", letta.NewID("agent").String(), "text", "   "), "text"},
		{routers.ToolManagerName, args("bulk_attach", "tool_id", letta.NewID("tool").String(), "agent_ids", []interface{}{}), "agent_ids"},
		{routers.ToolManagerName, args("run_from_source", "source_code", "def f(): pass"), "args"},
		{routers.SourceManagerName, args("upload", "source_id", letta.NewID("source").String(), "file_name", "a.txt"), "file_data"},
		{routers.SourceManagerName, args("update", "source_id", letta.NewID("source").String()), "name or description"},
		{routers.JobMonitorName, args("cancel"), "job_id"},
		{routers.FileFolderOpsName, args("open_file", "agent_id", letta.NewID("agent").String()), "file_id"},
		{routers.MCPOpsName, args("update", "server_name", "weather"), "server_config"},
		{routers.MCPOpsName, args("execute", "server_name", "weather"), "tool_name"},
	}

	for _, tt := range tests {
		t.Run(tt.tool+"/"+tt.args["operation"].(string), func(t *testing.T) {
			h := newHarness(t)
			_, err := h.dispatch(tt.tool, tt.args)
			require.Error(t, err)
			assert.Equal(t, mcperrors.ErrorCodeMissingField, mcperrors.CodeOf(err))
			assert.Contains(t, err.Error(), tt.field)
			assert.Contains(t, err.Error(), tt.args["operation"].(string))
			assert.Zero(t, h.srv.Requests())
		})
	}
}

func TestDispatch_InvalidIdentifierMakesNoBackendCall(t *testing.T) {
	tests := []struct {
		tool  string
		args  map[string]interface{}
		field string
	}{
		{routers.AgentToolName, args("get", "agent_id", "not-an-id"), "agent_id"},
		{routers.AgentToolName, args("bulk_delete", "filters", map[string]interface{}{
			"agent_ids": []interface{}{letta.NewID("agent").String(), "agent-123"},
		}), "agent_ids[1]"},
		{routers.MemoryToolName, args("get_block", "block_id", "block_1"), "block_id"},
		{routers.ToolManagerName, args("bulk_attach", "tool_id", letta.NewID("tool").String(),
			"agent_ids", []interface{}{"bogus"}), "agent_ids[0]"},
		{routers.SourceManagerName, args("attach", "agent_id", letta.NewID("agent").String(), "source_id", "src"), "source_id"},
		{routers.JobMonitorName, args("get", "job_id", "Job-"+letta.NewID("x").String()), "job_id"},
		{routers.FileFolderOpsName, args("list_agents_in_folder", "folder_id", "folder-xyz"), "folder_id"},
	}

	for _, tt := range tests {
		t.Run(tt.tool+"/"+tt.args["operation"].(string), func(t *testing.T) {
			h := newHarness(t)
			_, err := h.dispatch(tt.tool, tt.args)
			require.Error(t, err)
			assert.Equal(t, mcperrors.ErrorCodeInvalidIdentifier, mcperrors.CodeOf(err))
			assert.Contains(t, err.Error(), tt.field)
			assert.Zero(t, h.srv.Requests())
		})
	}
}

func TestDispatch_BackendFailureIsClassified(t *testing.T) {
	h := newHarness(t)
	h.srv.FailNext(500, 1)

	_, err := h.dispatch(routers.JobMonitorName, args("list"))
	require.Error(t, err)
	assert.Equal(t, mcperrors.ErrorCodeBackendInternal, mcperrors.CodeOf(err))
	assert.True(t, mcperrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "list")
}

func TestDispatch_ReadsAreIdempotent(t *testing.T) {
	h := newHarness(t)
	h.srv.AddAgent("alpha")
	h.srv.AddAgent("beta")

	for _, op := range []string{"list", "count"} {
		first := h.call(t, routers.AgentToolName, args(op))
		second := h.call(t, routers.AgentToolName, args(op))
		assert.Equal(t, first, second, op)
	}
}
