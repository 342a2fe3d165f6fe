package routers

import (
	"context"
	"errors"
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/letta"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOp string

type fakeRequest struct {
	Name string `mapstructure:"name"`
}

type fakeResponse struct {
	Envelope
}

func fakeHandler(context.Context, *fakeRequest) (response, error) {
	return &fakeResponse{Envelope: ok("done", nil)}, nil
}

func TestCheckExhaustive(t *testing.T) {
	tests := []struct {
		name    string
		all     []fakeOp
		routes  map[fakeOp]route[fakeRequest]
		wantErr string
	}{
		{
			name:   "exact cover",
			all:    []fakeOp{"a", "b"},
			routes: map[fakeOp]route[fakeRequest]{"a": {handle: fakeHandler}, "b": {handle: fakeHandler}},
		},
		{
			name:    "missing handler",
			all:     []fakeOp{"a", "b"},
			routes:  map[fakeOp]route[fakeRequest]{"a": {handle: fakeHandler}},
			wantErr: "missing handlers: [b]",
		},
		{
			name:    "nil handler",
			all:     []fakeOp{"a"},
			routes:  map[fakeOp]route[fakeRequest]{"a": {}},
			wantErr: "missing handlers: [a]",
		},
		{
			name:    "handler outside enumeration",
			all:     []fakeOp{"a"},
			routes:  map[fakeOp]route[fakeRequest]{"a": {handle: fakeHandler}, "z": {handle: fakeHandler}},
			wantErr: "unknown operations: [z]",
		},
		{
			name:    "duplicate enumeration",
			all:     []fakeOp{"a", "a"},
			routes:  map[fakeOp]route[fakeRequest]{"a": {handle: fakeHandler}},
			wantErr: "enumerated twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newDispatcher("fake_tool", "", tt.all, tt.routes, Options{})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "fake_tool")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPresent(t *testing.T) {
	var nilMap map[string]interface{}
	tests := []struct {
		name  string
		value interface{}
		want  bool
	}{
		{"nil", nil, false},
		{"empty string", "", false},
		{"blank string", "   ", false},
		{"string", "x", true},
		{"empty slice", []interface{}{}, false},
		{"slice", []interface{}{"a"}, true},
		{"empty map", map[string]interface{}{}, false},
		{"nil map", nilMap, false},
		{"map", map[string]interface{}{"k": 1}, true},
		{"false", false, true},
		{"zero", float64(0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, present(tt.value))
		})
	}
}

func TestRequirements_Check(t *testing.T) {
	reqs := need("block_id").orAny("value", "label")

	err := reqs.check(map[string]interface{}{"value": "x"}, "update_block")
	require.Error(t, err)
	assert.Equal(t, mcperrors.ErrorCodeMissingField, mcperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "update_block")
	assert.Contains(t, err.Error(), "block_id")

	err = reqs.check(map[string]interface{}{"block_id": "block-1"}, "update_block")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value or label")

	assert.NoError(t, reqs.check(map[string]interface{}{"block_id": "block-1", "label": "human"}, "update_block"))
	assert.Equal(t, []string{"block_id", "value or label"}, reqs.names())
	assert.Nil(t, requirements(nil).names())
}

func TestRequirements_CheckKeyed(t *testing.T) {
	reqs := need("tool_id").orAnyKey("tags", "description")

	tests := []struct {
		name string
		args map[string]interface{}
		ok   bool
	}{
		{"empty list clears", map[string]interface{}{"tool_id": "tool-1", "tags": []interface{}{}}, true},
		{"blank string clears", map[string]interface{}{"tool_id": "tool-1", "description": ""}, true},
		{"explicit null", map[string]interface{}{"tool_id": "tool-1", "tags": nil}, false},
		{"nothing to change", map[string]interface{}{"tool_id": "tool-1"}, false},
		{"blank id", map[string]interface{}{"tool_id": " ", "tags": []interface{}{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reqs.check(tt.args, "update")
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, mcperrors.ErrorCodeMissingField, mcperrors.CodeOf(err))
		})
	}
}

func TestPage(t *testing.T) {
	p, err := page(0, 0)
	require.NoError(t, err)
	assert.Equal(t, letta.ListParams{Limit: DefaultPageSize}, p)

	p, err = page(10, 20)
	require.NoError(t, err)
	assert.Equal(t, letta.ListParams{Limit: 10, Offset: 20}, p)

	_, err = page(-1, 0)
	assert.Equal(t, mcperrors.ErrorCodeInvalidPayload, mcperrors.CodeOf(err))
	_, err = page(1, -5)
	assert.Equal(t, mcperrors.ErrorCodeInvalidPayload, mcperrors.CodeOf(err))
}

func TestRunBulk(t *testing.T) {
	a, b, c := letta.NewID("agent"), letta.NewID("agent"), letta.NewID("agent")
	failing := map[letta.ID]bool{b: true}
	fn := func(_ context.Context, id letta.ID) (interface{}, error) {
		if failing[id] {
			return nil, mcperrors.NewNotFoundError("agent", id.String())
		}
		return id.String(), nil
	}

	tests := []struct {
		name      string
		ids       []letta.ID
		outcome   BulkOutcome
		succeeded int
		failed    int
	}{
		{"empty", nil, OutcomeAllSucceeded, 0, 0},
		{"all succeed", []letta.ID{a, c}, OutcomeAllSucceeded, 2, 0},
		{"partial", []letta.ID{a, b, c}, OutcomePartial, 2, 1},
		{"all fail", []letta.ID{b}, OutcomeAllFailed, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runBulk(context.Background(), tt.ids, fn)
			assert.Equal(t, tt.outcome, result.Outcome)
			assert.Len(t, result.Results, tt.succeeded)
			assert.Len(t, result.Errors, tt.failed)
			assert.Equal(t, tt.failed == 0, result.Succeeded())
			for _, item := range result.Errors {
				assert.Equal(t, mcperrors.ErrorCodeNotFound, item.Code)
				assert.False(t, item.Success)
			}
		})
	}

	result := runBulk(context.Background(), []letta.ID{a, b, c}, fn)
	require.Len(t, result.Results, 2)
	assert.Equal(t, a.String(), result.Results[0].ID, "caller order is kept")
	assert.Equal(t, c.String(), result.Results[1].ID)
}

func TestDispatcher_DecodeTypeMismatch(t *testing.T) {
	d, err := newDispatcher("fake_tool", "", []fakeOp{"run"},
		map[fakeOp]route[fakeRequest]{"run": {handle: fakeHandler}}, Options{})
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), map[string]interface{}{
		"operation": "run",
		"name":      []interface{}{"not", "a", "string"},
	})
	require.Error(t, err)
	assert.Equal(t, mcperrors.ErrorCodeInvalidPayload, mcperrors.CodeOf(err))
}

func TestWithOperation(t *testing.T) {
	err := withOperation(errors.New("boom"), "list")
	assert.EqualError(t, err, "list: boom")

	std := withOperation(mcperrors.NewNotFoundError("agent", "agent-x"), "get")
	assert.True(t, mcperrors.IsNotFound(std))
	assert.Contains(t, std.Error(), "get: ")
}
