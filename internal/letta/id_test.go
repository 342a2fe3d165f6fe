package letta

import (
	mcperrors "letta-mcp-server/internal/errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		prefix  string
	}{
		{name: "agent id", raw: "agent-6f1c2a9e-0b7d-4d39-9a57-0f4c2d1e8a10", prefix: "agent"},
		{name: "underscore prefix", raw: "file_agent-6f1c2a9e-0b7d-4d39-9a57-0f4c2d1e8a10", prefix: "file_agent"},
		{name: "surrounding space trimmed", raw: "  block-6f1c2a9e-0b7d-4d39-9a57-0f4c2d1e8a10 ", prefix: "block"},
		{name: "empty", raw: "", wantErr: true},
		{name: "bare uuid", raw: "6f1c2a9e0b7d4d399a570f4c2d1e8a10", wantErr: true},
		{name: "missing prefix", raw: "-6f1c2a9e-0b7d-4d39-9a57-0f4c2d1e8a10", wantErr: true},
		{name: "uppercase prefix", raw: "Agent-6f1c2a9e-0b7d-4d39-9a57-0f4c2d1e8a10", wantErr: true},
		{name: "not a uuid", raw: "agent-123", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseID("agent_id", tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, mcperrors.ErrInvalidIdentifier)
				assert.Contains(t, err.Error(), "agent_id")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, id.Prefix())
		})
	}
}

func TestParseIDs_NamesFailingIndex(t *testing.T) {
	good := NewID("agent").String()

	ids, err := ParseIDs("agent_ids", []string{good, good})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	_, err = ParseIDs("agent_ids", []string{good, "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent_ids[1]")
}
