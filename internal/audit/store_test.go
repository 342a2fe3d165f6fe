package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "audit.db") + "?_busy_timeout=5000"
	store, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "root@/audit")
	assert.Error(t, err)
}

func TestStore_RecordAndSearch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []Event{
		{Timestamp: base, Tool: "letta_agent_advanced", Operation: "list", Success: true, Duration: 12 * time.Millisecond},
		{Timestamp: base.Add(time.Minute), Tool: "letta_agent_advanced", Operation: "get", Success: false, ErrorCode: "NOT_FOUND"},
		{Timestamp: base.Add(2 * time.Minute), Tool: "letta_job_monitor", Operation: "list", Success: true, Client: "stdio", TraceID: "trace-1"},
	}
	for _, e := range events {
		require.NoError(t, store.Record(ctx, e))
	}

	all, err := store.Search(ctx, SearchCriteria{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "letta_job_monitor", all[0].Tool)
	assert.Equal(t, "trace-1", all[0].TraceID)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, base.Add(2*time.Minute), all[0].Timestamp)
	assert.Equal(t, 12*time.Millisecond, all[2].Duration)

	tests := []struct {
		name     string
		criteria SearchCriteria
		want     int
	}{
		{"by tool", SearchCriteria{Tool: "letta_agent_advanced"}, 2},
		{"by operation", SearchCriteria{Operation: "list"}, 2},
		{"failed only", SearchCriteria{FailedOnly: true}, 1},
		{"since", SearchCriteria{Since: base.Add(30 * time.Second)}, 2},
		{"until", SearchCriteria{Until: base}, 1},
		{"limit", SearchCriteria{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Search(ctx, tt.criteria)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	failed, err := store.Search(ctx, SearchCriteria{FailedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", failed[0].ErrorCode)
}

func TestStore_Statistics(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, Event{Tool: "letta_tool_manager", Operation: "list", Success: true}))
	require.NoError(t, store.Record(ctx, Event{Tool: "letta_tool_manager", Operation: "get", ErrorCode: "NOT_FOUND"}))
	require.NoError(t, store.Record(ctx, Event{Tool: "letta_mcp_ops", Operation: "list_servers", Success: true}))

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats["total_events"])
	assert.Equal(t, int64(1), stats["failed"])
	assert.Equal(t, map[string]int64{"letta_tool_manager": 2, "letta_mcp_ops": 1}, stats["per_tool"])
}

func TestStore_Prune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Record(ctx, Event{Timestamp: now.Add(-48 * time.Hour), Tool: "t", Operation: "old", Success: true}))
	require.NoError(t, store.Record(ctx, Event{Tool: "t", Operation: "new", Success: true}))

	removed, err := store.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := store.Search(ctx, SearchCriteria{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].Operation)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
