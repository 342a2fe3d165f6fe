// Package audit persists one record per tool dispatch to a SQL database
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS tool_dispatches (
    id TEXT PRIMARY KEY,
    occurred_at BIGINT NOT NULL,
    tool TEXT NOT NULL,
    operation TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    error_code TEXT NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL DEFAULT 0,
    client TEXT NOT NULL DEFAULT '',
    trace_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tool_dispatches_tool ON tool_dispatches(tool, operation);
CREATE INDEX IF NOT EXISTS idx_tool_dispatches_occurred ON tool_dispatches(occurred_at);
`

// Event is one audited tool call
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Tool      string        `json:"tool"`
	Operation string        `json:"operation"`
	Success   bool          `json:"success"`
	ErrorCode string        `json:"error_code,omitempty"`
	Duration  time.Duration `json:"duration"`
	Client    string        `json:"client,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

// SearchCriteria filters stored events. Zero fields match everything.
type SearchCriteria struct {
	Tool       string
	Operation  string
	FailedOnly bool
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Recorder is what the server needs from an audit trail
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Store is a database/sql backed audit trail
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to the database and creates the table when missing
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported audit driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}
	return &Store{db: db, driver: driver, now: time.Now}, nil
}

// Record inserts event, filling ID and Timestamp when unset
func (s *Store) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	query := s.rebind(`INSERT INTO tool_dispatches
        (id, occurred_at, tool, operation, success, error_code, duration_ms, client, trace_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp.UnixMilli(),
		event.Tool,
		event.Operation,
		event.Success,
		event.ErrorCode,
		event.Duration.Milliseconds(),
		event.Client,
		event.TraceID,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Search returns matching events, newest first
func (s *Store) Search(ctx context.Context, criteria SearchCriteria) ([]Event, error) {
	where, args := criteria.whereClause()
	query := `SELECT id, occurred_at, tool, operation, success, error_code, duration_ms, client, trace_id
        FROM tool_dispatches`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY occurred_at DESC, id"
	if criteria.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", criteria.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			occurredMS int64
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &occurredMS, &e.Tool, &e.Operation, &e.Success,
			&e.ErrorCode, &durationMS, &e.Client, &e.TraceID); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Timestamp = time.UnixMilli(occurredMS).UTC()
		e.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, e)
	}
	return events, rows.Err()
}

// Statistics counts events per tool and the number of failures
func (s *Store) Statistics(ctx context.Context) (map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool, COUNT(*), SUM(CASE WHEN success THEN 0 ELSE 1 END) FROM tool_dispatches GROUP BY tool`)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit statistics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	perTool := make(map[string]int64)
	var total, failed int64
	for rows.Next() {
		var (
			tool            string
			count, failures int64
		)
		if err := rows.Scan(&tool, &count, &failures); err != nil {
			return nil, fmt.Errorf("failed to scan audit statistics: %w", err)
		}
		perTool[tool] = count
		total += count
		failed += failures
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"total_events": total,
		"failed":       failed,
		"per_tool":     perTool,
	}, nil
}

// Prune deletes events older than retention
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM tool_dispatches WHERE occurred_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for postgres
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c SearchCriteria) whereClause() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if c.Tool != "" {
		conds = append(conds, "tool = ?")
		args = append(args, c.Tool)
	}
	if c.Operation != "" {
		conds = append(conds, "operation = ?")
		args = append(args, c.Operation)
	}
	if c.FailedOnly {
		conds = append(conds, "success = ?")
		args = append(args, false)
	}
	if !c.Since.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, c.Since.UnixMilli())
	}
	if !c.Until.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, c.Until.UnixMilli())
	}
	return strings.Join(conds, " AND "), args
}
