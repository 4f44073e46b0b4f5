// Package usage keeps an append-only SQLite record of agent runs and the
// tool calls made within them, for the usage summary endpoint and for
// monitoring tool adoption and agent performance.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Timestamps are stored in a fixed-width UTC layout so string
// comparison orders them.
const timeLayout = "2006-01-02T15:04:05.000Z"

// RunRecord is one finished run.
type RunRecord struct {
	ID           string
	Timestamp    time.Time
	RequestID    string
	UserID       string
	Model        string
	Turns        int
	Tools        []string
	InputTokens  int
	OutputTokens int
	Elapsed      time.Duration
	// Category is empty for successful runs.
	Category string
}

// ToolCallRecord is one tool execution.
type ToolCallRecord struct {
	ID        string
	Timestamp time.Time
	RequestID string
	UserID    string
	Turn      int
	Tool      string
	OK        bool
	Category  string
	Duration  time.Duration
}

// Summary aggregates runs in a time window.
type Summary struct {
	Runs              int                   `json:"runs"`
	FailedRuns        int                   `json:"failed_runs"`
	TotalInputTokens  int64                 `json:"total_input_tokens"`
	TotalOutputTokens int64                 `json:"total_output_tokens"`
	AvgElapsedMS      float64               `json:"avg_elapsed_ms"`
	ByCategory        map[string]int        `json:"by_category,omitempty"`
	ByTool            map[string]*ToolStats `json:"by_tool,omitempty"`
}

// ToolStats aggregates calls to one tool.
type ToolStats struct {
	Calls         int     `json:"calls"`
	Errors        int     `json:"errors"`
	NotFound      int     `json:"not_found"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Store is the usage database. Safe for concurrent use; SQLite
// serializes writes.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create usage directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		timestamp     TEXT NOT NULL,
		request_id    TEXT NOT NULL,
		user_id       TEXT NOT NULL,
		model         TEXT NOT NULL,
		turns         INTEGER NOT NULL,
		tools         TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		elapsed_ms    INTEGER NOT NULL,
		category      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		request_id  TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		turn        INTEGER NOT NULL,
		tool        TEXT NOT NULL,
		ok          INTEGER NOT NULL,
		category    TEXT NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_timestamp ON tool_calls(timestamp);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_request ON tool_calls(request_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate usage record ID: %w", err)
	}
	return id.String(), nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

// RecordRun persists rec. Empty IDs get a UUIDv7 and zero timestamps
// get the current time.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		rec.ID = id
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs
			(id, timestamp, request_id, user_id, model, turns, tools,
			 input_tokens, output_tokens, elapsed_ms, category)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		stamp(rec.Timestamp),
		rec.RequestID,
		rec.UserID,
		rec.Model,
		rec.Turns,
		strings.Join(rec.Tools, ","),
		rec.InputTokens,
		rec.OutputTokens,
		rec.Elapsed.Milliseconds(),
		rec.Category,
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// RecordToolCall persists rec, filling ID and timestamp as RecordRun
// does.
func (s *Store) RecordToolCall(ctx context.Context, rec ToolCallRecord) error {
	if rec.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		rec.ID = id
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls
			(id, timestamp, request_id, user_id, turn, tool, ok, category, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		stamp(rec.Timestamp),
		rec.RequestID,
		rec.UserID,
		rec.Turn,
		rec.Tool,
		rec.OK,
		rec.Category,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert tool call record: %w", err)
	}
	return nil
}

// Summary aggregates runs and tool calls within [start, end).
func (s *Store) Summary(ctx context.Context, start, end time.Time) (*Summary, error) {
	from, to := start.UTC().Format(timeLayout), end.UTC().Format(timeLayout)

	sum := &Summary{ByCategory: make(map[string]int), ByTool: make(map[string]*ToolStats)}
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN category != '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0),
		        COALESCE(AVG(elapsed_ms), 0)
		 FROM runs
		 WHERE timestamp >= ? AND timestamp < ?`,
		from, to,
	)
	if err := row.Scan(&sum.Runs, &sum.FailedRuns, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.AvgElapsedMS); err != nil {
		return nil, fmt.Errorf("query run summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM runs
		 WHERE timestamp >= ? AND timestamp < ? AND category != ''
		 GROUP BY category`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan runs by category: %w", err)
		}
		sum.ByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	toolRows, err := s.db.QueryContext(ctx,
		`SELECT tool,
		        COUNT(*),
		        COALESCE(SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN category = 'data_not_found' THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(duration_ms), 0)
		 FROM tool_calls
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY tool`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query tool usage: %w", err)
	}
	defer toolRows.Close()
	for toolRows.Next() {
		var name string
		var ts ToolStats
		if err := toolRows.Scan(&name, &ts.Calls, &ts.Errors, &ts.NotFound, &ts.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("scan tool usage: %w", err)
		}
		sum.ByTool[name] = &ts
	}
	return sum, toolRows.Err()
}
