package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "usage_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSummary(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	runs := []RunRecord{
		{Timestamp: now, RequestID: "r_1", UserID: "U1001", Model: "qwen3:4b", Turns: 2,
			Tools: []string{"get_user_loan_detail"}, InputTokens: 1000, OutputTokens: 100, Elapsed: 800 * time.Millisecond},
		{Timestamp: now, RequestID: "r_2", UserID: "U1002", Model: "qwen3:4b", Turns: 10,
			InputTokens: 2000, OutputTokens: 300, Elapsed: 1200 * time.Millisecond, Category: "orchestration_exhausted"},
		{Timestamp: now.Add(-2 * time.Hour), RequestID: "r_old", UserID: "U1001", Model: "qwen3:4b", InputTokens: 99999},
	}
	for _, rec := range runs {
		if err := s.RecordRun(ctx, rec); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	calls := []ToolCallRecord{
		{Timestamp: now, RequestID: "r_1", UserID: "U1001", Turn: 1, Tool: "get_user_loan_detail", OK: true, Duration: 4 * time.Millisecond},
		{Timestamp: now, RequestID: "r_2", UserID: "U1002", Turn: 1, Tool: "get_user_loan_detail", OK: true, Category: "data_not_found", Duration: 2 * time.Millisecond},
		{Timestamp: now, RequestID: "r_2", UserID: "U1002", Turn: 2, Tool: "transfer_funds", OK: false, Category: "unknown_tool"},
	}
	for _, rec := range calls {
		if err := s.RecordToolCall(ctx, rec); err != nil {
			t.Fatalf("RecordToolCall: %v", err)
		}
	}

	sum, err := s.Summary(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if sum.Runs != 2 || sum.FailedRuns != 1 {
		t.Errorf("Runs = %d, FailedRuns = %d, want 2 and 1", sum.Runs, sum.FailedRuns)
	}
	if sum.TotalInputTokens != 3000 || sum.TotalOutputTokens != 400 {
		t.Errorf("tokens = %d/%d, want 3000/400", sum.TotalInputTokens, sum.TotalOutputTokens)
	}
	if sum.AvgElapsedMS != 1000 {
		t.Errorf("AvgElapsedMS = %v, want 1000", sum.AvgElapsedMS)
	}
	if sum.ByCategory["orchestration_exhausted"] != 1 || len(sum.ByCategory) != 1 {
		t.Errorf("ByCategory = %v", sum.ByCategory)
	}

	loan := sum.ByTool["get_user_loan_detail"]
	if loan == nil || loan.Calls != 2 || loan.Errors != 0 || loan.NotFound != 1 || loan.AvgDurationMS != 3 {
		t.Errorf("loan detail stats = %+v", loan)
	}
	unknown := sum.ByTool["transfer_funds"]
	if unknown == nil || unknown.Errors != 1 {
		t.Errorf("transfer_funds stats = %+v", unknown)
	}
}

func TestSummary_Empty(t *testing.T) {
	s := testStore(t)
	now := time.Now()

	sum, err := s.Summary(context.Background(), now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Runs != 0 || sum.TotalInputTokens != 0 || len(sum.ByTool) != 0 {
		t.Errorf("empty store summary = %+v", sum)
	}
}

func TestRecordRun_GeneratesIDs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.RecordRun(ctx, RunRecord{RequestID: "r_same", UserID: "U1", Model: "m"}); err != nil {
			t.Fatalf("RecordRun #%d: %v", i, err)
		}
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT id) FROM runs`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("distinct ids = %d, want 3", n)
	}
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "usage.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.Close()
}
