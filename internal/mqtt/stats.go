package mqtt

import (
	"sync"
	"time"
)

// DailyStats counts runs and tokens since local midnight. Safe for
// concurrent use.
type DailyStats struct {
	mu       sync.Mutex
	runs     int64
	failed   int64
	input    int64
	output   int64
	resetDay int
	loc      *time.Location
	now      func() time.Time
}

// StatsSnapshot is the published form of DailyStats.
type StatsSnapshot struct {
	Runs         int64 `json:"runs"`
	FailedRuns   int64 `json:"failed_runs"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// NewDailyStats uses loc for midnight detection; nil means time.Local.
func NewDailyStats(loc *time.Location) *DailyStats {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyStats{loc: loc, now: time.Now}
	d.resetDay = d.now().In(loc).YearDay()
	return d
}

// AddRun counts one run.
func (d *DailyStats) AddRun(inputTokens, outputTokens int, failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	d.runs++
	if failed {
		d.failed++
	}
	d.input += int64(inputTokens)
	d.output += int64(outputTokens)
}

// Snapshot returns today's totals.
func (d *DailyStats) Snapshot() StatsSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	return StatsSnapshot{Runs: d.runs, FailedRuns: d.failed, InputTokens: d.input, OutputTokens: d.output}
}

// Must be called with d.mu held.
func (d *DailyStats) maybeReset() {
	today := d.now().In(d.loc).YearDay()
	if today != d.resetDay {
		d.runs, d.failed, d.input, d.output = 0, 0, 0, 0
		d.resetDay = today
	}
}
