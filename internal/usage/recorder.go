package usage

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nugget/loanagent/internal/agent"
)

// writeTimeout bounds each insert made by the Recorder.
const writeTimeout = 5 * time.Second

// Recorder is an agent.Observer that queues run and tool-call records
// and writes them to a Store from its own goroutine. When the queue is
// full, records are dropped and counted.
type Recorder struct {
	agent.NopObserver

	store   *Store
	queue   chan any
	logger  *slog.Logger
	dropped atomic.Int64
}

var _ agent.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder with room for queueSize pending
// records. Call Run to start writing.
func NewRecorder(store *Store, queueSize int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Recorder{
		store:  store,
		queue:  make(chan any, queueSize),
		logger: logger.With("component", "usage"),
	}
}

// Dropped returns the number of records discarded because the queue
// was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) enqueue(rec any) {
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

// ToolDispatched implements agent.Observer.
func (r *Recorder) ToolDispatched(_ context.Context, e agent.ToolEvent) {
	r.enqueue(ToolCallRecord{
		Timestamp: time.Now(),
		RequestID: e.RequestID,
		UserID:    e.UserID,
		Turn:      e.Turn,
		Tool:      e.Tool,
		OK:        !e.IsError,
		Category:  string(e.Category),
		Duration:  e.Duration,
	})
}

// RunFinished implements agent.Observer.
func (r *Recorder) RunFinished(_ context.Context, e agent.RunEvent) {
	r.enqueue(RunRecord{
		Timestamp:    time.Now(),
		RequestID:    e.RequestID,
		UserID:       e.UserID,
		Model:        e.Model,
		Turns:        e.Turns,
		Tools:        append([]string(nil), e.Tools...),
		InputTokens:  e.InputTokens,
		OutputTokens: e.OutputTokens,
		Elapsed:      e.Elapsed,
		Category:     string(e.Category),
	})
}

// Run writes queued records until ctx is done, then flushes what is
// already queued and returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(rec any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch v := rec.(type) {
	case RunRecord:
		err = r.store.RecordRun(ctx, v)
	case ToolCallRecord:
		err = r.store.RecordToolCall(ctx, v)
	}
	if err != nil {
		r.logger.Warn("usage record not written", "error", err)
	}
}
