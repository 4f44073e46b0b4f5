// Package agent implements the orchestration loop that routes a
// customer question through the model and the banking tools.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/loanagent/internal/llm"
	"github.com/nugget/loanagent/internal/tools"
)

// Defaults applied when Config fields are zero.
const (
	DefaultMaxTurns = 10
	DefaultTimeout  = 20 * time.Second
)

// Config bounds a run.
type Config struct {
	// MaxTurns is the number of model invocations allowed per run.
	MaxTurns int
	// Timeout bounds the whole run. Negative disables it.
	Timeout time.Duration
}

// Response is the outcome of a successful run.
type Response struct {
	Answer       string        `json:"response"`
	RequestID    string        `json:"request_id"`
	SessionKey   string        `json:"session_key"`
	Model        string        `json:"model"`
	Turns        int           `json:"turns"`
	ToolsUsed    []string      `json:"tools"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Conversation is the ordered message history of one run. The system
// instruction is not part of it; the adapter supplies that on each
// invocation.
type Conversation struct {
	messages []llm.Message
}

func newConversation(query string) *Conversation {
	return &Conversation{messages: []llm.Message{{Role: llm.RoleUser, Content: query}}}
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) append(m llm.Message) {
	c.messages = append(c.messages, m)
}

// Loop drives conversations to a final answer. It holds no per-run
// state and is safe for concurrent use.
type Loop struct {
	adapter  Adapter
	registry *tools.Registry
	observer Observer
	cfg      Config
	logger   *slog.Logger
}

// NewLoop creates a loop. Observers are notified in the order given.
func NewLoop(adapter Adapter, registry *tools.Registry, cfg Config, logger *slog.Logger, observers ...Observer) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Loop{
		adapter:  adapter,
		registry: registry,
		observer: Observers(observers),
		cfg:      cfg,
		logger:   logger.With("component", "agent"),
	}
}

// Ask validates req and runs it. Validation failures are returned as
// plain errors, not *RunError.
func (l *Loop) Ask(ctx context.Context, req Request) (*Response, error) {
	key, err := NewSessionKey(req.UserID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	return l.Run(ctx, key, EffectiveQuery(req))
}

// run is the mutable state of one Run call.
type run struct {
	id     string
	key    SessionKey
	start  time.Time
	turns  int
	tools  []string
	model  string
	tokIn  int
	tokOut int
}

// Run answers query for key. Tool failures are shown to the model and
// never abort the run; adapter failures, the turn limit, the deadline
// and caller cancellation do, as a *RunError.
func (l *Loop) Run(ctx context.Context, key SessionKey, query string) (*Response, error) {
	r := &run{id: generateRequestID(), key: key, start: time.Now()}
	ctx = tools.WithRequestID(ctx, r.id)
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}
	log := l.logger.With("request_id", r.id, "user_id", key.UserID())
	log.Info("run started", "query_len", len(query))

	conv := newConversation(query)
	specs := l.registry.Specs()

	for r.turns < l.cfg.MaxTurns {
		if err := ctx.Err(); err != nil {
			return nil, l.fail(ctx, log, r, contextError(err))
		}
		r.turns++
		l.observer.TurnStarted(ctx, TurnEvent{RequestID: r.id, UserID: key.UserID(), Turn: r.turns})

		turn, err := l.adapter.Invoke(ctx, conv.Messages(), specs, key)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, l.fail(ctx, log, r, contextError(ctxErr))
			}
			return nil, l.fail(ctx, log, r, &RunError{Category: CategoryAdapterError, Err: err})
		}
		// A reply that arrives after the deadline is discarded.
		if err := ctx.Err(); err != nil {
			return nil, l.fail(ctx, log, r, contextError(err))
		}

		u := turn.turnUsage()
		r.model = u.Model
		r.tokIn += u.InputTokens
		r.tokOut += u.OutputTokens

		switch t := turn.(type) {
		case FinalAnswer:
			conv.append(llm.Message{Role: llm.RoleAssistant, Content: t.Text})
			l.observer.TurnEnded(ctx, TurnEvent{RequestID: r.id, UserID: key.UserID(), Turn: r.turns, Usage: u, Final: true})
			return l.succeed(ctx, log, r, t.Text), nil

		case ToolCalls:
			llmCalls := make([]llm.ToolCall, len(t.Calls))
			for i, c := range t.Calls {
				llmCalls[i] = llm.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
			}
			conv.append(llm.Message{Role: llm.RoleAssistant, Content: t.Text, ToolCalls: llmCalls})

			for _, call := range t.Calls {
				res := l.registry.Dispatch(ctx, call)
				r.tools = append(r.tools, call.Name)
				conv.append(llm.Message{
					Role:       llm.RoleTool,
					Content:    res.Content,
					ToolCallID: call.ID,
					ToolName:   call.Name,
				})

				log.Debug("tool dispatched",
					"turn", r.turns,
					"tool", call.Name,
					"call_id", call.ID,
					"error", res.IsError,
					"category", res.Category,
					"duration", res.Duration,
				)
				if res.IsError {
					log.Warn("tool failed", "tool", call.Name, "category", res.Category, "err", res.Err)
				}
				l.observer.ToolDispatched(ctx, ToolEvent{
					RequestID: r.id,
					UserID:    key.UserID(),
					Turn:      r.turns,
					CallID:    call.ID,
					Tool:      call.Name,
					Duration:  res.Duration,
					IsError:   res.IsError,
					Category:  Category(res.Category),
				})

				if err := ctx.Err(); err != nil {
					return nil, l.fail(ctx, log, r, contextError(err))
				}
			}
			l.observer.TurnEnded(ctx, TurnEvent{RequestID: r.id, UserID: key.UserID(), Turn: r.turns, Usage: u, ToolCalls: len(t.Calls)})
		}
	}

	return nil, l.fail(ctx, log, r, &RunError{Category: CategoryOrchestrationExhausted, Err: ErrOrchestrationExhausted})
}

func (l *Loop) succeed(ctx context.Context, log *slog.Logger, r *run, answer string) *Response {
	resp := &Response{
		Answer:       answer,
		RequestID:    r.id,
		SessionKey:   r.key.String(),
		Model:        r.model,
		Turns:        r.turns,
		ToolsUsed:    r.tools,
		InputTokens:  r.tokIn,
		OutputTokens: r.tokOut,
		Elapsed:      time.Since(r.start),
	}
	log.Info("run completed",
		"model", resp.Model,
		"turns", resp.Turns,
		"tools", len(resp.ToolsUsed),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"elapsed", resp.Elapsed.Round(time.Millisecond),
	)
	l.observer.RunFinished(ctx, l.runEvent(r, resp.Elapsed, nil))
	return resp
}

func (l *Loop) fail(ctx context.Context, log *slog.Logger, r *run, err *RunError) error {
	elapsed := time.Since(r.start)
	level := slog.LevelError
	if errors.Is(err, ErrCanceled) {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "run failed",
		"category", err.Category,
		"turns", r.turns,
		"elapsed", elapsed.Round(time.Millisecond),
		"error", err.Err,
	)
	l.observer.RunFinished(ctx, l.runEvent(r, elapsed, err))
	return err
}

func (l *Loop) runEvent(r *run, elapsed time.Duration, err *RunError) RunEvent {
	e := RunEvent{
		RequestID:    r.id,
		UserID:       r.key.UserID(),
		Model:        r.model,
		Turns:        r.turns,
		Tools:        r.tools,
		InputTokens:  r.tokIn,
		OutputTokens: r.tokOut,
		Elapsed:      elapsed,
	}
	if err != nil {
		e.Category = err.Category
		e.Err = err
	}
	return e
}

// generateRequestID returns a time-ordered id for one run.
func generateRequestID() string {
	return "r_" + strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}
