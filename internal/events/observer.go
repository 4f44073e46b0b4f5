package events

import (
	"context"
	"time"

	"github.com/nugget/loanagent/internal/agent"
)

// Observer publishes agent lifecycle callbacks onto a bus.
type Observer struct {
	bus *Bus
	now func() time.Time
}

var _ agent.Observer = (*Observer)(nil)

// NewObserver returns an agent.Observer that publishes to bus.
func NewObserver(bus *Bus) *Observer {
	return &Observer{bus: bus, now: time.Now}
}

func (o *Observer) publish(source, kind string, data map[string]any) {
	o.bus.Publish(Event{Timestamp: o.now(), Source: source, Kind: kind, Data: data})
}

// TurnStarted implements agent.Observer.
func (o *Observer) TurnStarted(_ context.Context, e agent.TurnEvent) {
	o.publish(SourceAgent, KindTurnStart, map[string]any{
		"request_id": e.RequestID,
		"user_id":    e.UserID,
		"turn":       e.Turn,
	})
}

// ToolDispatched implements agent.Observer.
func (o *Observer) ToolDispatched(_ context.Context, e agent.ToolEvent) {
	data := map[string]any{
		"request_id":  e.RequestID,
		"user_id":     e.UserID,
		"turn":        e.Turn,
		"call_id":     e.CallID,
		"tool":        e.Tool,
		"ok":          !e.IsError,
		"duration_ms": e.Duration.Milliseconds(),
	}
	if e.Category != "" {
		data["category"] = string(e.Category)
	}
	o.publish(SourceTools, KindToolDone, data)
}

// TurnEnded implements agent.Observer.
func (o *Observer) TurnEnded(_ context.Context, e agent.TurnEvent) {
	o.publish(SourceAgent, KindTurnEnd, map[string]any{
		"request_id": e.RequestID,
		"user_id":    e.UserID,
		"turn":       e.Turn,
		"model":      e.Usage.Model,
		"tokens_in":  e.Usage.InputTokens,
		"tokens_out": e.Usage.OutputTokens,
		"tool_calls": e.ToolCalls,
		"final":      e.Final,
	})
}

// RunFinished implements agent.Observer.
func (o *Observer) RunFinished(_ context.Context, e agent.RunEvent) {
	data := map[string]any{
		"request_id": e.RequestID,
		"user_id":    e.UserID,
		"model":      e.Model,
		"turns":      e.Turns,
		"tools":      e.Tools,
		"tokens_in":  e.InputTokens,
		"tokens_out": e.OutputTokens,
		"elapsed_ms": e.Elapsed.Milliseconds(),
	}
	kind := KindRunComplete
	if e.Category != "" {
		kind = KindRunFailed
		data["category"] = string(e.Category)
	}
	o.publish(SourceAgent, kind, data)
}
