package agent

import (
	"context"
	"time"
)

// TurnEvent describes one model invocation. Usage fields are zero at
// turn start.
type TurnEvent struct {
	RequestID string
	UserID    string
	Turn      int
	Usage     Usage
	ToolCalls int
	Final     bool
}

// ToolEvent describes one executed tool call.
type ToolEvent struct {
	RequestID string
	UserID    string
	Turn      int
	CallID    string
	Tool      string
	Duration  time.Duration
	IsError   bool
	// Category is set for failed calls and for not-found results.
	Category Category
}

// RunEvent describes a finished run. Category is empty on success.
type RunEvent struct {
	RequestID    string
	UserID       string
	Model        string
	Turns        int
	Tools        []string
	InputTokens  int
	OutputTokens int
	Elapsed      time.Duration
	Category     Category
	Err          error
}

// Observer is notified at run lifecycle points. Implementations must
// not block; the loop calls them inline.
type Observer interface {
	TurnStarted(ctx context.Context, e TurnEvent)
	ToolDispatched(ctx context.Context, e ToolEvent)
	TurnEnded(ctx context.Context, e TurnEvent)
	RunFinished(ctx context.Context, e RunEvent)
}

// NopObserver ignores every event. Embed it to implement only some
// methods.
type NopObserver struct{}

func (NopObserver) TurnStarted(context.Context, TurnEvent)    {}
func (NopObserver) ToolDispatched(context.Context, ToolEvent) {}
func (NopObserver) TurnEnded(context.Context, TurnEvent)      {}
func (NopObserver) RunFinished(context.Context, RunEvent)     {}

// Observers fans events out to each member in order.
type Observers []Observer

func (o Observers) TurnStarted(ctx context.Context, e TurnEvent) {
	for _, obs := range o {
		obs.TurnStarted(ctx, e)
	}
}

func (o Observers) ToolDispatched(ctx context.Context, e ToolEvent) {
	for _, obs := range o {
		obs.ToolDispatched(ctx, e)
	}
}

func (o Observers) TurnEnded(ctx context.Context, e TurnEvent) {
	for _, obs := range o {
		obs.TurnEnded(ctx, e)
	}
}

func (o Observers) RunFinished(ctx context.Context, e RunEvent) {
	for _, obs := range o {
		obs.RunFinished(ctx, e)
	}
}
