// Package events broadcasts run lifecycle events to live subscribers
// such as the /v1/events WebSocket. A nil *Bus accepts Publish calls
// and drops them.
package events

import (
	"sync"
	"time"
)

// Sources of events.
const (
	// SourceAgent is the orchestration loop.
	SourceAgent = "agent"
	// SourceTools is tool dispatch within a run.
	SourceTools = "tools"
)

// Kinds of events.
const (
	// KindTurnStart: request_id, user_id, turn.
	KindTurnStart = "turn_start"
	// KindTurnEnd: request_id, user_id, turn, model, tokens_in,
	// tokens_out, tool_calls, final.
	KindTurnEnd = "turn_end"
	// KindToolDone: request_id, user_id, turn, call_id, tool, ok,
	// category, duration_ms.
	KindToolDone = "tool_done"
	// KindRunComplete: request_id, user_id, model, turns, tools,
	// tokens_in, tokens_out, elapsed_ms.
	KindRunComplete = "run_complete"
	// KindRunFailed: as KindRunComplete plus category.
	KindRunFailed = "run_failed"
)

// Event is one published occurrence.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast bus. A subscriber whose buffer is
// full misses events; publishers never wait.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// Subscribe hands out receive-only channels; this maps them back
	// so Unsubscribe can close the sender side.
	recvToSend map[<-chan Event]chan Event
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish delivers e to every subscriber with room for it.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber with a buffer of bufSize events.
// Pair every Subscribe with Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes ch and closes it. Unknown channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
