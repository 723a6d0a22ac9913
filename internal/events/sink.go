// Package events carries the lifecycle event stream of workflow runs. The
// engine emits one Event per lifecycle step; sinks receive them without ever
// failing the run.
package events

import (
	"context"
	"sync"
	"time"
)

// Event is a single lifecycle record emitted during a run.
type Event struct {
	RunID    string         `json:"run_id"`
	Workflow string         `json:"workflow"`
	Type     string         `json:"type"`
	StateID  string         `json:"state_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

// Sink receives lifecycle events. Implementations must not block the caller
// and must never surface errors into the run; a sink that cannot deliver
// records the problem itself.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// MultiSink fans an event out to a fixed list of sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}

// CaptureSink records every event it receives. Safe for concurrent use.
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *CaptureSink) Emit(_ context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of everything captured so far.
func (c *CaptureSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns the captured event types in emission order.
func (c *CaptureSink) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}
