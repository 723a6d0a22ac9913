package events

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultChannelBuffer = 64

// Filter specifies which events a subscriber wants to receive. Zero-value
// fields match everything.
type Filter struct {
	RunID    string   `json:"run_id,omitempty"`
	Workflow string   `json:"workflow,omitempty"`
	Types    []string `json:"types,omitempty"`
}

// subscriber holds a channel and filter for a single subscription.
type subscriber struct {
	ch     chan Event
	filter Filter
}

// Hub is an in-memory fan-out Sink. Each subscriber gets a bounded buffer;
// when a buffer is full the oldest buffered event is dropped.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[uint64]*subscriber),
	}
}

// Emit delivers the event to all matching subscribers without blocking.
func (h *Hub) Emit(ctx context.Context, event Event) {
	if ctx.Err() != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Buffer full: evict the oldest event, then retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}

// Subscribe creates a subscription filtered by the given Filter.
// Returns a receive-only channel and a cancel function that removes the
// subscription; the channel is never closed by the hub.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.seq.Add(1)
	ch := make(chan Event, defaultChannelBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}

	return ch, cancel, nil
}

// matchFilter reports whether the event passes the filter criteria.
func matchFilter(f Filter, e Event) bool {
	if f.RunID != "" && f.RunID != e.RunID {
		return false
	}
	if f.Workflow != "" && f.Workflow != e.Workflow {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

var _ Sink = (*Hub)(nil)
