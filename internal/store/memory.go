package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/wendlabs/wend/internal/events"
	"github.com/wendlabs/wend/pkg/schema"
)

// MemoryStore is an in-process Store for tests and throwaway setups.
// Records live only as long as the process. Stored values round-trip
// through JSON so read-back matches what LibSQLStore returns: numbers come
// back as float64 and error causes are dropped.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	events map[string][]*RunEvent
	nextID int64
}

// NewMemoryStore returns an empty, migrated store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]*Run),
		events: make(map[string][]*RunEvent),
	}
}

// --- Run lifecycle ---

func (s *MemoryStore) RecordStart(ctx context.Context, res *schema.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[res.RunID]; ok {
		return fmt.Errorf("insert run: run %q already recorded", res.RunID)
	}
	s.runs[res.RunID] = &Run{
		RunID:     res.RunID,
		Workflow:  res.Workflow,
		Status:    schema.RunStatusRunning,
		StartedAt: timeOrNow(res.StartedAt),
	}
	return nil
}

func (s *MemoryStore) RecordStatus(ctx context.Context, runID string, status schema.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return storeNotFound("run", runID)
	}
	run.Status = status
	return nil
}

func (s *MemoryStore) RecordFinish(ctx context.Context, res *schema.RunResult) error {
	var werr *schema.WendError
	if res.Err != nil {
		werr = &schema.WendError{}
		if err := reencode(res.Err, werr); err != nil {
			return fmt.Errorf("marshal run error: %w", err)
		}
	}
	var runVars map[string]any
	if len(res.Vars) > 0 {
		if err := reencode(res.Vars, &runVars); err != nil {
			return fmt.Errorf("marshal run vars: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[res.RunID]
	if !ok {
		return storeNotFound("run", res.RunID)
	}
	run.Status = res.Status()
	run.Outcome = res.Outcome
	run.Reason = res.Reason
	run.Err = werr
	run.FinalState = res.FinalState
	run.Vars = runVars
	finished := timeOrNow(res.FinishedAt)
	run.FinishedAt = &finished
	return nil
}

// --- Run read-back ---

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, storeNotFound("run", runID)
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	s.mu.RLock()
	var matched []*Run
	for _, run := range s.runs {
		if filter.Workflow != "" && run.Workflow != filter.Workflow {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.Outcome != "" && run.Outcome != filter.Outcome {
			continue
		}
		if filter.Since != nil && run.StartedAt.Before(*filter.Since) {
			continue
		}
		matched = append(matched, cloneRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].StartedAt.After(matched[j].StartedAt)
		}
		return matched[i].RunID > matched[j].RunID
	})
	return pageRuns(matched, filter.Limit, filter.Offset), nil
}

// --- Event log ---

func (s *MemoryStore) AppendEvent(ctx context.Context, event events.Event) error {
	var payload map[string]any
	if len(event.Payload) > 0 {
		if err := reencode(event.Payload, &payload); err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.events[event.RunID] = append(s.events[event.RunID], &RunEvent{
		ID:       s.nextID,
		RunID:    event.RunID,
		Workflow: event.Workflow,
		Type:     event.Type,
		StateID:  event.StateID,
		Payload:  payload,
		Sequence: int64(len(s.events[event.RunID])) + 1,
		At:       timeOrNow(event.At),
	})
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, runID string, since int64) ([]*RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*RunEvent
	for _, ev := range s.events[runID] {
		if ev.Sequence > since {
			out = append(out, cloneEvent(ev))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*RunEvent, error) {
	s.mu.RLock()
	var matched []*RunEvent
	for _, evs := range s.events {
		for _, ev := range evs {
			if ev.Type != eventType {
				continue
			}
			if filter.Workflow != "" && ev.Workflow != filter.Workflow {
				continue
			}
			if filter.Since != nil && ev.At.Before(*filter.Since) {
				continue
			}
			matched = append(matched, cloneEvent(ev))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].At.Equal(matched[j].At) {
			return matched[i].At.After(matched[j].At)
		}
		return matched[i].ID > matched[j].ID
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// --- Maintenance ---

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Vacuum(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close() error                      { return nil }

// --- Helpers ---

// reencode copies src into dst through JSON, matching the SQL store's
// round-trip semantics.
func reencode(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func cloneRun(run *Run) *Run {
	out := *run
	if run.Err != nil {
		werr := *run.Err
		out.Err = &werr
	}
	if run.Vars != nil {
		out.Vars = make(map[string]any, len(run.Vars))
		for k, v := range run.Vars {
			out.Vars[k] = v
		}
	}
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

func cloneEvent(ev *RunEvent) *RunEvent {
	out := *ev
	if ev.Payload != nil {
		out.Payload = make(map[string]any, len(ev.Payload))
		for k, v := range ev.Payload {
			out.Payload[k] = v
		}
	}
	return &out
}

func pageRuns(runs []*Run, limit, offset int) []*Run {
	if offset > 0 {
		if offset >= len(runs) {
			return nil
		}
		runs = runs[offset:]
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}
