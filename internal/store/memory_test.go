package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendlabs/wend/internal/events"
	"github.com/wendlabs/wend/pkg/schema"
)

func TestMemoryRecordLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	res := startResult("deploy", time.Now().UTC())
	require.NoError(t, s.RecordStart(ctx, res))
	require.Error(t, s.RecordStart(ctx, res))

	require.NoError(t, s.RecordStatus(ctx, res.RunID, schema.RunStatusWaiting))

	res.Outcome = schema.OutcomeCompleted
	res.FinalState = "done"
	res.Vars = map[string]any{"attempts": 2}
	res.FinishedAt = time.Now().UTC()
	require.NoError(t, s.RecordFinish(ctx, res))

	got, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, got.Status)
	assert.Equal(t, schema.OutcomeCompleted, got.Outcome)
	assert.Equal(t, "done", got.FinalState)
	// Numbers round-trip through JSON, same as the SQL store.
	assert.Equal(t, float64(2), got.Vars["attempts"])
	assert.True(t, got.Finished())
}

func TestMemoryNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetRun(ctx, "no-such-run")
	var werr *schema.WendError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, schema.ErrCodeNotFound, werr.Code)

	err = s.RecordStatus(ctx, "no-such-run", schema.RunStatusWaiting)
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, schema.ErrCodeNotFound, werr.Code)

	res := startResult("deploy", time.Now().UTC())
	res.Outcome = schema.OutcomeFailed
	err = s.RecordFinish(ctx, res)
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, schema.ErrCodeNotFound, werr.Code)
}

func TestMemoryListRunsFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	deployOld := startResult("deploy", base)
	deployNew := startResult("deploy", base.Add(2*time.Minute))
	report := startResult("report", base.Add(time.Minute))
	for _, res := range []*schema.RunResult{deployOld, deployNew, report} {
		require.NoError(t, s.RecordStart(ctx, res))
	}
	deployOld.Outcome = schema.OutcomeFailed
	require.NoError(t, s.RecordFinish(ctx, deployOld))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, deployNew.RunID, all[0].RunID)
	assert.Equal(t, report.RunID, all[1].RunID)
	assert.Equal(t, deployOld.RunID, all[2].RunID)

	byWorkflow, err := s.ListRuns(ctx, RunFilter{Workflow: "deploy"})
	require.NoError(t, err)
	assert.Len(t, byWorkflow, 2)

	failed, err := s.ListRuns(ctx, RunFilter{Outcome: schema.OutcomeFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, deployOld.RunID, failed[0].RunID)

	since := base.Add(30 * time.Second)
	recent, err := s.ListRuns(ctx, RunFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	paged, err := s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, report.RunID, paged[0].RunID)

	outOfRange, err := s.ListRuns(ctx, RunFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, outOfRange)
}

func TestMemoryEventSequences(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	runID := uuid.New().String()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, events.Event{
			RunID:    runID,
			Workflow: "deploy",
			Type:     schema.EventStateEntered,
			Payload:  map[string]any{"visit": i + 1},
			At:       time.Now().UTC(),
		}))
	}

	evs, err := s.ListEvents(ctx, runID, 0)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	for i, ev := range evs {
		assert.Equal(t, int64(i+1), ev.Sequence)
		assert.Equal(t, float64(i+1), ev.Payload["visit"])
	}

	tail, err := s.ListEvents(ctx, runID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Sequence)
}

func TestMemoryListEventsByType(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runA := uuid.New().String()
	runB := uuid.New().String()
	require.NoError(t, s.AppendEvent(ctx, events.Event{RunID: runA, Workflow: "deploy", Type: schema.EventRunStarted, At: base}))
	require.NoError(t, s.AppendEvent(ctx, events.Event{RunID: runB, Workflow: "report", Type: schema.EventRunStarted, At: base.Add(time.Minute)}))
	require.NoError(t, s.AppendEvent(ctx, events.Event{RunID: runA, Workflow: "deploy", Type: schema.EventRunFailed, At: base.Add(2 * time.Minute)}))

	started, err := s.ListEventsByType(ctx, schema.EventRunStarted, EventFilter{})
	require.NoError(t, err)
	require.Len(t, started, 2)
	assert.Equal(t, runB, started[0].RunID)
	assert.Equal(t, runA, started[1].RunID)

	deployOnly, err := s.ListEventsByType(ctx, schema.EventRunStarted, EventFilter{Workflow: "deploy", Limit: 5})
	require.NoError(t, err)
	require.Len(t, deployOnly, 1)
	assert.Equal(t, runA, deployOnly[0].RunID)
}

// Returned records are copies; callers cannot reach into the archive.
func TestMemoryReadBackIsIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	res := startResult("deploy", time.Now().UTC())
	require.NoError(t, s.RecordStart(ctx, res))
	res.Outcome = schema.OutcomeCompleted
	res.Vars = map[string]any{"env": "prod"}
	require.NoError(t, s.RecordFinish(ctx, res))

	first, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	first.Vars["env"] = "mutated"
	first.Status = schema.RunStatusFailed

	second, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "prod", second.Vars["env"])
	assert.Equal(t, schema.RunStatusCompleted, second.Status)
}

func TestMemoryConcurrentAppends(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	runID := uuid.New().String()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.AppendEvent(ctx, events.Event{
				RunID:    runID,
				Workflow: "deploy",
				Type:     schema.EventStateEntered,
				Payload:  map[string]any{"n": fmt.Sprint(n)},
				At:       time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	evs, err := s.ListEvents(ctx, runID, 0)
	require.NoError(t, err)
	require.Len(t, evs, 20)
	for i, ev := range evs {
		assert.Equal(t, int64(i+1), ev.Sequence)
	}
}
