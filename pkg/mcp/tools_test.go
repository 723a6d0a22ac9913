package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wendlabs/wend/internal/engine"
	"github.com/wendlabs/wend/internal/events"
	"github.com/wendlabs/wend/internal/signal"
	"github.com/wendlabs/wend/internal/store"
	"github.com/wendlabs/wend/internal/workflow"
	"github.com/wendlabs/wend/pkg/schema"
)

// --- Mock runner ---

type runCall struct {
	Workflow string
	Vars     map[string]any
}

type mockRunner struct {
	mu    sync.Mutex
	calls []runCall
	res   *schema.RunResult
	err   error
}

func (m *mockRunner) Run(_ context.Context, workflowName string, vars map[string]any) (*schema.RunResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, runCall{Workflow: workflowName, Vars: vars})
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if m.res != nil {
		return m.res, nil
	}
	return &schema.RunResult{
		RunID:      "run-test",
		Workflow:   workflowName,
		Outcome:    schema.OutcomeCompleted,
		FinalState: "done",
	}, nil
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockRunner) call(i int) runCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

// --- Fixtures ---

func testRegistry(t *testing.T) *workflow.Registry {
	t.Helper()
	reg, err := workflow.NewRegistry(
		&schema.WorkflowDefinition{
			Name:        "deploy",
			Description: "build and ship",
			Start:       "build",
			States: []schema.StateDefinition{
				{ID: "build", Action: `run command "make build"`, Transitions: []schema.TransitionDefinition{{To: "done"}}},
				{ID: "done", Action: `log "shipped"`, End: true},
			},
		},
		&schema.WorkflowDefinition{
			Name:  "cleanup",
			Start: "sweep",
			States: []schema.StateDefinition{
				{ID: "sweep", Action: `run command "make clean"`, End: true},
			},
		},
	)
	require.NoError(t, err)
	return reg
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// --- wend.run ---

func TestRunTool(t *testing.T) {
	runner := &mockRunner{}
	s := NewServer(ServerDeps{Runner: runner})

	req := buildRequest("wend.run", map[string]any{
		"workflow": "deploy",
		"vars":     map[string]any{"env": "prod"},
	})

	result, err := s.handleRun(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, "deploy", runner.call(0).Workflow)
	assert.Equal(t, map[string]any{"env": "prod"}, runner.call(0).Vars)

	var res schema.RunResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, "run-test", res.RunID)
	assert.Equal(t, schema.OutcomeCompleted, res.Outcome)
}

func TestRunToolMissingWorkflow(t *testing.T) {
	s := NewServer(ServerDeps{Runner: &mockRunner{}})

	result, err := s.handleRun(context.Background(), buildRequest("wend.run", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "workflow is required")
}

func TestRunToolRunError(t *testing.T) {
	runner := &mockRunner{err: assert.AnError}
	s := NewServer(ServerDeps{Runner: runner})

	result, err := s.handleRun(context.Background(), buildRequest("wend.run", map[string]any{
		"workflow": "deploy",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "run failed")
}

func TestRunToolDetached(t *testing.T) {
	runner := &mockRunner{}
	pool := engine.NewPool(2)
	s := NewServer(ServerDeps{Runner: runner, Pool: pool})

	req := buildRequest("wend.run", map[string]any{
		"workflow": "deploy",
		"detach":   true,
	})

	result, err := s.handleRun(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res struct {
		Workflow string `json:"workflow"`
		Detached bool   `json:"detached"`
	}
	unmarshalResult(t, result, &res)
	assert.Equal(t, "deploy", res.Workflow)
	assert.True(t, res.Detached)

	pool.Wait()
	assert.Equal(t, 1, runner.callCount())
}

func TestRunToolDetachedWithoutPool(t *testing.T) {
	s := NewServer(ServerDeps{Runner: &mockRunner{}})

	result, err := s.handleRun(context.Background(), buildRequest("wend.run", map[string]any{
		"workflow": "deploy",
		"detach":   true,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "run pool")
}

// --- wend.status ---

func TestStatusToolByRunID(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ms.RecordStart(ctx, &schema.RunResult{RunID: "run-1", Workflow: "deploy", StartedAt: startedAt}))
	require.NoError(t, ms.RecordFinish(ctx, &schema.RunResult{
		RunID:      "run-1",
		Workflow:   "deploy",
		Outcome:    schema.OutcomeCompleted,
		FinalState: "done",
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(3 * time.Second),
	}))

	s := NewServer(ServerDeps{Store: ms})

	result, err := s.handleStatus(ctx, buildRequest("wend.status", map[string]any{"run_id": "run-1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res struct {
		Run store.Run `json:"run"`
	}
	unmarshalResult(t, result, &res)
	assert.Equal(t, "run-1", res.Run.RunID)
	assert.Equal(t, schema.OutcomeCompleted, res.Run.Outcome)
	assert.Equal(t, "done", res.Run.FinalState)
}

func TestStatusToolLatestRunForWorkflow(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ms.RecordStart(ctx, &schema.RunResult{RunID: "run-old", Workflow: "deploy", StartedAt: base}))
	require.NoError(t, ms.RecordStart(ctx, &schema.RunResult{RunID: "run-new", Workflow: "deploy", StartedAt: base.Add(time.Hour)}))
	require.NoError(t, ms.RecordStart(ctx, &schema.RunResult{RunID: "run-other", Workflow: "cleanup", StartedAt: base.Add(2 * time.Hour)}))

	s := NewServer(ServerDeps{Store: ms})

	result, err := s.handleStatus(ctx, buildRequest("wend.status", map[string]any{"workflow": "deploy"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res struct {
		Run store.Run `json:"run"`
	}
	unmarshalResult(t, result, &res)
	assert.Equal(t, "run-new", res.Run.RunID)
}

func TestStatusToolWithEvents(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	require.NoError(t, ms.RecordStart(ctx, &schema.RunResult{RunID: "run-1", Workflow: "deploy"}))
	require.NoError(t, ms.AppendEvent(ctx, events.Event{RunID: "run-1", Workflow: "deploy", Type: schema.EventStateEntered, StateID: "build"}))
	require.NoError(t, ms.AppendEvent(ctx, events.Event{RunID: "run-1", Workflow: "deploy", Type: schema.EventStateEntered, StateID: "done"}))

	s := NewServer(ServerDeps{Store: ms})

	result, err := s.handleStatus(ctx, buildRequest("wend.status", map[string]any{
		"run_id":      "run-1",
		"with_events": true,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res struct {
		Run    store.Run        `json:"run"`
		Events []store.RunEvent `json:"events"`
	}
	unmarshalResult(t, result, &res)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "build", res.Events[0].StateID)
	assert.Equal(t, "done", res.Events[1].StateID)
}

func TestStatusToolMissingSelector(t *testing.T) {
	s := NewServer(ServerDeps{Store: store.NewMemoryStore()})

	result, err := s.handleStatus(context.Background(), buildRequest("wend.status", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "run_id or workflow is required")
}

func TestStatusToolUnknownRun(t *testing.T) {
	s := NewServer(ServerDeps{Store: store.NewMemoryStore()})

	result, err := s.handleStatus(context.Background(), buildRequest("wend.status", map[string]any{"run_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- wend.runs ---

func TestRunsTool(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, ms.RecordStart(ctx, &schema.RunResult{RunID: "run-1", Workflow: "deploy", StartedAt: base}))
	require.NoError(t, ms.RecordFinish(ctx, &schema.RunResult{RunID: "run-1", Workflow: "deploy", Outcome: schema.OutcomeCompleted, StartedAt: base}))
	require.NoError(t, ms.RecordStart(ctx, &schema.RunResult{RunID: "run-2", Workflow: "deploy", StartedAt: base.Add(time.Hour)}))
	require.NoError(t, ms.RecordFinish(ctx, &schema.RunResult{RunID: "run-2", Workflow: "deploy", Outcome: schema.OutcomeFailed, StartedAt: base.Add(time.Hour)}))
	require.NoError(t, ms.RecordStart(ctx, &schema.RunResult{RunID: "run-3", Workflow: "cleanup", StartedAt: base.Add(2 * time.Hour)}))

	s := NewServer(ServerDeps{Store: ms})

	// No filter: everything, newest first.
	result, err := s.handleRuns(ctx, buildRequest("wend.runs", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res struct {
		Runs []store.Run `json:"runs"`
	}
	unmarshalResult(t, result, &res)
	require.Len(t, res.Runs, 3)
	assert.Equal(t, "run-3", res.Runs[0].RunID)

	// Workflow plus outcome narrows to the failed deploy.
	result, err = s.handleRuns(ctx, buildRequest("wend.runs", map[string]any{
		"filter": map[string]any{"workflow": "deploy", "outcome": "failed"},
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &res)
	require.Len(t, res.Runs, 1)
	assert.Equal(t, "run-2", res.Runs[0].RunID)

	// Since as an RFC3339 string, limit as a JSON number.
	result, err = s.handleRuns(ctx, buildRequest("wend.runs", map[string]any{
		"filter": map[string]any{
			"since": base.Add(30 * time.Minute).Format(time.RFC3339),
			"limit": float64(1),
		},
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &res)
	require.Len(t, res.Runs, 1)
	assert.Equal(t, "run-3", res.Runs[0].RunID)
}

func TestRunsToolBadFilter(t *testing.T) {
	s := NewServer(ServerDeps{Store: store.NewMemoryStore()})

	result, err := s.handleRuns(context.Background(), buildRequest("wend.runs", map[string]any{
		"filter": map[string]any{"since": "not-a-time"},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "invalid filter")
}

// --- wend.abort / wend.resume ---

func TestAbortTool(t *testing.T) {
	ctx := context.Background()
	signals := signal.NewFileSource(t.TempDir())
	s := NewServer(ServerDeps{Signals: signals})

	result, err := s.handleAbort(ctx, buildRequest("wend.abort", map[string]any{
		"workflow": "deploy",
		"reason":   "bad release",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	sig, checkErr := signals.Check(ctx, "deploy")
	require.NoError(t, checkErr)
	require.NotNil(t, sig)
	assert.Equal(t, "bad release", sig.Reason)
}

func TestAbortToolDefaultReason(t *testing.T) {
	ctx := context.Background()
	signals := signal.NewFileSource(t.TempDir())
	s := NewServer(ServerDeps{Signals: signals})

	result, err := s.handleAbort(ctx, buildRequest("wend.abort", map[string]any{"workflow": "deploy"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	sig, checkErr := signals.Check(ctx, "deploy")
	require.NoError(t, checkErr)
	require.NotNil(t, sig)
	assert.Equal(t, "aborted via mcp", sig.Reason)
}

func TestAbortToolMissingWorkflow(t *testing.T) {
	s := NewServer(ServerDeps{Signals: signal.NewFileSource(t.TempDir())})

	result, err := s.handleAbort(context.Background(), buildRequest("wend.abort", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestResumeTool(t *testing.T) {
	ctx := context.Background()
	signals := signal.NewFileSource(t.TempDir())
	s := NewServer(ServerDeps{Signals: signals})

	result, err := s.handleResume(ctx, buildRequest("wend.resume", map[string]any{"workflow": "deploy"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	resumed, consumeErr := signals.ConsumeResume(ctx, "deploy")
	require.NoError(t, consumeErr)
	assert.True(t, resumed)
}

// --- wend.workflows ---

func TestWorkflowsTool(t *testing.T) {
	s := NewServer(ServerDeps{Registry: testRegistry(t)})

	result, err := s.handleWorkflows(context.Background(), buildRequest("wend.workflows", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res struct {
		Workflows []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Start       string `json:"start"`
			States      int    `json:"states"`
		} `json:"workflows"`
	}
	unmarshalResult(t, result, &res)
	require.Len(t, res.Workflows, 2)

	byName := make(map[string]int, len(res.Workflows))
	for i, wf := range res.Workflows {
		byName[wf.Name] = i
	}
	deploy := res.Workflows[byName["deploy"]]
	assert.Equal(t, "build and ship", deploy.Description)
	assert.Equal(t, "build", deploy.Start)
	assert.Equal(t, 2, deploy.States)
	cleanup := res.Workflows[byName["cleanup"]]
	assert.Equal(t, 1, cleanup.States)
}

// --- wend.parse ---

func TestParseToolValidPhrase(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleParse(context.Background(), buildRequest("wend.parse", map[string]any{
		"phrase": "wait 5 seconds",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res struct {
		OK     bool           `json:"ok"`
		Action map[string]any `json:"action"`
	}
	unmarshalResult(t, result, &res)
	assert.True(t, res.OK)
	assert.Equal(t, "wait", res.Action["kind"])
	assert.Equal(t, "5s", res.Action["duration"])
}

func TestParseToolInvalidPhrase(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleParse(context.Background(), buildRequest("wend.parse", map[string]any{
		"phrase": "fly to the moon",
	}))
	require.NoError(t, err)

	// The parse failure is the answer, not a tool error.
	assert.False(t, result.IsError)

	var res struct {
		OK    bool              `json:"ok"`
		Error *schema.WendError `json:"error"`
	}
	unmarshalResult(t, result, &res)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, schema.ErrCodeParse, res.Error.Code)
	assert.Contains(t, res.Error.Details, "offset")
}

func TestParseToolMissingPhrase(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleParse(context.Background(), buildRequest("wend.parse", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- wend.graph ---

func TestGraphToolMermaid(t *testing.T) {
	s := NewServer(ServerDeps{Registry: testRegistry(t)})

	result, err := s.handleGraph(context.Background(), buildRequest("wend.graph", map[string]any{
		"workflow": "deploy",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := extractText(t, result)
	assert.True(t, strings.HasPrefix(text, "graph TD"))
	assert.Contains(t, text, `build["build"]`)
	assert.Contains(t, text, "build --> done")
}

func TestGraphToolDOT(t *testing.T) {
	s := NewServer(ServerDeps{Registry: testRegistry(t)})

	result, err := s.handleGraph(context.Background(), buildRequest("wend.graph", map[string]any{
		"workflow": "deploy",
		"format":   "dot",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := extractText(t, result)
	assert.True(t, strings.HasPrefix(text, "digraph wend {"))
	assert.Contains(t, text, `"build" -> "done";`)
}

func TestGraphToolRunOverlay(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	require.NoError(t, ms.RecordStart(ctx, &schema.RunResult{RunID: "run-1", Workflow: "deploy"}))
	require.NoError(t, ms.AppendEvent(ctx, events.Event{RunID: "run-1", Workflow: "deploy", Type: schema.EventStateEntered, StateID: "build"}))
	require.NoError(t, ms.AppendEvent(ctx, events.Event{RunID: "run-1", Workflow: "deploy", Type: schema.EventStateEntered, StateID: "done"}))
	require.NoError(t, ms.RecordFinish(ctx, &schema.RunResult{
		RunID:      "run-1",
		Workflow:   "deploy",
		Outcome:    schema.OutcomeCompleted,
		FinalState: "done",
	}))

	s := NewServer(ServerDeps{Registry: testRegistry(t), Store: ms})

	result, err := s.handleGraph(ctx, buildRequest("wend.graph", map[string]any{
		"workflow": "deploy",
		"run_id":   "run-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := extractText(t, result)
	assert.Contains(t, text, "class build visited")
	assert.Contains(t, text, "class done final")
}

func TestGraphToolUnknownWorkflow(t *testing.T) {
	s := NewServer(ServerDeps{Registry: testRegistry(t)})

	result, err := s.handleGraph(context.Background(), buildRequest("wend.graph", map[string]any{
		"workflow": "ghost",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGraphToolBadFormat(t *testing.T) {
	s := NewServer(ServerDeps{Registry: testRegistry(t)})

	result, err := s.handleGraph(context.Background(), buildRequest("wend.graph", map[string]any{
		"workflow": "deploy",
		"format":   "png",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "format must be mermaid or dot")
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
