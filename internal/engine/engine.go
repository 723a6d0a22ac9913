// Package engine drives workflow runs to a terminal outcome: one state at a
// time, cooperative abort polling, guard-selected transitions, and bounded
// retries for transient action failures. A run owns its variable context
// exclusively; independent runs share only read-only definitions.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/wendlabs/wend/internal/action"
	"github.com/wendlabs/wend/internal/events"
	"github.com/wendlabs/wend/internal/expressions"
	"github.com/wendlabs/wend/internal/logging"
	"github.com/wendlabs/wend/internal/signal"
	"github.com/wendlabs/wend/internal/vars"
	"github.com/wendlabs/wend/internal/workflow"
	"github.com/wendlabs/wend/pkg/schema"
)

const (
	// DefaultMaxVisits caps how often a single state may be entered per run.
	DefaultMaxVisits = 100

	// DefaultMaxRetries is the number of re-attempts after a transient
	// action failure.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay seeds the exponential backoff schedule.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// DefaultRetryMaxDelay caps a single backoff wait.
	DefaultRetryMaxDelay = 30 * time.Second

	// DefaultMaxDepth bounds sub-workflow nesting.
	DefaultMaxDepth = 8

	// DefaultPollInterval is the abort poll cadence during backoff waits.
	DefaultPollInterval = 250 * time.Millisecond
)

// Config carries the engine's tunables. Zero values fall back to the package
// defaults.
type Config struct {
	MaxVisits      int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	MaxDepth       int
	PollInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxVisits <= 0 {
		c.MaxVisits = DefaultMaxVisits
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Recorder archives run lifecycle records. Satisfied by the store; nil
// disables archiving.
type Recorder interface {
	RecordStart(ctx context.Context, res *schema.RunResult) error
	RecordStatus(ctx context.Context, runID string, status schema.RunStatus) error
	RecordFinish(ctx context.Context, res *schema.RunResult) error
}

// Options wires an Engine. Definitions and Dispatcher are required; the rest
// default to inert implementations (no signals, no archive, discard events).
type Options struct {
	Definitions *workflow.Registry
	Dispatcher  *action.Dispatcher
	Evaluator   *expressions.Evaluator
	Signals     signal.Source
	Sink        events.Sink
	Recorder    Recorder
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Config      Config
}

// Engine executes workflows. One Engine serves all runs; per-run state lives
// on the stack of Run.
type Engine struct {
	defs     *workflow.Registry
	dispatch *action.Dispatcher
	eval     *expressions.Evaluator
	signals  signal.Source
	sink     events.Sink
	recorder Recorder
	clock    clockwork.Clock
	logger   *slog.Logger
	cfg      Config

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New builds an Engine and registers it as the dispatcher's sub-workflow
// runner.
func New(opts Options) (*Engine, error) {
	if opts.Definitions == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine requires a definition registry")
	}
	if opts.Dispatcher == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine requires an action dispatcher")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sink == nil {
		opts.Sink = events.NopSink{}
	}

	e := &Engine{
		defs:     opts.Definitions,
		dispatch: opts.Dispatcher,
		eval:     opts.Evaluator,
		signals:  opts.Signals,
		sink:     opts.Sink,
		recorder: opts.Recorder,
		clock:    opts.Clock,
		logger:   opts.Logger,
		cfg:      opts.Config.withDefaults(),
		running:  make(map[string]context.CancelFunc),
	}
	e.dispatch.SetSubWorkflowRunner(e)
	return e, nil
}

// Run executes the named workflow to a terminal outcome. An error is returned
// only when the run cannot start (unknown workflow, signal reset failure);
// once underway, failures are reported inside the RunResult and the returned
// error is nil.
func (e *Engine) Run(ctx context.Context, name string, initVars map[string]any) (*schema.RunResult, error) {
	def, err := e.defs.Get(name)
	if err != nil {
		return nil, err
	}

	// Clear any stale signal so a request raised before this run cannot
	// touch it. Failing to reset means aborts could misfire, so the run
	// does not start.
	if e.signals != nil {
		if err := e.signals.Clear(ctx, def.Name); err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rs := e.newRunState(def, initVars)
	runCtx = logging.WithRun(runCtx, rs.result.RunID, def.Name)
	e.track(rs.result.RunID, cancel)
	defer e.untrack(rs.result.RunID)

	if err := e.begin(runCtx, rs); err != nil {
		return nil, err
	}
	e.runLoop(runCtx, rs)
	return rs.result, nil
}

// RunChild starts a nested run for a SubWorkflow action. The child clears
// and polls its own workflow's signal; nesting depth is carried through the
// context and bounded by Config.MaxDepth.
func (e *Engine) RunChild(ctx context.Context, name string, child *vars.Context) (*schema.RunResult, error) {
	depth := runDepth(ctx) + 1
	if depth > e.cfg.MaxDepth {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"sub-workflow nesting exceeds depth limit %d", e.cfg.MaxDepth).
			WithDetails(map[string]any{"workflow": name, "depth": depth})
	}
	ctx = context.WithValue(ctx, depthKey, depth)

	def, err := e.defs.Get(name)
	if err != nil {
		return nil, err
	}
	if e.signals != nil {
		if err := e.signals.Clear(ctx, def.Name); err != nil {
			return nil, err
		}
	}

	rs := e.newChildState(def, child)
	ctx = logging.WithRun(ctx, rs.result.RunID, def.Name)
	if err := e.begin(ctx, rs); err != nil {
		return nil, err
	}
	e.runLoop(ctx, rs)
	return rs.result, nil
}

// CancelRun cancels the context of an in-flight top-level run. It reports
// whether the run was found. This is process teardown, not a workflow abort;
// raising the abort signal is the cooperative path.
func (e *Engine) CancelRun(runID string) bool {
	e.mu.Lock()
	cancel, ok := e.running[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// ActiveRuns returns the ids of in-flight top-level runs.
func (e *Engine) ActiveRuns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) track(runID string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.running[runID] = cancel
	e.mu.Unlock()
}

func (e *Engine) untrack(runID string) {
	e.mu.Lock()
	delete(e.running, runID)
	e.mu.Unlock()
}

// begin records the run start and emits the opening event.
func (e *Engine) begin(ctx context.Context, rs *runState) error {
	if e.recorder != nil {
		if err := e.recorder.RecordStart(ctx, rs.result); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore,
				"record run start: %s", err.Error()).WithCause(err)
		}
	}
	e.emit(ctx, rs, schema.EventRunStarted, "", map[string]any{
		"start": rs.def.Start,
	})
	e.logger.InfoContext(ctx, "run started", "start", rs.def.Start)
	return nil
}

func (e *Engine) emit(ctx context.Context, rs *runState, typ, stateID string, payload map[string]any) {
	e.sink.Emit(ctx, events.Event{
		RunID:    rs.result.RunID,
		Workflow: rs.def.Name,
		Type:     typ,
		StateID:  stateID,
		Payload:  payload,
		At:       e.clock.Now().UTC(),
	})
}

func (e *Engine) newRunState(def *schema.WorkflowDefinition, initVars map[string]any) *runState {
	ctx := vars.FromMap(def.Vars)
	names := make([]string, 0, len(initVars))
	for name := range initVars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx.Set(name, initVars[name])
	}
	return newRunState(def, ctx, e.clock.Now().UTC())
}

func (e *Engine) newChildState(def *schema.WorkflowDefinition, child *vars.Context) *runState {
	// The caller already cloned the parent context; definition vars fill
	// in only where the parent did not provide a value.
	names := make([]string, 0, len(def.Vars))
	for name := range def.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !child.Has(name) {
			child.Set(name, def.Vars[name])
		}
	}
	return newRunState(def, child, e.clock.Now().UTC())
}

func newRunState(def *schema.WorkflowDefinition, ctx *vars.Context, now time.Time) *runState {
	return &runState{
		def:     def,
		vars:    ctx,
		visits:  make(map[string]int),
		actions: make(map[string]schema.Action),
		status:  schema.RunStatusRunning,
		result: &schema.RunResult{
			RunID:     uuid.NewString(),
			Workflow:  def.Name,
			StartedAt: now,
		},
	}
}

type ctxKey int

const depthKey ctxKey = iota

func runDepth(ctx context.Context) int {
	depth, _ := ctx.Value(depthKey).(int)
	return depth
}
