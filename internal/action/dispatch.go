// Package action executes the typed action variants produced by the phrase
// parser. The Dispatcher renders arguments against the run context, enforces
// the shell security policy, and reports each result as an Outcome the engine
// applies; executors never mutate the context themselves.
package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wendlabs/wend/internal/expressions"
	"github.com/wendlabs/wend/internal/policy"
	"github.com/wendlabs/wend/internal/prompt"
	"github.com/wendlabs/wend/internal/template"
	"github.com/wendlabs/wend/internal/vars"
	"github.com/wendlabs/wend/pkg/schema"
)

// Output binding names written into the run context by successful actions.
const (
	BindingPromptOutput      = "prompt_output"
	BindingShellOutput       = "shell_output"
	BindingShellExitCode     = "shell_exit_code"
	BindingSubWorkflowOutput = "subworkflow_output"
)

const (
	defaultShellTimeout  = 30 * time.Second
	defaultShellGrace    = 5 * time.Second
	defaultMaxOutputSize = 10 * 1024 * 1024 // 10MB
	defaultPollInterval  = 250 * time.Millisecond
)

// Binding is one context write produced by an action.
type Binding struct {
	Name  string
	Value any
}

// Outcome is the successful result of one action dispatch. Bindings are
// applied to the run context in order by the engine. EndRun is set only by
// the Abort variant and directs the engine to finish the run as Aborted
// with Reason.
type Outcome struct {
	Bindings []Binding
	EndRun   bool
	Reason   string
}

// Input identifies the run on whose behalf an action executes and carries
// its variable context. The context is read for rendering; all writes flow
// back through Outcome.Bindings.
type Input struct {
	RunID    string
	Workflow string
	StateID  string
	Vars     *vars.Context
}

// SignalReader is the part of the signal source polled during suspensions.
type SignalReader interface {
	Check(ctx context.Context, workflow string) (*schema.AbortSignal, error)
	ConsumeResume(ctx context.Context, workflow string) (bool, error)
}

// SubWorkflowRunner starts a nested run of a named workflow and blocks until
// it reaches a terminal outcome. The engine provides the implementation; it
// is late-bound through Dispatcher.SetSubWorkflowRunner to keep the package
// graph acyclic.
type SubWorkflowRunner interface {
	RunChild(ctx context.Context, name string, child *vars.Context) (*schema.RunResult, error)
}

// Config carries the dispatcher's tunables. Zero values fall back to the
// package defaults. MaxShellTimeout caps the timeout a phrase may request;
// zero leaves phrase timeouts uncapped.
type Config struct {
	ShellTimeout    time.Duration
	MaxShellTimeout time.Duration
	ShellGrace      time.Duration
	MaxOutputSize   int64
	PollInterval    time.Duration
}

// Dispatcher executes actions against their collaborators. Stateless per
// dispatch; one Dispatcher serves all concurrent runs.
type Dispatcher struct {
	prompts *prompt.Registry
	policy  *policy.Policy
	eval    *expressions.Evaluator
	signals SignalReader
	clock   clockwork.Clock
	logger  *slog.Logger
	runner  SubWorkflowRunner
	cfg     Config
}

// NewDispatcher creates a Dispatcher. The sub-workflow runner starts unset;
// dispatching a SubWorkflow action before SetSubWorkflowRunner is an
// execution error.
func NewDispatcher(prompts *prompt.Registry, pol *policy.Policy, eval *expressions.Evaluator, signals SignalReader, clock clockwork.Clock, logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.ShellTimeout <= 0 {
		cfg.ShellTimeout = defaultShellTimeout
	}
	if cfg.ShellGrace <= 0 {
		cfg.ShellGrace = defaultShellGrace
	}
	if cfg.MaxOutputSize <= 0 {
		cfg.MaxOutputSize = defaultMaxOutputSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		prompts: prompts,
		policy:  pol,
		eval:    eval,
		signals: signals,
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
	}
}

// SetSubWorkflowRunner binds the nested-run collaborator. Called once during
// wiring, before any dispatch.
func (d *Dispatcher) SetSubWorkflowRunner(r SubWorkflowRunner) {
	d.runner = r
}

// Execute dispatches one action. The switch is exhaustive over the closed
// union; an unknown variant is a programming error reported as EXECUTION.
func (d *Dispatcher) Execute(ctx context.Context, act schema.Action, in Input) (*Outcome, error) {
	switch a := act.(type) {
	case schema.Prompt:
		return d.executePrompt(ctx, a, in)
	case schema.ShellExecute:
		return d.executeShell(ctx, a, in)
	case schema.Wait:
		return d.executeWait(ctx, a, in)
	case schema.Log:
		return d.executeLog(a, in)
	case schema.SetVariable:
		return d.executeSet(ctx, a, in)
	case schema.SubWorkflow:
		return d.executeSubWorkflow(ctx, a, in)
	case schema.Abort:
		return d.executeAbort(a, in)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"unknown action kind %q", act.Kind()).WithState(in.StateID)
	}
}

// executeAbort ends the run with the rendered reason. A reason that fails to
// render degrades to the raw text: aborting must not be blocked by a bad
// template.
func (d *Dispatcher) executeAbort(a schema.Abort, in Input) (*Outcome, error) {
	reason, err := template.Render(a.Reason, in.Vars)
	if err != nil {
		d.logger.Warn("abort reason failed to render, using raw text",
			"run_id", in.RunID, "state_id", in.StateID, "error", err)
		reason = a.Reason
	}
	return &Outcome{EndRun: true, Reason: reason}, nil
}

// renderArgs renders an argument map's values against the run context.
func renderArgs(args map[string]string, ctx *vars.Context) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(args))
	for name, raw := range args {
		rendered, err := template.Render(raw, ctx)
		if err != nil {
			return nil, err
		}
		out[name] = rendered
	}
	return out, nil
}

// renderError wraps a template failure in the structured form, tagging the
// originating state.
func renderError(err error, stateID string) error {
	if rerr, ok := err.(*template.RenderError); ok {
		return rerr.WendError().WithState(stateID)
	}
	return schema.NewError(schema.ErrCodeRender, err.Error()).WithState(stateID)
}

// abortWatch polls the signal source while a suspending action is outstanding
// and cancels the action's context when an abort is raised. The single write
// to sig happens before done closes.
type abortWatch struct {
	sig  *schema.AbortSignal
	done chan struct{}
}

func (d *Dispatcher) watchAbort(ctx context.Context, workflow string, stop context.CancelFunc) *abortWatch {
	w := &abortWatch{done: make(chan struct{})}
	if d.signals == nil {
		close(w.done)
		return w
	}
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.clock.After(d.cfg.PollInterval):
			}
			sig, err := d.signals.Check(ctx, workflow)
			if err == nil && sig != nil {
				w.sig = sig
				stop()
				return
			}
		}
	}()
	return w
}

// wait returns the detected signal, if any. Call only after the watched
// action has returned and stop has been invoked.
func (w *abortWatch) wait() *schema.AbortSignal {
	<-w.done
	return w.sig
}
