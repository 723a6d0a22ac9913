package engine

import (
	"context"
	"errors"

	"github.com/wendlabs/wend/internal/action"
	"github.com/wendlabs/wend/internal/logging"
	"github.com/wendlabs/wend/internal/phrase"
	"github.com/wendlabs/wend/internal/vars"
	"github.com/wendlabs/wend/pkg/schema"
)

// runState is the per-run mutable working set: the shared read-only
// definition, the exclusively owned variable context, visit counters, and the
// parsed-action cache. It lives on the stack of one Run call and is never
// shared between goroutines.
type runState struct {
	def     *schema.WorkflowDefinition
	vars    *vars.Context
	visits  map[string]int
	actions map[string]schema.Action
	status  schema.RunStatus
	result  *schema.RunResult
}

// action returns the parsed action for a state, parsing the phrase on first
// entry. Definitions are validated before registration, so a failure here is
// unexpected and fails the run.
func (rs *runState) action(state *schema.StateDefinition) (schema.Action, *schema.WendError) {
	if act, ok := rs.actions[state.ID]; ok {
		return act, nil
	}
	act, err := phrase.Parse(state.Action)
	if err != nil {
		var perr *phrase.ParseError
		if errors.As(err, &perr) {
			return nil, perr.WendError().WithState(state.ID)
		}
		return nil, asWendError(err, state.ID)
	}
	rs.actions[state.ID] = act
	return act, nil
}

// runLoop walks the state graph until a terminal outcome. Each iteration:
// poll the abort signal, dispatch the state's action (with bounded retries
// for transient failures), apply the outcome's bindings, then follow the
// first satisfied transition guard.
func (e *Engine) runLoop(ctx context.Context, rs *runState) {
	current := rs.def.Start
	for {
		if ctx.Err() != nil {
			e.fail(ctx, rs, current, cancelledRunError(ctx, current))
			return
		}

		sig, sigErr := e.checkSignal(ctx, rs)
		if sigErr != nil {
			e.fail(ctx, rs, current, sigErr)
			return
		}
		if sig != nil {
			e.abort(ctx, rs, current, sig.Reason)
			return
		}

		state := rs.def.State(current)
		if state == nil {
			e.fail(ctx, rs, current, schema.NewErrorf(schema.ErrCodeExecution,
				"state %q not found in workflow %q", current, rs.def.Name).WithState(current))
			return
		}

		act, parseErr := rs.action(state)
		if parseErr != nil {
			e.fail(ctx, rs, current, parseErr)
			return
		}

		// Indefinite waits release only on an external signal, so they are
		// exempt from the visit counter.
		if !indefiniteWait(act) {
			rs.visits[current]++
			if rs.visits[current] > e.cfg.MaxVisits {
				e.fail(ctx, rs, current, schema.NewErrorf(schema.ErrCodeCycleDetected,
					"state %q visited %d times, limit is %d", current, rs.visits[current], e.cfg.MaxVisits).
					WithState(current).
					WithDetails(map[string]any{"visits": rs.visits[current], "limit": e.cfg.MaxVisits}))
				return
			}
		}

		e.emit(ctx, rs, schema.EventStateEntered, current, map[string]any{
			"kind":  string(act.Kind()),
			"visit": rs.visits[current],
		})

		out, dispatchErr := e.dispatchWithRetry(logging.WithStateID(ctx, current), rs, current, act)
		if dispatchErr != nil {
			if dispatchErr.Code == schema.ErrCodeAborted {
				e.abort(ctx, rs, current, dispatchErr.Message)
				return
			}
			e.fail(ctx, rs, current, dispatchErr)
			return
		}

		if out.EndRun {
			e.abort(ctx, rs, current, out.Reason)
			return
		}

		for _, b := range out.Bindings {
			rs.vars.Set(b.Name, b.Value)
			e.emit(ctx, rs, schema.EventVariableSet, current, map[string]any{"name": b.Name})
		}
		e.emit(ctx, rs, schema.EventActionCompleted, current, map[string]any{
			"kind": string(act.Kind()),
		})

		if state.Terminal() {
			e.complete(ctx, rs, current)
			return
		}

		next, selErr := e.selectTransition(ctx, rs, state)
		if selErr != nil {
			e.fail(ctx, rs, current, selErr)
			return
		}
		e.emit(ctx, rs, schema.EventTransitionTaken, current, map[string]any{"to": next})
		current = next
	}
}

// dispatchWithRetry executes one state's action, re-attempting transient
// shell and sub-workflow failures up to the configured bound with exponential
// backoff. Abort detection short-circuits ahead of any retry wait.
func (e *Engine) dispatchWithRetry(ctx context.Context, rs *runState, stateID string, act schema.Action) (*action.Outcome, *schema.WendError) {
	in := action.Input{
		RunID:    rs.result.RunID,
		Workflow: rs.def.Name,
		StateID:  stateID,
		Vars:     rs.vars,
	}

	isWait := act.Kind() == schema.KindWait
	if isWait {
		e.emit(ctx, rs, schema.EventWaitStarted, stateID, schema.Describe(act))
		e.setStatus(ctx, rs, schema.RunStatusWaiting)
	}

	attempt := 1
	for {
		out, err := e.dispatch.Execute(ctx, act, in)
		if err == nil {
			if isWait {
				e.setStatus(ctx, rs, schema.RunStatusRunning)
				e.emit(ctx, rs, schema.EventWaitResumed, stateID, nil)
			}
			return out, nil
		}

		wendErr := asWendError(err, stateID)
		if wendErr.Code == schema.ErrCodeAborted {
			return nil, wendErr
		}

		e.emit(ctx, rs, schema.EventActionFailed, stateID, map[string]any{
			"code":    wendErr.Code,
			"message": wendErr.Message,
			"attempt": attempt,
		})
		e.logger.WarnContext(ctx, "action failed",
			"code", wendErr.Code, "attempt", attempt, "error", wendErr.Message)

		if !retryEligible(act, wendErr) || attempt > e.cfg.MaxRetries {
			return nil, wendErr
		}

		delay := e.backoffDelay(attempt)
		e.emit(ctx, rs, schema.EventActionRetrying, stateID, map[string]any{
			"attempt": attempt + 1,
			"delay":   delay.String(),
		})

		sig, waitErr := e.retryWait(ctx, rs.def.Name, delay)
		if waitErr != nil {
			return nil, waitErr
		}
		if sig != nil {
			return nil, schema.NewError(schema.ErrCodeAborted, sig.Reason).
				WithState(stateID).
				WithDetails(map[string]any{"raised_at": sig.RaisedAt})
		}
		attempt++
	}
}

// selectTransition evaluates the state's guards in declared order and returns
// the first satisfied target. An empty guard is the unconditional default; no
// satisfied guard on a non-terminal state fails the run.
func (e *Engine) selectTransition(ctx context.Context, rs *runState, state *schema.StateDefinition) (string, *schema.WendError) {
	var scope map[string]any
	for _, tr := range state.Transitions {
		if tr.When == "" {
			return tr.To, nil
		}
		if e.eval == nil {
			return "", schema.NewError(schema.ErrCodeExecution,
				"no expression evaluator configured for transition guards").WithState(state.ID)
		}
		if scope == nil {
			scope = rs.vars.Snapshot()
		}
		ok, err := e.eval.EvaluateBool(ctx, tr.When, scope)
		if err != nil {
			return "", asWendError(err, state.ID)
		}
		if ok {
			return tr.To, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeNoTransition,
		"no transition satisfied from state %q", state.ID).
		WithState(state.ID).
		WithDetails(map[string]any{"transitions": len(state.Transitions)})
}

// checkSignal reads the abort sentinel once. A broken signal source fails the
// run: aborts that cannot be observed must not go silently unenforced.
func (e *Engine) checkSignal(ctx context.Context, rs *runState) (*schema.AbortSignal, *schema.WendError) {
	if e.signals == nil {
		return nil, nil
	}
	sig, err := e.signals.Check(ctx, rs.def.Name)
	if err != nil {
		return nil, asWendError(err, "")
	}
	return sig, nil
}

// setStatus moves the run through its lifecycle table. Transitions outside
// the table are programming errors; they are logged and applied so the
// archive still reflects the run's actual end.
func (e *Engine) setStatus(ctx context.Context, rs *runState, to schema.RunStatus) {
	if rs.status == to {
		return
	}
	if !validRunTransition(rs.status, to) {
		e.logger.ErrorContext(ctx, "invalid run status transition",
			"from", string(rs.status), "to", string(to))
	}
	rs.status = to
	if e.recorder != nil && !to.Terminal() {
		if err := e.recorder.RecordStatus(ctx, rs.result.RunID, to); err != nil {
			e.logger.WarnContext(ctx, "record run status failed",
				"status", string(to), "error", err)
		}
	}
}

func (e *Engine) complete(ctx context.Context, rs *runState, finalState string) {
	rs.result.Outcome = schema.OutcomeCompleted
	e.finish(ctx, rs, finalState, schema.EventRunCompleted, map[string]any{
		"final_state": finalState,
	})
}

func (e *Engine) abort(ctx context.Context, rs *runState, finalState, reason string) {
	rs.result.Outcome = schema.OutcomeAborted
	rs.result.Reason = reason
	e.finish(ctx, rs, finalState, schema.EventRunAborted, map[string]any{
		"reason": reason,
	})
}

func (e *Engine) fail(ctx context.Context, rs *runState, finalState string, runErr *schema.WendError) {
	rs.result.Outcome = schema.OutcomeFailed
	rs.result.Err = runErr
	e.finish(ctx, rs, finalState, schema.EventRunFailed, map[string]any{
		"code":    runErr.Code,
		"message": runErr.Message,
	})
}

func (e *Engine) finish(ctx context.Context, rs *runState, finalState, eventType string, payload map[string]any) {
	// Archival outlives the run's own context: a cancelled run still gets
	// its terminal record and event.
	ctx = context.WithoutCancel(ctx)
	rs.result.FinalState = finalState
	rs.result.Vars = rs.vars.Snapshot()
	rs.result.FinishedAt = e.clock.Now().UTC()
	e.setStatus(ctx, rs, rs.result.Status())
	e.emit(ctx, rs, eventType, finalState, payload)
	if e.recorder != nil {
		if err := e.recorder.RecordFinish(ctx, rs.result); err != nil {
			e.logger.WarnContext(ctx, "record run finish failed", "error", err)
		}
	}
	e.logger.InfoContext(ctx, "run finished",
		"outcome", string(rs.result.Outcome), "final_state", finalState)
}

func indefiniteWait(act schema.Action) bool {
	w, ok := act.(schema.Wait)
	return ok && w.UntilSignalled
}

// retryEligible restricts retries to transient shell and sub-workflow
// failures; every other action's failures are deterministic.
func retryEligible(act schema.Action, err *schema.WendError) bool {
	if !err.IsRetryable() {
		return false
	}
	switch act.Kind() {
	case schema.KindShellExecute, schema.KindSubWorkflow:
		return true
	}
	return false
}

func asWendError(err error, stateID string) *schema.WendError {
	var wendErr *schema.WendError
	if errors.As(err, &wendErr) {
		return wendErr
	}
	return schema.NewError(schema.ErrCodeExecution, err.Error()).
		WithCause(err).
		WithState(stateID)
}

func cancelledRunError(ctx context.Context, stateID string) *schema.WendError {
	return schema.NewError(schema.ErrCodeExecution, "run cancelled").
		WithCause(context.Cause(ctx)).
		WithState(stateID)
}
