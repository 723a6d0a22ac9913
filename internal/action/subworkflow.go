package action

import (
	"context"
	"sort"

	"github.com/wendlabs/wend/pkg/schema"
)

// executeSubWorkflow runs the named child workflow to a terminal outcome,
// blocking the parent. The child receives a clone of the parent's variables
// with the rendered arguments merged on top; the child's final variables
// bind back as subworkflow_output. A child abort propagates as the parent's
// abort, and a child failure surfaces with the child's error code so
// transient failures stay retry-eligible.
func (d *Dispatcher) executeSubWorkflow(ctx context.Context, a schema.SubWorkflow, in Input) (*Outcome, error) {
	if d.runner == nil {
		return nil, schema.NewError(schema.ErrCodeExecution,
			"no sub-workflow runner configured").WithState(in.StateID)
	}

	args, err := renderArgs(a.Args, in.Vars)
	if err != nil {
		return nil, renderError(err, in.StateID)
	}

	child := in.Vars.Clone()
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		child.Set(name, args[name])
	}

	// The parent is suspended while the child runs, so its own abort signal
	// is watched here; detection cancels the child and the parent aborts
	// with the signal's reason.
	childCtx, stopChild := context.WithCancel(ctx)
	defer stopChild()
	watch := d.watchAbort(childCtx, in.Workflow, stopChild)

	result, err := d.runner.RunChild(childCtx, a.Name, child)
	stopChild()
	if sig := watch.wait(); sig != nil {
		return nil, abortError(sig, in.StateID)
	}
	if err != nil {
		if wendErr, ok := err.(*schema.WendError); ok {
			return nil, wendErr.WithState(in.StateID)
		}
		return nil, err
	}

	details := map[string]any{"workflow": a.Name, "run_id": result.RunID}
	switch result.Outcome {
	case schema.OutcomeCompleted:
		return &Outcome{
			Bindings: []Binding{{Name: BindingSubWorkflowOutput, Value: result.Vars}},
		}, nil
	case schema.OutcomeAborted:
		return nil, schema.NewError(schema.ErrCodeAborted, result.Reason).
			WithState(in.StateID).
			WithDetails(details)
	default:
		if result.Err != nil {
			return nil, schema.NewErrorf(result.Err.Code,
				"workflow %q failed: %s", a.Name, result.Err.Message).
				WithCause(result.Err).
				WithState(in.StateID).
				WithDetails(details)
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"workflow %q failed", a.Name).
			WithState(in.StateID).
			WithDetails(details)
	}
}
