package action

import (
	"context"

	"github.com/wendlabs/wend/pkg/schema"
)

// executeWait suspends the run without busy-looping. Fixed-duration waits
// sleep in poll-interval chunks so an abort raised mid-wait is observed
// within the bounded interval; indefinite waits additionally watch for the
// external resume marker.
func (d *Dispatcher) executeWait(ctx context.Context, a schema.Wait, in Input) (*Outcome, error) {
	if a.UntilSignalled {
		return d.waitForResume(ctx, in)
	}

	deadline := d.clock.Now().Add(a.Duration)
	for {
		sig, err := d.checkAbort(ctx, in)
		if err != nil {
			return nil, err
		}
		if sig != nil {
			return nil, abortError(sig, in.StateID)
		}

		remaining := deadline.Sub(d.clock.Now())
		if remaining <= 0 {
			return &Outcome{}, nil
		}
		chunk := remaining
		if chunk > d.cfg.PollInterval {
			chunk = d.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return nil, cancelledError(ctx, in.StateID)
		case <-d.clock.After(chunk):
		}
	}
}

// waitForResume blocks until the resume marker appears, polling the abort
// signal at the same bounded interval.
func (d *Dispatcher) waitForResume(ctx context.Context, in Input) (*Outcome, error) {
	if d.signals == nil {
		return nil, schema.NewError(schema.ErrCodeExecution,
			"no signal source configured for an indefinite wait").WithState(in.StateID)
	}

	for {
		sig, err := d.checkAbort(ctx, in)
		if err != nil {
			return nil, err
		}
		if sig != nil {
			return nil, abortError(sig, in.StateID)
		}

		resumed, err := d.signals.ConsumeResume(ctx, in.Workflow)
		if err != nil {
			if wendErr, ok := err.(*schema.WendError); ok {
				return nil, wendErr.WithState(in.StateID)
			}
			return nil, err
		}
		if resumed {
			return &Outcome{}, nil
		}

		select {
		case <-ctx.Done():
			return nil, cancelledError(ctx, in.StateID)
		case <-d.clock.After(d.cfg.PollInterval):
		}
	}
}

// checkAbort reads the abort signal once. A nil signal reader never aborts.
func (d *Dispatcher) checkAbort(ctx context.Context, in Input) (*schema.AbortSignal, error) {
	if d.signals == nil {
		return nil, nil
	}
	sig, err := d.signals.Check(ctx, in.Workflow)
	if err != nil {
		if wendErr, ok := err.(*schema.WendError); ok {
			return nil, wendErr.WithState(in.StateID)
		}
		return nil, err
	}
	return sig, nil
}

// abortError converts a detected abort signal into the terminal error form
// the engine maps onto the Aborted outcome.
func abortError(sig *schema.AbortSignal, stateID string) *schema.WendError {
	return schema.NewError(schema.ErrCodeAborted, sig.Reason).
		WithState(stateID).
		WithDetails(map[string]any{"raised_at": sig.RaisedAt})
}

// cancelledError reports a run torn down by context cancellation, which is
// process shutdown rather than a workflow abort.
func cancelledError(ctx context.Context, stateID string) *schema.WendError {
	return schema.NewError(schema.ErrCodeExecution, "run cancelled").
		WithCause(context.Cause(ctx)).
		WithState(stateID)
}
