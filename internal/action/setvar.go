package action

import (
	"context"

	"github.com/wendlabs/wend/internal/expressions"
	"github.com/wendlabs/wend/internal/template"
	"github.com/wendlabs/wend/pkg/schema"
)

// executeSet evaluates the assignment value and binds it under the variable
// name. Values wrapped in $( ... ) go to the expression evaluator; anything
// else is template text rendered against the context.
func (d *Dispatcher) executeSet(ctx context.Context, a schema.SetVariable, in Input) (*Outcome, error) {
	raw := a.Value.Raw

	if expressions.IsExpression(raw) {
		if d.eval == nil {
			return nil, schema.NewError(schema.ErrCodeExecution,
				"no expression evaluator configured").WithState(in.StateID)
		}
		value, err := d.eval.Evaluate(ctx, raw, in.Vars.Snapshot())
		if err != nil {
			if wendErr, ok := err.(*schema.WendError); ok {
				return nil, wendErr.WithState(in.StateID)
			}
			return nil, err
		}
		return &Outcome{Bindings: []Binding{{Name: a.Name, Value: value}}}, nil
	}

	rendered, err := template.Render(raw, in.Vars)
	if err != nil {
		return nil, renderError(err, in.StateID)
	}
	return &Outcome{Bindings: []Binding{{Name: a.Name, Value: rendered}}}, nil
}
