package action

import (
	"context"

	"github.com/wendlabs/wend/internal/template"
	"github.com/wendlabs/wend/pkg/schema"
)

// executePrompt resolves the named template and renders its body against the
// run context overlaid with the rendered argument map. No external process
// and no model call; the rendered text binds as prompt_output.
func (d *Dispatcher) executePrompt(_ context.Context, a schema.Prompt, in Input) (*Outcome, error) {
	if d.prompts == nil {
		return nil, schema.NewError(schema.ErrCodeExecution,
			"no prompt registry configured").WithState(in.StateID)
	}

	body, err := d.prompts.Resolve(a.Name)
	if err != nil {
		if wendErr, ok := err.(*schema.WendError); ok {
			return nil, wendErr.WithState(in.StateID)
		}
		return nil, err
	}

	args, err := renderArgs(a.Args, in.Vars)
	if err != nil {
		return nil, renderError(err, in.StateID)
	}

	// Arguments overlay a copy; the caller's context stays untouched until
	// the engine applies the outcome bindings.
	scope := in.Vars.Clone()
	for name, value := range args {
		scope.Set(name, value)
	}

	rendered, err := template.Render(body, scope)
	if err != nil {
		return nil, renderError(err, in.StateID)
	}

	return &Outcome{
		Bindings: []Binding{{Name: BindingPromptOutput, Value: rendered}},
	}, nil
}
