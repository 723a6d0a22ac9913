package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/wendlabs/wend/pkg/schema"
)

// CELEngine evaluates with Google's Common Expression Language, selected by
// the "cel:" prefix. CEL requires declared variables, so the environment
// exposes the run's variables as a single map and guards read through it:
// `vars.branch_value == "1"`. Unlike Expr, CEL errors on missing keys, which
// makes it the strict choice when a guard should fail loudly on absent data.
// Safe for concurrent use.
type CELEngine struct {
	env      *cel.Env
	programs *progCache[cel.Program]
}

// NewCELEngine creates a CEL engine whose environment declares one variable,
// vars, a map(string, dyn) holding the run's variables keyed by name.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{
		env:      env,
		programs: newProgCache[cel.Program](),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate runs the expression with the scope bound to `vars`.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, scope map[string]any) (any, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	if scope == nil {
		scope = map[string]any{}
	}

	out, _, err := prg.Eval(map[string]any{"vars": scope})
	if err != nil {
		return nil, engineError("CEL evaluation failed for", expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) program(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty CEL expression")
	}
	return e.programs.lookup(expression, func(src string) (cel.Program, error) {
		ast, issues := e.env.Compile(src)
		if issues != nil && issues.Err() != nil {
			return nil, engineError("CEL compile error in", src, issues.Err())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, engineError("CEL program error for", src, err)
		}
		return prg, nil
	})
}

func (e *CELEngine) compile(expression string) error {
	_, err := e.program(expression)
	return err
}

var _ Engine = (*CELEngine)(nil)
