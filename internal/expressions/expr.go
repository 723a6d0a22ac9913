package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wendlabs/wend/pkg/schema"
)

// ExprEngine evaluates with expr-lang/expr, the default engine for guards and
// assignments. Run variables are injected as top-level identifiers, so a guard
// over {branch_value: "1"} reads `branch_value == "1"`; undefined identifiers
// resolve to nil rather than erroring, which lets guards mention variables an
// earlier state may not have set yet. Safe for concurrent use.
type ExprEngine struct {
	programs *progCache[*vm.Program]
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newProgCache[*vm.Program]()}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate runs the expression with the scope as its environment.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, scope map[string]any) (any, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	env := scope
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, engineError("expr evaluation failed for", expression, err)
	}
	return out, nil
}

func (e *ExprEngine) program(expression string) (*vm.Program, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty expr expression")
	}
	return e.programs.lookup(expression, func(src string) (*vm.Program, error) {
		// Compiled against an empty environment: the program must not be
		// pinned to the first scope's shape, because the same guard text
		// runs against every state's variable snapshot.
		prg, err := expr.Compile(src,
			expr.Env(map[string]any{}),
			expr.AllowUndefinedVariables(),
		)
		if err != nil {
			return nil, engineError("expr compile error in", src, err)
		}
		return prg, nil
	})
}

func (e *ExprEngine) compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// engineError wraps an engine failure with the expression it came from.
func engineError(what, expression string, cause error) *schema.WendError {
	return schema.NewErrorf(schema.ErrCodeExpression, "%s %q: %s", what, expression, cause.Error()).
		WithCause(cause).
		WithDetails(map[string]any{"expression": expression})
}

var _ Engine = (*ExprEngine)(nil)
