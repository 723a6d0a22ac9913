package expressions

import "context"

// Engine evaluates expressions against a run's variable scope.
// Three implementations: Expr (default), CEL ("cel:" prefix), GoJQ ("jq:" prefix).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, scope map[string]any) (any, error)
}

// compiler is implemented by engines that can compile an expression without
// evaluating it. Validation uses this to reject bad guards before a run starts.
type compiler interface {
	compile(expression string) error
}
