// Package expressions evaluates guard and assignment expressions against a
// run's variables. Expression text may be wrapped in $( ... ) and routed to an
// engine by prefix: "cel:" selects CEL, "jq:" selects GoJQ, anything else uses
// Expr. The workflow engine never interprets expression text itself; it hands
// the raw string and a variable snapshot to the Evaluator.
package expressions

import (
	"context"
	"reflect"
	"strings"

	"github.com/wendlabs/wend/pkg/schema"
)

const (
	prefixCEL = "cel:"
	prefixJQ  = "jq:"
)

// Evaluator routes expressions to the engine named by their prefix.
// Safe for concurrent use.
type Evaluator struct {
	expr *ExprEngine
	cel  *CELEngine
	jq   *GoJQEngine
}

// NewEvaluator creates an Evaluator with all three engines ready.
func NewEvaluator() (*Evaluator, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		expr: NewExprEngine(),
		cel:  celEngine,
		jq:   NewGoJQEngine(),
	}, nil
}

// IsExpression reports whether raw carries the $( ... ) expression marker.
// Assignment values without the marker are rendered as templates instead.
func IsExpression(raw string) bool {
	s := strings.TrimSpace(raw)
	return strings.HasPrefix(s, "$(") && strings.HasSuffix(s, ")")
}

// Unwrap strips the optional $( ... ) marker and surrounding whitespace,
// returning the bare expression text. Unmarked input is returned trimmed.
func Unwrap(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "$(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	return s
}

// Evaluate unwraps raw, routes it to an engine by prefix, and evaluates it
// against the scope.
func (ev *Evaluator) Evaluate(ctx context.Context, raw string, scope map[string]any) (any, error) {
	engine, expression, err := ev.route(raw)
	if err != nil {
		return nil, err
	}
	return engine.Evaluate(ctx, expression, scope)
}

// EvaluateBool evaluates raw and folds the result to a guard decision.
// Booleans count as themselves; nil is false; strings must be non-empty;
// numbers must be non-zero; collections must be non-empty. Anything else
// counts as true.
func (ev *Evaluator) EvaluateBool(ctx context.Context, raw string, scope map[string]any) (bool, error) {
	out, err := ev.Evaluate(ctx, raw, scope)
	if err != nil {
		return false, err
	}
	return truthy(out), nil
}

// Check compiles raw without evaluating it, reporting the error a later
// Evaluate would raise. Used to reject bad guards at validation time.
func (ev *Evaluator) Check(raw string) error {
	engine, expression, err := ev.route(raw)
	if err != nil {
		return err
	}
	if c, ok := engine.(compiler); ok {
		return c.compile(expression)
	}
	return nil
}

// route unwraps raw and picks the engine named by its prefix.
func (ev *Evaluator) route(raw string) (Engine, string, error) {
	expression := Unwrap(raw)

	var engine Engine = ev.expr
	switch {
	case strings.HasPrefix(expression, prefixCEL):
		engine = ev.cel
		expression = strings.TrimSpace(strings.TrimPrefix(expression, prefixCEL))
	case strings.HasPrefix(expression, prefixJQ):
		engine = ev.jq
		expression = strings.TrimSpace(strings.TrimPrefix(expression, prefixJQ))
	}

	if expression == "" {
		return nil, "", schema.NewErrorf(schema.ErrCodeExpression, "empty expression in %q", raw)
	}
	return engine, expression, nil
}

// truthy folds an engine result to a boolean.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case float32:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}

	// CEL map and list results unwrap to reflection-only types.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}
