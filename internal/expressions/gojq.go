package expressions

import (
	"context"

	"github.com/itchyny/gojq"

	"github.com/wendlabs/wend/pkg/schema"
)

// GoJQEngine evaluates with GoJQ, selected by the "jq:" prefix. The run's
// variables form the root object, so a guard over {branch_value: "1"} reads
// `.branch_value == "1"`. Suited to filtering and reshaping structured shell
// or sub-workflow output. Safe for concurrent use.
type GoJQEngine struct {
	programs *progCache[*gojq.Code]
}

// NewGoJQEngine creates a new GoJQ expression engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newProgCache[*gojq.Code]()}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Evaluate runs the query with the scope as the input object. The scope is
// normalized first because gojq rejects int64/int32/float32 inputs, and CEL
// results stored by earlier assignments arrive as int64.
//
// A jq query can produce multiple outputs: one output is returned directly,
// several come back collected into a []any.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, scope map[string]any) (any, error) {
	code, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	input, ok := normalizeForJQ(scope).(map[string]any)
	if !ok {
		input = map[string]any{}
	}

	var outs []any
	iter := code.RunWithContext(ctx, input)
	for {
		out, more := iter.Next()
		if !more {
			break
		}
		if failure, isErr := out.(error); isErr {
			return nil, engineError("jq evaluation failed for", expression, failure)
		}
		outs = append(outs, out)
	}

	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0], nil
	}
	return outs, nil
}

func (e *GoJQEngine) program(expression string) (*gojq.Code, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty jq expression")
	}
	return e.programs.lookup(expression, func(src string) (*gojq.Code, error) {
		query, err := gojq.Parse(src)
		if err != nil {
			return nil, engineError("jq parse error in", src, err)
		}
		code, err := gojq.Compile(query,
			// Empty environment blocks $ENV and env access.
			gojq.WithEnvironLoader(func() []string { return nil }),
		)
		if err != nil {
			return nil, engineError("jq compile error in", src, err)
		}
		return code, nil
	})
}

func (e *GoJQEngine) compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// normalizeForJQ deep-converts scope values to the types gojq accepts.
// jq numbers are float64 across the board.
func normalizeForJQ(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, elem := range x {
			m[k] = normalizeForJQ(elem)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, elem := range x {
			s[i] = normalizeForJQ(elem)
		}
		return s
	}
	return v
}

var _ Engine = (*GoJQEngine)(nil)
