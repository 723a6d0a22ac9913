package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wendlabs/wend/internal/vars"
)

// resolvePath looks up a possibly dotted path in the context. A full-name
// binding wins over traversal, so variable names containing dots keep
// working.
func resolvePath(ctx *vars.Context, path string) (any, bool) {
	if v, ok := ctx.Get(path); ok {
		return v, true
	}

	segments := strings.Split(path, ".")
	if len(segments) < 2 {
		return nil, false
	}

	current, ok := ctx.Get(segments[0])
	if !ok {
		return nil, false
	}
	for _, seg := range segments[1:] {
		m, isMap := current.(map[string]any)
		if !isMap {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// stringify converts a resolved value into its text form. Strings pass
// through; structured values are embedded as inline JSON; nil renders
// empty.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%v", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// jsonify renders any value as JSON, quoting strings.
func jsonify(value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
