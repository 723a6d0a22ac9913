// Package template renders variable references embedded in action argument
// and message text against the run context.
//
// Two notations are supported: the filter-capable form
// `{{ name | default: "x" | upper }}` and the plain placeholder `${name}`.
// The placeholder pass runs only when the filter form found no spans, to
// keep phrases that predate template support working.
package template

import (
	"fmt"
	"strings"

	"github.com/wendlabs/wend/internal/vars"
	"github.com/wendlabs/wend/pkg/schema"
)

// RenderError reports a failed render. Variable names the unresolved
// variable when the failure is a missing binding without a fallback;
// syntax problems leave it empty and set Message.
type RenderError struct {
	Template string
	Variable string
	Message  string
}

func (e *RenderError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("render error in %q: variable %q is not defined", e.Template, e.Variable)
	}
	return fmt.Sprintf("render error in %q: %s", e.Template, e.Message)
}

// WendError converts the render failure into the structured error form.
func (e *RenderError) WendError() *schema.WendError {
	details := map[string]any{"template": e.Template}
	if e.Variable != "" {
		details["variable"] = e.Variable
	}
	return schema.NewError(schema.ErrCodeRender, e.Error()).WithDetails(details)
}

// Render resolves template references in tmpl against ctx. Rendering is
// pure: the context is never mutated, and rendering an output that contains
// no further template syntax returns it unchanged.
func Render(tmpl string, ctx *vars.Context) (string, error) {
	out, spans, err := renderSpans(tmpl, ctx)
	if err != nil {
		return "", err
	}
	if spans > 0 {
		return out, nil
	}
	return renderPlaceholders(tmpl, ctx)
}

// renderSpans resolves `{{ ... }}` spans and reports how many were found.
func renderSpans(tmpl string, ctx *vars.Context) (string, int, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	spans := 0
	i := 0
	for i < len(tmpl) {
		idx := strings.Index(tmpl[i:], "{{")
		if idx == -1 {
			b.WriteString(tmpl[i:])
			break
		}
		b.WriteString(tmpl[i : i+idx])
		start := i + idx + 2

		end, ok := findSpanClose(tmpl, start)
		if !ok {
			return "", 0, &RenderError{Template: tmpl, Message: "unclosed {{ span"}
		}

		span := strings.TrimSpace(tmpl[start:end])
		if span == "" {
			return "", 0, &RenderError{Template: tmpl, Message: "empty {{ }} reference"}
		}
		if strings.Contains(span, "{{") {
			return "", 0, &RenderError{Template: tmpl, Message: "nested {{ spans are not allowed"}
		}

		rendered, err := renderOneSpan(tmpl, span, ctx)
		if err != nil {
			return "", 0, err
		}
		b.WriteString(rendered)

		spans++
		i = end + 2
	}

	return b.String(), spans, nil
}

// findSpanClose locates the closing }} for a span, honoring double-quoted
// filter arguments so a brace inside an argument does not end the span.
func findSpanClose(s string, start int) (int, bool) {
	inString := false
	for j := start; j < len(s); j++ {
		ch := s[j]
		if inString {
			if ch == '\\' {
				j++
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
			continue
		}
		if ch == '}' && j+1 < len(s) && s[j+1] == '}' {
			return j, true
		}
	}
	return 0, false
}

// renderOneSpan resolves a single span body: a variable path followed by an
// optional filter chain. A missing variable propagates through non-default
// filters untouched; `default` supplies the value; still missing at the end
// of the chain is the reported failure.
func renderOneSpan(tmpl, span string, ctx *vars.Context) (string, error) {
	segments := splitPipes(span)
	path := strings.TrimSpace(segments[0])
	if path == "" {
		return "", &RenderError{Template: tmpl, Message: "span has no variable reference"}
	}

	value, found := resolvePath(ctx, path)

	for _, seg := range segments[1:] {
		name, arg, hasArg, err := parseFilter(tmpl, seg)
		if err != nil {
			return "", err
		}
		if name == "default" {
			if !hasArg {
				return "", &RenderError{Template: tmpl, Message: `filter "default" requires a string argument`}
			}
			if !found {
				value, found = arg, true
			}
			continue
		}
		if !found {
			continue
		}
		value, err = applyFilter(tmpl, name, hasArg, value)
		if err != nil {
			return "", err
		}
	}

	if !found {
		return "", &RenderError{Template: tmpl, Variable: path}
	}
	return stringify(value), nil
}

// renderPlaceholders resolves the legacy `${name}` notation. No filters and
// no fallback: a missing variable is a reported failure.
func renderPlaceholders(tmpl string, ctx *vars.Context) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	i := 0
	for i < len(tmpl) {
		idx := strings.Index(tmpl[i:], "${")
		if idx == -1 {
			b.WriteString(tmpl[i:])
			break
		}
		b.WriteString(tmpl[i : i+idx])
		start := i + idx + 2

		end := strings.IndexByte(tmpl[start:], '}')
		if end == -1 {
			return "", &RenderError{Template: tmpl, Message: "unclosed ${ placeholder"}
		}
		end += start

		path := strings.TrimSpace(tmpl[start:end])
		if path == "" {
			return "", &RenderError{Template: tmpl, Message: "empty ${} placeholder"}
		}

		value, found := resolvePath(ctx, path)
		if !found {
			return "", &RenderError{Template: tmpl, Variable: path}
		}
		b.WriteString(stringify(value))

		i = end + 1
	}

	return b.String(), nil
}

// splitPipes splits a span body on '|' outside double-quoted arguments.
func splitPipes(span string) []string {
	var parts []string
	inString := false
	last := 0
	for j := 0; j < len(span); j++ {
		ch := span[j]
		if inString {
			if ch == '\\' {
				j++
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '|':
			parts = append(parts, span[last:j])
			last = j + 1
		}
	}
	return append(parts, span[last:])
}

// parseFilter splits one chain segment into filter name and optional quoted
// argument.
func parseFilter(tmpl, segment string) (name, arg string, hasArg bool, err error) {
	seg := strings.TrimSpace(segment)
	if seg == "" {
		return "", "", false, &RenderError{Template: tmpl, Message: "empty filter in chain"}
	}

	colon := strings.IndexByte(seg, ':')
	if colon == -1 {
		return seg, "", false, nil
	}

	name = strings.TrimSpace(seg[:colon])
	rawArg := strings.TrimSpace(seg[colon+1:])
	if len(rawArg) < 2 || rawArg[0] != '"' || rawArg[len(rawArg)-1] != '"' {
		return "", "", false, &RenderError{Template: tmpl,
			Message: fmt.Sprintf("filter %q argument must be a quoted string", name)}
	}

	unquoted := rawArg[1 : len(rawArg)-1]
	unquoted = strings.ReplaceAll(unquoted, `\"`, `"`)
	unquoted = strings.ReplaceAll(unquoted, `\\`, `\`)
	return name, unquoted, true, nil
}

func applyFilter(tmpl, name string, hasArg bool, value any) (any, error) {
	switch name {
	case "upper":
		if hasArg {
			return nil, filterArgErr(tmpl, name)
		}
		return strings.ToUpper(stringify(value)), nil
	case "lower":
		if hasArg {
			return nil, filterArgErr(tmpl, name)
		}
		return strings.ToLower(stringify(value)), nil
	case "trim":
		if hasArg {
			return nil, filterArgErr(tmpl, name)
		}
		return strings.TrimSpace(stringify(value)), nil
	case "json":
		if hasArg {
			return nil, filterArgErr(tmpl, name)
		}
		return jsonify(value), nil
	default:
		return nil, &RenderError{Template: tmpl, Message: fmt.Sprintf("unknown filter %q", name)}
	}
}

func filterArgErr(tmpl, name string) error {
	return &RenderError{Template: tmpl, Message: fmt.Sprintf("filter %q takes no argument", name)}
}
