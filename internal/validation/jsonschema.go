package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wendlabs/wend/pkg/schema"
)

// workflowSchemaID is the resource URL the workflow schema is registered and
// compiled under. It matches the $id inside workflowSchemaJSON.
const workflowSchemaID = "https://wendlabs.dev/schemas/workflow.json"

// workflowSchemaJSON is the JSON Schema for WorkflowDefinition validation,
// embedded so validation needs no files on disk.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://wendlabs.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "start", "states"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": { "type": "string" },
    "start": {
      "type": "string",
      "minLength": 1
    },
    "vars": {
      "type": "object"
    },
    "states": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/state" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "state": {
      "type": "object",
      "required": ["id", "action"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "action": {
          "type": "string",
          "minLength": 1
        },
        "transitions": {
          "type": "array",
          "items": { "$ref": "#/$defs/transition" }
        },
        "end": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "transition": {
      "type": "object",
      "required": ["to"],
      "properties": {
        "when": { "type": "string" },
        "to": {
          "type": "string",
          "minLength": 1
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks a decoded workflow document against the embedded
// JSON Schema (Draft 2020-12). Safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the workflow
// schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(workflowSchemaID, doc); err != nil {
		return nil, fmt.Errorf("register workflow schema: %w", err)
	}
	compiled, err := c.Compile(workflowSchemaID)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &JSONSchemaValidator{workflowSchema: compiled}, nil
}

// ValidateDefinition validates a WorkflowDefinition against the workflow
// JSON Schema.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}

	doc, err := asSchemaDoc(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow definition").WithCause(err)
	}

	if err := v.workflowSchema.Validate(doc); err != nil {
		return validationError(err)
	}

	return nil
}

// asSchemaDoc re-decodes a Go value into the document form the jsonschema
// library expects, with numbers carried as json.Number.
func asSchemaDoc(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

// validationError shapes a jsonschema failure into a WendError carrying one
// line per leaf violation under Details["violations"].
func validationError(err error) *schema.WendError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := flattenViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	msg := violations[0]
	if len(violations) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(violations))
	}
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// flattenViolations walks the cause tree depth-first and renders one line per
// leaf, each prefixed with the JSON pointer of the offending instance.
func flattenViolations(root *jsonschema.ValidationError) []string {
	var out []string
	stack := []*jsonschema.ValidationError{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n := len(cur.Causes); n > 0 {
			for i := n - 1; i >= 0; i-- {
				stack = append(stack, cur.Causes[i])
			}
			continue
		}
		out = append(out, instancePointer(cur.InstanceLocation)+": "+cur.Error())
	}
	return out
}

func instancePointer(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}
