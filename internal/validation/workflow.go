package validation

import "github.com/wendlabs/wend/pkg/schema"

// WorkflowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (state ids, action phrases, transition targets, guards)
// 3. Graph (reachability from start, at least one reachable exit)
type WorkflowValidator struct {
	structural *JSONSchemaValidator
	guards     GuardChecker
}

// NewWorkflowValidator creates a WorkflowValidator.
// guards may be nil to skip guard compilation checks.
func NewWorkflowValidator(guards GuardChecker) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		structural: jsv,
		guards:     guards,
	}, nil
}

// Validate runs the full 3-stage pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and graph stages are skipped.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow definition is nil")
		return r
	}

	result := validateStructural(wv.structural, def)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(def, wv.guards))

	// Graph analysis needs valid ids and targets, so skip on semantic errors.
	if result.Valid() {
		result.Merge(validateGraph(def))
	}

	return result
}

// ValidateDefinition satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	return wv.Validate(def).ToError()
}

// validateStructural wraps JSONSchemaValidator.ValidateDefinition, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDefinition(def)
	if err == nil {
		return result
	}

	wendErr, ok := err.(*schema.WendError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if wendErr.Details != nil {
		if violations, ok := wendErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, wendErr.Message)
	return result
}
