package validation

import "github.com/wendlabs/wend/pkg/schema"

// Validator checks workflow definitions for correctness before execution.
type Validator interface {
	ValidateDefinition(def *schema.WorkflowDefinition) error
}

// GuardChecker compiles expression text without evaluating it, reporting
// the error a later evaluation would raise. The expressions Evaluator
// satisfies this; validation uses it to reject bad guards early.
type GuardChecker interface {
	Check(raw string) error
}
