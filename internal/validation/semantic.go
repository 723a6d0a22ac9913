package validation

import (
	"fmt"

	"github.com/wendlabs/wend/internal/expressions"
	"github.com/wendlabs/wend/internal/phrase"
	"github.com/wendlabs/wend/pkg/schema"
)

// validateSemantic performs semantic analysis on the workflow definition.
// Checks: unique state ids, start state exists, every action phrase parses,
// transition targets exist, guards compile, no transition is declared after
// the unconditional one, end states have no outgoing transitions.
func validateSemantic(def *schema.WorkflowDefinition, guards GuardChecker) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	// Unique state ids; the id set also backs transition target checks.
	ids := make(map[string]int, len(def.States))
	for i, s := range def.States {
		if first, dup := ids[s.ID]; dup {
			result.AddErrorf(fmt.Sprintf("/states/%d/id", i), schema.ErrCodeValidation,
				"duplicate state id %q (first declared at /states/%d)", s.ID, first)
			continue
		}
		ids[s.ID] = i
	}

	if _, ok := ids[def.Start]; !ok {
		result.AddErrorf("/start", schema.ErrCodeValidation,
			"start state %q not found", def.Start)
	}

	for i := range def.States {
		validateState(&def.States[i], i, ids, guards, result)
	}

	return result
}

// validateState checks a single state: its action phrase and its outgoing
// transitions.
func validateState(state *schema.StateDefinition, idx int, ids map[string]int, guards GuardChecker, result *schema.ValidationResult) {
	path := fmt.Sprintf("/states/%d", idx)

	action, err := phrase.Parse(state.Action)
	if err != nil {
		result.AddError(path+"/action", schema.ErrCodeParse, err.Error())
	}

	if state.End && len(state.Transitions) > 0 {
		result.AddErrorf(path+"/transitions", schema.ErrCodeValidation,
			"end state %q has %d outgoing transitions", state.ID, len(state.Transitions))
	}
	if !state.End && len(state.Transitions) == 0 {
		result.AddWarning(path, schema.ErrCodeValidation,
			fmt.Sprintf("state %q has no transitions and is not marked end; it ends the run", state.ID))
	}

	// Guard evaluation stops at the first unconditional transition, so
	// anything declared after it can never be taken.
	defaultAt := -1
	for j, tr := range state.Transitions {
		tpath := fmt.Sprintf("%s/transitions/%d", path, j)

		if _, ok := ids[tr.To]; !ok {
			result.AddErrorf(tpath+"/to", schema.ErrCodeValidation,
				"transition targets unknown state %q", tr.To)
		}

		if defaultAt >= 0 {
			result.AddErrorf(tpath, schema.ErrCodeValidation,
				"transition is unreachable: declared after the unconditional transition at index %d", defaultAt)
		}
		if tr.When == "" {
			if defaultAt < 0 {
				defaultAt = j
			}
			continue
		}

		if guards != nil {
			if err := guards.Check(tr.When); err != nil {
				result.AddError(tpath+"/when", schema.ErrCodeExpression, errorMessage(err))
			}
		}
	}

	// Set values carrying the expression marker compile with the same
	// engines as guards; template-literal values are checked at render time.
	if set, ok := action.(schema.SetVariable); ok && guards != nil {
		if expressions.IsExpression(set.Value.Raw) {
			if err := guards.Check(set.Value.Raw); err != nil {
				result.AddError(path+"/action", schema.ErrCodeExpression, errorMessage(err))
			}
		}
	}
}

// errorMessage prefers the structured message over the full wrapped chain.
func errorMessage(err error) string {
	if wendErr, ok := err.(*schema.WendError); ok {
		return wendErr.Message
	}
	return err.Error()
}
