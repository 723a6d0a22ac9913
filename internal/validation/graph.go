package validation

import (
	"fmt"

	"github.com/wendlabs/wend/internal/phrase"
	"github.com/wendlabs/wend/pkg/schema"
)

// validateGraph performs reachability analysis: every state must be reachable
// from start, and at least one exit must be reachable so the run can end.
// Cycles are deliberately legal; the runtime visit counter bounds them.
func validateGraph(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	// BFS from start over declared transitions.
	reachable := make(map[string]bool, len(def.States))
	queue := []string{def.Start}
	reachable[def.Start] = true

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		state := def.State(id)
		if state == nil {
			continue
		}
		for _, tr := range state.Transitions {
			if !reachable[tr.To] {
				reachable[tr.To] = true
				queue = append(queue, tr.To)
			}
		}
	}

	for i, s := range def.States {
		if !reachable[s.ID] {
			result.AddErrorf(fmt.Sprintf("/states/%d", i), schema.ErrCodeValidation,
				"state %q is unreachable from start state %q", s.ID, def.Start)
		}
	}

	if !exitReachable(def, reachable) {
		result.AddError("/states", schema.ErrCodeValidation,
			"no terminal state is reachable from start; the run could never end")
	}

	return result
}

// exitReachable reports whether the run can reach an end: a terminal state,
// or a state whose action is Abort (which ends the run regardless of
// transitions).
func exitReachable(def *schema.WorkflowDefinition, reachable map[string]bool) bool {
	for i := range def.States {
		s := &def.States[i]
		if !reachable[s.ID] {
			continue
		}
		if s.Terminal() {
			return true
		}
		// Semantic validation already guaranteed the phrase parses.
		if action, err := phrase.Parse(s.Action); err == nil {
			if _, isAbort := action.(schema.Abort); isAbort {
				return true
			}
		}
	}
	return false
}
