package engine

import "github.com/wendlabs/wend/pkg/schema"

// ValidRunTransitions defines the allowed lifecycle moves for a run. Pending
// covers pool-queued runs that have not started; waiting covers suspension on
// a Wait action. Terminal statuses have no exits.
var ValidRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusPending: {
		schema.RunStatusRunning,
		schema.RunStatusAborted,
	},
	schema.RunStatusRunning: {
		schema.RunStatusWaiting,
		schema.RunStatusCompleted,
		schema.RunStatusFailed,
		schema.RunStatusAborted,
	},
	schema.RunStatusWaiting: {
		schema.RunStatusRunning,
		schema.RunStatusFailed,
		schema.RunStatusAborted,
	},
	schema.RunStatusCompleted: {},
	schema.RunStatusFailed:    {},
	schema.RunStatusAborted:   {},
}

func validRunTransition(from, to schema.RunStatus) bool {
	for _, allowed := range ValidRunTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
