package store

import (
	"time"

	"github.com/wendlabs/wend/pkg/schema"
)

// Run is the archived record of a workflow run. Status tracks the live
// lifecycle while the run executes; Outcome, Reason, Err, FinalState and
// FinishedAt are stamped once the run reaches a terminal state.
type Run struct {
	RunID      string            `json:"run_id"`
	Workflow   string            `json:"workflow"`
	Status     schema.RunStatus  `json:"status"`
	Outcome    schema.RunOutcome `json:"outcome,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Err        *schema.WendError `json:"error,omitempty"`
	FinalState string            `json:"final_state,omitempty"`
	Vars       map[string]any    `json:"vars,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// Finished reports whether the run has a terminal record.
func (r *Run) Finished() bool { return r.FinishedAt != nil }

// RunFilter narrows ListRuns. Zero-valued fields match everything.
type RunFilter struct {
	Workflow string            `json:"workflow,omitempty"`
	Status   schema.RunStatus  `json:"status,omitempty"`
	Outcome  schema.RunOutcome `json:"outcome,omitempty"`
	Since    *time.Time        `json:"since,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
}

// RunEvent is one archived lifecycle event. Sequence is contiguous and
// starts at 1 within each run; ID is global insertion order.
type RunEvent struct {
	ID       int64          `json:"id"`
	RunID    string         `json:"run_id"`
	Workflow string         `json:"workflow"`
	Type     string         `json:"type"`
	StateID  string         `json:"state_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Sequence int64          `json:"sequence"`
	At       time.Time      `json:"at"`
}

// EventFilter narrows ListEventsByType. Zero-valued fields match everything.
type EventFilter struct {
	Workflow string     `json:"workflow,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}
