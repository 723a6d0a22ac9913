package schema

import "time"

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusWaiting   RunStatus = "waiting"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusAborted:
		return true
	}
	return false
}

// RunOutcome is the terminal result of a run.
type RunOutcome string

const (
	OutcomeCompleted RunOutcome = "completed"
	OutcomeFailed    RunOutcome = "failed"
	OutcomeAborted   RunOutcome = "aborted"
)

// RunResult is the structured record of a finished run. It carries enough
// detail to reconstruct why the run stopped without parsing log text.
type RunResult struct {
	RunID      string         `json:"run_id"`
	Workflow   string         `json:"workflow"`
	Outcome    RunOutcome     `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	Err        *WendError     `json:"error,omitempty"`
	FinalState string         `json:"final_state,omitempty"`
	Vars       map[string]any `json:"vars,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Status maps the outcome back onto its terminal status.
func (r *RunResult) Status() RunStatus {
	switch r.Outcome {
	case OutcomeCompleted:
		return RunStatusCompleted
	case OutcomeAborted:
		return RunStatusAborted
	default:
		return RunStatusFailed
	}
}

// AbortSignal is the decoded abort sentinel: an out-of-band cancellation
// marker the engine polls cooperatively. Reason is the marker's UTF-8 text.
type AbortSignal struct {
	Workflow string    `json:"workflow"`
	Reason   string    `json:"reason"`
	RaisedAt time.Time `json:"raised_at"`
}
