package schema

// Event type constants for the run event stream and archive log.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunAborted   = "run_aborted"

	EventStateEntered    = "state_entered"
	EventActionCompleted = "action_completed"
	EventActionFailed    = "action_failed"
	EventActionRetrying  = "action_retrying"
	EventTransitionTaken = "transition_taken"

	EventWaitStarted = "wait_started"
	EventWaitResumed = "wait_resumed"
	EventVariableSet = "variable_set"
)
