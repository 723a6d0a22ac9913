package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeParse         = "PARSE_ERROR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeRender        = "RENDER_ERROR"
	ErrCodeExpression    = "EXPRESSION_ERROR"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeTimeout       = "TIMEOUT_ERROR"
	ErrCodeResource      = "RESOURCE_EXHAUSTED"
	ErrCodeNonZeroExit   = "NONZERO_EXIT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeCycleDetected = "CYCLE_DETECTED"
	ErrCodeNoTransition  = "NO_TRANSITION"
	ErrCodeAborted       = "ABORTED"
	ErrCodeSignal        = "SIGNAL_ERROR"
	ErrCodeStore         = "STORE_ERROR"
)

// WendError is the structured error type for all wend operations.
type WendError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StateID string         `json:"state_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *WendError) Error() string {
	if e.StateID != "" {
		return fmt.Sprintf("[%s] state %s: %s", e.Code, e.StateID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *WendError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error is classified transient.
// Only transient errors are eligible for the engine's retry policy.
func (e *WendError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTimeout, ErrCodeResource:
		return true
	}
	return false
}

// NewError creates a new WendError.
func NewError(code, message string) *WendError {
	return &WendError{Code: code, Message: message}
}

// NewErrorf creates a new WendError with a formatted message.
func NewErrorf(code, format string, args ...any) *WendError {
	return &WendError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithState attaches the originating state ID to the error.
func (e *WendError) WithState(stateID string) *WendError {
	e.StateID = stateID
	return e
}

// WithCause attaches an underlying cause.
func (e *WendError) WithCause(err error) *WendError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *WendError) WithDetails(details map[string]any) *WendError {
	e.Details = details
	return e
}
