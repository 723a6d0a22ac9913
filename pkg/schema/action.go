package schema

import "time"

// ActionKind identifies one variant of the Action union.
type ActionKind string

const (
	KindPrompt       ActionKind = "prompt"
	KindShellExecute ActionKind = "shell"
	KindWait         ActionKind = "wait"
	KindLog          ActionKind = "log"
	KindSetVariable  ActionKind = "set"
	KindSubWorkflow  ActionKind = "subworkflow"
	KindAbort        ActionKind = "abort"
)

// Action is the closed union of executable action variants. Values are
// produced by the phrase parser, are immutable from then on, and are
// consumed read-only by the dispatch layer. The unexported marker method
// seals the union so dispatch switches stay exhaustive.
type Action interface {
	Kind() ActionKind
	isAction()
}

// ExpressionHandle carries raw expression text captured by the parser.
// The core never interprets it; evaluation belongs to the expression
// evaluator collaborator at execution time.
type ExpressionHandle struct {
	Raw string `json:"raw"`
}

func (h ExpressionHandle) String() string { return h.Raw }

// Empty reports whether the handle carries no text.
func (h ExpressionHandle) Empty() bool { return h.Raw == "" }

// LogLevel is the severity requested by a Log action.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// Prompt renders a named prompt template against the run context overlaid
// with the rendered argument map. No external process, no model call.
type Prompt struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

func (Prompt) Kind() ActionKind { return KindPrompt }
func (Prompt) isAction()        {}

// ShellExecute runs one command through the system shell, subject to the
// security policy, with an optional working directory, environment overlay
// and timeout.
type ShellExecute struct {
	Command    string            `json:"command"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
}

func (ShellExecute) Kind() ActionKind { return KindShellExecute }
func (ShellExecute) isAction()        {}

// Wait suspends the run for a fixed duration, or until the external resume
// marker appears when UntilSignalled is set (Duration is zero then).
type Wait struct {
	Duration       time.Duration `json:"duration,omitempty"`
	UntilSignalled bool          `json:"until_signalled,omitempty"`
}

func (Wait) Kind() ActionKind { return KindWait }
func (Wait) isAction()        {}

// Log emits a rendered message at the requested severity.
type Log struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

func (Log) Kind() ActionKind { return KindLog }
func (Log) isAction()        {}

// SetVariable writes the evaluated value expression into the run context,
// overwriting any existing binding.
type SetVariable struct {
	Name  string           `json:"name"`
	Value ExpressionHandle `json:"value"`
}

func (SetVariable) Kind() ActionKind { return KindSetVariable }
func (SetVariable) isAction()        {}

// SubWorkflow runs another workflow to a terminal outcome, blocking the
// parent. The child receives a copy of the parent's variables with the
// rendered argument map merged on top.
type SubWorkflow struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

func (SubWorkflow) Kind() ActionKind { return KindSubWorkflow }
func (SubWorkflow) isAction()        {}

// Abort ends the run as Aborted with the carried reason. It is the only
// action that authors the aborted outcome.
type Abort struct {
	Reason string `json:"reason"`
}

func (Abort) Kind() ActionKind { return KindAbort }
func (Abort) isAction()        {}

// Describe returns a flat map describing an action, suitable for JSON tool
// results and event payloads. The switch is exhaustive over the union.
func Describe(a Action) map[string]any {
	if a == nil {
		return nil
	}
	m := map[string]any{"kind": string(a.Kind())}
	switch v := a.(type) {
	case Prompt:
		m["name"] = v.Name
		if len(v.Args) > 0 {
			m["args"] = v.Args
		}
	case ShellExecute:
		m["command"] = v.Command
		if v.WorkingDir != "" {
			m["working_dir"] = v.WorkingDir
		}
		if len(v.Env) > 0 {
			m["env"] = v.Env
		}
		if v.Timeout > 0 {
			m["timeout"] = v.Timeout.String()
		}
	case Wait:
		if v.UntilSignalled {
			m["until_signalled"] = true
		} else {
			m["duration"] = v.Duration.String()
		}
	case Log:
		m["level"] = string(v.Level)
		m["message"] = v.Message
	case SetVariable:
		m["name"] = v.Name
		m["value"] = v.Value.Raw
	case SubWorkflow:
		m["name"] = v.Name
		if len(v.Args) > 0 {
			m["args"] = v.Args
		}
	case Abort:
		m["reason"] = v.Reason
	}
	return m
}
