package action

import (
	"github.com/wendlabs/wend/internal/template"
	"github.com/wendlabs/wend/pkg/schema"
)

// executeLog renders and emits the message at the requested severity.
// Logging never fails the run: a render failure degrades to the raw
// template text plus a warning.
func (d *Dispatcher) executeLog(a schema.Log, in Input) (*Outcome, error) {
	msg, err := template.Render(a.Message, in.Vars)
	if err != nil {
		d.logger.Warn("log message failed to render, emitting raw text",
			"run_id", in.RunID, "state_id", in.StateID, "error", err)
		msg = a.Message
	}

	attrs := []any{
		"run_id", in.RunID,
		"workflow", in.Workflow,
		"state_id", in.StateID,
	}
	switch a.Level {
	case schema.LogError:
		d.logger.Error(msg, attrs...)
	case schema.LogWarning:
		d.logger.Warn(msg, attrs...)
	default:
		d.logger.Info(msg, attrs...)
	}

	return &Outcome{}, nil
}
