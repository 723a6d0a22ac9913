package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/wendlabs/wend/internal/template"
	"github.com/wendlabs/wend/pkg/schema"
)

const stderrDetailLimit = 2048

// executeShell runs one command through the system shell. The rendered
// command and working directory are screened by the security policy before
// any process spawns; the environment overlay merges on top of the inherited
// environment. An abort raised mid-run terminates the process with SIGTERM
// and a kill after the grace period, as does the enforced timeout.
func (d *Dispatcher) executeShell(ctx context.Context, a schema.ShellExecute, in Input) (*Outcome, error) {
	command, err := template.Render(a.Command, in.Vars)
	if err != nil {
		return nil, renderError(err, in.StateID)
	}

	workingDir := ""
	if a.WorkingDir != "" {
		workingDir, err = template.Render(a.WorkingDir, in.Vars)
		if err != nil {
			return nil, renderError(err, in.StateID)
		}
	}

	env, err := renderArgs(a.Env, in.Vars)
	if err != nil {
		return nil, renderError(err, in.StateID)
	}

	if d.policy != nil {
		if err := d.policy.Check(command, workingDir); err != nil {
			if wendErr, ok := err.(*schema.WendError); ok {
				return nil, wendErr.WithState(in.StateID)
			}
			return nil, err
		}
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = d.cfg.ShellTimeout
	}
	if d.cfg.MaxShellTimeout > 0 && timeout > d.cfg.MaxShellTimeout {
		timeout = d.cfg.MaxShellTimeout
	}

	execCtx, cancelExec := context.WithTimeout(ctx, timeout)
	defer cancelExec()
	procCtx, stopProc := context.WithCancel(execCtx)
	defer stopProc()

	cmd := exec.CommandContext(procCtx, "/bin/sh", "-c", command)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = d.cfg.ShellGrace

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: d.cfg.MaxOutputSize}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: d.cfg.MaxOutputSize}

	watch := d.watchAbort(procCtx, in.Workflow, stopProc)

	start := d.clock.Now()
	runErr := cmd.Run()
	stopProc()
	duration := d.clock.Since(start)

	if sig := watch.wait(); sig != nil {
		return nil, abortError(sig, in.StateID)
	}

	if runErr != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout,
				"command timed out after %s", timeout).
				WithState(in.StateID).
				WithDetails(map[string]any{
					"command": command,
					"timeout": timeout.String(),
					"stderr":  tail(stderrBuf.String(), stderrDetailLimit),
				})
		}
		if ctx.Err() != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "command cancelled").
				WithCause(context.Cause(ctx)).
				WithState(in.StateID)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, schema.NewErrorf(schema.ErrCodeNonZeroExit,
				"command exited with code %d", exitErr.ExitCode()).
				WithState(in.StateID).
				WithDetails(map[string]any{
					"command":   command,
					"exit_code": exitErr.ExitCode(),
					"stderr":    tail(stderrBuf.String(), stderrDetailLimit),
				})
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"command failed to start: %v", runErr).
			WithCause(runErr).
			WithState(in.StateID)
	}

	if stderrBuf.Len() > 0 {
		d.logger.Debug("command wrote to stderr",
			"run_id", in.RunID, "state_id", in.StateID,
			"stderr", tail(stderrBuf.String(), stderrDetailLimit))
	}
	d.logger.Debug("command completed",
		"run_id", in.RunID, "state_id", in.StateID, "duration", duration)

	return &Outcome{
		Bindings: []Binding{
			{Name: BindingShellOutput, Value: parseShellOutput(stdoutBuf.Bytes())},
			{Name: BindingShellExitCode, Value: 0},
		},
	}, nil
}

// parseShellOutput binds stdout for guard evaluation: valid JSON is parsed
// into its structured value, anything else is the text with trailing
// newlines trimmed.
func parseShellOutput(stdout []byte) any {
	trimmed := strings.TrimRight(string(stdout), "\n")
	if trimmed == "" {
		return ""
	}
	if json.Valid([]byte(trimmed)) {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return trimmed
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

// limitedWriter wraps a writer and silently discards bytes beyond the limit.
// Write always reports the full len(p) consumed to prevent the subprocess
// from blocking on a full pipe.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return total, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return total, err
	}
	return total, nil
}
