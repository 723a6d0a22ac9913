// Package logging ties log records back to the run that produced them.
// The engine primes the context with run correlation IDs; CorrelationHandler
// copies them onto every record written through a context-aware slog call.
package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	workflowKey
	stateIDKey
)

// WithRun returns a context carrying the run ID and workflow name. Any
// state ID inherited from an enclosing run is cleared; a child run has not
// entered a state yet.
func WithRun(ctx context.Context, runID, workflow string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	ctx = context.WithValue(ctx, workflowKey, workflow)
	return context.WithValue(ctx, stateIDKey, "")
}

// WithStateID returns a context carrying the state being executed.
func WithStateID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stateIDKey, id)
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// Workflow extracts the workflow name from the context, or "" if absent.
func Workflow(ctx context.Context) string {
	v, _ := ctx.Value(workflowKey).(string)
	return v
}

// StateID extracts the state ID from the context, or "" if absent.
func StateID(ctx context.Context) string {
	v, _ := ctx.Value(stateIDKey).(string)
	return v
}

// CorrelationHandler wraps an slog.Handler, injecting run correlation IDs
// from the context into every record. Install it once at setup so components
// can use logger.InfoContext(ctx, ...) and the IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with correlation injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := RunID(ctx); v != "" {
		r.AddAttrs(slog.String("run_id", v))
	}
	if v := Workflow(ctx); v != "" {
		r.AddAttrs(slog.String("workflow", v))
	}
	if v := StateID(ctx); v != "" {
		r.AddAttrs(slog.String("state_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
