package store

import (
	"context"
	"log/slog"

	"github.com/wendlabs/wend/internal/events"
)

// EventWriter archives lifecycle events synchronously. It satisfies
// events.Sink so it composes with the hub via events.MultiSink. Append
// failures are logged and dropped; the event stream never fails a run.
type EventWriter struct {
	store  Store
	logger *slog.Logger
}

// NewEventWriter wraps a store as an event sink.
func NewEventWriter(s Store, logger *slog.Logger) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWriter{store: s, logger: logger}
}

// Emit appends the event to the archive. Archival outlives the emitting
// run's context, so a cancelled run still gets its terminal events.
func (w *EventWriter) Emit(ctx context.Context, event events.Event) {
	if err := w.store.AppendEvent(context.WithoutCancel(ctx), event); err != nil {
		w.logger.Warn("event archive append failed",
			"run_id", event.RunID,
			"type", event.Type,
			"error", err)
	}
}
