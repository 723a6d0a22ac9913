package logging

import (
	"fmt"
	"io"
	"log/slog"
)

// NewHandler builds the process log handler: text or json at the given
// level, wrapped for run correlation. Level accepts slog's textual forms
// ("debug", "info", "warn", "error").
func NewHandler(w io.Writer, level, format string) (slog.Handler, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var inner slog.Handler
	switch format {
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	case "", "text":
		inner = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return NewCorrelationHandler(inner), nil
}
