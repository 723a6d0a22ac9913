package action

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendlabs/wend/internal/vars"
	"github.com/wendlabs/wend/pkg/schema"
)

func newLogDispatcher(buf *bytes.Buffer) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(buf, nil))
	return NewDispatcher(nil, nil, nil, nil, nil, logger, Config{})
}

func TestLog_RendersMessage(t *testing.T) {
	var buf bytes.Buffer
	d := newLogDispatcher(&buf)
	v := vars.FromMap(map[string]any{"version": "1.4.0"})

	out, err := d.Execute(context.Background(), schema.Log{Level: schema.LogInfo, Message: "deploying {{ version }}"}, testInput(v))
	require.NoError(t, err)
	assert.Empty(t, out.Bindings)
	assert.Contains(t, buf.String(), "deploying 1.4.0")
	assert.Contains(t, buf.String(), "run_id=run-1")
	assert.Contains(t, buf.String(), "state_id=work")
}

func TestLog_Levels(t *testing.T) {
	cases := map[schema.LogLevel]string{
		schema.LogInfo:    "level=INFO",
		schema.LogWarning: "level=WARN",
		schema.LogError:   "level=ERROR",
	}
	for level, want := range cases {
		t.Run(string(level), func(t *testing.T) {
			var buf bytes.Buffer
			d := newLogDispatcher(&buf)

			_, err := d.Execute(context.Background(), schema.Log{Level: level, Message: "checkpoint"}, testInput(nil))
			require.NoError(t, err)
			assert.Contains(t, buf.String(), want)
			assert.Contains(t, buf.String(), "checkpoint")
		})
	}
}

func TestLog_RenderFallback(t *testing.T) {
	var buf bytes.Buffer
	d := newLogDispatcher(&buf)

	// Logging never fails the run; a bad template emits the raw text.
	out, err := d.Execute(context.Background(), schema.Log{Level: schema.LogInfo, Message: "count: {{ absent }}"}, testInput(nil))
	require.NoError(t, err)
	assert.Empty(t, out.Bindings)
	assert.Contains(t, buf.String(), "failed to render")
	assert.Contains(t, buf.String(), "absent")
}

func TestLog_UnclosedTemplateStillLogs(t *testing.T) {
	var buf bytes.Buffer
	d := newLogDispatcher(&buf)

	_, err := d.Execute(context.Background(), schema.Log{Level: schema.LogWarning, Message: "broken {{ span"}, testInput(nil))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "broken")
}
