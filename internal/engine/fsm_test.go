package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wendlabs/wend/pkg/schema"
)

func TestValidRunTransition(t *testing.T) {
	cases := []struct {
		from, to schema.RunStatus
		allowed  bool
	}{
		{schema.RunStatusPending, schema.RunStatusRunning, true},
		{schema.RunStatusPending, schema.RunStatusAborted, true},
		{schema.RunStatusPending, schema.RunStatusWaiting, false},
		{schema.RunStatusPending, schema.RunStatusCompleted, false},

		{schema.RunStatusRunning, schema.RunStatusWaiting, true},
		{schema.RunStatusRunning, schema.RunStatusCompleted, true},
		{schema.RunStatusRunning, schema.RunStatusFailed, true},
		{schema.RunStatusRunning, schema.RunStatusAborted, true},
		{schema.RunStatusRunning, schema.RunStatusPending, false},

		{schema.RunStatusWaiting, schema.RunStatusRunning, true},
		{schema.RunStatusWaiting, schema.RunStatusFailed, true},
		{schema.RunStatusWaiting, schema.RunStatusAborted, true},
		// A waiting run resumes before it can complete.
		{schema.RunStatusWaiting, schema.RunStatusCompleted, false},

		{schema.RunStatusCompleted, schema.RunStatusRunning, false},
		{schema.RunStatusFailed, schema.RunStatusRunning, false},
		{schema.RunStatusAborted, schema.RunStatusRunning, false},
	}

	for _, tc := range cases {
		got := validRunTransition(tc.from, tc.to)
		assert.Equal(t, tc.allowed, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestValidRunTransitions_TerminalStatusesHaveNoExits(t *testing.T) {
	for _, status := range []schema.RunStatus{
		schema.RunStatusCompleted,
		schema.RunStatusFailed,
		schema.RunStatusAborted,
	} {
		assert.True(t, status.Terminal())
		assert.Empty(t, ValidRunTransitions[status])
	}
	assert.False(t, schema.RunStatusPending.Terminal())
	assert.False(t, schema.RunStatusRunning.Terminal())
	assert.False(t, schema.RunStatusWaiting.Terminal())
}
