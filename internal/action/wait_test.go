package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendlabs/wend/internal/signal"
	"github.com/wendlabs/wend/pkg/schema"
)

func newWaitDispatcher(clock clockwork.Clock, signals SignalReader) *Dispatcher {
	return NewDispatcher(nil, nil, nil, signals, clock, discardLogger(), Config{
		PollInterval: time.Second,
	})
}

type waitResult struct {
	out *Outcome
	err error
}

func startWait(d *Dispatcher, ctx context.Context, a schema.Wait, in Input) <-chan waitResult {
	done := make(chan waitResult, 1)
	go func() {
		out, err := d.Execute(ctx, a, in)
		done <- waitResult{out, err}
	}()
	return done
}

func awaitResult(t *testing.T, done <-chan waitResult) waitResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not finish")
		return waitResult{}
	}
}

// --- Tests ---

func TestWait_ZeroDuration(t *testing.T) {
	d := newWaitDispatcher(clockwork.NewFakeClock(), nil)

	out, err := d.Execute(context.Background(), schema.Wait{}, testInput(nil))
	require.NoError(t, err)
	assert.Empty(t, out.Bindings)
	assert.False(t, out.EndRun)
}

func TestWait_FixedDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := newWaitDispatcher(clock, nil)

	done := startWait(d, context.Background(), schema.Wait{Duration: 3 * time.Second}, testInput(nil))
	for range 3 {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
	}

	res := awaitResult(t, done)
	require.NoError(t, res.err)
	assert.Empty(t, res.out.Bindings)
}

func TestWait_ChunkedRemainder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := newWaitDispatcher(clock, nil)

	// 1.5s at a 1s poll interval sleeps 1s then the 500ms remainder.
	done := startWait(d, context.Background(), schema.Wait{Duration: 1500 * time.Millisecond}, testInput(nil))
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	clock.BlockUntil(1)
	clock.Advance(500 * time.Millisecond)

	res := awaitResult(t, done)
	require.NoError(t, res.err)
}

func TestWait_AbortAlreadyRaised(t *testing.T) {
	src := signal.NewFileSource(t.TempDir())
	d := newWaitDispatcher(clockwork.NewFakeClock(), src)
	in := testInput(nil)

	require.NoError(t, src.Raise(context.Background(), in.Workflow, "stop it"))

	_, err := d.Execute(context.Background(), schema.Wait{Duration: 10 * time.Second}, in)
	wendErr := requireWendError(t, err, schema.ErrCodeAborted)
	assert.Equal(t, "stop it", wendErr.Message)
	assert.Equal(t, "work", wendErr.StateID)
	assert.Contains(t, wendErr.Details, "raised_at")
}

func TestWait_AbortMidWait(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := signal.NewFileSource(t.TempDir())
	d := newWaitDispatcher(clock, src)
	in := testInput(nil)

	done := startWait(d, context.Background(), schema.Wait{Duration: 10 * time.Second}, in)
	clock.BlockUntil(1)
	require.NoError(t, src.Raise(context.Background(), in.Workflow, "pulled the plug"))
	clock.Advance(time.Second)

	res := awaitResult(t, done)
	wendErr := requireWendError(t, res.err, schema.ErrCodeAborted)
	assert.Equal(t, "pulled the plug", wendErr.Message)
}

func TestWait_ResumeAlreadySignalled(t *testing.T) {
	src := signal.NewFileSource(t.TempDir())
	d := newWaitDispatcher(clockwork.NewFakeClock(), src)
	in := testInput(nil)

	require.NoError(t, src.RaiseResume(context.Background(), in.Workflow))

	out, err := d.Execute(context.Background(), schema.Wait{UntilSignalled: true}, in)
	require.NoError(t, err)
	assert.Empty(t, out.Bindings)

	// The marker is consumed by the resume.
	resumed, err := src.ConsumeResume(context.Background(), in.Workflow)
	require.NoError(t, err)
	assert.False(t, resumed)
}

func TestWait_ResumeMidWait(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := signal.NewFileSource(t.TempDir())
	d := newWaitDispatcher(clock, src)
	in := testInput(nil)

	done := startWait(d, context.Background(), schema.Wait{UntilSignalled: true}, in)
	clock.BlockUntil(1)
	require.NoError(t, src.RaiseResume(context.Background(), in.Workflow))
	clock.Advance(time.Second)

	res := awaitResult(t, done)
	require.NoError(t, res.err)
}

func TestWait_AbortBeatsResume(t *testing.T) {
	src := signal.NewFileSource(t.TempDir())
	d := newWaitDispatcher(clockwork.NewFakeClock(), src)
	in := testInput(nil)

	require.NoError(t, src.Raise(context.Background(), in.Workflow, "abort wins"))
	require.NoError(t, src.RaiseResume(context.Background(), in.Workflow))

	_, err := d.Execute(context.Background(), schema.Wait{UntilSignalled: true}, in)
	wendErr := requireWendError(t, err, schema.ErrCodeAborted)
	assert.Equal(t, "abort wins", wendErr.Message)

	// The abort short-circuits before the resume marker is touched.
	resumed, err := src.ConsumeResume(context.Background(), in.Workflow)
	require.NoError(t, err)
	assert.True(t, resumed)
}

func TestWait_UntilSignalledNoSource(t *testing.T) {
	d := newWaitDispatcher(clockwork.NewFakeClock(), nil)

	_, err := d.Execute(context.Background(), schema.Wait{UntilSignalled: true}, testInput(nil))
	wendErr := requireWendError(t, err, schema.ErrCodeExecution)
	assert.Contains(t, wendErr.Message, "signal source")
}

func TestWait_ContextCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := newWaitDispatcher(clock, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := startWait(d, ctx, schema.Wait{Duration: 10 * time.Second}, testInput(nil))
	clock.BlockUntil(1)
	cancel()

	res := awaitResult(t, done)
	wendErr := requireWendError(t, res.err, schema.ErrCodeExecution)
	assert.Equal(t, "run cancelled", wendErr.Message)
	assert.True(t, errors.Is(res.err, context.Canceled))
}
