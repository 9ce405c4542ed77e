package concrete

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
)

type funcWorkflow struct {
	name  string
	input string
	run   func(ctx context.Context, rc *RunContext) error
}

func (w funcWorkflow) Name() string  { return w.name }
func (w funcWorkflow) Input() string { return w.input }
func (w funcWorkflow) Run(ctx context.Context, rc *RunContext) error {
	return w.run(ctx, rc)
}

func newTestRuntime(t *testing.T) (*Runtime, *eventbus.Recorder) {
	t.Helper()
	bus := eventbus.NewChannelEventBus(eventbus.WithBufferSize(16), eventbus.WithWorkerCount(1))
	t.Cleanup(func() { _ = bus.Close() })
	rec := &eventbus.Recorder{}
	_, err := bus.SubscribeAll(rec.Handle)
	require.NoError(t, err)
	rt, err := New(WithEventBus(bus))
	require.NoError(t, err)
	return rt, rec
}

func TestRuntime_Run(t *testing.T) {
	rt, rec := newTestRuntime(t)
	wf := funcWorkflow{name: "echo", input: "hi", run: func(_ context.Context, rc *RunContext) error {
		rc.SetResult("echo", rc.Input)
		rc.SetOutput(rc.Input)
		return nil
	}}

	rc, err := rt.Run(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, rc.State())
	assert.Equal(t, "hi", rc.Output())

	assert.Eventually(t, func() bool {
		return rec.Count(eventbus.EventRunStarted) == 1 && rec.Count(eventbus.EventRunSuccess) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRuntime_RunFailure(t *testing.T) {
	rt, rec := newTestRuntime(t)
	boom := errors.New("boom")
	rc, err := rt.Run(context.Background(), funcWorkflow{name: "fail", run: func(context.Context, *RunContext) error {
		return boom
	}})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateError, rc.State())
	assert.Eventually(t, func() bool { return rec.Count(eventbus.EventRunFailure) == 1 }, time.Second, 10*time.Millisecond)
}

func TestRuntime_RunNilWorkflow(t *testing.T) {
	rt, err := New(WithConfig(Config{}))
	require.NoError(t, err)
	_, err = rt.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, rt.EventBus())
}

func TestRuntime_NegativeTimeout(t *testing.T) {
	_, err := New(WithConfig(Config{RunTimeout: -time.Second}))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRuntime_RunAsync(t *testing.T) {
	rt, _ := newTestRuntime(t)
	release := make(chan struct{})
	id, err := rt.RunAsync(context.Background(), funcWorkflow{name: "slow", run: func(ctx context.Context, rc *RunContext) error {
		<-release
		rc.SetResult("done", true)
		return nil
	}})
	require.NoError(t, err)

	status, err := rt.GetRunStatus(id)
	require.NoError(t, err)
	assert.False(t, status.IsComplete)
	_, err = rt.GetRunResult(id)
	assert.Error(t, err)

	close(release)
	rc, err := rt.WaitRun(context.Background(), id, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, rc.ResultOrder())
	assert.Equal(t, []string{id}, rt.RunIDs())
	assert.Equal(t, 1, rt.CleanupCompletedRuns(-time.Second))
	assert.Empty(t, rt.ListRuns())
}

func TestRuntime_CancelRun(t *testing.T) {
	rt, _ := newTestRuntime(t)
	id, err := rt.RunAsync(context.Background(), funcWorkflow{name: "blocked", run: func(ctx context.Context, _ *RunContext) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	require.NoError(t, err)

	ok, err := rt.CancelRun(id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = rt.WaitRun(context.Background(), id, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrCancelled)

	_, err = rt.GetRunStatus("missing")
	assert.ErrorIs(t, err, ErrValidation)
}
