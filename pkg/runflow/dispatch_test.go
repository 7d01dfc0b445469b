package runflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/runflow/pkg/runflow"
)

func newDispatcher(t *testing.T, funcs *runflow.Functions) *runflow.Dispatcher {
	t.Helper()
	d, err := runflow.NewDispatcher(funcs, 2)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func TestDispatcher_Resolve(t *testing.T) {
	funcs := runflow.NewFunctions()
	funcs.Register("known", runflow.Inline(set("x", 1)))
	funcs.Register("hollow", runflow.Function{})
	d := newDispatcher(t, funcs)

	spec := &runflow.GraphSpec{Nodes: []runflow.NodeSpec{
		{Name: "ok", Fn: "known", Params: map[string]any{"k": "v"}},
		{Name: "unregistered", Fn: "unknown"},
		{Name: "nil_exec", Fn: "hollow"},
	}}

	fn, params, ok := d.Resolve(spec, "ok")
	require.True(t, ok)
	assert.Equal(t, runflow.ModeInline, fn.Mode)
	assert.Equal(t, map[string]any{"k": "v"}, params)

	params["k"] = "changed"
	assert.Equal(t, "v", spec.Nodes[0].Params["k"], "resolved params are a copy")

	_, _, ok = d.Resolve(spec, "unregistered")
	assert.False(t, ok)
	_, _, ok = d.Resolve(spec, "nil_exec")
	assert.False(t, ok)
	_, _, ok = d.Resolve(spec, "absent")
	assert.False(t, ok)
}

func TestDispatcher_InvokeModes(t *testing.T) {
	d := newDispatcher(t, nil)
	ctx := runflow.NewContext(context.Background())

	for _, fn := range []runflow.Function{runflow.Inline(set("x", 1)), runflow.Blocking(set("x", 1))} {
		t.Run(fn.Mode.String(), func(t *testing.T) {
			out, err := d.Invoke(ctx, fn, runflow.State{}, map[string]any{})
			require.NoError(t, err)
			assert.Equal(t, runflow.State{"x": 1}, out)
		})
	}
}

func TestDispatcher_InvokeErrors(t *testing.T) {
	d := newDispatcher(t, nil)
	ctx := runflow.NewContext(context.Background())

	_, err := d.Invoke(ctx, runflow.Blocking(failing("nope")), runflow.State{}, nil)
	assert.EqualError(t, err, "nope")

	for _, fn := range []runflow.Function{runflow.Inline(panicking("bad")), runflow.Blocking(panicking("bad"))} {
		out, err := d.Invoke(ctx, fn, runflow.State{}, nil)
		assert.Nil(t, out)
		var panicErr *runflow.PanicError
		require.True(t, errors.As(err, &panicErr), "mode %s", fn.Mode)
		assert.Equal(t, "bad", panicErr.Value)
		assert.NotEmpty(t, panicErr.Stack)
	}
}

func TestDispatcher_BlockingHonoursCancellation(t *testing.T) {
	d := newDispatcher(t, nil)
	parent, cancel := context.WithCancel(context.Background())
	ctx := runflow.NewContext(parent)

	release := make(chan struct{})
	defer close(release)
	slow := runflow.Blocking(func(_ runflow.Context, _ runflow.State, _ map[string]any) (runflow.State, error) {
		<-release
		return nil, nil
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := d.Invoke(ctx, slow, runflow.State{}, nil)

	var cancelErr *runflow.CancellationError
	require.True(t, errors.As(err, &cancelErr))
	assert.True(t, cancelErr.WasExecuting)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatcher_BlockingUsesPool(t *testing.T) {
	d := newDispatcher(t, nil)
	ctx := runflow.NewContext(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	fn := runflow.Blocking(func(_ runflow.Context, _ runflow.State, _ map[string]any) (runflow.State, error) {
		close(entered)
		<-release
		return nil, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.Invoke(ctx, fn, runflow.State{}, nil)
	}()

	<-entered
	assert.Equal(t, 1, d.Running())
	close(release)
	<-done
}

func TestDispatcher_CancelWhileWaitingForWorker(t *testing.T) {
	d, err := runflow.NewDispatcher(nil, 1)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	entered := make(chan struct{})
	release := make(chan struct{})
	hold := runflow.Blocking(func(_ runflow.Context, _ runflow.State, _ map[string]any) (runflow.State, error) {
		close(entered)
		<-release
		return nil, nil
	})
	held := make(chan error, 1)
	go func() {
		_, err := d.Invoke(runflow.NewContext(context.Background()), hold, runflow.State{}, nil)
		held <- err
	}()
	<-entered

	parent, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err = d.Invoke(runflow.NewContext(parent), runflow.Blocking(set("x", 1)), runflow.State{}, nil)

	var cancelErr *runflow.CancellationError
	require.True(t, errors.As(err, &cancelErr), "got %v", err)
	assert.False(t, cancelErr.WasExecuting, "the node never reached a worker")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	require.NoError(t, <-held)

	// Once the worker is free, queued work goes through.
	out, err := d.Invoke(runflow.NewContext(context.Background()), runflow.Blocking(set("x", 1)), runflow.State{}, nil)
	require.NoError(t, err)
	assert.Equal(t, runflow.State{"x": 1}, out)
}

func TestFunctions(t *testing.T) {
	funcs := runflow.NewFunctions()
	funcs.Register("b", runflow.Inline(set("x", 1)))
	require.NoError(t, funcs.Add("a", runflow.Blocking(set("x", 1))))
	assert.Error(t, funcs.Add("a", runflow.Inline(set("x", 2))))

	fn, ok := funcs.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, runflow.ModeBlocking, fn.Mode)
	assert.Equal(t, []string{"a", "b"}, funcs.Names())

	_, ok = funcs.Lookup("c")
	assert.False(t, ok)
}

func TestNewContext(t *testing.T) {
	ctx := runflow.NewContext(context.Background(),
		runflow.WithContextRunID("run-1"),
		runflow.WithContextGraphID("graph-1"),
		runflow.WithContextLogger(nil),
	)
	assert.Equal(t, "run-1", ctx.RunID())
	assert.Equal(t, "graph-1", ctx.GraphID())
	assert.Equal(t, "", ctx.NodeID())
	assert.NotNil(t, ctx.Logger())

	assert.NotEmpty(t, runflow.NewContext(context.Background()).RunID())
}

func TestErrors(t *testing.T) {
	nodeErr := &runflow.NodeError{NodeID: "a", Op: "lookup", Err: runflow.ErrNodeResolution}
	assert.Equal(t, "node a: lookup: no function found for node", nodeErr.Error())
	assert.ErrorIs(t, nodeErr, runflow.ErrNodeResolution)

	ceil := &runflow.StepCeilingError{Max: 3, PendingNode: "b"}
	assert.ErrorIs(t, ceil, runflow.ErrStepCeiling)
	assert.Equal(t, "step ceiling (3) reached before node b", ceil.Error())

	cancelled := &runflow.CancellationError{NodeID: "c", Cause: context.DeadlineExceeded}
	assert.ErrorIs(t, cancelled, context.DeadlineExceeded)
	assert.Contains(t, cancelled.Error(), "cancelled before node c")

	assert.Equal(t, "node d panicked: x", (&runflow.PanicError{NodeID: "d", Value: "x"}).Error())
}
