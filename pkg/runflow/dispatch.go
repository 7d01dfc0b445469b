package runflow

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Dispatcher resolves node names to functions and invokes them according to
// their ExecMode. Blocking functions run on a bounded worker pool shared by
// every run of the executor.
type Dispatcher struct {
	funcs *Functions
	pool  *ants.Pool
}

// Backoff bounds while waiting for a free pool worker.
const (
	submitBackoff    = time.Millisecond
	maxSubmitBackoff = 50 * time.Millisecond
)

// NewDispatcher creates a dispatcher whose pool runs at most poolSize
// blocking functions at once. Submissions beyond that wait for a free
// worker, giving up if the run is cancelled first.
func NewDispatcher(funcs *Functions, poolSize int) (*Dispatcher, error) {
	if funcs == nil {
		funcs = NewFunctions()
	}
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Dispatcher{funcs: funcs, pool: pool}, nil
}

// Resolve finds the node named name in spec and the function it references.
// The returned params are the node's declared params, never nil. ok is false
// if the node is absent or its function is not registered.
func (d *Dispatcher) Resolve(spec *GraphSpec, name string) (fn Function, params map[string]any, ok bool) {
	node, found := spec.Node(name)
	if !found {
		return Function{}, nil, false
	}
	fn, found = d.funcs.Lookup(node.Fn)
	if !found || fn.Exec == nil {
		return Function{}, nil, false
	}
	params = map[string]any(State(node.Params).Clone())
	return fn, params, true
}

// Invoke runs fn. Inline functions run on the calling goroutine; blocking
// functions are handed to the pool and awaited until they return or ctx is
// done. A cancelled wait returns a *CancellationError and abandons the
// pooled call, which keeps running until fn observes ctx. Cancellation while
// waiting for a free worker returns a *CancellationError with WasExecuting
// unset.
//
// Panics on either path are returned as *PanicError.
func (d *Dispatcher) Invoke(ctx Context, fn Function, state State, params map[string]any) (State, error) {
	if fn.Mode != ModeBlocking {
		return call(ctx, fn.Exec, state, params)
	}

	type result struct {
		state State
		err   error
	}
	done := make(chan result, 1)
	err := d.submit(ctx, func() {
		s, err := call(ctx, fn.Exec, state, params)
		done <- result{state: s, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-done:
		return r.state, r.err
	case <-ctx.Done():
		return nil, &CancellationError{NodeID: ctx.NodeID(), Cause: ctx.Err(), WasExecuting: true}
	}
}

// submit hands task to the pool. While every worker is busy it retries
// with capped exponential backoff until a worker frees up or ctx is done.
func (d *Dispatcher) submit(ctx Context, task func()) error {
	wait := submitBackoff
	for {
		err := d.pool.Submit(task)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ants.ErrPoolOverload) {
			return &NodeError{NodeID: ctx.NodeID(), Op: "submit", Err: err}
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return &CancellationError{NodeID: ctx.NodeID(), Cause: ctx.Err()}
		case <-t.C:
		}
		wait = min(wait*2, maxSubmitBackoff)
	}
}

// Running returns the number of pool workers currently busy.
func (d *Dispatcher) Running() int {
	return d.pool.Running()
}

// Close releases the worker pool. Invoke must not be called afterwards.
func (d *Dispatcher) Close() {
	d.pool.Release()
}

func call(ctx Context, fn NodeFunc, state State, params map[string]any) (result State, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{
				NodeID: ctx.NodeID(),
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()
	return fn(ctx, state, params)
}
