package runflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/randalmurphal/runflow/pkg/runflow/registry"
)

// Executor runs stored graphs and records progress in a Ledger.
// It is safe for concurrent use; each run executes on its own goroutine.
type Executor struct {
	graphs   GraphStore
	ledger   Ledger
	dispatch *Dispatcher
	cfg      execConfig

	active *registry.Registry[string, *activeRun]
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExecutor creates an executor over the given stores and functions.
// Call Close to release the worker pool.
func NewExecutor(graphs GraphStore, ledger Ledger, funcs *Functions, opts ...Option) (*Executor, error) {
	if graphs == nil || ledger == nil {
		return nil, errors.New("graph store and ledger are required")
	}
	cfg := defaultExecConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	d, err := NewDispatcher(funcs, cfg.poolSize)
	if err != nil {
		return nil, err
	}
	return &Executor{
		graphs:   graphs,
		ledger:   ledger,
		dispatch: d,
		cfg:      cfg,
		active:   registry.New[string, *activeRun](),
	}, nil
}

// Submit creates a run of graphID with a copy of initial and starts it.
// The graph must exist.
func (e *Executor) Submit(ctx context.Context, graphID string, initial State) (string, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return "", ErrExecutorClosed
	}
	if _, err := e.graphs.LookupGraph(graphID); err != nil {
		return "", err
	}
	runID, err := e.ledger.Create(graphID, initial)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	if err := e.Start(ctx, graphID, runID); err != nil {
		return runID, err
	}
	return runID, nil
}

// Start executes the run in the background and returns immediately.
// The run ignores cancellation of ctx; use Cancel to stop it. A run that
// has already settled is rejected with ErrRunSettled.
func (e *Executor) Start(ctx context.Context, graphID, runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	if e.active.Has(runID) {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	if run, err := e.ledger.Get(runID); err == nil && run.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrRunSettled, runID, run.Status)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ar := &activeRun{cancel: cancel, done: make(chan struct{})}
	e.active.Register(runID, ar)
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer close(ar.done)
		defer e.active.Delete(runID)
		defer cancel()
		e.Run(runCtx, graphID, runID)
	}()
	return nil
}

// Cancel asks a started run to stop. The run settles as cancelled at its
// next step boundary, or immediately if it is waiting on a blocking node.
// Cancel reports whether the run was active.
func (e *Executor) Cancel(runID string) bool {
	ar, ok := e.active.Get(runID)
	if !ok {
		return false
	}
	ar.cancel()
	return true
}

// Wait blocks until the started run settles or ctx is done. It returns nil
// immediately for runs that are not active.
func (e *Executor) Wait(ctx context.Context, runID string) error {
	ar, ok := e.active.Get(runID)
	if !ok {
		return nil
	}
	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the IDs of runs started and not yet settled.
func (e *Executor) Active() []string {
	return e.active.Keys()
}

// Close cancels active runs, waits for them to settle and releases the
// worker pool. Start fails after Close.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.active.Range(func(_ string, ar *activeRun) bool {
		ar.cancel()
		return true
	})
	e.wg.Wait()
	e.dispatch.Close()
	return nil
}
