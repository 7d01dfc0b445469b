package runflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/runflow/pkg/runflow"
	"github.com/randalmurphal/runflow/pkg/runflow/store"
)

// harness bundles a memory store, a function registry and an executor.
type harness struct {
	store *store.MemoryStore
	funcs *runflow.Functions
	exec  *runflow.Executor
}

// newHarness builds an executor with no step pause. Register functions on
// h.funcs before running.
func newHarness(t *testing.T, opts ...runflow.Option) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	funcs := runflow.NewFunctions()
	opts = append([]runflow.Option{runflow.WithStepPause(0)}, opts...)
	exec, err := runflow.NewExecutor(st, st, funcs, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	return &harness{store: st, funcs: funcs, exec: exec}
}

// run saves spec, creates a run with initial state and executes it
// synchronously.
func (h *harness) run(t *testing.T, spec *runflow.GraphSpec, initial runflow.State) *runflow.Run {
	t.Helper()
	graphID, err := h.store.SaveGraph(spec)
	require.NoError(t, err)
	runID, err := h.store.Create(graphID, initial)
	require.NoError(t, err)

	h.exec.Run(context.Background(), graphID, runID)

	r, err := h.store.Get(runID)
	require.NoError(t, err)
	return r
}

// linear builds a graph a -> b -> ... over the given node names, each using
// a function of the same name.
func linear(names ...string) *runflow.GraphSpec {
	spec := &runflow.GraphSpec{Edges: map[string]runflow.Edge{}}
	for i, n := range names {
		spec.Nodes = append(spec.Nodes, runflow.NodeSpec{Name: n, Fn: n})
		if i+1 < len(names) {
			spec.Edges[n] = runflow.To(names[i+1])
		}
	}
	return spec
}

// set returns a node function that writes key=value.
func set(key string, value any) runflow.NodeFunc {
	return func(_ runflow.Context, _ runflow.State, _ map[string]any) (runflow.State, error) {
		return runflow.State{key: value}, nil
	}
}

// increment returns a node function that adds one to an int counter.
func increment(key string) runflow.NodeFunc {
	return func(_ runflow.Context, s runflow.State, _ map[string]any) (runflow.State, error) {
		n, _ := s[key].(int)
		return runflow.State{key: n + 1}, nil
	}
}

func failing(msg string) runflow.NodeFunc {
	return func(_ runflow.Context, _ runflow.State, _ map[string]any) (runflow.State, error) {
		return nil, errors.New(msg)
	}
}

func panicking(value any) runflow.NodeFunc {
	return func(_ runflow.Context, _ runflow.State, _ map[string]any) (runflow.State, error) {
		panic(value)
	}
}

func messages(r *runflow.Run) []string {
	out := make([]string, len(r.Logs))
	for i, l := range r.Logs {
		out[i] = l.Message
	}
	return out
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// records decodes the JSON log lines written so far.
func (b *syncBuffer) records() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range bytes.Split(b.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func newCapturingLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
