// Package query provides read-only inspection of runs recorded in a ledger.
//
// Queries never modify a run. Each handler reads a fresh snapshot from the
// ledger, so a query against an executing run sees the state as of its last
// completed step.
//
// Built-in queries:
//   - status: the run status
//   - current_node: the node executed last
//   - steps: the number of node executions
//   - error: the terminal error message, if any
//   - state: the whole state, or one key when args is a string
//   - logs: the full log, or the last n entries when args is an int
//   - run: the whole run record
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/runflow/pkg/runflow"
	"github.com/randalmurphal/runflow/pkg/runflow/registry"
)

// Handler executes a query and returns a result.
// Handlers must not modify the run.
type Handler func(ctx context.Context, runID string, args any) (any, error)

// Registry manages query handlers by query name.
type Registry struct {
	handlers *registry.Registry[string, Handler]
}

// NewRegistry creates a new query registry.
func NewRegistry() *Registry {
	return &Registry{handlers: registry.New[string, Handler]()}
}

// Register adds a handler for a query name.
func (r *Registry) Register(queryName string, handler Handler) error {
	if queryName == "" {
		return errors.New("query name is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	if err := r.handlers.Add(queryName, handler); err != nil {
		return fmt.Errorf("handler for query %q already registered", queryName)
	}
	return nil
}

// MustRegister registers a handler, panicking on error.
func (r *Registry) MustRegister(queryName string, handler Handler) {
	if err := r.Register(queryName, handler); err != nil {
		panic(err)
	}
}

// Get returns the handler for a query name.
func (r *Registry) Get(queryName string) (Handler, bool) {
	return r.handlers.Get(queryName)
}

// List returns all registered query names in sorted order.
func (r *Registry) List() []string {
	return r.handlers.Keys()
}

// Unregister removes a handler for a query name.
func (r *Registry) Unregister(queryName string) {
	r.handlers.Delete(queryName)
}

// ErrQueryNotFound is returned when a query handler doesn't exist.
var ErrQueryNotFound = errors.New("query not found")

// Built-in query names.
const (
	QueryStatus      = "status"
	QueryCurrentNode = "current_node"
	QuerySteps       = "steps"
	QueryError       = "error"
	QueryState       = "state"
	QueryLogs        = "logs"
	QueryRun         = "run"
)

// Executor runs queries against runs.
type Executor struct {
	registry *Registry
}

// NewExecutor creates a query executor with the built-in queries reading
// from ledger. Further handlers may be registered on Registry().
func NewExecutor(ledger runflow.Ledger) (*Executor, error) {
	reg := NewRegistry()
	if err := RegisterBuiltins(reg, ledger); err != nil {
		return nil, err
	}
	return &Executor{registry: reg}, nil
}

// Registry returns the executor's handler registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs a query against a run.
func (e *Executor) Execute(ctx context.Context, runID, queryName string, args any) (any, error) {
	if runID == "" {
		return nil, errors.New("run ID is required")
	}
	if queryName == "" {
		return nil, errors.New("query name is required")
	}

	handler, exists := e.registry.Get(queryName)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, queryName)
	}

	return handler(ctx, runID, args)
}

// RegisterBuiltins registers the standard query handlers on reg.
func RegisterBuiltins(reg *Registry, ledger runflow.Ledger) error {
	if ledger == nil {
		return errors.New("ledger is required")
	}
	load := func(ctx context.Context, runID string) (*runflow.Run, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return ledger.Get(runID)
	}

	builtins := map[string]Handler{
		QueryStatus: func(ctx context.Context, runID string, _ any) (any, error) {
			run, err := load(ctx, runID)
			if err != nil {
				return nil, err
			}
			return run.Status, nil
		},
		QueryCurrentNode: func(ctx context.Context, runID string, _ any) (any, error) {
			run, err := load(ctx, runID)
			if err != nil {
				return nil, err
			}
			return run.CurrentNode, nil
		},
		QuerySteps: func(ctx context.Context, runID string, _ any) (any, error) {
			run, err := load(ctx, runID)
			if err != nil {
				return nil, err
			}
			return run.Steps, nil
		},
		QueryError: func(ctx context.Context, runID string, _ any) (any, error) {
			run, err := load(ctx, runID)
			if err != nil {
				return nil, err
			}
			return run.Error, nil
		},
		QueryState: func(ctx context.Context, runID string, args any) (any, error) {
			run, err := load(ctx, runID)
			if err != nil {
				return nil, err
			}
			// A string argument selects one key.
			if key, ok := args.(string); ok && key != "" {
				if val, exists := run.CurrentState[key]; exists {
					return val, nil
				}
				return nil, fmt.Errorf("state key %q not found", key)
			}
			return run.CurrentState, nil
		},
		QueryLogs: func(ctx context.Context, runID string, args any) (any, error) {
			run, err := load(ctx, runID)
			if err != nil {
				return nil, err
			}
			if n, ok := args.(int); ok && n >= 0 && n < len(run.Logs) {
				return run.Logs[len(run.Logs)-n:], nil
			}
			return run.Logs, nil
		},
		QueryRun: func(ctx context.Context, runID string, _ any) (any, error) {
			return load(ctx, runID)
		},
	}

	for name, handler := range builtins {
		if err := reg.Register(name, handler); err != nil {
			return fmt.Errorf("failed to register builtin query %q: %w", name, err)
		}
	}

	return nil
}

// Result wraps a query result with metadata.
type Result struct {
	// QueryName is the query that was executed.
	QueryName string `json:"query_name"`

	// RunID is the run that was queried.
	RunID string `json:"run_id"`

	// Value is the query result.
	Value any `json:"value"`

	// Error contains error details if the query failed.
	Error string `json:"error,omitempty"`
}

// ExecuteMultiple runs several queries against one run, in the order
// given. Failed queries are reported in their Result.
func (e *Executor) ExecuteMultiple(ctx context.Context, runID string, queries []string) []Result {
	results := make([]Result, 0, len(queries))

	for _, queryName := range queries {
		result := Result{
			QueryName: queryName,
			RunID:     runID,
		}

		value, err := e.Execute(ctx, runID, queryName, nil)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Value = value
		}

		results = append(results, result)
	}

	return results
}
