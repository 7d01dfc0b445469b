package runflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/runflow/pkg/runflow/observability"
)

// Context provides execution context to nodes.
// It extends context.Context with run metadata and a logger.
//
// Context is immutable after creation. The executor derives a new Context
// for every node visit with NodeID and Step set.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run and node context.
	// Never returns nil.
	Logger() *slog.Logger

	// RunID returns the ledger ID of the run.
	RunID() string

	// GraphID returns the ID of the graph being executed.
	GraphID() string

	// NodeID returns the node being executed.
	// Empty string outside a node.
	NodeID() string

	// Step returns the 1-based visit number of the current node within the run.
	Step() int
}

type executionContext struct {
	context.Context

	logger  *slog.Logger
	runID   string
	graphID string
	nodeID  string
	step    int
}

func (c *executionContext) Logger() *slog.Logger { return c.logger }
func (c *executionContext) RunID() string        { return c.runID }
func (c *executionContext) GraphID() string      { return c.graphID }
func (c *executionContext) NodeID() string       { return c.nodeID }
func (c *executionContext) Step() int            { return c.step }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithContextLogger sets the logger for the context.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a random ID is generated.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// WithContextGraphID sets the graph identifier for the context.
func WithContextGraphID(id string) ContextOption {
	return func(c *executionContext) {
		c.graphID = id
	}
}

// NewContext creates a node Context from a standard context. It is mainly
// useful for calling node functions directly in tests.
//
// Example:
//
//	ctx := runflow.NewContext(context.Background(),
//	    runflow.WithContextLogger(myLogger),
//	    runflow.WithContextRunID("run-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// withNode returns a copy of c scoped to one node visit.
func (c *executionContext) withNode(ctx context.Context, nodeID string, step int) *executionContext {
	return &executionContext{
		Context: ctx,
		logger:  observability.EnrichLogger(c.logger, c.runID, c.graphID, nodeID, step),
		runID:   c.runID,
		graphID: c.graphID,
		nodeID:  nodeID,
		step:    step,
	}
}
