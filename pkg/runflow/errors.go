package runflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph lookup and validation.
var (
	// ErrGraphNotFound indicates no graph is stored under the requested ID.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrEmptyGraph indicates a graph with no nodes.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrNodeNotFound indicates an edge references a node the graph does not declare.
	ErrNodeNotFound = errors.New("node not found")
)

// Sentinel errors for execution.
var (
	// ErrNodeResolution indicates a node is missing from the graph or its
	// function is not registered.
	ErrNodeResolution = errors.New("no function found for node")

	// ErrStepCeiling indicates the run stopped at the step ceiling with a
	// node still pending.
	ErrStepCeiling = errors.New("step ceiling reached")

	// ErrRunNotFound indicates no run is recorded under the requested ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunActive indicates the run is already executing.
	ErrRunActive = errors.New("run already active")

	// ErrRunSettled indicates the run has already reached a terminal status
	// and cannot be executed again.
	ErrRunSettled = errors.New("run already settled")

	// ErrExecutorClosed indicates the executor no longer accepts runs.
	ErrExecutorClosed = errors.New("executor closed")
)

// NodeError wraps an error with node context.
type NodeError struct {
	// NodeID is the name of the node that failed.
	NodeID string
	// Op is the operation that failed ("lookup", "execute").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by a node function.
type PanicError struct {
	// NodeID is the name of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError records where a run was cancelled.
type CancellationError struct {
	// NodeID is the node that was about to run or was running.
	NodeID string
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
	// WasExecuting is true if the node had already been invoked.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// StepCeilingError reports the node that was still pending when the step
// ceiling stopped a run.
type StepCeilingError struct {
	// Max is the configured step ceiling.
	Max int
	// PendingNode is the node that would have run next.
	PendingNode string
}

// Error implements the error interface.
func (e *StepCeilingError) Error() string {
	return fmt.Sprintf("step ceiling (%d) reached before node %s", e.Max, e.PendingNode)
}

// Unwrap returns ErrStepCeiling for errors.Is support.
func (e *StepCeilingError) Unwrap() error {
	return ErrStepCeiling
}
