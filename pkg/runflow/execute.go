package runflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/runflow/pkg/runflow/expr"
	"github.com/randalmurphal/runflow/pkg/runflow/observability"
)

// outcome summarises a settled run for logging and metrics.
type outcome struct {
	status   Status
	steps    int
	lastNode string
	err      error
	// skipped is set when the run was already terminal.
	skipped bool
}

// Run executes the run synchronously. It never returns an error: every
// outcome, including an unknown graph, is recorded in the ledger.
//
// Execution flow:
//  1. Look up the graph and start at its first node
//  2. Check for cancellation
//  3. Resolve and execute the current node, merging its result into state
//  4. Pick the next node from the node's edge
//  5. Repeat until a node has no successor or the step ceiling is reached
//
// A run stopped by the step ceiling is finished (or truncated, see
// WithTruncatedStatus) with the pending node noted in Run.Error.
//
// A run that has already settled is left untouched.
func (e *Executor) Run(ctx context.Context, graphID, runID string) {
	start := time.Now()
	observability.LogRunStart(e.cfg.logger, runID, graphID)

	runCtx, runSpan := e.cfg.spans.StartRunSpan(ctx, graphID, runID)
	res := e.execute(runCtx, graphID, runID)
	e.cfg.spans.EndSpanWithError(runSpan, res.err)
	if res.skipped {
		e.cfg.logger.Warn("run not executed", "run_id", runID, "error", res.err)
		return
	}

	duration := time.Since(start)
	durationMs := float64(duration.Milliseconds())
	e.cfg.metrics.RecordRun(ctx, string(res.status), res.steps, duration)

	switch res.status {
	case StatusFailed, StatusCancelled:
		observability.LogRunError(e.cfg.logger, runID, string(res.status), res.err, durationMs, res.lastNode)
	default:
		observability.LogRunComplete(e.cfg.logger, runID, string(res.status), durationMs, res.steps)
	}
}

func (e *Executor) execute(ctx context.Context, graphID, runID string) outcome {
	run, err := e.ledger.Get(runID)
	if err != nil {
		observability.LogLedgerError(e.cfg.logger, runID, "get", err)
		return outcome{status: StatusFailed, err: err}
	}
	if run.Status.Terminal() {
		return outcome{status: run.Status, skipped: true, err: fmt.Errorf("%w: %s is %s", ErrRunSettled, runID, run.Status)}
	}

	spec, err := e.graphs.LookupGraph(graphID)
	if err != nil {
		e.settle(runID, Fail(err.Error()))
		return outcome{status: StatusFailed, err: err}
	}
	if len(spec.Nodes) == 0 {
		e.settle(runID, Fail(ErrEmptyGraph.Error()))
		return outcome{status: StatusFailed, err: ErrEmptyGraph}
	}

	state := run.CurrentState.Clone()
	e.update(runID, SetStatus(StatusRunning))

	base := &executionContext{logger: e.cfg.logger, runID: runID, graphID: graphID}
	current := spec.Entry()
	steps := 0

	for current != "" && steps < e.cfg.maxSteps {
		if err := ctx.Err(); err != nil {
			return e.cancelled(runID, state, steps, &CancellationError{NodeID: current, Cause: err})
		}

		steps++
		fn, params, ok := e.dispatch.Resolve(spec, current)
		node, step := current, steps
		e.update(runID, RunUpdate{CurrentNode: &node, Steps: &step})
		e.appendLog(runID, current, "starting node "+current, state)

		if !ok {
			nodeErr := &NodeError{NodeID: current, Op: "lookup", Err: ErrNodeResolution}
			observability.LogNodeError(e.cfg.logger, current, nodeErr)
			e.appendLog(runID, current, fmt.Sprintf("error: %v %s", ErrNodeResolution, current), state)
			return e.failed(runID, state, steps, current, nodeErr)
		}

		result, err := e.invokeNode(ctx, base, current, steps, fn, state, params)
		if err != nil {
			var cancelErr *CancellationError
			if errors.As(err, &cancelErr) {
				return e.cancelled(runID, state, steps, cancelErr)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return e.cancelled(runID, state, steps, &CancellationError{NodeID: current, Cause: ctxErr, WasExecuting: true})
			}
			e.appendLog(runID, current, "error: "+err.Error(), state)
			return e.failed(runID, state, steps, current, err)
		}
		if result != nil {
			state.Merge(result)
		}
		e.appendLog(runID, current, "completed node "+current, state)

		next := e.nextNode(ctx, spec, current, state)
		e.update(runID, RunUpdate{CurrentState: state})

		if next != "" {
			sleep(ctx, e.cfg.stepPause)
		}
		current = next
	}

	if current != "" {
		ceilErr := &StepCeilingError{Max: e.cfg.maxSteps, PendingNode: current}
		observability.LogStepCeiling(e.cfg.logger, runID, e.cfg.maxSteps, current)
		msg := ceilErr.Error()
		if e.cfg.truncate {
			status := StatusTruncated
			e.settle(runID, RunUpdate{Status: &status, Error: &msg, CurrentState: state})
			return outcome{status: StatusTruncated, steps: steps, lastNode: current, err: ceilErr}
		}
		e.update(runID, RunUpdate{Error: &msg})
	}

	if err := e.ledger.Finish(runID, state); err != nil {
		// The final state could not be stored; settle the run as failed
		// without it.
		observability.LogLedgerError(e.cfg.logger, runID, "finish", err)
		persistErr := fmt.Errorf("persist final state: %w", err)
		e.settle(runID, Fail(persistErr.Error()))
		return outcome{status: StatusFailed, steps: steps, lastNode: current, err: persistErr}
	}
	return outcome{status: StatusFinished, steps: steps}
}

// invokeNode runs one node with span, metrics and logging around it.
func (e *Executor) invokeNode(ctx context.Context, base *executionContext, nodeID string, step int, fn Function, state State, params map[string]any) (State, error) {
	spanCtx, span := e.cfg.spans.StartNodeSpan(ctx, nodeID, step)
	nodeCtx := base.withNode(spanCtx, nodeID, step)

	observability.LogNodeStart(nodeCtx.logger, nodeID)
	start := time.Now()

	result, err := e.dispatch.Invoke(nodeCtx, fn, state.Clone(), params)

	duration := time.Since(start)
	e.cfg.metrics.RecordNodeExecution(spanCtx, nodeID, duration, err)
	e.cfg.spans.EndSpanWithError(span, err)

	if err != nil {
		observability.LogNodeError(nodeCtx.logger, nodeID, err)
		return nil, err
	}
	observability.LogNodeComplete(nodeCtx.logger, nodeID, float64(duration.Milliseconds()))
	return result, nil
}

// nextNode resolves the edge leaving current. A condition that fails to
// evaluate takes the false branch.
func (e *Executor) nextNode(ctx context.Context, spec *GraphSpec, current string, state State) string {
	edge, ok := spec.Edges[current]
	if !ok || edge.IsEnd() {
		return ""
	}
	if edge.Branch == nil {
		return edge.Target
	}

	b := edge.Branch
	if strings.TrimSpace(b.Cond) == "" {
		return b.True
	}
	taken, err := evaluate(e.cfg.evaluator, b.Cond, state.Clone())
	if err != nil {
		observability.LogConditionError(e.cfg.logger, current, b.Cond, err)
		e.cfg.metrics.RecordConditionError(ctx, current)
		e.cfg.spans.AddSpanEvent(ctx, "condition_error",
			attribute.String("node.id", current),
			attribute.String("error", err.Error()),
		)
		return b.False
	}
	if taken {
		return b.True
	}
	return b.False
}

// evaluate runs a branch condition. A panicking evaluator is reported as
// an evaluation error so the branch falls back to false.
func evaluate(ev Evaluator, cond string, vars map[string]any) (taken bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			taken = false
			err = &expr.Error{Expr: cond, Pos: -1, Err: fmt.Errorf("evaluator panicked: %v", r)}
		}
	}()
	return ev.Evaluate(cond, vars)
}

func (e *Executor) failed(runID string, state State, steps int, node string, err error) outcome {
	u := Fail(err.Error())
	u.CurrentState = state
	e.settle(runID, u)
	return outcome{status: StatusFailed, steps: steps, lastNode: node, err: err}
}

func (e *Executor) cancelled(runID string, state State, steps int, err *CancellationError) outcome {
	e.appendLog(runID, err.NodeID, err.Error(), state)
	status := StatusCancelled
	msg := err.Error()
	e.settle(runID, RunUpdate{Status: &status, Error: &msg, CurrentState: state})
	return outcome{status: StatusCancelled, steps: steps, lastNode: err.NodeID, err: err}
}

// Ledger writes are best effort: a failing store is logged and the run
// carries on.

func (e *Executor) update(runID string, u RunUpdate) {
	if err := e.ledger.Update(runID, u); err != nil {
		observability.LogLedgerError(e.cfg.logger, runID, "update", err)
	}
}

func (e *Executor) appendLog(runID, node, msg string, snapshot State) {
	if err := e.ledger.AppendLog(runID, node, msg, snapshot); err != nil {
		observability.LogLedgerError(e.cfg.logger, runID, "append_log", err)
	}
}

// settle writes a terminal update. If the store rejects it with the state
// attached, the status and error are written again on their own so the
// run still leaves the running status.
func (e *Executor) settle(runID string, u RunUpdate) {
	err := e.ledger.Update(runID, u)
	if err == nil {
		return
	}
	observability.LogLedgerError(e.cfg.logger, runID, "settle", err)
	if u.CurrentState == nil {
		return
	}
	u.CurrentState = nil
	if u.Error != nil {
		msg := *u.Error + " (state not persisted: " + err.Error() + ")"
		u.Error = &msg
	}
	if err := e.ledger.Update(runID, u); err != nil {
		observability.LogLedgerError(e.cfg.logger, runID, "settle", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
