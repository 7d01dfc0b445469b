/*
Package runflow executes stored workflow graphs against a shared state.

# Overview

A graph is a list of named nodes and a map of edges. Each node references a
registered function; running a node merges the function's result into the
run state. Edges leave a node unconditionally, branch on a boolean
expression evaluated against the state, or end the run. Every run is
recorded in a Ledger with its status, current node, current state and an
append-only log of state snapshots.

# Basic Usage

Register node functions, store a graph, and submit a run:

	funcs := runflow.NewFunctions()
	funcs.Register("count", runflow.Inline(func(ctx runflow.Context, s runflow.State, _ map[string]any) (runflow.State, error) {
	    n, _ := s["n"].(int)
	    return runflow.State{"n": n + 1}, nil
	}))

	st := store.NewMemoryStore()
	graphID, _ := st.SaveGraph(&runflow.GraphSpec{
	    Nodes: []runflow.NodeSpec{{Name: "loop", Fn: "count"}},
	    Edges: map[string]runflow.Edge{
	        "loop": runflow.Branch("n < 3", "loop", ""),
	    },
	})

	exec, err := runflow.NewExecutor(st, st, funcs)
	if err != nil {
	    log.Fatal(err)
	}
	defer exec.Close()

	runID, err := exec.Submit(ctx, graphID, runflow.State{"n": 0})
	_ = exec.Wait(ctx, runID)
	run, _ := st.Get(runID) // run.Status == runflow.StatusFinished

# Graph Files

Graphs load from YAML or JSON. An edge is a node name, null, or a
conditional object; a null branch ends the run:

	nodes:
	  - name: review
	    fn: review_code
	    params: {strict: true}
	  - name: publish
	    fn: publish
	edges:
	  review:
	    cond: approved
	    true: publish
	    false: review
	  publish: null

# Conditions

Conditions use the restricted grammar of package expr by default, or CEL
when configured with WithEvaluator(expr.NewCEL()). A condition that cannot
be evaluated (syntax error, missing key) takes the false branch and is
logged at warn level. An empty condition always takes the true branch.

# Execution Modes

Inline functions run on the run goroutine. Functions registered with
Blocking run on a bounded worker pool shared by all runs, so slow I/O or
heavy CPU work in one run does not hold up the others.

# Error Handling

Run never returns an error. Failures are recorded on the run:
  - Unknown graph or empty graph: failed, no log entries
  - Unresolvable node: failed after "starting node" and "error" entries
  - Node error or panic: failed, Run.Error holds the message
  - Cancellation: cancelled, checked between nodes and while waiting on
    blocking nodes
  - Step ceiling: finished (or truncated) with the pending node in Run.Error

# Observability

Logging goes through log/slog. OpenTelemetry metrics and spans are enabled
with WithMetrics and WithTracing and use the global providers.

# Thread Safety

An Executor may run any number of runs concurrently. Nodes within a run
execute sequentially and each receives its own copy of the state.
*/
package runflow
