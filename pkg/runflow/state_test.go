package runflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/runflow/pkg/runflow"
)

func TestState_Clone(t *testing.T) {
	s := runflow.State{
		"n":      1,
		"list":   []any{"a", map[string]any{"deep": true}},
		"nested": map[string]any{"k": "v"},
	}
	c := s.Clone()
	assert.Equal(t, s, c)

	c["n"] = 2
	c["list"].([]any)[1].(map[string]any)["deep"] = false
	c["nested"].(map[string]any)["k"] = "changed"

	assert.Equal(t, 1, s["n"])
	assert.Equal(t, true, s["list"].([]any)[1].(map[string]any)["deep"])
	assert.Equal(t, "v", s["nested"].(map[string]any)["k"])
}

func TestState_CloneNil(t *testing.T) {
	var s runflow.State
	c := s.Clone()
	assert.NotNil(t, c)
	assert.Empty(t, c)
}

func TestState_MergeIsShallow(t *testing.T) {
	s := runflow.State{
		"keep":   "yes",
		"nested": map[string]any{"a": 1, "b": 2},
	}
	s.Merge(runflow.State{
		"nested": map[string]any{"a": 10},
		"new":    true,
	})

	assert.Equal(t, "yes", s["keep"])
	assert.Equal(t, true, s["new"])
	assert.Equal(t, map[string]any{"a": 10}, s["nested"], "nested maps are replaced, not merged")
}

func TestStatus_Terminal(t *testing.T) {
	tests := map[runflow.Status]bool{
		runflow.StatusPending:   false,
		runflow.StatusRunning:   false,
		runflow.StatusFailed:    true,
		runflow.StatusFinished:  true,
		runflow.StatusTruncated: true,
		runflow.StatusCancelled: true,
	}
	for status, want := range tests {
		assert.Equal(t, want, status.Terminal(), string(status))
	}
}

func TestRunUpdate_Apply(t *testing.T) {
	r := &runflow.Run{Status: runflow.StatusPending, CurrentNode: "a", Steps: 1}
	state := runflow.State{"x": 1}

	node := "b"
	runflow.RunUpdate{CurrentNode: &node, CurrentState: state}.Apply(r)
	state["x"] = 2

	assert.Equal(t, "b", r.CurrentNode)
	assert.Equal(t, runflow.StatusPending, r.Status)
	assert.Equal(t, 1, r.Steps)
	assert.Equal(t, 1, r.CurrentState["x"], "applied state is a copy")

	runflow.Fail("boom").Apply(r)
	assert.Equal(t, runflow.StatusFailed, r.Status)
	assert.Equal(t, "boom", r.Error)
}

func TestRun_Clone(t *testing.T) {
	r := &runflow.Run{
		ID:           "r",
		CurrentState: runflow.State{"a": "1"},
		Logs:         []runflow.LogEntry{{Node: "n", StateSnapshot: runflow.State{"a": "0"}}},
	}
	c := r.Clone()
	c.CurrentState["a"] = "x"
	c.Logs[0].StateSnapshot["a"] = "x"
	c.Logs[0].Message = "x"

	assert.Equal(t, "1", r.CurrentState["a"])
	assert.Equal(t, "0", r.Logs[0].StateSnapshot["a"])
	assert.Equal(t, "", r.Logs[0].Message)
	assert.Nil(t, (*runflow.Run)(nil).Clone())
}
