package runflow_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/runflow/pkg/runflow"
)

const reviewGraphYAML = `
nodes:
  - name: extract
    fn: node_extract
  - name: check
    fn: node_check_complexity
    params:
      max_lines: 20
  - name: done
    fn: node_suggest
edges:
  extract: check
  check:
    cond: quality_score < threshold
    true: extract
    false: done
  done: null
`

func TestEdge_YAMLShapes(t *testing.T) {
	spec, err := runflow.ParseGraphYAML([]byte(reviewGraphYAML))
	require.NoError(t, err)

	assert.Equal(t, "extract", spec.Entry())
	assert.Equal(t, runflow.To("check"), spec.Edges["extract"])
	assert.Equal(t, runflow.Branch("quality_score < threshold", "extract", "done"), spec.Edges["check"])
	assert.True(t, spec.Edges["done"].IsEnd())
	assert.Equal(t, 20, spec.Nodes[1].Params["max_lines"])
	require.NoError(t, spec.Validate())
}

func TestEdge_YAMLNullBranch(t *testing.T) {
	doc := `
nodes:
  - {name: a, fn: f}
edges:
  a: {cond: "x > 1", true: a, false: null}
`
	spec, err := runflow.ParseGraphYAML([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, runflow.Branch("x > 1", "a", ""), spec.Edges["a"])
}

func TestEdge_YAMLRoundTrip(t *testing.T) {
	spec, err := runflow.ParseGraphYAML([]byte(reviewGraphYAML))
	require.NoError(t, err)

	out, err := yaml.Marshal(spec)
	require.NoError(t, err)
	again, err := runflow.ParseGraphYAML(out)
	require.NoError(t, err)
	assert.Equal(t, spec.Edges, again.Edges)
}

func TestEdge_JSONShapes(t *testing.T) {
	tests := []struct {
		name string
		json string
		want runflow.Edge
	}{
		{"null", `null`, runflow.End()},
		{"target", `"next"`, runflow.To("next")},
		{"conditional", `{"cond":"a == 1","true":"x","false":"y"}`, runflow.Branch("a == 1", "x", "y")},
		{"null branches", `{"cond":"a","true":null,"false":null}`, runflow.Branch("a", "", "")},
		{"missing cond", `{"true":"x"}`, runflow.Branch("", "x", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e runflow.Edge
			require.NoError(t, json.Unmarshal([]byte(tt.json), &e))
			assert.Equal(t, tt.want, e)

			out, err := json.Marshal(e)
			require.NoError(t, err)
			var back runflow.Edge
			require.NoError(t, json.Unmarshal(out, &back))
			assert.Equal(t, tt.want, back)
		})
	}
}

func TestEdge_JSONInvalid(t *testing.T) {
	var e runflow.Edge
	assert.Error(t, json.Unmarshal([]byte(`42`), &e))
	assert.Error(t, json.Unmarshal([]byte(`{"cond": 5}`), &e))
}

func TestEdge_JSONInGraph(t *testing.T) {
	doc := `{"nodes":[{"name":"a","fn":"f"},{"name":"b","fn":"g"}],"edges":{"a":"b","b":null}}`
	spec, err := runflow.ParseGraphJSON([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, runflow.To("b"), spec.Edges["a"])
	edge, ok := spec.Edges["b"]
	assert.True(t, ok)
	assert.True(t, edge.IsEnd())
}

func TestGraphSpec_Validate(t *testing.T) {
	valid := &runflow.GraphSpec{
		Nodes: []runflow.NodeSpec{{Name: "a", Fn: "f"}, {Name: "b", Fn: "g"}},
		Edges: map[string]runflow.Edge{"a": runflow.Branch("x", "b", "")},
	}
	require.NoError(t, valid.Validate())

	err := (&runflow.GraphSpec{}).Validate()
	assert.ErrorIs(t, err, runflow.ErrEmptyGraph)

	broken := &runflow.GraphSpec{
		Nodes: []runflow.NodeSpec{{Name: "a", Fn: "f"}, {Name: "a", Fn: "f"}, {Name: "", Fn: ""}},
		Edges: map[string]runflow.Edge{
			"a":     runflow.To("ghost"),
			"stray": runflow.End(),
		},
	}
	err = broken.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, runflow.ErrNodeNotFound)
	assert.ErrorContains(t, err, "duplicate name")
	assert.ErrorContains(t, err, "empty name")
	assert.ErrorContains(t, err, "no function")
	assert.ErrorContains(t, err, "unknown node stray")
}

func TestGraphSpec_Clone(t *testing.T) {
	spec := &runflow.GraphSpec{
		Nodes: []runflow.NodeSpec{{Name: "a", Fn: "f", Params: map[string]any{"k": []any{"v"}}}},
		Edges: map[string]runflow.Edge{"a": runflow.Branch("x", "a", "")},
	}
	c := spec.Clone()
	assert.Equal(t, spec, c)

	c.Nodes[0].Params["k"].([]any)[0] = "changed"
	c.Edges["a"].Branch.Cond = "y"
	assert.Equal(t, "v", spec.Nodes[0].Params["k"].([]any)[0])
	assert.Equal(t, "x", spec.Edges["a"].Branch.Cond)
}

func TestGraphSpec_Node(t *testing.T) {
	spec := &runflow.GraphSpec{Nodes: []runflow.NodeSpec{{Name: "a", Fn: "f"}}}

	n, ok := spec.Node("a")
	assert.True(t, ok)
	assert.Equal(t, "f", n.Fn)

	_, ok = spec.Node("b")
	assert.False(t, ok)
	assert.Equal(t, "", (&runflow.GraphSpec{}).Entry())
}

func TestLoadGraphFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "review.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(reviewGraphYAML), 0o644))
	spec, err := runflow.LoadGraphFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, spec.Nodes, 3)

	jsonPath := filepath.Join(dir, "review.json")
	data, err := json.Marshal(spec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(jsonPath, data, 0o644))
	fromJSON, err := runflow.LoadGraphFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, spec.Edges, fromJSON.Edges)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("nodes: []\n"), 0o644))
	_, err = runflow.LoadGraphFile(badPath)
	assert.ErrorIs(t, err, runflow.ErrEmptyGraph)

	_, err = runflow.LoadGraphFile(filepath.Join(dir, "graph.toml"))
	assert.Error(t, err)
}
