package runflow

import (
	"fmt"
	"maps"
	"strings"
)

// Graph is a mutable builder for GraphSpecs.
// The first node added is the entry point. Chain AddNode, AddEdge and
// AddBranch calls, then call Build to validate and obtain the spec.
//
// Graph is NOT thread-safe during building.
//
// Example:
//
//	spec, err := runflow.NewGraph().
//	    AddNode("extract", "node_extract", nil).
//	    AddNode("score", "node_score", map[string]any{"weight": 2}).
//	    AddEdge("extract", "score").
//	    AddBranch("score", "score < 80", "extract", "").
//	    Build()
type Graph struct {
	spec  GraphSpec
	names map[string]bool
}

// NewGraph creates an empty graph builder.
func NewGraph() *Graph {
	return &Graph{
		spec:  GraphSpec{Edges: make(map[string]Edge)},
		names: make(map[string]bool),
	}
}

// AddNode appends a node that runs the function registered as fn.
// params may be nil.
//
// Panics if:
//   - name is empty or contains whitespace
//   - fn is empty
//   - name already exists in the graph
func (g *Graph) AddNode(name, fn string, params map[string]any) *Graph {
	if name == "" {
		panic("runflow: node name cannot be empty")
	}
	if strings.ContainsAny(name, " \t\n\r") {
		panic("runflow: node name cannot contain whitespace")
	}
	if fn == "" {
		panic("runflow: node function cannot be empty")
	}
	if g.names[name] {
		panic(fmt.Sprintf("runflow: duplicate node name: %s", name))
	}

	g.names[name] = true
	g.spec.Nodes = append(g.spec.Nodes, NodeSpec{Name: name, Fn: fn, Params: maps.Clone(params)})
	return g
}

// AddEdge sets an unconditional edge. An empty target ends the run.
// A later edge from the same node replaces the earlier one.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.spec.Edges[from] = To(to)
	return g
}

// AddBranch sets a conditional edge from a node. Empty targets end the run.
func (g *Graph) AddBranch(from, cond, onTrue, onFalse string) *Graph {
	g.spec.Edges[from] = Branch(cond, onTrue, onFalse)
	return g
}

// Build validates the graph and returns a copy of its spec. The builder
// may be reused afterwards.
func (g *Graph) Build() (*GraphSpec, error) {
	if err := g.spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return g.spec.Clone(), nil
}

// MustBuild is like Build but panics on an invalid graph. It is meant for
// graphs defined in code.
func (g *Graph) MustBuild() *GraphSpec {
	spec, err := g.Build()
	if err != nil {
		panic(err)
	}
	return spec
}
