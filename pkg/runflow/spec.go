package runflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// NodeSpec declares one node of a graph: its unique name, the registered
// function it runs, and the parameters passed to that function.
type NodeSpec struct {
	Name   string         `json:"name" yaml:"name"`
	Fn     string         `json:"fn" yaml:"fn"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Conditional is a two-way branch. An empty Cond always takes True.
// An empty True or False target ends the run on that branch.
type Conditional struct {
	Cond  string
	True  string
	False string
}

// Edge describes where a run goes after a node completes.
// The zero Edge is terminal.
type Edge struct {
	// Target is the next node for an unconditional edge.
	Target string
	// Branch is set for conditional edges; Target is ignored when it is.
	Branch *Conditional
}

// End returns a terminal edge.
func End() Edge { return Edge{} }

// To returns an unconditional edge to target.
func To(target string) Edge { return Edge{Target: target} }

// Branch returns a conditional edge.
func Branch(cond, onTrue, onFalse string) Edge {
	return Edge{Branch: &Conditional{Cond: cond, True: onTrue, False: onFalse}}
}

// IsEnd reports whether the edge terminates the run unconditionally.
func (e Edge) IsEnd() bool {
	return e.Branch == nil && e.Target == ""
}

// targets returns every non-empty node name the edge can lead to.
func (e Edge) targets() []string {
	if e.Branch == nil {
		if e.Target == "" {
			return nil
		}
		return []string{e.Target}
	}
	var out []string
	if e.Branch.True != "" {
		out = append(out, e.Branch.True)
	}
	if e.Branch.False != "" {
		out = append(out, e.Branch.False)
	}
	return out
}

// conditionalWire is the object form of a conditional edge. Null targets
// decode to nil pointers.
type conditionalWire struct {
	Cond  string  `json:"cond,omitempty" yaml:"cond,omitempty"`
	True  *string `json:"true" yaml:"true"`
	False *string `json:"false" yaml:"false"`
}

func (w conditionalWire) edge() Edge {
	c := &Conditional{Cond: w.Cond}
	if w.True != nil {
		c.True = *w.True
	}
	if w.False != nil {
		c.False = *w.False
	}
	return Edge{Branch: c}
}

func (e Edge) wire() any {
	if e.Branch == nil {
		if e.Target == "" {
			return nil
		}
		return e.Target
	}
	w := conditionalWire{Cond: e.Branch.Cond}
	if e.Branch.True != "" {
		t := e.Branch.True
		w.True = &t
	}
	if e.Branch.False != "" {
		f := e.Branch.False
		w.False = &f
	}
	return w
}

// MarshalJSON encodes the edge as null, a node name, or
// {"cond": ..., "true": ..., "false": ...}.
func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.wire())
}

// UnmarshalJSON accepts null, a node name, or a conditional object.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*e = End()
	case string:
		*e = To(v)
	case map[string]any:
		var w conditionalWire
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("decode conditional edge: %w", err)
		}
		*e = w.edge()
	default:
		return fmt.Errorf("edge must be null, a node name, or an object, got %T", raw)
	}
	return nil
}

// MarshalYAML encodes the edge in the same shapes as MarshalJSON.
func (e Edge) MarshalYAML() (any, error) {
	return e.wire(), nil
}

// UnmarshalYAML accepts a node name or a conditional mapping. A null
// scalar leaves the edge terminal.
func (e *Edge) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.ShortTag() == "!!null" {
			*e = End()
			return nil
		}
		var target string
		if err := value.Decode(&target); err != nil {
			return err
		}
		*e = To(target)
	case yaml.MappingNode:
		var w conditionalWire
		if err := value.Decode(&w); err != nil {
			return fmt.Errorf("decode conditional edge: %w", err)
		}
		*e = w.edge()
	default:
		return fmt.Errorf("line %d: edge must be null, a node name, or a mapping", value.Line)
	}
	return nil
}

// GraphSpec is a stored workflow definition. The first node is the entry
// point. Edges are keyed by source node name; a node without an edge ends
// the run.
type GraphSpec struct {
	Nodes []NodeSpec      `json:"nodes" yaml:"nodes"`
	Edges map[string]Edge `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Entry returns the name of the first node, or "" for an empty graph.
func (g *GraphSpec) Entry() string {
	if len(g.Nodes) == 0 {
		return ""
	}
	return g.Nodes[0].Name
}

// Node returns the node named name. The first match wins.
func (g *GraphSpec) Node(name string) (NodeSpec, bool) {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// Clone returns a deep copy of the spec.
func (g *GraphSpec) Clone() *GraphSpec {
	if g == nil {
		return nil
	}
	c := &GraphSpec{Nodes: make([]NodeSpec, len(g.Nodes))}
	for i, n := range g.Nodes {
		c.Nodes[i] = NodeSpec{Name: n.Name, Fn: n.Fn}
		if n.Params != nil {
			c.Nodes[i].Params = map[string]any(State(n.Params).Clone())
		}
	}
	if g.Edges != nil {
		c.Edges = make(map[string]Edge, len(g.Edges))
		for k, e := range g.Edges {
			if e.Branch != nil {
				b := *e.Branch
				e.Branch = &b
			}
			c.Edges[k] = e
		}
	}
	return c
}

// Validate reports structural problems: no nodes, empty or duplicate node
// names, nodes without a function, and edges that mention unknown nodes.
// Stores accept invalid specs; the executor fails such runs when it reaches
// the broken part.
func (g *GraphSpec) Validate() error {
	var errs []error
	if len(g.Nodes) == 0 {
		errs = append(errs, ErrEmptyGraph)
	}

	names := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		switch {
		case n.Name == "":
			errs = append(errs, fmt.Errorf("node %d: empty name", i))
		case names[n.Name]:
			errs = append(errs, fmt.Errorf("node %s: duplicate name", n.Name))
		}
		names[n.Name] = true
		if n.Fn == "" {
			errs = append(errs, fmt.Errorf("node %s: no function", n.Name))
		}
	}

	for from, e := range g.Edges {
		if !names[from] {
			errs = append(errs, fmt.Errorf("edge from unknown node %s", from))
		}
		for _, to := range e.targets() {
			if !names[to] {
				errs = append(errs, fmt.Errorf("edge %s -> %s: %w", from, to, ErrNodeNotFound))
			}
		}
	}
	return errors.Join(errs...)
}
