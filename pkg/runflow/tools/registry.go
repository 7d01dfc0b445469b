package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/runflow/pkg/runflow/registry"
)

// ErrToolNotFound is returned by Call for names that were never registered.
var ErrToolNotFound = errors.New("tool not found")

// Tool is a named helper that node functions invoke by name.
// Arguments and results are plain maps so tools can be called from
// config-driven graphs without compile-time coupling.
type Tool func(ctx context.Context, args map[string]any) (map[string]any, error)

// Registry maps tool names to implementations. It is safe for concurrent use.
type Registry struct {
	reg *registry.Registry[string, Tool]
}

// NewRegistry returns an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{reg: registry.New[string, Tool]()}
}

// Default returns a registry with the code-review tools installed.
func Default() *Registry {
	r := NewRegistry()
	RegisterCodeReview(r)
	return r
}

// Register adds or replaces the tool stored under name.
func (r *Registry) Register(name string, tool Tool) {
	r.reg.Register(name, tool)
}

// Lookup returns the tool stored under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	return r.reg.Get(name)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	return r.reg.Keys()
}

// Call invokes the named tool. A nil args map is passed as an empty map.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	tool, ok := r.reg.Get(name)
	if !ok || tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	out, err := tool(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return out, nil
}
