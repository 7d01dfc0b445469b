package runflow

import (
	"github.com/randalmurphal/runflow/pkg/runflow/registry"
)

// NodeFunc is the signature for all node functions.
//
// A node receives its own copy of the run state and the params declared on
// its NodeSpec (never nil). The returned State is shallow-merged into the
// run state; returning nil leaves it unchanged.
//
// Example:
//
//	func increment(ctx runflow.Context, s runflow.State, _ map[string]any) (runflow.State, error) {
//	    n, _ := s["count"].(int)
//	    return runflow.State{"count": n + 1}, nil
//	}
type NodeFunc func(ctx Context, state State, params map[string]any) (State, error)

// ExecMode tells the dispatcher where a node function runs.
type ExecMode int

const (
	// ModeInline runs the function on the run goroutine. Use it for
	// functions that return promptly.
	ModeInline ExecMode = iota
	// ModeBlocking runs the function on the shared worker pool. Use it for
	// functions that block on I/O or burn CPU.
	ModeBlocking
)

// String returns the mode name.
func (m ExecMode) String() string {
	switch m {
	case ModeInline:
		return "inline"
	case ModeBlocking:
		return "blocking"
	default:
		return "unknown"
	}
}

// Function is a registered node function with its execution mode.
type Function struct {
	Exec NodeFunc
	Mode ExecMode
}

// Inline wraps fn as an inline Function.
func Inline(fn NodeFunc) Function {
	return Function{Exec: fn, Mode: ModeInline}
}

// Blocking wraps fn as a Function that runs on the worker pool.
func Blocking(fn NodeFunc) Function {
	return Function{Exec: fn, Mode: ModeBlocking}
}

// Functions maps function names, as referenced by NodeSpec.Fn, to
// implementations. It is safe for concurrent use and is normally populated
// before any run starts.
type Functions struct {
	reg *registry.Registry[string, Function]
}

// NewFunctions returns an empty function registry.
func NewFunctions() *Functions {
	return &Functions{reg: registry.New[string, Function]()}
}

// Register adds or replaces the function stored under name.
func (f *Functions) Register(name string, fn Function) {
	f.reg.Register(name, fn)
}

// Add registers fn under name and fails if the name is taken.
func (f *Functions) Add(name string, fn Function) error {
	return f.reg.Add(name, fn)
}

// Lookup returns the function stored under name.
func (f *Functions) Lookup(name string) (Function, bool) {
	return f.reg.Get(name)
}

// Names returns the registered names in sorted order.
func (f *Functions) Names() []string {
	return f.reg.Keys()
}
