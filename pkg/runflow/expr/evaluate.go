package expr

import (
	"strings"

	"github.com/randalmurphal/runflow/pkg/runflow/registry"
)

// BinaryOp is a function that compares two values and returns a boolean result.
type BinaryOp func(left, right any) bool

// Program is a parsed expression ready for repeated evaluation.
// Programs are immutable and safe for concurrent use.
type Program struct {
	src  string
	root node
}

// Compile parses an expression using the built-in operators only.
func Compile(src string) (*Program, error) {
	return compile(src, nil)
}

func compile(src string, customOps map[string]BinaryOp) (*Program, error) {
	root, err := parse(src, customOps)
	if err != nil {
		return nil, wrapError(src, -1, err)
	}
	return &Program{src: src, root: root}, nil
}

// String returns the source expression.
func (p *Program) String() string {
	return p.src
}

// Eval evaluates the program against vars and reports the truthiness of
// the result.
func (p *Program) Eval(vars map[string]any) (bool, error) {
	v, err := p.root.eval(vars)
	if err != nil {
		return false, wrapError(p.src, -1, err)
	}
	return IsTruthy(v), nil
}

// Evaluator evaluates boolean expressions with optional custom operators.
// Parsed programs are cached by source text. An Evaluator is safe for
// concurrent use.
type Evaluator struct {
	customOps map[string]BinaryOp
	programs  *registry.Registry[string, compiled]
}

type compiled struct {
	prog *Program
	err  error
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCustomOperator registers a custom binary operator.
// The operator name should not conflict with built-in operators or with
// state keys used in expressions.
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(e *Evaluator) {
		if e.customOps == nil {
			e.customOps = make(map[string]BinaryOp)
		}
		e.customOps[name] = fn
	}
}

// New creates a new Evaluator with the given options.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		programs: registry.New[string, compiled](),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate evaluates a boolean expression against the provided variables.
// An empty expression evaluates to false.
func (e *Evaluator) Evaluate(src string, vars map[string]any) (bool, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return false, nil
	}
	c := e.programs.GetOrCreate(src, func() compiled {
		prog, err := compile(src, e.customOps)
		return compiled{prog: prog, err: err}
	})
	if c.err != nil {
		return false, c.err
	}
	return c.prog.Eval(vars)
}

// Cached returns the number of distinct expressions parsed so far.
func (e *Evaluator) Cached() int {
	return e.programs.Len()
}

var defaultEvaluator = New()

// Eval is a convenience function that evaluates an expression using
// a shared evaluator with no custom operators.
func Eval(src string, vars map[string]any) (bool, error) {
	return defaultEvaluator.Evaluate(src, vars)
}
