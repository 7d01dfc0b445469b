package expr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/randalmurphal/runflow/pkg/runflow/registry"
)

// celCostLimit bounds the work a single CEL evaluation may perform.
const celCostLimit = 100_000

// CELEvaluator evaluates Common Expression Language conditions.
// The state is bound to the variable "state". It is safe for concurrent use.
type CELEvaluator struct {
	env      *cel.Env
	programs *registry.Registry[string, celCompiled]
}

type celCompiled struct {
	prg cel.Program
	err error
}

// NewCEL creates a CEL-backed evaluator.
func NewCEL() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("state", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}
	return &CELEvaluator{
		env:      env,
		programs: registry.New[string, celCompiled](),
	}, nil
}

// Evaluate evaluates src against vars. An empty expression evaluates to
// false; a result that is not a bool is an error.
func (e *CELEvaluator) Evaluate(src string, vars map[string]any) (bool, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return false, nil
	}
	c := e.programs.GetOrCreate(src, func() celCompiled {
		prg, err := e.compile(src)
		return celCompiled{prg: prg, err: err}
	})
	if c.err != nil {
		return false, c.err
	}

	if vars == nil {
		vars = map[string]any{}
	}
	out, _, err := c.prg.Eval(map[string]any{"state": vars})
	if err != nil {
		return false, &Error{Expr: src, Pos: -1, Err: err}
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, &Error{Expr: src, Pos: -1, Err: fmt.Errorf("result is %T, not bool", out.Value())}
	}
	return b, nil
}

func (e *CELEvaluator) compile(src string) (cel.Program, error) {
	ast, issues := e.env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, &Error{Expr: src, Pos: -1, Err: issues.Err()}
	}
	prg, err := e.env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, &Error{Expr: src, Pos: -1, Err: errors.Join(errors.New("build program"), err)}
	}
	return prg, nil
}
