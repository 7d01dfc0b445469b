/*
Package expr provides sandboxed condition evaluation for runflow edges.

# Overview

expr implements a small boolean expression language that is evaluated
against a read-only map of variables (the run state). Expressions can only
see the keys of that map: there are no function calls, no imports and no
ambient names. Expressions are parsed once into a Program and cached by the
Evaluator, so repeated evaluation of the same edge condition is cheap.

# Expression Syntax

	<expr>     := <or>
	<or>       := <and> { ('or' | '||') <and> }
	<and>      := <not> { ('and' | '&&') <not> }
	<not>      := ('not' | '!') <not> | <compare>
	<compare>  := <coalesce> [ <op> <coalesce> ]
	<op>       := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains' | 'in' | custom
	<coalesce> := <unary> { '??' <unary> }
	<unary>    := '-' <unary> | <primary>
	<primary>  := string | number | true | false | null | nil | path | '(' <expr> ')'
	<path>     := identifier { '.' identifier }

A leading "state." segment is optional: "state.score" and "score" resolve
the same key unless the map itself has a "state" key.

# Operators

	==, !=       Equality. Numbers compare numerically regardless of Go type.
	<, >, <=, >= Ordering. Both sides numeric, or both strings.
	contains     String contains substring, list contains element, map has key.
	in           Reverse of contains.
	??           Coalesce: right side when the left is missing or null.

# Errors

Evaluation never panics. Syntax errors, references to missing keys (not
guarded by ??) and ordering comparisons between incompatible types return an
*Error that matches ErrEvaluation:

	ok, err := expr.Eval("score < threshold", vars)
	if errors.Is(err, expr.ErrEvaluation) {
	    // take the false branch
	}

# Truthiness

A bare value is evaluated for truthiness:
  - nil: false
  - bool: the boolean value
  - string: false if empty
  - numbers: false if zero
  - slices and maps: false if empty
  - other types: true

# CEL

NewCEL returns an evaluator backed by github.com/google/cel-go for callers
that want the Common Expression Language. The state is bound to the single
variable "state":

	e, _ := expr.NewCEL()
	ok, err := e.Evaluate("state.score < state.threshold", vars)
*/
package expr
