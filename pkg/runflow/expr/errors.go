package expr

import (
	"errors"
	"fmt"
)

// ErrEvaluation is matched by every error returned from evaluation.
var ErrEvaluation = errors.New("expression evaluation failed")

// errMissingKey marks a reference to a key that is not in the variables.
// The coalesce operator recovers from it.
var errMissingKey = errors.New("missing key")

// Error describes why an expression could not be evaluated.
type Error struct {
	// Expr is the source expression.
	Expr string
	// Pos is the byte offset of the failure, or -1 if unknown.
	Pos int
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("expr %q at %d: %v", e.Expr, e.Pos, e.Err)
	}
	return fmt.Sprintf("expr %q: %v", e.Expr, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrEvaluation for every expression error.
func (e *Error) Is(target error) bool {
	return target == ErrEvaluation
}

func wrapError(src string, pos int, err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return &Error{Expr: src, Pos: pos, Err: err}
}
