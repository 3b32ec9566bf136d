package binder

import (
	"errors"
	"fmt"

	"github.com/roach88/linkgraph/internal/expr"
)

var (
	// ErrNotSupported is returned for calls and expression shapes the
	// binder does not translate.
	ErrNotSupported = errors.New("not supported")

	// ErrUnresolvableMember is returned when a member chain does not name
	// a field of the model type in scope.
	ErrUnresolvableMember = errors.New("unresolvable member")

	// ErrTypeMismatch is returned when a literal cannot be converted to
	// the type of the field it is compared with.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidTraversal is returned for malformed traversal chains.
	ErrInvalidTraversal = errors.New("invalid traversal")
)

// Error is a binding failure. Binding failures are final: the same
// expression will fail again.
type Error struct {
	Op   string
	Expr string
	Err  error
}

func (e *Error) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("bind %s: %v (in %s)", e.Op, e.Err, e.Expr)
	}
	return fmt.Sprintf("bind %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func bindErr(op string, e expr.Expr, sentinel error, format string, args ...any) error {
	err := sentinel
	if format != "" {
		err = fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	}
	out := &Error{Op: op, Err: err}
	if e != nil {
		out.Expr = expr.String(e)
	}
	return out
}

// IsNotSupported reports whether err is a not-supported binding error.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// IsBindingError reports whether err came from the binder.
func IsBindingError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}
