package plan

import "errors"

var (
	// ErrNotExecutable is returned when the root of a tree has no
	// execution strategy in the builder.
	ErrNotExecutable = errors.New("plan: node is not executable")

	// ErrExecutorType is returned when a factory yields an executor of
	// the wrong kind for the plan.
	ErrExecutorType = errors.New("plan: unexpected executor type")

	// ErrArity is returned when a plan is invoked with the wrong number of
	// arguments.
	ErrArity = errors.New("plan: wrong number of arguments")

	// ErrPageLimit is returned when a paged read stops at MaxPages while
	// the executor still reports more data.
	ErrPageLimit = errors.New("plan: page limit reached")

	// ErrBadPage is returned when an executor answers a page request with
	// no page or with a continuation token it already returned.
	ErrBadPage = errors.New("plan: malformed page")
)
