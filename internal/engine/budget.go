package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxVisits is the default number of walks one traversal may
// expand.
const DefaultMaxVisits = 10000

// visitBudget counts the walks a traversal expands and enforces a limit.
// Each traversal has its own budget.
type visitBudget struct {
	max     int
	current int
}

func newVisitBudget(max int) *visitBudget {
	return &visitBudget{max: max}
}

// Check counts one expansion and fails once the limit is passed. A
// non-positive limit disables the check.
func (b *visitBudget) Check(origin string) error {
	b.current++
	if b.max > 0 && b.current > b.max {
		return &VisitLimitError{Origin: origin, Visits: b.current, Limit: b.max}
	}
	return nil
}

// VisitLimitError is returned when a traversal expands more walks than
// its budget allows. The traversal returns no partial result.
type VisitLimitError struct {
	Origin string // Key of the traversal origin
	Visits int    // Number of expansions attempted
	Limit  int    // Maximum allowed expansions
}

// Error implements the error interface.
func (e *VisitLimitError) Error() string {
	return fmt.Sprintf("traversal from %s exceeded visit limit: %d visits > %d limit",
		e.Origin, e.Visits, e.Limit)
}

// IsVisitLimitError returns true if the error is a VisitLimitError.
// Uses errors.As to handle wrapped errors.
func IsVisitLimitError(err error) bool {
	var ve *VisitLimitError
	return errors.As(err, &ve)
}
