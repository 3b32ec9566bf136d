// Package scalar defines the primitive types carried by AST literals and
// their fixed tag-per-type wire encoding.
//
// A scalar value is held as a plain Go value: nil, bool, the sized integer
// and float types, string, time.Time, time.Duration, uuid.UUID, []byte, or a
// registered enum type (a named integer or string type). Nullable types
// share the Go representation of their base type and additionally admit nil.
package scalar
