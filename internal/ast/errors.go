package ast

import "errors"

var (
	// ErrDecode is returned for any malformed input: unknown kinds, a child
	// whose embedded kind disagrees with its reference, trailing bytes, or
	// truncation.
	ErrDecode = errors.New("ast: decode failed")

	// ErrEncode is returned when a node cannot be written.
	ErrEncode = errors.New("ast: encode failed")

	// ErrUnboundParameter is returned when a Save or Delete still holds a
	// model parameter, or a parameter index has no argument.
	ErrUnboundParameter = errors.New("ast: unbound parameter")

	// ErrInvalid is returned by Validate for structurally malformed trees.
	ErrInvalid = errors.New("ast: invalid node")
)
