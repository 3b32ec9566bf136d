package engine

import "errors"

var (
	// ErrNotFound is returned when a saved model has a server key that is
	// not stored.
	ErrNotFound = errors.New("engine: model not found")

	// ErrDanglingEndpoint is returned when a link is saved with an endpoint
	// that is missing, provisional or not stored.
	ErrDanglingEndpoint = errors.New("engine: link endpoint not stored")

	// ErrTypeMismatch is returned when a command names a different model
	// type than the model it carries or the row it touches.
	ErrTypeMismatch = errors.New("engine: model type mismatch")

	// ErrCommand is returned for remote commands that do not parse or have
	// the wrong shape.
	ErrCommand = errors.New("engine: invalid command")

	// ErrInvalidTraversal is returned for traversal trees the engine cannot
	// walk.
	ErrInvalidTraversal = errors.New("engine: invalid traversal")
)
