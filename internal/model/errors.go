package model

import "errors"

var (
	// ErrUnknownType is returned when a type name or Go type is not registered.
	ErrUnknownType = errors.New("unknown model type")

	// ErrDuplicateType is returned when a type name is registered twice.
	ErrDuplicateType = errors.New("model type already registered")

	// ErrInvalidKey is returned for keys not of the form "<Type>/<local>".
	ErrInvalidKey = errors.New("invalid model key")

	// ErrDeletedEndpoint is returned when a link is saved or deleted while
	// one of its endpoints is marked deleted.
	ErrDeletedEndpoint = errors.New("link endpoint is marked deleted")

	// ErrModelDeleted is returned when a model marked deleted is saved.
	ErrModelDeleted = errors.New("model is marked deleted")

	// ErrPathIncomplete is returned when a path edge references a model that
	// is neither the root nor one of the path nodes.
	ErrPathIncomplete = errors.New("path edge endpoint not in path")

	// ErrUnknownField is returned when a field path does not exist on a type.
	ErrUnknownField = errors.New("unknown field")
)
