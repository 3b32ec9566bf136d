package tracking

import "errors"

var (
	// ErrAlreadyDeleted is returned when a model already marked deleted
	// is deleted again.
	ErrAlreadyDeleted = errors.New("tracking: model already deleted")

	// ErrSaveStalled is returned when a save pass makes no progress, for
	// example when a link points at an endpoint that is never saved.
	ErrSaveStalled = errors.New("tracking: save made no progress")

	// ErrKeyConflict is returned when a server-assigned key is already
	// tracked by another model.
	ErrKeyConflict = errors.New("tracking: key already tracked")

	// ErrClientKey is returned when a new model carries a key that is not
	// provisional.
	ErrClientKey = errors.New("tracking: new model needs a provisional key")

	// ErrNotTracked is returned for models the repository does not see.
	ErrNotTracked = errors.New("tracking: model not tracked")
)
