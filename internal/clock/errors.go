package clock

import "errors"

var (
	// ErrConcurrencyConflict is returned when the store cannot serialize
	// concurrent clock increments for the same user. Callers retry the
	// whole write transaction.
	ErrConcurrencyConflict = errors.New("clock increment serialization conflict")
)
