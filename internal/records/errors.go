package records

import "errors"

var (
	// ErrConflict is returned when a conditional update loses the race: the
	// record's status no longer matches what the caller observed.
	ErrConflict = errors.New("record status conflict")
	// ErrNotFound is returned when no record matches the requested identity.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a create collides with an existing
	// external key.
	ErrDuplicateKey = errors.New("external key already ingested")
)
