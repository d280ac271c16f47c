package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidTransition is returned when a status update would violate the
// session state machine (e.g. reviving a completed session).
var ErrInvalidTransition = errors.New("storage: invalid status transition")
