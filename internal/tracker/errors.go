package tracker

import (
	"errors"

	"github.com/balkashynov/worklog/internal/store"
)

var (
	// ErrNotFound indicates the referenced session does not exist.
	ErrNotFound = store.ErrNotFound
	// ErrUnavailable indicates a transient store failure; callers may retry.
	ErrUnavailable = store.ErrUnavailable
	// ErrInvalidTransition indicates the session's state forbids the operation.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrConflict indicates a race the manager could not resolve by re-reading.
	ErrConflict = errors.New("concurrent conflict")
	// ErrInvalidRequest indicates malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
)
