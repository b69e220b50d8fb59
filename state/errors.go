// Package state implements the pipeline-run state manager: every
// mutation of a run record, the dispatch queue, file attachments, the
// expiration/deletion/abandonment predicates, and the statistics
// pipeline.
//
// This file defines sentinel errors and a classified wrapper so callers
// can use errors.Is/errors.As for typed assertions rather than string
// matching. The HTTP layer maps each sentinel to a status code.
package state

import (
	"errors"
	"fmt"
)

// Sentinel errors for state-manager failure classification.
var (
	// ErrRecordNotFound indicates no run record exists for the ticket.
	ErrRecordNotFound = errors.New("pipeline-run could not be found")

	// ErrBadState indicates the operation is not allowed in the run's
	// current state.
	ErrBadState = errors.New("pipeline-run is not in an updatable state")

	// ErrBadParameter indicates an unknown or mistyped parameter, or an
	// unknown analysis method.
	ErrBadParameter = errors.New("bad parameter")

	// ErrOutOfStorage indicates the cache size cap would be exceeded.
	ErrOutOfStorage = errors.New("out of storage")

	// ErrUploadTooLarge indicates a single upload exceeds the configured cap.
	ErrUploadTooLarge = errors.New("upload too large")

	// ErrNotReady indicates the result was requested before completion.
	ErrNotReady = errors.New("pipeline-run is not finished")

	// ErrGone indicates the result expired and was cleaned.
	ErrGone = errors.New("pipeline-run expired and result is cleaned")

	// ErrDependencyFailed indicates the run itself failed.
	ErrDependencyFailed = errors.New("pipeline-run failed")

	// ErrFilesystem indicates a cache-directory I/O failure.
	ErrFilesystem = errors.New("filesystem error")
)

// Error wraps an underlying error with state-manager classification.
// The original error stays in the chain for errors.As inspection.
type Error struct {
	// Kind is the sentinel for classification (e.g. ErrBadState).
	Kind error
	// Op is the operation that failed (e.g. "attach_input_file").
	Op string
	// Ticket is the run involved, if any.
	Ticket string
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Ticket != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Ticket, e.Kind, e.Err)
	case e.Ticket != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Ticket, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error for chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func newError(kind error, op, ticket string, err error) *Error {
	return &Error{Kind: kind, Op: op, Ticket: ticket, Err: err}
}
