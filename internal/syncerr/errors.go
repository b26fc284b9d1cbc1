// Package syncerr defines the error taxonomy shared by the synchronization
// components. Every failure the scheduler must classify carries a Code.
package syncerr

import (
	"errors"
	"fmt"
)

// Code categorizes synchronization errors.
type Code string

const (
	// CodeMalformedEvent marks a raw event missing required fields. Skip the event.
	CodeMalformedEvent Code = "MALFORMED_EVENT"

	// CodeUnknownEventKind marks a raw event whose type is not recognized. Skip the event.
	CodeUnknownEventKind Code = "UNKNOWN_EVENT_KIND"

	// CodeStaleCheckpoint means another writer already advanced the checkpoint. Benign.
	CodeStaleCheckpoint Code = "STALE_CHECKPOINT"

	// CodeInvalidTransition means an event is illegal in the order's current state.
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// CodeExternalIO covers an unreachable event source or persisted store.
	CodeExternalIO Code = "EXTERNAL_IO"

	// CodeCacheIO covers cache backend failures. Never fatal.
	CodeCacheIO Code = "CACHE_IO"
)

// Error is a classified synchronization error.
type Error struct {
	Code Code

	// Message is a human-readable description.
	Message string

	// EntityID identifies the affected order, when known.
	EntityID string

	// Seq is the sequence id of the offending event, when relevant.
	Seq int64

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.EntityID != "" && e.Seq > 0 {
		msg = fmt.Sprintf("%s (entity=%s, seq=%d)", msg, e.EntityID, e.Seq)
	} else if e.EntityID != "" {
		msg = fmt.Sprintf("%s (entity=%s)", msg, e.EntityID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err (or anything it wraps) is an *Error with the given code.
func Is(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsStale reports whether err is a stale checkpoint error.
func IsStale(err error) bool { return Is(err, CodeStaleCheckpoint) }

// IsInvalidTransition reports whether err is an invalid transition error.
func IsInvalidTransition(err error) bool { return Is(err, CodeInvalidTransition) }

// IsSkippable reports whether err only invalidates a single event.
func IsSkippable(err error) bool {
	return Is(err, CodeMalformedEvent) || Is(err, CodeUnknownEventKind)
}

// Malformed creates a MalformedEventError.
func Malformed(entityID string, seq int64, format string, args ...any) *Error {
	return &Error{
		Code:     CodeMalformedEvent,
		Message:  fmt.Sprintf(format, args...),
		EntityID: entityID,
		Seq:      seq,
	}
}

// UnknownKind creates an UnknownEventKindError.
func UnknownKind(entityID string, seq int64, kind string) *Error {
	return &Error{
		Code:     CodeUnknownEventKind,
		Message:  fmt.Sprintf("unknown event kind %q", kind),
		EntityID: entityID,
		Seq:      seq,
	}
}

// Stale creates a StaleCheckpointError.
func Stale(entityID string, current, attempted int64) *Error {
	return &Error{
		Code:     CodeStaleCheckpoint,
		Message:  fmt.Sprintf("checkpoint is %d, cannot advance to %d", current, attempted),
		EntityID: entityID,
	}
}

// InvalidTransition creates an InvalidTransitionError.
func InvalidTransition(entityID string, seq int64, from, kind string) *Error {
	if from == "" {
		from = "none"
	}
	return &Error{
		Code:     CodeInvalidTransition,
		Message:  fmt.Sprintf("%s is not allowed in state %s", kind, from),
		EntityID: entityID,
		Seq:      seq,
	}
}

// ExternalIO wraps an I/O failure against the event source or store.
func ExternalIO(entityID, op string, err error) *Error {
	return &Error{
		Code:     CodeExternalIO,
		Message:  op,
		EntityID: entityID,
		Err:      err,
	}
}

// CacheIO wraps a cache backend failure.
func CacheIO(op, key string, err error) *Error {
	return &Error{
		Code:    CodeCacheIO,
		Message: fmt.Sprintf("%s %s", op, key),
		Err:     err,
	}
}
