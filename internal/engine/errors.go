package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while the engine edits or
// replays a live graph.
//
// Graph-level failures (type mismatches, stuck passes, processor failures)
// are *graph.Error values and pass through unwrapped.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Session identifies the affected session, when known.
	Session string

	// Frame is the pass number, for replay mismatches.
	Frame int64
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownName indicates an edit named a processor or slot that
	// does not exist.
	ErrCodeUnknownName RuntimeErrorCode = "UNKNOWN_NAME"

	// ErrCodeInvalidEdit indicates an edit that cannot be applied as written.
	ErrCodeInvalidEdit RuntimeErrorCode = "INVALID_EDIT"

	// ErrCodeReplayMismatch indicates a replayed pass differs from the
	// recorded one.
	ErrCodeReplayMismatch RuntimeErrorCode = "REPLAY_MISMATCH"

	// ErrCodeSpecChanged indicates a replay against a graph definition whose
	// hash differs from the recorded session's.
	ErrCodeSpecChanged RuntimeErrorCode = "SPEC_CHANGED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.Session != "" && e.Frame > 0:
		return fmt.Sprintf("%s: %s (session=%s, frame=%d)", e.Code, e.Message, e.Session, e.Frame)
	case e.Session != "":
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Message, e.Session)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownName returns true if the error is an unknown-name error.
// Uses errors.As to handle wrapped errors.
func IsUnknownName(err error) bool { return hasCode(err, ErrCodeUnknownName) }

// IsInvalidEdit returns true if the error is an invalid-edit error.
func IsInvalidEdit(err error) bool { return hasCode(err, ErrCodeInvalidEdit) }

// IsReplayMismatch returns true if the error is a replay mismatch.
func IsReplayMismatch(err error) bool { return hasCode(err, ErrCodeReplayMismatch) }

// IsSpecChanged returns true if the error reports a changed definition.
func IsSpecChanged(err error) bool { return hasCode(err, ErrCodeSpecChanged) }

func unknownName(name string) *RuntimeError {
	return &RuntimeError{Code: ErrCodeUnknownName, Message: "unknown processor or slot " + name}
}

func invalidEdit(msg string) *RuntimeError {
	return &RuntimeError{Code: ErrCodeInvalidEdit, Message: msg}
}

// NewReplayMismatch creates a RuntimeError for a pass that replayed
// differently.
func NewReplayMismatch(session string, frame int64, msg string) *RuntimeError {
	return &RuntimeError{Code: ErrCodeReplayMismatch, Message: msg, Session: session, Frame: frame}
}

// NewSpecChanged creates a RuntimeError for a definition hash mismatch.
func NewSpecChanged(session, recorded, current string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSpecChanged,
		Message: fmt.Sprintf("graph definition changed (recorded %s, current %s)", recorded, current),
		Session: session,
	}
}
