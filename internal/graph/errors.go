package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/spaghetti/internal/data"
)

// ErrorCode categorizes graph errors.
type ErrorCode string

const (
	// CodeTypeMismatch indicates a link or conversion rejected by type.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeNotReady indicates an input with no usable data this pass.
	CodeNotReady ErrorCode = "NOT_READY"

	// CodeUnknownReference indicates an id that resolves to nothing.
	CodeUnknownReference ErrorCode = "UNKNOWN_REFERENCE"

	// CodeCycleOrStarvation indicates processors a pass could never reach.
	CodeCycleOrStarvation ErrorCode = "CYCLE_OR_STARVATION"

	// CodeProcessFailed indicates a processor's Process returned an error.
	CodeProcessFailed ErrorCode = "PROCESS_FAILED"
)

// Error is the structured error of the graph package.
//
// Type and reference errors come from the editing surface (CreateLink,
// RemoveInput, ...). During Execute only process failures are produced, and
// they stay contained to the failing processor.
type Error struct {
	Code      ErrorCode
	Message   string
	Processor ProcessorID
	Link      LinkID

	// Pending is set for CodeCycleOrStarvation.
	Pending []PendingNode

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Processor != Unlinked {
		fmt.Fprintf(&b, " (processor=%s)", e.Processor)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// hasCode reports whether any *Error in err's chain carries code.
func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		var ge *Error
		if !errors.As(err, &ge) {
			return false
		}
		if ge.Code == code {
			return true
		}
		err = ge.Err
	}
	return false
}

// IsTypeMismatch reports whether err is a type rejection.
// It also matches a bare *data.MismatchError.
func IsTypeMismatch(err error) bool {
	return hasCode(err, CodeTypeMismatch) || errors.Is(err, data.ErrTypeMismatch)
}

// IsNotReady reports whether err is a missing-input error.
func IsNotReady(err error) bool { return hasCode(err, CodeNotReady) }

// IsUnknownReference reports whether err is a dangling id error.
func IsUnknownReference(err error) bool { return hasCode(err, CodeUnknownReference) }

// IsStuck reports whether err describes a pass that left processors pending.
func IsStuck(err error) bool { return hasCode(err, CodeCycleOrStarvation) }

// IsProcessFailed reports whether err is a contained processor failure.
func IsProcessFailed(err error) bool { return hasCode(err, CodeProcessFailed) }

func unknownProcessor(id ProcessorID) *Error {
	return &Error{
		Code:      CodeUnknownReference,
		Message:   fmt.Sprintf("processor %s not found", id),
		Processor: id,
	}
}

func unknownSlot(id ProcessorID, kind string, index, count int) *Error {
	return &Error{
		Code:      CodeUnknownReference,
		Message:   fmt.Sprintf("%s slot %d out of range (processor has %d)", kind, index, count),
		Processor: id,
	}
}

func notMember(id ProcessorID) *Error {
	return &Error{
		Code:      CodeUnknownReference,
		Message:   fmt.Sprintf("processor %s is not a member of this graph", id),
		Processor: id,
	}
}

func typeMismatch(consumer ProcessorID, cause error) *Error {
	return &Error{
		Code:      CodeTypeMismatch,
		Message:   "link rejected",
		Processor: consumer,
		Err:       cause,
	}
}

func notReady(id ProcessorID, input string) *Error {
	return &Error{
		Code:      CodeNotReady,
		Message:   fmt.Sprintf("input %q has no data", input),
		Processor: id,
	}
}

func processFailed(id ProcessorID, cause error) *Error {
	return &Error{
		Code:      CodeProcessFailed,
		Message:   "process failed",
		Processor: id,
		Err:       cause,
	}
}
