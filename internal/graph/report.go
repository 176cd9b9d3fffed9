package graph

import (
	"fmt"
	"strings"
)

// Reason explains why a processor did not complete in a pass.
type Reason string

const (
	// ReasonCycle marks members of a link cycle.
	ReasonCycle Reason = "cycle"

	// ReasonTypeMismatch marks processors whose input could not be bound or
	// converted because of its type.
	ReasonTypeMismatch Reason = "type-mismatch"

	// ReasonNotReady marks processors with an input that has no data.
	ReasonNotReady Reason = "not-ready"

	// ReasonFailed marks processors whose Process returned an error.
	ReasonFailed Reason = "failed"

	// ReasonUpstream marks processors waiting on another pending processor.
	ReasonUpstream Reason = "upstream"
)

// PendingNode is a processor left incomplete by a pass.
type PendingNode struct {
	Processor ProcessorID
	Reason    Reason
	Detail    string

	// Cycle is the link path for ReasonCycle, starting and ending at the same
	// processor.
	Cycle []ProcessorID
}

func (n PendingNode) String() string {
	if n.Detail == "" {
		return fmt.Sprintf("%s: %s", n.Processor, n.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", n.Processor, n.Reason, n.Detail)
}

// Report is the outcome of one Execute call.
type Report struct {
	// Ran lists processors whose Process ran, in execution order.
	Ran []ProcessorID

	// Skipped lists clean processors that completed without recomputing.
	Skipped []ProcessorID

	// Deferred holds processors that were reached but could not run.
	Deferred map[ProcessorID]Reason

	// Failed holds the contained Process errors.
	Failed map[ProcessorID]error

	// Pending lists every member that did not complete, in id order.
	Pending []PendingNode

	// Waves is the number of scheduler waves after seeding.
	Waves int

	// Exhausted is set when the wave budget ran out.
	Exhausted bool
}

// Complete reports whether every member completed.
func (r Report) Complete() bool { return len(r.Pending) == 0 }

// Err returns a CYCLE_OR_STARVATION error listing the pending set, or nil.
func (r Report) Err() error {
	if r.Complete() {
		return nil
	}
	parts := make([]string, len(r.Pending))
	for i, n := range r.Pending {
		parts[i] = n.String()
	}
	return &Error{
		Code:    CodeCycleOrStarvation,
		Message: fmt.Sprintf("%d processor(s) pending: %s", len(r.Pending), strings.Join(parts, "; ")),
		Pending: r.Pending,
	}
}

// PendingReason returns why id is pending.
func (r Report) PendingReason(id ProcessorID) (Reason, bool) {
	for _, n := range r.Pending {
		if n.Processor == id {
			return n.Reason, true
		}
	}
	return "", false
}

// Outcome classifies id for logs and traces: "ran", "skipped", or the
// pending reason. Processors that are not members return "".
func (r Report) Outcome(id ProcessorID) string {
	for _, x := range r.Ran {
		if x == id {
			return "ran"
		}
	}
	for _, x := range r.Skipped {
		if x == id {
			return "skipped"
		}
	}
	if reason, ok := r.PendingReason(id); ok {
		return string(reason)
	}
	return ""
}
