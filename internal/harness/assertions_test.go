package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{
			Step: 0, Type: EventPass, Seq: 1, Frame: 1, Complete: false,
			Ran:     []string{"A", "B"},
			Pending: []PendingEvent{{Processor: "C", Reason: "type-mismatch"}},
			Values:  map[string][]string{"B.out": {"5"}, "C.out": {""}, "V.out": {"0.1", "2"}},
		},
		{Step: 1, Type: EventEdit, Seq: 2, Edit: "link B.out -> C.x", Status: "rejected", Error: "TYPE_MISMATCH: value cannot feed text"},
		{Step: 2, Type: EventEdit, Seq: 3, Edit: "link A.out -> B.a", Status: "applied"},
		{
			Step: 3, Type: EventPass, Seq: 4, Frame: 2, Complete: true,
			Skipped: []string{"A", "B", "C"},
			Values:  map[string][]string{"B.out": {"6"}},
		},
	}
}

func TestEvaluateAssertions_Passing(t *testing.T) {
	result := &Result{Trace: sampleTrace()}
	assertions := []Assertion{
		{Type: AssertRan, Step: intp(0), Processors: []string{"A", "B"}},
		{Type: AssertRan, Processors: []string{}},
		{Type: AssertSkipped, Processors: []string{"C", "A", "B"}},
		{Type: AssertPending, Step: intp(0), Processor: "C", Reason: "type-mismatch"},
		{Type: AssertPending, Step: intp(0), Processor: "C"},
		{Type: AssertValue, Step: intp(0), Processor: "V", Output: "out", Value: []float64{0.1, 2}},
		{Type: AssertValue, Step: intp(0), Processor: "C", Output: "out", Text: []string{""}},
		{Type: AssertValue, Processor: "B", Output: "out", Value: []float64{6}},
		{Type: AssertLinkRejected, Step: intp(1), Code: "TYPE_MISMATCH"},
		{Type: AssertComplete, Step: intp(0), Expect: boolp(false)},
		{Type: AssertComplete, Expect: boolp(true)},
	}
	assert.Empty(t, EvaluateAssertions(result, assertions))
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	result := &Result{Trace: sampleTrace()}
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"ran order", Assertion{Type: AssertRan, Step: intp(0), Processors: []string{"B", "A"}}, "ran [A B]"},
		{"skipped set", Assertion{Type: AssertSkipped, Processors: []string{"A"}}, "skipped [A B C]"},
		{"pending reason", Assertion{Type: AssertPending, Step: intp(0), Processor: "C", Reason: "cycle"}, "pending with reason type-mismatch"},
		{"not pending", Assertion{Type: AssertPending, Processor: "C"}, "C not pending"},
		{"value differs", Assertion{Type: AssertValue, Processor: "B", Output: "out", Value: []float64{5}}, "B.out = [6]"},
		{"no such output", Assertion{Type: AssertValue, Processor: "Z", Output: "out", Value: []float64{1}}, "no such value or text output"},
		{"link applied", Assertion{Type: AssertLinkRejected, Step: intp(2)}, "Actual: applied"},
		{"wrong code", Assertion{Type: AssertLinkRejected, Step: intp(1), Code: "UNKNOWN_NAME"}, "rejection with code UNKNOWN_NAME"},
		{"link step is a pass", Assertion{Type: AssertLinkRejected, Step: intp(0)}, "step 0 did not apply an edit"},
		{"pass step is an edit", Assertion{Type: AssertRan, Step: intp(1), Processors: []string{}}, "step 1 did not run a pass"},
		{"complete", Assertion{Type: AssertComplete, Step: intp(0), Expect: boolp(true)}, "complete = false, 1 pending"},
		{"missing expect", Assertion{Type: AssertComplete}, "complete requires expect"},
		{"unknown type", Assertion{Type: "final_state"}, `unknown assertion type "final_state"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(result, []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestEvaluateAssertions_NoPass(t *testing.T) {
	result := &Result{Trace: []TraceEvent{{Step: 0, Type: EventEdit, Edit: "dirty A", Status: "applied"}}}
	errs := EvaluateAssertions(result, []Assertion{{Type: AssertComplete, Expect: boolp(true)}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "no pass ran")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRan,
		Step:     3,
		Expected: "ran [A]",
		Actual:   "ran []",
		Trace:    sampleTrace(),
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: ran (step 3)")
	assert.Contains(t, msg, "Expected: ran [A]")
	assert.Contains(t, msg, "[1] link B.out -> C.x: rejected")
	assert.Contains(t, msg, "[0] pass 1: ran [A B] skipped []")
	assert.Contains(t, msg, "pending C: type-mismatch")
}
