package harness

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Step     int // step the assertion looked at; -1 when none
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Step >= 0 {
		fmt.Fprintf(&buf, " (step %d)", e.Step)
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		switch ev.Type {
		case EventEdit:
			fmt.Fprintf(&buf, "  [%d] %s: %s\n", ev.Step, ev.Edit, ev.Status)
		case EventPass:
			fmt.Fprintf(&buf, "  [%d] pass %d: ran %v skipped %v\n", ev.Step, ev.Frame, ev.Ran, ev.Skipped)
			for _, p := range ev.Pending {
				fmt.Fprintf(&buf, "        pending %s: %s\n", p.Processor, p.Reason)
			}
		}
	}
	return buf.String()
}

// passFor returns the pass event an assertion refers to.
func passFor(trace []TraceEvent, a Assertion) (TraceEvent, error) {
	r := Result{Trace: trace}
	if a.Step != nil {
		ev, ok := r.stepEvent(*a.Step)
		if !ok || ev.Type != EventPass {
			return TraceEvent{}, fmt.Errorf("%s: step %d did not run a pass", a.Type, *a.Step)
		}
		return ev, nil
	}
	ev, ok := r.lastPass()
	if !ok {
		return TraceEvent{}, fmt.Errorf("%s: no pass ran", a.Type)
	}
	return ev, nil
}

// assertRan checks the exact execution order of a pass.
func assertRan(trace []TraceEvent, a Assertion) error {
	ev, err := passFor(trace, a)
	if err != nil {
		return err
	}
	if slices.Equal(ev.Ran, a.Processors) {
		return nil
	}
	return &AssertionError{
		Type:     AssertRan,
		Step:     ev.Step,
		Expected: fmt.Sprintf("ran %v", a.Processors),
		Actual:   fmt.Sprintf("ran %v", ev.Ran),
		Trace:    trace,
	}
}

// assertSkipped checks the set of clean processors of a pass.
func assertSkipped(trace []TraceEvent, a Assertion) error {
	ev, err := passFor(trace, a)
	if err != nil {
		return err
	}
	want := slices.Sorted(slices.Values(a.Processors))
	got := slices.Sorted(slices.Values(ev.Skipped))
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSkipped,
		Step:     ev.Step,
		Expected: fmt.Sprintf("skipped %v", want),
		Actual:   fmt.Sprintf("skipped %v", got),
		Trace:    trace,
	}
}

// assertPending checks that a processor was left pending, with a given
// reason when one is named.
func assertPending(trace []TraceEvent, a Assertion) error {
	ev, err := passFor(trace, a)
	if err != nil {
		return err
	}
	for _, p := range ev.Pending {
		if p.Processor != a.Processor {
			continue
		}
		if a.Reason == "" || p.Reason == a.Reason {
			return nil
		}
		return &AssertionError{
			Type:     AssertPending,
			Step:     ev.Step,
			Expected: fmt.Sprintf("%s pending with reason %s", a.Processor, a.Reason),
			Actual:   fmt.Sprintf("%s pending with reason %s", a.Processor, p.Reason),
			Trace:    trace,
		}
	}
	return &AssertionError{
		Type:     AssertPending,
		Step:     ev.Step,
		Expected: fmt.Sprintf("%s pending", a.Processor),
		Actual:   fmt.Sprintf("%s not pending", a.Processor),
		Trace:    trace,
	}
}

// assertValue checks an output's contents after a pass. Numbers compare at
// float32 precision.
func assertValue(trace []TraceEvent, a Assertion) error {
	ev, err := passFor(trace, a)
	if err != nil {
		return err
	}
	key := a.Processor + "." + a.Output
	got, ok := ev.Values[key]
	if !ok {
		return &AssertionError{
			Type:     AssertValue,
			Step:     ev.Step,
			Expected: fmt.Sprintf("%s to hold a value", key),
			Actual:   "no such value or text output",
			Trace:    trace,
		}
	}

	want := a.Text
	if len(a.Value) > 0 {
		want = make([]string, len(a.Value))
		for i, v := range a.Value {
			want[i] = formatFloat32(float32(v))
		}
	}
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     AssertValue,
		Step:     ev.Step,
		Expected: fmt.Sprintf("%s = %v", key, want),
		Actual:   fmt.Sprintf("%s = %v", key, got),
		Trace:    trace,
	}
}

// assertLinkRejected checks that a link step was rejected.
func assertLinkRejected(trace []TraceEvent, a Assertion) error {
	r := Result{Trace: trace}
	ev, ok := r.stepEvent(*a.Step)
	if !ok || ev.Type != EventEdit {
		return fmt.Errorf("%s: step %d did not apply an edit", a.Type, *a.Step)
	}
	if ev.Status != "rejected" {
		return &AssertionError{
			Type:     AssertLinkRejected,
			Step:     ev.Step,
			Expected: fmt.Sprintf("%s rejected", ev.Edit),
			Actual:   ev.Status,
			Trace:    trace,
		}
	}
	if a.Code != "" && !strings.Contains(ev.Error, a.Code) {
		return &AssertionError{
			Type:     AssertLinkRejected,
			Step:     ev.Step,
			Expected: fmt.Sprintf("rejection with code %s", a.Code),
			Actual:   ev.Error,
			Trace:    trace,
		}
	}
	return nil
}

// assertComplete checks whether every processor of a pass completed.
func assertComplete(trace []TraceEvent, a Assertion) error {
	ev, err := passFor(trace, a)
	if err != nil {
		return err
	}
	if ev.Complete == *a.Expect {
		return nil
	}
	return &AssertionError{
		Type:     AssertComplete,
		Step:     ev.Step,
		Expected: fmt.Sprintf("complete = %t", *a.Expect),
		Actual:   fmt.Sprintf("complete = %t, %d pending", ev.Complete, len(ev.Pending)),
		Trace:    trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRan:
			err = assertRan(result.Trace, a)
		case AssertSkipped:
			err = assertSkipped(result.Trace, a)
		case AssertPending:
			err = assertPending(result.Trace, a)
		case AssertValue:
			err = assertValue(result.Trace, a)
		case AssertLinkRejected:
			if a.Step == nil {
				err = fmt.Errorf("assertion[%d]: link_rejected requires step", i)
			} else {
				err = assertLinkRejected(result.Trace, a)
			}
		case AssertComplete:
			if a.Expect == nil {
				err = fmt.Errorf("assertion[%d]: complete requires expect", i)
			} else {
				err = assertComplete(result.Trace, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func formatFloat32(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
