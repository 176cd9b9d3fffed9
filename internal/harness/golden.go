package harness

import (
	"maps"
	"slices"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/spaghetti/internal/ir"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string
	BuildErrors  []string
	Trace        []TraceEvent
}

// toIR encodes the snapshot for canonical JSON. Empty fields are left out.
func (s *TraceSnapshot) toIR() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, ev := range s.Trace {
		trace[i] = eventIR(ev)
	}
	obj := ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
	}
	if len(s.BuildErrors) > 0 {
		obj["build_errors"] = ir.Strings(s.BuildErrors)
	}
	return obj
}

func eventIR(ev TraceEvent) ir.IRObject {
	obj := ir.IRObject{
		"step": ir.IRInt(ev.Step),
		"type": ir.IRString(ev.Type),
		"seq":  ir.IRInt(ev.Seq),
	}
	switch ev.Type {
	case EventEdit:
		obj["edit"] = ir.IRString(ev.Edit)
		obj["status"] = ir.IRString(ev.Status)
		if ev.Error != "" {
			obj["error"] = ir.IRString(ev.Error)
		}
	case EventPass:
		obj["frame"] = ir.IRInt(ev.Frame)
		obj["waves"] = ir.IRInt(ev.Waves)
		obj["complete"] = ir.IRBool(ev.Complete)
		obj["ran"] = ir.Strings(ev.Ran)
		obj["skipped"] = ir.Strings(ev.Skipped)
		if len(ev.Pending) > 0 {
			pending := make(ir.IRArray, len(ev.Pending))
			for i, p := range ev.Pending {
				po := ir.IRObject{
					"processor": ir.IRString(p.Processor),
					"reason":    ir.IRString(p.Reason),
				}
				if p.Detail != "" {
					po["detail"] = ir.IRString(p.Detail)
				}
				pending[i] = po
			}
			obj["pending"] = pending
		}
		values := make(ir.IRObject, len(ev.Values))
		for _, k := range slices.Sorted(maps.Keys(ev.Values)) {
			values[k] = ir.Strings(ev.Values[k])
		}
		obj["values"] = values
	}
	return obj
}

// Snapshot returns the canonical JSON of a run, as stored in golden files.
func Snapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		BuildErrors:  result.BuildErrors,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toIR())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the golden file for
// scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
