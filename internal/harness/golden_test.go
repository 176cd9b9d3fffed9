package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"chain_edits", "grouped"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	result := &Result{
		BuildErrors: []string{"link A.out -> B.x: bad"},
		Trace: []TraceEvent{
			{Step: 0, Type: EventEdit, Seq: 1, Edit: "unlink B.x", Status: "rejected", Error: "INVALID_EDIT: B.x is not linked"},
			{
				Step: 1, Type: EventPass, Seq: 2, Frame: 1, Waves: 0,
				Ran:     []string{"A"},
				Skipped: []string{},
				Pending: []PendingEvent{{Processor: "B", Reason: "not-ready", Detail: `input "x" has no data`}},
				Values:  map[string][]string{"B.out": {"0"}, "A.out": {"1", "2"}},
			},
		},
	}

	got, err := Snapshot("snap", result)
	require.NoError(t, err)

	want := `{"build_errors":["link A.out -> B.x: bad"],"scenario_name":"snap","trace":[` +
		`{"edit":"unlink B.x","error":"INVALID_EDIT: B.x is not linked","seq":1,"status":"rejected","step":0,"type":"edit"},` +
		`{"complete":false,"frame":1,"pending":[{"detail":"input \"x\" has no data","processor":"B","reason":"not-ready"}],` +
		`"ran":["A"],"seq":2,"skipped":[],"step":1,"type":"pass","values":{"A.out":["1","2"],"B.out":["0"]},"waves":0}]}`
	assert.Equal(t, want, string(got))
}
