package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes a graph file and a scenario next to it and returns
// the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	graphSrc, err := os.ReadFile(filepath.Join("testdata", "graphs", "chain.cue"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chain.cue"), graphSrc, 0644))

	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
graph: chain.cue
session: s-1
steps:
  - execute: true
  - link: {from: A.out, to: C.x}
  - unlink: B.a
  - set: {to: B.b, value: [1, 2]}
  - set: {to: C.label, text: [hi]}
  - dirty: A
assertions:
  - type: ran
    processors: [A]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "chain.cue"), scenario.Graph)
	assert.Equal(t, "s-1", scenario.Session)
	require.Len(t, scenario.Steps, 6)
	assert.True(t, scenario.Steps[0].Execute)
	assert.Equal(t, &LinkStep{From: "A.out", To: "C.x"}, scenario.Steps[1].Link)
	assert.Equal(t, "B.a", scenario.Steps[2].Unlink)
	assert.Equal(t, []float64{1, 2}, scenario.Steps[3].Set.Value)
	assert.Equal(t, []string{"hi"}, scenario.Steps[4].Set.Text)
	assert.Equal(t, "A", scenario.Steps[5].Dirty)
	assert.Equal(t, []string{"A"}, scenario.Assertions[0].Processors)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: d
graph: chain.cue
steps:
  - execute: true
assertion:
  - type: complete
    expect: true
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	abs, err := filepath.Abs(filepath.Join("testdata", "scenarios", "chain_edits.yaml"))
	require.NoError(t, err)

	scenario, err := LoadScenarioWithBasePath(abs, filepath.Dir(abs))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(abs), "..", "graphs", "chain.cue"), scenario.Graph)
}

func TestLoadScenario_Validation(t *testing.T) {
	const header = "name: n\ndescription: d\ngraph: chain.cue\n"
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing name",
			content: "description: d\ngraph: chain.cue\nsteps: [{execute: true}]\nassertions: [{type: complete, expect: true}]\n",
			want:    "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\ngraph: chain.cue\nsteps: [{execute: true}]\nassertions: [{type: complete, expect: true}]\n",
			want:    "description is required",
		},
		{
			name:    "missing graph",
			content: "name: n\ndescription: d\nsteps: [{execute: true}]\nassertions: [{type: complete, expect: true}]\n",
			want:    "graph is required",
		},
		{
			name:    "graph not found",
			content: "name: n\ndescription: d\ngraph: nope.cue\nsteps: [{execute: true}]\nassertions: [{type: complete, expect: true}]\n",
			want:    "graph file not found",
		},
		{
			name:    "no steps",
			content: header + "steps: []\nassertions: [{type: complete, expect: true}]\n",
			want:    "steps list is required",
		},
		{
			name:    "no assertions",
			content: header + "steps: [{execute: true}]\nassertions: []\n",
			want:    "assertions list is required",
		},
		{
			name:    "empty step",
			content: header + "steps: [{}]\nassertions: [{type: complete, expect: true}]\n",
			want:    "steps[0]: exactly one of",
		},
		{
			name:    "two ops in one step",
			content: header + "steps: [{execute: true, dirty: A}]\nassertions: [{type: complete, expect: true}]\n",
			want:    "steps[0]: exactly one of",
		},
		{
			name:    "link without to",
			content: header + "steps: [{link: {from: A.out}}]\nassertions: [{type: complete, expect: true}]\n",
			want:    "steps[0]: link needs from and to",
		},
		{
			name:    "set without value",
			content: header + "steps: [{set: {to: B.b}}]\nassertions: [{type: complete, expect: true}]\n",
			want:    "steps[0]: set needs value or text",
		},
		{
			name:    "unknown assertion",
			content: header + "steps: [{execute: true}]\nassertions: [{type: trace_contains}]\n",
			want:    `unknown assertion type "trace_contains"`,
		},
		{
			name:    "ran without processors",
			content: header + "steps: [{execute: true}]\nassertions: [{type: ran}]\n",
			want:    "processors is required for ran",
		},
		{
			name:    "pending with unknown reason",
			content: header + "steps: [{execute: true}]\nassertions: [{type: pending, processor: C, reason: stuck}]\n",
			want:    `unknown reason "stuck"`,
		},
		{
			name:    "value without output",
			content: header + "steps: [{execute: true}]\nassertions: [{type: value, processor: C, value: [1]}]\n",
			want:    "processor and output are required",
		},
		{
			name:    "complete without expect",
			content: header + "steps: [{execute: true}]\nassertions: [{type: complete}]\n",
			want:    "expect is required for complete",
		},
		{
			name:    "link_rejected without step",
			content: header + "steps: [{link: {from: A.out, to: C.x}}]\nassertions: [{type: link_rejected}]\n",
			want:    "step is required for link_rejected",
		},
		{
			name:    "step out of range",
			content: header + "steps: [{execute: true}]\nassertions: [{type: complete, step: 3, expect: true}]\n",
			want:    "step 3 out of range",
		},
		{
			name:    "pass assertion on an edit step",
			content: header + "steps: [{dirty: A}, {execute: true}]\nassertions: [{type: complete, step: 0, expect: true}]\n",
			want:    "step 0 is not an execute step",
		},
		{
			name:    "link_rejected on a pass step",
			content: header + "steps: [{execute: true}]\nassertions: [{type: link_rejected, step: 0}]\n",
			want:    "step 0 is not a link step",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_TestdataScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, filepath.Base(path), scenario.Name+".yaml")
		})
	}
}
