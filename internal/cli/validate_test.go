package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spaghetti/internal/compiler"
)

const unknownBuiltinCUE = `
graph: bad: {
	processor: {
		A: {
			kind:    "builtin"
			builtin: "constant"
			output: out: {type: "value", value: 1}
		}
		B: {
			kind:    "builtin"
			builtin: "divide"
			input: a: {type: "value"}
			output: out: {type: "value"}
		}
	}
	link: [{from: "A.out", to: "B.a"}]
}
`

func TestValidateValidGraph(t *testing.T) {
	out, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), testGraph("chain"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All graphs valid (1)")
	assert.NotContains(t, out, "!")
}

func TestValidateCycleIsWarning(t *testing.T) {
	out, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), testGraph("cycle"))
	require.NoError(t, err)
	assert.Contains(t, out, "! cycle: Link cycle detected")
	assert.Contains(t, out, "✓ All graphs valid (1)")
}

func TestValidateCycleJSON(t *testing.T) {
	out, err := execute(NewValidateCommand(&RootOptions{Format: "json"}), testGraph("cycle"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"cycle"}, resp.Data.Graphs)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, "cycle", resp.Data.Warnings[0].Graph)
	assert.Equal(t, "warning", resp.Data.Warnings[0].Level)
}

func TestValidateUnknownBuiltin(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.cue", unknownBuiltinCUE)

	out, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 1 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownBuiltin+": bad: ")
	assert.Contains(t, out, `"divide"`)
}

func TestValidateUnknownBuiltinJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.cue", unknownBuiltinCUE)

	out, err := execute(NewValidateCommand(&RootOptions{Format: "json"}), path)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrUnknownBuiltin, resp.Error.Code)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "bad", resp.Data.Errors[0].Graph)
}

func TestValidateCompileErrorsAreCollected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "mixed.cue", `
graph: {
	bad: processor: A: {output: out: type: "value"}
	good: processor: A: {kind: "builtin", builtin: "constant", output: out: type: "value"}
}
`)
	out, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, compiler.ErrUnknownKind)
}

func TestValidateNonExistentPath(t *testing.T) {
	out, err := execute(NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/graph.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+compiler.ErrCodeNotFound+"]")
}
