package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeCUE(t, t.TempDir(), "chain.cue", chainCUE)

	res, errs := Load(path, LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, 1, res.FileCount)
	require.Len(t, res.Graphs, 1)
	assert.Equal(t, "chain", res.Graphs[0].Name)
	assert.Len(t, res.Graphs[0].Processors, 3)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "a.cue", `graph: one: processor: A: {kind: "builtin", builtin: "constant", output: out: type: "value"}`)
	writeCUE(t, dir, "b.cue", `graph: two: processor: B: {kind: "builtin", builtin: "constant", output: out: type: "value"}`)

	res, errs := Load(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Equal(t, 2, res.FileCount)
	require.Len(t, res.Graphs, 2)

	g, err := res.Graph("two")
	require.NoError(t, err)
	assert.Equal(t, "B", g.Processors[0].Name)

	_, err = res.Graph("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 graphs defined")
}

func TestLoadDirectory_NestedFilesWithoutPackage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeCUE(t, dir, "a.cue", `graph: one: processor: A: {kind: "builtin", builtin: "constant", output: out: type: "value"}`)
	writeCUE(t, dir, "shared.cue", `defaults: width: 4`)
	writeCUE(t, dir, filepath.Join("sub", "c.cue"), `graph: three: processor: C: {kind: "builtin", builtin: "constant", output: out: type: "value"}`)

	res, errs := Load(dir, LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, 3, res.FileCount)
	require.Len(t, res.Graphs, 2)
	assert.Equal(t, "one", res.Graphs[0].Name)
	assert.Equal(t, "three", res.Graphs[1].Name)
}

func TestLoadDirectory_DuplicateGraphAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "a.cue", `graph: one: processor: A: {kind: "builtin", builtin: "constant", output: out: type: "value"}`)
	writeCUE(t, dir, "b.cue", `graph: one: processor: B: {kind: "builtin", builtin: "constant", output: out: type: "value"}`)

	res, errs := Load(dir, LoadModeCollectAll)
	require.Len(t, errs, 1)
	var le *LoadError
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, ErrDuplicateName, le.Code)
	require.Len(t, res.Graphs, 1)
	assert.Equal(t, "A", res.Graphs[0].Processors[0].Name)
}

func TestLoadDirectory_BrokenFile(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "a.cue", `graph: one: processor: A: {kind: "builtin", builtin: "constant", output: out: type: "value"}`)
	writeCUE(t, dir, "b.cue", `graph: two: {`)

	res, errs := Load(dir, LoadModeCollectAll)
	require.Len(t, errs, 1)
	var le *LoadError
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, ErrCodeLoadFailed, le.Code)
	require.Len(t, res.Graphs, 1)
	assert.Equal(t, "one", res.Graphs[0].Name)

	res, errs = Load(dir, LoadModeFailFast)
	assert.Nil(t, res)
	require.Len(t, errs, 1)
}

func TestLoadGraphByName(t *testing.T) {
	path := writeCUE(t, t.TempDir(), "chain.cue", chainCUE)

	g, err := LoadGraph(path, "")
	require.NoError(t, err)
	assert.Equal(t, "chain", g.Name)

	_, err = LoadGraph(path, "missing")
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeNoGraph, le.Code)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path func() string
		code string
	}{
		{"missing path", func() string { return filepath.Join(dir, "nope.cue") }, ErrCodeNotFound},
		{"empty directory", func() string {
			d := filepath.Join(dir, "empty")
			require.NoError(t, os.Mkdir(d, 0o755))
			return d
		}, ErrCodeNoFiles},
		{"not cue", func() string { return writeCUE(t, dir, "graph.yaml", "a: 1") }, ErrCodeNoFiles},
		{"no graph", func() string { return writeCUE(t, dir, "other.cue", `x: 1`) }, ErrCodeNoGraph},
		{"missing kind", func() string {
			return writeCUE(t, dir, "bad.cue", `graph: bad: processor: A: {output: out: type: "value"}`)
		}, ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := Load(tt.path(), LoadModeFailFast)
			require.NotEmpty(t, errs)
			var le *LoadError
			require.True(t, errors.As(errs[0], &le))
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoadCollectAll(t *testing.T) {
	path := writeCUE(t, t.TempDir(), "mixed.cue", `
graph: {
	bad1: processor: A: {output: out: type: "value"}
	good: processor: A: {kind: "builtin", builtin: "constant", output: out: type: "value"}
	bad2: processor: B: {kind: "builtin", output: out: {}}
}
`)
	res, errs := Load(path, LoadModeCollectAll)
	assert.Len(t, errs, 2)
	require.Len(t, res.Graphs, 1)
	assert.Equal(t, "good", res.Graphs[0].Name)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := map[string]string{
		"processor":                ErrEmptyGraph,
		"processor.A.kind":         ErrUnknownKind,
		"processor.A.input.x.type": ErrInvalidSignature,
		"value":                    ErrInvalidInitial,
		"processor.C.workgroups":   ErrMisplacedField,
		"link.from":                ErrInvalidEndpoint,
		"processor.G.import.to":    ErrInvalidGroupPort,
		"processor.A.width":        ErrCodeGeneric,
	}
	for field, want := range tests {
		assert.Equal(t, want, MapFieldToErrorCode(field), field)
	}
}
