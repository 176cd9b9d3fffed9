package scc

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sorted(c []string) []string {
	out := append([]string(nil), c...)
	sort.Strings(out)
	return out
}

func TestComponents_DAG(t *testing.T) {
	g := Graph[string]{"a": {"b"}, "b": {"c"}, "c": {}}

	comps := Components(g, []string{"a", "b", "c"})
	require.Len(t, comps, 3)
	// Reverse topological order: sinks first.
	assert.Equal(t, [][]string{{"c"}, {"b"}, {"a"}}, comps)
	assert.Empty(t, Cycles(g, []string{"a", "b", "c"}))
}

func TestCycles_TwoNode(t *testing.T) {
	g := Graph[string]{"a": {"b"}, "b": {"a", "c"}, "c": {}}

	cycles := Cycles(g, []string{"a", "b", "c"})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b"}, sorted(cycles[0]))
}

func TestCycles_SelfLoop(t *testing.T) {
	g := Graph[int]{1: {1}, 2: {}}

	cycles := Cycles(g, []int{1, 2})
	require.Len(t, cycles, 1)
	assert.Equal(t, []int{1}, cycles[0])
	assert.Equal(t, []int{1, 1}, Path(g, cycles[0]))
}

func TestPath_ThreeNodeCycle(t *testing.T) {
	g := Graph[string]{"x": {"y"}, "y": {"z"}, "z": {"x"}}

	path := Path(g, []string{"x", "y", "z"})
	assert.Equal(t, []string{"x", "y", "z", "x"}, path)
}

func TestComponents_SuccessorWithoutKey(t *testing.T) {
	g := Graph[string]{"a": {"b"}}

	comps := Components(g, []string{"a"})
	assert.Equal(t, [][]string{{"b"}, {"a"}}, comps)
}
