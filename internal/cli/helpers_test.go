package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spaghetti/internal/engine"
)

// testGraph returns the path of a graph under testdata/graphs.
func testGraph(name string) string {
	return filepath.Join("testdata", "graphs", name+".cue")
}

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// copyGraph copies a testdata graph into dir.
func copyGraph(t *testing.T, dir, name string) string {
	t.Helper()
	src, err := os.ReadFile(testGraph(name))
	require.NoError(t, err)
	return writeFile(t, dir, name+".cue", string(src))
}

// execute runs cmd with args and returns its stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// record runs graph for one frame into dbPath under a fixed session token.
func record(t *testing.T, dbPath, graph, session string, sets ...string) string {
	t.Helper()
	opts := &RunOptions{
		RootOptions:      &RootOptions{Format: "text"},
		Database:         dbPath,
		Frames:           1,
		Sets:             sets,
		SessionGenerator: engine.NewFixedGenerator(session),
	}
	out, err := runWith(opts, graph)
	require.NoError(t, err)
	return out
}

// runWith calls the run command body directly so tests can set options
// that have no flag.
func runWith(opts *RunOptions, graph string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	err := runEngine(opts, graph, cmd)
	return buf.String(), err
}
