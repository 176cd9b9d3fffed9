package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/spaghetti/internal/compiler"
	"github.com/roach88/spaghetti/internal/engine"
	"github.com/roach88/spaghetti/internal/gpu/soft"
	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/ir"
	"github.com/roach88/spaghetti/internal/store"
)

// ErrCodeDeterminism marks a replay that diverged from its recording.
const ErrCodeDeterminism = "E_DETERMINISM"

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - replay one session only
}

// ReplaySessionResult holds the replay result of one session.
type ReplaySessionResult struct {
	Session       string   `json:"session"`
	Graph         string   `json:"graph"`
	Frames        int      `json:"frames"`
	Edits         int      `json:"edits"`
	Skipped       bool     `json:"skipped,omitempty"` // graph not in the loaded files
	Deterministic bool     `json:"deterministic"`
	Mismatches    []string `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	TotalSessions    int                   `json:"total_sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <graph.cue|dir>",
		Short: "Replay recorded sessions and verify determinism",
		Long: `Rebuild recorded sessions from their graph definitions and re-run them.

Every recorded edit is re-applied before the pass that followed it, and
every pass is compared with the recorded one: completeness, each
processor's outcome, and a digest of its outputs. Sessions whose graph is
not defined in the given files are skipped. A graph whose definition
changed since the recording fails with SPEC_CHANGED.

Exit codes:
  0 - All sessions replayed identically
  1 - A session diverged from its recording
  2 - Command error

Examples:
  spaghetti replay --db ./spaghetti.db ./graphs
  spaghetti replay --db ./spaghetti.db --session 0190... ./graphs/chain.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session token to replay (default all)")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := compiler.Load(path, compiler.LoadModeFailFast)
	if len(loadErrors) > 0 {
		return WrapExitError(ExitCommandError, "failed to load graphs", loadErrors[0])
	}
	specs := make(map[string]*ir.GraphSpec, len(loadResult.Graphs))
	for _, g := range loadResult.Graphs {
		specs[g.Name] = g
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var sessions []store.Session
	if opts.Session != "" {
		sess, err := st.ReadSession(ctx, opts.Session)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read session", err)
		}
		sessions = []store.Session{sess}
	} else {
		sessions, err = st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
	}

	result := ReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(sessions)),
		TotalSessions:    len(sessions),
		AllDeterministic: true,
	}
	for _, sess := range sessions {
		res, err := replaySession(ctx, st, sess, specs[sess.Graph])
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", sess.Token), err)
		}
		if !res.Deterministic {
			result.AllDeterministic = false
		}
		result.Sessions = append(result.Sessions, res)
	}

	if opts.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter.Writer, result, opts.Verbose)
}

// replaySession replays one session against spec. A nil spec skips it.
// Mismatches and a changed definition are results; other errors abort.
func replaySession(ctx context.Context, st *store.Store, sess store.Session, spec *ir.GraphSpec) (ReplaySessionResult, error) {
	res := ReplaySessionResult{Session: sess.Token, Graph: sess.Graph, Deterministic: true}
	if spec == nil {
		slog.Warn("graph not loaded, skipping session", "session", sess.Token, "graph", sess.Graph)
		res.Skipped = true
		return res, nil
	}

	dev := soft.New()
	env := graph.Env{Device: dev, Queue: dev, Logger: slog.Default()}
	rr, err := engine.Replay(ctx, spec, env, st, sess.Token)
	res.Frames, res.Edits = rr.Frames, rr.Edits

	var merr *multierror.Error
	switch {
	case err == nil:
	case engine.IsSpecChanged(err):
		res.Deterministic = false
		res.Mismatches = []string{err.Error()}
	case errors.As(err, &merr) && engine.IsReplayMismatch(merr.Errors[0]):
		res.Deterministic = false
		for _, e := range merr.Errors {
			res.Mismatches = append(res.Mismatches, e.Error())
		}
	default:
		return res, err
	}
	return res, nil
}

func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeDeterminism,
			Message: "determinism verification failed",
		}
	}
	if err := formatter.JSON(response); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	if result.TotalSessions == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		switch {
		case s.Skipped:
			fmt.Fprintf(w, "- Session: %s (graph %s not loaded, skipped)\n\n", s.Session, s.Graph)
			continue
		case s.Deterministic:
			fmt.Fprintf(w, "✓ Session: %s\n", s.Session)
		default:
			fmt.Fprintf(w, "✗ Session: %s\n", s.Session)
		}
		fmt.Fprintf(w, "  Graph: %s, %d frame(s), %d edit(s)\n", s.Graph, s.Frames, s.Edits)
		for i, m := range s.Mismatches {
			if !verbose && i == 3 {
				fmt.Fprintf(w, "  ... %d more (use --verbose)\n", len(s.Mismatches)-i)
				break
			}
			fmt.Fprintf(w, "  %s\n", m)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
