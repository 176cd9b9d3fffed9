package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/spaghetti/internal/compiler"
	"github.com/roach88/spaghetti/internal/engine"
	"github.com/roach88/spaghetti/internal/gpu/soft"
	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Graph    string
	Frames   int64
	Interval time.Duration
	Sets     []string // "proc.slot=v1,v2"
	Links    []string // "proc.out=proc.in"
	Unlinks  []string // "proc.in"

	// SessionGenerator overrides the session token generator (for testing).
	// If nil, the engine uses UUIDv7Generator.
	SessionGenerator engine.SessionGenerator
}

// RunSummary is what run prints once the engine stops.
type RunSummary struct {
	Session     string    `json:"session"`
	Graph       string    `json:"graph"`
	Frames      int64     `json:"frames"`
	BuildErrors []string  `json:"build_errors,omitempty"`
	Rejected    []string  `json:"rejected,omitempty"`
	LastPass    *PassView `json:"last_pass,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <graph.cue>",
		Short: "Run a graph",
		Long: `Build a graph from its CUE definition and run passes over it.

Edits given with --set, --link and --unlink are queued before the first
pass. Every edit and pass is recorded in the database; without --db an
in-memory database is used and nothing is kept.

Without --frames the engine runs until interrupted, passing on every
--interval tick, or only when edits arrive when no interval is set.

Example:
  spaghetti run ./graphs/chain.cue
  spaghetti run --db ./spaghetti.db --set B.b=4 ./graphs/chain.cue
  spaghetti run --db ./spaghetti.db --frames 0 --interval 16ms ./graphs/chain.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default in-memory)")
	cmd.Flags().StringVar(&opts.Graph, "graph", "", "graph to run when the file defines several")
	cmd.Flags().Int64Var(&opts.Frames, "frames", 1, "number of passes to run (0 = until interrupted)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between passes")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "set an input default or output, e.g. B.b=4 or C.label=hi")
	cmd.Flags().StringArrayVar(&opts.Links, "link", nil, "link an output to an input, e.g. A.out=C.x")
	cmd.Flags().StringArrayVar(&opts.Unlinks, "unlink", nil, "remove the link into an input, e.g. B.a")

	return cmd
}

func runEngine(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	edits, err := parseEdits(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid edit flag", err)
	}

	slog.Info("loading graph", "path", path)
	spec, err := compiler.LoadGraph(path, opts.Graph)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load graph", err)
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = store.Memory
	}
	slog.Info("opening database", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	dev := soft.New()
	env := graph.Env{Device: dev, Queue: dev, Logger: slog.Default()}
	engineOpts := []engine.EngineOption{
		engine.WithStore(st),
		engine.WithMaxFrames(opts.Frames),
		engine.WithFrameInterval(opts.Interval),
	}
	if opts.SessionGenerator != nil {
		engineOpts = append(engineOpts, engine.WithSessionGenerator(opts.SessionGenerator))
	}

	eng, buildErr := engine.New(spec, env, engineOpts...)
	if eng == nil {
		return WrapExitError(ExitCommandError, "failed to build graph", buildErr)
	}
	summary := RunSummary{Session: eng.Session(), Graph: spec.Name, BuildErrors: errorStrings(buildErr)}
	for _, e := range summary.BuildErrors {
		formatter.VerboseLog("build: %s", e)
	}

	for _, ed := range edits {
		eng.Enqueue(ed)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	slog.Info("engine stopped", "session", eng.Session(), "frames", eng.Frame())

	// The engine's context may be gone; the summary reads with a fresh one.
	readCtx := context.Background()
	summary.Frames = eng.Frame()
	rejected, err := st.ReadRejectedEdits(readCtx, eng.Session())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read edits", err)
	}
	for _, r := range rejected {
		summary.Rejected = append(summary.Rejected, r.Error)
	}
	if summary.Frames > 0 {
		pass, err := st.ReadPass(readCtx, eng.Session(), summary.Frames)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read pass", err)
		}
		view := newPassView(pass)
		summary.LastPass = &view
	}

	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: summary, Session: summary.Session})
	}
	outputRunText(formatter, summary)
	return nil
}

func outputRunText(f *OutputFormatter, s RunSummary) {
	w := f.Writer
	fmt.Fprintf(w, "Session: %s\n", s.Session)
	fmt.Fprintf(w, "Graph:   %s\n", s.Graph)
	fmt.Fprintf(w, "Frames:  %d\n", s.Frames)
	if len(s.BuildErrors) > 0 {
		fmt.Fprintln(w, "\nBuild errors:")
		for _, e := range s.BuildErrors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	if len(s.Rejected) > 0 {
		fmt.Fprintln(w, "\nRejected edits:")
		for _, e := range s.Rejected {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	if s.LastPass != nil {
		fmt.Fprintln(w)
		writePassText(w, *s.LastPass)
	}
}

// parseEdits turns the edit flags into engine edits: links, then unlinks,
// then sets.
func parseEdits(opts *RunOptions) ([]engine.Edit, error) {
	var edits []engine.Edit
	for _, l := range opts.Links {
		from, to, ok := strings.Cut(l, "=")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("--link %q: want from=to", l)
		}
		edits = append(edits, engine.Link(from, to))
	}
	for _, u := range opts.Unlinks {
		if u == "" {
			return nil, fmt.Errorf("--unlink: empty input")
		}
		edits = append(edits, engine.Unlink(u))
	}
	for _, s := range opts.Sets {
		ed, err := parseSet(s)
		if err != nil {
			return nil, err
		}
		edits = append(edits, ed)
	}
	return edits, nil
}

// parseSet reads "to=v1,v2". All-numeric values set numbers; anything else
// sets text.
func parseSet(s string) (engine.Edit, error) {
	to, raw, ok := strings.Cut(s, "=")
	if !ok || to == "" || raw == "" {
		return engine.Edit{}, fmt.Errorf("--set %q: want to=value[,value...]", s)
	}
	parts := strings.Split(raw, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return engine.SetText(to, parts...), nil
		}
		values = append(values, v)
	}
	return engine.Set(to, values...), nil
}

// errorStrings flattens a build error, which may be a multierror.
func errorStrings(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		var out []string
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
