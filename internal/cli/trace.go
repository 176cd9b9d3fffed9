package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/spaghetti/internal/ir"
	"github.com/roach88/spaghetti/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Session   string
	Processor string // optional - filter pass outcomes to one processor
}

// SessionView is one recorded session.
type SessionView struct {
	Token    string `json:"token"`
	Graph    string `json:"graph"`
	SpecHash string `json:"spec_hash"`
	Engine   string `json:"engine_version"`
}

// OutcomeView is one processor's result in a pass.
type OutcomeView struct {
	Name      string `json:"name"`
	Processor string `json:"processor"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	Digest    string `json:"digest,omitempty"`
}

// PassView is one recorded pass.
type PassView struct {
	Frame      int64         `json:"frame"`
	Seq        int64         `json:"seq"`
	Waves      int           `json:"waves"`
	Complete   bool          `json:"complete"`
	Exhausted  bool          `json:"exhausted,omitempty"`
	Processors []OutcomeView `json:"processors"`
}

func newPassView(p store.Pass) PassView {
	v := PassView{
		Frame:      p.Frame,
		Seq:        p.Seq,
		Waves:      p.Waves,
		Complete:   p.Complete,
		Exhausted:  p.Exhausted,
		Processors: make([]OutcomeView, len(p.Processors)),
	}
	for i, o := range p.Processors {
		v.Processors[i] = OutcomeView{
			Name:      o.Name,
			Processor: o.Processor,
			Outcome:   o.Outcome,
			Detail:    o.Detail,
			Digest:    o.Digest,
		}
	}
	return v
}

// TraceEvent is a single entry in a session timeline: an edit or a pass.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Type   string         `json:"type"` // "edit" or "pass"
	Op     string         `json:"op,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Status string         `json:"status,omitempty"`
	Error  string         `json:"error,omitempty"`
	Pass   *PassView      `json:"pass,omitempty"`
}

// TraceResult holds the complete trace output for one session.
type TraceResult struct {
	Session  SessionView  `json:"session"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Edits      int  `json:"edits"`
	Rejected   int  `json:"rejected"`
	Passes     int  `json:"passes"`
	Incomplete int  `json:"incomplete"`
	IsComplete bool `json:"is_complete"` // last pass completed
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show what a session did",
		Long: `Show the recorded history of a session.

Without --session, lists the sessions in the database. With --session,
prints the session's timeline in seq order: every edit with its status,
and every pass with each processor's outcome (ran, skipped, or the reason
it was left pending).

Examples:
  spaghetti trace --db ./spaghetti.db
  spaghetti trace --db ./spaghetti.db --session 0190...
  spaghetti trace --db ./spaghetti.db --session 0190... --processor C
  spaghetti trace --db ./spaghetti.db --session 0190... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session token to trace")
	cmd.Flags().StringVar(&opts.Processor, "processor", "", "only show outcomes of this processor")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		return listSessions(ctx, st, formatter)
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	edits, err := st.ReadEdits(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read edits", err)
	}
	passes, err := st.ReadPasses(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read passes", err)
	}

	result := TraceResult{
		Session:  sessionView(sess),
		Timeline: buildTimeline(edits, passes, opts.Processor),
		Stats:    traceStats(edits, passes),
	}

	if opts.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result, Session: sess.Token})
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

func sessionView(s store.Session) SessionView {
	return SessionView{Token: s.Token, Graph: s.Graph, SpecHash: s.SpecHash, Engine: s.EngineVersion}
}

func listSessions(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}
	views := make([]SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = sessionView(s)
	}

	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: views})
	}
	if len(views) == 0 {
		fmt.Fprintln(formatter.Writer, "No sessions recorded.")
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%d session(s):\n", len(views))
	for _, v := range views {
		fmt.Fprintf(formatter.Writer, "  %s  %s  %s\n", v.Token, v.Graph, truncateID(v.SpecHash))
	}
	return nil
}

// buildTimeline merges edits and passes in seq order. When processor is
// set, pass outcomes are filtered to that processor.
func buildTimeline(edits []store.Edit, passes []store.Pass, processor string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(edits)+len(passes))
	for _, e := range edits {
		timeline = append(timeline, TraceEvent{
			Seq:    e.Seq,
			Type:   "edit",
			Op:     e.Op,
			Args:   irObjectToMap(e.Args),
			Status: string(e.Status),
			Error:  e.Error,
		})
	}
	for _, p := range passes {
		view := newPassView(p)
		if processor != "" {
			var kept []OutcomeView
			for _, o := range view.Processors {
				if o.Name == processor {
					kept = append(kept, o)
				}
			}
			view.Processors = kept
		}
		timeline = append(timeline, TraceEvent{Seq: p.Seq, Type: "pass", Pass: &view})
	}
	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].Seq < timeline[j].Seq })
	return timeline
}

func traceStats(edits []store.Edit, passes []store.Pass) TraceStats {
	stats := TraceStats{Edits: len(edits), Passes: len(passes)}
	for _, e := range edits {
		if e.Status == store.EditRejected {
			stats.Rejected++
		}
	}
	for _, p := range passes {
		if !p.Complete {
			stats.Incomplete++
		}
	}
	if n := len(passes); n > 0 {
		stats.IsComplete = passes[n-1].Complete
	}
	return stats
}

// irObjectToMap converts an ir.IRObject to a plain map.
func irObjectToMap(obj ir.IRObject) map[string]any {
	if obj == nil {
		return nil
	}
	result := make(map[string]any, len(obj))
	for k, v := range obj {
		result[k] = irValueToInterface(v)
	}
	return result
}

// irValueToInterface converts an ir.IRValue to a plain value.
func irValueToInterface(v ir.IRValue) any {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return int64(val)
	case ir.IRBool:
		return bool(val)
	case ir.IRArray:
		result := make([]any, len(val))
		for i, elem := range val {
			result[i] = irValueToInterface(elem)
		}
		return result
	case ir.IRObject:
		return irObjectToMap(val)
	default:
		return nil
	}
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session.Token)
	fmt.Fprintf(w, "Graph: %s\n", result.Session.Graph)
	fmt.Fprintf(w, "Status: %s\n", completeStatus(result.Stats))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Edits:      %d (%d rejected)\n", result.Stats.Edits, result.Stats.Rejected)
	fmt.Fprintf(w, "  Passes:     %d\n", result.Stats.Passes)
	fmt.Fprintf(w, "  Incomplete: %d\n", result.Stats.Incomplete)
	return nil
}

func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	switch event.Type {
	case "edit":
		fmt.Fprintf(w, "  [%d] EDIT %s %s: %s\n", event.Seq, event.Op, formatArgs(event.Args), event.Status)
		if event.Error != "" {
			fmt.Fprintf(w, "       %s\n", event.Error)
		}
	case "pass":
		fmt.Fprintf(w, "  [%d] ", event.Seq)
		writePassText(w, *event.Pass)
		if verbose {
			for _, o := range event.Pass.Processors {
				if o.Digest != "" {
					fmt.Fprintf(w, "       %s digest %s\n", o.Name, truncateID(o.Digest))
				}
			}
		}
	}
}

// writePassText prints a pass header and one line per processor outcome.
func writePassText(w io.Writer, p PassView) {
	status := "complete"
	if !p.Complete {
		status = "incomplete"
	}
	if p.Exhausted {
		status += ", wave limit hit"
	}
	fmt.Fprintf(w, "PASS frame %d: %s, %d wave(s)\n", p.Frame, status, p.Waves)
	for _, o := range p.Processors {
		if o.Detail != "" {
			fmt.Fprintf(w, "       %-12s %-14s %s\n", o.Name, o.Outcome, o.Detail)
			continue
		}
		fmt.Fprintf(w, "       %-12s %s\n", o.Name, o.Outcome)
	}
}

// formatArgs formats a map of args for display with sorted keys.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, nested structures
// included.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

func completeStatus(stats TraceStats) string {
	switch {
	case stats.Passes == 0:
		return "No passes"
	case stats.IsComplete:
		return "Complete"
	default:
		return "Incomplete (pending processors)"
	}
}
