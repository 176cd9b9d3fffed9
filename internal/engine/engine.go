package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/ir"
	"github.com/roach88/spaghetti/internal/store"
)

// SeqClock stamps edits and passes with strictly increasing logical seq
// numbers. Implemented by Clock and testutil.DeterministicClock.
type SeqClock interface {
	Next() int64
	Current() int64
}

// Engine is the host loop around one live graph.
//
// The engine drains queued edits, runs one Execute pass per frame and
// records both in the store when one is attached.
//
// Thread-safety model:
//   - Enqueue(), Stop(): safe from any goroutine
//   - Step(), Flush(), Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - Edits are applied between passes, never during Execute
//   - Every edit and every pass gets a distinct seq from the clock, in the
//     order they took effect
type Engine struct {
	spec     *ir.GraphSpec
	specHash string

	reg   *graph.Registry
	graph *graph.Graph
	names *Names
	lib   Library

	queue    *editQueue
	clock    SeqClock
	store    *store.Store
	sessions SessionGenerator
	session  string

	maxFrames int64
	interval  time.Duration
	waveLimit int

	frame       atomic.Int64 // read by Frame from any goroutine
	sessionSeen bool

	stopOnce sync.Once
	done     chan struct{}
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxFrames makes Run return after n passes. Zero means no limit.
func WithMaxFrames(n int64) EngineOption {
	return func(e *Engine) { e.maxFrames = n }
}

// WithFrameInterval makes Run tick a pass every d. With zero, Run passes
// once at start and then once per batch of enqueued edits.
func WithFrameInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.interval = d }
}

// WithWaveLimit caps the scheduler waves of every pass.
func WithWaveLimit(n int) EngineOption {
	return func(e *Engine) { e.waveLimit = n }
}

// WithStore records sessions, edits and passes in s.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) { e.store = s }
}

// WithSessionGenerator overrides the UUIDv7 session tokens.
func WithSessionGenerator(g SessionGenerator) EngineOption {
	return func(e *Engine) { e.sessions = g }
}

// WithBuiltins adds builtins to the default library, replacing any of the
// same name.
func WithBuiltins(lib Library) EngineOption {
	return func(e *Engine) { e.lib = e.lib.With(lib) }
}

// WithClock replaces the logical clock. Used for replay and tests.
func WithClock(c SeqClock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// New builds spec into a fresh registry and returns an engine around it.
//
// Build failures (rejected links, bad processors) are returned as one
// multierror, but the engine is still returned and usable: it holds
// everything that did build, and rejected links show up in its passes.
// Only a nil definition yields a nil engine.
func New(spec *ir.GraphSpec, env graph.Env, opts ...EngineOption) (*Engine, error) {
	if spec == nil {
		return nil, errors.New("engine: nil graph definition")
	}
	hash, err := ir.SpecHash(spec)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		spec:     spec,
		specHash: hash,
		lib:      DefaultLibrary(),
		queue:    newEditQueue(),
		clock:    NewClock(),
		sessions: UUIDv7Generator{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.session = e.sessions.Generate()

	e.reg = graph.NewRegistry(env)
	var gopts []graph.Option
	if e.waveLimit > 0 {
		gopts = append(gopts, graph.WithWaveLimit(e.waveLimit))
	}
	e.graph, e.names, err = Build(spec, e.reg, e.lib, gopts...)
	if err != nil {
		slog.Warn("graph built with errors",
			"graph", spec.Name,
			"session", e.session,
			"error", err,
		)
	}
	return e, err
}

// Enqueue submits an edit for the next Flush.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ed Edit) bool {
	return e.queue.Enqueue(ed)
}

// Session returns the session token.
func (e *Engine) Session() string { return e.session }

// SpecHash returns the digest of the graph definition.
func (e *Engine) SpecHash() string { return e.specHash }

// Graph returns the live root graph.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Names returns the name table of the live graph.
func (e *Engine) Names() *Names { return e.names }

// Frame returns the number of passes run so far.
func (e *Engine) Frame() int64 { return e.frame.Load() }

// Pending returns the number of queued edits.
func (e *Engine) Pending() int { return e.queue.Len() }

// Flush applies every queued edit, in enqueue order.
//
// A failed edit is logged, recorded as rejected and skipped; the rest still
// apply. The returned error is reserved for store failures.
func (e *Engine) Flush(ctx context.Context) ([]EditResult, error) {
	edits := e.queue.Drain()
	if len(edits) == 0 {
		return nil, nil
	}
	if err := e.ensureSession(ctx); err != nil {
		return nil, err
	}

	results := make([]EditResult, 0, len(edits))
	for _, ed := range edits {
		seq := e.clock.Next()
		linkID, err := e.apply(ed)
		res := EditResult{Seq: seq, Edit: ed, LinkID: linkID, Err: err}
		if err != nil {
			slog.Warn("edit rejected",
				"session", e.session,
				"seq", seq,
				"edit", ed.String(),
				"error", err,
			)
		} else {
			slog.Debug("edit applied",
				"session", e.session,
				"seq", seq,
				"edit", ed.String(),
			)
		}
		if err := e.persistEdit(ctx, res); err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Step runs one frame: flush queued edits, execute one pass, record it.
//
// Processor failures and pending processors are part of the report, not
// errors. The returned error is reserved for cancellation and store
// failures.
func (e *Engine) Step(ctx context.Context) (graph.Report, error) {
	if err := ctx.Err(); err != nil {
		return graph.Report{}, err
	}
	if err := e.ensureSession(ctx); err != nil {
		return graph.Report{}, err
	}
	if _, err := e.Flush(ctx); err != nil {
		return graph.Report{}, err
	}

	frame := e.frame.Add(1)
	seq := e.clock.Next()
	report := e.graph.Execute()

	if report.Complete() {
		slog.Debug("pass complete",
			"session", e.session,
			"frame", frame,
			"ran", len(report.Ran),
			"skipped", len(report.Skipped),
			"waves", report.Waves,
		)
	} else {
		slog.Warn("pass incomplete",
			"session", e.session,
			"frame", frame,
			"pending", len(report.Pending),
			"exhausted", report.Exhausted,
			"error", report.Err(),
		)
	}

	if err := e.persistPass(ctx, seq, report); err != nil {
		return report, err
	}
	return report, nil
}

// Run steps frames until ctx is cancelled, Stop is called or the frame
// limit is reached.
// Must be called from exactly ONE goroutine.
//
// The first pass runs immediately. After that, with a frame interval Run
// passes on every tick; without one it passes whenever edits arrive.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"graph", e.spec.Name,
		"session", e.session,
		"interval", e.interval,
		"max_frames", e.maxFrames,
	)

	var tick <-chan time.Time
	if e.interval > 0 {
		t := time.NewTicker(e.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		if e.maxFrames > 0 && e.frame.Load() >= e.maxFrames {
			slog.Info("engine stopping: frame limit", "frames", e.frame.Load())
			return nil
		}
		if e.interval == 0 {
			// Consume a signal for edits this Step is about to flush.
			select {
			case <-e.queue.Wait():
			default:
			}
		}
		if _, err := e.Step(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("engine stopping: context cancelled")
				return ctx.Err()
			}
			return err
		}
		if e.maxFrames > 0 && e.frame.Load() >= e.maxFrames {
			slog.Info("engine stopping: frame limit", "frames", e.frame.Load())
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			return ctx.Err()
		case <-e.done:
			slog.Info("engine stopping: stopped")
			return nil
		case <-tick:
		case <-e.editSignal():
			if e.stopped() {
				slog.Info("engine stopping: stopped")
				return nil
			}
		}
	}
}

// editSignal is the queue's signal when Run is edit-driven, and nil (never
// ready) when a frame interval drives it.
func (e *Engine) editSignal() <-chan struct{} {
	if e.interval > 0 {
		return nil
	}
	return e.queue.Wait()
}

// Stop makes Run return after its current frame. Further edits are refused.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.queue.Close()
	})
}

func (e *Engine) stopped() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// ensureSession records the session the first time it is needed.
func (e *Engine) ensureSession(ctx context.Context) error {
	if e.store == nil || e.sessionSeen {
		return nil
	}
	err := e.store.WriteSession(ctx, store.Session{
		Token:         e.session,
		Graph:         e.spec.Name,
		SpecHash:      e.specHash,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	})
	if err != nil {
		return fmt.Errorf("write session %s: %w", e.session, err)
	}
	e.sessionSeen = true
	return nil
}

func (e *Engine) persistEdit(ctx context.Context, res EditResult) error {
	if e.store == nil {
		return nil
	}
	rec := store.Edit{
		Session: e.session,
		Seq:     res.Seq,
		Op:      string(res.Edit.Op),
		Args:    res.Edit.Args(),
		Status:  store.EditApplied,
		LinkID:  uint64(res.LinkID),
	}
	if res.Err != nil {
		rec.Status = store.EditRejected
		rec.Error = res.Err.Error()
	}
	if err := e.store.WriteEdit(ctx, rec); err != nil {
		return fmt.Errorf("write edit seq %d: %w", res.Seq, err)
	}
	return nil
}

func (e *Engine) persistPass(ctx context.Context, seq int64, report graph.Report) error {
	if e.store == nil {
		return nil
	}
	pass := store.Pass{
		Session:    e.session,
		Frame:      e.frame.Load(),
		Seq:        seq,
		Waves:      report.Waves,
		Complete:   report.Complete(),
		Exhausted:  report.Exhausted,
		Processors: e.outcomes(report),
	}
	if _, err := e.store.WritePass(ctx, pass); err != nil {
		return fmt.Errorf("write pass frame %d: %w", e.frame.Load(), err)
	}
	return nil
}

// outcomes lists every named processor with its result in report, in name
// table order.
func (e *Engine) outcomes(report graph.Report) []store.ProcessorOutcome {
	details := make(map[graph.ProcessorID]string, len(report.Pending))
	for _, n := range report.Pending {
		details[n.Processor] = n.Detail
	}

	var out []store.ProcessorOutcome
	for _, name := range e.names.All() {
		p, g, err := e.names.Processor(name)
		if err != nil {
			continue
		}
		outcome := report.Outcome(p.ID())
		if outcome == "" && g != e.graph {
			// Group members run inside their group's Process.
			outcome = "inner"
		}
		out = append(out, store.ProcessorOutcome{
			Processor: p.ID().String(),
			Name:      name,
			Outcome:   outcome,
			Detail:    details[p.ID()],
			Digest:    outputDigest(p),
		})
	}
	return out
}

// outputDigest joins the digests of p's outputs. Missing outputs are "-".
func outputDigest(p *graph.Processor) string {
	outs := p.Outputs()
	parts := make([]string, len(outs))
	for i, d := range outs {
		parts[i] = "-"
		if d == nil {
			continue
		}
		if digest, err := ir.DataDigest(d); err == nil {
			parts[i] = digest
		}
	}
	return strings.Join(parts, ",")
}
