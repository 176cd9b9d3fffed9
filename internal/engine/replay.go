package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/ir"
	"github.com/roach88/spaghetti/internal/store"
)

// ReplayResult summarizes a replayed session.
type ReplayResult struct {
	Session string
	Frames  int
	Edits   int
}

// Replay rebuilds a recorded session from its definition and re-runs it.
//
// Recorded edits are re-applied in seq order, each before the first pass
// that followed it, and every pass is compared with the recorded one:
// completeness, then per processor the outcome and output digest. Rejected
// edits are replayed too and must be rejected again.
//
// The replay runs on a fresh registry in env and writes nothing to st.
// Differences are collected into one multierror of REPLAY_MISMATCH errors.
func Replay(ctx context.Context, spec *ir.GraphSpec, env graph.Env, st *store.Store, session string, opts ...EngineOption) (ReplayResult, error) {
	res := ReplayResult{Session: session}

	sess, err := st.ReadSession(ctx, session)
	if errors.Is(err, sql.ErrNoRows) {
		return res, fmt.Errorf("session %s not found", session)
	}
	if err != nil {
		return res, err
	}
	hash, err := ir.SpecHash(spec)
	if err != nil {
		return res, err
	}
	if hash != sess.SpecHash {
		return res, NewSpecChanged(session, sess.SpecHash, hash)
	}

	edits, err := st.ReadEdits(ctx, session)
	if err != nil {
		return res, err
	}
	passes, err := st.ReadPasses(ctx, session)
	if err != nil {
		return res, err
	}

	opts = append(opts, WithSessionGenerator(NewFixedGenerator(session)), WithStore(nil), WithClock(NewClock()))
	e, err := New(spec, env, opts...)
	if e == nil {
		return res, err
	}

	var errs *multierror.Error
	next := 0
	for _, pass := range passes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for next < len(edits) && edits[next].Seq < pass.Seq {
			if err := e.replayEdit(ctx, edits[next]); err != nil {
				errs = multierror.Append(errs, err)
			}
			next++
			res.Edits++
		}
		report, err := e.Step(ctx)
		if err != nil {
			return res, err
		}
		res.Frames++
		for _, err := range e.compare(pass, report) {
			errs = multierror.Append(errs, err)
		}
	}

	slog.Info("replay finished",
		"session", session,
		"frames", res.Frames,
		"edits", res.Edits,
		"mismatched", errs != nil,
	)
	return res, errs.ErrorOrNil()
}

// replayEdit re-applies one logged edit and checks it lands the same way.
func (e *Engine) replayEdit(ctx context.Context, rec store.Edit) error {
	ed, err := ParseEdit(rec.Op, rec.Args)
	if err != nil {
		return NewReplayMismatch(e.session, e.frame.Load(), fmt.Sprintf("edit seq %d: %v", rec.Seq, err))
	}
	e.Enqueue(ed)
	results, err := e.Flush(ctx)
	if err != nil {
		return err
	}
	r := results[0]
	if r.Seq != rec.Seq {
		return NewReplayMismatch(e.session, e.frame.Load(), fmt.Sprintf("edit %s: seq %d, recorded %d", ed, r.Seq, rec.Seq))
	}
	applied := rec.Status == store.EditApplied
	if r.Applied() != applied {
		return NewReplayMismatch(e.session, e.frame.Load(), fmt.Sprintf("edit seq %d (%s): applied=%t, recorded %s", rec.Seq, ed, r.Applied(), rec.Status))
	}
	return nil
}

// compare checks a replayed pass against the recorded one.
func (e *Engine) compare(rec store.Pass, report graph.Report) []error {
	var errs []error
	mismatch := func(format string, args ...any) {
		errs = append(errs, NewReplayMismatch(e.session, rec.Frame, fmt.Sprintf(format, args...)))
	}

	if report.Complete() != rec.Complete {
		mismatch("complete=%t, recorded %t", report.Complete(), rec.Complete)
	}
	got := make(map[string]store.ProcessorOutcome)
	for _, o := range e.outcomes(report) {
		got[o.Name] = o
	}
	for _, want := range rec.Processors {
		o, ok := got[want.Name]
		switch {
		case !ok:
			mismatch("processor %s missing", want.Name)
		case o.Outcome != want.Outcome:
			mismatch("processor %s: %s, recorded %s", want.Name, o.Outcome, want.Outcome)
		case o.Digest != want.Digest:
			mismatch("processor %s: output digest differs", want.Name)
		}
	}
	return errs
}
