package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/spaghetti/internal/compiler"
	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/engine"
	"github.com/roach88/spaghetti/internal/gpu/soft"
	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/store"
	"github.com/roach88/spaghetti/internal/testutil"
)

// Harness runs one scenario against a live engine.
type Harness struct {
	engine *engine.Engine
	store  *store.Store
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store on the software device, with
// a DeterministicClock and a fixed session token, so two runs of the same
// scenario produce identical traces.
//
// Execution flow:
//  1. Load the CUE graph and build it through the engine
//  2. Run each step: edits are queued and flushed at once, execute runs a pass
//  3. Evaluate assertions against the trace
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	spec, err := compiler.LoadGraph(scenario.Graph, scenario.GraphName)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}

	st, err := store.Open(store.Memory)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dev := soft.New()
	env := graph.Env{Device: dev, Queue: dev, Logger: logger}

	result := NewResult()
	eng, err := engine.New(spec, env,
		engine.WithStore(st),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithSessionGenerator(testutil.NewFixedSessionGenerator(scenario.Session)),
	)
	if eng == nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			result.BuildErrors = append(result.BuildErrors, e.Error())
		}
	} else if err != nil {
		result.BuildErrors = append(result.BuildErrors, err.Error())
	}

	h := &Harness{engine: eng, store: st, logger: logger}
	for i, step := range scenario.Steps {
		ev, err := h.step(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Trace = append(result.Trace, ev)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) step(ctx context.Context, i int, step Step) (TraceEvent, error) {
	if step.Execute {
		return h.pass(ctx, i)
	}

	var ed engine.Edit
	switch {
	case step.Link != nil:
		ed = engine.Link(step.Link.From, step.Link.To)
	case step.Unlink != "":
		ed = engine.Unlink(step.Unlink)
	case step.Set != nil && len(step.Set.Text) > 0:
		ed = engine.SetText(step.Set.To, step.Set.Text...)
	case step.Set != nil:
		ed = engine.Set(step.Set.To, step.Set.Value...)
	case step.Dirty != "":
		ed = engine.Dirty(step.Dirty)
	default:
		return TraceEvent{}, fmt.Errorf("empty step")
	}
	return h.edit(ctx, i, ed)
}

func (h *Harness) edit(ctx context.Context, i int, ed engine.Edit) (TraceEvent, error) {
	if !h.engine.Enqueue(ed) {
		return TraceEvent{}, fmt.Errorf("engine stopped")
	}
	results, err := h.engine.Flush(ctx)
	if err != nil {
		return TraceEvent{}, err
	}
	if len(results) != 1 {
		return TraceEvent{}, fmt.Errorf("flushed %d edits, want 1", len(results))
	}
	res := results[0]

	ev := TraceEvent{Step: i, Type: EventEdit, Seq: res.Seq, Edit: res.Edit.String(), Status: "applied"}
	if !res.Applied() {
		ev.Status = "rejected"
		ev.Error = res.Err.Error()
	}
	h.logger.Info("edit step", "step", i, "edit", ev.Edit, "status", ev.Status)
	return ev, nil
}

func (h *Harness) pass(ctx context.Context, i int) (TraceEvent, error) {
	report, err := h.engine.Step(ctx)
	if err != nil {
		return TraceEvent{}, err
	}

	names := h.engine.Names()
	ev := TraceEvent{
		Step:     i,
		Type:     EventPass,
		Seq:      h.passSeq(ctx),
		Frame:    h.engine.Frame(),
		Waves:    report.Waves,
		Complete: report.Complete(),
		Ran:      make([]string, len(report.Ran)),
		Skipped:  make([]string, len(report.Skipped)),
		Values:   h.values(),
	}
	for k, id := range report.Ran {
		ev.Ran[k] = names.Name(id)
	}
	for k, id := range report.Skipped {
		ev.Skipped[k] = names.Name(id)
	}
	for _, p := range report.Pending {
		ev.Pending = append(ev.Pending, PendingEvent{
			Processor: names.Name(p.Processor),
			Reason:    string(p.Reason),
			Detail:    p.Detail,
		})
	}
	h.logger.Info("execute step", "step", i, "frame", ev.Frame, "ran", len(ev.Ran), "pending", len(ev.Pending))
	return ev, nil
}

// passSeq reads back the seq the engine logged for its latest pass.
func (h *Harness) passSeq(ctx context.Context) int64 {
	p, err := h.store.ReadPass(ctx, h.engine.Session(), h.engine.Frame())
	if err != nil {
		return 0
	}
	return p.Seq
}

// values snapshots every value and text output in the graph, keyed
// "processor.output". Image and buffer outputs are left out.
func (h *Harness) values() map[string][]string {
	names := h.engine.Names()
	out := make(map[string][]string)
	for _, name := range names.All() {
		p, _, err := names.Processor(name)
		if err != nil {
			continue
		}
		for _, d := range p.Outputs() {
			if d == nil {
				continue
			}
			if elems, ok := elements(d); ok {
				out[name+"."+d.Name] = elems
			}
		}
	}
	return out
}

// elements flattens a host payload element-major.
func elements(d *data.Data) ([]string, bool) {
	var out []string
	switch v := d.Payload.(type) {
	case data.Floats:
		for _, row := range v {
			for _, x := range row {
				out = append(out, formatFloat32(x))
			}
		}
	case data.SInts:
		for _, row := range v {
			for _, x := range row {
				out = append(out, strconv.FormatInt(int64(x), 10))
			}
		}
	case data.UInts:
		for _, row := range v {
			for _, x := range row {
				out = append(out, strconv.FormatUint(uint64(x), 10))
			}
		}
	case data.Texts:
		out = append(out, v...)
	default:
		return nil, false
	}
	return out, true
}
