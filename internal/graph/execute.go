package graph

import (
	"fmt"

	"github.com/roach88/spaghetti/internal/scc"
)

// pass is the state of one Execute call.
type pass struct {
	g         *Graph
	done      map[ProcessorID]struct{}
	attempted map[ProcessorID]struct{}
	ready     map[ProcessorID]struct{}
	backlog   map[ProcessorID]struct{}
	report    Report
}

// Execute runs one scheduler pass.
//
// Roots run first. Each processor that completes unblocks its consumers; a
// consumer is ready once every linked producer has completed. Ready
// processors run wave by wave. A processor runs at most once per call, and
// a clean one completes without recomputing. Processors that cannot run are
// deferred with their dirty flag intact. The pass stops when nothing is
// ready or waiting, when a wave makes no progress, or when the wave budget
// runs out. Every member left incomplete is listed in Report.Pending.
func (g *Graph) Execute() Report {
	x := &pass{
		g:         g,
		done:      make(map[ProcessorID]struct{}),
		attempted: make(map[ProcessorID]struct{}),
		ready:     make(map[ProcessorID]struct{}),
		backlog:   make(map[ProcessorID]struct{}),
		report: Report{
			Deferred: make(map[ProcessorID]Reason),
			Failed:   make(map[ProcessorID]error),
		},
	}

	for _, id := range g.Roots() {
		x.run(id)
	}

	limit := len(g.members)
	if g.maxWaves > 0 && g.maxWaves < limit+1 {
		limit = g.maxWaves - 1
	}
	budget := newWaveBudget(limit)
	for len(x.ready) > 0 || len(x.backlog) > 0 {
		if !budget.next() {
			x.report.Exhausted = true
			g.log.Warn("wave budget exhausted", "waves", budget.used(), "backlog", len(x.backlog))
			break
		}
		wave := sortedIDs(x.ready)
		prev := sortedIDs(x.backlog)
		clear(x.ready)
		clear(x.backlog)

		for _, id := range wave {
			x.run(id)
		}
		for _, id := range prev {
			x.dispatch(id)
		}
		if len(wave) == 0 && len(x.ready) == 0 {
			break
		}
	}
	x.report.Waves = budget.used()

	x.diagnose()
	return x.report
}

// run attempts one processor.
func (x *pass) run(id ProcessorID) {
	if _, ok := x.attempted[id]; ok {
		return
	}
	x.attempted[id] = struct{}{}

	p, ok := x.g.reg.Get(id)
	if !ok {
		x.g.log.Warn("scheduled processor missing", "processor", id)
		return
	}

	if err := x.refresh(p); err != nil {
		x.report.Deferred[id] = ReasonTypeMismatch
		x.g.log.Debug("processor deferred", "processor", id, "reason", ReasonTypeMismatch, "error", err)
		return
	}
	if !p.CanProcess() {
		reason := x.g.notReadyReason(p)
		x.report.Deferred[id] = reason
		x.g.log.Debug("processor deferred", "processor", id, "reason", reason)
		return
	}

	if p.NeedsUpdate() {
		if err := p.Process(); err != nil {
			p.dirty = true
			x.report.Failed[id] = processFailed(id, err)
			x.g.log.Error("process failed", "processor", id, "name", p.Name(), "error", err)
			return
		}
		x.report.Ran = append(x.report.Ran, id)
	} else {
		x.report.Skipped = append(x.report.Skipped, id)
	}
	x.done[id] = struct{}{}

	for _, c := range p.consumers() {
		x.dispatch(c)
	}
}

// refresh rebuilds converted caches whose producer moved on since the cache
// was built.
func (x *pass) refresh(p *Processor) error {
	for _, in := range p.inputs {
		if !in.stale(x.g.reg) {
			continue
		}
		if err := in.SetupLink(x.g.reg); err != nil {
			return fmt.Errorf("input %q: %w", in.Name, err)
		}
	}
	return nil
}

// dispatch files a consumer under ready or backlog.
func (x *pass) dispatch(id ProcessorID) {
	if _, ok := x.attempted[id]; ok {
		return
	}
	if _, ok := x.g.members[id]; !ok {
		return
	}
	if x.isReady(id) {
		x.ready[id] = struct{}{}
		delete(x.backlog, id)
		return
	}
	x.backlog[id] = struct{}{}
}

// isReady reports whether every linked producer of id has completed.
// Unlinked inputs, and links to producers that no longer exist, never block.
func (x *pass) isReady(id ProcessorID) bool {
	p, ok := x.g.reg.Get(id)
	if !ok {
		return false
	}
	for _, in := range p.inputs {
		if !in.Link.Linked() {
			continue
		}
		if _, live := x.g.reg.Get(in.Link.Processor); !live {
			continue
		}
		if _, ok := x.done[in.Link.Processor]; !ok {
			return false
		}
	}
	return true
}

// notReadyReason tells a rejected-by-type input apart from one that simply
// has no data.
func (g *Graph) notReadyReason(p *Processor) Reason {
	for i, in := range p.inputs {
		if in.GetInputData(g.reg) != nil {
			continue
		}
		if !in.Link.Linked() && g.rejected[DataAddress{p.id, i}] != nil {
			return ReasonTypeMismatch
		}
		if _, out, ok := in.producer(g.reg); ok && out.Signature != in.Signature {
			return ReasonTypeMismatch
		}
	}
	return ReasonNotReady
}

// diagnose explains every member that did not complete.
func (x *pass) diagnose() {
	pending := make(map[ProcessorID]struct{})
	for id := range x.g.members {
		if _, ok := x.done[id]; !ok {
			pending[id] = struct{}{}
		}
	}
	if len(pending) == 0 {
		return
	}
	order := sortedIDs(pending)

	// Links among pending processors only.
	deps := make(scc.Graph[ProcessorID], len(order))
	for _, id := range order {
		p, ok := x.g.reg.Get(id)
		if !ok {
			continue
		}
		for _, c := range p.consumers() {
			if _, ok := pending[c]; ok {
				deps[id] = append(deps[id], c)
			}
		}
	}
	cycles := make(map[ProcessorID][]ProcessorID)
	for _, comp := range scc.Cycles(deps, order) {
		members := sortedIDs(setOf(comp))
		path := scc.Path(deps, members)
		for _, id := range comp {
			cycles[id] = path
		}
	}

	for _, id := range order {
		node := PendingNode{Processor: id}
		switch {
		case x.report.Failed[id] != nil:
			node.Reason = ReasonFailed
			node.Detail = x.report.Failed[id].Error()
		case x.report.Deferred[id] != "":
			node.Reason = x.report.Deferred[id]
			node.Detail = x.g.deferDetail(id)
		case cycles[id] != nil:
			node.Reason = ReasonCycle
			node.Cycle = cycles[id]
			node.Detail = formatPath(cycles[id])
		default:
			node.Reason = ReasonUpstream
			node.Detail = x.blockers(id)
		}
		x.report.Pending = append(x.report.Pending, node)
	}
}

func (g *Graph) deferDetail(id ProcessorID) string {
	p, ok := g.reg.Get(id)
	if !ok {
		return ""
	}
	for i, in := range p.inputs {
		if err := g.rejected[DataAddress{id, i}]; err != nil && !in.Link.Linked() {
			return fmt.Sprintf("input %q: %v", in.Name, err)
		}
		if in.GetInputData(g.reg) == nil {
			return fmt.Sprintf("input %q has no data", in.Name)
		}
	}
	return ""
}

func (x *pass) blockers(id ProcessorID) string {
	p, ok := x.g.reg.Get(id)
	if !ok {
		return ""
	}
	for _, in := range p.inputs {
		if !in.Link.Linked() {
			continue
		}
		if _, ok := x.done[in.Link.Processor]; !ok {
			return fmt.Sprintf("waiting on %s", in.Link.Processor)
		}
	}
	return ""
}

func setOf(ids []ProcessorID) map[ProcessorID]struct{} {
	s := make(map[ProcessorID]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func formatPath(path []ProcessorID) string {
	var s string
	for i, id := range path {
		if i > 0 {
			s += " -> "
		}
		s += id.String()
	}
	return s
}
