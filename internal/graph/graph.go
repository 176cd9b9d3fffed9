// Package graph implements processors, links and the wave scheduler of the
// dataflow engine.
//
// A Graph owns a link table and a set of member processors living in a
// shared Registry. Editing operations (CreateLink, RemoveLink, Destroy and
// the slot editors) validate everything up front and reject bad edits
// without partial state. Execute runs every processor that needs updating,
// in dependency order, at most once per call.
//
// Nothing in this package locks. Edits and Execute must be serialized by the
// host; internal/engine does that with an edit queue drained between frames.
package graph

import (
	"errors"
	"log/slog"
	"slices"
)

// Graph is a set of processors and the links between them.
type Graph struct {
	reg      *Registry
	log      *slog.Logger
	members  map[ProcessorID]struct{}
	roots    map[ProcessorID]struct{}
	links    map[LinkID]Link
	byInput  map[DataAddress]LinkID
	rejected map[DataAddress]error
	nextLink LinkID
	maxWaves int
	owner    ProcessorID
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger overrides the registry's logger for this graph.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.log = l }
}

// WithWaveLimit caps the number of waves per pass below the default of
// members+1.
func WithWaveLimit(n int) Option {
	return func(g *Graph) { g.maxWaves = n }
}

// New creates an empty graph over reg.
func New(reg *Registry, opts ...Option) *Graph {
	g := &Graph{
		reg:      reg,
		log:      reg.logger(),
		members:  make(map[ProcessorID]struct{}),
		roots:    make(map[ProcessorID]struct{}),
		links:    make(map[LinkID]Link),
		byInput:  make(map[DataAddress]LinkID),
		rejected: make(map[DataAddress]error),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the registry the graph's processors live in.
func (g *Graph) Registry() *Registry { return g.reg }

// Add creates a processor in the registry and makes it a member and a root.
// Adding a group makes the new processor the owner of the group's nested
// graph.
func (g *Graph) Add(kind Kind, opts ...ProcessorOption) ProcessorID {
	p := g.reg.Create(kind, opts...)
	p.owner = g.owner
	g.members[p.id] = struct{}{}
	g.roots[p.id] = struct{}{}
	if grp, ok := kind.(*Group); ok && grp.Graph != nil {
		grp.Graph.adopt(p.id)
	}
	return p.id
}

// adopt records owner as the group processor running g.
func (g *Graph) adopt(owner ProcessorID) {
	g.owner = owner
	for id := range g.members {
		if p, ok := g.reg.Get(id); ok {
			p.owner = owner
		}
	}
}

// Owner returns the group processor running g, or Unlinked for a top-level
// graph.
func (g *Graph) Owner() ProcessorID { return g.owner }

// Get resolves a member processor.
func (g *Graph) Get(id ProcessorID) (*Processor, bool) {
	if _, ok := g.members[id]; !ok {
		return nil, false
	}
	return g.reg.Get(id)
}

// Destroy removes every link touching id, then the processor itself.
// Destroying a group destroys its nested members too.
func (g *Graph) Destroy(id ProcessorID) bool {
	p, ok := g.Get(id)
	if !ok {
		return false
	}
	for _, l := range g.Links() {
		if l.Producer.Processor == id || l.Consumer.Processor == id {
			g.RemoveLink(l.ID)
		}
	}
	if grp, ok := p.kind.(*Group); ok && grp.Graph != nil {
		for _, inner := range grp.Graph.Members() {
			grp.Graph.Destroy(inner)
		}
	}
	for addr := range g.rejected {
		if addr.Processor == id {
			delete(g.rejected, addr)
		}
	}
	delete(g.members, id)
	delete(g.roots, id)
	return g.reg.Destroy(id)
}

// CreateLink binds producer's output slot to consumer's input slot.
//
// Both processors must be live members and both slots must exist. The link
// must pass data.CanLink and, when the signatures differ, an initial
// conversion. A rejected link leaves no state behind except the rejection,
// which Execute reports against the consumer. Linking an input that is
// already linked replaces its previous link.
func (g *Graph) CreateLink(producer, consumer DataAddress) (LinkID, error) {
	prod, err := g.member(producer.Processor)
	if err != nil {
		return 0, err
	}
	cons, err := g.member(consumer.Processor)
	if err != nil {
		return 0, err
	}
	if _, ok := prod.Output(producer.Index); !ok {
		return 0, unknownSlot(prod.id, "output", producer.Index, len(prod.outputs))
	}
	in, ok := cons.Input(consumer.Index)
	if !ok {
		return 0, unknownSlot(cons.id, "input", consumer.Index, len(cons.inputs))
	}

	candidate := &Input{Name: in.Name, Signature: in.Signature, Link: producer}
	if err := candidate.SetupLink(g.reg); err != nil {
		g.log.Debug("link rejected", "producer", producer, "consumer", consumer, "error", err)
		var ge *Error
		if errors.As(err, &ge) {
			return 0, ge
		}
		g.rejected[consumer] = err
		return 0, typeMismatch(cons.id, err)
	}

	if old, ok := g.byInput[consumer]; ok {
		g.RemoveLink(old)
	}

	_ = cons.AddInputLink(consumer.Index, producer)
	in.converted, in.convertedRev = candidate.converted, candidate.convertedRev
	_ = prod.AddOutputLink(producer.Index, consumer)

	g.nextLink++
	id := g.nextLink
	g.links[id] = Link{ID: id, Producer: producer, Consumer: consumer}
	g.byInput[consumer] = id
	delete(g.rejected, consumer)
	delete(g.roots, cons.id)
	return id, nil
}

// RemoveLink deletes a link. Unknown ids are a no-op and return false.
func (g *Graph) RemoveLink(id LinkID) bool {
	l, ok := g.links[id]
	if !ok {
		return false
	}
	if cons, ok := g.reg.Get(l.Consumer.Processor); ok {
		cons.removeInputLink(l.Consumer.Index)
		if !cons.HasLinkedInputs() {
			if _, member := g.members[cons.id]; member {
				g.roots[cons.id] = struct{}{}
			}
		}
	} else {
		g.log.Warn("remove link: consumer missing", "link", id, "consumer", l.Consumer.Processor)
	}
	if prod, ok := g.reg.Get(l.Producer.Processor); ok {
		prod.removeOutputLink(l.Producer.Index, l.Consumer)
	} else {
		g.log.Warn("remove link: producer missing", "link", id, "producer", l.Producer.Processor)
	}
	delete(g.links, id)
	delete(g.byInput, l.Consumer)
	return true
}

// RemoveInput deletes input slot i of pid along with its link. Links into
// higher slots shift down by one.
func (g *Graph) RemoveInput(pid ProcessorID, i int) error {
	p, err := g.member(pid)
	if err != nil {
		return err
	}
	in, ok := p.Input(i)
	if !ok {
		return unknownSlot(pid, "input", i, len(p.inputs))
	}
	if id, ok := g.byInput[DataAddress{pid, i}]; ok {
		g.RemoveLink(id)
	}
	delete(g.rejected, DataAddress{pid, i})

	in.release()
	p.inputs = slices.Delete(p.inputs, i, i+1)
	g.remapInputs(p, removedSlot(i))

	if !p.HasLinkedInputs() {
		g.roots[pid] = struct{}{}
	}
	return nil
}

// MoveInput moves input slot from of pid to index to. Slots in between
// shift by one and every link follows the slot it was bound to.
func (g *Graph) MoveInput(pid ProcessorID, from, to int) error {
	p, err := g.member(pid)
	if err != nil {
		return err
	}
	in, ok := p.Input(from)
	if !ok {
		return unknownSlot(pid, "input", from, len(p.inputs))
	}
	if _, ok := p.Input(to); !ok {
		return unknownSlot(pid, "input", to, len(p.inputs))
	}
	if from == to {
		return nil
	}
	p.inputs = slices.Insert(slices.Delete(p.inputs, from, from+1), to, in)
	g.remapInputs(p, movedSlot(from, to))
	return nil
}

// remapInputs moves the links, rejections and group ports addressing the
// inputs of p after its input slice was rearranged, then runs the hooks.
func (g *Graph) remapInputs(p *Processor, moved slotMap) {
	remap := func(a DataAddress) DataAddress {
		if a.Processor != p.id {
			return a
		}
		n, ok := moved(a.Index)
		if !ok {
			return a
		}
		return DataAddress{p.id, n}
	}

	producers := make(map[ProcessorID]struct{})
	var shifted []Link
	for _, l := range g.Links() {
		if l.Consumer.Processor != p.id {
			continue
		}
		producers[l.Producer.Processor] = struct{}{}
		delete(g.byInput, l.Consumer)
		l.Consumer = remap(l.Consumer)
		shifted = append(shifted, l)
	}
	for _, l := range shifted {
		g.links[l.ID] = l
		g.byInput[l.Consumer] = l.ID
	}
	for id := range producers {
		prod, ok := g.reg.Get(id)
		if !ok {
			continue
		}
		for _, consumers := range prod.outputLinks {
			for k := range consumers {
				consumers[k] = remap(consumers[k])
			}
		}
	}

	rejected := make(map[DataAddress]error)
	for addr, err := range g.rejected {
		if addr.Processor == p.id {
			delete(g.rejected, addr)
			rejected[remap(addr)] = err
		}
	}
	for addr, err := range rejected {
		g.rejected[addr] = err
	}

	if grp := g.ownerGroup(); grp != nil {
		grp.innerInputsMoved(p.id, moved)
	}
	p.inputsChanged(moved)
}

// RemoveOutput deletes output slot o of pid along with every link reading
// it. Links from higher slots shift down by one.
func (g *Graph) RemoveOutput(pid ProcessorID, o int) error {
	p, err := g.member(pid)
	if err != nil {
		return err
	}
	out, ok := p.Output(o)
	if !ok {
		return unknownSlot(pid, "output", o, len(p.outputs))
	}
	for _, l := range g.Links() {
		if l.Producer.Processor == pid && l.Producer.Index == o {
			g.RemoveLink(l.ID)
		}
	}

	out.Release()
	p.outputs = slices.Delete(p.outputs, o, o+1)
	g.remapOutputs(p, removedSlot(o))
	return nil
}

// MoveOutput moves output slot from of pid to index to. Slots in between
// shift by one and every link keeps reading the data it read before.
func (g *Graph) MoveOutput(pid ProcessorID, from, to int) error {
	p, err := g.member(pid)
	if err != nil {
		return err
	}
	out, ok := p.Output(from)
	if !ok {
		return unknownSlot(pid, "output", from, len(p.outputs))
	}
	if _, ok := p.Output(to); !ok {
		return unknownSlot(pid, "output", to, len(p.outputs))
	}
	if from == to {
		return nil
	}
	p.outputs = slices.Insert(slices.Delete(p.outputs, from, from+1), to, out)
	g.remapOutputs(p, movedSlot(from, to))
	return nil
}

// remapOutputs moves the links and group ports addressing the outputs of p
// after its output slice was rearranged, then runs the hooks.
func (g *Graph) remapOutputs(p *Processor, moved slotMap) {
	shifted := make(map[int][]DataAddress, len(p.outputLinks))
	for k, consumers := range p.outputLinks {
		if n, ok := moved(k); ok {
			shifted[n] = consumers
		}
	}
	p.outputLinks = shifted

	for _, l := range g.Links() {
		if l.Producer.Processor != p.id {
			continue
		}
		n, ok := moved(l.Producer.Index)
		if !ok || n == l.Producer.Index {
			continue
		}
		l.Producer.Index = n
		g.links[l.ID] = l
		if cons, ok := g.reg.Get(l.Consumer.Processor); ok {
			if in, ok := cons.Input(l.Consumer.Index); ok {
				in.Link = l.Producer
				in.clearCache()
			}
		}
	}

	if grp := g.ownerGroup(); grp != nil {
		grp.innerOutputsMoved(p.id, moved)
	}
	p.revision++
	p.outputsChanged(moved)
}

// ownerGroup returns the group kind whose nested graph g is, if any.
func (g *Graph) ownerGroup() *Group {
	if g.owner == Unlinked {
		return nil
	}
	owner, ok := g.reg.Get(g.owner)
	if !ok {
		return nil
	}
	grp, _ := owner.kind.(*Group)
	return grp
}

// Swap replaces the kind of processor id in place. The id, slots and links
// survive, and the processor and its consumers rerun on the next pass. The
// nested members of a replaced group are destroyed.
func (g *Graph) Swap(id ProcessorID, kind Kind) error {
	p, err := g.member(id)
	if err != nil {
		return err
	}
	if kind == nil {
		return &Error{Code: CodeUnknownReference, Message: "swap to nil kind", Processor: id}
	}
	if old, ok := p.kind.(*Group); ok && old.Graph != nil && old != kind {
		for _, inner := range old.Graph.Members() {
			old.Graph.Destroy(inner)
		}
	}
	g.log.Debug("processor swapped", "processor", id, "from", p.kind.Name(), "to", kind.Name())
	p.kind = kind
	if grp, ok := kind.(*Group); ok && grp.Graph != nil {
		grp.Graph.adopt(id)
	}
	p.inputsChanged(nil)
	p.outputsChanged(nil)
	return nil
}

func (g *Graph) member(id ProcessorID) (*Processor, error) {
	p, ok := g.reg.Get(id)
	if !ok {
		return nil, unknownProcessor(id)
	}
	if _, ok := g.members[id]; !ok {
		return nil, notMember(id)
	}
	return p, nil
}

// Links returns every link in id order.
func (g *Graph) Links() []Link {
	out := make([]Link, 0, len(g.links))
	for _, l := range g.links {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b Link) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Link returns the link with the given id.
func (g *Graph) Link(id LinkID) (Link, bool) {
	l, ok := g.links[id]
	return l, ok
}

// LinkInto returns the link bound to a consumer input, if any.
func (g *Graph) LinkInto(consumer DataAddress) (Link, bool) {
	id, ok := g.byInput[consumer]
	if !ok {
		return Link{}, false
	}
	return g.links[id], true
}

// Rejected returns the last rejection recorded against a consumer input.
func (g *Graph) Rejected(consumer DataAddress) error {
	return g.rejected[consumer]
}

// Members returns the member processors in id order.
func (g *Graph) Members() []ProcessorID { return sortedIDs(g.members) }

// Roots returns the members with no linked input, in id order.
func (g *Graph) Roots() []ProcessorID { return sortedIDs(g.roots) }
