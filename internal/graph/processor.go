package graph

import (
	"fmt"
	"slices"

	"github.com/roach88/spaghetti/internal/data"
)

// Processor is one node of the graph.
//
// It owns its outputs and references its inputs' producers by address.
// The dirty flag is set by edits and dirty propagation and consumed by the
// scheduler through NeedsUpdate.
type Processor struct {
	id           ProcessorID
	DisplayName  string
	TemplateName string

	kind        Kind
	inputs      []*Input
	outputs     []*data.Data
	outputLinks map[int][]DataAddress
	dirty       bool
	revision    uint64
	owner       ProcessorID // enclosing group processor, or Unlinked
	reg         *Registry
}

// ProcessorOption configures a processor at creation.
type ProcessorOption func(*Processor)

// WithDisplayName sets the label shown to users.
func WithDisplayName(name string) ProcessorOption {
	return func(p *Processor) { p.DisplayName = name }
}

// WithTemplateName records the template the processor was created from.
func WithTemplateName(name string) ProcessorOption {
	return func(p *Processor) { p.TemplateName = name }
}

// WithInputs declares the processor's input slots.
func WithInputs(inputs ...*Input) ProcessorOption {
	return func(p *Processor) { p.inputs = append(p.inputs, inputs...) }
}

// WithOutputs declares the processor's output slots.
func WithOutputs(outputs ...*data.Data) ProcessorOption {
	return func(p *Processor) { p.outputs = append(p.outputs, outputs...) }
}

// ID returns the processor's id.
func (p *Processor) ID() ProcessorID { return p.id }

// Kind returns the processor's kind variant.
func (p *Processor) Kind() Kind { return p.kind }

// Name returns the display name, or the id when none is set.
func (p *Processor) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.id.String()
}

// Inputs returns the input slots in order.
func (p *Processor) Inputs() []*Input { return p.inputs }

// Input returns input slot i.
func (p *Processor) Input(i int) (*Input, bool) {
	if i < 0 || i >= len(p.inputs) {
		return nil, false
	}
	return p.inputs[i], true
}

// Outputs returns the output slots in order.
func (p *Processor) Outputs() []*data.Data { return p.outputs }

// Output returns output slot o.
func (p *Processor) Output(o int) (*data.Data, bool) {
	if o < 0 || o >= len(p.outputs) {
		return nil, false
	}
	return p.outputs[o], true
}

// OutputLinks returns the consumers currently reading output o.
func (p *Processor) OutputLinks(o int) []DataAddress {
	return slices.Clone(p.outputLinks[o])
}

// Revision counts successful Process calls and output replacements.
// Converted caches downstream are rebuilt when it moves.
func (p *Processor) Revision() uint64 { return p.revision }

// InputData returns the data input i reads this pass.
func (p *Processor) InputData(i int) (*data.Data, error) {
	in, ok := p.Input(i)
	if !ok {
		return nil, unknownSlot(p.id, "input", i, len(p.inputs))
	}
	d := in.GetInputData(p.reg)
	if d == nil {
		return nil, notReady(p.id, in.Name)
	}
	return d, nil
}

// AddInput appends an input slot and returns its index.
func (p *Processor) AddInput(in *Input) int {
	p.inputs = append(p.inputs, in)
	p.inputsChanged(nil)
	return len(p.inputs) - 1
}

// AddOutput appends an output slot and returns its index.
func (p *Processor) AddOutput(d *data.Data) int {
	p.outputs = append(p.outputs, d)
	p.outputsChanged(nil)
	return len(p.outputs) - 1
}

// SetInput replaces input slot i, keeping its current link.
func (p *Processor) SetInput(i int, in *Input) error {
	old, ok := p.Input(i)
	if !ok {
		return unknownSlot(p.id, "input", i, len(p.inputs))
	}
	in.Link = old.Link
	old.release()
	p.inputs[i] = in
	if in.Link.Linked() {
		if err := in.SetupLink(p.reg); err != nil {
			p.reg.logger().Warn("input replaced with incompatible signature",
				"processor", p.id, "input", in.Name, "error", err)
		}
	}
	p.inputsChanged(nil)
	return nil
}

// SetOutput replaces output slot o. Consumers rebuild their converted
// caches before they next run.
func (p *Processor) SetOutput(o int, d *data.Data) error {
	old, ok := p.Output(o)
	if !ok {
		return unknownSlot(p.id, "output", o, len(p.outputs))
	}
	if old != d {
		old.Release()
	}
	p.outputs[o] = d
	p.revision++
	p.outputsChanged(nil)
	return nil
}

// inputsChanged runs the kind's input hook and dirties p.
func (p *Processor) inputsChanged(moved slotMap) {
	if h, ok := p.kind.(inputHook); ok {
		h.inputsChanged(p, moved)
	}
	p.SetNeedsUpdate()
}

// outputsChanged runs the kind's output hook and dirties p.
func (p *Processor) outputsChanged(moved slotMap) {
	if h, ok := p.kind.(outputHook); ok {
		h.outputsChanged(p, moved)
	}
	p.SetNeedsUpdate()
}

// AddInputLink points input i at producer and marks the processor dirty.
func (p *Processor) AddInputLink(i int, producer DataAddress) error {
	in, ok := p.Input(i)
	if !ok {
		return unknownSlot(p.id, "input", i, len(p.inputs))
	}
	in.clearCache()
	in.Link = producer
	p.SetNeedsUpdate()
	return nil
}

// AddOutputLink records consumer as a reader of output o.
func (p *Processor) AddOutputLink(o int, consumer DataAddress) error {
	if _, ok := p.Output(o); !ok {
		return unknownSlot(p.id, "output", o, len(p.outputs))
	}
	p.outputLinks[o] = append(p.outputLinks[o], consumer)
	return nil
}

func (p *Processor) removeInputLink(i int) {
	in, ok := p.Input(i)
	if !ok {
		return
	}
	in.clearCache()
	in.Link = DataAddress{}
	p.SetNeedsUpdate()
}

func (p *Processor) removeOutputLink(o int, consumer DataAddress) {
	links := p.outputLinks[o]
	for k, c := range links {
		if c == consumer {
			links = slices.Delete(links, k, k+1)
			break
		}
	}
	if len(links) == 0 {
		delete(p.outputLinks, o)
		return
	}
	p.outputLinks[o] = links
}

// NeedsUpdate reports whether the processor is dirty and clears the flag.
// Only the scheduler calls it.
func (p *Processor) NeedsUpdate() bool {
	d := p.dirty
	p.dirty = false
	return d
}

// Dirty reports the flag without consuming it.
func (p *Processor) Dirty() bool { return p.dirty }

// SetNeedsUpdate marks p and everything downstream of it dirty.
//
// The walk stops at processors that are already dirty, so every processor is
// visited at most once even with converging paths or cycles. A consumer that
// no longer exists is logged and skipped. A processor inside a group also
// dirties the group processor, so the enclosing graph reruns it.
func (p *Processor) SetNeedsUpdate() {
	p.dirtyOwner()
	if p.dirty {
		return
	}
	p.dirty = true

	for _, o := range p.linkedOutputs() {
		for _, c := range p.outputLinks[o] {
			next, ok := p.reg.Get(c.Processor)
			if !ok {
				p.reg.logger().Warn("dirty propagation skipped missing consumer",
					"processor", p.id, "consumer", c.Processor)
				continue
			}
			next.SetNeedsUpdate()
		}
	}
}

func (p *Processor) dirtyOwner() {
	if p.owner == Unlinked {
		return
	}
	owner, ok := p.reg.Get(p.owner)
	if !ok {
		p.reg.logger().Warn("dirty propagation skipped missing group",
			"processor", p.id, "group", p.owner)
		return
	}
	owner.SetNeedsUpdate()
}

// Owner returns the group processor whose nested graph holds p.
func (p *Processor) Owner() (ProcessorID, bool) {
	return p.owner, p.owner != Unlinked
}

func (p *Processor) linkedOutputs() []int {
	outs := make([]int, 0, len(p.outputLinks))
	for o := range p.outputLinks {
		outs = append(outs, o)
	}
	slices.Sort(outs)
	return outs
}

// consumers returns every processor reading any output, without duplicates.
func (p *Processor) consumers() []ProcessorID {
	seen := make(map[ProcessorID]struct{})
	for _, links := range p.outputLinks {
		for _, c := range links {
			seen[c.Processor] = struct{}{}
		}
	}
	return sortedIDs(seen)
}

// HasLinkedInputs reports whether any input is bound to a producer.
func (p *Processor) HasLinkedInputs() bool {
	for _, in := range p.inputs {
		if in.Link.Linked() {
			return true
		}
	}
	return false
}

// CanProcess reports whether every input has data this pass.
func (p *Processor) CanProcess() bool {
	for _, in := range p.inputs {
		if in.GetInputData(p.reg) == nil {
			return false
		}
	}
	return true
}

// Process runs the kind's computation. On success the revision moves so
// consumers rebuild their converted caches.
func (p *Processor) Process() error {
	if p.kind == nil {
		return fmt.Errorf("processor %s has no kind", p.id)
	}
	if err := p.kind.process(p); err != nil {
		return err
	}
	for o, out := range p.outputs {
		if out == nil {
			continue
		}
		if err := out.CheckShape(); err != nil {
			return fmt.Errorf("output %d: %w", o, err)
		}
	}
	p.revision++
	return nil
}

func (p *Processor) String() string {
	kind := "none"
	if p.kind != nil {
		kind = p.kind.Name()
	}
	return fmt.Sprintf("%s(%s %s)", p.id, kind, p.Name())
}
