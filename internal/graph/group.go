package graph

import (
	"fmt"

	"github.com/roach88/spaghetti/internal/data"
)

// Import feeds group input Input into the unlinked inner input To.
type Import struct {
	Input int
	To    DataAddress
}

// Export publishes the inner output From as group output Output.
type Export struct {
	Output int
	From   DataAddress
}

// Group runs a nested graph as a single processor.
//
// The nested graph shares the parent's registry. Each Process copies the
// group's inputs into the imported inner inputs, executes the nested graph
// and copies the exported inner outputs out. A nested pass that leaves
// anything pending fails the group for this pass.
type Group struct {
	Graph   *Graph
	Imports []Import
	Exports []Export
}

func (g *Group) Name() string { return KindGroup }

// inputsChanged keeps each import on the group input it read. Imports of a
// removed input are dropped.
func (g *Group) inputsChanged(_ *Processor, moved slotMap) {
	if moved == nil {
		return
	}
	kept := g.Imports[:0]
	for _, imp := range g.Imports {
		n, ok := moved(imp.Input)
		if !ok {
			continue
		}
		imp.Input = n
		kept = append(kept, imp)
	}
	g.Imports = kept
}

// outputsChanged keeps each export on the group output it fills.
func (g *Group) outputsChanged(_ *Processor, moved slotMap) {
	if moved == nil {
		return
	}
	kept := g.Exports[:0]
	for _, exp := range g.Exports {
		n, ok := moved(exp.Output)
		if !ok {
			continue
		}
		exp.Output = n
		kept = append(kept, exp)
	}
	g.Exports = kept
}

// innerInputsMoved retargets imports after the nested graph moved the
// inputs of member pid.
func (g *Group) innerInputsMoved(pid ProcessorID, moved slotMap) {
	kept := g.Imports[:0]
	for _, imp := range g.Imports {
		if imp.To.Processor == pid {
			n, ok := moved(imp.To.Index)
			if !ok {
				continue
			}
			imp.To.Index = n
		}
		kept = append(kept, imp)
	}
	g.Imports = kept
}

// innerOutputsMoved retargets exports after the nested graph moved the
// outputs of member pid.
func (g *Group) innerOutputsMoved(pid ProcessorID, moved slotMap) {
	kept := g.Exports[:0]
	for _, exp := range g.Exports {
		if exp.From.Processor == pid {
			n, ok := moved(exp.From.Index)
			if !ok {
				continue
			}
			exp.From.Index = n
		}
		kept = append(kept, exp)
	}
	g.Exports = kept
}

func (g *Group) process(p *Processor) error {
	if g.Graph == nil {
		return fmt.Errorf("group %s has no graph", p.id)
	}
	reg := g.Graph.reg

	for _, imp := range g.Imports {
		d, err := p.InputData(imp.Input)
		if err != nil {
			return err
		}
		inner, ok := reg.Get(imp.To.Processor)
		if !ok {
			return unknownProcessor(imp.To.Processor)
		}
		in, ok := inner.Input(imp.To.Index)
		if !ok {
			return unknownSlot(inner.id, "input", imp.To.Index, len(inner.inputs))
		}
		v, err := adapt(d, in.Signature)
		if err != nil {
			return fmt.Errorf("import %d: %w", imp.Input, err)
		}
		v.Name = in.Name
		in.WithDefault(v)
		inner.SetNeedsUpdate()
	}

	report := g.Graph.Execute()
	if err := report.Err(); err != nil {
		return err
	}

	for _, exp := range g.Exports {
		inner, ok := reg.Get(exp.From.Processor)
		if !ok {
			return unknownProcessor(exp.From.Processor)
		}
		d, ok := inner.Output(exp.From.Index)
		if !ok || d == nil {
			return unknownSlot(inner.id, "output", exp.From.Index, len(inner.outputs))
		}
		cur, ok := p.Output(exp.Output)
		if !ok {
			return unknownSlot(p.id, "output", exp.Output, len(p.outputs))
		}
		sig := d.Signature
		name := fmt.Sprintf("out%d", exp.Output)
		if cur != nil {
			sig, name = cur.Signature, cur.Name
		}
		v, err := adapt(d, sig)
		if err != nil {
			return fmt.Errorf("export %d: %w", exp.Output, err)
		}
		v.Name = name
		cur.Release()
		p.outputs[exp.Output] = v
	}
	// Imports dirtied the inner graph, and through it the group itself.
	// The group has just run, so it starts the next pass clean.
	p.dirty = false
	return nil
}

// adapt copies d into signature sig, converting when they differ.
func adapt(d *data.Data, sig data.Signature) (*data.Data, error) {
	if d.Signature == sig {
		return d.Clone(), nil
	}
	return d.ConvertTo(sig)
}
