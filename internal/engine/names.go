package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/ir"
)

// Names maps definition names to live processors. Processors inside a group
// are named "group/inner".
type Names struct {
	ids    map[string]graph.ProcessorID
	graphs map[string]*graph.Graph
	byID   map[graph.ProcessorID]string
	order  []string
}

// Slot is a resolved endpoint: the graph that owns the processor and the
// slot's address in it.
type Slot struct {
	Graph *graph.Graph
	Addr  graph.DataAddress
}

func newNames() *Names {
	return &Names{
		ids:    make(map[string]graph.ProcessorID),
		graphs: make(map[string]*graph.Graph),
		byID:   make(map[graph.ProcessorID]string),
	}
}

func (n *Names) add(name string, id graph.ProcessorID, g *graph.Graph) {
	n.ids[name] = id
	n.graphs[name] = g
	n.byID[id] = name
	n.order = append(n.order, name)
}

// drop forgets name and everything inside it.
func (n *Names) drop(name string) {
	kept := n.order[:0]
	for _, x := range n.order {
		if x == name || strings.HasPrefix(x, name+"/") {
			delete(n.byID, n.ids[x])
			delete(n.ids, x)
			delete(n.graphs, x)
			continue
		}
		kept = append(kept, x)
	}
	n.order = kept
}

// All returns every name in creation order. Group members come before the
// group itself.
func (n *Names) All() []string {
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

// ID returns the processor named name.
func (n *Names) ID(name string) (graph.ProcessorID, bool) {
	id, ok := n.ids[name]
	return id, ok
}

// Name returns the definition name of id, or the id's string form.
func (n *Names) Name(id graph.ProcessorID) string {
	if name, ok := n.byID[id]; ok {
		return name
	}
	return id.String()
}

// Processor resolves name to its live processor and owning graph.
func (n *Names) Processor(name string) (*graph.Processor, *graph.Graph, error) {
	id, ok := n.ids[name]
	if !ok {
		return nil, nil, unknownName(name)
	}
	g := n.graphs[name]
	p, ok := g.Get(id)
	if !ok {
		return nil, nil, unknownName(name)
	}
	return p, g, nil
}

// Input resolves "processor.input".
func (n *Names) Input(e ir.Endpoint) (Slot, error) {
	p, g, err := n.Processor(e.Processor)
	if err != nil {
		return Slot{}, err
	}
	for i, in := range p.Inputs() {
		if in.Name == e.Slot {
			return Slot{Graph: g, Addr: graph.DataAddress{Processor: p.ID(), Index: i}}, nil
		}
	}
	return Slot{}, unknownName(fmt.Sprintf("%s (no input %q)", e, e.Slot))
}

// Output resolves "processor.output".
func (n *Names) Output(e ir.Endpoint) (Slot, error) {
	p, g, err := n.Processor(e.Processor)
	if err != nil {
		return Slot{}, err
	}
	for o, out := range p.Outputs() {
		if out != nil && out.Name == e.Slot {
			return Slot{Graph: g, Addr: graph.DataAddress{Processor: p.ID(), Index: o}}, nil
		}
	}
	return Slot{}, unknownName(fmt.Sprintf("%s (no output %q)", e, e.Slot))
}
