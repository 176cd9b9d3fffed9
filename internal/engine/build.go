package engine

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/ir"
)

// Build turns a definition into a live graph in reg.
//
// Every processor is created first, in declaration order, then every link.
// All failures are collected into one multierror rather than stopping at the
// first. opts apply to the root graph and every group graph. The returned
// graph and names are usable even when err is non-nil: they hold everything
// that did build.
func Build(spec *ir.GraphSpec, reg *graph.Registry, lib Library, opts ...graph.Option) (*graph.Graph, *Names, error) {
	b := &builder{reg: reg, lib: lib, opts: opts, names: newNames()}
	g := b.build(spec, "")
	return g, b.names, b.errs.ErrorOrNil()
}

type builder struct {
	reg   *graph.Registry
	lib   Library
	opts  []graph.Option
	names *Names
	errs  *multierror.Error
}

func (b *builder) fail(err error) {
	b.errs = multierror.Append(b.errs, err)
}

// build creates spec's processors and links in a new graph. prefix scopes
// the names of processors inside groups: "group/inner".
func (b *builder) build(spec *ir.GraphSpec, prefix string) *graph.Graph {
	g := graph.New(b.reg, b.opts...)
	for i := range spec.Processors {
		p := &spec.Processors[i]
		name := prefix + p.Name
		id, err := b.processor(g, p, name)
		if err != nil {
			b.fail(fmt.Errorf("processor %s: %w", name, err))
			continue
		}
		b.names.add(name, id, g)
	}
	for _, l := range spec.Links {
		if err := b.link(g, l, prefix); err != nil {
			b.fail(fmt.Errorf("link %s -> %s: %w", prefix+l.From, prefix+l.To, err))
		}
	}
	return g
}

func (b *builder) link(g *graph.Graph, l ir.LinkSpec, prefix string) error {
	from, err := b.endpoint(l.From, prefix, b.names.Output)
	if err != nil {
		return err
	}
	to, err := b.endpoint(l.To, prefix, b.names.Input)
	if err != nil {
		return err
	}
	_, err = g.CreateLink(from.Addr, to.Addr)
	return err
}

func (b *builder) endpoint(s, prefix string, resolve func(ir.Endpoint) (Slot, error)) (Slot, error) {
	e, err := ir.ParseEndpoint(s)
	if err != nil {
		return Slot{}, err
	}
	e.Processor = prefix + e.Processor
	return resolve(e)
}

func (b *builder) processor(g *graph.Graph, p *ir.ProcessorSpec, name string) (graph.ProcessorID, error) {
	alloc := b.reg.Env().Allocator()

	var (
		inputs  = make([]*graph.Input, 0, len(p.Inputs))
		outputs = make([]*data.Data, 0, len(p.Outputs))
	)
	release := func() {
		for _, in := range inputs {
			in.WithDefault(nil)
		}
		for _, out := range outputs {
			out.Release()
		}
	}
	for _, spec := range p.Inputs {
		in, err := newInput(alloc, spec)
		if err != nil {
			release()
			return 0, err
		}
		inputs = append(inputs, in)
	}
	for _, spec := range p.Outputs {
		out, err := newOutput(spec)
		if err != nil {
			release()
			return 0, err
		}
		outputs = append(outputs, out)
	}

	kind, err := b.kind(p, name)
	if err != nil {
		release()
		return 0, err
	}

	display := p.DisplayName
	if display == "" {
		display = name
	}
	id := g.Add(kind,
		graph.WithDisplayName(display),
		graph.WithTemplateName(p.Template),
		graph.WithInputs(inputs...),
		graph.WithOutputs(outputs...),
	)

	if grp, ok := kind.(*graph.Group); ok {
		if err := b.ports(grp, p, name); err != nil {
			g.Destroy(id)
			b.names.drop(name)
			return 0, err
		}
	}
	return id, nil
}

func (b *builder) kind(p *ir.ProcessorSpec, name string) (graph.Kind, error) {
	switch p.Kind {
	case graph.KindFragment:
		return &graph.Fragment{Source: p.Source, EntryPoint: p.EntryPoint, Width: p.Width, Height: p.Height}, nil
	case graph.KindCompute:
		return &graph.Compute{Source: p.Source, EntryPoint: p.EntryPoint, Workgroups: p.Workgroups}, nil
	case graph.KindImageReader:
		return &graph.ImageReader{Path: p.Path}, nil
	case graph.KindBufferReader:
		return &graph.BufferReader{Path: p.Path}, nil
	case graph.KindScript:
		s := &graph.Script{Expressions: p.Expressions}
		if err := s.Parse(); err != nil {
			return nil, err
		}
		return s, nil
	case graph.KindBuiltin:
		fn, ok := b.lib[p.Builtin]
		if !ok {
			return nil, fmt.Errorf("unknown builtin %q", p.Builtin)
		}
		return graph.NewBuiltin(p.Builtin, fn), nil
	case graph.KindGroup:
		if p.Group == nil {
			return nil, errors.New("group has no body")
		}
		return &graph.Group{Graph: b.build(p.Group, name+"/")}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", p.Kind)
	}
}

// ports resolves a group's imports and exports against its inner names.
func (b *builder) ports(grp *graph.Group, p *ir.ProcessorSpec, name string) error {
	for _, imp := range p.Imports {
		i, ok := p.Input(imp.Input)
		if !ok {
			return fmt.Errorf("import: group has no input %q", imp.Input)
		}
		to, err := b.endpoint(imp.To, name+"/", b.names.Input)
		if err != nil {
			return fmt.Errorf("import %s: %w", imp.Input, err)
		}
		grp.Imports = append(grp.Imports, graph.Import{Input: i, To: to.Addr})
	}
	for _, exp := range p.Exports {
		o, ok := p.Output(exp.Output)
		if !ok {
			return fmt.Errorf("export: group has no output %q", exp.Output)
		}
		from, err := b.endpoint(exp.From, name+"/", b.names.Output)
		if err != nil {
			return fmt.Errorf("export %s: %w", exp.Output, err)
		}
		grp.Exports = append(grp.Exports, graph.Export{Output: o, From: from.Addr})
	}
	return nil
}

// newInput declares an input with its default. Inputs whose type has no
// host constructor and no device to allocate on start without a default.
func newInput(alloc data.Allocator, spec ir.InputSpec) (*graph.Input, error) {
	sig, err := spec.Signature.Signature()
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", spec.Name, err)
	}
	in := graph.NewInput(spec.Name, sig)
	if spec.NoDefault {
		return in, nil
	}
	if err := in.ResetDefaultValue(alloc); err != nil {
		return nil, err
	}
	if len(spec.Value) == 0 && len(spec.Text) == 0 {
		return in, nil
	}
	d, err := initialData(spec.Name, sig, spec.Value, spec.Text)
	if err != nil {
		in.WithDefault(nil)
		return nil, fmt.Errorf("input %s: %w", spec.Name, err)
	}
	in.WithDefault(d)
	return in, nil
}

// newOutput creates an output slot. Image and buffer outputs start empty;
// their kind allocates storage on first Process.
func newOutput(spec ir.OutputSpec) (*data.Data, error) {
	sig, err := spec.Signature.Signature()
	if err != nil {
		return nil, fmt.Errorf("output %s: %w", spec.Name, err)
	}
	if sig.Type == data.TypeImage || sig.Type == data.TypeBuffer {
		return &data.Data{Name: spec.Name, Signature: sig}, nil
	}
	d, err := initialData(spec.Name, sig, spec.Value, spec.Text)
	if err != nil {
		return nil, fmt.Errorf("output %s: %w", spec.Name, err)
	}
	return d, nil
}

// initialData makes host data for sig filled from a definition's literal.
//
// Numbers fill element-major; a single number is broadcast to every
// coordinate of every element. Numbers go through ConvertTo, so integer
// signatures truncate and saturate the same way a link would.
func initialData(name string, sig data.Signature, value []float64, text []string) (*data.Data, error) {
	if len(value) > 0 && sig.Type != data.TypeValue {
		return nil, fmt.Errorf("numbers given for %s", sig)
	}
	if len(text) > 0 && sig.Type != data.TypeText {
		return nil, fmt.Errorf("text given for %s", sig)
	}
	c, n := int(sig.NumCoords), int(sig.ArrayLength)
	if len(value) > c*n {
		return nil, fmt.Errorf("%d numbers do not fit %s", len(value), sig)
	}
	if len(text) > n {
		return nil, fmt.Errorf("%d strings do not fit %s", len(text), sig)
	}

	if len(value) == 0 {
		d, err := data.Make(sig)
		if err != nil {
			return nil, err
		}
		d.Name = name
		if texts, ok := d.Payload.(data.Texts); ok {
			copy(texts, text)
		}
		return d, nil
	}

	rows := make(data.Floats, n)
	for i := range rows {
		rows[i] = make([]float32, c)
	}
	if len(value) == 1 {
		for i := range rows {
			for j := range rows[i] {
				rows[i][j] = float32(value[0])
			}
		}
	} else {
		for k, v := range value {
			rows[k/c][k%c] = float32(v)
		}
	}
	src := &data.Data{
		Name:      name,
		Signature: data.Value(data.Floating, sig.NumCoords, sig.ArrayLength),
		Payload:   rows,
	}
	return src.ConvertTo(sig)
}
