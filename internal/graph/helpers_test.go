package graph

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/gpu/soft"
)

// fixture is a graph over a software device that counts Process calls.
type fixture struct {
	t     *testing.T
	g     *Graph
	dev   *soft.Device
	calls map[string]int
	order []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := soft.New()
	reg := NewRegistry(Env{
		Device: dev,
		Queue:  dev,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fixture{t: t, g: New(reg), dev: dev, calls: make(map[string]int)}
}

func (f *fixture) record(name string) {
	f.calls[name]++
	f.order = append(f.order, name)
}

func (f *fixture) get(id ProcessorID) *Processor {
	f.t.Helper()
	p, ok := f.g.Get(id)
	require.True(f.t, ok, "processor %s", id)
	return p
}

func mustMake(t *testing.T, sig data.Signature) *data.Data {
	t.Helper()
	d, err := data.Make(sig)
	require.NoError(t, err)
	return d
}

// source adds a root producing one float vector.
func (f *fixture) source(name string, vals ...float32) ProcessorID {
	out := mustMake(f.t, data.Float(uint32(len(vals))))
	out.Name = "out"
	return f.g.Add(NewBuiltin("constant", func(_, out []*data.Data) error {
		f.record(name)
		copy(out[0].Payload.(data.Floats)[0], vals)
		return nil
	}), WithDisplayName(name), WithOutputs(out))
}

// relay adds a processor with inputs of the given signatures whose output
// copies its first input, converted to outSig.
func (f *fixture) relay(name string, outSig data.Signature, inSigs ...data.Signature) ProcessorID {
	var inputs []*Input
	for i, sig := range inSigs {
		inputs = append(inputs, NewInput(string(rune('a'+i)), sig))
	}
	out := mustMake(f.t, outSig)
	out.Name = "out"
	return f.g.Add(NewBuiltin("relay", func(in, out []*data.Data) error {
		f.record(name)
		if len(in) == 0 {
			return nil
		}
		conv, err := in[0].ConvertTo(outSig)
		if err != nil {
			return err
		}
		out[0] = conv
		return nil
	}), WithDisplayName(name), WithInputs(inputs...), WithOutputs(out))
}

func (f *fixture) link(from ProcessorID, o int, to ProcessorID, i int) LinkID {
	f.t.Helper()
	id, err := f.g.CreateLink(DataAddress{from, o}, DataAddress{to, i})
	require.NoError(f.t, err)
	return id
}

func floats(t *testing.T, p *Processor, o int) data.Floats {
	t.Helper()
	out, ok := p.Output(o)
	require.True(t, ok)
	v, ok := out.Payload.(data.Floats)
	require.True(t, ok, "payload %T", out.Payload)
	return v
}
