package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/ir"
	"github.com/roach88/spaghetti/internal/store"
)

func floatSig(coords, length uint32) ir.SignatureSpec {
	return ir.SignatureSpec{Type: "value", Encoding: "float", Coords: coords, Length: length}
}

func scalar() ir.SignatureSpec { return floatSig(1, 1) }

// chainSpec is A -> B -> C:
//
//	A  constant   out = 2
//	B  add        a (linked from A), b = 3
//	C  multiply   x (linked from B), y = 10
//
// After one pass C.out is (2 + 3) * 10.
func chainSpec() *ir.GraphSpec {
	return &ir.GraphSpec{
		Name: "chain",
		Processors: []ir.ProcessorSpec{
			{
				Name: "A", Kind: graph.KindBuiltin, Builtin: "constant",
				Outputs: []ir.OutputSpec{{Name: "out", Signature: scalar(), Value: []float64{2}}},
			},
			{
				Name: "B", Kind: graph.KindBuiltin, Builtin: "add",
				Inputs: []ir.InputSpec{
					{Name: "a", Signature: scalar()},
					{Name: "b", Signature: scalar(), Value: []float64{3}},
				},
				Outputs: []ir.OutputSpec{{Name: "out", Signature: scalar()}},
			},
			{
				Name: "C", Kind: graph.KindBuiltin, Builtin: "multiply",
				Inputs: []ir.InputSpec{
					{Name: "x", Signature: scalar()},
					{Name: "y", Signature: scalar(), Value: []float64{10}},
				},
				Outputs: []ir.OutputSpec{{Name: "out", Signature: scalar()}},
			},
		},
		Links: []ir.LinkSpec{
			{From: "A.out", To: "B.a"},
			{From: "B.out", To: "C.x"},
		},
	}
}

// mismatchSpec is chainSpec with C's only input a text slot without a
// default, so the B -> C link is rejected by type.
func mismatchSpec() *ir.GraphSpec {
	spec := chainSpec()
	spec.Name = "mismatch"
	spec.Processors[2] = ir.ProcessorSpec{
		Name: "C", Kind: graph.KindBuiltin, Builtin: "concat",
		Inputs: []ir.InputSpec{
			{Name: "x", Signature: ir.SignatureSpec{Type: "text"}, NoDefault: true},
		},
		Outputs: []ir.OutputSpec{{Name: "out", Signature: ir.SignatureSpec{Type: "text"}}},
	}
	return spec
}

func quietEnv() graph.Env {
	return graph.Env{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newTestEngine(t *testing.T, spec *ir.GraphSpec, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := New(spec, quietEnv(), opts...)
	require.NoError(t, err)
	return e
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// outputFloats returns the float rows of processor name's output slot.
func outputFloats(t *testing.T, e *Engine, name, slot string) data.Floats {
	t.Helper()
	p, _, err := e.Names().Processor(name)
	require.NoError(t, err)
	for _, out := range p.Outputs() {
		if out != nil && out.Name == slot {
			rows, ok := out.Payload.(data.Floats)
			require.True(t, ok, "%s.%s is %T", name, slot, out.Payload)
			return rows
		}
	}
	t.Fatalf("%s has no output %q", name, slot)
	return nil
}

func processorID(t *testing.T, e *Engine, name string) graph.ProcessorID {
	t.Helper()
	id, ok := e.Names().ID(name)
	require.True(t, ok, "no processor %q", name)
	return id
}
