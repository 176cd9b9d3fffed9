package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/ir"
)

func TestBuild_Chain(t *testing.T) {
	reg := graph.NewRegistry(quietEnv())
	g, names, err := Build(chainSpec(), reg, DefaultLibrary())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, names.All())
	assert.Len(t, g.Members(), 3)
	assert.Len(t, g.Links(), 2)

	a, _ := names.ID("A")
	assert.Equal(t, []graph.ProcessorID{a}, g.Roots(), "only A has no linked input")
}

func TestBuild_DisplayNameDefaultsToName(t *testing.T) {
	spec := chainSpec()
	spec.Processors[0].DisplayName = "Source"

	e := newTestEngine(t, spec)
	a, _, err := e.Names().Processor("A")
	require.NoError(t, err)
	b, _, err := e.Names().Processor("B")
	require.NoError(t, err)

	assert.Equal(t, "Source", a.Name())
	assert.Equal(t, "B", b.Name())
}

func TestBuild_InitialValues(t *testing.T) {
	spec := &ir.GraphSpec{
		Name: "values",
		Processors: []ir.ProcessorSpec{{
			Name: "P", Kind: graph.KindBuiltin, Builtin: "constant",
			Outputs: []ir.OutputSpec{
				{Name: "broadcast", Signature: floatSig(2, 2), Value: []float64{7}},
				{Name: "rows", Signature: floatSig(2, 2), Value: []float64{1, 2, 3, 4}},
				{Name: "partial", Signature: floatSig(2, 2), Value: []float64{1, 2, 3}},
				{Name: "ints", Signature: ir.SignatureSpec{Type: "value", Encoding: "int"}, Value: []float64{-2.7}},
				{Name: "label", Signature: ir.SignatureSpec{Type: "text", Length: 2}, Text: []string{"hi"}},
			},
		}},
	}
	e := newTestEngine(t, spec)

	assert.Equal(t, data.Floats{{7, 7}, {7, 7}}, outputFloats(t, e, "P", "broadcast"))
	assert.Equal(t, data.Floats{{1, 2}, {3, 4}}, outputFloats(t, e, "P", "rows"))
	assert.Equal(t, data.Floats{{1, 2}, {3, 0}}, outputFloats(t, e, "P", "partial"))

	p, _, err := e.Names().Processor("P")
	require.NoError(t, err)
	outs := p.Outputs()
	assert.Equal(t, data.SInts{{-2}}, outs[3].Payload, "ints truncate toward zero")
	assert.Equal(t, data.Texts{"hi", ""}, outs[4].Payload)
}

func TestBuild_NoDefaultInput(t *testing.T) {
	spec := chainSpec()
	spec.Links = nil
	spec.Processors[1].Inputs[0].NoDefault = true

	e := newTestEngine(t, spec)
	b, _, err := e.Names().Processor("B")
	require.NoError(t, err)
	assert.Nil(t, b.Inputs()[0].Default)
	assert.NotNil(t, b.Inputs()[1].Default)
}

func TestBuild_CollectsAllErrors(t *testing.T) {
	spec := chainSpec()
	spec.Processors = append(spec.Processors,
		ir.ProcessorSpec{Name: "D", Kind: graph.KindBuiltin, Builtin: "nope"},
		ir.ProcessorSpec{Name: "E", Kind: "teleport"},
		ir.ProcessorSpec{
			Name: "F", Kind: graph.KindBuiltin, Builtin: "constant",
			Outputs: []ir.OutputSpec{{Name: "out", Signature: scalar(), Value: []float64{1, 2}}},
		},
	)
	spec.Links = append(spec.Links,
		ir.LinkSpec{From: "Z.out", To: "B.a"},
		ir.LinkSpec{From: "A.out", To: "C.nope"},
	)

	reg := graph.NewRegistry(quietEnv())
	g, names, err := Build(spec, reg, DefaultLibrary())
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		`processor D: unknown builtin "nope"`,
		`processor E: unknown kind "teleport"`,
		"processor F: output out: 2 numbers do not fit",
		"link Z.out -> B.a",
		"link A.out -> C.nope",
	} {
		assert.Contains(t, msg, want)
	}
	assert.True(t, IsUnknownName(err), "unknown link endpoints are UNKNOWN_NAME")

	assert.Equal(t, []string{"A", "B", "C"}, names.All(), "what did build is kept")
	assert.Len(t, g.Links(), 2)
}

func TestBuild_TypeMismatchLinkIsRecorded(t *testing.T) {
	reg := graph.NewRegistry(quietEnv())
	g, names, err := Build(mismatchSpec(), reg, DefaultLibrary())
	require.Error(t, err)
	assert.True(t, graph.IsTypeMismatch(err), "got %v", err)

	c, _ := names.ID("C")
	assert.Error(t, g.Rejected(graph.DataAddress{Processor: c, Index: 0}))
	assert.Len(t, g.Links(), 1, "only A -> B survives")
}

func groupSpec() *ir.GraphSpec {
	return &ir.GraphSpec{
		Name: "grouped",
		Processors: []ir.ProcessorSpec{
			{
				Name: "A", Kind: graph.KindBuiltin, Builtin: "constant",
				Outputs: []ir.OutputSpec{{Name: "out", Signature: scalar(), Value: []float64{4}}},
			},
			{
				Name: "G", Kind: graph.KindGroup,
				Inputs:  []ir.InputSpec{{Name: "in", Signature: scalar()}},
				Outputs: []ir.OutputSpec{{Name: "out", Signature: scalar()}},
				Group: &ir.GraphSpec{
					Name: "double",
					Processors: []ir.ProcessorSpec{{
						Name: "X", Kind: graph.KindScript,
						Inputs:      []ir.InputSpec{{Name: "x", Signature: scalar()}},
						Outputs:     []ir.OutputSpec{{Name: "y", Signature: scalar()}},
						Expressions: map[string]string{"y": "x[0][0] * 2"},
					}},
				},
				Imports: []ir.ImportSpec{{Input: "in", To: "X.x"}},
				Exports: []ir.ExportSpec{{Output: "out", From: "X.y"}},
			},
		},
		Links: []ir.LinkSpec{{From: "A.out", To: "G.in"}},
	}
}

func TestBuild_GroupNames(t *testing.T) {
	e := newTestEngine(t, groupSpec())

	assert.Equal(t, []string{"A", "G/X", "G"}, e.Names().All())

	_, inner, err := e.Names().Processor("G/X")
	require.NoError(t, err)
	assert.NotSame(t, e.Graph(), inner, "group members live in the group's graph")
	assert.Len(t, e.Graph().Members(), 2)
}

func TestBuild_BadGroupPortIsDropped(t *testing.T) {
	spec := groupSpec()
	spec.Processors[1].Exports[0].From = "X.missing"

	reg := graph.NewRegistry(quietEnv())
	g, names, err := Build(spec, reg, DefaultLibrary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export out")

	assert.Equal(t, []string{"A"}, names.All(), "group and its members are dropped")
	assert.Len(t, g.Members(), 1)
	assert.Contains(t, err.Error(), "link A.out -> G.in")
}

func TestInitialData(t *testing.T) {
	tests := []struct {
		name  string
		sig   data.Signature
		value []float64
		text  []string
		want  any
		err   string
	}{
		{name: "zero", sig: data.Float(2), want: data.Floats{{0, 0}}},
		{name: "broadcast", sig: data.Float(3), value: []float64{0.5}, want: data.Floats{{0.5, 0.5, 0.5}}},
		{name: "uint saturates", sig: data.Value(data.UnsignedInt, 1, 1), value: []float64{-4}, want: data.UInts{{0}}},
		{name: "text", sig: data.Text(1), text: []string{"x"}, want: data.Texts{"x"}},
		{name: "numbers into text", sig: data.Text(1), value: []float64{1}, err: "numbers given"},
		{name: "text into value", sig: data.Float(1), text: []string{"x"}, err: "text given"},
		{name: "too many strings", sig: data.Text(1), text: []string{"a", "b"}, err: "do not fit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := initialData("slot", tt.sig, tt.value, tt.text)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "slot", d.Name)
			assert.Equal(t, tt.sig, d.Signature)
			if diff := cmp.Diff(tt.want, d.Payload); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
