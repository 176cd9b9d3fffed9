package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/spaghetti/internal/ir"
)

func validSpec() *ir.GraphSpec {
	return &ir.GraphSpec{
		Name: "ok",
		Processors: []ir.ProcessorSpec{
			{
				Name: "A", Kind: "builtin", Builtin: "constant",
				Outputs: []ir.OutputSpec{{Name: "out", Signature: ir.SignatureSpec{Type: "value"}}},
			},
			{
				Name: "B", Kind: "builtin", Builtin: "passthrough",
				Inputs:  []ir.InputSpec{{Name: "in", Signature: ir.SignatureSpec{Type: "value"}}},
				Outputs: []ir.OutputSpec{{Name: "out", Signature: ir.SignatureSpec{Type: "value"}}},
			},
		},
		Links: []ir.LinkSpec{{From: "A.out", To: "B.in"}},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValid(t *testing.T) {
	assert.Empty(t, Validate(validSpec(), "constant", "passthrough"))
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.GraphSpec)
		code   string
	}{
		{"empty graph", func(g *ir.GraphSpec) { g.Processors = nil; g.Links = nil }, ErrEmptyGraph},
		{"dotted name", func(g *ir.GraphSpec) { g.Processors[0].Name = "A.x"; g.Links = nil }, ErrInvalidName},
		{"duplicate processor", func(g *ir.GraphSpec) { g.Processors[1].Name = "A"; g.Links = nil }, ErrDuplicateName},
		{"duplicate slot", func(g *ir.GraphSpec) {
			g.Processors[1].Outputs = append(g.Processors[1].Outputs, g.Processors[1].Outputs[0])
		}, ErrDuplicateName},
		{"unknown kind", func(g *ir.GraphSpec) { g.Processors[0].Kind = "vertex" }, ErrUnknownKind},
		{"bad signature", func(g *ir.GraphSpec) { g.Processors[1].Outputs[0].Signature.Type = "matrix" }, ErrInvalidSignature},
		{"text on value", func(g *ir.GraphSpec) { g.Processors[0].Outputs[0].Text = []string{"x"} }, ErrInvalidInitial},
		{"too many values", func(g *ir.GraphSpec) { g.Processors[0].Outputs[0].Value = []float64{1, 2} }, ErrInvalidInitial},
		{"shader without source", func(g *ir.GraphSpec) {
			g.Processors[0].Kind = "fragment"
			g.Processors[0].Outputs[0].Signature = ir.SignatureSpec{Type: "image"}
			g.Links = nil
		}, ErrMissingSource},
		{"reader without path", func(g *ir.GraphSpec) {
			g.Processors[0].Kind = "buffer_reader"
			g.Processors[0].Outputs[0].Signature = ir.SignatureSpec{Type: "buffer"}
			g.Links = nil
		}, ErrMissingPath},
		{"fragment value output", func(g *ir.GraphSpec) {
			g.Processors[0].Kind = "fragment"
			g.Processors[0].Source = "@fragment fn main() {}"
		}, ErrOutputType},
		{"malformed endpoint", func(g *ir.GraphSpec) { g.Links[0].From = "A" }, ErrInvalidEndpoint},
		{"unknown processor", func(g *ir.GraphSpec) { g.Links[0].From = "Z.out" }, ErrUnknownEndpoint},
		{"unknown slot", func(g *ir.GraphSpec) { g.Links[0].To = "B.nope" }, ErrUnknownEndpoint},
		{"type mismatch", func(g *ir.GraphSpec) {
			g.Processors[1].Inputs[0].Signature = ir.SignatureSpec{Type: "curve"}
		}, ErrLinkTypeMismatch},
		{"second link into input", func(g *ir.GraphSpec) { g.Links = append(g.Links, g.Links[0]) }, ErrDuplicateLink},
		{"missing builtin", func(g *ir.GraphSpec) { g.Processors[0].Builtin = "" }, ErrMissingBuiltin},
		{"unknown builtin", func(g *ir.GraphSpec) { g.Processors[0].Builtin = "explode" }, ErrUnknownBuiltin},
		{"bad expression", func(g *ir.GraphSpec) {
			g.Processors[1].Kind = "script"
			g.Processors[1].Builtin = ""
			g.Processors[1].Expressions = map[string]string{"out": "in +"}
		}, ErrInvalidExpression},
		{"expression for missing output", func(g *ir.GraphSpec) {
			g.Processors[1].Kind = "script"
			g.Processors[1].Builtin = ""
			g.Processors[1].Expressions = map[string]string{"nope": "1"}
		}, ErrUnknownScriptOutput},
		{"group without body", func(g *ir.GraphSpec) { g.Processors[1].Kind = "group" }, ErrMissingGroup},
		{"group port", func(g *ir.GraphSpec) {
			g.Processors[1].Kind = "group"
			g.Processors[1].Group = &ir.GraphSpec{Processors: []ir.ProcessorSpec{{
				Name: "x", Kind: "builtin", Builtin: "passthrough",
			}}}
			g.Processors[1].Imports = []ir.ImportSpec{{Input: "missing", To: "x.in"}}
		}, ErrInvalidGroupPort},
		{"expressions on builtin", func(g *ir.GraphSpec) {
			g.Processors[0].Expressions = map[string]string{"out": "1"}
		}, ErrMisplacedField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)
			errs := Validate(spec, "constant", "passthrough")
			assert.Contains(t, codes(errs), tt.code, "errors: %v", errs)
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	spec := validSpec()
	spec.Processors[0].Kind = "vertex"
	spec.Links[0].To = "B.nope"
	errs := Validate(spec)
	assert.Equal(t, []string{ErrUnknownKind, ErrUnknownEndpoint}, codes(errs))
	assert.Equal(t, "[E104] processors[0].kind: unknown kind \"vertex\", must be one of fragment, compute, image_reader, buffer_reader, script, builtin, group", errs[0].Error())
}

func TestValidateWithoutLibrarySkipsBuiltinNames(t *testing.T) {
	spec := validSpec()
	spec.Processors[0].Builtin = "anything"
	assert.Empty(t, Validate(spec))
}

func TestValidateNestedGroupPrefixesFields(t *testing.T) {
	spec := &ir.GraphSpec{Processors: []ir.ProcessorSpec{{
		Name: "G", Kind: "group",
		Group: &ir.GraphSpec{Processors: []ir.ProcessorSpec{{Name: "in", Kind: "vertex"}}},
	}}}
	errs := Validate(spec)
	if assert.Len(t, errs, 1) {
		assert.Equal(t, "processors[0].group.processors[0].kind", errs[0].Field)
	}
}
