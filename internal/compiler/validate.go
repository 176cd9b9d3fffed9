package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/ir"
)

// Validation error codes (E101-E120).
const (
	ErrEmptyGraph          = "E101" // no processors
	ErrInvalidName         = "E102" // empty name or name containing '.'
	ErrDuplicateName       = "E103" // duplicate processor or slot name
	ErrUnknownKind         = "E104" // kind is not a known processor kind
	ErrInvalidSignature    = "E105" // signature does not describe a data shape
	ErrInvalidInitial      = "E106" // value or text does not fit the slot
	ErrMissingSource       = "E107" // shader without source
	ErrMissingPath         = "E108" // reader without path
	ErrOutputType          = "E109" // output type the kind cannot produce
	ErrInvalidEndpoint     = "E110" // endpoint is not processor.slot
	ErrUnknownEndpoint     = "E111" // endpoint names a missing processor or slot
	ErrLinkTypeMismatch    = "E112" // producer cannot feed consumer
	ErrDuplicateLink       = "E113" // second link into one input
	ErrMissingBuiltin      = "E114" // builtin kind without a builtin name
	ErrUnknownBuiltin      = "E115" // builtin name not in the library
	ErrInvalidExpression   = "E116" // script expression does not parse
	ErrUnknownScriptOutput = "E117" // expression keyed by a name that is no output
	ErrMissingGroup        = "E118" // group kind without a group body
	ErrInvalidGroupPort    = "E119" // import or export does not resolve
	ErrMisplacedField      = "E120" // field that the kind does not use
)

// Kinds lists the processor kinds a definition can name.
var Kinds = []string{"fragment", "compute", "image_reader", "buffer_reader", "script", "builtin", "group"}

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled graph definition and returns every problem
// found. When builtins is non-empty, builtin names are checked against it.
func Validate(spec *ir.GraphSpec, builtins ...string) []ValidationError {
	v := &validator{builtins: builtins}
	v.graph(spec, "")
	return v.errs
}

type validator struct {
	builtins []string
	errs     []ValidationError
}

func (v *validator) add(code, field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) graph(spec *ir.GraphSpec, prefix string) {
	if len(spec.Processors) == 0 {
		v.add(ErrEmptyGraph, prefix+"processors", "at least one processor is required")
	}

	names := make(map[string]bool)
	for i := range spec.Processors {
		p := &spec.Processors[i]
		field := fmt.Sprintf("%sprocessors[%d]", prefix, i)
		if p.Name == "" || strings.Contains(p.Name, ".") {
			v.add(ErrInvalidName, field+".name", "processor name %q must be non-empty and contain no '.'", p.Name)
		}
		if names[p.Name] {
			v.add(ErrDuplicateName, field+".name", "duplicate processor name: %q", p.Name)
		}
		names[p.Name] = true
		v.processor(p, field)
	}

	linked := make(map[string]bool)
	for i, l := range spec.Links {
		field := fmt.Sprintf("%slinks[%d]", prefix, i)
		from, ok := v.endpoint(l.From, field+".from")
		if !ok {
			continue
		}
		to, ok := v.endpoint(l.To, field+".to")
		if !ok {
			continue
		}
		outSig, ok := v.resolveOutput(spec, from, field+".from")
		if !ok {
			continue
		}
		inSig, ok := v.resolveInput(spec, to, field+".to")
		if !ok {
			continue
		}
		if linked[l.To] {
			v.add(ErrDuplicateLink, field+".to", "input %s is already linked", l.To)
		}
		linked[l.To] = true
		if !data.CanLink(outSig, inSig) {
			v.add(ErrLinkTypeMismatch, field, "%s (%s) cannot feed %s (%s)", l.From, outSig, l.To, inSig)
		}
	}
}

func (v *validator) processor(p *ir.ProcessorSpec, field string) {
	if !slices.Contains(Kinds, p.Kind) {
		v.add(ErrUnknownKind, field+".kind", "unknown kind %q, must be one of %s", p.Kind, strings.Join(Kinds, ", "))
	}

	slotNames := make(map[string]bool)
	for i, in := range p.Inputs {
		f := fmt.Sprintf("%s.inputs[%d]", field, i)
		v.slotName(slotNames, "input", in.Name, f)
		if sig, ok := v.signature(in.Signature, f+".signature"); ok {
			v.initial(sig, in.Value, in.Text, f)
		}
	}
	slotNames = make(map[string]bool)
	outSigs := make([]data.Signature, len(p.Outputs))
	for i, out := range p.Outputs {
		f := fmt.Sprintf("%s.outputs[%d]", field, i)
		v.slotName(slotNames, "output", out.Name, f)
		if sig, ok := v.signature(out.Signature, f+".signature"); ok {
			outSigs[i] = sig
			v.initial(sig, out.Value, out.Text, f)
		}
	}

	switch p.Kind {
	case "fragment", "compute":
		if strings.TrimSpace(p.Source) == "" {
			v.add(ErrMissingSource, field+".source", "%s processor %q needs shader source", p.Kind, p.Name)
		}
	case "image_reader", "buffer_reader":
		if strings.TrimSpace(p.Path) == "" {
			v.add(ErrMissingPath, field+".path", "%s processor %q needs a path", p.Kind, p.Name)
		}
	case "builtin":
		if p.Builtin == "" {
			v.add(ErrMissingBuiltin, field+".builtin", "builtin processor %q needs a builtin name", p.Name)
		} else if len(v.builtins) > 0 && !slices.Contains(v.builtins, p.Builtin) {
			v.add(ErrUnknownBuiltin, field+".builtin", "unknown builtin %q, must be one of %s", p.Builtin, strings.Join(v.builtins, ", "))
		}
	case "script":
		v.script(p, field)
	case "group":
		v.group(p, field)
	}

	switch p.Kind {
	case "fragment", "image_reader":
		if len(outSigs) == 0 || outSigs[0].Type != data.TypeImage {
			v.add(ErrOutputType, field+".outputs", "%s processor %q needs an image as its first output", p.Kind, p.Name)
		}
	case "compute", "buffer_reader":
		for i, sig := range outSigs {
			if sig.Type != data.TypeBuffer {
				v.add(ErrOutputType, fmt.Sprintf("%s.outputs[%d]", field, i), "%s processor %q can only output buffers", p.Kind, p.Name)
			}
		}
		if p.Kind == "buffer_reader" && len(outSigs) == 0 {
			v.add(ErrOutputType, field+".outputs", "buffer_reader processor %q needs a buffer output", p.Name)
		}
	case "script":
		for i, sig := range outSigs {
			if sig.Type != data.TypeValue && sig.Type != data.TypeText {
				v.add(ErrOutputType, fmt.Sprintf("%s.outputs[%d]", field, i), "scripts produce value or text, not %s", sig.Type)
			}
		}
	}

	if p.Kind != "group" && (p.Group != nil || len(p.Imports) > 0 || len(p.Exports) > 0) {
		v.add(ErrMisplacedField, field+".group", "only group processors take group, import or export")
	}
	if p.Kind != "script" && len(p.Expressions) > 0 {
		v.add(ErrMisplacedField, field+".expressions", "only script processors take expressions")
	}
}

func (v *validator) slotName(seen map[string]bool, kind, name, field string) {
	if name == "" {
		v.add(ErrInvalidName, field+".name", "%s name must be non-empty", kind)
	}
	if seen[name] {
		v.add(ErrDuplicateName, field+".name", "duplicate %s name: %q", kind, name)
	}
	seen[name] = true
}

func (v *validator) signature(s ir.SignatureSpec, field string) (data.Signature, bool) {
	sig, err := s.Signature()
	if err != nil {
		v.add(ErrInvalidSignature, field, "%v", err)
		return data.Signature{}, false
	}
	return sig, true
}

func (v *validator) initial(sig data.Signature, value []float64, text []string, field string) {
	if len(value) > 0 && sig.Type != data.TypeValue {
		v.add(ErrInvalidInitial, field+".value", "value given for %s slot", sig.Type)
	}
	if len(value) > int(sig.NumCoords*sig.ArrayLength) {
		v.add(ErrInvalidInitial, field+".value", "%d numbers do not fit %s", len(value), sig)
	}
	if len(text) > 0 && sig.Type != data.TypeText {
		v.add(ErrInvalidInitial, field+".text", "text given for %s slot", sig.Type)
	}
	if len(text) > int(sig.ArrayLength) {
		v.add(ErrInvalidInitial, field+".text", "%d strings do not fit %s", len(text), sig)
	}
}

func (v *validator) script(p *ir.ProcessorSpec, field string) {
	keys := make([]string, 0, len(p.Expressions))
	for k := range p.Expressions {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		f := field + ".expressions." + k
		if _, ok := p.Output(k); !ok {
			v.add(ErrUnknownScriptOutput, f, "processor %q has no output %q", p.Name, k)
		}
		_, diags := hclsyntax.ParseExpression([]byte(p.Expressions[k]), k+".hcl", hcl.Pos{Line: 1, Column: 1})
		if diags.HasErrors() {
			v.add(ErrInvalidExpression, f, "%s", diags.Error())
		}
	}
}

func (v *validator) group(p *ir.ProcessorSpec, field string) {
	if p.Group == nil {
		v.add(ErrMissingGroup, field+".group", "group processor %q needs a group body", p.Name)
		return
	}
	v.graph(p.Group, field+".group.")

	for i, imp := range p.Imports {
		f := fmt.Sprintf("%s.imports[%d]", field, i)
		if _, ok := p.Input(imp.Input); !ok {
			v.add(ErrInvalidGroupPort, f+".input", "group %q has no input %q", p.Name, imp.Input)
		}
		if e, ok := v.endpoint(imp.To, f+".to"); ok {
			v.resolveInput(p.Group, e, f+".to")
		}
	}
	for i, exp := range p.Exports {
		f := fmt.Sprintf("%s.exports[%d]", field, i)
		if _, ok := p.Output(exp.Output); !ok {
			v.add(ErrInvalidGroupPort, f+".output", "group %q has no output %q", p.Name, exp.Output)
		}
		if e, ok := v.endpoint(exp.From, f+".from"); ok {
			v.resolveOutput(p.Group, e, f+".from")
		}
	}
}

func (v *validator) endpoint(s, field string) (ir.Endpoint, bool) {
	e, err := ir.ParseEndpoint(s)
	if err != nil {
		v.add(ErrInvalidEndpoint, field, "%v", err)
		return ir.Endpoint{}, false
	}
	return e, true
}

func (v *validator) resolveOutput(g *ir.GraphSpec, e ir.Endpoint, field string) (data.Signature, bool) {
	p, ok := g.Processor(e.Processor)
	if !ok {
		v.add(ErrUnknownEndpoint, field, "unknown processor %q", e.Processor)
		return data.Signature{}, false
	}
	i, ok := p.Output(e.Slot)
	if !ok {
		v.add(ErrUnknownEndpoint, field, "processor %q has no output %q", e.Processor, e.Slot)
		return data.Signature{}, false
	}
	sig, err := p.Outputs[i].Signature.Signature()
	return sig, err == nil
}

func (v *validator) resolveInput(g *ir.GraphSpec, e ir.Endpoint, field string) (data.Signature, bool) {
	p, ok := g.Processor(e.Processor)
	if !ok {
		v.add(ErrUnknownEndpoint, field, "unknown processor %q", e.Processor)
		return data.Signature{}, false
	}
	i, ok := p.Input(e.Slot)
	if !ok {
		v.add(ErrUnknownEndpoint, field, "processor %q has no input %q", e.Processor, e.Slot)
		return data.Signature{}, false
	}
	sig, err := p.Inputs[i].Signature.Signature()
	return sig, err == nil
}
