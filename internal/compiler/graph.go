package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/spaghetti/internal/ir"
)

// CompileGraph parses a CUE value into a GraphSpec.
//
// The value is the graph struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`graph: demo: { processor: { ... }, link: [ ... ] }`)
//	spec, err := CompileGraph(v.LookupPath(cue.ParsePath("graph.demo")))
//
// Processors and slots keep their declaration order, which fixes slot
// indices and processor ids.
func CompileGraph(v cue.Value) (*ir.GraphSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.GraphSpec{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}
	if err := compileBody(v, spec); err != nil {
		return nil, err
	}
	if len(spec.Processors) == 0 {
		return nil, &CompileError{
			Field:   "processor",
			Message: "at least one processor is required",
			Pos:     v.Pos(),
		}
	}
	return spec, nil
}

// compileBody reads the processor and link fields shared by top-level graphs
// and group bodies.
func compileBody(v cue.Value, spec *ir.GraphSpec) error {
	procVal := v.LookupPath(cue.ParsePath("processor"))
	if procVal.Exists() {
		iter, err := procVal.Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for iter.Next() {
			p, err := compileProcessor(iter.Label(), iter.Value())
			if err != nil {
				return err
			}
			spec.Processors = append(spec.Processors, *p)
		}
	}

	linkVal := v.LookupPath(cue.ParsePath("link"))
	if linkVal.Exists() {
		iter, err := linkVal.List()
		if err != nil {
			return formatCUEError(err)
		}
		for iter.Next() {
			from, err := requiredString(iter.Value(), "from", "link")
			if err != nil {
				return err
			}
			to, err := requiredString(iter.Value(), "to", "link")
			if err != nil {
				return err
			}
			spec.Links = append(spec.Links, ir.LinkSpec{From: from, To: to})
		}
	}
	return nil
}

func compileProcessor(name string, v cue.Value) (*ir.ProcessorSpec, error) {
	p := &ir.ProcessorSpec{Name: name}
	field := "processor." + name

	kind, err := requiredString(v, "kind", field)
	if err != nil {
		return nil, err
	}
	p.Kind = kind

	strs := []struct {
		key string
		dst *string
	}{
		{"display_name", &p.DisplayName},
		{"template", &p.Template},
		{"source", &p.Source},
		{"entry_point", &p.EntryPoint},
		{"path", &p.Path},
		{"builtin", &p.Builtin},
	}
	for _, s := range strs {
		if *s.dst, err = optionalString(v, s.key); err != nil {
			return nil, err
		}
	}
	if p.Width, err = optionalUint32(v, "width"); err != nil {
		return nil, err
	}
	if p.Height, err = optionalUint32(v, "height"); err != nil {
		return nil, err
	}

	if wg := v.LookupPath(cue.ParsePath("workgroups")); wg.Exists() {
		iter, err := wg.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			if i >= 3 {
				return nil, &CompileError{Field: field + ".workgroups", Message: "at most 3 dimensions", Pos: wg.Pos()}
			}
			n, err := iter.Value().Uint64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			p.Workgroups[i] = uint32(n)
		}
	}

	if exprs := v.LookupPath(cue.ParsePath("expressions")); exprs.Exists() {
		iter, err := exprs.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		p.Expressions = make(map[string]string)
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			p.Expressions[iter.Label()] = s
		}
	}

	if p.Inputs, err = compileInputs(v, field); err != nil {
		return nil, err
	}
	if p.Outputs, err = compileOutputs(v, field); err != nil {
		return nil, err
	}

	if body := v.LookupPath(cue.ParsePath("group")); body.Exists() {
		inner := &ir.GraphSpec{Name: name}
		if err := compileBody(body, inner); err != nil {
			return nil, err
		}
		p.Group = inner
	}
	if p.Imports, err = compileImports(v, field); err != nil {
		return nil, err
	}
	if p.Exports, err = compileExports(v, field); err != nil {
		return nil, err
	}
	return p, nil
}

func compileInputs(v cue.Value, field string) ([]ir.InputSpec, error) {
	val := v.LookupPath(cue.ParsePath("input"))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var inputs []ir.InputSpec
	for iter.Next() {
		slot := iter.Value()
		in := ir.InputSpec{Name: iter.Label()}
		if in.Signature, err = compileSignature(slot, field+".input."+in.Name); err != nil {
			return nil, err
		}
		if in.Value, in.Text, err = compileInitial(slot); err != nil {
			return nil, err
		}
		if nd := slot.LookupPath(cue.ParsePath("no_default")); nd.Exists() {
			if in.NoDefault, err = nd.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func compileOutputs(v cue.Value, field string) ([]ir.OutputSpec, error) {
	val := v.LookupPath(cue.ParsePath("output"))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var outputs []ir.OutputSpec
	for iter.Next() {
		slot := iter.Value()
		out := ir.OutputSpec{Name: iter.Label()}
		if out.Signature, err = compileSignature(slot, field+".output."+out.Name); err != nil {
			return nil, err
		}
		if out.Value, out.Text, err = compileInitial(slot); err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func compileSignature(v cue.Value, field string) (ir.SignatureSpec, error) {
	var sig ir.SignatureSpec
	var err error
	if sig.Type, err = requiredString(v, "type", field); err != nil {
		return sig, err
	}
	if sig.Encoding, err = optionalString(v, "encoding"); err != nil {
		return sig, err
	}
	if sig.Coords, err = optionalUint32(v, "coords"); err != nil {
		return sig, err
	}
	if sig.Length, err = optionalUint32(v, "length"); err != nil {
		return sig, err
	}
	return sig, nil
}

// compileInitial reads "value" (a number or list of numbers) and "text" (a
// string or list of strings).
func compileInitial(v cue.Value) ([]float64, []string, error) {
	var nums []float64
	var texts []string

	if val := v.LookupPath(cue.ParsePath("value")); val.Exists() {
		if f, err := val.Float64(); err == nil {
			nums = []float64{f}
		} else {
			iter, err := val.List()
			if err != nil {
				return nil, nil, &CompileError{Field: "value", Message: "must be a number or a list of numbers", Pos: val.Pos()}
			}
			for iter.Next() {
				f, err := iter.Value().Float64()
				if err != nil {
					return nil, nil, formatCUEError(err)
				}
				nums = append(nums, f)
			}
		}
	}

	if val := v.LookupPath(cue.ParsePath("text")); val.Exists() {
		if s, err := val.String(); err == nil {
			texts = []string{s}
		} else {
			iter, err := val.List()
			if err != nil {
				return nil, nil, &CompileError{Field: "text", Message: "must be a string or a list of strings", Pos: val.Pos()}
			}
			for iter.Next() {
				s, err := iter.Value().String()
				if err != nil {
					return nil, nil, formatCUEError(err)
				}
				texts = append(texts, s)
			}
		}
	}
	return nums, texts, nil
}

func compileImports(v cue.Value, field string) ([]ir.ImportSpec, error) {
	val := v.LookupPath(cue.ParsePath("import"))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var imports []ir.ImportSpec
	for iter.Next() {
		input, err := requiredString(iter.Value(), "input", field+".import")
		if err != nil {
			return nil, err
		}
		to, err := requiredString(iter.Value(), "to", field+".import")
		if err != nil {
			return nil, err
		}
		imports = append(imports, ir.ImportSpec{Input: input, To: to})
	}
	return imports, nil
}

func compileExports(v cue.Value, field string) ([]ir.ExportSpec, error) {
	val := v.LookupPath(cue.ParsePath("export"))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var exports []ir.ExportSpec
	for iter.Next() {
		output, err := requiredString(iter.Value(), "output", field+".export")
		if err != nil {
			return nil, err
		}
		from, err := requiredString(iter.Value(), "from", field+".export")
		if err != nil {
			return nil, err
		}
		exports = append(exports, ir.ExportSpec{Output: output, From: from})
	}
	return exports, nil
}

func requiredString(v cue.Value, key, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return "", &CompileError{
			Field:   field + "." + key,
			Message: key + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, key string) (string, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalUint32(v cue.Value, key string) (uint32, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return 0, nil
	}
	n, err := val.Uint64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if n > 1<<32-1 {
		return 0, &CompileError{Field: key, Message: fmt.Sprintf("%d out of range", n), Pos: val.Pos()}
	}
	return uint32(n), nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
