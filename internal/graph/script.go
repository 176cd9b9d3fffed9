package graph

import (
	"fmt"
	"math"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/roach88/spaghetti/internal/data"
)

// Script computes each output from an HCL expression over the inputs.
//
// Inputs are variables named after the input. Value inputs are a tuple of
// elements, each a tuple of numbers; text inputs are a tuple of strings.
// An expression result fills its output as follows: a number or string
// fills every coordinate of every element, a flat tuple fills every element,
// and a tuple of tuples fills element by element.
type Script struct {
	// Expressions maps output names to HCL expressions.
	Expressions map[string]string

	parsed map[string]hcl.Expression
}

func (s *Script) Name() string { return KindScript }

func (s *Script) outputsChanged(*Processor, slotMap) { s.parsed = nil }

var scriptFunctions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"ceil":   stdlib.CeilFunc,
	"floor":  stdlib.FloorFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"pow":    stdlib.PowFunc,
	"signum": stdlib.SignumFunc,
	"length": stdlib.LengthFunc,
	"concat": stdlib.ConcatFunc,
	"upper":  stdlib.UpperFunc,
	"lower":  stdlib.LowerFunc,
	"join":   stdlib.JoinFunc,
	"format": stdlib.FormatFunc,
	"strlen": stdlib.StrlenFunc,
}

// Parse checks every expression and caches the result.
func (s *Script) Parse() error {
	if s.parsed != nil {
		return nil
	}
	parsed := make(map[string]hcl.Expression, len(s.Expressions))
	for name, src := range s.Expressions {
		expr, diags := hclsyntax.ParseExpression([]byte(src), name+".hcl", hcl.Pos{Line: 1, Column: 1})
		if diags.HasErrors() {
			return fmt.Errorf("parse expression for %q: %s", name, diags.Error())
		}
		parsed[name] = expr
	}
	s.parsed = parsed
	return nil
}

func (s *Script) process(p *Processor) error {
	if err := s.Parse(); err != nil {
		return err
	}
	vars := make(map[string]cty.Value, len(p.inputs))
	for i, in := range p.inputs {
		d, err := p.InputData(i)
		if err != nil {
			return err
		}
		v, err := toCty(d)
		if err != nil {
			return fmt.Errorf("input %q: %w", in.Name, err)
		}
		vars[in.Name] = v
	}
	ctx := &hcl.EvalContext{Variables: vars, Functions: scriptFunctions}

	for o, out := range p.outputs {
		if out == nil {
			continue
		}
		expr, ok := s.parsed[out.Name]
		if !ok {
			continue
		}
		val, diags := expr.Value(ctx)
		if diags.HasErrors() {
			return fmt.Errorf("evaluate %q: %s", out.Name, diags.Error())
		}
		next, err := fromCty(val, out.Signature)
		if err != nil {
			return fmt.Errorf("output %d %q: %w", o, out.Name, err)
		}
		next.Name = out.Name
		p.outputs[o] = next
	}
	return nil
}

func toCty(d *data.Data) (cty.Value, error) {
	switch v := d.Payload.(type) {
	case data.Floats:
		return rowsToCty(v)
	case data.SInts:
		return rowsToCty(v)
	case data.UInts:
		return rowsToCty(v)
	case data.Texts:
		if len(v) == 0 {
			return cty.EmptyTupleVal, nil
		}
		vals := make([]cty.Value, len(v))
		for i, s := range v {
			vals[i] = cty.StringVal(s)
		}
		return cty.TupleVal(vals), nil
	default:
		return cty.NilVal, fmt.Errorf("%s data is not available to scripts", d.Signature.Type)
	}
}

func rowsToCty[S ~[][]E, E float32 | int32 | uint32](rows S) (cty.Value, error) {
	if len(rows) == 0 {
		return cty.EmptyTupleVal, nil
	}
	elems := make([]cty.Value, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			elems[i] = cty.EmptyTupleVal
			continue
		}
		coords := make([]cty.Value, len(row))
		for j, x := range row {
			f := float64(x)
			if math.IsNaN(f) {
				return cty.NilVal, fmt.Errorf("element %d coord %d is NaN", i, j)
			}
			coords[j] = cty.NumberFloatVal(f)
		}
		elems[i] = cty.TupleVal(coords)
	}
	return cty.TupleVal(elems), nil
}

// fromCty writes an expression result into fresh data of signature sig.
// Values go through a floating buffer and ConvertTo, so integer outputs get
// the usual truncation and saturation.
func fromCty(val cty.Value, sig data.Signature) (*data.Data, error) {
	if val.IsNull() || !val.IsWhollyKnown() {
		return nil, fmt.Errorf("expression result is null or unknown")
	}
	switch sig.Type {
	case data.TypeValue:
		rows, err := ctyRows(val, int(sig.ArrayLength), int(sig.NumCoords))
		if err != nil {
			return nil, err
		}
		floats := &data.Data{
			Signature: data.Value(data.Floating, sig.NumCoords, sig.ArrayLength),
			Payload:   rows,
		}
		return floats.ConvertTo(sig)
	case data.TypeText:
		out, err := data.Make(sig)
		if err != nil {
			return nil, err
		}
		texts := out.Payload.(data.Texts)
		if val.Type().Equals(cty.String) {
			for i := range texts {
				texts[i] = val.AsString()
			}
			return out, nil
		}
		if !isSequence(val) {
			return nil, fmt.Errorf("text output needs a string or a tuple of strings, got %s", val.Type().FriendlyName())
		}
		for i, ev := range val.AsValueSlice() {
			if i >= len(texts) {
				break
			}
			if !ev.Type().Equals(cty.String) {
				return nil, fmt.Errorf("element %d: want string, got %s", i, ev.Type().FriendlyName())
			}
			texts[i] = ev.AsString()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("scripts cannot produce %s data", sig.Type)
	}
}

func isSequence(v cty.Value) bool {
	t := v.Type()
	return t.IsTupleType() || t.IsListType()
}

func ctyNumber(v cty.Value) (float32, error) {
	var f float64
	if err := gocty.FromCtyValue(v, &f); err != nil {
		return 0, err
	}
	return float32(f), nil
}

func ctyRows(val cty.Value, n, c int) (data.Floats, error) {
	rows := make(data.Floats, n)
	for i := range rows {
		rows[i] = make([]float32, c)
	}

	if val.Type().Equals(cty.Number) {
		f, err := ctyNumber(val)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			for j := range rows[i] {
				rows[i][j] = f
			}
		}
		return rows, nil
	}
	if !isSequence(val) {
		return nil, fmt.Errorf("value output needs a number or tuple, got %s", val.Type().FriendlyName())
	}

	elems := val.AsValueSlice()
	nested := len(elems) > 0 && isSequence(elems[0])
	if !nested {
		row, err := ctyRow(elems, c)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			copy(rows[i], row)
		}
		return rows, nil
	}
	for i, ev := range elems {
		if i >= n {
			break
		}
		if !isSequence(ev) {
			return nil, fmt.Errorf("element %d: want tuple, got %s", i, ev.Type().FriendlyName())
		}
		row, err := ctyRow(ev.AsValueSlice(), c)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		copy(rows[i], row)
	}
	return rows, nil
}

func ctyRow(vals []cty.Value, c int) ([]float32, error) {
	row := make([]float32, c)
	for j, v := range vals {
		if j >= c {
			break
		}
		f, err := ctyNumber(v)
		if err != nil {
			return nil, fmt.Errorf("coord %d: %w", j, err)
		}
		row[j] = f
	}
	return row, nil
}
