package engine

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/graph"
)

// Library maps builtin names to their functions.
type Library map[string]graph.BuiltinFunc

// DefaultLibrary returns the builtins every engine starts with.
//
//	constant     keeps its outputs as declared; inputs are ignored
//	passthrough  copies input i to output i, converting to the output signature
//	add          element-wise sum of every input
//	multiply     element-wise product of every input
//	mix          a + (b - a) * t for inputs a, b, t
//	length       Euclidean length of each element of input 0
//	concat       element-wise concatenation of text inputs
func DefaultLibrary() Library {
	return Library{
		"constant":    constant,
		"passthrough": passthrough,
		"add":         fold(0, func(acc, x float64) float64 { return acc + x }),
		"multiply":    fold(1, func(acc, x float64) float64 { return acc * x }),
		"mix":         mix,
		"length":      length,
		"concat":      concat,
	}
}

// Names returns the library's builtin names, sorted.
func (l Library) Names() []string {
	return slices.Sorted(maps.Keys(l))
}

// With returns a copy of l with extra's entries added or replaced.
func (l Library) With(extra Library) Library {
	out := maps.Clone(l)
	if out == nil {
		out = Library{}
	}
	maps.Copy(out, extra)
	return out
}

var errNoOutput = errors.New("builtin needs at least one output")

func constant(_ []*data.Data, _ []*data.Data) error { return nil }

func passthrough(in []*data.Data, out []*data.Data) error {
	for i := range min(len(in), len(out)) {
		d, err := reshape(in[i], out[i].Signature)
		if err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		d.Name = out[i].Name
		out[i] = d
	}
	return nil
}

// reshape returns a private copy of d in signature sig.
func reshape(d *data.Data, sig data.Signature) (*data.Data, error) {
	if d.Signature == sig {
		return d.Clone(), nil
	}
	return d.ConvertTo(sig)
}

// floats reads d as float rows shaped like sig. Scalars broadcast like a
// link conversion.
func floats(d *data.Data, sig data.Signature) (data.Floats, error) {
	if d.Signature.Type != data.TypeValue {
		return nil, fmt.Errorf("%s is not a value", d.Signature)
	}
	v, err := d.ConvertTo(data.Value(data.Floating, sig.NumCoords, sig.ArrayLength))
	if err != nil {
		return nil, err
	}
	return v.Payload.(data.Floats), nil
}

// writeFloats writes float rows into out[0], converting to its signature.
func writeFloats(out []*data.Data, rows data.Floats) error {
	target := out[0].Signature
	src := &data.Data{
		Name:      out[0].Name,
		Signature: data.Value(data.Floating, target.NumCoords, target.ArrayLength),
		Payload:   rows,
	}
	d, err := src.ConvertTo(target)
	if err != nil {
		return err
	}
	out[0] = d
	return nil
}

// fold combines every input element-wise in the shape of output 0.
func fold(identity float64, op func(acc, x float64) float64) graph.BuiltinFunc {
	return func(in []*data.Data, out []*data.Data) error {
		if len(out) == 0 {
			return errNoOutput
		}
		sig := out[0].Signature
		acc := make(data.Floats, sig.ArrayLength)
		for i := range acc {
			acc[i] = make([]float32, sig.NumCoords)
			for j := range acc[i] {
				acc[i][j] = float32(identity)
			}
		}
		for k, d := range in {
			rows, err := floats(d, sig)
			if err != nil {
				return fmt.Errorf("input %d: %w", k, err)
			}
			for i := range acc {
				for j := range acc[i] {
					acc[i][j] = float32(op(float64(acc[i][j]), float64(rows[i][j])))
				}
			}
		}
		return writeFloats(out, acc)
	}
}

func mix(in []*data.Data, out []*data.Data) error {
	if len(out) == 0 {
		return errNoOutput
	}
	if len(in) != 3 {
		return fmt.Errorf("mix needs inputs a, b, t; got %d", len(in))
	}
	sig := out[0].Signature
	var args [3]data.Floats
	for k := range args {
		rows, err := floats(in[k], sig)
		if err != nil {
			return fmt.Errorf("input %d: %w", k, err)
		}
		args[k] = rows
	}
	a, b, t := args[0], args[1], args[2]
	res := make(data.Floats, len(a))
	for i := range a {
		res[i] = make([]float32, len(a[i]))
		for j := range a[i] {
			res[i][j] = a[i][j] + (b[i][j]-a[i][j])*t[i][j]
		}
	}
	return writeFloats(out, res)
}

func length(in []*data.Data, out []*data.Data) error {
	if len(out) == 0 {
		return errNoOutput
	}
	if len(in) == 0 {
		return errors.New("length needs an input")
	}
	src := in[0].Signature
	rows, err := floats(in[0], src)
	if err != nil {
		return fmt.Errorf("input 0: %w", err)
	}
	res := make(data.Floats, len(rows))
	for i, row := range rows {
		var sum float64
		for _, x := range row {
			sum += float64(x) * float64(x)
		}
		res[i] = []float32{float32(math.Sqrt(sum))}
	}
	lengths := &data.Data{
		Signature: data.Value(data.Floating, 1, src.ArrayLength),
		Payload:   res,
	}
	d, err := lengths.ConvertTo(out[0].Signature)
	if err != nil {
		return err
	}
	d.Name = out[0].Name
	out[0] = d
	return nil
}

func concat(in []*data.Data, out []*data.Data) error {
	if len(out) == 0 {
		return errNoOutput
	}
	sig := out[0].Signature
	if sig.Type != data.TypeText {
		return fmt.Errorf("concat output is %s, want text", sig)
	}
	parts := make([]strings.Builder, sig.ArrayLength)
	for k, d := range in {
		v, err := d.ConvertTo(sig)
		if err != nil {
			return fmt.Errorf("input %d: %w", k, err)
		}
		for i, s := range v.Payload.(data.Texts) {
			parts[i].WriteString(s)
		}
	}
	res, err := data.Make(sig)
	if err != nil {
		return err
	}
	res.Name = out[0].Name
	texts := res.Payload.(data.Texts)
	for i := range parts {
		texts[i] = parts[i].String()
	}
	out[0] = res
	return nil
}
