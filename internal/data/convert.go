package data

import (
	"fmt"
	"math"
)

// CanLink reports whether a producer with signature out may feed a consumer
// with signature in.
func CanLink(out, in Signature) bool {
	switch in.Type {
	case TypeValue, TypeImage:
		return true
	case TypeCurve, TypeText:
		return out.Type == in.Type
	case TypeBuffer:
		return out == in
	default:
		return false
	}
}

// ConvertTo returns a new value shaped by target and filled from d.
//
// Pairs rejected by CanLink return a *MismatchError. Pairs CanLink accepts
// but that have no conversion return ErrConversionUnimplemented.
func (d *Data) ConvertTo(target Signature) (*Data, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if !CanLink(d.Signature, target) {
		return nil, &MismatchError{Producer: d.Signature, Consumer: target}
	}

	src, dst := d.Signature.Type, target.Type
	switch {
	case src == TypeValue && dst == TypeValue:
		return convertValue(d, target)
	case src == TypeCurve && dst == TypeCurve:
		return convertCurve(d, target)
	case src == TypeText && dst == TypeText:
		return convertText(d, target)
	case src == TypeBuffer && dst == TypeBuffer:
		out := d.Clone()
		out.Signature = target
		return out, nil
	case src == TypeImage && dst == TypeImage:
		out := d.Clone()
		if d.Signature != target {
			out.Release()
			return nil, fmt.Errorf("convert %s to %s: %w", d.Signature, target, ErrConversionUnimplemented)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("convert %s to %s: %w", d.Signature, target, ErrConversionUnimplemented)
	}
}

// scalars reads value payloads as float64, which holds every float32, int32
// and uint32 exactly.
func scalars(p Payload) [][]float64 {
	switch v := p.(type) {
	case Floats:
		return widen(v)
	case SInts:
		return widen(v)
	case UInts:
		return widen(v)
	default:
		return nil
	}
}

func widen[S ~[][]E, E float32 | int32 | uint32](rows S) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(r))
		for j, x := range r {
			out[i][j] = float64(x)
		}
	}
	return out
}

func convertValue(d *Data, target Signature) (*Data, error) {
	out, err := Make(target)
	if err != nil {
		return nil, err
	}
	out.Name = d.Name
	src := scalars(d.Payload)

	for i := 0; i < len(src) && i < int(target.ArrayLength); i++ {
		row := fillRow(src[i], int(target.NumCoords))
		switch p := out.Payload.(type) {
		case Floats:
			for j, x := range row {
				p[i][j] = float32(x)
			}
		case SInts:
			for j, x := range row {
				p[i][j] = toInt32(x)
			}
		case UInts:
			for j, x := range row {
				p[i][j] = toUint32(x)
			}
		}
	}
	return out, nil
}

// fillRow copies min(len(src), width) coords. A single copied coord is
// broadcast to the whole row; otherwise the tail stays zero.
func fillRow(src []float64, width int) []float64 {
	row := make([]float64, width)
	n := min(len(src), width)
	if n == 1 {
		for j := range row {
			row[j] = src[0]
		}
		return row
	}
	copy(row, src[:n])
	return row
}

func toInt32(x float64) int32 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt32:
		return math.MaxInt32
	case x <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(math.Trunc(x))
	}
}

func toUint32(x float64) uint32 {
	switch {
	case math.IsNaN(x), x <= 0:
		return 0
	case x >= math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(math.Trunc(x))
	}
}

// convertCurve copies the curves both widths share. Unlike scalars, a single
// curve is not broadcast: missing coordinates and missing elements hold
// ZeroCurve.
func convertCurve(d *Data, target Signature) (*Data, error) {
	out, err := Make(target)
	if err != nil {
		return nil, err
	}
	out.Name = d.Name
	src, ok := d.Payload.(Curves)
	if !ok {
		return nil, shapeErr(d.Signature, d.Payload)
	}
	dst := out.Payload.(Curves)

	for i := range dst {
		var row []CurvePoints
		if i < len(src) {
			row = src[i]
		}
		for j := range dst[i] {
			if j < len(row) {
				dst[i][j] = row[j].clone()
			} else {
				dst[i][j] = ZeroCurve()
			}
		}
	}
	return out, nil
}

func convertText(d *Data, target Signature) (*Data, error) {
	out, err := Make(target)
	if err != nil {
		return nil, err
	}
	out.Name = d.Name
	src, ok := d.Payload.(Texts)
	if !ok {
		return nil, shapeErr(d.Signature, d.Payload)
	}
	copy(out.Payload.(Texts), src)
	return out, nil
}
