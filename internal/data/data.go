package data

import (
	"fmt"

	"github.com/roach88/spaghetti/internal/gpu"
)

// Payload is the storage behind a Data value.
//
// Implemented by exactly: Floats, SInts, UInts, Curves, Texts, Images, Buffers.
type Payload interface {
	payload()
}

// Floats stores floating value data indexed [element][coord].
type Floats [][]float32

// SInts stores signed value data indexed [element][coord].
type SInts [][]int32

// UInts stores unsigned value data indexed [element][coord].
type UInts [][]uint32

// Curves stores curve data indexed [element][coord].
type Curves [][]CurvePoints

// Texts stores one string per element.
type Texts []string

// Images stores one shared texture per element.
type Images []*gpu.Texture

// Buffers stores one shared buffer per element.
type Buffers []*gpu.Buffer

func (Floats) payload()  {}
func (SInts) payload()   {}
func (UInts) payload()   {}
func (Curves) payload()  {}
func (Texts) payload()   {}
func (Images) payload()  {}
func (Buffers) payload() {}

// CurvePoint is one control point of a curve with its two tangents.
type CurvePoint struct {
	Position     [2]float32
	TangentLeft  [2]float32
	TangentRight [2]float32
}

// CurvePoints is an ordered list of control points.
type CurvePoints struct {
	Points []CurvePoint
}

// IdentityCurve returns the default curve of freshly made curve data.
func IdentityCurve() CurvePoints {
	return CurvePoints{Points: []CurvePoint{
		{Position: [2]float32{0, 0}, TangentLeft: [2]float32{1, 1}, TangentRight: [2]float32{1, 1}},
		{Position: [2]float32{1, 1}, TangentLeft: [2]float32{1, 1}, TangentRight: [2]float32{1, 1}},
	}}
}

// ZeroCurve returns two control points at the origin with zero tangents.
func ZeroCurve() CurvePoints {
	return CurvePoints{Points: []CurvePoint{{}, {}}}
}

func (c CurvePoints) clone() CurvePoints {
	return CurvePoints{Points: append([]CurvePoint(nil), c.Points...)}
}

// Data is a named, typed payload. The payload shape always matches Signature.
type Data struct {
	Name      string
	Signature Signature
	Payload   Payload
}

// Allocator creates GPU-resident storage for image and buffer data.
// gpu.Device satisfies it.
type Allocator interface {
	CreateTexture(desc gpu.TextureDesc) (*gpu.Texture, error)
	CreateBuffer(desc gpu.BufferDesc) (*gpu.Buffer, error)
}

// Make returns zero-initialised data for sig. Curves start as the identity
// curve and text as empty strings. Image and buffer data cannot be made on
// the host and return ErrNotProducible.
func Make(sig Signature) (*Data, error) {
	return MakeOn(nil, sig)
}

// MakeOn is Make with image and buffer storage allocated through alloc.
// A nil alloc behaves exactly like Make.
func MakeOn(alloc Allocator, sig Signature) (*Data, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	n, c := int(sig.ArrayLength), int(sig.NumCoords)

	d := &Data{Signature: sig}
	switch sig.Type {
	case TypeValue:
		d.Payload = makeScalars(sig.Encoding, n, c)
	case TypeCurve:
		curves := make(Curves, n)
		for i := range curves {
			curves[i] = make([]CurvePoints, c)
			for j := range curves[i] {
				curves[i][j] = IdentityCurve()
			}
		}
		d.Payload = curves
	case TypeText:
		d.Payload = make(Texts, n)
	case TypeImage:
		if alloc == nil {
			return nil, fmt.Errorf("make %s: %w", sig, ErrNotProducible)
		}
		images := make(Images, 0, n)
		for i := 0; i < n; i++ {
			tex, err := alloc.CreateTexture(gpu.TextureDesc{
				Label:  fmt.Sprintf("image[%d]", i),
				Width:  1,
				Height: 1,
				Format: gpu.FormatRGBA32Float,
			})
			if err != nil {
				images.release()
				return nil, fmt.Errorf("make %s: %w", sig, err)
			}
			images = append(images, tex)
		}
		d.Payload = images
	case TypeBuffer:
		if alloc == nil {
			return nil, fmt.Errorf("make %s: %w", sig, ErrNotProducible)
		}
		buffers := make(Buffers, 0, n)
		for i := 0; i < n; i++ {
			buf, err := alloc.CreateBuffer(gpu.BufferDesc{
				Label: fmt.Sprintf("buffer[%d]", i),
				Size:  uint64(c) * 4,
			})
			if err != nil {
				buffers.release()
				return nil, fmt.Errorf("make %s: %w", sig, err)
			}
			buffers = append(buffers, buf)
		}
		d.Payload = buffers
	}
	return d, nil
}

func makeScalars(enc Encoding, n, c int) Payload {
	switch enc {
	case SignedInt:
		p := make(SInts, n)
		for i := range p {
			p[i] = make([]int32, c)
		}
		return p
	case UnsignedInt:
		p := make(UInts, n)
		for i := range p {
			p[i] = make([]uint32, c)
		}
		return p
	default:
		p := make(Floats, n)
		for i := range p {
			p[i] = make([]float32, c)
		}
		return p
	}
}

// Clone returns a deep copy. Image and buffer handles are shared and retained.
func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	out := &Data{Name: d.Name, Signature: d.Signature}
	switch p := d.Payload.(type) {
	case Floats:
		out.Payload = cloneRows(p)
	case SInts:
		out.Payload = cloneRows(p)
	case UInts:
		out.Payload = cloneRows(p)
	case Curves:
		c := make(Curves, len(p))
		for i, row := range p {
			c[i] = make([]CurvePoints, len(row))
			for j, cp := range row {
				c[i][j] = cp.clone()
			}
		}
		out.Payload = c
	case Texts:
		out.Payload = append(Texts(nil), p...)
	case Images:
		imgs := make(Images, len(p))
		for i, t := range p {
			imgs[i] = t.Retain()
		}
		out.Payload = imgs
	case Buffers:
		bufs := make(Buffers, len(p))
		for i, b := range p {
			bufs[i] = b.Retain()
		}
		out.Payload = bufs
	}
	return out
}

func cloneRows[S ~[][]E, E any](rows S) S {
	out := make(S, len(rows))
	for i, r := range rows {
		out[i] = append([]E(nil), r...)
	}
	return out
}

// Release drops this value's hold on any GPU handles.
func (d *Data) Release() {
	if d == nil {
		return
	}
	switch p := d.Payload.(type) {
	case Images:
		p.release()
	case Buffers:
		p.release()
	}
}

func (p Images) release() {
	for _, t := range p {
		if t != nil {
			t.Release()
		}
	}
}

func (p Buffers) release() {
	for _, b := range p {
		if b != nil {
			b.Release()
		}
	}
}

// CheckShape verifies that the payload matches the signature.
func (d *Data) CheckShape() error {
	sig := d.Signature
	if err := sig.Validate(); err != nil {
		return err
	}
	n, c := int(sig.ArrayLength), int(sig.NumCoords)

	var got int
	var rows []int
	switch p := d.Payload.(type) {
	case Floats:
		got, rows = len(p), rowLens(p)
		if sig.Type != TypeValue || sig.Encoding != Floating {
			return shapeErr(sig, p)
		}
	case SInts:
		got, rows = len(p), rowLens(p)
		if sig.Type != TypeValue || sig.Encoding != SignedInt {
			return shapeErr(sig, p)
		}
	case UInts:
		got, rows = len(p), rowLens(p)
		if sig.Type != TypeValue || sig.Encoding != UnsignedInt {
			return shapeErr(sig, p)
		}
	case Curves:
		got, rows = len(p), rowLens(p)
		if sig.Type != TypeCurve {
			return shapeErr(sig, p)
		}
	case Texts:
		got = len(p)
		if sig.Type != TypeText {
			return shapeErr(sig, p)
		}
	case Images:
		got = len(p)
		if sig.Type != TypeImage {
			return shapeErr(sig, p)
		}
	case Buffers:
		got = len(p)
		if sig.Type != TypeBuffer {
			return shapeErr(sig, p)
		}
	default:
		return fmt.Errorf("data %q: no payload", d.Name)
	}

	if got != n {
		return fmt.Errorf("data %q: %d elements, signature %s wants %d", d.Name, got, sig, n)
	}
	for i, l := range rows {
		if l != c {
			return fmt.Errorf("data %q: element %d has %d coords, signature %s wants %d", d.Name, i, l, sig, c)
		}
	}
	return nil
}

func rowLens[S ~[][]E, E any](rows S) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = len(r)
	}
	return out
}

func shapeErr(sig Signature, p Payload) error {
	return fmt.Errorf("payload %T does not match signature %s", p, sig)
}
