package ir

import (
	"fmt"

	"github.com/roach88/spaghetti/internal/data"
)

// Signature resolves the written signature. Encoding defaults to float and
// Coords and Length to 1.
func (s SignatureSpec) Signature() (data.Signature, error) {
	typ, err := data.ParseType(s.Type)
	if err != nil {
		return data.Signature{}, err
	}
	enc := data.Floating
	if s.Encoding != "" {
		if enc, err = data.ParseEncoding(s.Encoding); err != nil {
			return data.Signature{}, err
		}
	}
	coords, length := s.Coords, s.Length
	if coords == 0 {
		coords = 1
	}
	if length == 0 {
		length = 1
	}

	var sig data.Signature
	switch typ {
	case data.TypeValue:
		sig = data.Value(enc, coords, length)
	case data.TypeCurve:
		sig = data.Curve(coords, length)
	case data.TypeText:
		sig = data.Text(length)
	case data.TypeImage:
		sig = data.Image(length)
	case data.TypeBuffer:
		sig = data.Buffer(enc, coords, length)
	default:
		return data.Signature{}, fmt.Errorf("unsupported type %s", typ)
	}
	if err := sig.Validate(); err != nil {
		return data.Signature{}, err
	}
	return sig, nil
}
