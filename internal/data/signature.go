package data

import (
	"fmt"
	"strings"
)

// Type is the category of a Data value.
type Type int

const (
	TypeValue Type = iota
	TypeImage
	TypeBuffer
	TypeCurve
	TypeText
)

var typeNames = map[Type]string{
	TypeValue:  "value",
	TypeImage:  "image",
	TypeBuffer: "buffer",
	TypeCurve:  "curve",
	TypeText:   "text",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType parses the lowercase name of a Type.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// Encoding is the scalar representation of value and curve data.
type Encoding int

const (
	Floating Encoding = iota
	SignedInt
	UnsignedInt
)

var encodingNames = map[Encoding]string{
	Floating:    "float",
	SignedInt:   "int",
	UnsignedInt: "uint",
}

func (e Encoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// ParseEncoding parses "float", "int" or "uint".
func ParseEncoding(s string) (Encoding, error) {
	for e, name := range encodingNames {
		if strings.EqualFold(s, name) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown encoding %q", s)
}

// ImageCoords is the fixed channel count of image data.
const ImageCoords = 4

// Signature is the static type descriptor of a data slot.
// Two signatures are equal when every field is equal.
type Signature struct {
	Type        Type
	Encoding    Encoding
	NumCoords   uint32
	ArrayLength uint32
}

// Value returns a value signature.
func Value(enc Encoding, numCoords, arrayLength uint32) Signature {
	return Signature{Type: TypeValue, Encoding: enc, NumCoords: numCoords, ArrayLength: arrayLength}
}

// Float returns a single floating vector of the given width.
func Float(numCoords uint32) Signature {
	return Value(Floating, numCoords, 1)
}

// Curve returns a curve signature.
func Curve(numCoords, arrayLength uint32) Signature {
	return Signature{Type: TypeCurve, Encoding: Floating, NumCoords: numCoords, ArrayLength: arrayLength}
}

// Text returns a text signature holding arrayLength strings.
func Text(arrayLength uint32) Signature {
	return Signature{Type: TypeText, NumCoords: 1, ArrayLength: arrayLength}
}

// Image returns an image signature.
func Image(arrayLength uint32) Signature {
	return Signature{Type: TypeImage, Encoding: Floating, NumCoords: ImageCoords, ArrayLength: arrayLength}
}

// Buffer returns a buffer signature.
func Buffer(enc Encoding, numCoords, arrayLength uint32) Signature {
	return Signature{Type: TypeBuffer, Encoding: enc, NumCoords: numCoords, ArrayLength: arrayLength}
}

// Validate reports whether the signature describes a constructible shape.
func (s Signature) Validate() error {
	if _, ok := typeNames[s.Type]; !ok {
		return fmt.Errorf("%w: unknown type %d", ErrInvalidSignature, int(s.Type))
	}
	if _, ok := encodingNames[s.Encoding]; !ok {
		return fmt.Errorf("%w: unknown encoding %d", ErrInvalidSignature, int(s.Encoding))
	}
	if s.NumCoords == 0 {
		return fmt.Errorf("%w: num_coords must be positive", ErrInvalidSignature)
	}
	if s.ArrayLength == 0 {
		return fmt.Errorf("%w: array_length must be positive", ErrInvalidSignature)
	}
	if s.Type == TypeImage && s.NumCoords != ImageCoords {
		return fmt.Errorf("%w: images have %d coords, got %d", ErrInvalidSignature, ImageCoords, s.NumCoords)
	}
	return nil
}

func (s Signature) String() string {
	switch s.Type {
	case TypeValue, TypeCurve, TypeBuffer:
		return fmt.Sprintf("%s<%s%d>[%d]", s.Type, s.Encoding, s.NumCoords, s.ArrayLength)
	default:
		return fmt.Sprintf("%s[%d]", s.Type, s.ArrayLength)
	}
}
