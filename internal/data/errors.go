package data

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned for signatures with no valid shape.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNotProducible is returned by Make for types whose storage belongs
	// to the GPU collaborator (image, buffer) when no allocator is given.
	ErrNotProducible = errors.New("data type has no host constructor")

	// ErrTypeMismatch is returned when a producer cannot feed a consumer.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrConversionUnimplemented marks conversions CanLink accepts but that
	// have no implementation yet, such as value to image.
	ErrConversionUnimplemented = errors.New("conversion not implemented")
)

// MismatchError describes a rejected producer/consumer pair.
type MismatchError struct {
	Producer Signature
	Consumer Signature
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("type mismatch: %s cannot feed %s", e.Producer, e.Consumer)
}

// Unwrap lets errors.Is match ErrTypeMismatch.
func (e *MismatchError) Unwrap() error { return ErrTypeMismatch }
