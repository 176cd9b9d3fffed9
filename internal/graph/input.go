package graph

import (
	"errors"
	"fmt"

	"github.com/roach88/spaghetti/internal/data"
)

// Input is a consumer-side slot. It binds to at most one producer output.
//
// The input owns its Default and its converted cache. It never owns the
// producer's data: Link is an address, resolved through the registry on
// every read.
type Input struct {
	Name      string
	Signature data.Signature
	Link      DataAddress
	Default   *data.Data

	converted    *data.Data
	convertedRev uint64
}

// NewInput declares an unlinked input with no default.
func NewInput(name string, sig data.Signature) *Input {
	return &Input{Name: name, Signature: sig}
}

// WithDefault sets d as the default value and returns the input.
func (in *Input) WithDefault(d *data.Data) *Input {
	in.Default.Release()
	in.Default = d
	return in
}

// producer resolves the linked output. It returns false when the input is
// unlinked, the producer is gone or the slot no longer exists.
func (in *Input) producer(reg *Registry) (*Processor, *data.Data, bool) {
	if !in.Link.Linked() {
		return nil, nil, false
	}
	p, ok := reg.Get(in.Link.Processor)
	if !ok {
		return nil, nil, false
	}
	out, ok := p.Output(in.Link.Index)
	if !ok || out == nil {
		return p, nil, false
	}
	return p, out, true
}

// GetInputData returns the data this input reads this pass, or nil.
//
// A live producer with the same signature is read directly. A differing
// signature reads the converted cache. Unlinked inputs, and inputs whose
// producer is gone, fall back to Default. Nil means not ready.
func (in *Input) GetInputData(reg *Registry) *data.Data {
	if _, out, ok := in.producer(reg); ok {
		if out.Signature == in.Signature {
			return out
		}
		return in.converted
	}
	return in.Default
}

// SetupLink revalidates the link and rebuilds the converted cache.
//
// The cache is cleared first, so a failed setup never leaves stale data.
func (in *Input) SetupLink(reg *Registry) error {
	in.clearCache()
	if !in.Link.Linked() {
		return nil
	}
	p, ok := reg.Get(in.Link.Processor)
	if !ok {
		return unknownProcessor(in.Link.Processor)
	}
	out, ok := p.Output(in.Link.Index)
	if !ok {
		return unknownSlot(p.ID(), "output", in.Link.Index, len(p.outputs))
	}
	if out == nil {
		return notReady(p.ID(), fmt.Sprintf("output %d", in.Link.Index))
	}
	if !data.CanLink(out.Signature, in.Signature) {
		return &data.MismatchError{Producer: out.Signature, Consumer: in.Signature}
	}
	if out.Signature == in.Signature {
		in.convertedRev = p.Revision()
		return nil
	}
	conv, err := out.ConvertTo(in.Signature)
	if err != nil {
		return err
	}
	conv.Name = in.Name
	in.converted = conv
	in.convertedRev = p.Revision()
	return nil
}

// stale reports whether the converted cache no longer matches the producer.
func (in *Input) stale(reg *Registry) bool {
	p, out, ok := in.producer(reg)
	if !ok || out.Signature == in.Signature {
		return false
	}
	return in.converted == nil || in.convertedRev != p.Revision()
}

// ResetDefaultValue replaces Default with fresh data for the input's
// signature. Image and buffer defaults need alloc; without one the input is
// left with no default.
func (in *Input) ResetDefaultValue(alloc data.Allocator) error {
	d, err := data.MakeOn(alloc, in.Signature)
	if errors.Is(err, data.ErrNotProducible) {
		in.WithDefault(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("input %q: %w", in.Name, err)
	}
	d.Name = in.Name
	in.WithDefault(d)
	return nil
}

func (in *Input) clearCache() {
	in.converted.Release()
	in.converted = nil
	in.convertedRev = 0
}

func (in *Input) release() {
	in.clearCache()
	in.WithDefault(nil)
}
