package graph

import (
	"errors"
	"fmt"

	"github.com/roach88/spaghetti/internal/data"
)

// Kind is the closed set of processor variants: *Fragment, *Compute,
// *ImageReader, *BufferReader, *Script, *Builtin and *Group.
type Kind interface {
	// Name is the kind's stable identifier, as used in graph definitions.
	Name() string

	process(p *Processor) error
}

// slotMap maps a slot index from before an edit to its index after it. It
// reports false for the removed slot. A nil slotMap means no index moved.
type slotMap func(int) (int, bool)

// inputHook is implemented by kinds that hold state tied to input slots.
type inputHook interface {
	inputsChanged(p *Processor, moved slotMap)
}

// outputHook is implemented by kinds that hold state tied to output slots.
type outputHook interface {
	outputsChanged(p *Processor, moved slotMap)
}

func removedSlot(i int) slotMap {
	return func(k int) (int, bool) {
		switch {
		case k == i:
			return 0, false
		case k > i:
			return k - 1, true
		}
		return k, true
	}
}

func movedSlot(from, to int) slotMap {
	return func(k int) (int, bool) {
		switch {
		case k == from:
			return to, true
		case from < to && k > from && k <= to:
			return k - 1, true
		case to < from && k >= to && k < from:
			return k + 1, true
		}
		return k, true
	}
}

// Kind names.
const (
	KindFragment     = "fragment"
	KindCompute      = "compute"
	KindImageReader  = "image_reader"
	KindBufferReader = "buffer_reader"
	KindScript       = "script"
	KindBuiltin      = "builtin"
	KindGroup        = "group"
)

// ErrNoDevice is returned by GPU kinds when the session has no device.
var ErrNoDevice = errors.New("no GPU device in session environment")

// BuiltinFunc computes outputs from inputs. in holds each input's data for
// this pass and must not be modified. out holds the processor's own outputs;
// the function writes into them or replaces them with data of the same
// signature.
type BuiltinFunc func(in []*data.Data, out []*data.Data) error

// Builtin runs an injected Go function.
type Builtin struct {
	// Op names the function, for reporting.
	Op string
	Fn BuiltinFunc
}

// NewBuiltin wraps fn as a processor kind.
func NewBuiltin(op string, fn BuiltinFunc) *Builtin {
	return &Builtin{Op: op, Fn: fn}
}

func (b *Builtin) Name() string { return KindBuiltin }

func (b *Builtin) process(p *Processor) error {
	if b.Fn == nil {
		return fmt.Errorf("builtin %q has no function", b.Op)
	}
	in, err := inputData(p)
	if err != nil {
		return err
	}
	out := make([]*data.Data, len(p.outputs))
	copy(out, p.outputs)
	if err := b.Fn(in, out); err != nil {
		return fmt.Errorf("builtin %q: %w", b.Op, err)
	}
	for o, d := range out {
		prev := p.outputs[o]
		if d == prev {
			continue
		}
		if d == nil || (prev != nil && d.Signature != prev.Signature) {
			return fmt.Errorf("builtin %q: output %d replaced with a different signature", b.Op, o)
		}
		prev.Release()
		p.outputs[o] = d
	}
	return nil
}

func inputData(p *Processor) ([]*data.Data, error) {
	in := make([]*data.Data, len(p.inputs))
	for i := range p.inputs {
		d, err := p.InputData(i)
		if err != nil {
			return nil, err
		}
		in[i] = d
	}
	return in, nil
}
