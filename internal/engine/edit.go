package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/spaghetti/internal/graph"
	"github.com/roach88/spaghetti/internal/ir"
)

// EditOp names an edit.
type EditOp string

const (
	// OpLink links output From to input To, replacing any link into To.
	OpLink EditOp = "link"
	// OpUnlink removes the link into input To.
	OpUnlink EditOp = "unlink"
	// OpSet replaces the default of input To, or the value of output To
	// when the processor has no input of that name.
	OpSet EditOp = "set"
	// OpDirty marks processor To and everything downstream dirty.
	OpDirty EditOp = "dirty"
)

// Edit is a queued change to the live graph. Edits are applied between
// passes, never during one.
type Edit struct {
	Op    EditOp
	From  string // "processor.output" for OpLink
	To    string // "processor.slot", or a processor name for OpDirty
	Value []float64
	Text  []string
}

// Link returns an OpLink edit.
func Link(from, to string) Edit { return Edit{Op: OpLink, From: from, To: to} }

// Unlink returns an OpUnlink edit.
func Unlink(to string) Edit { return Edit{Op: OpUnlink, To: to} }

// Set returns an OpSet edit with numbers. A single number is broadcast.
func Set(to string, value ...float64) Edit { return Edit{Op: OpSet, To: to, Value: value} }

// SetText returns an OpSet edit with strings.
func SetText(to string, text ...string) Edit { return Edit{Op: OpSet, To: to, Text: text} }

// Dirty returns an OpDirty edit.
func Dirty(processor string) Edit { return Edit{Op: OpDirty, To: processor} }

func (e Edit) String() string {
	switch e.Op {
	case OpLink:
		return fmt.Sprintf("link %s -> %s", e.From, e.To)
	case OpSet:
		if len(e.Text) > 0 {
			return fmt.Sprintf("set %s = %q", e.To, e.Text)
		}
		return fmt.Sprintf("set %s = %s", e.To, formatValues(e.Value))
	default:
		return fmt.Sprintf("%s %s", e.Op, e.To)
	}
}

// Args encodes the edit's operands for the log. Numbers are stored as
// decimal strings.
func (e Edit) Args() ir.IRObject {
	args := ir.IRObject{"to": ir.IRString(e.To)}
	if e.From != "" {
		args["from"] = ir.IRString(e.From)
	}
	if len(e.Value) > 0 {
		vals := make(ir.IRArray, len(e.Value))
		for i, v := range e.Value {
			vals[i] = ir.Decimal(v)
		}
		args["value"] = vals
	}
	if len(e.Text) > 0 {
		args["text"] = ir.Strings(e.Text)
	}
	return args
}

// ParseEdit rebuilds an edit from its logged op and arguments.
func ParseEdit(op string, args ir.IRObject) (Edit, error) {
	e := Edit{Op: EditOp(op)}
	switch e.Op {
	case OpLink, OpUnlink, OpSet, OpDirty:
	default:
		return Edit{}, invalidEdit(fmt.Sprintf("unknown op %q", op))
	}

	var err error
	if e.To, err = stringArg(args, "to", true); err != nil {
		return Edit{}, err
	}
	if e.From, err = stringArg(args, "from", e.Op == OpLink); err != nil {
		return Edit{}, err
	}
	if raw, ok := args["value"]; ok {
		arr, ok := raw.(ir.IRArray)
		if !ok {
			return Edit{}, invalidEdit("value must be an array")
		}
		for i, x := range arr {
			s, ok := x.(ir.IRString)
			if !ok {
				return Edit{}, invalidEdit(fmt.Sprintf("value[%d] must be a decimal string", i))
			}
			f, err := strconv.ParseFloat(string(s), 64)
			if err != nil {
				return Edit{}, invalidEdit(fmt.Sprintf("value[%d]: %v", i, err))
			}
			e.Value = append(e.Value, f)
		}
	}
	if raw, ok := args["text"]; ok {
		arr, ok := raw.(ir.IRArray)
		if !ok {
			return Edit{}, invalidEdit("text must be an array")
		}
		for i, x := range arr {
			s, ok := x.(ir.IRString)
			if !ok {
				return Edit{}, invalidEdit(fmt.Sprintf("text[%d] must be a string", i))
			}
			e.Text = append(e.Text, string(s))
		}
	}
	return e, nil
}

func stringArg(args ir.IRObject, key string, required bool) (string, error) {
	raw, ok := args[key]
	if !ok {
		if required {
			return "", invalidEdit(key + " is required")
		}
		return "", nil
	}
	s, ok := raw.(ir.IRString)
	if !ok {
		return "", invalidEdit(key + " must be a string")
	}
	return string(s), nil
}

// EditResult is the outcome of one applied or rejected edit.
type EditResult struct {
	Seq    int64
	Edit   Edit
	LinkID graph.LinkID // link created or removed; 0 otherwise
	Err    error
}

// Applied reports whether the edit took effect.
func (r EditResult) Applied() bool { return r.Err == nil }

// apply performs one edit on the live graph.
func (e *Engine) apply(ed Edit) (graph.LinkID, error) {
	switch ed.Op {
	case OpLink:
		from, err := e.endpoint(ed.From, e.names.Output)
		if err != nil {
			return 0, err
		}
		to, err := e.endpoint(ed.To, e.names.Input)
		if err != nil {
			return 0, err
		}
		if from.Graph != to.Graph {
			return 0, invalidEdit(fmt.Sprintf("%s and %s are in different graphs", ed.From, ed.To))
		}
		return to.Graph.CreateLink(from.Addr, to.Addr)

	case OpUnlink:
		to, err := e.endpoint(ed.To, e.names.Input)
		if err != nil {
			return 0, err
		}
		l, ok := to.Graph.LinkInto(to.Addr)
		if !ok {
			return 0, invalidEdit(ed.To + " is not linked")
		}
		to.Graph.RemoveLink(l.ID)
		return l.ID, nil

	case OpSet:
		return 0, e.set(ed)

	case OpDirty:
		p, _, err := e.names.Processor(ed.To)
		if err != nil {
			return 0, err
		}
		p.SetNeedsUpdate()
		return 0, nil

	default:
		return 0, invalidEdit(fmt.Sprintf("unknown op %q", ed.Op))
	}
}

func (e *Engine) endpoint(s string, resolve func(ir.Endpoint) (Slot, error)) (Slot, error) {
	ep, err := ir.ParseEndpoint(s)
	if err != nil {
		return Slot{}, invalidEdit(err.Error())
	}
	return resolve(ep)
}

// set replaces an input default, or an output value when the processor has
// no input named like the slot.
func (e *Engine) set(ed Edit) error {
	ep, err := ir.ParseEndpoint(ed.To)
	if err != nil {
		return invalidEdit(err.Error())
	}
	p, _, err := e.names.Processor(ep.Processor)
	if err != nil {
		return err
	}

	for _, in := range p.Inputs() {
		if in.Name != ep.Slot {
			continue
		}
		d, err := initialData(in.Name, in.Signature, ed.Value, ed.Text)
		if err != nil {
			return invalidEdit(err.Error())
		}
		in.WithDefault(d)
		p.SetNeedsUpdate()
		return nil
	}

	for o, out := range p.Outputs() {
		if out == nil || out.Name != ep.Slot {
			continue
		}
		d, err := initialData(out.Name, out.Signature, ed.Value, ed.Text)
		if err != nil {
			return invalidEdit(err.Error())
		}
		return p.SetOutput(o, d)
	}
	return unknownName(fmt.Sprintf("%s (no slot %q)", ed.To, ep.Slot))
}

func formatValues(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ", ")
}
