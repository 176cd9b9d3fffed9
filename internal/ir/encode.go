package ir

import (
	"fmt"

	"github.com/roach88/spaghetti/internal/data"
)

// ToIR encodes the graph definition for canonical marshaling. Empty
// optional fields are left out so that adding a field with its zero value
// does not change existing digests.
func (g *GraphSpec) ToIR() IRObject {
	procs := make(IRArray, len(g.Processors))
	for i := range g.Processors {
		procs[i] = g.Processors[i].ToIR()
	}
	links := make(IRArray, len(g.Links))
	for i, l := range g.Links {
		links[i] = IRObject{"from": IRString(l.From), "to": IRString(l.To)}
	}
	return IRObject{
		"name":       IRString(g.Name),
		"processors": procs,
		"links":      links,
	}
}

// ToIR encodes the processor definition.
func (p *ProcessorSpec) ToIR() IRObject {
	obj := IRObject{
		"name": IRString(p.Name),
		"kind": IRString(p.Kind),
	}
	setString(obj, "display_name", p.DisplayName)
	setString(obj, "template", p.Template)
	setString(obj, "source", p.Source)
	setString(obj, "entry_point", p.EntryPoint)
	setString(obj, "path", p.Path)
	setString(obj, "builtin", p.Builtin)
	if p.Width != 0 {
		obj["width"] = IRInt(p.Width)
	}
	if p.Height != 0 {
		obj["height"] = IRInt(p.Height)
	}
	if p.Workgroups != [3]uint32{} {
		obj["workgroups"] = IRArray{IRInt(p.Workgroups[0]), IRInt(p.Workgroups[1]), IRInt(p.Workgroups[2])}
	}
	if len(p.Expressions) > 0 {
		exprs := make(IRObject, len(p.Expressions))
		for k, v := range p.Expressions {
			exprs[k] = IRString(v)
		}
		obj["expressions"] = exprs
	}
	if len(p.Inputs) > 0 {
		ins := make(IRArray, len(p.Inputs))
		for i, in := range p.Inputs {
			o := slotIR(in.Name, in.Signature, in.Value, in.Text)
			if in.NoDefault {
				o["no_default"] = IRBool(true)
			}
			ins[i] = o
		}
		obj["inputs"] = ins
	}
	if len(p.Outputs) > 0 {
		outs := make(IRArray, len(p.Outputs))
		for i, out := range p.Outputs {
			outs[i] = slotIR(out.Name, out.Signature, out.Value, out.Text)
		}
		obj["outputs"] = outs
	}
	if p.Group != nil {
		obj["group"] = p.Group.ToIR()
	}
	if len(p.Imports) > 0 {
		imps := make(IRArray, len(p.Imports))
		for i, imp := range p.Imports {
			imps[i] = IRObject{"input": IRString(imp.Input), "to": IRString(imp.To)}
		}
		obj["imports"] = imps
	}
	if len(p.Exports) > 0 {
		exps := make(IRArray, len(p.Exports))
		for i, exp := range p.Exports {
			exps[i] = IRObject{"output": IRString(exp.Output), "from": IRString(exp.From)}
		}
		obj["exports"] = exps
	}
	return obj
}

func slotIR(name string, sig SignatureSpec, value []float64, text []string) IRObject {
	o := IRObject{
		"name": IRString(name),
		"signature": IRObject{
			"type":     IRString(sig.Type),
			"encoding": IRString(sig.Encoding),
			"coords":   IRInt(sig.Coords),
			"length":   IRInt(sig.Length),
		},
	}
	if len(value) > 0 {
		vals := make(IRArray, len(value))
		for i, f := range value {
			vals[i] = Decimal(f)
		}
		o["value"] = vals
	}
	if len(text) > 0 {
		o["text"] = Strings(text)
	}
	return o
}

func setString(obj IRObject, key, val string) {
	if val != "" {
		obj[key] = IRString(val)
	}
}

// DataToIR encodes a data's signature and payload. Host payloads are
// encoded exactly; GPU handles by their device id and size, since their
// contents live on the device.
func DataToIR(d *data.Data) (IRObject, error) {
	if d == nil {
		return nil, fmt.Errorf("nil data")
	}
	obj := IRObject{"signature": IRString(d.Signature.String())}
	switch v := d.Payload.(type) {
	case nil:
		obj["payload"] = IRArray{}
	case data.Floats:
		obj["payload"] = rowsIR(v, Float32Bits)
	case data.SInts:
		obj["payload"] = rowsIR(v, func(x int32) IRInt { return IRInt(x) })
	case data.UInts:
		obj["payload"] = rowsIR(v, func(x uint32) IRInt { return IRInt(x) })
	case data.Texts:
		obj["payload"] = Strings(v)
	case data.Curves:
		rows := make(IRArray, len(v))
		for i, row := range v {
			curves := make(IRArray, len(row))
			for j, c := range row {
				pts := make(IRArray, len(c.Points))
				for k, pt := range c.Points {
					pts[k] = IRArray{
						Float32Bits(pt.Position[0]), Float32Bits(pt.Position[1]),
						Float32Bits(pt.TangentLeft[0]), Float32Bits(pt.TangentLeft[1]),
						Float32Bits(pt.TangentRight[0]), Float32Bits(pt.TangentRight[1]),
					}
				}
				curves[j] = pts
			}
			rows[i] = curves
		}
		obj["payload"] = rows
	case data.Images:
		arr := make(IRArray, len(v))
		for i, t := range v {
			desc := t.Desc()
			arr[i] = IRObject{
				"texture": IRInt(t.ID()),
				"width":   IRInt(desc.Width),
				"height":  IRInt(desc.Height),
			}
		}
		obj["payload"] = arr
	case data.Buffers:
		arr := make(IRArray, len(v))
		for i, b := range v {
			arr[i] = IRObject{"buffer": IRInt(b.ID()), "size": IRInt(int64(b.Desc().Size))}
		}
		obj["payload"] = arr
	default:
		return nil, fmt.Errorf("unsupported payload %T", d.Payload)
	}
	return obj, nil
}

func rowsIR[S ~[][]E, E any](rows S, enc func(E) IRInt) IRArray {
	arr := make(IRArray, len(rows))
	for i, row := range rows {
		r := make(IRArray, len(row))
		for j, x := range row {
			r[j] = enc(x)
		}
		arr[i] = r
	}
	return arr
}
