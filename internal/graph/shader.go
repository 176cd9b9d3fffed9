package graph

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/gpu"
)

// Fragment renders a full-screen pass with a WGSL fragment shader into its
// first image output. Further image outputs are kept at the same size.
type Fragment struct {
	Source     string
	EntryPoint string
	Width      uint32
	Height     uint32

	module   *gpu.ShaderModule
	compiled string
}

func (f *Fragment) Name() string { return KindFragment }

func (f *Fragment) process(p *Processor) error {
	env := p.reg.Env()
	if env.Device == nil || env.Queue == nil {
		return ErrNoDevice
	}
	mod, err := f.shader(env.Device)
	if err != nil {
		return err
	}
	target, err := ensureTexture(env.Device, p, f.Width, f.Height)
	if err != nil {
		return err
	}
	bindings, err := bindInputs(p)
	if err != nil {
		return err
	}
	return env.Queue.Submit(gpu.RenderPass{
		Label:    p.Name(),
		Module:   mod,
		Target:   target,
		Bindings: bindings,
	})
}

func (f *Fragment) shader(dev gpu.Device) (*gpu.ShaderModule, error) {
	if f.module != nil && f.compiled == f.Source {
		return f.module, nil
	}
	mod, err := dev.CreateShaderModule(gpu.ShaderDesc{
		Label:      "fragment",
		Source:     f.Source,
		EntryPoint: f.EntryPoint,
		Stage:      gpu.StageFragment,
	})
	if err != nil {
		return nil, err
	}
	f.module, f.compiled = mod, f.Source
	return mod, nil
}

// Compute dispatches a WGSL compute shader. Inputs bind first, then every
// buffer output as storage.
type Compute struct {
	Source     string
	EntryPoint string
	Workgroups [3]uint32

	module   *gpu.ShaderModule
	compiled string
}

func (c *Compute) Name() string { return KindCompute }

func (c *Compute) process(p *Processor) error {
	env := p.reg.Env()
	if env.Device == nil || env.Queue == nil {
		return ErrNoDevice
	}
	if c.module == nil || c.compiled != c.Source {
		mod, err := env.Device.CreateShaderModule(gpu.ShaderDesc{
			Label:      "compute",
			Source:     c.Source,
			EntryPoint: c.EntryPoint,
			Stage:      gpu.StageCompute,
		})
		if err != nil {
			return err
		}
		c.module, c.compiled = mod, c.Source
	}

	bindings, err := bindInputs(p)
	if err != nil {
		return err
	}
	slot := uint32(len(bindings))
	for o, out := range p.outputs {
		if out == nil || out.Signature.Type != data.TypeBuffer {
			return fmt.Errorf("compute output %d is not a buffer", o)
		}
	}
	if err := allocateOutputs(env.Device, p); err != nil {
		return err
	}
	for o, out := range p.outputs {
		bufs, ok := out.Payload.(data.Buffers)
		if !ok {
			return fmt.Errorf("compute output %d is %s, want buffer", o, out.Signature)
		}
		for _, b := range bufs {
			bindings = append(bindings, gpu.Binding{Slot: slot, Buffer: b})
			slot++
		}
	}

	wg := c.Workgroups
	for i := range wg {
		if wg[i] == 0 {
			wg[i] = 1
		}
	}
	return env.Queue.Submit(gpu.ComputePass{
		Label:      p.Name(),
		Module:     c.module,
		Workgroups: wg,
		Bindings:   bindings,
	})
}

// ensureTexture sizes every image output to width by height, reallocating
// those whose size changed, fills any other output that has no payload yet
// and returns the first texture of output 0.
func ensureTexture(dev gpu.Device, p *Processor, width, height uint32) (*gpu.Texture, error) {
	if len(p.outputs) == 0 || p.outputs[0] == nil || p.outputs[0].Signature.Type != data.TypeImage {
		return nil, fmt.Errorf("processor %s needs an image as output 0", p.id)
	}
	if width == 0 || height == 0 {
		width, height = 1, 1
	}
	for o, out := range p.outputs {
		if out == nil || out.Signature.Type != data.TypeImage {
			continue
		}
		if err := sizeImages(dev, p, o, width, height); err != nil {
			return nil, err
		}
	}
	if err := allocateOutputs(dev, p); err != nil {
		return nil, err
	}
	imgs := p.outputs[0].Payload.(data.Images)
	if len(imgs) == 0 {
		return nil, fmt.Errorf("processor %s output 0 holds no image", p.id)
	}
	return imgs[0], nil
}

func sizeImages(dev gpu.Device, p *Processor, o int, width, height uint32) error {
	out := p.outputs[o]
	if imgs, ok := out.Payload.(data.Images); ok && len(imgs) > 0 {
		desc := imgs[0].Desc()
		if desc.Width == width && desc.Height == height {
			return nil
		}
	}

	imgs := make(data.Images, 0, out.Signature.ArrayLength)
	for i := uint32(0); i < out.Signature.ArrayLength; i++ {
		tex, err := dev.CreateTexture(gpu.TextureDesc{
			Label:  fmt.Sprintf("%s.%d[%d]", p.Name(), o, i),
			Width:  width,
			Height: height,
			Format: gpu.FormatRGBA32Float,
		})
		if err != nil {
			(&data.Data{Payload: imgs}).Release()
			return err
		}
		imgs = append(imgs, tex)
	}
	out.Release()
	out.Payload = imgs
	return nil
}

// allocateOutputs gives every output without a payload fresh data on dev.
func allocateOutputs(dev gpu.Device, p *Processor) error {
	for o, out := range p.outputs {
		if out == nil || out.Payload != nil {
			continue
		}
		fresh, err := data.MakeOn(dev, out.Signature)
		if err != nil {
			return fmt.Errorf("output %d: %w", o, err)
		}
		out.Payload = fresh.Payload
	}
	return nil
}

// bindInputs maps each input to a binding slot of the same index.
// Values and curves become uniform bytes, images and buffers bind their
// first element. Text inputs bind nothing.
func bindInputs(p *Processor) ([]gpu.Binding, error) {
	var bindings []gpu.Binding
	for i := range p.inputs {
		d, err := p.InputData(i)
		if err != nil {
			return nil, err
		}
		b := gpu.Binding{Slot: uint32(i)}
		switch v := d.Payload.(type) {
		case data.Floats, data.SInts, data.UInts, data.Curves:
			b.Uniform = packUniform(v)
		case data.Images:
			if len(v) == 0 {
				continue
			}
			b.Texture = v[0]
		case data.Buffers:
			if len(v) == 0 {
				continue
			}
			b.Buffer = v[0]
		case data.Texts:
			continue
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

// packUniform lays out scalars little-endian, four bytes each, element after
// element. Curves pack their control points as six floats each.
func packUniform(p data.Payload) []byte {
	var out []byte
	switch v := p.(type) {
	case data.Floats:
		for _, row := range v {
			for _, x := range row {
				out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
			}
		}
	case data.SInts:
		for _, row := range v {
			for _, x := range row {
				out = binary.LittleEndian.AppendUint32(out, uint32(x))
			}
		}
	case data.UInts:
		for _, row := range v {
			for _, x := range row {
				out = binary.LittleEndian.AppendUint32(out, x)
			}
		}
	case data.Curves:
		for _, row := range v {
			for _, c := range row {
				for _, pt := range c.Points {
					for _, f := range [...]float32{
						pt.Position[0], pt.Position[1],
						pt.TangentLeft[0], pt.TangentLeft[1],
						pt.TangentRight[0], pt.TangentRight[1],
					} {
						out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
					}
				}
			}
		}
	}
	return out
}
