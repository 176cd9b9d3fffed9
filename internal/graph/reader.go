package graph

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/gpu"
)

// ImageReader decodes an image file on the CPU and uploads it into its first
// image output.
type ImageReader struct {
	Path string
}

func (r *ImageReader) Name() string { return KindImageReader }

func (r *ImageReader) process(p *Processor) error {
	env := p.reg.Env()
	if env.Device == nil || env.Queue == nil {
		return ErrNoDevice
	}
	pixels, w, h, err := decodeRGBA(r.Path)
	if err != nil {
		return err
	}
	tex, err := ensureTexture(env.Device, p, w, h)
	if err != nil {
		return err
	}
	return env.Queue.WriteTexture(tex, pixels)
}

// decodeRGBA reads path into row-major RGBA floats in [0, 1].
func decodeRGBA(path string) ([]float32, uint32, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image %s: %w", path, err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]float32, 0, w*h*4)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			pixels = append(pixels,
				float32(c.R)/0xffff,
				float32(c.G)/0xffff,
				float32(c.B)/0xffff,
				float32(c.A)/0xffff,
			)
		}
	}
	return pixels, uint32(w), uint32(h), nil
}

// BufferReader uploads a file's raw bytes into its first buffer output.
// The file must fit the buffer the output signature describes.
type BufferReader struct {
	Path string
}

func (r *BufferReader) Name() string { return KindBufferReader }

func (r *BufferReader) process(p *Processor) error {
	env := p.reg.Env()
	if env.Device == nil || env.Queue == nil {
		return ErrNoDevice
	}
	raw, err := os.ReadFile(r.Path)
	if err != nil {
		return fmt.Errorf("read buffer: %w", err)
	}
	buf, err := ensureBuffer(env.Device, p)
	if err != nil {
		return err
	}
	return env.Queue.WriteBuffer(buf, 0, raw)
}

// ensureBuffer allocates every output that has no payload yet and returns
// the first buffer of output 0.
func ensureBuffer(dev gpu.Device, p *Processor) (*gpu.Buffer, error) {
	if len(p.outputs) == 0 || p.outputs[0] == nil || p.outputs[0].Signature.Type != data.TypeBuffer {
		return nil, fmt.Errorf("processor %s needs a buffer as output 0", p.id)
	}
	if err := allocateOutputs(dev, p); err != nil {
		return nil, err
	}
	bufs, ok := p.outputs[0].Payload.(data.Buffers)
	if !ok || len(bufs) == 0 {
		return nil, fmt.Errorf("processor %s output 0 holds no buffer", p.id)
	}
	return bufs[0], nil
}
