// Package soft is an in-process gpu.Device and gpu.Queue.
//
// It keeps texture pixels and buffer bytes in host memory and records every
// submitted command instead of executing it. It is what the CLI and the tests
// run against when no hardware device is attached.
package soft

import (
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/spaghetti/internal/gpu"
)

// ShaderError reports a shader module that failed the front-end checks.
type ShaderError struct {
	Label   string
	Message string
}

func (e *ShaderError) Error() string {
	return fmt.Sprintf("shader %q: %s", e.Label, e.Message)
}

// Device implements gpu.Device and gpu.Queue.
type Device struct {
	mu        sync.Mutex
	nextID    uint64
	textures  map[uint64][]float32
	buffers   map[uint64][]byte
	submitted []gpu.Command
	modules   int
}

var (
	_ gpu.Device = (*Device)(nil)
	_ gpu.Queue  = (*Device)(nil)
)

// New creates an empty software device.
func New() *Device {
	return &Device{
		textures: make(map[uint64][]float32),
		buffers:  make(map[uint64][]byte),
	}
}

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

// CreateTexture allocates zeroed RGBA pixels.
func (d *Device) CreateTexture(desc gpu.TextureDesc) (*gpu.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("create texture %q: zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if desc.Format == 0 {
		desc.Format = gpu.FormatRGBA32Float
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.id()
	d.textures[id] = make([]float32, int(desc.Width)*int(desc.Height)*4)
	return gpu.NewTexture(id, desc, func() { d.free(id) }), nil
}

// CreateBuffer allocates a zeroed byte buffer.
func (d *Device) CreateBuffer(desc gpu.BufferDesc) (*gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("create buffer %q: zero size", desc.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.id()
	d.buffers[id] = make([]byte, desc.Size)
	return gpu.NewBuffer(id, desc, func() { d.free(id) }), nil
}

// CreateShaderModule checks the module declares its entry point for the
// requested stage. No code generation happens.
func (d *Device) CreateShaderModule(desc gpu.ShaderDesc) (*gpu.ShaderModule, error) {
	if strings.TrimSpace(desc.Source) == "" {
		return nil, &ShaderError{Label: desc.Label, Message: "empty source"}
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	if !strings.Contains(desc.Source, "fn "+entry) {
		return nil, &ShaderError{Label: desc.Label, Message: fmt.Sprintf("entry point %q not found", entry)}
	}
	attr := "@" + desc.Stage.String()
	if !strings.Contains(desc.Source, attr) {
		return nil, &ShaderError{Label: desc.Label, Message: fmt.Sprintf("missing %s attribute", attr)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.modules++
	desc.EntryPoint = entry
	return &gpu.ShaderModule{ID: d.id(), Desc: desc}, nil
}

// WriteTexture replaces the texture's pixels.
func (d *Device) WriteTexture(t *gpu.Texture, pixels []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dst, ok := d.textures[t.ID()]
	if !ok {
		return gpu.ErrReleased
	}
	if len(pixels) != len(dst) {
		return fmt.Errorf("write texture %q: got %d floats, want %d", t.Desc().Label, len(pixels), len(dst))
	}
	copy(dst, pixels)
	return nil
}

// WriteBuffer copies data into the buffer at offset.
func (d *Device) WriteBuffer(b *gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dst, ok := d.buffers[b.ID()]
	if !ok {
		return gpu.ErrReleased
	}
	if offset+uint64(len(data)) > uint64(len(dst)) {
		return fmt.Errorf("write buffer %q: %d bytes at %d overflow size %d", b.Desc().Label, len(data), offset, len(dst))
	}
	copy(dst[offset:], data)
	return nil
}

// Submit records the commands.
func (d *Device) Submit(cmds ...gpu.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range cmds {
		switch cmd := c.(type) {
		case gpu.RenderPass:
			if cmd.Module == nil || cmd.Target == nil {
				return fmt.Errorf("submit render pass %q: missing module or target", cmd.Label)
			}
			if _, ok := d.textures[cmd.Target.ID()]; !ok {
				return gpu.ErrReleased
			}
		case gpu.ComputePass:
			if cmd.Module == nil {
				return fmt.Errorf("submit compute pass %q: missing module", cmd.Label)
			}
		default:
			return fmt.Errorf("submit: unsupported command %T", c)
		}
	}
	d.submitted = append(d.submitted, cmds...)
	return nil
}

// Submitted returns a copy of every command submitted so far.
func (d *Device) Submitted() []gpu.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.Command(nil), d.submitted...)
}

// ModuleCount returns how many shader modules were compiled.
func (d *Device) ModuleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modules
}

// TexturePixels returns a copy of a live texture's pixels.
func (d *Device) TexturePixels(t *gpu.Texture) ([]float32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	px, ok := d.textures[t.ID()]
	return append([]float32(nil), px...), ok
}

// BufferBytes returns a copy of a live buffer's contents.
func (d *Device) BufferBytes(b *gpu.Buffer) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.buffers[b.ID()]
	return append([]byte(nil), data...), ok
}

// Live returns the number of resources that have not been freed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures) + len(d.buffers)
}

func (d *Device) free(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
	delete(d.buffers, id)
}
