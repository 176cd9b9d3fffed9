// Package gpu defines the boundary between the dataflow engine and the host's
// GPU subsystem.
//
// The engine never initialises a device itself. The host hands one Device and
// one Queue to the processor registry; shader and reader processors use them to
// build and submit their work. Texture and Buffer are shared handles: every
// holder calls Retain, and the resource is freed when the last holder calls
// Release.
package gpu

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrReleased is returned when a released resource is used.
var ErrReleased = errors.New("gpu: resource already released")

// Format is a texture pixel format.
type Format int

const (
	// FormatRGBA32Float stores four float32 channels per pixel.
	FormatRGBA32Float Format = iota + 1
	// FormatRGBA8Unorm stores four normalised bytes per pixel.
	FormatRGBA8Unorm
)

func (f Format) String() string {
	switch f {
	case FormatRGBA32Float:
		return "rgba32float"
	case FormatRGBA8Unorm:
		return "rgba8unorm"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format Format
}

// BufferDesc describes a linear buffer.
type BufferDesc struct {
	Label string
	Size  uint64
}

// Stage is the pipeline stage a shader module targets.
type Stage int

const (
	StageFragment Stage = iota + 1
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ShaderDesc describes a shader module to compile.
type ShaderDesc struct {
	Label      string
	Source     string
	EntryPoint string
	Stage      Stage
}

// ShaderModule is a compiled shader owned by the device.
type ShaderModule struct {
	ID   uint64
	Desc ShaderDesc
}

// Device creates GPU resources. One device exists per application session.
type Device interface {
	CreateTexture(desc TextureDesc) (*Texture, error)
	CreateBuffer(desc BufferDesc) (*Buffer, error)
	CreateShaderModule(desc ShaderDesc) (*ShaderModule, error)
}

// Queue submits work and uploads to the device.
type Queue interface {
	WriteTexture(t *Texture, pixels []float32) error
	WriteBuffer(b *Buffer, offset uint64, data []byte) error
	Submit(cmds ...Command) error
}

// Command is a unit of recorded GPU work. Only RenderPass and ComputePass
// implement it.
type Command interface {
	command()
}

// Binding attaches one resource to a shader binding slot.
// Exactly one of Uniform, Texture or Buffer is set.
type Binding struct {
	Slot    uint32
	Uniform []byte
	Texture *Texture
	Buffer  *Buffer
}

// RenderPass draws a full-screen triangle with a fragment module into Target.
type RenderPass struct {
	Label    string
	Module   *ShaderModule
	Target   *Texture
	Bindings []Binding
}

func (RenderPass) command() {}

// ComputePass dispatches a compute module.
type ComputePass struct {
	Label      string
	Module     *ShaderModule
	Workgroups [3]uint32
	Bindings   []Binding
}

func (ComputePass) command() {}

// resource is the shared reference count behind Texture and Buffer.
type resource struct {
	id     uint64
	refs   atomic.Int32
	onFree func()
}

func (r *resource) retain() {
	r.refs.Add(1)
}

func (r *resource) release() bool {
	n := r.refs.Add(-1)
	if n == 0 && r.onFree != nil {
		r.onFree()
	}
	return n <= 0
}

// Texture is a shared handle to a device texture.
type Texture struct {
	resource
	desc TextureDesc
}

// NewTexture wraps a device texture id in a handle with one reference.
// onFree runs when the last reference is released. Device implementations
// call this; processors never do.
func NewTexture(id uint64, desc TextureDesc, onFree func()) *Texture {
	t := &Texture{desc: desc}
	t.id = id
	t.onFree = onFree
	t.refs.Store(1)
	return t
}

// ID returns the device-assigned identifier.
func (t *Texture) ID() uint64 { return t.id }

// Desc returns the texture description.
func (t *Texture) Desc() TextureDesc { return t.desc }

// Retain adds a holder and returns the same handle.
func (t *Texture) Retain() *Texture {
	t.retain()
	return t
}

// Release drops a holder. It reports whether the texture has no holders left.
func (t *Texture) Release() bool { return t.release() }

// Refs returns the current number of holders.
func (t *Texture) Refs() int { return int(t.refs.Load()) }

// Buffer is a shared handle to a device buffer.
type Buffer struct {
	resource
	desc BufferDesc
}

// NewBuffer wraps a device buffer id in a handle with one reference.
func NewBuffer(id uint64, desc BufferDesc, onFree func()) *Buffer {
	b := &Buffer{desc: desc}
	b.id = id
	b.onFree = onFree
	b.refs.Store(1)
	return b
}

// ID returns the device-assigned identifier.
func (b *Buffer) ID() uint64 { return b.id }

// Desc returns the buffer description.
func (b *Buffer) Desc() BufferDesc { return b.desc }

// Retain adds a holder and returns the same handle.
func (b *Buffer) Retain() *Buffer {
	b.retain()
	return b
}

// Release drops a holder. It reports whether the buffer has no holders left.
func (b *Buffer) Release() bool { return b.release() }

// Refs returns the current number of holders.
func (b *Buffer) Refs() int { return int(b.refs.Load()) }
