package graph

import (
	"log/slog"

	"github.com/roach88/spaghetti/internal/data"
	"github.com/roach88/spaghetti/internal/gpu"
)

// Env is what the host hands every processor of a session: one GPU device,
// one submission queue and a logger. Device and Queue may be nil when no GPU
// work is expected; GPU kinds then fail their Process.
type Env struct {
	Device gpu.Device
	Queue  gpu.Queue
	Logger *slog.Logger
}

// Allocator returns the device as a data.Allocator, or nil without a device.
func (e Env) Allocator() data.Allocator {
	if e.Device == nil {
		return nil
	}
	return e.Device
}

type slot struct {
	gen  uint32
	proc *Processor
}

// Registry is the arena that owns every processor of a session.
//
// A graph and all of its nested group graphs share one registry, so ids are
// unique across the whole session. Lookups are fallible: Get on a destroyed
// or foreign id returns false.
type Registry struct {
	env   Env
	slots []slot // slots[0] is never used
	free  []uint32
	live  int
}

// NewRegistry creates an empty registry.
func NewRegistry(env Env) *Registry {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	return &Registry{env: env, slots: make([]slot, 1)}
}

// Env returns the session environment.
func (r *Registry) Env() Env { return r.env }

func (r *Registry) logger() *slog.Logger { return r.env.Logger }

// Create allocates a processor of the given kind. New processors are dirty.
func (r *Registry) Create(kind Kind, opts ...ProcessorOption) *Processor {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = uint32(len(r.slots) - 1)
	}

	p := &Processor{
		id:          newProcessorID(idx, r.slots[idx].gen),
		kind:        kind,
		outputLinks: make(map[int][]DataAddress),
		dirty:       true,
		reg:         r,
	}
	for _, opt := range opts {
		opt(p)
	}
	r.slots[idx].proc = p
	r.live++
	return p
}

// Get resolves id. It returns false for Unlinked, destroyed and unknown ids.
func (r *Registry) Get(id ProcessorID) (*Processor, bool) {
	idx := id.index()
	if id == Unlinked || int(idx) >= len(r.slots) {
		return nil, false
	}
	s := r.slots[idx]
	if s.proc == nil || s.gen != id.generation() {
		return nil, false
	}
	return s.proc, true
}

// Destroy frees the processor's slot and drops its outputs. Links are not
// touched; Graph.Destroy removes them first.
func (r *Registry) Destroy(id ProcessorID) bool {
	p, ok := r.Get(id)
	if !ok {
		return false
	}
	for _, out := range p.outputs {
		out.Release()
	}
	for _, in := range p.inputs {
		in.release()
	}
	idx := id.index()
	r.slots[idx].proc = nil
	r.slots[idx].gen++
	r.free = append(r.free, idx)
	r.live--
	return true
}

// Len returns the number of live processors.
func (r *Registry) Len() int { return r.live }
