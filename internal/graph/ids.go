package graph

import (
	"cmp"
	"fmt"
	"slices"
)

// ProcessorID addresses a processor in a Registry.
//
// The low 32 bits are the arena slot (never zero), the high 32 bits the
// slot's generation. Destroying a processor bumps the generation, so an id
// held past Destroy resolves to "missing" instead of to whatever reuses the
// slot.
type ProcessorID uint64

// Unlinked is the zero ProcessorID. It never names a processor.
const Unlinked ProcessorID = 0

func newProcessorID(index, gen uint32) ProcessorID {
	return ProcessorID(uint64(gen)<<32 | uint64(index))
}

func (id ProcessorID) index() uint32      { return uint32(id) }
func (id ProcessorID) generation() uint32 { return uint32(id >> 32) }

func (id ProcessorID) String() string {
	switch {
	case id == Unlinked:
		return "unlinked"
	case id.generation() == 0:
		return fmt.Sprintf("#%d", id.index())
	default:
		return fmt.Sprintf("#%d.%d", id.index(), id.generation())
	}
}

// compareIDs orders ids by slot, then generation.
func compareIDs(a, b ProcessorID) int {
	if c := cmp.Compare(a.index(), b.index()); c != 0 {
		return c
	}
	return cmp.Compare(a.generation(), b.generation())
}

func sortedIDs(set map[ProcessorID]struct{}) []ProcessorID {
	ids := make([]ProcessorID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	return ids
}

// LinkID identifies a link within one Graph. Ids are assigned in increasing
// order and never reused.
type LinkID uint64

// DataAddress names one slot of one processor. Index is an output slot on the
// producer side of a link and an input slot on the consumer side.
type DataAddress struct {
	Processor ProcessorID
	Index     int
}

// Linked reports whether the address names a processor.
func (a DataAddress) Linked() bool { return a.Processor != Unlinked }

func (a DataAddress) String() string {
	return fmt.Sprintf("%s[%d]", a.Processor, a.Index)
}

// Link binds a producer output slot to a consumer input slot.
type Link struct {
	ID       LinkID
	Producer DataAddress
	Consumer DataAddress
}
