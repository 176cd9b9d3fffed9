package store

import "github.com/roach88/spaghetti/internal/ir"

// Session identifies one engine run over one graph definition.
type Session struct {
	Token         string
	Graph         string
	SpecHash      string
	EngineVersion string
	IRVersion     string
}

// EditStatus records whether the engine applied an edit.
type EditStatus string

const (
	EditApplied  EditStatus = "applied"
	EditRejected EditStatus = "rejected"
)

// Edit is one queued edit as the engine handled it.
type Edit struct {
	Session string
	Seq     int64
	Op      string
	Args    ir.IRObject // canonical JSON in storage
	Status  EditStatus
	LinkID  uint64 // link created by a link edit; 0 otherwise
	Error   string // rejection message; empty when applied
}

// Pass is one Execute call.
type Pass struct {
	ID         int64
	Session    string
	Frame      int64
	Seq        int64
	Waves      int
	Complete   bool
	Exhausted  bool
	Processors []ProcessorOutcome // in member id order
}

// ProcessorOutcome is one processor's result in a pass.
type ProcessorOutcome struct {
	Processor string // id, e.g. "#3"
	Name      string
	Outcome   string // "ran", "skipped" or a pending reason
	Detail    string
	Digest    string // digest of the outputs after the pass
}
