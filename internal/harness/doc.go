// Package harness runs YAML scenarios against a live engine.
//
// A scenario names a CUE graph file, a list of steps and a list of
// assertions:
//
//	name: type_mismatch
//	description: C cannot take B's value output
//	graph: ../graphs/mismatch.cue
//	steps:
//	  - execute: true
//	  - link: {from: C.out, to: D.in}
//	  - execute: true
//	assertions:
//	  - type: pending
//	    step: 0
//	    processor: C
//	    reason: type-mismatch
//
// Edit steps (link, unlink, set, dirty) are queued on the engine and flushed
// at once, so each gets its own trace event and seq. An execute step runs
// one pass. Every run uses a fresh in-memory store, the software device, a
// DeterministicClock and a fixed session token, so the trace of a scenario
// is byte-identical across runs and can be compared against a golden file
// with RunWithGolden.
//
// Assertions look at one pass (the step named, or the last one) except
// link_rejected, which looks at a link step.
package harness
