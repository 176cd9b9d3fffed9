// Package engine is the host loop of a spaghetti session.
//
// The engine builds a graph definition into a live graph, then alternates
// between applying queued edits and running one Execute pass per frame.
//
// ARCHITECTURE:
//
// Single-Writer Frame Loop:
// Edits and passes happen in one goroutine. Other goroutines only Enqueue.
// This keeps the graph's single-threaded model intact:
// - No edit lands during a pass
// - Edits apply in the order they were enqueued
// - The log replays to the same passes
//
// Frame Flow:
// 1. Edits (link, unlink, set, dirty) are enqueued from any goroutine
// 2. Step drains the queue and applies every edit; failures are logged and
// recorded as rejected, never fatal
// 3. Step runs graph.Execute once
// 4. With a store attached, the session, edits and pass outcomes are
// written to SQLite
//
// Run repeats Step on a frame interval, or whenever edits arrive when no
// interval is set.
//
// Logical Clock:
// Every edit and every pass is stamped with the next seq from Clock.Next().
// Wall time never orders the log.
//
// Replay:
// Replay rebuilds a recorded session from its definition, re-applies the
// logged edits before the pass that followed them, and compares every pass
// with the recorded outcome and output digests.
package engine
