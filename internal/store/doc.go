// Package store provides SQLite-backed durable storage for spaghetti
// session logs.
//
// The store is an append-only log with:
//   - Sessions: one row per engine session, pinned to the graph definition hash
//   - Edits: every queued edit the engine applied or rejected
//   - Passes: one row per Execute call, with per-processor outcomes
//
// # Ordering
//
// Edits and passes are stamped from the engine's logical clock (seq).
// Wall-clock time is never stored. Reads order by seq, or by frame for
// passes, so a log reads back identically on every run.
//
// Per-processor outcomes carry a digest of the processor's outputs after
// the pass (see ir.DataDigest), which is what replay compares.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
