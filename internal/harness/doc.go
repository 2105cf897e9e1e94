// Package harness runs YAML conformance scenarios against the engine.
//
// A scenario describes a starting clock, a list of steps (raw history
// appends, order punches, stage advancements, clock ticks) and assertions
// over the resulting pending sets, history and snapshots. Each run uses a
// fresh in-memory store, a settable clock and sequential event ids, so the
// same scenario always produces the same trace. Tests compare that trace
// against golden files.
package harness
