// Package engine wires the workflow packages into one service.
//
// The engine owns the store handle and builds every other component over
// it: the event log, the resolver, the advancer, order intake and the
// statistics engine. Command-line and HTTP front ends talk only to Engine.
//
// READ PATH:
//
// Every read re-derives its answer from the full history. Nothing is
// cached between calls except the masterOrders snapshot map, which is
// rewritten inside every write transaction and can be rebuilt at any time
// with RebuildCache.
//
// WRITE PATH:
//
// Writes go through advance.Advancer and intake.Intake. Each is a single
// store transaction; publishing to sinks follows the commit.
//
// REPLAY:
//
// Replay derives the snapshot map twice from the stored history and
// compares canonical digests, then compares the result against the
// masterOrders cache. A mismatch means the cache is stale, not that the
// history is wrong.
package engine
