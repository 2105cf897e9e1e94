// Package snapshot derives the current view of each order from the
// workflow history and flattens it into per-product rows.
//
// Build sorts events by timestamp (falling back to date, then log order)
// and folds them per order. Later defined fields overwrite earlier ones;
// identity fields such as orderType and customerName survive events that
// omit them. The result depends only on the events, so building twice from
// the same log yields identical snapshots.
package snapshot
