// Package advance turns a stage action on selected pending rows into new
// workflow events.
//
// An advancement is validated in full before anything is written. The
// events, the side-list changes and the refreshed masterOrders cache are
// then committed in one store transaction with a single timestamp, so a
// batch either lands completely or not at all. Publishing to external
// sinks happens after the commit and is best-effort: a sink failure is
// logged and counted but the history keeps the batch.
//
// A per-stage guard refuses a second advancement for a stage while the
// first is still being written (ErrBusy). It prevents double submission
// from one caller; it is not concurrency control between writers.
package advance
