// Package eventlog is the append-only workflow history and the persisted
// collaborators that live beside it in the key-value store.
//
// Keys:
//   - workflowHistory: the event log, the single source of truth
//   - masterOrders: denormalised snapshot cache, rebuildable from the log
//   - <stage>PendingItems: stage side lists
//   - orderData: read-once handoff from intake
//   - lastSOSequence, lastODSequence: order-number counters
//
// Reads never fail on bad data. A missing or unparsable value reads as
// empty and is logged; only store-level errors are returned.
package eventlog
