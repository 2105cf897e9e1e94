// Package store provides the persistent key-value interface the engine
// reads and writes through, with SQLite, Pebble and in-memory backends.
//
// Every persisted collaborator (the workflow history, the masterOrders
// cache, stage side lists, the orderData handoff and the order-number
// counters) is one JSON document under one key. Update is the only write
// path and is atomic on every backend, so a multi-key change such as an
// advancement batch either lands completely or not at all.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - PRAGMA user_version tracks schema migrations
package store
