// Package workflow defines the order-fulfilment domain types shared by every
// other package: stages, statuses, events, line items and row identity.
//
// This package imports nothing internal. Derivation logic lives in
// snapshot, resolver, advance and stats; this package only holds the
// vocabulary and the identity rules they agree on.
//
// # Identity
//
// An order is identified by the first non-empty of orderId, doNumber,
// orderNo and soNumber. A product is identified by the first non-empty of
// id, productName and oilType, falling back to the "no-id" sentinel. The
// pair forms a RowKey, which is the unit of work at any stage.
package workflow
