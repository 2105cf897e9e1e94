package snapshot

import (
	"iter"

	"github.com/roach88/oilflow/internal/workflow"
)

// PendingRow is one (order, product) unit of work.
// Product is nil for an order without line items.
type PendingRow struct {
	Snapshot Snapshot           `json:"order"`
	Product  *workflow.LineItem `json:"product"`
}

// Key returns the row identity.
func (r PendingRow) Key() workflow.RowKey {
	return workflow.NewRowKey(r.Snapshot.OrderID, r.Product)
}

// Rows flattens a snapshot into one row per line item of its active
// product list. An order with no line items yields a single row with a nil
// product. Repeated product keys are yielded once. The sequence is pure and
// may be ranged over any number of times.
func Rows(s Snapshot) iter.Seq[PendingRow] {
	return func(yield func(PendingRow) bool) {
		items := s.Order().LineItems()
		if len(items) == 0 {
			yield(PendingRow{Snapshot: s})
			return
		}
		seen := make(map[string]bool, len(items))
		for i := range items {
			k := items[i].Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			item := items[i]
			if !yield(PendingRow{Snapshot: s, Product: &item}) {
				return
			}
		}
	}
}

// AllRows flattens every snapshot in order.
func AllRows(snaps []Snapshot) iter.Seq[PendingRow] {
	return func(yield func(PendingRow) bool) {
		for _, s := range snaps {
			for row := range Rows(s) {
				if !yield(row) {
					return
				}
			}
		}
	}
}
