package resolver

import (
	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/workflow"
)

// Resolver computes stage pending sets from the workflow history.
// It holds no state beyond the pipeline and may be shared freely.
type Resolver struct {
	pipeline *pipeline.Pipeline
}

// New creates a Resolver over p.
func New(p *pipeline.Pipeline) *Resolver {
	return &Resolver{pipeline: p}
}

// Pipeline returns the pipeline the resolver was built with.
func (r *Resolver) Pipeline() *pipeline.Pipeline {
	return r.pipeline
}

// Snapshots builds order snapshots with stage names canonicalised.
func (r *Resolver) Snapshots(events []workflow.Event) []snapshot.Snapshot {
	return snapshot.Build(events, snapshot.WithStageNames(r.pipeline.Canonical))
}

// Pending returns the rows eligible at stage, in order of first appearance.
//
// Stages with an upstream take candidates from accepted upstream events;
// stages with a side list take them from side. A candidate is dropped when
// the history holds a terminal event at stage for its exact row key, and
// repeated keys are dropped after the first. The result has no duplicate
// row keys and is never nil.
func (r *Resolver) Pending(stage pipeline.StageDef, events []workflow.Event, side []workflow.SideItem) []snapshot.PendingRow {
	candidates := r.candidates(stage, events, side)
	done := r.terminalKeys(stage, events)

	out := make([]snapshot.PendingRow, 0, len(candidates))
	for _, row := range candidates {
		if done[row.Key()] {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Conservation reports, for stage, how many distinct rows the upstream
// signal yields, how many of those are already resolved at stage and how
// many remain eligible. eligible + done == upstream always holds.
func (r *Resolver) Conservation(stage pipeline.StageDef, events []workflow.Event, side []workflow.SideItem) (eligible, done, upstream int) {
	candidates := r.candidates(stage, events, side)
	terminal := r.terminalKeys(stage, events)
	for _, row := range candidates {
		if terminal[row.Key()] {
			done++
		} else {
			eligible++
		}
	}
	return eligible, done, len(candidates)
}

// Completed returns the row keys resolved at stage, with the status of the
// latest terminal event for each.
func (r *Resolver) Completed(stage pipeline.StageDef, events []workflow.Event) map[workflow.RowKey]workflow.Status {
	out := make(map[workflow.RowKey]workflow.Status)
	for _, e := range snapshot.Sort(events) {
		if r.pipeline.Canonical(e.Stage) != stage.ID || !stage.IsTerminal(e.Status) {
			continue
		}
		out[e.RowKey()] = e.Status
	}
	return out
}

func (r *Resolver) terminalKeys(stage pipeline.StageDef, events []workflow.Event) map[workflow.RowKey]bool {
	keys := make(map[workflow.RowKey]bool)
	for _, e := range events {
		if r.pipeline.Canonical(e.Stage) == stage.ID && stage.IsTerminal(e.Status) {
			keys[e.RowKey()] = true
		}
	}
	return keys
}

// candidates returns the deduplicated rows the stage would show before
// terminal exclusion.
func (r *Resolver) candidates(stage pipeline.StageDef, events []workflow.Event, side []workflow.SideItem) []snapshot.PendingRow {
	var rows []snapshot.PendingRow
	switch {
	case stage.Upstream != "":
		rows = r.fromUpstream(stage, events)
	case stage.SideList != "":
		rows = r.fromSideList(events, side)
	}

	seen := make(map[workflow.RowKey]bool, len(rows))
	out := make([]snapshot.PendingRow, 0, len(rows))
	for _, row := range rows {
		if stage.Skips(row.Snapshot.OrderType) {
			continue
		}
		k := row.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, row)
	}
	return out
}

// fromUpstream yields rows for orders whose latest upstream event per row
// carries an accepted status. Orders with product-level upstream events
// yield exactly those products; orders signalled only at whole-order level
// are flattened from their snapshot.
func (r *Resolver) fromUpstream(stage pipeline.StageDef, events []workflow.Event) []snapshot.PendingRow {
	latest := make(map[workflow.RowKey]workflow.Event)
	for _, e := range snapshot.Sort(events) {
		if r.pipeline.Canonical(e.Stage) == stage.Upstream {
			latest[e.RowKey()] = e
		}
	}

	// products stays empty for orders signalled only at whole-order level
	type signal struct {
		products []*workflow.LineItem
	}
	var orders []string
	signals := make(map[string]*signal)
	for _, e := range events {
		if r.pipeline.Canonical(e.Stage) != stage.Upstream {
			continue
		}
		k := e.RowKey()
		if k.OrderID == "" {
			continue
		}
		last, ok := latest[k]
		if !ok || !stage.Accepts(last.Status) {
			continue
		}
		// one contribution per row key, from its latest event
		delete(latest, k)

		sig := signals[k.OrderID]
		if sig == nil {
			sig = &signal{}
			signals[k.OrderID] = sig
			orders = append(orders, k.OrderID)
		}
		if last.Product != nil {
			sig.products = append(sig.products, last.Product)
		}
	}
	if len(orders) == 0 {
		return nil
	}

	snaps := snapshot.ByID(r.Snapshots(events))

	var rows []snapshot.PendingRow
	for _, id := range orders {
		sig := signals[id]
		snap := snaps[id]

		if len(sig.products) == 0 {
			for row := range snapshot.Rows(snap) {
				rows = append(rows, row)
			}
			continue
		}

		items := snap.Order().LineItems()
		for _, p := range sig.products {
			rows = append(rows, snapshot.PendingRow{Snapshot: snap, Product: lineItem(items, p)})
		}
	}
	return rows
}

// lineItem returns the full line item matching p's key, or a copy of p.
func lineItem(items []workflow.LineItem, p *workflow.LineItem) *workflow.LineItem {
	key := p.Key()
	for i := range items {
		if items[i].Key() == key {
			it := items[i]
			return &it
		}
	}
	it := *p
	return &it
}

// fromSideList yields rows for each order waiting on the side list. The
// side item's product lists are the working set; identity fields come from
// the order's snapshot when the history knows it.
func (r *Resolver) fromSideList(events []workflow.Event, side []workflow.SideItem) []snapshot.PendingRow {
	if len(side) == 0 {
		return nil
	}
	snaps := snapshot.ByID(r.Snapshots(events))

	var rows []snapshot.PendingRow
	for _, item := range side {
		id := item.OrderKey()
		if id == "" {
			continue
		}
		snap, ok := snaps[id]
		if !ok {
			snap = snapshot.Snapshot{
				OrderID:      id,
				DONumber:     item.DONumber,
				OrderNo:      item.OrderNo,
				SONumber:     item.SONumber,
				CustomerName: item.CustomerName,
				Timestamp:    item.Timestamp,
				Payload:      item.Payload.Clone(),
			}
		}
		if item.OrderType != "" {
			snap.OrderType = item.OrderType
		}
		if snap.CustomerName == "" {
			snap.CustomerName = item.CustomerName
		}
		snap.Products = item.Products
		snap.PreApprovalProducts = item.PreApprovalProducts

		for row := range snapshot.Rows(snap) {
			rows = append(rows, row)
		}
	}
	return rows
}
