// Package resolver computes which (order, product) rows are pending at a
// pipeline stage.
//
// One parametrised resolver serves every stage. A row is eligible at stage
// S when the latest upstream event for it carries one of S's accepted
// statuses (or, for side-list stages, when its order waits on S's side
// list) and no event at S marks that exact row key terminal. Filters are
// pure post-filters over the eligible set.
package resolver
