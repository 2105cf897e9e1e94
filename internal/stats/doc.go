// Package stats derives dashboard figures from the workflow history.
//
// Everything here is computed from the same snapshots and pending sets the
// stage views use, so the dashboard cannot disagree with them. Time ranges
// are bucketed on local midnight; weeks start on Monday.
package stats
