package resolver

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/workflow"
)

// Timeliness selects rows by their target date relative to today.
type Timeliness string

const (
	TimelinessAny     Timeliness = ""
	TimelinessOnTime  Timeliness = "on-time"
	TimelinessExpired Timeliness = "expired"
)

// ParseTimeliness accepts "", "all", "on-time", "ontime", "expired" and "expire".
func ParseTimeliness(s string) (Timeliness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "any":
		return TimelinessAny, nil
	case "on-time", "ontime", "on_time":
		return TimelinessOnTime, nil
	case "expired", "expire":
		return TimelinessExpired, nil
	}
	return "", fmt.Errorf("unknown timeliness %q", s)
}

// Filter narrows a pending set for display. Filters never change which rows
// are eligible, only which are shown. Zero fields match everything.
type Filter struct {
	// From and To bound the stage filter date by calendar day, inclusive.
	From time.Time
	To   time.Time

	// Party matches the customer name, ignoring case and surrounding space.
	Party string

	Timeliness Timeliness

	// Now anchors the timeliness comparison. Zero means time.Now().
	Now time.Time
}

// IsZero reports whether f matches every row.
func (f Filter) IsZero() bool {
	return f.From.IsZero() && f.To.IsZero() && strings.TrimSpace(f.Party) == "" && f.Timeliness == TimelinessAny
}

// Apply returns the rows of stage that match f, preserving order.
// Applying the same filter twice yields the same rows as applying it once.
func (f Filter) Apply(stage pipeline.StageDef, rows []snapshot.PendingRow) []snapshot.PendingRow {
	out := make([]snapshot.PendingRow, 0, len(rows))
	for _, row := range rows {
		if f.Match(stage, row) {
			out = append(out, row)
		}
	}
	return out
}

// Match reports whether one row passes every set criterion.
func (f Filter) Match(stage pipeline.StageDef, row snapshot.PendingRow) bool {
	return f.matchParty(row) && f.matchRange(stage, row) && f.matchTimeliness(stage, row)
}

func (f Filter) matchParty(row snapshot.PendingRow) bool {
	party := strings.TrimSpace(f.Party)
	if party == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(row.Snapshot.CustomerName), party)
}

// matchRange excludes rows without a filter date whenever a bound is set.
// Zone-less dates are read in the bound's location.
func (f Filter) matchRange(stage pipeline.StageDef, row snapshot.PendingRow) bool {
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	loc := f.From.Location()
	if f.From.IsZero() {
		loc = f.To.Location()
	}
	t, ok := FilterDate(stage, row.Snapshot, loc)
	if !ok {
		return false
	}
	if !f.From.IsZero() && t.Before(Midnight(f.From)) {
		return false
	}
	if !f.To.IsZero() && !t.Before(Midnight(f.To).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// matchTimeliness treats a row without a target date as matching.
// Zone-less target dates are read in Now's location, as the cutoff is.
func (f Filter) matchTimeliness(stage pipeline.StageDef, row snapshot.PendingRow) bool {
	if f.Timeliness == TimelinessAny {
		return true
	}
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	target, ok := TargetDateIn(stage, row.Snapshot, now.Location())
	if !ok {
		return true
	}
	expired := target.Before(Midnight(now))
	if f.Timeliness == TimelinessExpired {
		return expired
	}
	return !expired
}

// TargetDate returns the stage's target date for an order.
func TargetDate(stage pipeline.StageDef, s snapshot.Snapshot) (time.Time, bool) {
	return TargetDateIn(stage, s, time.Local)
}

// TargetDateIn is TargetDate reading a zone-less date in loc.
func TargetDateIn(stage pipeline.StageDef, s snapshot.Snapshot, loc *time.Location) (time.Time, bool) {
	return workflow.ParseTimeIn(s.Payload.String(stage.TargetDate), loc)
}

// FilterDate returns the date the range filter compares for an order:
// the stage's filter_date payload field read in loc, or the snapshot time.
func FilterDate(stage pipeline.StageDef, s snapshot.Snapshot, loc *time.Location) (time.Time, bool) {
	if stage.FilterDate != "" {
		return workflow.ParseTimeIn(s.Payload.String(stage.FilterDate), loc)
	}
	return s.Time()
}

// Midnight truncates t to the start of its day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseFilter builds a Filter from form or flag values. Dates accept any
// layout workflow.ParseTime does; empty values leave the field unset.
func ParseFilter(party, from, to, timeliness string) (Filter, error) {
	f := Filter{Party: strings.TrimSpace(party)}
	var err error
	if f.Timeliness, err = ParseTimeliness(timeliness); err != nil {
		return Filter{}, err
	}
	if f.From, err = parseBound("from", from); err != nil {
		return Filter{}, err
	}
	if f.To, err = parseBound("to", to); err != nil {
		return Filter{}, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && Midnight(f.To).Before(Midnight(f.From)) {
		return Filter{}, fmt.Errorf("date range ends before it starts: %s..%s", from, to)
	}
	return f, nil
}

func parseBound(name, v string) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return time.Time{}, nil
	}
	t, ok := workflow.ParseTime(v)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid %s date %q", name, v)
	}
	return t, nil
}
