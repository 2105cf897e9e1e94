package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/oilflow/internal/resolver"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/workflow"
)

// DefaultIdleThreshold is how long an active order may sit untouched
// before it needs attention.
const DefaultIdleThreshold = 24 * time.Hour

// Range selects the orders a dashboard covers, by creation time.
type Range string

const (
	RangeToday Range = "today"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeAll   Range = "all"
)

// ParseRange accepts today, week, month and all. Empty means all.
func ParseRange(s string) (Range, error) {
	switch r := Range(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RangeAll, nil
	case RangeToday, RangeWeek, RangeMonth, RangeAll:
		return r, nil
	}
	return "", fmt.Errorf("unknown range %q", s)
}

// Bounds returns the half-open interval [from, to) covered by r at now, in
// now's location. Both are zero for RangeAll.
func (r Range) Bounds(now time.Time) (from, to time.Time) {
	day := resolver.Midnight(now)
	switch r {
	case RangeToday:
		return day, day.AddDate(0, 0, 1)
	case RangeWeek:
		start := weekStart(day)
		return start, start.AddDate(0, 0, 7)
	case RangeMonth:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 1, 0)
	}
	return time.Time{}, time.Time{}
}

// weekStart returns the Monday on or before day.
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// StageCount is one stage's row of the dashboard.
type StageCount struct {
	Stage     workflow.Stage `json:"stage"`
	Pending   int            `json:"pending"`
	Completed int            `json:"completed"`
	Rejected  int            `json:"rejected"`
}

// DayCount is the number of orders created on one day.
type DayCount struct {
	Date   string `json:"date"`
	Day    string `json:"day"`
	Orders int    `json:"orders"`
}

// OrderProgress summarises one order for the dashboard.
type OrderProgress struct {
	OrderID      string             `json:"orderId"`
	CustomerName string             `json:"customerName,omitempty"`
	OrderType    workflow.OrderType `json:"orderType,omitempty"`
	Progress
	UpdatedAt string `json:"updatedAt,omitempty"`

	// Attention names why the order needs a look, or is empty.
	Attention string `json:"attention,omitempty"`
}

// Attention reasons.
const (
	ReasonRejected = "rejected"
	ReasonDamaged  = "damaged"
	ReasonIdle     = "idle"
)

// Dashboard is the aggregate view of the history over one range.
type Dashboard struct {
	Range     Range           `json:"range"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Total     int             `json:"total"`
	Active    int             `json:"active"`
	Completed int             `json:"completed"`
	Attention int             `json:"attention"`
	Stages    []StageCount    `json:"stages"`
	Timeline  []DayCount      `json:"timeline"`
	Orders    []OrderProgress `json:"orders"`
}

// Engine computes dashboards.
type Engine struct {
	resolver *resolver.Resolver
	loc      *time.Location
	idle     time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the zone whose midnights bound ranges and timeline
// days. Default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithIdleThreshold overrides DefaultIdleThreshold.
func WithIdleThreshold(d time.Duration) Option {
	return func(e *Engine) { e.idle = d }
}

// New creates a statistics engine over r's pipeline.
func New(r *resolver.Resolver, opts ...Option) *Engine {
	e := &Engine{resolver: r, loc: time.Local, idle: DefaultIdleThreshold}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dashboard summarises events over rng as of now. side holds the current
// side lists by name.
func (e *Engine) Dashboard(events []workflow.Event, side map[string][]workflow.SideItem, rng Range, now time.Time) Dashboard {
	now = now.In(e.loc)
	from, to := rng.Bounds(now)
	p := e.resolver.Pipeline()

	d := Dashboard{
		Range:    rng,
		Stages:   []StageCount{},
		Timeline: e.timeline(events, now),
		Orders:   []OrderProgress{},
	}
	if !from.IsZero() {
		d.From = from.Format(time.DateOnly)
		d.To = to.AddDate(0, 0, -1).Format(time.DateOnly)
	}

	inRange := make(map[string]bool)
	for _, s := range e.resolver.Snapshots(events) {
		if !e.covers(s, from, to) {
			continue
		}
		inRange[s.OrderID] = true

		op := OrderProgress{
			OrderID:      s.OrderID,
			CustomerName: s.CustomerName,
			OrderType:    s.OrderType,
			Progress:     CurrentStage(p, s),
			UpdatedAt:    s.UpdatedAt,
		}
		op.Attention = e.attention(s, op.Progress, now)

		d.Total++
		switch {
		case op.Done:
			d.Completed++
		case !op.Stalled() && s.Status != workflow.StatusCancelled:
			d.Active++
		}
		if op.Attention != "" {
			d.Attention++
		}
		d.Orders = append(d.Orders, op)
	}

	for _, def := range p.Stages() {
		sc := StageCount{Stage: def.ID}
		for _, row := range e.resolver.Pending(def, events, side[def.SideList]) {
			if inRange[row.Snapshot.OrderID] {
				sc.Pending++
			}
		}
		for k, st := range e.resolver.Completed(def, events) {
			if !inRange[k.OrderID] {
				continue
			}
			if st.IsTerminalNegative() {
				sc.Rejected++
			} else {
				sc.Completed++
			}
		}
		d.Stages = append(d.Stages, sc)
	}
	return d
}

// covers reports whether s was created inside [from, to). Every order is
// covered when the range is unbounded; otherwise an order with no
// parseable time is not.
func (e *Engine) covers(s snapshot.Snapshot, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	t, ok := s.Created()
	if !ok {
		return false
	}
	t = t.In(e.loc)
	return !t.Before(from) && t.Before(to)
}

func (e *Engine) attention(s snapshot.Snapshot, p Progress, now time.Time) string {
	switch {
	case p.Status == workflow.StatusRejected:
		return ReasonRejected
	case p.Done || p.Stalled() || s.Status == workflow.StatusCancelled:
		return ""
	}
	for _, st := range s.StageStatus {
		if st == workflow.StatusDamaged {
			return ReasonDamaged
		}
	}
	if t, ok := s.Updated(); ok && now.Sub(t) > e.idle {
		return ReasonIdle
	}
	return ""
}

// timeline counts orders created on each day of now's week, Monday first.
func (e *Engine) timeline(events []workflow.Event, now time.Time) []DayCount {
	start := weekStart(resolver.Midnight(now))
	days := make([]DayCount, 7)
	for i := range days {
		day := start.AddDate(0, 0, i)
		days[i] = DayCount{Date: day.Format(time.DateOnly), Day: day.Format("Mon")}
	}
	for _, s := range e.resolver.Snapshots(events) {
		t, ok := s.Created()
		if !ok {
			continue
		}
		date := t.In(e.loc).Format(time.DateOnly)
		for i := range days {
			if days[i].Date == date {
				days[i].Orders++
				break
			}
		}
	}
	return days
}
