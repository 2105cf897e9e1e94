package snapshot

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/roach88/oilflow/internal/canonical"
	"github.com/roach88/oilflow/internal/workflow"
)

// Payload keys lifted out of the merged payload into typed product lists.
const (
	KeyProducts            = "products"
	KeyPreApprovalProducts = "preApprovalProducts"
)

const digestDomain = "oilflow/snapshots/v1"

// Snapshot is the current view of one order, folded from its events.
type Snapshot struct {
	OrderID      string             `json:"orderId"`
	DONumber     string             `json:"doNumber,omitempty"`
	OrderNo      string             `json:"orderNo,omitempty"`
	SONumber     string             `json:"soNumber,omitempty"`
	CustomerName string             `json:"customerName,omitempty"`
	OrderType    workflow.OrderType `json:"orderType,omitempty"`

	// Stage and Status are those of the latest event.
	Stage     workflow.Stage  `json:"stage,omitempty"`
	Status    workflow.Status `json:"status,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Date      string          `json:"date,omitempty"`

	Payload             workflow.Payload    `json:"payload,omitempty"`
	Products            []workflow.LineItem `json:"products,omitempty"`
	PreApprovalProducts []workflow.LineItem `json:"preApprovalProducts,omitempty"`

	// StageStatus is the latest status recorded at each stage.
	StageStatus map[workflow.Stage]workflow.Status `json:"stageStatus,omitempty"`

	// CreatedAt and UpdatedAt are the effective times of the first and last
	// events. Empty when no event time parsed.
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	Events    int    `json:"events"`
}

// Order returns the tagged product-list view of the snapshot.
func (s Snapshot) Order() workflow.Order {
	return workflow.NewOrder(s.OrderType, s.Products, s.PreApprovalProducts)
}

// Created returns the parsed CreatedAt.
func (s Snapshot) Created() (time.Time, bool) {
	return workflow.ParseTime(s.CreatedAt)
}

// Updated returns the parsed UpdatedAt.
func (s Snapshot) Updated() (time.Time, bool) {
	return workflow.ParseTime(s.UpdatedAt)
}

// Time returns the snapshot's own timestamp, falling back to its date.
func (s Snapshot) Time() (time.Time, bool) {
	if t, ok := workflow.ParseTime(s.Timestamp); ok {
		return t, true
	}
	return workflow.ParseTime(s.Date)
}

// Option configures Build.
type Option func(*options)

type options struct {
	canonical func(workflow.Stage) workflow.Stage
	orderID   string
}

// WithStageNames maps stage names found in events onto canonical ids,
// typically pipeline.Canonical.
func WithStageNames(fn func(workflow.Stage) workflow.Stage) Option {
	return func(o *options) {
		o.canonical = fn
	}
}

// WithOrderID restricts the build to one order.
func WithOrderID(id string) Option {
	return func(o *options) {
		o.orderID = id
	}
}

// orderKey returns the fold identity of e. Events that name no order get a
// key of their own rather than merging with other anonymous events.
func orderKey(e workflow.Event) string {
	if k := e.OrderKey(); k != "" {
		return k
	}
	return fmt.Sprintf("%s#%d", workflow.NoProductKey, e.Seq)
}

type timedEvent struct {
	event workflow.Event
	at    time.Time
}

// Sort returns events ordered by effective time. An event whose timestamp
// and date both fail to parse takes the time of the nearest earlier event in
// log order; the sort is stable, so ties keep log order.
func Sort(events []workflow.Event) []workflow.Event {
	timed := sortTimed(events)
	out := make([]workflow.Event, len(timed))
	for i, t := range timed {
		out[i] = t.event
	}
	return out
}

func sortTimed(events []workflow.Event) []timedEvent {
	timed := make([]timedEvent, len(events))
	var last time.Time
	for i, e := range events {
		if t, ok := e.Time(); ok {
			last = t
		}
		timed[i] = timedEvent{event: e, at: last}
	}
	slices.SortStableFunc(timed, func(a, b timedEvent) int {
		return a.at.Compare(b.at)
	})
	return timed
}

// Build folds events into one snapshot per order, in order of first
// appearance in the log. It is a pure function of its input.
func Build(events []workflow.Event, opts ...Option) []Snapshot {
	o := options{canonical: func(s workflow.Stage) workflow.Stage { return s }}
	for _, opt := range opts {
		opt(&o)
	}

	var order []string
	seen := make(map[string]bool)
	for _, e := range events {
		k := orderKey(e)
		if o.orderID != "" && k != o.orderID {
			continue
		}
		if !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
	}

	acc := make(map[string]*Snapshot, len(order))
	for _, t := range sortTimed(events) {
		e := t.event
		k := orderKey(e)
		if !seen[k] {
			continue
		}
		s := acc[k]
		if s == nil {
			s = &Snapshot{OrderID: k}
			acc[k] = s
		}
		fold(s, e, o.canonical(e.Stage))
		if !t.at.IsZero() {
			if s.CreatedAt == "" {
				s.CreatedAt = workflow.FormatTime(t.at)
			}
			s.UpdatedAt = workflow.FormatTime(t.at)
		}
	}

	out := make([]Snapshot, 0, len(order))
	for _, k := range order {
		out = append(out, *acc[k])
	}
	return out
}

// fold applies e onto s. Defined fields overwrite; absent ones keep the
// accumulated value.
func fold(s *Snapshot, e workflow.Event, stage workflow.Stage) {
	s.Events++

	setIf(&s.DONumber, e.DONumber)
	setIf(&s.OrderNo, e.OrderNo)
	setIf(&s.SONumber, e.SONumber)
	setIf(&s.CustomerName, e.CustomerName)
	setIf(&s.Timestamp, e.Timestamp)
	setIf(&s.Date, e.Date)
	if e.OrderType != "" {
		s.OrderType = e.OrderType
	}
	if stage != "" {
		s.Stage = stage
		if s.StageStatus == nil {
			s.StageStatus = make(map[workflow.Stage]workflow.Status)
		}
		s.StageStatus[stage] = e.Status
	}
	if e.Status != "" {
		s.Status = e.Status
	}

	for k, v := range e.Payload {
		if v == nil {
			continue
		}
		switch k {
		case KeyProducts:
			if items := workflow.DecodeLineItems(v); len(items) > 0 {
				s.Products = items
			}
		case KeyPreApprovalProducts:
			if items := workflow.DecodeLineItems(v); len(items) > 0 {
				s.PreApprovalProducts = items
			}
		default:
			if s.Payload == nil {
				s.Payload = make(workflow.Payload)
			}
			s.Payload[k] = v
		}
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ByID indexes snapshots by order id.
func ByID(snaps []Snapshot) map[string]Snapshot {
	m := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		m[s.OrderID] = s
	}
	return m
}

// Find builds the snapshot of a single order.
func Find(events []workflow.Event, orderID string, opts ...Option) (Snapshot, bool) {
	snaps := Build(events, append(opts, WithOrderID(orderID))...)
	if len(snaps) == 0 {
		return Snapshot{}, false
	}
	return snaps[0], true
}

// Digest returns the canonical SHA-256 of a snapshot map. Two maps with the
// same content digest equally regardless of construction order.
func Digest(m map[string]Snapshot) (string, error) {
	return canonical.DigestStruct(digestDomain, m)
}

// SortedIDs returns the keys of m in ascending order.
func SortedIDs(m map[string]Snapshot) []string {
	return slices.Sorted(maps.Keys(m))
}
