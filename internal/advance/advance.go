package advance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/oilflow/internal/eventlog"
	"github.com/roach88/oilflow/internal/metrics"
	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/publish"
	"github.com/roach88/oilflow/internal/resolver"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/workflow"
)

// Checklist answers.
const (
	AnswerApprove = "approve"
	AnswerReject  = "reject"
)

// Request is one stage action over a selection of pending rows.
type Request struct {
	// Stage is a stage id or alias.
	Stage string `json:"stage"`

	Rows []workflow.RowKey `json:"rows"`

	// Status is the chosen outcome. Empty selects the stage default.
	Status workflow.Status `json:"status,omitempty"`

	// Checklist maps each checklist item to "approve" or "reject". Rejective
	// stages require one; a single "reject" rejects the whole selection.
	Checklist map[string]string `json:"checklist,omitempty"`

	// Payload is merged verbatim into every appended event.
	Payload workflow.Payload `json:"payload,omitempty"`
}

// Result describes a committed advancement.
type Result struct {
	Stage  workflow.Stage   `json:"stage"`
	Status workflow.Status  `json:"status"`
	Events []workflow.Event `json:"events"`

	// Remaining is the number of rows still pending at the stage.
	Remaining int `json:"remaining"`
}

// Advancer applies stage actions to the workflow history.
type Advancer struct {
	log       *eventlog.Log
	resolver  *resolver.Resolver
	publisher publish.Publisher
	metrics   *metrics.Registry
	now       func() time.Time
	guard     *guard
}

// Option configures an Advancer.
type Option func(*Advancer)

// WithPublisher sets the sink that receives committed events.
func WithPublisher(p publish.Publisher) Option {
	return func(a *Advancer) {
		a.publisher = p
	}
}

// WithMetrics records advancement metrics in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(a *Advancer) {
		a.metrics = r
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Advancer) {
		a.now = now
	}
}

// New creates an Advancer writing to log.
func New(log *eventlog.Log, r *resolver.Resolver, opts ...Option) *Advancer {
	a := &Advancer{
		log:       log,
		resolver:  r,
		publisher: publish.Nop{},
		now:       time.Now,
		guard:     newGuard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// InFlight reports whether an advancement for stage is being written.
func (a *Advancer) InFlight(stage workflow.Stage) bool {
	return a.guard.inFlight(stage)
}

// Advance validates req and appends one event per selected row.
//
// Validation failures are returned as *workflow.ValidationError and leave
// the store untouched. ErrBusy is returned while another advancement for
// the same stage is in flight.
func (a *Advancer) Advance(ctx context.Context, req Request) (Result, error) {
	stage, err := a.resolver.Pipeline().Lookup(req.Stage)
	if err != nil {
		return Result{}, err
	}

	if !a.guard.acquire(stage.ID) {
		if a.metrics != nil {
			a.metrics.BusyRejections.WithLabelValues(string(stage.ID)).Inc()
		}
		return Result{}, fmt.Errorf("advance %s: %w", stage.ID, workflow.ErrBusy)
	}
	defer a.guard.release(stage.ID)

	start := time.Now()
	res, err := a.advance(ctx, stage, req)
	if err != nil {
		if code := workflow.ValidationCodeOf(err); code != "" {
			slog.Info("advancement rejected", "stage", stage.ID, "code", code, "error", err)
			if a.metrics != nil {
				a.metrics.ValidationFailures.WithLabelValues(string(stage.ID), string(code)).Inc()
			}
			return Result{}, err
		}
		return Result{}, fmt.Errorf("advance %s: %w", stage.ID, err)
	}

	if err := a.publisher.Publish(ctx, res.Events...); err != nil {
		slog.Warn("publish failed after commit", "stage", stage.ID, "events", len(res.Events), "error", err)
		if a.metrics != nil {
			a.metrics.PublishFailures.Inc()
		}
	}

	if a.metrics != nil {
		a.metrics.Advancements.WithLabelValues(string(stage.ID), string(res.Status)).Inc()
		a.metrics.EventsAppended.WithLabelValues(string(stage.ID), string(res.Status)).Add(float64(len(res.Events)))
		a.metrics.PendingRows.WithLabelValues(string(stage.ID)).Set(float64(res.Remaining))
		a.metrics.AdvanceLatencySec.Observe(time.Since(start).Seconds())
	}

	slog.Info("stage advanced",
		"stage", stage.ID,
		"status", res.Status,
		"rows", len(res.Events),
		"remaining", res.Remaining,
	)
	return res, nil
}

func (a *Advancer) advance(ctx context.Context, stage pipeline.StageDef, req Request) (Result, error) {
	keys := uniqueKeys(req.Rows)
	status, err := decide(stage, req, keys)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = a.log.Update(ctx, func(tx *eventlog.Tx) error {
		events := tx.Events()
		var side []workflow.SideItem
		if stage.SideList != "" {
			side = tx.SideList(stage.SideList)
		}

		pending := make(map[workflow.RowKey]snapshot.PendingRow)
		for _, row := range a.resolver.Pending(stage, events, side) {
			pending[row.Key()] = row
		}

		rows := make([]snapshot.PendingRow, 0, len(keys))
		for _, k := range keys {
			row, ok := pending[k]
			if !ok {
				return workflow.NewValidationError(workflow.ErrCodeNotPending, "rows",
					"%s is not pending at %s", k, stage.ID)
			}
			rows = append(rows, row)
		}

		now := a.now()
		batch := make([]workflow.Event, len(rows))
		for i, row := range rows {
			batch[i] = newEvent(stage.ID, status, now, row, req.Payload)
		}

		appended, err := tx.Append(batch...)
		if err != nil {
			return err
		}

		if stage.SideList != "" {
			if _, err := tx.RemoveFromSideList(stage.SideList, keys...); err != nil {
				return err
			}
		}
		if stage.Feeds != "" && status.IsTerminalPositive() {
			if err := tx.AddToSideList(stage.Feeds, sideItems(rows, now)...); err != nil {
				return err
			}
		}

		all := append(slices.Clip(events), appended...)
		if err := tx.PutMasterOrders(snapshot.ByID(a.resolver.Snapshots(all))); err != nil {
			return err
		}

		if stage.SideList != "" {
			side = tx.SideList(stage.SideList)
		}
		res = Result{
			Stage:     stage.ID,
			Status:    status,
			Events:    appended,
			Remaining: len(a.resolver.Pending(stage, all, side)),
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// decide validates the request against the stage and returns the status
// every selected row receives.
func decide(stage pipeline.StageDef, req Request, keys []workflow.RowKey) (workflow.Status, error) {
	if len(keys) == 0 {
		return "", workflow.NewValidationError(workflow.ErrCodeNoRows, "rows", "select at least one row")
	}

	status := req.Status
	if stage.Rejective {
		if len(req.Checklist) == 0 {
			return "", workflow.NewValidationError(workflow.ErrCodeNoDecision, "checklist",
				"%s requires a checklist decision", stage.ID)
		}
		rejected, err := checklistRejects(req.Checklist)
		if err != nil {
			return "", err
		}
		if rejected {
			status = workflow.StatusRejected
		}
	} else if len(req.Checklist) > 0 {
		return "", workflow.NewValidationError(workflow.ErrCodeInvalidOutcome, "checklist",
			"%s does not take a checklist decision", stage.ID)
	}
	if status == "" {
		status = stage.DefaultOutcome()
	}
	if !stage.AllowsOutcome(status) {
		return "", workflow.NewValidationError(workflow.ErrCodeInvalidOutcome, "status",
			"%s is not an outcome of %s", status, stage.ID)
	}

	if !status.IsTerminalNegative() {
		for _, field := range stage.Required {
			if !req.Payload.Has(field) {
				return "", workflow.NewValidationError(workflow.ErrCodeMissingField, field,
					"%s requires %s", stage.ID, field)
			}
		}
	}
	return status, nil
}

// checklistRejects reports whether any answer is a rejection. Every item
// must be answered.
func checklistRejects(checklist map[string]string) (bool, error) {
	rejected := false
	for _, item := range slices.Sorted(maps.Keys(checklist)) {
		switch strings.ToLower(strings.TrimSpace(checklist[item])) {
		case AnswerReject:
			rejected = true
		case AnswerApprove:
		default:
			return false, workflow.NewValidationError(workflow.ErrCodeNoDecision, item,
				"checklist item %q has no decision", item)
		}
	}
	return rejected, nil
}

func uniqueKeys(keys []workflow.RowKey) []workflow.RowKey {
	seen := make(map[workflow.RowKey]bool, len(keys))
	out := make([]workflow.RowKey, 0, len(keys))
	for _, k := range keys {
		if k.ProductKey == "" {
			k.ProductKey = workflow.NoProductKey
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func newEvent(stage workflow.Stage, status workflow.Status, now time.Time, row snapshot.PendingRow, payload workflow.Payload) workflow.Event {
	s := row.Snapshot
	e := workflow.Event{
		OrderID:      s.OrderID,
		DONumber:     s.DONumber,
		OrderNo:      s.OrderNo,
		SONumber:     s.SONumber,
		CustomerName: s.CustomerName,
		OrderType:    s.OrderType,
		Stage:        stage,
		Status:       status,
		Timestamp:    workflow.FormatTime(now),
		Date:         now.Format(time.DateOnly),
		Payload:      payload.Clone(),
	}
	if row.Product != nil {
		p := *row.Product
		e.Product = &p
	}
	return e
}

// sideItems groups rows by order for the next side list, keeping each
// product in the list its order type reads from.
func sideItems(rows []snapshot.PendingRow, now time.Time) []workflow.SideItem {
	var items []workflow.SideItem
	index := make(map[string]int)
	for _, row := range rows {
		s := row.Snapshot
		i, ok := index[s.OrderID]
		if !ok {
			i = len(items)
			index[s.OrderID] = i
			items = append(items, workflow.SideItem{
				OrderID:      s.OrderID,
				DONumber:     s.DONumber,
				OrderNo:      s.OrderNo,
				SONumber:     s.SONumber,
				CustomerName: s.CustomerName,
				OrderType:    s.OrderType,
				Timestamp:    workflow.FormatTime(now),
			})
		}
		if row.Product == nil {
			continue
		}
		if s.OrderType == workflow.OrderTypePreApproval {
			items[i].PreApprovalProducts = append(items[i].PreApprovalProducts, *row.Product)
		} else {
			items[i].Products = append(items[i].Products, *row.Product)
		}
	}
	return items
}

// IsBusy reports whether err is an in-flight rejection.
func IsBusy(err error) bool {
	return errors.Is(err, workflow.ErrBusy)
}
