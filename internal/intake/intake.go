// Package intake records new orders at the Order Punch stage.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/oilflow/internal/eventlog"
	"github.com/roach88/oilflow/internal/metrics"
	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/publish"
	"github.com/roach88/oilflow/internal/refdata"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/workflow"
)

// Order is the intake form for one new order.
type Order struct {
	CustomerName string              `json:"customerName"`
	OrderType    workflow.OrderType  `json:"orderType,omitempty"`
	DeliveryDate string              `json:"deliveryDate"`
	Products     []workflow.LineItem `json:"products"`

	// Payload carries extra form values stored on the punch event.
	Payload workflow.Payload `json:"payload,omitempty"`
}

// Receipt identifies a punched order.
type Receipt struct {
	OrderID  string         `json:"orderId"`
	SONumber string         `json:"soNumber"`
	DONumber string         `json:"doNumber"`
	SideList string         `json:"sideList,omitempty"`
	Event    workflow.Event `json:"event"`
}

// Intake mints order numbers and appends Order Punch events.
type Intake struct {
	log       *eventlog.Log
	pipeline  *pipeline.Pipeline
	ref       *refdata.Data
	publisher publish.Publisher
	metrics   *metrics.Registry
	now       func() time.Time
}

// Option configures an Intake.
type Option func(*Intake)

func WithPublisher(p publish.Publisher) Option {
	return func(in *Intake) { in.publisher = p }
}

func WithMetrics(r *metrics.Registry) Option {
	return func(in *Intake) { in.metrics = r }
}

func WithClock(now func() time.Time) Option {
	return func(in *Intake) { in.now = now }
}

// WithReferenceData replaces the embedded reference data.
func WithReferenceData(d *refdata.Data) Option {
	return func(in *Intake) { in.ref = d }
}

// New creates an Intake writing to log.
func New(log *eventlog.Log, p *pipeline.Pipeline, opts ...Option) *Intake {
	in := &Intake{
		log:       log,
		pipeline:  p,
		ref:       refdata.Default(),
		publisher: publish.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// SONumber and DONumber render the human-readable order numbers.
func SONumber(n int64) string { return fmt.Sprintf("SO-%03d", n) }
func DONumber(n int64) string { return fmt.Sprintf("DO-%03dA", n) }

// Punch validates o, mints its numbers and records it. The order is
// enqueued on the first side list whose stage applies to its type, and
// left as the orderData handoff for the first stage that reads it.
func (in *Intake) Punch(ctx context.Context, o Order) (Receipt, error) {
	o, err := in.normalise(o)
	if err != nil {
		return Receipt{}, err
	}
	sideList := in.entryList(o.OrderType)

	var rec Receipt
	err = in.log.Update(ctx, func(tx *eventlog.Tx) error {
		so, err := tx.NextSequence(eventlog.KeySOSequence)
		if err != nil {
			return err
		}
		do, err := tx.NextSequence(eventlog.KeyODSequence)
		if err != nil {
			return err
		}

		now := in.now()
		e := punchEvent(o, SONumber(so), DONumber(do), now)
		appended, err := tx.Append(e)
		if err != nil {
			return err
		}

		item := sideItem(appended[0], o)
		if err := tx.PutHandoff(item); err != nil {
			return err
		}
		if sideList != "" {
			if err := tx.AddToSideList(sideList, item); err != nil {
				return err
			}
		}

		snaps := snapshot.Build(tx.Events(), snapshot.WithStageNames(in.pipeline.Canonical))
		if err := tx.PutMasterOrders(snapshot.ByID(snaps)); err != nil {
			return err
		}

		rec = Receipt{
			OrderID:  appended[0].OrderID,
			SONumber: appended[0].SONumber,
			DONumber: appended[0].DONumber,
			SideList: sideList,
			Event:    appended[0],
		}
		return nil
	})
	if err != nil {
		if workflow.IsValidationError(err) {
			return Receipt{}, err
		}
		return Receipt{}, fmt.Errorf("punch: %w", err)
	}

	if err := in.publisher.Publish(ctx, rec.Event); err != nil {
		slog.Warn("publish failed after commit", "order", rec.OrderID, "error", err)
		if in.metrics != nil {
			in.metrics.PublishFailures.Inc()
		}
	}
	if in.metrics != nil {
		in.metrics.OrdersPunched.Inc()
		in.metrics.EventsAppended.WithLabelValues(string(workflow.StageOrderPunch), string(workflow.StatusCompleted)).Inc()
	}

	slog.Info("order punched", "order", rec.OrderID, "so", rec.SONumber, "type", o.OrderType, "side_list", sideList)
	return rec, nil
}

// TakeHandoff consumes the last punched order. The boolean is false when
// there was none.
func (in *Intake) TakeHandoff(ctx context.Context) (workflow.SideItem, bool, error) {
	var (
		item workflow.SideItem
		ok   bool
	)
	err := in.log.Update(ctx, func(tx *eventlog.Tx) error {
		var err error
		ok, err = tx.TakeHandoff(&item)
		return err
	})
	if err != nil {
		return workflow.SideItem{}, false, fmt.Errorf("take handoff: %w", err)
	}
	return item, ok, nil
}

// entryList returns the side list of the first side-list stage that
// applies to orders of type t.
func (in *Intake) entryList(t workflow.OrderType) string {
	for _, def := range in.pipeline.Stages() {
		if def.SideList != "" && !def.Skips(t) {
			return def.SideList
		}
	}
	return ""
}

// normalise validates o against the reference data and fills product
// details from the SKU master.
func (in *Intake) normalise(o Order) (Order, error) {
	o.CustomerName = strings.TrimSpace(o.CustomerName)
	if o.CustomerName == "" {
		return o, workflow.NewValidationError(workflow.ErrCodeMissingField, "customerName", "customer is required")
	}
	c, ok := in.ref.Customer(o.CustomerName)
	if !ok {
		return o, workflow.NewValidationError(workflow.ErrCodeUnknownReference, "customerName",
			"unknown customer %q", o.CustomerName)
	}
	o.CustomerName = c.Name

	switch o.OrderType {
	case "":
		o.OrderType = workflow.OrderTypeRegular
	case workflow.OrderTypeRegular, workflow.OrderTypePreApproval:
	default:
		return o, workflow.NewValidationError(workflow.ErrCodeInvalidOutcome, "orderType",
			"unknown order type %q", o.OrderType)
	}

	if _, ok := workflow.ParseTime(o.DeliveryDate); !ok {
		return o, workflow.NewValidationError(workflow.ErrCodeMissingField, "deliveryDate",
			"delivery date is required")
	}

	products := make([]workflow.LineItem, 0, len(o.Products))
	seen := make(map[string]bool, len(o.Products))
	for i, p := range o.Products {
		field := fmt.Sprintf("products[%d]", i)
		ref := p.ID
		if ref == "" {
			ref = p.ProductName
		}
		sku, ok := in.ref.SKU(ref)
		if !ok {
			return o, workflow.NewValidationError(workflow.ErrCodeUnknownReference, field, "unknown product %q", ref)
		}
		if p.OrderQty <= 0 {
			return o, workflow.NewValidationError(workflow.ErrCodeMissingField, field+".orderQty",
				"quantity for %s must be positive", sku.Name)
		}
		if seen[sku.ID] {
			return o, workflow.NewValidationError(workflow.ErrCodeInvalidOutcome, field,
				"%s is listed twice", sku.Name)
		}
		seen[sku.ID] = true
		products = append(products, fromSKU(p, sku))
	}
	o.Products = products
	return o, nil
}

func fromSKU(p workflow.LineItem, sku refdata.SKU) workflow.LineItem {
	p.ID = sku.ID
	p.ProductName = sku.Name
	if p.OilType == "" {
		p.OilType = sku.OilType
	}
	if p.UOM == "" {
		p.UOM = sku.UOM
	}
	if p.AltUOM == "" {
		p.AltUOM = sku.AltUOM
	}
	if p.AltQty == 0 && sku.AltFactor > 0 {
		p.AltQty = p.OrderQty * workflow.Quantity(sku.AltFactor)
	}
	if p.Rate == 0 {
		p.Rate = workflow.Quantity(sku.Rate)
	}
	return p
}

func punchEvent(o Order, so, do string, now time.Time) workflow.Event {
	payload := o.Payload.Clone()
	if payload == nil {
		payload = make(workflow.Payload)
	}
	payload["deliveryDate"] = o.DeliveryDate
	if o.OrderType == workflow.OrderTypePreApproval {
		payload[snapshot.KeyPreApprovalProducts] = o.Products
	} else {
		payload[snapshot.KeyProducts] = o.Products
	}
	return workflow.Event{
		OrderID:      do,
		DONumber:     do,
		SONumber:     so,
		CustomerName: o.CustomerName,
		OrderType:    o.OrderType,
		Stage:        workflow.StageOrderPunch,
		Status:       workflow.StatusCompleted,
		Timestamp:    workflow.FormatTime(now),
		Date:         now.Format(time.DateOnly),
		Payload:      payload,
	}
}

func sideItem(e workflow.Event, o Order) workflow.SideItem {
	item := workflow.SideItem{
		OrderID:      e.OrderID,
		DONumber:     e.DONumber,
		SONumber:     e.SONumber,
		CustomerName: e.CustomerName,
		OrderType:    e.OrderType,
		Timestamp:    e.Timestamp,
		Payload:      workflow.Payload{"deliveryDate": o.DeliveryDate},
	}
	if o.OrderType == workflow.OrderTypePreApproval {
		item.PreApprovalProducts = workflow.CloneLineItems(o.Products)
	} else {
		item.Products = workflow.CloneLineItems(o.Products)
	}
	return item
}
