package intake

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oilflow/internal/eventlog"
	"github.com/roach88/oilflow/internal/metrics"
	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/resolver"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/store"
	"github.com/roach88/oilflow/internal/workflow"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newIntake(t *testing.T) (*Intake, *eventlog.Log, *metrics.Registry) {
	t.Helper()
	kv := store.NewMemory()
	t.Cleanup(func() { kv.Close() })
	log := eventlog.New(kv, eventlog.WithIDGenerator(eventlog.NewFixedGenerator("e1", "e2", "e3")))
	reg := metrics.NewRegistry()
	in := New(log, pipeline.Default(),
		WithClock(func() time.Time { return fixedNow }),
		WithMetrics(reg),
	)
	return in, log, reg
}

func line(id string, qty float64) workflow.LineItem {
	return workflow.LineItem{ProductRef: workflow.ProductRef{ID: id}, OrderQty: workflow.Quantity(qty)}
}

func TestPunchRegularOrder(t *testing.T) {
	ctx := context.Background()
	in, log, reg := newIntake(t)

	rec, err := in.Punch(ctx, Order{
		CustomerName: " acme oils",
		DeliveryDate: "2026-03-10",
		Products:     []workflow.LineItem{line("MUS-15L", 10), line("soy-15l", 4)},
		Payload:      workflow.Payload{"remarks": "urgent"},
	})
	require.NoError(t, err)

	assert.Equal(t, "SO-001", rec.SONumber)
	assert.Equal(t, "DO-001A", rec.DONumber)
	assert.Equal(t, "DO-001A", rec.OrderID)
	assert.Equal(t, "approvalPendingItems", rec.SideList)

	e := rec.Event
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, workflow.StageOrderPunch, e.Stage)
	assert.Equal(t, workflow.StatusCompleted, e.Status)
	assert.Equal(t, "Acme Oils", e.CustomerName)
	assert.Equal(t, workflow.OrderTypeRegular, e.OrderType)
	assert.Equal(t, "urgent", e.Payload["remarks"])

	s, ok := snapshot.Find(log.ReadAll(ctx), "DO-001A")
	require.True(t, ok)
	require.Len(t, s.Products, 2)
	assert.Equal(t, "Mustard Oil 15L Tin", s.Products[0].ProductName)
	assert.Equal(t, workflow.Quantity(150), s.Products[0].AltQty)
	assert.Equal(t, workflow.Quantity(2150), s.Products[0].Rate)
	assert.Equal(t, "SOY-15L", s.Products[1].ID)

	res := resolver.New(pipeline.Default())
	approval, err := res.Pipeline().Lookup("Approval Of Order")
	require.NoError(t, err)
	var side []workflow.SideItem
	require.NoError(t, log.View(ctx, func(r *eventlog.Reader) error {
		side = r.SideList("approvalPendingItems")
		assert.Empty(t, r.SideList("preApprovalPendingItems"))
		var cache map[string]snapshot.Snapshot
		assert.True(t, r.MasterOrders(&cache))
		assert.Contains(t, cache, "DO-001A")
		return nil
	}))
	rows := res.Pending(approval, log.ReadAll(ctx), side)
	require.Len(t, rows, 2)
	assert.Equal(t, "DO-001A/MUS-15L", rows[0].Key().String())

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.OrdersPunched))
}

func TestPunchPreApprovalOrderNumbersIncrease(t *testing.T) {
	ctx := context.Background()
	in, log, _ := newIntake(t)

	_, err := in.Punch(ctx, Order{CustomerName: "Acme Oils", DeliveryDate: "2026-03-10", Products: []workflow.LineItem{line("MUS-1L", 2)}})
	require.NoError(t, err)

	rec, err := in.Punch(ctx, Order{
		CustomerName: "Bharat Traders",
		OrderType:    workflow.OrderTypePreApproval,
		DeliveryDate: "2026-03-12",
		Products:     []workflow.LineItem{line("PALM-15KG", 5)},
	})
	require.NoError(t, err)
	assert.Equal(t, "SO-002", rec.SONumber)
	assert.Equal(t, "DO-002A", rec.DONumber)
	assert.Equal(t, "preApprovalPendingItems", rec.SideList)

	require.NoError(t, log.View(ctx, func(r *eventlog.Reader) error {
		pre := r.SideList("preApprovalPendingItems")
		require.Len(t, pre, 1)
		assert.Empty(t, pre[0].Products)
		require.Len(t, pre[0].PreApprovalProducts, 1)
		assert.Equal(t, int64(2), r.Sequence(eventlog.KeySOSequence))
		assert.Equal(t, int64(2), r.Sequence(eventlog.KeyODSequence))
		return nil
	}))
}

func TestPunchValidation(t *testing.T) {
	ok := Order{CustomerName: "Acme Oils", DeliveryDate: "2026-03-10", Products: []workflow.LineItem{line("MUS-15L", 1)}}

	tests := []struct {
		name  string
		edit  func(o *Order)
		code  workflow.ValidationCode
		field string
	}{
		{"missing customer", func(o *Order) { o.CustomerName = " " }, workflow.ErrCodeMissingField, "customerName"},
		{"unknown customer", func(o *Order) { o.CustomerName = "Nobody" }, workflow.ErrCodeUnknownReference, "customerName"},
		{"unknown order type", func(o *Order) { o.OrderType = "export" }, workflow.ErrCodeInvalidOutcome, "orderType"},
		{"missing delivery date", func(o *Order) { o.DeliveryDate = "" }, workflow.ErrCodeMissingField, "deliveryDate"},
		{"unknown product", func(o *Order) { o.Products = []workflow.LineItem{line("GHEE", 1)} }, workflow.ErrCodeUnknownReference, "products[0]"},
		{"zero quantity", func(o *Order) { o.Products = []workflow.LineItem{line("MUS-15L", 0)} }, workflow.ErrCodeMissingField, "products[0].orderQty"},
		{"duplicate product", func(o *Order) {
			o.Products = []workflow.LineItem{line("MUS-15L", 1), {ProductRef: workflow.ProductRef{ProductName: "mustard oil 15l tin"}, OrderQty: 2}}
		}, workflow.ErrCodeInvalidOutcome, "products[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			in, log, _ := newIntake(t)
			o := ok
			o.Products = workflow.CloneLineItems(ok.Products)
			tt.edit(&o)

			_, err := in.Punch(ctx, o)
			require.Error(t, err)
			var ve *workflow.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.code, ve.Code)
			assert.Equal(t, tt.field, ve.Field)

			assert.Empty(t, log.ReadAll(ctx))
			require.NoError(t, log.View(ctx, func(r *eventlog.Reader) error {
				assert.Zero(t, r.Sequence(eventlog.KeySOSequence), "no number consumed")
				return nil
			}))
		})
	}
}

func TestTakeHandoffIsReadOnce(t *testing.T) {
	ctx := context.Background()
	in, _, _ := newIntake(t)

	_, ok, err := in.TakeHandoff(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = in.Punch(ctx, Order{CustomerName: "Acme Oils", DeliveryDate: "2026-03-10", Products: []workflow.LineItem{line("RB-15L", 3)}})
	require.NoError(t, err)

	item, ok, err := in.TakeHandoff(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DO-001A", item.OrderKey())
	assert.Equal(t, "2026-03-10", item.Payload.String("deliveryDate"))

	_, ok, err = in.TakeHandoff(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderNumbers(t *testing.T) {
	assert.Equal(t, "SO-007", SONumber(7))
	assert.Equal(t, "DO-042A", DONumber(42))
	assert.Equal(t, "DO-1234A", DONumber(1234))
}
