package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oilflow/internal/workflow"
)

func collect(s Snapshot) []PendingRow {
	var rows []PendingRow
	for r := range Rows(s) {
		rows = append(rows, r)
	}
	return rows
}

func TestRowsOnePerProduct(t *testing.T) {
	s, ok := Find([]workflow.Event{
		punch("DO-001A", "Acme", workflow.OrderTypeRegular, "2026-03-01T09:00:00Z", "Mustard", "Soya"),
	}, "DO-001A")
	require.True(t, ok)

	rows := collect(s)
	require.Len(t, rows, 2)
	assert.Equal(t, workflow.RowKey{OrderID: "DO-001A", ProductKey: "Mustard"}, rows[0].Key())
	assert.Equal(t, workflow.RowKey{OrderID: "DO-001A", ProductKey: "Soya"}, rows[1].Key())
	assert.Equal(t, "Acme", rows[1].Snapshot.CustomerName)
}

func TestRowsEmptyOrderYieldsNullProduct(t *testing.T) {
	s := Snapshot{OrderID: "DO-009A", OrderType: workflow.OrderTypeRegular}

	rows := collect(s)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Product)
	assert.Equal(t, workflow.RowKey{OrderID: "DO-009A", ProductKey: workflow.NoProductKey}, rows[0].Key())
}

func TestRowsFallsBackToOtherList(t *testing.T) {
	s := Snapshot{
		OrderID:             "DO-002A",
		OrderType:           workflow.OrderTypeRegular,
		PreApprovalProducts: []workflow.LineItem{{ProductRef: workflow.ProductRef{OilType: "Palm"}}},
	}

	rows := collect(s)
	require.Len(t, rows, 1)
	assert.Equal(t, "Palm", rows[0].Key().ProductKey)
}

func TestRowsSkipsDuplicateKeys(t *testing.T) {
	s := Snapshot{
		OrderID: "DO-003A",
		Products: []workflow.LineItem{
			{ProductRef: workflow.ProductRef{ID: "sku-1", ProductName: "Mustard"}},
			{ProductRef: workflow.ProductRef{ID: "sku-1", ProductName: "Mustard (dup)"}},
			{ProductRef: workflow.ProductRef{}},
			{ProductRef: workflow.ProductRef{}},
		},
	}

	rows := collect(s)
	require.Len(t, rows, 2)
	assert.Equal(t, "sku-1", rows[0].Key().ProductKey)
	assert.Equal(t, "Mustard", rows[0].Product.ProductName)
	assert.Equal(t, workflow.NoProductKey, rows[1].Key().ProductKey)
}

func TestRowsIsRestartableAndStoppable(t *testing.T) {
	s := Snapshot{OrderID: "DO-004A", Products: []workflow.LineItem{
		{ProductRef: workflow.ProductRef{ProductName: "A"}},
		{ProductRef: workflow.ProductRef{ProductName: "B"}},
		{ProductRef: workflow.ProductRef{ProductName: "C"}},
	}}

	assert.Equal(t, collect(s), collect(s))

	var first []string
	for r := range Rows(s) {
		first = append(first, r.Key().ProductKey)
		break
	}
	assert.Equal(t, []string{"A"}, first)
}

func TestRowsProductsAreIndependentCopies(t *testing.T) {
	s := Snapshot{OrderID: "DO-005A", Products: []workflow.LineItem{
		{ProductRef: workflow.ProductRef{ProductName: "A"}},
	}}

	for r := range Rows(s) {
		r.Product.ProductName = "mutated"
	}
	assert.Equal(t, "A", s.Products[0].ProductName)
}

func TestAllRows(t *testing.T) {
	snaps := []Snapshot{
		{OrderID: "X"},
		{OrderID: "Y", Products: []workflow.LineItem{
			{ProductRef: workflow.ProductRef{ProductName: "A"}},
			{ProductRef: workflow.ProductRef{ProductName: "B"}},
		}},
	}

	var keys []string
	for r := range AllRows(snaps) {
		keys = append(keys, r.Key().String())
	}
	assert.Equal(t, []string{"X/no-id", "Y/A", "Y/B"}, keys)
}
