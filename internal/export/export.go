// Package export renders pending sets and dashboards as spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/resolver"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/stats"
	"github.com/roach88/oilflow/internal/workflow"
)

// Table is one sheet of output.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]any
}

// Pending lays out the pending rows of one stage, one line per row.
func Pending(stage pipeline.StageDef, rows []snapshot.PendingRow) Table {
	t := Table{
		Sheet: sheetName(string(stage.ID)),
		Headers: []string{
			"Order ID", "SO Number", "Customer", "Order Type", "Product",
			"UOM", "Qty", "Alt UOM", "Alt Qty", "Target Date", "Last Update",
		},
	}
	for _, row := range rows {
		s := row.Snapshot
		line := []any{s.OrderID, s.SONumber, s.CustomerName, string(s.OrderType)}
		if p := row.Product; p != nil {
			line = append(line, p.Label(), p.UOM, float64(p.OrderQty), p.AltUOM, float64(p.AltQty))
		} else {
			line = append(line, "", "", "", "", "")
		}
		target := ""
		if d, ok := resolver.TargetDate(stage, s); ok {
			target = d.Format("2006-01-02")
		}
		line = append(line, target, s.UpdatedAt)
		t.Rows = append(t.Rows, line)
	}
	return t
}

// Dashboard lays out a dashboard as summary, stage, timeline and order sheets.
func Dashboard(d stats.Dashboard) []Table {
	summary := Table{
		Sheet:   "Summary",
		Headers: []string{"Metric", "Value"},
		Rows: [][]any{
			{"Range", string(d.Range)},
			{"From", d.From},
			{"To", d.To},
			{"Total", d.Total},
			{"Active", d.Active},
			{"Completed", d.Completed},
			{"Attention", d.Attention},
		},
	}

	stages := Table{Sheet: "Stages", Headers: []string{"Stage", "Pending", "Completed", "Rejected"}}
	for _, sc := range d.Stages {
		stages.Rows = append(stages.Rows, []any{string(sc.Stage), sc.Pending, sc.Completed, sc.Rejected})
	}

	timeline := Table{Sheet: "Timeline", Headers: []string{"Date", "Day", "Orders"}}
	for _, dc := range d.Timeline {
		timeline.Rows = append(timeline.Rows, []any{dc.Date, dc.Day, dc.Orders})
	}

	orders := Table{Sheet: "Orders", Headers: []string{"Order ID", "Customer", "Order Type", "Stage", "Status", "Done", "Attention", "Last Update"}}
	for _, o := range d.Orders {
		orders.Rows = append(orders.Rows, []any{
			o.OrderID, o.CustomerName, string(o.OrderType), string(o.Stage), string(o.Status), o.Done, o.Attention, o.UpdatedAt,
		})
	}
	return []Table{summary, stages, timeline, orders}
}

// Events lays out raw history, one line per event.
func Events(events []workflow.Event) Table {
	t := Table{
		Sheet:   "History",
		Headers: []string{"Seq", "ID", "Order ID", "Stage", "Status", "Product", "Customer", "Order Type", "Timestamp"},
	}
	for _, e := range events {
		product := ""
		if e.Product != nil {
			product = e.Product.Label()
		}
		t.Rows = append(t.Rows, []any{
			e.Seq, e.ID, e.OrderKey(), string(e.Stage), string(e.Status), product, e.CustomerName, string(e.OrderType), e.Timestamp,
		})
	}
	return t
}

// WriteXLSX writes tables as one workbook, a sheet per table, headers in bold.
func WriteXLSX(w io.Writer, tables ...Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("no tables to export")
	}
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, t := range tables {
		index, err := f.NewSheet(t.Sheet)
		if err != nil {
			return fmt.Errorf("sheet %q: %w", t.Sheet, err)
		}
		if i == 0 {
			f.SetActiveSheet(index)
		}
		if err := writeSheet(f, t, headerStyle); err != nil {
			return fmt.Errorf("sheet %q: %w", t.Sheet, err)
		}
	}

	if !hasSheet(tables, "Sheet1") {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, t Table, headerStyle int) error {
	for col, h := range t.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(t.Sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(t.Sheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(t.Sheet, cell, v); err != nil {
				return err
			}
		}
	}
	if len(t.Headers) > 0 {
		last, err := excelize.ColumnNumberToName(len(t.Headers))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(t.Sheet, "A", last, 18); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes one table as CSV.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for _, row := range t.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = cellString(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cellString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func hasSheet(tables []Table, name string) bool {
	for _, t := range tables {
		if t.Sheet == name {
			return true
		}
	}
	return false
}

// sheetName trims a name to the 31 characters a worksheet name allows.
func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
