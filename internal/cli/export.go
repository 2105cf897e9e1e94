package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/export"
	"github.com/roach88/oilflow/internal/resolver"
	"github.com/roach88/oilflow/internal/stats"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
	Range  string
	Party  string
}

// ExportResult describes a written spreadsheet.
type ExportResult struct {
	Path   string   `json:"path"`
	Sheets []string `json:"sheets"`
	Rows   int      `json:"rows"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <pending|dashboard|history> [stage]",
		Short: "Write pending rows, the dashboard or the history to a spreadsheet",
		Long: `Export data as XLSX or CSV, chosen by the output file extension.
A CSV file holds only the first sheet.

Examples:
  oilflow export pending "Dispatch Planning" -o dispatch.xlsx
  oilflow export pending approval --party "Acme Oils" -o acme.csv
  oilflow export dashboard --range month -o march.xlsx
  oilflow export history -o history.csv`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file, .xlsx or .csv (required)")
	cmd.Flags().StringVar(&opts.Range, "range", string(stats.RangeAll), "dashboard range")
	cmd.Flags().StringVar(&opts.Party, "party", "", "pending: show only this customer")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExport(opts *ExportOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	ext := strings.ToLower(filepath.Ext(opts.Output))
	if ext != ".xlsx" && ext != ".csv" {
		return NewExitError(ExitCommandError, fmt.Sprintf("unsupported output %q: use .xlsx or .csv", opts.Output))
	}

	return withEngine(opts.RootOptions, func(e *engine.Engine) error {
		tables, err := exportTables(opts, args, e, cmd)
		if err != nil {
			return err
		}
		if err := writeTables(opts.Output, ext, tables); err != nil {
			return WrapExitError(ExitCommandError, "failed to write export", err)
		}

		res := ExportResult{Path: opts.Output}
		for i, t := range tables {
			if ext == ".csv" && i > 0 {
				break
			}
			res.Sheets = append(res.Sheets, t.Sheet)
			res.Rows += len(t.Rows)
		}
		return f.Success(res, func(w io.Writer) {
			fmt.Fprintf(w, "Wrote %d row(s) to %s\n", res.Rows, res.Path)
		})
	})
}

func exportTables(opts *ExportOptions, args []string, e *engine.Engine, cmd *cobra.Command) ([]export.Table, error) {
	f := newFormatter(opts.RootOptions, cmd)
	switch args[0] {
	case "pending":
		if len(args) != 2 {
			return nil, NewExitError(ExitCommandError, "export pending needs a stage")
		}
		view, err := e.Pending(cmd.Context(), args[1], resolver.Filter{Party: opts.Party})
		if err != nil {
			return nil, f.Failure(err)
		}
		return []export.Table{export.Pending(view.Stage, view.Rows)}, nil

	case "dashboard":
		rng, err := stats.ParseRange(opts.Range)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --range", err)
		}
		return export.Dashboard(e.Dashboard(cmd.Context(), rng)), nil

	case "history":
		return []export.Table{export.Events(e.History(cmd.Context()))}, nil
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown export %q: want pending, dashboard or history", args[0]))
}

func writeTables(path, ext string, tables []export.Table) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if ext == ".csv" {
		if len(tables) == 0 {
			return nil
		}
		return export.WriteCSV(out, tables[0])
	}
	return export.WriteXLSX(out, tables...)
}
