package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/resolver"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	Party      string
	From       string
	To         string
	Timeliness string
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending <stage>",
		Short: "Show the rows pending at a stage",
		Long: `Derive the rows eligible at a stage from the workflow history.

The stage may be given by name, slug or alias. Filters narrow what is shown
but never change which rows are eligible.

Examples:
  oilflow pending "Dispatch Planning"
  oilflow pending approval-of-order --party "Acme Oils"
  oilflow pending dispatch-planning --from 2026-03-01 --to 2026-03-31 --timeliness expired`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Party, "party", "", "show only this customer")
	cmd.Flags().StringVar(&opts.From, "from", "", "first day of the date range")
	cmd.Flags().StringVar(&opts.To, "to", "", "last day of the date range")
	cmd.Flags().StringVar(&opts.Timeliness, "timeliness", "", "on-time or expired")

	return cmd
}

func runPending(opts *PendingOptions, stage string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	filter, err := resolver.ParseFilter(opts.Party, opts.From, opts.To, opts.Timeliness)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	return withEngine(opts.RootOptions, func(e *engine.Engine) error {
		view, err := e.Pending(cmd.Context(), stage, filter)
		if err != nil {
			return f.Failure(err)
		}
		f.VerboseLog("%d of %d eligible rows shown", len(view.Rows), view.Eligible)
		return f.Success(view, func(w io.Writer) { printPending(w, view) })
	})
}

func printPending(w io.Writer, view engine.StageView) {
	if len(view.Rows) == 0 {
		fmt.Fprintf(w, "Nothing pending at %s.\n", view.Name)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSO\tCUSTOMER\tPRODUCT\tQTY\tTARGET")
	for _, row := range view.Rows {
		s := row.Snapshot
		product, qty := "-", "-"
		if p := row.Product; p != nil {
			product = p.Label()
			qty = fmt.Sprintf("%g %s", float64(p.OrderQty), p.UOM)
		}
		target := "-"
		if d, ok := resolver.TargetDate(view.Stage, s); ok {
			target = d.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", row.Key(), s.SONumber, s.CustomerName, product, qty, target)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d of %d eligible rows at %s\n", len(view.Rows), view.Eligible, view.Name)
}
