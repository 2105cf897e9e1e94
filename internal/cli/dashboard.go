package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/stats"
)

// NewDashboardCommand creates the dashboard command.
func NewDashboardCommand(rootOpts *RootOptions) *cobra.Command {
	var rangeFlag string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarise orders by stage",
		Long: `Show order totals, per-stage counts and orders needing attention for
orders created in the selected range.

Examples:
  oilflow dashboard
  oilflow dashboard --range week --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			rng, err := stats.ParseRange(rangeFlag)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --range", err)
			}
			return withEngine(rootOpts, func(e *engine.Engine) error {
				d := e.Dashboard(cmd.Context(), rng)
				return f.Success(d, func(w io.Writer) { printDashboard(w, d) })
			})
		},
	}

	cmd.Flags().StringVar(&rangeFlag, "range", string(stats.RangeAll), "today, week, month or all")
	return cmd
}

func printDashboard(w io.Writer, d stats.Dashboard) {
	fmt.Fprintf(w, "Orders (%s): %d total, %d active, %d completed, %d need attention\n\n",
		d.Range, d.Total, d.Active, d.Completed, d.Attention)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tPENDING\tCOMPLETED\tREJECTED")
	for _, s := range d.Stages {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.Stage, s.Pending, s.Completed, s.Rejected)
	}
	tw.Flush()

	var flagged []stats.OrderProgress
	for _, o := range d.Orders {
		if o.Attention != "" {
			flagged = append(flagged, o)
		}
	}
	if len(flagged) == 0 {
		return
	}
	fmt.Fprintln(w, "\nNeeds attention:")
	for _, o := range flagged {
		fmt.Fprintf(w, "  %s  %s  %s\n", o.OrderID, o.CustomerName, o.Attention)
	}
}
