package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/oilflow/internal/engine"
)

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order <order-id>",
		Short: "Show one order's snapshot and history",
		Long: `Show the current snapshot of an order, the first stage it has not yet
passed, and every event recorded for it.

Examples:
  oilflow order DO-001A
  oilflow order DO-001A --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withEngine(rootOpts, func(e *engine.Engine) error {
				view, err := e.Order(cmd.Context(), args[0])
				if err != nil {
					return f.Failure(err)
				}
				return f.Success(view, func(w io.Writer) { printOrder(w, view) })
			})
		},
	}
}

func printOrder(w io.Writer, v engine.OrderView) {
	s := v.Snapshot
	fmt.Fprintf(w, "Order:    %s\n", s.OrderID)
	fmt.Fprintf(w, "SO:       %s\n", s.SONumber)
	fmt.Fprintf(w, "Customer: %s (%s)\n", s.CustomerName, s.OrderType)
	switch {
	case v.Progress.Done:
		fmt.Fprintln(w, "Progress: done")
	case v.Progress.Stalled():
		fmt.Fprintf(w, "Progress: stopped at %s (%s)\n", v.Progress.Stage, v.Progress.Status)
	default:
		fmt.Fprintf(w, "Progress: waiting at %s\n", v.Progress.Stage)
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tWHEN\tSTAGE\tSTATUS\tPRODUCT")
	for _, ev := range v.Events {
		product := "-"
		if ev.Product != nil {
			product = ev.Product.Label()
		}
		when := ev.Timestamp
		if when == "" {
			when = ev.Date
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", ev.Seq, when, ev.Stage, ev.Status, product)
	}
	tw.Flush()
}
