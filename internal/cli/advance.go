package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/oilflow/internal/advance"
	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/workflow"
)

// AdvanceOptions holds flags for the advance command.
type AdvanceOptions struct {
	*RootOptions
	Rows      []string
	Status    string
	Checklist map[string]string
	Set       map[string]string
}

// NewAdvanceCommand creates the advance command.
func NewAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdvanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "advance <stage>",
		Short: "Advance pending rows through a stage",
		Long: `Record an outcome for one or more rows pending at a stage.

Rows are given as ORDER/PRODUCT; a row without a product is just ORDER.
Approval-type stages need a checklist; any item set to reject rejects the
whole selection. Other stages refuse a checklist.

Exit codes:
  0 - Rows advanced
  1 - Advancement refused (row not pending, missing field, no decision, ...)
  2 - Command error

Examples:
  oilflow advance "Approval Of Order" --row DO-001A/MUS-15L --check rate=approve --check credit=approve
  oilflow advance dispatch-planning --row DO-001A/MUS-15L --row DO-001A/SOY-15L
  oilflow advance "Make Invoice" --row DO-001A/MUS-15L --set invoiceNumber=INV-204`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvance(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Rows, "row", nil, "row to advance as ORDER/PRODUCT (repeatable, required)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "outcome (default: the stage's first outcome)")
	cmd.Flags().StringToStringVar(&opts.Checklist, "check", nil, "checklist item as item=approve|reject")
	cmd.Flags().StringToStringVar(&opts.Set, "set", nil, "payload field as key=value")
	_ = cmd.MarkFlagRequired("row")

	return cmd
}

func runAdvance(opts *AdvanceOptions, stage string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	req := advance.Request{
		Stage:     stage,
		Status:    workflow.Status(opts.Status),
		Checklist: opts.Checklist,
		Payload:   payloadOf(opts.Set),
	}
	for _, r := range opts.Rows {
		req.Rows = append(req.Rows, workflow.ParseRowKey(r))
	}

	return withEngine(opts.RootOptions, func(e *engine.Engine) error {
		res, err := e.Advance(cmd.Context(), req)
		if err != nil {
			return f.Failure(err)
		}
		for _, ev := range res.Events {
			f.VerboseLog("appended %s for %s", ev.ID, ev.RowKey())
		}
		return f.Success(res, func(w io.Writer) {
			fmt.Fprintf(w, "%d row(s) %s at %s\n", len(res.Events), res.Status, res.Stage)
			fmt.Fprintf(w, "%d row(s) still pending\n", res.Remaining)
		})
	})
}
