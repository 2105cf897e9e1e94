package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/intake"
	"github.com/roach88/oilflow/internal/workflow"
)

// PunchOptions holds flags for the punch command.
type PunchOptions struct {
	*RootOptions
	Customer  string
	OrderType string
	Delivery  string
	Products  []string
	Set       map[string]string
}

// NewPunchCommand creates the punch command.
func NewPunchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PunchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "punch",
		Short: "Record a new order",
		Long: `Punch a new order. The order gets the next SO and DO numbers and is
queued for approval (or pre-approval, for pre-approval orders).

Products are given as SKU=QTY; the SKU may be an id or a product name from
the reference data.

Exit codes:
  0 - Order recorded
  1 - Order refused (unknown customer or product, missing quantity, ...)
  2 - Command error

Examples:
  oilflow punch --customer "Acme Oils" --delivery 2026-03-10 --product MUS-15L=10
  oilflow punch --customer "Bharat Traders" --type pre-approval --delivery 2026-03-12 \
    --product MUS-15L=4 --product SOY-15L=2 --set remarks="urgent"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPunch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Customer, "customer", "", "customer name (required)")
	cmd.Flags().StringVar(&opts.OrderType, "type", string(workflow.OrderTypeRegular), "order type (regular|pre-approval)")
	cmd.Flags().StringVar(&opts.Delivery, "delivery", "", "delivery date (required)")
	cmd.Flags().StringArrayVar(&opts.Products, "product", nil, "product line as SKU=QTY (repeatable)")
	cmd.Flags().StringToStringVar(&opts.Set, "set", nil, "extra payload field as key=value")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("delivery")

	return cmd
}

func runPunch(opts *PunchOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	items, err := parseProducts(opts.Products)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --product", err)
	}
	order := intake.Order{
		CustomerName: opts.Customer,
		OrderType:    workflow.OrderType(opts.OrderType),
		DeliveryDate: opts.Delivery,
		Products:     items,
		Payload:      payloadOf(opts.Set),
	}

	return withEngine(opts.RootOptions, func(e *engine.Engine) error {
		rec, err := e.Punch(cmd.Context(), order)
		if err != nil {
			return f.Failure(err)
		}
		return f.Success(rec, func(w io.Writer) {
			fmt.Fprintf(w, "Punched %s (%s) for %s\n", rec.OrderID, rec.SONumber, opts.Customer)
			if rec.SideList != "" {
				fmt.Fprintf(w, "Queued on %s\n", rec.SideList)
			}
		})
	})
}

// parseProducts reads SKU=QTY pairs.
func parseProducts(specs []string) ([]workflow.LineItem, error) {
	items := make([]workflow.LineItem, 0, len(specs))
	for _, s := range specs {
		ref, qty, ok := strings.Cut(s, "=")
		ref = strings.TrimSpace(ref)
		if !ok || ref == "" {
			return nil, fmt.Errorf("%q: want SKU=QTY", s)
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(qty), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: quantity: %w", s, err)
		}
		items = append(items, workflow.LineItem{
			ProductRef: workflow.ProductRef{ID: ref},
			OrderQty:   workflow.Quantity(n),
		})
	}
	return items, nil
}
