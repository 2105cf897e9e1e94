package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/resolver"
	"github.com/roach88/oilflow/internal/workflow"
)

// StageSummary describes one stage with its current pending count.
type StageSummary struct {
	Stage    workflow.Stage    `json:"stage"`
	Slug     string            `json:"slug"`
	Upstream workflow.Stage    `json:"upstream,omitempty"`
	SideList string            `json:"sideList,omitempty"`
	Outcomes []workflow.Status `json:"outcomes"`
	Pending  int               `json:"pending"`
}

// NewStagesCommand creates the stages command.
func NewStagesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages and their pending counts",
		Long: `List every stage of the pipeline in order, with how each is fed and how
many rows are currently pending there.

Examples:
  oilflow stages
  oilflow stages --pipeline ./pipeline.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withEngine(rootOpts, func(e *engine.Engine) error {
				var out []StageSummary
				for _, def := range e.Pipeline().Stages() {
					view, err := e.Pending(cmd.Context(), string(def.ID), resolver.Filter{})
					if err != nil {
						return f.Failure(err)
					}
					out = append(out, StageSummary{
						Stage:    def.ID,
						Slug:     def.Slug,
						Upstream: def.Upstream,
						SideList: def.SideList,
						Outcomes: def.Outcomes,
						Pending:  view.Eligible,
					})
				}
				return f.Success(out, func(w io.Writer) { printStages(w, out) })
			})
		},
	}
}

func printStages(w io.Writer, stages []StageSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTAGE\tFED BY\tOUTCOMES\tPENDING")
	for i, s := range stages {
		fed := string(s.Upstream)
		if s.SideList != "" {
			fed = s.SideList
		}
		if fed == "" {
			fed = "-"
		}
		outcomes := make([]string, len(s.Outcomes))
		for j, o := range s.Outcomes {
			outcomes[j] = string(o)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", i+1, s.Stage, fed, strings.Join(outcomes, ","), s.Pending)
	}
	tw.Flush()
}
