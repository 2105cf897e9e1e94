package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/workflow"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <events-file>",
		Short: "Append events exported from another history",
		Long: `Append workflow events read from a file. The file holds either a JSON
array of events or one JSON event per line, as written by --events-file.
Events keep their ids; masterOrders is refreshed in the same transaction.

Examples:
  oilflow import ./legacy-history.json
  oilflow import ./events.jsonl --db ./oilflow.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			events, err := readEvents(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read events", err)
			}
			return withEngine(rootOpts, func(e *engine.Engine) error {
				out, err := e.Import(cmd.Context(), events...)
				if err != nil {
					return f.Failure(err)
				}
				return f.Success(map[string]int{"imported": len(out)}, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %d event(s)\n", len(out))
				})
			})
		},
	}
}

// readEvents accepts a JSON array or JSON lines.
func readEvents(path string) ([]workflow.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var events []workflow.Event
	if data[0] == '[' {
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return events, nil
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var e workflow.Event
		if err := json.Unmarshal(text, &e); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}
