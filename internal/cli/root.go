package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/publish"
	"github.com/roach88/oilflow/internal/refdata"
	"github.com/roach88/oilflow/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Database is the store path; Backend selects sqlite, pebble or memory.
	Database string
	Backend  string

	// Pipeline and RefData override the embedded definitions.
	Pipeline string
	RefData  string

	// Event sinks. Empty values disable them.
	KafkaBrokers string
	KafkaTopic   string
	EventsFile   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultDatabase is the store path used when --db is not given.
const DefaultDatabase = "oilflow.db"

// NewRootCommand creates the root command for the oilflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "oilflow",
		Short: "oilflow - order fulfilment workflow",
		Long: `Track edible-oil orders from punch to delivery.

Every stage's pending list is derived from the workflow history; an order
advances by appending events, never by editing state.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.Database, "db", DefaultDatabase, "path to the workflow store")
	pf.StringVar(&opts.Backend, "backend", store.BackendSQLite, "store backend (sqlite|pebble|memory)")
	pf.StringVar(&opts.Pipeline, "pipeline", "", "CUE pipeline definition (default: built-in)")
	pf.StringVar(&opts.RefData, "refdata", "", "reference data YAML (default: built-in)")
	pf.StringVar(&opts.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers to publish events to")
	pf.StringVar(&opts.KafkaTopic, "kafka-topic", "oilflow.events", "Kafka topic for published events")
	pf.StringVar(&opts.EventsFile, "events-file", "", "append published events to this JSON lines file")

	cmd.AddCommand(NewStagesCommand(opts))
	cmd.AddCommand(NewPunchCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewDashboardCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewRebuildCacheCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// setupLogging routes slog to w; verbose lowers the level to debug.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// openEngine opens the store and builds an engine from the global flags.
// The caller must Close the engine.
func openEngine(opts *RootOptions) (*engine.Engine, error) {
	var engineOpts []engine.Option

	if opts.Pipeline != "" {
		p, err := pipeline.Load(opts.Pipeline)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load pipeline", err)
		}
		engineOpts = append(engineOpts, engine.WithPipeline(p))
	}
	if opts.RefData != "" {
		d, err := refdata.Load(opts.RefData)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load reference data", err)
		}
		engineOpts = append(engineOpts, engine.WithReferenceData(d))
	}

	pub, err := publish.New(publish.Config{
		KafkaBrokers: opts.KafkaBrokers,
		KafkaTopic:   opts.KafkaTopic,
		FilePath:     opts.EventsFile,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure event sinks", err)
	}
	engineOpts = append(engineOpts, engine.WithPublisher(pub))

	kv, err := store.Open(opts.Backend, opts.Database)
	if err != nil {
		_ = pub.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	slog.Debug("store opened", "backend", opts.Backend, "path", opts.Database)
	return engine.New(kv, engineOpts...), nil
}
