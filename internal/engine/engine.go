package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/oilflow/internal/advance"
	"github.com/roach88/oilflow/internal/eventlog"
	"github.com/roach88/oilflow/internal/intake"
	"github.com/roach88/oilflow/internal/metrics"
	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/publish"
	"github.com/roach88/oilflow/internal/refdata"
	"github.com/roach88/oilflow/internal/resolver"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/stats"
	"github.com/roach88/oilflow/internal/store"
	"github.com/roach88/oilflow/internal/workflow"
)

// Engine is the workflow service over one store.
//
// Thread-safety model:
//   - reads may run from any goroutine
//   - writes for one stage are serialised by the advancer's guard; a second
//     concurrent write to the same stage fails with workflow.ErrBusy
//   - concurrent writers from separate processes are not coordinated
type Engine struct {
	kv        store.KV
	log       *eventlog.Log
	resolver  *resolver.Resolver
	advancer  *advance.Advancer
	intake    *intake.Intake
	stats     *stats.Engine
	metrics   *metrics.Registry
	publisher publish.Publisher
	now       func() time.Time
	loc       *time.Location
}

// Option configures an Engine.
type Option func(*config)

type config struct {
	pipeline  *pipeline.Pipeline
	ref       *refdata.Data
	publisher publish.Publisher
	metrics   *metrics.Registry
	ids       eventlog.IDGenerator
	now       func() time.Time
	loc       *time.Location
}

// WithPipeline replaces the default stage pipeline.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(c *config) { c.pipeline = p }
}

// WithReferenceData replaces the embedded SKU and customer lists.
func WithReferenceData(d *refdata.Data) Option {
	return func(c *config) { c.ref = d }
}

// WithPublisher sets the sink for committed events. Default discards them.
func WithPublisher(p publish.Publisher) Option {
	return func(c *config) { c.publisher = p }
}

// WithMetrics sets the metrics registry. Default is a fresh registry.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *config) { c.metrics = r }
}

// WithIDGenerator sets the event id generator. Default is UUIDv7.
func WithIDGenerator(g eventlog.IDGenerator) Option {
	return func(c *config) { c.ids = g }
}

// WithClock sets the wall clock used for event timestamps and dashboards.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithLocation sets the zone for dashboard day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(c *config) { c.loc = loc }
}

// New builds an Engine over kv. The engine takes ownership of kv and of
// the publisher; Close releases both.
func New(kv store.KV, opts ...Option) *Engine {
	c := config{
		pipeline:  pipeline.Default(),
		ref:       refdata.Default(),
		publisher: publish.Nop{},
		ids:       eventlog.UUIDv7Generator{},
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewRegistry()
	}

	log := eventlog.New(kv, eventlog.WithIDGenerator(c.ids))
	res := resolver.New(c.pipeline)
	return &Engine{
		kv:       kv,
		log:      log,
		resolver: res,
		advancer: advance.New(log, res,
			advance.WithClock(c.now),
			advance.WithPublisher(c.publisher),
			advance.WithMetrics(c.metrics),
		),
		intake: intake.New(log, c.pipeline,
			intake.WithClock(c.now),
			intake.WithPublisher(c.publisher),
			intake.WithMetrics(c.metrics),
			intake.WithReferenceData(c.ref),
		),
		stats:     stats.New(res, stats.WithLocation(c.loc)),
		metrics:   c.metrics,
		publisher: c.publisher,
		now:       c.now,
		loc:       c.loc,
	}
}

// Close releases the publisher and the store.
func (e *Engine) Close() error {
	if err := e.publisher.Close(); err != nil {
		slog.Warn("closing publisher", "error", err)
	}
	return e.kv.Close()
}

// Metrics returns the engine's metrics registry.
func (e *Engine) Metrics() *metrics.Registry {
	return e.metrics
}

// Pipeline returns the stage pipeline.
func (e *Engine) Pipeline() *pipeline.Pipeline {
	return e.resolver.Pipeline()
}

// History returns every event in log order.
func (e *Engine) History(ctx context.Context) []workflow.Event {
	return e.log.ReadAll(ctx)
}

// StageView is one stage's pending set after filtering.
type StageView struct {
	Stage pipeline.StageDef     `json:"-"`
	Name  workflow.Stage        `json:"stage"`
	Rows  []snapshot.PendingRow `json:"rows"`

	// Eligible counts rows before the filter was applied.
	Eligible int `json:"eligible"`
}

// Pending resolves the rows eligible at stage and applies f for display.
func (e *Engine) Pending(ctx context.Context, stage string, f resolver.Filter) (StageView, error) {
	def, err := e.Pipeline().Lookup(stage)
	if err != nil {
		return StageView{}, err
	}

	var (
		events []workflow.Event
		side   []workflow.SideItem
	)
	err = e.log.View(ctx, func(r *eventlog.Reader) error {
		events = r.Events()
		if def.SideList != "" {
			side = r.SideList(def.SideList)
		}
		return nil
	})
	if err != nil {
		slog.Warn("pending read failed, showing empty set", "stage", def.ID, "error", err)
	}

	rows := e.resolver.Pending(def, events, side)
	e.metrics.PendingRows.WithLabelValues(string(def.ID)).Set(float64(len(rows)))

	if f.Now.IsZero() {
		f.Now = e.now().In(e.loc)
	}
	return StageView{
		Stage:    def,
		Name:     def.ID,
		Rows:     f.Apply(def, rows),
		Eligible: len(rows),
	}, nil
}

// Advance applies a stage action.
func (e *Engine) Advance(ctx context.Context, req advance.Request) (advance.Result, error) {
	return e.advancer.Advance(ctx, req)
}

// Punch records a new order.
func (e *Engine) Punch(ctx context.Context, o intake.Order) (intake.Receipt, error) {
	return e.intake.Punch(ctx, o)
}

// TakeHandoff consumes the most recently punched order.
func (e *Engine) TakeHandoff(ctx context.Context) (workflow.SideItem, bool, error) {
	return e.intake.TakeHandoff(ctx)
}

// OrderView is the full picture of one order.
type OrderView struct {
	Snapshot snapshot.Snapshot `json:"snapshot"`
	Progress stats.Progress    `json:"progress"`
	Events   []workflow.Event  `json:"events"`
}

// Order returns the snapshot, progress and events of one order.
func (e *Engine) Order(ctx context.Context, id string) (OrderView, error) {
	events := e.log.ReadAll(ctx)
	s, ok := snapshot.Find(events, id, snapshot.WithStageNames(e.Pipeline().Canonical))
	if !ok {
		return OrderView{}, &NotFoundError{OrderID: id}
	}

	own := []workflow.Event{}
	for _, ev := range events {
		if ev.OrderKey() == s.OrderID {
			own = append(own, ev)
		}
	}
	return OrderView{
		Snapshot: s,
		Progress: stats.CurrentStage(e.Pipeline(), s),
		Events:   own,
	}, nil
}

// Dashboard computes the aggregate view over rng as of now.
func (e *Engine) Dashboard(ctx context.Context, rng stats.Range) stats.Dashboard {
	var (
		events []workflow.Event
		side   = make(map[string][]workflow.SideItem)
	)
	err := e.log.View(ctx, func(r *eventlog.Reader) error {
		events = r.Events()
		for _, name := range e.Pipeline().SideLists() {
			side[name] = r.SideList(name)
		}
		return nil
	})
	if err != nil {
		slog.Warn("dashboard read failed, showing empty figures", "error", err)
	}
	return e.stats.Dashboard(events, side, rng, e.now())
}

// SideList returns the current content of a side list.
func (e *Engine) SideList(ctx context.Context, name string) ([]workflow.SideItem, error) {
	if _, ok := e.Pipeline().BySideList(name); !ok {
		return nil, fmt.Errorf("unknown side list %q", name)
	}
	var items []workflow.SideItem
	err := e.log.View(ctx, func(r *eventlog.Reader) error {
		items = r.SideList(name)
		return nil
	})
	return items, err
}

// Import appends events recorded elsewhere, such as an exported legacy
// history, and refreshes masterOrders in the same transaction. Events keep
// their ids when they carry one.
func (e *Engine) Import(ctx context.Context, events ...workflow.Event) ([]workflow.Event, error) {
	var out []workflow.Event
	err := e.log.Update(ctx, func(tx *eventlog.Tx) error {
		var err error
		if out, err = tx.Append(events...); err != nil {
			return err
		}
		return tx.PutMasterOrders(snapshot.ByID(e.resolver.Snapshots(tx.Events())))
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	for _, ev := range out {
		e.metrics.EventsAppended.WithLabelValues(string(e.Pipeline().Canonical(ev.Stage)), string(ev.Status)).Inc()
	}
	slog.Info("events imported", "count", len(out))
	return out, nil
}
