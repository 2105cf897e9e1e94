package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/oilflow/internal/advance"
	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/intake"
	"github.com/roach88/oilflow/internal/resolver"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/store"
	"github.com/roach88/oilflow/internal/testutil"
	"github.com/roach88/oilflow/internal/workflow"
)

// expectBusy is the Expect value for a step refused with workflow.ErrBusy.
const expectBusy = "BUSY"

// Harness executes one scenario against a fresh engine.
type Harness struct {
	engine *engine.Engine
	clock  *testutil.Clock
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store with a settable clock
// starting at the scenario's Now and event ids ev-001, ev-002, ...
// Unexpected step outcomes and failed assertions are recorded in the
// result; the returned error is reserved for scenarios that cannot run.
func Run(scenario *Scenario, opts ...engine.Option) (*Result, error) {
	start, err := scenario.StartTime()
	if err != nil {
		return nil, err
	}
	clock := testutil.NewClock(start)
	opts = append([]engine.Option{
		engine.WithClock(clock.Now),
		engine.WithIDGenerator(testutil.NewSequentialIDs("ev")),
		engine.WithLocation(start.Location()),
	}, opts...)

	h := &Harness{
		engine: engine.New(store.NewMemory(), opts...),
		clock:  clock,
	}
	defer h.engine.Close()

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Trace = append(result.Trace, ev)
		if ev.Error != step.Expect {
			result.AddError(fmt.Sprintf("step %d (%s): expected outcome %q, got %q", i, ev.Kind, outcome(step.Expect), outcome(ev.Error)))
		}
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h.engine.Pipeline()) {
		result.AddError(msg)
	}
	return result, nil
}

func outcome(code string) string {
	if code == "" {
		return "success"
	}
	return code
}

// execute runs one step. Validation and busy failures are returned in the
// trace event; any other failure aborts the run.
func (h *Harness) execute(ctx context.Context, i int, step Step) (TraceEvent, error) {
	ev := TraceEvent{Step: i, Kind: step.Kind()}

	var err error
	switch ev.Kind {
	case KindTick:
		d, _ := time.ParseDuration(step.Tick)
		h.clock.Advance(d)
		return ev, nil

	case KindAppend:
		var events []workflow.Event
		if err := viaJSON(step.Append, &events); err != nil {
			return ev, fmt.Errorf("append: %w", err)
		}
		var out []workflow.Event
		out, err = h.engine.Import(ctx, events...)
		ev.Events = ids(out)

	case KindPunch:
		var o intake.Order
		if err := viaJSON(step.Punch, &o); err != nil {
			return ev, fmt.Errorf("punch: %w", err)
		}
		var rec intake.Receipt
		rec, err = h.engine.Punch(ctx, o)
		if err == nil {
			ev.Stage, ev.Status = rec.Event.Stage, rec.Event.Status
			ev.Events = []string{rec.Event.ID}
		}

	case KindAdvance:
		req := advance.Request{
			Stage:     step.Advance.Stage,
			Status:    workflow.Status(step.Advance.Status),
			Checklist: step.Advance.Checklist,
			Payload:   workflow.Payload(step.Advance.Payload),
		}
		for _, r := range step.Advance.Rows {
			req.Rows = append(req.Rows, workflow.ParseRowKey(r))
		}
		var res advance.Result
		res, err = h.engine.Advance(ctx, req)
		if err == nil {
			ev.Stage, ev.Status = res.Stage, res.Status
			ev.Events = ids(res.Events)
		}
	}

	switch {
	case err == nil:
	case workflow.IsValidationError(err):
		ev.Error = string(workflow.ValidationCodeOf(err))
	case errors.Is(err, workflow.ErrBusy):
		ev.Error = expectBusy
	default:
		return ev, err
	}
	return ev, nil
}

// collect fills the end-of-run state: history, snapshots and every stage's
// pending set.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	result.History = h.engine.History(ctx)
	result.Snapshots = snapshot.ByID(snapshot.Build(result.History, snapshot.WithStageNames(h.engine.Pipeline().Canonical)))

	for _, def := range h.engine.Pipeline().Stages() {
		view, err := h.engine.Pending(ctx, string(def.ID), resolver.Filter{})
		if err != nil {
			return fmt.Errorf("pending %s: %w", def.ID, err)
		}
		if len(view.Rows) == 0 {
			continue
		}
		keys := make([]string, len(view.Rows))
		for i, row := range view.Rows {
			keys[i] = row.Key().String()
		}
		result.Pending[def.ID] = keys
	}
	return nil
}

func ids(events []workflow.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

// viaJSON converts a loosely typed YAML value into dst through its JSON form.
func viaJSON(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
