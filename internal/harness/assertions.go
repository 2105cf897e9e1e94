package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/workflow"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nSteps:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s %v", ev.Step, ev.Kind, ev.Stage, ev.Status, ev.Events)
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%s", ev.Error)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns one
// message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, p *pipeline.Pipeline) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a, p); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, p *pipeline.Pipeline) error {
	switch a.Type {
	case AssertPendingCount:
		return assertPendingCount(result, a, p)
	case AssertPendingContains:
		return assertPendingRows(result, a, p, true)
	case AssertPendingExcludes:
		return assertPendingRows(result, a, p, false)
	case AssertEventCount:
		return assertEventCount(result, a, p)
	case AssertSnapshot:
		return assertSnapshot(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func pendingAt(result *Result, stage string, p *pipeline.Pipeline) (workflow.Stage, []string, error) {
	def, err := p.Lookup(stage)
	if err != nil {
		return "", nil, err
	}
	return def.ID, result.Pending[def.ID], nil
}

func assertPendingCount(result *Result, a Assertion, p *pipeline.Pipeline) error {
	id, rows, err := pendingAt(result, a.Stage, p)
	if err != nil {
		return err
	}
	if len(rows) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertPendingCount,
		Expected: fmt.Sprintf("%d rows pending at %s", *a.Count, id),
		Actual:   fmt.Sprintf("%d rows %v", len(rows), rows),
		Trace:    result.Trace,
	}
}

// assertPendingRows checks that every row is present (want true) or
// absent (want false) at the stage.
func assertPendingRows(result *Result, a Assertion, p *pipeline.Pipeline, want bool) error {
	id, rows, err := pendingAt(result, a.Stage, p)
	if err != nil {
		return err
	}
	for _, r := range a.Rows {
		key := workflow.ParseRowKey(r).String()
		if slices.Contains(rows, key) == want {
			continue
		}
		verb := "pending"
		if !want {
			verb = "not pending"
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s %s at %s", key, verb, id),
			Actual:   fmt.Sprintf("pending rows %v", rows),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertEventCount(result *Result, a Assertion, p *pipeline.Pipeline) error {
	var stage workflow.Stage
	if a.Stage != "" {
		def, err := p.Lookup(a.Stage)
		if err != nil {
			return err
		}
		stage = def.ID
	}

	n := 0
	for _, e := range result.History {
		if stage != "" && p.Canonical(e.Stage) != stage {
			continue
		}
		if a.Status != "" && string(e.Status) != a.Status {
			continue
		}
		n++
	}
	if n == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d events (stage=%q status=%q)", *a.Count, stage, a.Status),
		Actual:   fmt.Sprintf("%d events", n),
		Trace:    result.Trace,
	}
}

// assertSnapshot compares Expect against the snapshot's JSON form, field by
// field. Values are compared after a JSON round trip so YAML ints match
// JSON numbers.
func assertSnapshot(result *Result, a Assertion) error {
	s, ok := result.Snapshots[a.Order]
	if !ok {
		return &AssertionError{
			Type:     AssertSnapshot,
			Expected: fmt.Sprintf("order %s in history", a.Order),
			Actual:   "not found",
			Trace:    result.Trace,
		}
	}

	var actual map[string]any
	if err := viaJSON(s, &actual); err != nil {
		return err
	}
	var expect map[string]any
	if err := viaJSON(a.Expect, &expect); err != nil {
		return err
	}

	for _, field := range sortedKeys(expect) {
		if reflect.DeepEqual(expect[field], actual[field]) {
			continue
		}
		want, _ := json.Marshal(expect[field])
		got, _ := json.Marshal(actual[field])
		return &AssertionError{
			Type:     AssertSnapshot,
			Expected: fmt.Sprintf("%s.%s = %s", a.Order, field, want),
			Actual:   string(got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
