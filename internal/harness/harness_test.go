package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/workflow"
)

const scenarioDir = "../../testdata/scenarios"

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(scenarioDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_DispatchRemovesEligibility(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "dispatch_removes_eligibility.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	assert.Equal(t, []string{"DO-001/X"}, result.Pending[workflow.StageActualDispatch])
	assert.NotContains(t, result.Pending, workflow.StageDispatchPlanning)
	require.Len(t, result.History, 3)
	assert.Equal(t, workflow.Stage("Dispatch Planning"), result.History[2].Stage)
}

const minimal = `
name: minimal
description: one punch
now: "2026-03-04T09:00:00Z"
steps:
  - punch:
      customerName: Acme Oils
      deliveryDate: "2026-03-10"
      products:
        - id: MUS-15L
          orderQty: 10
assertions:
  - type: pending_count
    stage: Approval Of Order
    count: 1
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, KindPunch, s.Steps[0].Kind())

	start, err := s.StartTime()
	require.NoError(t, err)
	assert.Equal(t, 4, start.Day())
}

func TestParseScenario_DefaultNow(t *testing.T) {
	s, err := ParseScenario([]byte(strings.Replace(minimal, `now: "2026-03-04T09:00:00Z"`, "", 1)))
	require.NoError(t, err)

	start, err := s.StartTime()
	require.NoError(t, err)
	assert.Equal(t, DefaultNow, start.Format("2006-01-02T15:04:05Z07:00"))
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", minimal + "extra: true\n", "failed to parse YAML"},
		{"missing name", strings.Replace(minimal, "name: minimal", "", 1), "name is required"},
		{"missing description", strings.Replace(minimal, "description: one punch", "", 1), "description is required"},
		{"bad now", strings.Replace(minimal, "2026-03-04T09:00:00Z", "tomorrow", 1), "now:"},
		{"bad tick", strings.Replace(minimal, "steps:\n", "steps:\n  - tick: soon\n", 1), "tick"},
		{"empty step", strings.Replace(minimal, "steps:\n", "steps:\n  - expect: NOT_PENDING\n", 1), "exactly one of"},
		{"advance without stage", strings.Replace(minimal, "steps:\n", "steps:\n  - advance:\n      rows: [\"DO-001A/MUS-15L\"]\n", 1), "stage is required"},
		{"pending_count without count", strings.Replace(minimal, "    count: 1\n", "", 1), "stage and count are required"},
		{"negative count", strings.Replace(minimal, "count: 1", "count: -1", 1), "non-negative"},
		{"unknown assertion", strings.Replace(minimal, "type: pending_count", "type: pending_total", 1), "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestStepKind(t *testing.T) {
	assert.Equal(t, KindTick, Step{Tick: "1h"}.Kind())
	assert.Equal(t, KindAdvance, Step{Advance: &AdvanceStep{Stage: "x"}}.Kind())
	assert.Equal(t, KindAppend, Step{Append: []map[string]any{}}.Kind())
	assert.Equal(t, "", Step{}.Kind())
	assert.Equal(t, "", Step{Tick: "1h", Punch: map[string]any{}}.Kind())
}

func TestRun_UnexpectedOutcomeFails(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)
	s.Steps[0].Expect = string(workflow.ErrCodeNotPending)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected outcome "NOT_PENDING", got "success"`)
}

func TestRun_ValidationFailureIsTraced(t *testing.T) {
	s, err := ParseScenario([]byte(strings.Replace(minimal, "Acme Oils", "Nobody Ltd", 1)))
	require.NoError(t, err)
	s.Steps[0].Expect = string(workflow.ErrCodeUnknownReference)
	s.Assertions[0].Count = new(int)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, string(workflow.ErrCodeUnknownReference), result.Trace[0].Error)
	assert.Empty(t, result.Trace[0].Events)
	assert.Empty(t, result.History)
}

func TestRun_TickMovesClock(t *testing.T) {
	s, err := ParseScenario([]byte(strings.Replace(minimal, "steps:\n", "steps:\n  - tick: 26h\n", 1)))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)
	require.Len(t, result.History, 1)

	at, ok := result.History[0].Time()
	require.True(t, ok)
	assert.Equal(t, 5, at.Day())
	assert.Equal(t, 11, at.Hour())
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)
	s.Assertions = nil

	result, err := Run(s)
	require.NoError(t, err)

	two, zero := 2, 0
	failures := EvaluateAssertions(result, []Assertion{
		{Type: AssertPendingCount, Stage: "approval", Count: &two},
		{Type: AssertPendingContains, Stage: "Dispatch Planning", Rows: []string{"DO-001A/MUS-15L"}},
		{Type: AssertPendingExcludes, Stage: "Approval Of Order", Rows: []string{"DO-001A/MUS-15L"}},
		{Type: AssertEventCount, Stage: "Order Punch", Count: &zero},
		{Type: AssertSnapshot, Order: "DO-001A", Expect: map[string]any{"customerName": "Bharat Traders"}},
		{Type: AssertSnapshot, Order: "DO-404", Expect: map[string]any{"status": "Completed"}},
		{Type: AssertPendingCount, Stage: "Teleport", Count: &zero},
	}, pipeline.Default())

	require.Len(t, failures, 7)
	assert.Contains(t, failures[0], "2 rows pending at Approval Of Order")
	assert.Contains(t, failures[1], "DO-001A/MUS-15L pending at Dispatch Planning")
	assert.Contains(t, failures[2], "not pending")
	assert.Contains(t, failures[3], "0 events")
	assert.Contains(t, failures[4], `DO-001A.customerName = "Bharat Traders"`)
	assert.Contains(t, failures[5], "not found")
	assert.Contains(t, failures[6], "Teleport")
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)

	one := 1
	failures := EvaluateAssertions(result, []Assertion{
		{Type: AssertPendingContains, Stage: "Approval", Rows: []string{"DO-001A/MUS-15L"}},
		{Type: AssertPendingExcludes, Stage: "Dispatch Planning", Rows: []string{"DO-001A/MUS-15L"}},
		{Type: AssertEventCount, Status: "Completed", Count: &one},
		{Type: AssertSnapshot, Order: "DO-001A", Expect: map[string]any{"soNumber": "SO-001", "events": 1}},
	}, pipeline.Default())
	assert.Empty(t, failures)
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertPendingCount,
		Expected: "1 rows",
		Actual:   "0 rows",
		Trace: []TraceEvent{
			{Step: 0, Kind: KindPunch, Stage: workflow.StageOrderPunch, Status: workflow.StatusCompleted, Events: []string{"ev-001"}},
			{Step: 1, Kind: KindAdvance, Error: "NOT_PENDING"},
		},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: pending_count")
	assert.Contains(t, msg, "[0] punch Order Punch Completed [ev-001]")
	assert.Contains(t, msg, "error=NOT_PENDING")
}
