package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/oilflow/internal/canonical"
)

// TraceSnapshot is the golden form of a run: the step trace and the final
// pending sets. It carries no wall-clock values beyond what the scenario
// fixes.
type TraceSnapshot struct {
	Scenario string              `json:"scenario"`
	Trace    []TraceEvent        `json:"trace"`
	Pending  map[string][]string `json:"pending"`
}

// Snapshot builds the golden form of result.
func Snapshot(name string, result *Result) TraceSnapshot {
	pending := make(map[string][]string, len(result.Pending))
	for stage, rows := range result.Pending {
		pending[string(stage)] = rows
	}
	return TraceSnapshot{Scenario: name, Trace: result.Trace, Pending: pending}
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := canonical.FromStruct(Snapshot(name, result))
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
