package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the wall clock at the start of the run, RFC 3339.
	// Defaults to DefaultNow.
	Now string `yaml:"now,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultNow is the starting clock of scenarios that do not set one.
const DefaultNow = "2026-01-05T09:00:00Z"

// Step is one action. Exactly one of Append, Punch, Advance or Tick is set.
//
// Append and Punch hold loosely typed YAML maps; they are converted through
// their JSON form so field names match the stored history.
type Step struct {
	Append  []map[string]any `yaml:"append,omitempty"`
	Punch   map[string]any   `yaml:"punch,omitempty"`
	Advance *AdvanceStep     `yaml:"advance,omitempty"`

	// Tick moves the clock forward by a Go duration such as "90m".
	Tick string `yaml:"tick,omitempty"`

	// Expect names the validation code the step must fail with, or "BUSY".
	// Empty means the step must succeed.
	Expect string `yaml:"expect,omitempty"`
}

// AdvanceStep is an advancement request. Rows use the "order/product" form.
type AdvanceStep struct {
	Stage     string            `yaml:"stage"`
	Rows      []string          `yaml:"rows"`
	Status    string            `yaml:"status,omitempty"`
	Checklist map[string]string `yaml:"checklist,omitempty"`
	Payload   map[string]any    `yaml:"payload,omitempty"`
}

// Step kinds as recorded in the trace.
const (
	KindAppend  = "append"
	KindPunch   = "punch"
	KindAdvance = "advance"
	KindTick    = "tick"
)

// Kind returns which action the step performs, or "" when none or several
// are set.
func (s Step) Kind() string {
	var kinds []string
	if s.Append != nil {
		kinds = append(kinds, KindAppend)
	}
	if s.Punch != nil {
		kinds = append(kinds, KindPunch)
	}
	if s.Advance != nil {
		kinds = append(kinds, KindAdvance)
	}
	if s.Tick != "" {
		kinds = append(kinds, KindTick)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion checks the state after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Stage is a stage id or alias (pending_count, pending_contains,
	// pending_excludes, and optionally event_count).
	Stage string `yaml:"stage,omitempty"`

	// Rows are row keys in "order/product" form (pending_contains,
	// pending_excludes).
	Rows []string `yaml:"rows,omitempty"`

	// Status narrows event_count.
	Status string `yaml:"status,omitempty"`

	// Count is the expected number (pending_count, event_count).
	Count *int `yaml:"count,omitempty"`

	// Order and Expect check a snapshot: every field in Expect must equal
	// the snapshot's JSON field of the same name.
	Order  string         `yaml:"order,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertPendingCount    = "pending_count"
	AssertPendingContains = "pending_contains"
	AssertPendingExcludes = "pending_excludes"
	AssertEventCount      = "event_count"
	AssertSnapshot        = "snapshot"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// StartTime parses Now, or DefaultNow when unset.
func (s *Scenario) StartTime() (time.Time, error) {
	now := s.Now
	if now == "" {
		now = DefaultNow
	}
	t, err := time.Parse(time.RFC3339, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("now: %w", err)
	}
	return t, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.StartTime(); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Kind() {
		case "":
			return fmt.Errorf("steps[%d]: exactly one of append, punch, advance or tick is required", i)
		case KindAdvance:
			if step.Advance.Stage == "" {
				return fmt.Errorf("steps[%d].advance: stage is required", i)
			}
		case KindTick:
			if _, err := time.ParseDuration(step.Tick); err != nil {
				return fmt.Errorf("steps[%d].tick: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertPendingCount:
		if a.Stage == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: stage and count are required for pending_count", index)
		}
	case AssertPendingContains, AssertPendingExcludes:
		if a.Stage == "" || len(a.Rows) == 0 {
			return fmt.Errorf("assertions[%d]: stage and rows are required for %s", index, a.Type)
		}
	case AssertEventCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for event_count", index)
		}
	case AssertSnapshot:
		if a.Order == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: order and expect are required for snapshot", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count != nil && *a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
