package harness

import (
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/workflow"
)

// TraceEvent records what one step did.
type TraceEvent struct {
	Step   int             `json:"step"`
	Kind   string          `json:"kind"`
	Stage  workflow.Stage  `json:"stage,omitempty"`
	Status workflow.Status `json:"status,omitempty"`

	// Events are the ids of the events the step appended.
	Events []string `json:"events,omitempty"`

	// Error is the validation code or "BUSY" the step failed with.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Pending maps each stage to its eligible row keys after the last step.
	Pending map[workflow.Stage][]string `json:"pending"`

	History   []workflow.Event             `json:"-"`
	Snapshots map[string]snapshot.Snapshot `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Pending:   make(map[workflow.Stage][]string),
		Snapshots: make(map[string]snapshot.Snapshot),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
