package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/oilflow/internal/workflow"
)

// StageDef is the compiled definition of one pipeline stage.
type StageDef struct {
	ID      workflow.Stage
	Slug    string
	Aliases []string

	// Upstream is the stage whose accepted events make rows eligible here.
	// Empty for intake stages and for stages fed by a side list.
	Upstream workflow.Stage
	Accepted []workflow.Status

	// Terminal statuses exclude a row from this stage's pending set.
	Terminal []workflow.Status
	Outcomes []workflow.Status

	Rejective bool

	// SideList is the persisted working set this stage reads its candidates from.
	SideList string
	// Feeds is the side list that receives rows advanced with a positive outcome.
	Feeds string

	SkipFor  []workflow.OrderType
	Required []string

	// TargetDate is the payload field compared against today by the timeliness filter.
	TargetDate string
	// FilterDate is the payload field used by the date-range filter.
	// Empty means the snapshot timestamp.
	FilterDate string
}

// Accepts reports whether an upstream event with status s feeds this stage.
func (d StageDef) Accepts(s workflow.Status) bool {
	return slices.Contains(d.Accepted, s)
}

// IsTerminal reports whether an event with status s resolves a row at this stage.
func (d StageDef) IsTerminal(s workflow.Status) bool {
	return slices.Contains(d.Terminal, s)
}

// AllowsOutcome reports whether s may be chosen when advancing rows here.
func (d StageDef) AllowsOutcome(s workflow.Status) bool {
	return slices.Contains(d.Outcomes, s)
}

// Skips reports whether orders of type t bypass this stage.
func (d StageDef) Skips(t workflow.OrderType) bool {
	return slices.Contains(d.SkipFor, t)
}

// DefaultOutcome is the first positive outcome, or the first outcome.
func (d StageDef) DefaultOutcome() workflow.Status {
	for _, s := range d.Outcomes {
		if s.IsTerminalPositive() {
			return s
		}
	}
	if len(d.Outcomes) > 0 {
		return d.Outcomes[0]
	}
	return workflow.StatusCompleted
}

// Pipeline is the ordered, validated list of stages.
type Pipeline struct {
	stages []StageDef
	names  map[string]int
}

// New validates defs and builds a pipeline. Missing terminal sets default to
// the stage outcomes plus Rejected and Cancelled. Upstream names are
// normalised to stage ids.
func New(defs []StageDef) (*Pipeline, error) {
	if len(defs) == 0 {
		return nil, &CompileError{Field: "stages", Message: "at least one stage is required"}
	}

	p := &Pipeline{
		stages: make([]StageDef, 0, len(defs)),
		names:  make(map[string]int),
	}
	sideLists := make(map[string]bool)

	for i, def := range defs {
		field := fmt.Sprintf("stages[%d]", i)
		if strings.TrimSpace(string(def.ID)) == "" {
			return nil, &CompileError{Field: field + ".id", Message: "id is required"}
		}
		if def.Slug == "" {
			def.Slug = slugify(string(def.ID))
		}
		for _, name := range append([]string{string(def.ID), def.Slug}, def.Aliases...) {
			key := nameKey(name)
			if j, dup := p.names[key]; dup && j != i {
				return nil, &CompileError{
					Field:   field,
					Message: fmt.Sprintf("name %q already used by stage %q", name, p.stages[j].ID),
				}
			}
			p.names[key] = i
		}

		if def.Upstream != "" {
			j, ok := p.names[nameKey(string(def.Upstream))]
			if !ok || j >= i {
				return nil, &CompileError{
					Field:   field + ".upstream",
					Message: fmt.Sprintf("upstream %q must name an earlier stage", def.Upstream),
				}
			}
			def.Upstream = p.stages[j].ID
			if len(def.Accepted) == 0 {
				def.Accepted = []workflow.Status{workflow.StatusCompleted, workflow.StatusApproved}
			}
		}

		if len(def.Outcomes) == 0 {
			def.Outcomes = []workflow.Status{workflow.StatusCompleted}
		}
		if def.Rejective && !slices.Contains(def.Outcomes, workflow.StatusRejected) {
			return nil, &CompileError{
				Field:   field + ".outcomes",
				Message: "rejective stage must allow Rejected",
			}
		}
		if len(def.Terminal) == 0 {
			def.Terminal = slices.Clone(def.Outcomes)
			for _, s := range []workflow.Status{workflow.StatusRejected, workflow.StatusCancelled} {
				if !slices.Contains(def.Terminal, s) {
					def.Terminal = append(def.Terminal, s)
				}
			}
		}
		for _, list := range [][]workflow.Status{def.Accepted, def.Terminal, def.Outcomes} {
			for _, s := range list {
				if !s.Valid() {
					return nil, &CompileError{Field: field, Message: fmt.Sprintf("unknown status %q", s)}
				}
			}
		}
		if def.TargetDate == "" {
			def.TargetDate = "deliveryDate"
		}
		if def.SideList != "" {
			if sideLists[def.SideList] {
				return nil, &CompileError{
					Field:   field + ".side_list",
					Message: fmt.Sprintf("side list %q read by more than one stage", def.SideList),
				}
			}
			sideLists[def.SideList] = true
		}

		p.stages = append(p.stages, def)
	}

	for i, def := range p.stages {
		if def.Feeds != "" && !sideLists[def.Feeds] {
			return nil, &CompileError{
				Field:   fmt.Sprintf("stages[%d].feeds", i),
				Message: fmt.Sprintf("side list %q is not read by any stage", def.Feeds),
			}
		}
	}

	return p, nil
}

// Stages returns the stage definitions in pipeline order.
func (p *Pipeline) Stages() []StageDef {
	return slices.Clone(p.stages)
}

// Lookup resolves a stage by id, slug or alias, ignoring case.
func (p *Pipeline) Lookup(name string) (StageDef, error) {
	i, ok := p.names[nameKey(name)]
	if !ok {
		return StageDef{}, fmt.Errorf("%w: %q", workflow.ErrUnknownStage, name)
	}
	return p.stages[i], nil
}

// Canonical maps a stage name found in history onto its stage id.
// Unknown names are returned unchanged.
func (p *Pipeline) Canonical(s workflow.Stage) workflow.Stage {
	if i, ok := p.names[nameKey(string(s))]; ok {
		return p.stages[i].ID
	}
	return s
}

// Position returns the pipeline index of s, or -1.
func (p *Pipeline) Position(s workflow.Stage) int {
	if i, ok := p.names[nameKey(string(s))]; ok {
		return i
	}
	return -1
}

// BySideList returns the stage that reads the named side list.
func (p *Pipeline) BySideList(name string) (StageDef, bool) {
	for _, def := range p.stages {
		if def.SideList != "" && def.SideList == name {
			return def, true
		}
	}
	return StageDef{}, false
}

// SideLists returns every side list name in pipeline order.
func (p *Pipeline) SideLists() []string {
	var names []string
	for _, def := range p.stages {
		if def.SideList != "" {
			names = append(names, def.SideList)
		}
	}
	return names
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
