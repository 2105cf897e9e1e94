package stats

import (
	"github.com/roach88/oilflow/internal/pipeline"
	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/workflow"
)

// Progress is where an order stands in the pipeline.
type Progress struct {
	// Stage is the first stage the order has not passed. Empty when Done.
	Stage  workflow.Stage  `json:"stage,omitempty"`
	Status workflow.Status `json:"status,omitempty"`
	Done   bool            `json:"done"`
}

// Stalled reports whether the order stopped on a negative outcome.
func (p Progress) Stalled() bool {
	return p.Status.IsTerminalNegative()
}

// CurrentStage returns the first stage after the furthest one the order
// has passed. A stage is passed when its latest status is terminal-positive,
// or Damaged, which routes the order on to adjustment. Stages that skip the
// order's type are stepped over, as are stages whose upstream outcome they
// do not accept.
func CurrentStage(p *pipeline.Pipeline, s snapshot.Snapshot) Progress {
	var cur *Progress
	for _, def := range p.Stages() {
		if def.Skips(s.OrderType) {
			continue
		}
		if def.Upstream != "" {
			up, ok := s.StageStatus[def.Upstream]
			if ok && passed(up) && !def.Accepts(up) {
				continue
			}
		}
		st := s.StageStatus[def.ID]
		if passed(st) {
			cur = nil
			continue
		}
		if cur == nil {
			cur = &Progress{Stage: def.ID, Status: st}
		}
	}
	if cur == nil {
		return Progress{Done: true, Status: s.Status}
	}
	return *cur
}

func passed(s workflow.Status) bool {
	return s.IsTerminalPositive() || s == workflow.StatusDamaged
}
