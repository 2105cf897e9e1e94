package advance

import (
	"sync"

	"github.com/roach88/oilflow/internal/workflow"
)

// guard tracks stages with an advancement in flight.
type guard struct {
	mu   sync.Mutex
	busy map[workflow.Stage]bool
}

func newGuard() *guard {
	return &guard{busy: make(map[workflow.Stage]bool)}
}

// acquire marks stage busy. Returns false if it already was.
func (g *guard) acquire(stage workflow.Stage) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy[stage] {
		return false
	}
	g.busy[stage] = true
	return true
}

func (g *guard) release(stage workflow.Stage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, stage)
}

// inFlight reports whether stage is currently held.
func (g *guard) inFlight(stage workflow.Stage) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy[stage]
}
