package solver

import (
	"sync"

	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/sirupsen/logrus"
)

// Pool owns however many Solvers are needed to hold every active
// baseline within MaxBaselinesPerSolver each, spawning a new Solver
// once the current ones are full (spec §4.4: "share cap; exceeded →
// spawn another solver").
type Pool struct {
	store  *obsstore.Store
	step   StepFunc
	logger logrus.FieldLogger

	mu      sync.Mutex
	solvers []*Solver
	byID    map[string]*Solver
}

// NewPool creates an empty solver Pool.
func NewPool(store *obsstore.Store, step StepFunc, logger logrus.FieldLogger) *Pool {
	return &Pool{
		store:  store,
		step:   step,
		logger: logger,
		byID:   make(map[string]*Solver),
	}
}

// AddBaseline places base→rover onto an existing Solver with spare
// capacity, or spawns a new one.
func (p *Pool) AddBaseline(baseID, roverID int, mode Mode) *Baseline {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := BaselineID(baseID, roverID)
	if rev, ok := p.byID[BaselineID(roverID, baseID)]; ok {
		b, _ := rev.Baseline(BaselineID(roverID, baseID))
		return b
	}

	for _, s := range p.solvers {
		if b, ok := s.AddBaseline(baseID, roverID, mode); ok {
			p.byID[id] = s
			return b
		}
	}

	s := NewSolver(p.store, p.step, p.logger)
	s.Start()
	p.solvers = append(p.solvers, s)
	b, _ := s.AddBaseline(baseID, roverID, mode)
	p.byID[id] = s
	return b
}

// DelBaseline forwards deletion to whichever Solver owns id.
func (p *Pool) DelBaseline(id string) {
	p.mu.Lock()
	s, ok := p.byID[id]
	if ok {
		delete(p.byID, id)
	}
	p.mu.Unlock()
	if ok {
		s.DelBaseline(id)
	}
}

// Baseline looks up id across every Solver in the pool.
func (p *Pool) Baseline(id string) (*Baseline, bool) {
	p.mu.Lock()
	s, ok := p.byID[id]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	return s.Baseline(id)
}

// Len returns the total number of baselines across all solvers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

// Stop shuts down every Solver in the pool.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.solvers {
		s.Stop()
	}
}
