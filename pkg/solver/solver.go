// Package solver is the Baseline RTK Solver Pool: it dispatches
// epoch-synchronized (rover, base) observation pairs to RTK workers,
// owns per-baseline filter state, caps baselines per worker, and
// dedups symmetric baselines.
package solver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/sirupsen/logrus"
)

// MaxBaselinesPerSolver is the share cap per Solver worker (spec §4.4,
// N=64); exceeding it spawns another Solver in the Pool.
const MaxBaselinesPerSolver = 64

// solverWorkers is the number of solve-job worker goroutines a Solver
// runs, mirroring rtcm.WorkerPool's fixed-size pool of goroutines
// draining a single shared job channel.
const solverWorkers = 4

// Mode selects the baseline time-synchronization tolerance (spec §4.4
// step 5).
type Mode int

const (
	ModeStrict Mode = iota // age = 10ms
	ModeLenient             // age = 15s
	ModeWait                // age = 10ms, plus a per-baseline wait-counter fallback
)

const (
	strictAge        = 10 * time.Millisecond
	lenientAge       = 15 * time.Second
	sameEpochWindow  = 10 * time.Millisecond
	defaultWaitLimit = 200 * time.Millisecond
)

// Solution is a baseline's latest RTK result, wrapping the
// quality/position fields of gnssgo.RTKStatus with the ambiguity
// residuals the triangulation and VRS engine need.
type Solution struct {
	Status    *gnssgo.RTKStatus
	Time      time.Time
	RefSat    int
	Residuals map[int]map[int]float64 // sat -> freq -> signed DD ambiguity residual (cycles)
	ENU       [3]float64              // rover-minus-base baseline vector in local ENU (meters)
}

// StepFunc is the external, black-box RTK numeric kernel contract
// (spec §7.9 "isolate behind stable pure-function interfaces"):
// callers inject a real Kalman-filter/LAMBDA implementation; this
// package only orchestrates calling it.
type StepFunc func(ctx context.Context, base, rover *obsstore.Epoch, prior *Solution) (*Solution, error)

// Baseline is keyed base_id -> rover_id.
type Baseline struct {
	ID      string
	BaseID  int
	RoverID int
	Mode    Mode

	lastSolvedEpoch time.Time
	waitCounter     int
	waitLimit       time.Duration

	consecFailures int32 // consecutive RTK step failures for the current epoch streak

	on       int32 // in-flight solve count
	solution atomic.Pointer[Solution]
}

// BaselineID is the canonical "base→rover" handle.
func BaselineID(base, rover int) string { return fmt.Sprintf("%d→%d", base, rover) }

// Solution returns the baseline's latest published solution, if any.
func (b *Baseline) Solution() *Solution { return b.solution.Load() }

// On reports the baseline's current in-flight solve count.
func (b *Baseline) On() int32 { return atomic.LoadInt32(&b.on) }

type job struct {
	baseline   *Baseline
	base, rov  *obsstore.Epoch
	epochTime  time.Time
}

// Solver owns up to MaxBaselinesPerSolver baselines and runs a
// dispatcher goroutine that forms synchronized (rover, base) pairs
// alongside a fixed-size pool of worker goroutines draining the
// resulting solve queue — grounded on rtcm.WorkerPool's
// job-channel/worker-goroutine-pool shape (NewWorkerPool/Start/Stop),
// generalized so the pool's single producer is a dispatcher that
// computes its own jobs instead of an external Submit caller, and its
// consumers publish each result onto the owning Baseline's atomic
// pointer instead of a shared results channel, since results are
// per-baseline rather than a single interleaved stream.
type Solver struct {
	store  *obsstore.Store
	step   StepFunc
	logger logrus.FieldLogger

	mu        sync.RWMutex
	baselines map[string]*Baseline

	deleteQueue chan string
	jobs        chan job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tick time.Duration
}

// NewSolver creates a Solver reading observations from store and
// invoking step to advance each baseline's filter.
func NewSolver(store *obsstore.Store, step StepFunc, logger logrus.FieldLogger) *Solver {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Solver{
		store:       store,
		step:        step,
		logger:      logger,
		baselines:   make(map[string]*Baseline),
		deleteQueue: make(chan string, MaxBaselinesPerSolver),
		jobs:        make(chan job, MaxBaselinesPerSolver*4),
		ctx:         ctx,
		cancel:      cancel,
		tick:        20 * time.Millisecond,
	}
	return s
}

// Start launches the dispatcher goroutine and the worker pool.
func (s *Solver) Start() {
	s.wg.Add(1)
	go s.dispatch()

	s.wg.Add(solverWorkers)
	for i := 0; i < solverWorkers; i++ {
		go s.work()
	}
}

// Stop cancels both loops and waits for them to exit.
func (s *Solver) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Len returns the number of baselines currently owned by this solver.
func (s *Solver) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.baselines)
}

// AddBaseline registers base→rover, reusing the existing rover→base
// baseline if present (spec §4.4 symmetric mode: reusing the reverse
// is a no-op at the filter level, but the triangulation's edge
// bookkeeping still changes, so callers must still record the edge
// themselves). Returns false if the solver is already at capacity.
func (s *Solver) AddBaseline(baseID, roverID int, mode Mode) (*Baseline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rev, ok := s.baselines[BaselineID(roverID, baseID)]; ok {
		return rev, true
	}
	if existing, ok := s.baselines[BaselineID(baseID, roverID)]; ok {
		return existing, true
	}
	if len(s.baselines) >= MaxBaselinesPerSolver {
		return nil, false
	}

	b := &Baseline{
		ID:        BaselineID(baseID, roverID),
		BaseID:    baseID,
		RoverID:   roverID,
		Mode:      mode,
		waitLimit: defaultWaitLimit,
	}
	s.baselines[b.ID] = b
	return b, true
}

// DelBaseline moves a baseline to the deletion queue; it is actually
// removed once its in-flight counter reaches zero (spec §4.4).
func (s *Solver) DelBaseline(id string) {
	select {
	case s.deleteQueue <- id:
	case <-s.ctx.Done():
	}
}

// Baseline returns the baseline registered under id, if any.
func (s *Solver) Baseline(id string) (*Baseline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[id]
	return b, ok
}
