// Package pnt is the PNT worker loop: a single-point-positioning job
// queue sitting directly on the decoder's observation fan-out (spec
// §2 data flow: "Observation Store → (PNT + Baseline Solver)"), one
// per-source atomic.Pointer[Solution] published after every fresh
// epoch. Unlike pkg/solver's dispatcher, this package never polls the
// observation store itself: pkg/engine enqueues a job the moment an
// epoch lands, since a single-point fix only ever needs that one
// source's own epoch.
package pnt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/sirupsen/logrus"
)

// jobQueueDepth bounds the pending-job backlog; a slow PNT kernel
// should shed load rather than unbounded-buffer it, the same stance
// pkg/solver.Solver.jobs takes on its own channel.
const jobQueueDepth = 256

// Solution is a source's latest single-point fix.
type Solution struct {
	Status *gnssgo.RTKStatus
	Time   time.Time
	Pos    gnssgo.Vec3
}

// Func is the external, black-box PNT numeric kernel contract (spec
// §1/§9: "isolate behind stable pure-function interfaces" — the same
// treatment pkg/solver.StepFunc gives the RTK Kalman filter). Callers
// inject a real pntpos implementation; this package only orchestrates
// calling it and publishing its result.
type Func func(ctx context.Context, epoch *obsstore.Epoch, prior *Solution) (*Solution, error)

type job struct {
	sourceID int
	epoch    *obsstore.Epoch
}

// Loop is the PNT worker loop named in spec §5's fixed thread roster:
// one goroutine draining one job queue, publishing each source's
// result onto its own atomic pointer so concurrent readers (the
// console's `observ` command, the Monitor) never see a torn solution.
type Loop struct {
	store  *obsstore.Store
	fn     Func
	logger logrus.FieldLogger

	jobs chan job

	mu        sync.RWMutex
	solutions map[int]*atomic.Pointer[Solution]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoop creates a PNT Loop reading observation epochs as they are
// enqueued and invoking fn to fix each one.
func NewLoop(store *obsstore.Store, fn Func, logger logrus.FieldLogger) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		store:     store,
		fn:        fn,
		logger:    logger,
		jobs:      make(chan job, jobQueueDepth),
		solutions: make(map[int]*atomic.Pointer[Solution]),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker loop.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop cancels the loop and waits for it to drain.
func (l *Loop) Stop() {
	l.cancel()
	l.wg.Wait()
}

// Enqueue submits sourceID's fresh epoch for a PNT fix (spec.md:80,
// "enqueue PNT job"). It never blocks the caller beyond the queue's
// depth: a full queue drops the job rather than stall the decoder
// callback that's submitting it, the observation store itself having
// already recorded the epoch regardless.
func (l *Loop) Enqueue(sourceID int, epoch *obsstore.Epoch) {
	select {
	case l.jobs <- job{sourceID: sourceID, epoch: epoch}:
	default:
		l.logger.WithField("source", sourceID).Warn("pnt: job queue full, dropping epoch")
	}
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case j := <-l.jobs:
			l.runJob(j)
		}
	}
}

func (l *Loop) runJob(j job) {
	prior, _ := l.Solution(j.sourceID)
	sol, err := l.fn(l.ctx, j.epoch, prior)
	if err != nil {
		l.logger.WithField("source", j.sourceID).WithError(err).Warn("pnt: fix failed")
		sol = &Solution{Status: &gnssgo.RTKStatus{Status: gnssgo.RTK_STATUS_NONE, Time: j.epoch.Time}, Time: j.epoch.Time}
	}
	if sol.Time.IsZero() {
		sol.Time = j.epoch.Time
	}
	l.ptr(j.sourceID).Store(sol)
}

// Solution returns sourceID's latest published fix, if any.
func (l *Loop) Solution(sourceID int) (*Solution, bool) {
	l.mu.RLock()
	p, ok := l.solutions[sourceID]
	l.mu.RUnlock()
	if !ok {
		return nil, false
	}
	sol := p.Load()
	return sol, sol != nil
}

func (l *Loop) ptr(sourceID int) *atomic.Pointer[Solution] {
	l.mu.RLock()
	p, ok := l.solutions[sourceID]
	l.mu.RUnlock()
	if ok {
		return p
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.solutions[sourceID]; ok {
		return p
	}
	p = &atomic.Pointer[Solution]{}
	l.solutions[sourceID] = p
	return p
}
