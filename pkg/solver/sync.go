package solver

import (
	"sync/atomic"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
)

// dispatch implements the seven-step baseline time-synchronization
// algorithm from spec §4.4, one sweep per tick.
func (s *Solver) dispatch() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.drainDeletions()
			return
		case id := <-s.deleteQueue:
			s.tryDelete(id)
		case <-ticker.C:
			s.sweep()
			s.drainPendingDeletions()
		}
	}
}

func (s *Solver) sweep() {
	s.mu.RLock()
	baselines := make([]*Baseline, 0, len(s.baselines))
	for _, b := range s.baselines {
		baselines = append(baselines, b)
	}
	s.mu.RUnlock()

	for _, b := range baselines {
		s.trySync(b)
	}
}

// trySync runs steps 1-7 of the synchronization algorithm for one
// baseline and, if a candidate epoch is accepted, enqueues a solve job.
func (s *Solver) trySync(b *Baseline) {
	baseSlot := s.store.Slot(b.BaseID)
	roverSlot := s.store.Slot(b.RoverID)

	baseEpoch := baseSlot.Epoch()
	roverEpoch := roverSlot.Epoch()

	// Step 2: if neither endpoint has data, skip.
	if baseEpoch == nil && roverEpoch == nil {
		return
	}

	var tRover, tBase time.Time
	if roverEpoch != nil {
		tRover = roverEpoch.Time
	}
	if baseEpoch != nil {
		tBase = baseEpoch.Time
	}

	// Step 3: candidate epoch is the later of the two.
	tCur := tRover
	if tBase.After(tCur) {
		tCur = tBase
	}

	// Step 4: already processed.
	if !b.lastSolvedEpoch.IsZero() && absDuration(tCur.Sub(b.lastSolvedEpoch)) < sameEpochWindow {
		return
	}

	// Step 5: count endpoints within `age` of tCur.
	age := strictAge
	if b.Mode == ModeLenient {
		age = lenientAge
	}

	within := 0
	if baseEpoch != nil && absDuration(tCur.Sub(tBase)) <= age {
		within++
	}
	if roverEpoch != nil && absDuration(tCur.Sub(tRover)) <= age {
		within++
	}

	accept := within == 2
	if !accept && b.Mode == ModeWait {
		b.waitCounter++
		if time.Duration(b.waitCounter)*s.tick > b.waitLimit {
			accept = baseEpoch != nil && roverEpoch != nil
		}
	}
	if !accept {
		return
	}

	b.waitCounter = 0
	b.lastSolvedEpoch = tCur

	atomic.AddInt32(&b.on, 1)
	select {
	case s.jobs <- job{baseline: b, base: baseEpoch, rov: roverEpoch, epochTime: tCur}:
	case <-s.ctx.Done():
		atomic.AddInt32(&b.on, -1)
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// work drains the solve queue, invokes the injected RTK step, and
// publishes the result. solverWorkers instances run concurrently,
// each pulling from the same s.jobs channel — safe because runJob's
// only shared state per job is its own Baseline's atomic counter and
// solution pointer.
func (s *Solver) work() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.jobs:
			s.runJob(j)
		}
	}
}

// runJob invokes the RTK step and publishes its result. Per spec §7,
// a step failure is retried once inline for the same epoch; a second
// consecutive failure flags the solution NONE for this epoch rather
// than dropping it, and the counter resets on either a successful
// step or the NONE publish so the next epoch gets a fresh first try.
func (s *Solver) runJob(j job) {
	defer atomic.AddInt32(&j.baseline.on, -1)

	prior := j.baseline.solution.Load()
	sol, err := s.step(s.ctx, j.base, j.rov, prior)
	if err != nil {
		atomic.AddInt32(&j.baseline.consecFailures, 1)
		s.logger.WithField("baseline", j.baseline.ID).WithError(err).
			Warn("RTK step failed, retrying once for this epoch")
		sol, err = s.step(s.ctx, j.base, j.rov, prior)
	}

	if err != nil {
		failures := atomic.AddInt32(&j.baseline.consecFailures, 1)
		s.logger.WithField("baseline", j.baseline.ID).WithError(err).
			WithField("consecutive_failures", failures).
			Warn("RTK step failed twice in a row")
		if failures >= 2 {
			atomic.StoreInt32(&j.baseline.consecFailures, 0)
			j.baseline.solution.Store(&Solution{
				Status: &gnssgo.RTKStatus{Status: gnssgo.RTK_STATUS_NONE, Time: j.epochTime},
				Time:   j.epochTime,
			})
		}
		return
	}

	atomic.StoreInt32(&j.baseline.consecFailures, 0)
	if sol != nil {
		sol.Time = j.epochTime
		j.baseline.solution.Store(sol)
	}
}

// tryDelete removes a baseline from the active map if its in-flight
// counter has reached zero; otherwise it re-queues the deletion for a
// later sweep.
func (s *Solver) tryDelete(id string) {
	s.mu.RLock()
	b, ok := s.baselines[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if atomic.LoadInt32(&b.on) != 0 {
		go func() {
			select {
			case s.deleteQueue <- id:
			case <-s.ctx.Done():
			}
		}()
		return
	}

	s.mu.Lock()
	delete(s.baselines, id)
	s.mu.Unlock()
}

func (s *Solver) drainPendingDeletions() {
	for {
		select {
		case id := <-s.deleteQueue:
			s.tryDelete(id)
		default:
			return
		}
	}
}

func (s *Solver) drainDeletions() {
	// On shutdown, in-flight jobs are left to the worker loop to
	// finish draining via its own ctx.Done() check; the dispatcher
	// does not block shutdown waiting for on==0 (callers needing that
	// guarantee should call DelBaseline before Stop and poll On()).
}
