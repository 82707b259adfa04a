// Package supervisor is the Network RTK Supervisor: one cooperative
// tick loop that drains control-plane edits, keeps the triangulation
// and solver pool's baseline sets aligned, triggers VRS updates on
// fresh per-vertex subnet sync, and logs per-triangle ambiguity
// closure.
package supervisor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/bramburn/gnssgo/pkg/solver"
	"github.com/bramburn/gnssgo/pkg/triangulation"
	"github.com/sirupsen/logrus"
)

// ControlKind tags a ControlMsg's payload.
type ControlKind int

const (
	AddSource ControlKind = iota
	DelSource
	AddBaseline
	DelBaseline
	AddVirtualStation
	DelVirtualStation
)

// ControlMsg is a single control-plane edit, queued by the engine and
// drained by the Supervisor's tick loop (spec §4.6 step 1).
type ControlMsg struct {
	Kind ControlKind

	SourceID int
	Pos      gnssgo.Vec3

	BaseID, RoverID int
	Mode            solver.Mode

	VStationName string
	MasterID     int
}

// VRSUpdater is the Supervisor's narrow view of the VRS Engine,
// invoked once per fresh subnet sync per attached virtual station
// (spec §4.6 step 2). Defined here (consumer side) so pkg/supervisor
// does not import pkg/vrs.
type VRSUpdater interface {
	Update(vstation string, masterID int, masterPos gnssgo.Vec3, obs *obsstore.Epoch, baselines []BaselineFix)

	// SetPosition records (or updates) the target ECEF position a
	// virtual station synthesizes observations for, supplied on the
	// AddVirtualStation control message (carried in its Pos field).
	SetPosition(vstation string, pos gnssgo.Vec3)
}

// BaselineFix is one fresh baseline RTK solution handed to the VRS
// Engine for a subnet-sync update.
type BaselineFix struct {
	EdgeID   string
	PeerID   int // the vertex at the far end of the edge from the synced vertex
	PeerPos  gnssgo.Vec3
	Solution *solver.Solution
	Sign     int
}

const (
	strictAge  = 10 * time.Millisecond
	lenientAge = 15 * time.Second
)

// Supervisor owns the control-plane queue and the one tick loop that
// reconciles the triangulation, solver pool, and VRS engine.
type Supervisor struct {
	network *triangulation.Network
	solvers *solver.Pool
	store   *obsstore.Store
	vrs     VRSUpdater
	logger  logrus.FieldLogger

	control chan ControlMsg

	mu   sync.Mutex
	mode solver.Mode

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	tick   time.Duration
}

// New creates a Supervisor. vrs may be nil in tests that only exercise
// control-plane reconciliation and ambiguity closure logging.
func New(network *triangulation.Network, solvers *solver.Pool, store *obsstore.Store, vrs VRSUpdater, logger logrus.FieldLogger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		network: network,
		solvers: solvers,
		store:   store,
		vrs:     vrs,
		logger:  logger,
		control: make(chan ControlMsg, 256),
		mode:    solver.ModeStrict,
		ctx:     ctx,
		cancel:  cancel,
		tick:    20 * time.Millisecond,
	}
}

// Submit enqueues a control-plane edit, applied on the next tick.
func (s *Supervisor) Submit(msg ControlMsg) {
	select {
	case s.control <- msg:
	case <-s.ctx.Done():
	}
}

// Start launches the tick loop.
func (s *Supervisor) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the tick loop and waits for it to exit.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce executes the three-step tick body once; exported so tests
// and a future supervisory CLI command can drive it deterministically
// without waiting on the ticker.
func (s *Supervisor) RunOnce() {
	s.drainControl()
	s.subnetSync()
	s.triangleClosure()
}

func vertexID(sourceID int) string { return strconv.Itoa(sourceID) }

func sourceID(vertexID string) (int, bool) {
	id, err := strconv.Atoi(vertexID)
	return id, err == nil
}

// drainControl implements spec §4.6 step 1.
func (s *Supervisor) drainControl() {
	for {
		select {
		case msg := <-s.control:
			s.apply(msg)
		default:
			return
		}
	}
}

func (s *Supervisor) apply(msg ControlMsg) {
	switch msg.Kind {
	case AddSource:
		diff := s.network.AddVertex(vertexID(msg.SourceID), msg.Pos)
		s.reconcileBaselines(diff)
	case DelSource:
		diff := s.network.DelVertex(vertexID(msg.SourceID))
		s.reconcileBaselines(diff)
		if !s.network.Connected() {
			s.logger.WithField("source", msg.SourceID).Warn("triangulation split into disconnected subnets after source removal")
		}
	case AddBaseline:
		b := s.solvers.AddBaseline(msg.BaseID, msg.RoverID, msg.Mode)
		a, rv := vertexID(msg.BaseID), vertexID(msg.RoverID)
		if err := s.network.UpdEdge(a, rv, b.ID); err != nil {
			// The Delaunay rebuild never paired these two stations as
			// neighbors (e.g. a console `rtkpos -add` baseline); bring
			// the edge in explicitly so subnetSync/triangleClosure can
			// still find this baseline (spec §4.5 add_edge).
			if err := s.network.AddEdge(a, rv); err != nil {
				s.logger.WithField("baseline", b.ID).WithError(err).
					Warn("cannot bind baseline to triangulation edge: unknown station")
				return
			}
			_ = s.network.UpdEdge(a, rv, b.ID)
		}
	case DelBaseline:
		s.solvers.DelBaseline(solver.BaselineID(msg.BaseID, msg.RoverID))
	case AddVirtualStation:
		s.network.AttachVirtualStation(vertexID(msg.MasterID), msg.VStationName)
		if s.vrs != nil {
			s.vrs.SetPosition(msg.VStationName, msg.Pos)
		}
	case DelVirtualStation:
		s.network.DetachVirtualStation(vertexID(msg.MasterID), msg.VStationName)
	}
}

// reconcileBaselines turns a triangulation Diff into solver pool
// add/del calls (spec §4.6 step 1: "new edges → solver.add_baseline;
// removed edges → solver.del_baseline").
func (s *Supervisor) reconcileBaselines(diff triangulation.Diff) {
	for _, id := range diff.Added {
		e, ok := s.network.Edge(id)
		if !ok {
			continue
		}
		a, aok := sourceID(e.A)
		b, bok := sourceID(e.B)
		if !aok || !bok {
			continue
		}
		base := s.solvers.AddBaseline(a, b, s.mode)
		_ = s.network.UpdEdge(e.A, e.B, base.ID)
	}
	for _, id := range diff.Removed {
		e, ok := s.network.Edge(id)
		if !ok {
			continue
		}
		a, aok := sourceID(e.A)
		b, bok := sourceID(e.B)
		if !aok || !bok {
			continue
		}
		s.solvers.DelBaseline(solver.BaselineID(a, b))
	}
}
