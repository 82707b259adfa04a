package supervisor

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/bramburn/gnssgo/pkg/solver"
	"github.com/bramburn/gnssgo/pkg/triangulation"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// trianglePositions returns three ECEF-ish positions a few hundred
// meters apart, in convex (non-collinear) position, the same pattern
// pkg/triangulation's own tests use.
func trianglePositions() map[int]gnssgo.Vec3 {
	base := gnssgo.Pos2Ecef(gnssgo.Vec3{0.6, 2.0, 100})
	return map[int]gnssgo.Vec3{
		1: {base[0], base[1], base[2]},
		2: {base[0] + 500, base[1], base[2]},
		3: {base[0], base[1] + 500, base[2]},
	}
}

type fixedStep struct {
	status    int
	refSat    int
	residuals map[int]map[int]float64
}

func (f fixedStep) step(_ context.Context, base, rover *obsstore.Epoch, _ *solver.Solution) (*solver.Solution, error) {
	if base == nil || rover == nil {
		return &solver.Solution{Status: &gnssgo.RTKStatus{Status: gnssgo.RTK_STATUS_NONE}}, nil
	}
	return &solver.Solution{
		Status:    &gnssgo.RTKStatus{Status: f.status},
		RefSat:    f.refSat,
		Residuals: f.residuals,
	}, nil
}

func newTestSupervisor(t *testing.T, step solver.StepFunc, vrs VRSUpdater) (*Supervisor, *obsstore.Store, *triangulation.Network, *solver.Pool) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := obsstore.New()
	network := triangulation.New()
	pool := solver.NewPool(store, step, logger)
	t.Cleanup(pool.Stop)

	sup := New(network, pool, store, vrs, logger)
	return sup, store, network, pool
}

func TestDrainControlAddSourceReconcilesBaselines(t *testing.T) {
	sup, _, network, pool := newTestSupervisor(t, solver.NullStep, nil)
	pos := trianglePositions()

	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 1, Pos: pos[1]})
	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 2, Pos: pos[2]})
	sup.RunOnce()

	require.Equal(t, 1, pool.Len())
	edges := network.Edges()
	require.Len(t, edges, 2)
	for _, e := range edges {
		require.NotEmpty(t, e.Baseline)
	}
}

func TestDrainControlDelSourceRemovesBaseline(t *testing.T) {
	sup, _, _, pool := newTestSupervisor(t, solver.NullStep, nil)
	pos := trianglePositions()

	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 1, Pos: pos[1]})
	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 2, Pos: pos[2]})
	sup.RunOnce()
	require.Equal(t, 1, pool.Len())

	sup.Submit(ControlMsg{Kind: DelSource, SourceID: 2})
	sup.RunOnce()

	require.Eventually(t, func() bool { return pool.Len() == 0 }, time.Second, 5*time.Millisecond)
}

type recordingVRS struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingVRS) Update(vstation string, masterID int, masterPos gnssgo.Vec3, obs *obsstore.Epoch, baselines []BaselineFix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, vstation)
}

func (r *recordingVRS) SetPosition(vstation string, pos gnssgo.Vec3) {}

func (r *recordingVRS) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestSubnetSyncInvokesVRSWhenBaselineFresh(t *testing.T) {
	vrs := &recordingVRS{}
	sup, store, _, pool := newTestSupervisor(t, solver.NullStep, vrs)
	pos := trianglePositions()

	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 1, Pos: pos[1]})
	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 2, Pos: pos[2]})
	sup.Submit(ControlMsg{Kind: AddVirtualStation, MasterID: 1, VStationName: "VRS1"})
	sup.RunOnce()
	require.Equal(t, 1, pool.Len())

	now := time.Now()
	store.Slot(1).PutEpoch(&obsstore.Epoch{Time: now, N: 1})
	store.Slot(2).PutEpoch(&obsstore.Epoch{Time: now, N: 1})

	require.Eventually(t, func() bool {
		sup.RunOnce()
		return vrs.count() > 0
	}, time.Second, 5*time.Millisecond)
}

func TestSubnetSyncSkipsWhenNoVirtualStationAttached(t *testing.T) {
	vrs := &recordingVRS{}
	sup, store, _, _ := newTestSupervisor(t, solver.NullStep, vrs)
	pos := trianglePositions()

	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 1, Pos: pos[1]})
	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 2, Pos: pos[2]})
	sup.RunOnce()

	now := time.Now()
	store.Slot(1).PutEpoch(&obsstore.Epoch{Time: now, N: 1})
	store.Slot(2).PutEpoch(&obsstore.Epoch{Time: now, N: 1})

	time.Sleep(50 * time.Millisecond)
	sup.RunOnce()
	require.Equal(t, 0, vrs.count())
}

func TestTriangleClosureLogsNonZeroSum(t *testing.T) {
	logger, hook := test.NewNullLogger()

	step := fixedStep{
		status: gnssgo.RTK_STATUS_FIX,
		refSat: 5,
		residuals: map[int]map[int]float64{
			7: {0: 0.5},
		},
	}

	store := obsstore.New()
	network := triangulation.New()
	pool := solver.NewPool(store, step.step, logger)
	t.Cleanup(pool.Stop)
	sup := New(network, pool, store, nil, logger)

	pos := trianglePositions()
	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 1, Pos: pos[1]})
	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 2, Pos: pos[2]})
	sup.Submit(ControlMsg{Kind: AddSource, SourceID: 3, Pos: pos[3]})
	sup.RunOnce()

	require.NotEmpty(t, network.Triangles())

	now := time.Now()
	store.Slot(1).PutEpoch(&obsstore.Epoch{Time: now, N: 1})
	store.Slot(2).PutEpoch(&obsstore.Epoch{Time: now, N: 1})
	store.Slot(3).PutEpoch(&obsstore.Epoch{Time: now, N: 1})

	require.Eventually(t, func() bool {
		sup.RunOnce()
		for _, e := range hook.AllEntries() {
			if e.Message == "non-zero ambiguity closure around triangle" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}
