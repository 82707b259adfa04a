package engine

import (
	"io"
	"testing"
	"time"

	"github.com/bramburn/gnssgo/pkg/config"
	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/gnssgo/rtcm"
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/bramburn/gnssgo/pkg/registry"
	"github.com/bramburn/gnssgo/pkg/solver"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	e, err := New(&config.Config{}, logger)
	require.NoError(t, err)
	return e
}

func TestNewBuildsEmptyEngine(t *testing.T) {
	e := newTestEngine(t)
	require.Empty(t, e.Sources())
	require.Equal(t, 0, e.solvers.Len())
}

func TestAddSourceRegistersAndDecodes(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.AddSource("base1", "127.0.0.1", 2101, "BASE1", "user", "pass", 51.5, -0.1, 100)
	require.NoError(t, err)
	require.Equal(t, 1, id)

	src, ok := e.Source("base1")
	require.True(t, ok)
	require.Equal(t, registry.Physical, src.Kind)
	require.Equal(t, "BASE1", src.Mountpoint)

	// Engine isn't running yet, so no ingest.Client should have started.
	require.False(t, e.ingestPool.Connected(id))
}

func TestAddSourceDuplicateNameFails(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddSource("base1", "127.0.0.1", 2101, "BASE1", "u", "p", 0, 0, 0)
	require.NoError(t, err)

	_, err = e.AddSource("base1", "127.0.0.1", 2102, "BASE1B", "u", "p", 0, 0, 0)
	require.Error(t, err)
}

func TestDelSourceRemovesRegistryAndStore(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.AddSource("base1", "127.0.0.1", 2101, "BASE1", "u", "p", 51.5, -0.1, 100)
	require.NoError(t, err)

	e.store.Slot(id).PutEpoch(&obsstore.Epoch{Time: time.Now(), N: 1})

	require.NoError(t, e.DelSource("base1"))

	_, ok := e.Source("base1")
	require.False(t, ok)

	_, ok = e.Epoch("base1")
	require.False(t, ok)
}

func TestDelSourceUnknownNameFails(t *testing.T) {
	e := newTestEngine(t)
	require.Error(t, e.DelSource("nope"))
}

func TestAddVirtualStationAttachesNearestMaster(t *testing.T) {
	e := newTestEngine(t)

	basePos := gnssgo.Pos2Ecef(gnssgo.Vec3{51.5 * d2r, -0.1 * d2r, 100})
	_, err := e.AddSource("base1", "127.0.0.1", 2101, "BASE1", "u", "p", 51.5, -0.1, 100)
	require.NoError(t, err)
	e.super.RunOnce() // materialize base1's vertex before attaching a VRS to it

	require.NoError(t, e.AddVirtualStation("VRS1", basePos))
	e.super.RunOnce()

	src, ok := e.Source("VRS1")
	require.True(t, ok)
	require.Equal(t, registry.Virtual, src.Kind)
	require.Equal(t, "VRS1", src.Mountpoint)

	found := false
	for _, v := range e.network.Vertices() {
		for _, vsta := range v.VStations {
			if vsta == "VRS1" {
				found = true
			}
		}
	}
	require.True(t, found, "virtual station should be attached to a network vertex")
}

func TestAddVirtualStationFailsWithoutAnySource(t *testing.T) {
	e := newTestEngine(t)
	require.Error(t, e.AddVirtualStation("VRS1", gnssgo.Vec3{1, 2, 3}))
}

func TestDelVirtualStationDetachesAndRemoves(t *testing.T) {
	e := newTestEngine(t)
	basePos := gnssgo.Pos2Ecef(gnssgo.Vec3{51.5 * d2r, -0.1 * d2r, 100})
	_, err := e.AddSource("base1", "127.0.0.1", 2101, "BASE1", "u", "p", 51.5, -0.1, 100)
	require.NoError(t, err)
	e.super.RunOnce()
	require.NoError(t, e.AddVirtualStation("VRS1", basePos))
	e.super.RunOnce()

	require.NoError(t, e.DelVirtualStation("VRS1"))

	_, ok := e.Source("VRS1")
	require.False(t, ok)
}

func TestAddDelBaseline(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddSource("base1", "127.0.0.1", 2101, "BASE1", "u", "p", 51.5, -0.1, 100)
	require.NoError(t, err)
	_, err = e.AddSource("rover1", "127.0.0.1", 2102, "ROVER1", "u", "p", 51.5001, -0.1001, 100)
	require.NoError(t, err)
	e.super.RunOnce()

	require.NoError(t, e.AddBaseline("base1", "rover1", solver.ModeStrict))
	e.super.RunOnce()

	_, ok := e.Baseline("base1", "rover1")
	require.True(t, ok)

	require.NoError(t, e.DelBaseline("base1", "rover1"))
}

func TestAddBaselineUnknownNamesFail(t *testing.T) {
	e := newTestEngine(t)
	require.Error(t, e.AddBaseline("nope", "alsonope", solver.ModeStrict))
}

func TestAddDelUser(t *testing.T) {
	e := newTestEngine(t)
	e.AddUser("rover1", "secret")
	require.True(t, e.users.Authenticate("rover1", "secret"))

	e.DelUser("rover1")
	require.False(t, e.users.Authenticate("rover1", "secret"))
}

func TestOnObservationUpdatesStore(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.AddSource("base1", "127.0.0.1", 2101, "BASE1", "u", "p", 0, 0, 0)
	require.NoError(t, err)

	obs := &rtcm.ObservationData{
		Time: time.Now(),
		N:    2,
		SatID: []int{3, 5},
		L:     [][]float64{{1.1}, {2.2}},
		P:     [][]float64{{100.1}, {200.2}},
	}
	e.onObservation(id, gnssgo.SYS_GPS, obs)

	epoch, ok := e.Epoch("base1")
	require.True(t, ok)
	require.Equal(t, 2, epoch.SatCount())
	require.Equal(t, 3, epoch.Obs[0].Sat)
	require.Equal(t, gnssgo.SYS_GPS, epoch.Obs[0].Sys)
}

// TestOnObservationPublishesPNTResult reproduces spec.md's S1 scenario
// end to end through the production wiring: feed a decoded observation
// batch in via the same onObservation callback decoderpool.Callbacks
// calls for a real RTCM 1004 frame, and observe that the Observation
// Store holds the decoded epoch and a PNT result with
// stat in {SINGLE, NONE} is published for that source.
func TestOnObservationPublishesPNTResult(t *testing.T) {
	e := newTestEngine(t)
	e.pntLoop.Start()
	defer e.pntLoop.Stop()

	id, err := e.AddSource("base1", "127.0.0.1", 2101, "BASE1", "u", "p", 0, 0, 0)
	require.NoError(t, err)

	obs := &rtcm.ObservationData{
		Time:  time.Now(),
		N:     2,
		SatID: []int{3, 5},
		L:     [][]float64{{1.1}, {2.2}},
		P:     [][]float64{{100.1}, {200.2}},
	}
	e.onObservation(id, gnssgo.SYS_GPS, obs)

	epoch, ok := e.Epoch("base1")
	require.True(t, ok)
	require.Equal(t, 2, epoch.SatCount())

	require.Eventually(t, func() bool {
		sol, ok := e.PNT("base1")
		return ok && (sol.Status.Status == gnssgo.RTK_STATUS_SINGLE || sol.Status.Status == gnssgo.RTK_STATUS_NONE)
	}, time.Second, 5*time.Millisecond)

	sol, ok := e.PNT("base1")
	require.True(t, ok)
	require.Equal(t, gnssgo.RTK_STATUS_SINGLE, sol.Status.Status)
}

func TestIngestStatusUnknownSource(t *testing.T) {
	e := newTestEngine(t)
	_, ok := e.ingestStatus("nope")
	require.False(t, ok)
}

func TestRosterPositionWithoutFixIsNotOK(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.AddSource("base1", "127.0.0.1", 2101, "BASE1", "u", "p", 0, 0, 0)
	require.NoError(t, err)

	_, _, _, _, _, ok := e.rosterPosition(id)
	require.False(t, ok)
}
