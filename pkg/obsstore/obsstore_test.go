package obsstore

import (
	"testing"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/stretchr/testify/require"
)

func TestSlotEpochReplacedAtomically(t *testing.T) {
	st := New()
	slot := st.Slot(1)
	require.Nil(t, slot.Epoch())

	e1 := &Epoch{Time: time.Unix(0, 0), N: 1}
	slot.PutEpoch(e1)
	require.Same(t, e1, slot.Epoch())

	e2 := &Epoch{Time: time.Unix(1, 0), N: 2}
	slot.PutEpoch(e2)
	require.Same(t, e2, slot.Epoch())
}

func TestSameSlotReturnedForSameID(t *testing.T) {
	st := New()
	require.Same(t, st.Slot(1), st.Slot(1))
	require.NotSame(t, st.Slot(1), st.Slot(2))
}

func TestNavigationDebounceGPSFamily(t *testing.T) {
	nav := newNavigation()

	require.True(t, nav.Update(gnssgo.SYS_GPS, 5, 10, "eph-a"))
	require.False(t, nav.Update(gnssgo.SYS_GPS, 5, 10, "eph-a-dup"))
	cur, ok := nav.Current(5)
	require.True(t, ok)
	require.Equal(t, "eph-a", cur)

	require.True(t, nav.Update(gnssgo.SYS_GPS, 5, 11, "eph-b"))
	cur, _ = nav.Current(5)
	require.Equal(t, "eph-b", cur)

	// IODE 10 still debounced even after a newer one arrived (3-slot cache).
	require.False(t, nav.Update(gnssgo.SYS_GPS, 5, 10, "eph-a-again"))
}

func TestNavigationGLONASSTwoSlotCache(t *testing.T) {
	nav := newNavigation()

	require.True(t, nav.Update(gnssgo.SYS_GLO, 1, 1, "g1"))
	require.True(t, nav.Update(gnssgo.SYS_GLO, 1, 2, "g2"))
	require.True(t, nav.Update(gnssgo.SYS_GLO, 1, 3, "g3"))

	// IODE 1 has been evicted from the 2-slot cache, so it's accepted again.
	require.True(t, nav.Update(gnssgo.SYS_GLO, 1, 1, "g1-again"))
}

func TestMetadataLastWriterWins(t *testing.T) {
	st := New()
	slot := st.Slot(1)
	slot.PutMetadata(StationMetadata{AntennaDesc: "first"})
	slot.PutMetadata(StationMetadata{AntennaDesc: "second"})
	require.Equal(t, "second", slot.Metadata().AntennaDesc)
}

func TestEpochFrequencies(t *testing.T) {
	e := &Epoch{N: 1}
	e.Obs[0].L[0] = 123.4
	e.Obs[0].P[2] = 567.8

	freqs := e.Frequencies()
	require.ElementsMatch(t, []int{0, 2}, freqs)
}

func TestDropRemovesSlot(t *testing.T) {
	st := New()
	s1 := st.Slot(1)
	st.Drop(1)
	require.NotSame(t, s1, st.Slot(1))
}
