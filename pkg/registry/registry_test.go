package registry

import (
	"testing"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/stretchr/testify/require"
)

func TestAddAssignsMonotonicIDs(t *testing.T) {
	r := New()

	id1, err := r.Add(Source{Name: "alpha"})
	require.NoError(t, err)
	id2, err := r.Add(Source{Name: "beta"})
	require.NoError(t, err)

	require.Less(t, id1, id2)
}

func TestAddDuplicateNameFails(t *testing.T) {
	r := New()
	_, err := r.Add(Source{Name: "alpha"})
	require.NoError(t, err)

	_, err = r.Add(Source{Name: "alpha"})
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestDelReleasesNameAndIndex(t *testing.T) {
	r := New()
	_, err := r.Add(Source{Name: "alpha", Pos: gnssgo.Vec3{1, 0, 0}})
	require.NoError(t, err)

	require.NoError(t, r.Del("alpha"))
	_, ok := r.LookupByName("alpha")
	require.False(t, ok)

	require.ErrorIs(t, r.Del("alpha"), ErrNotFound)
}

func TestIDsNeverReused(t *testing.T) {
	r := New()
	id1, _ := r.Add(Source{Name: "alpha"})
	require.NoError(t, r.Del("alpha"))
	id2, _ := r.Add(Source{Name: "alpha"})

	require.NotEqual(t, id1, id2)
	require.Greater(t, id2, id1)
}

func TestNearestReturnsClosestSource(t *testing.T) {
	r := New()
	_, err := r.Add(Source{Name: "near", Pos: gnssgo.Vec3{0, 0, 0}})
	require.NoError(t, err)
	_, err = r.Add(Source{Name: "far", Pos: gnssgo.Vec3{1000, 0, 0}})
	require.NoError(t, err)

	name, ok := r.Nearest(gnssgo.Vec3{1, 0, 0})
	require.True(t, ok)
	require.Equal(t, "near", name)
}

func TestUpdatePositionMovesNearestResult(t *testing.T) {
	r := New()
	_, err := r.Add(Source{Name: "alpha", Pos: gnssgo.Vec3{0, 0, 0}})
	require.NoError(t, err)

	require.NoError(t, r.UpdatePosition("alpha", gnssgo.Vec3{500, 500, 500}))

	name, ok := r.Nearest(gnssgo.Vec3{500, 500, 500})
	require.True(t, ok)
	require.Equal(t, "alpha", name)
}

func TestWithinRadius(t *testing.T) {
	r := New()
	_, _ = r.Add(Source{Name: "a", Pos: gnssgo.Vec3{0, 0, 0}})
	_, _ = r.Add(Source{Name: "b", Pos: gnssgo.Vec3{5, 0, 0}})
	_, _ = r.Add(Source{Name: "c", Pos: gnssgo.Vec3{500, 0, 0}})

	names := r.Within(gnssgo.Vec3{0, 0, 0}, 10)
	require.ElementsMatch(t, []string{"a", "b"}, names)
}
