package triangulation

import (
	"testing"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/stretchr/testify/require"
)

// squarePositions returns four ECEF-ish positions, roughly co-planar
// near a single local tangent plane, arranged as a square so they are
// in convex position once projected to ENU.
func squarePositions() map[string]gnssgo.Vec3 {
	base := gnssgo.Pos2Ecef(gnssgo.Vec3{0.6, 2.0, 100})
	// Offsets of a few hundred meters in a rough ECEF approximation of
	// east/north at this latitude/longitude are good enough to
	// produce a convex quadrilateral after projection.
	return map[string]gnssgo.Vec3{
		"a": {base[0], base[1], base[2]},
		"b": {base[0] + 500, base[1], base[2]},
		"c": {base[0], base[1] + 500, base[2]},
		"d": {base[0] + 500, base[1] + 500, base[2]},
	}
}

func TestAddVertexFewerThanTwoHasNoEdges(t *testing.T) {
	n := New()
	diff := n.AddVertex("a", gnssgo.Vec3{1, 0, 0})
	require.Empty(t, diff.Added)
	require.Empty(t, n.Edges())
}

func TestAddVertexTwoInsertsDegenerateBidirectionalEdges(t *testing.T) {
	n := New()
	n.AddVertex("a", gnssgo.Vec3{1, 0, 0})
	diff := n.AddVertex("b", gnssgo.Vec3{2, 0, 0})

	require.ElementsMatch(t, []string{"a→b", "b→a"}, diff.Added)
	edges := n.Edges()
	require.Len(t, edges, 2)
}

func TestAddFourVerticesProducesTriangles(t *testing.T) {
	n := New()
	var diff Diff
	for _, id := range []string{"a", "b", "c", "d"} {
		diff = n.AddVertex(id, squarePositions()[id])
	}
	_ = diff

	triangles := n.Triangles()
	require.NotEmpty(t, triangles)
	for _, tr := range triangles {
		require.Len(t, tr.Edges, 3)
		ids := map[string]bool{tr.Vertices[0]: true, tr.Vertices[1]: true, tr.Vertices[2]: true}
		require.Len(t, ids, 3, "triangle vertices must be pairwise distinct")
	}
}

func TestDeleteVertexRestoresSmallerNetwork(t *testing.T) {
	n := New()
	pos := squarePositions()
	for _, id := range []string{"a", "b", "c"} {
		n.AddVertex(id, pos[id])
	}
	before := n.Edges()

	n.AddVertex("d", pos["d"])
	diff := n.DelVertex("d")

	require.NotEmpty(t, diff.Removed)
	after := n.Edges()
	require.ElementsMatch(t, edgeIDs(before), edgeIDs(after))
}

func TestConnectedTrueForTriangulatedSet(t *testing.T) {
	n := New()
	pos := squarePositions()
	for _, id := range []string{"a", "b", "c", "d"} {
		n.AddVertex(id, pos[id])
	}
	require.True(t, n.Connected())
}

func TestConnectedFalseWhenMirrorHoldsAnIsolatedVertex(t *testing.T) {
	n := New()
	n.AddVertex("a", gnssgo.Vec3{0, 0, 0})
	n.AddVertex("b", gnssgo.Vec3{1, 0, 0})
	require.True(t, n.Connected())

	// A fully re-triangulated network is always connected by
	// construction (the Delaunay graph spans every input point), so
	// exercising the disconnected branch of the BFS means adding a
	// vertex straight to the lvlath mirror without an edge, the way a
	// stray add_vertex with no surviving neighbors after a del_vertex
	// race would leave it.
	require.NoError(t, n.graph.AddVertex("stray"))
	require.False(t, n.Connected())
}

func TestUpdVertexPosDoesNotRetriangulate(t *testing.T) {
	n := New()
	pos := squarePositions()
	for _, id := range []string{"a", "b", "c"} {
		n.AddVertex(id, pos[id])
	}
	before := n.Edges()

	ok := n.UpdVertexPos("a", gnssgo.Vec3{pos["a"][0] + 1, pos["a"][1], pos["a"][2]})
	require.True(t, ok)

	after := n.Edges()
	require.ElementsMatch(t, edgeIDs(before), edgeIDs(after))

	v, _ := n.Vertex("a")
	require.InDelta(t, pos["a"][0]+1, v.Pos[0], 1e-9)
}

func TestEdgeSignRule(t *testing.T) {
	n := New()
	n.AddVertex("a", gnssgo.Vec3{1, 0, 0})
	n.AddVertex("b", gnssgo.Vec3{2, 0, 0})

	require.NoError(t, n.UpdEdge("a", "b", "a→b"))
	e, _ := n.Edge("a→b")
	require.Equal(t, 1, e.Sign())

	require.NoError(t, n.UpdEdge("b", "a", "a→b"))
	e2, _ := n.Edge("b→a")
	require.Equal(t, -1, e2.Sign())
}

func TestAttachDetachVirtualStation(t *testing.T) {
	n := New()
	n.AddVertex("a", gnssgo.Vec3{1, 0, 0})

	require.True(t, n.AttachVirtualStation("a", "V1"))
	v, _ := n.Vertex("a")
	require.Contains(t, v.VStations, "V1")

	n.DetachVirtualStation("a", "V1")
	v, _ = n.Vertex("a")
	require.NotContains(t, v.VStations, "V1")
}

func edgeIDs(edges []Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.ID
	}
	return out
}
