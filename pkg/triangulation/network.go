// Package triangulation maintains a mutable 2D Delaunay triangulation
// over base-station ECEF positions, projected onto a local east-north
// plane centered at the vertex centroid. Vertices, edges, and
// triangles are referenced by string handles rather than pointers, so
// the cyclic source/vertex/edge/triangle graph of the original design
// (spec §9 Design Notes) never exists as a Go pointer cycle.
package triangulation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/katalvlaran/lvlath/core"
)

// Vertex is one base station in the triangulation.
type Vertex struct {
	ID           string
	Pos          gnssgo.Vec3
	Adjacency    []string // neighbor vertex ids
	Edges        []string // incident edge ids
	VStations    []string // attached virtual-station names
	ArrivalEpoch time.Time
	WaitCount    int
}

// Edge is keyed by the directed string "a→b"; its Baseline, if set, is
// the baseline id this edge represents (see sign-rule note below).
type Edge struct {
	ID       string
	A, B     string
	Baseline string
}

// Sign returns +1 if this edge walks its baseline in the same
// direction as the baseline id, -1 otherwise (spec §4.5).
func (e *Edge) Sign() int {
	if e.Baseline == "" || e.ID == e.Baseline {
		return 1
	}
	return -1
}

// Triangle is keyed by the directed string "a→b→c". FanEdges maps each
// corner vertex to the two edges fanning out from it within the
// triangle, used to locate neighboring bases for a virtual station.
type Triangle struct {
	ID        string
	Vertices  [3]string
	Edges     [3]string
	FanEdges  map[string][2]string
}

// Diff reports the edge ids added and removed by an add_vertex or
// del_vertex operation.
type Diff struct {
	Added   []string
	Removed []string
}

// Network is the triangulation's single-writer store; the Supervisor
// is the only mutator, VRS and the agent take read-locked snapshots.
type Network struct {
	mu        sync.RWMutex
	vertices  map[string]*Vertex
	edges     map[string]*Edge
	triangles map[string]*Triangle
	graph     *core.Graph

	// explicit holds edges added via AddEdge, keyed by edge id to their
	// (a, b) endpoint pair — control-plane edges that survive a rebuild
	// even when the current Delaunay triangulation doesn't produce them
	// (spec §4.5; testable property #2: "the set of edges equals the
	// union of edges of all triangles, plus explicit edges added via
	// add_edge").
	explicit map[string][2]string

	// triangleEdges is the set of edge ids belonging to some current
	// triangle, recomputed on every rebuild; DelEdge consults it so it
	// never removes an edge the triangulation itself still requires.
	triangleEdges map[string]bool
}

// New creates an empty Network.
func New() *Network {
	return &Network{
		vertices:      make(map[string]*Vertex),
		edges:         make(map[string]*Edge),
		triangles:     make(map[string]*Triangle),
		explicit:      make(map[string][2]string),
		triangleEdges: make(map[string]bool),
		graph:         core.NewGraph(core.WithWeighted(), core.WithDirected(false)),
	}
}

func edgeID(a, b string) string { return a + "→" + b }

// AddVertex inserts id at pos, rebuilds the triangulation, and returns
// the set of edges added/removed relative to the prior state (spec
// §4.5 add_vertex). Fewer than 2 vertices yields no edges; exactly 2
// vertices inserts both directed edges as a degenerate triangulation.
func (n *Network) AddVertex(id string, pos gnssgo.Vec3) Diff {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.vertices[id]; !ok {
		n.vertices[id] = &Vertex{ID: id, Pos: pos, ArrivalEpoch: time.Now()}
		_ = n.graph.AddVertex(id)
	} else {
		n.vertices[id].Pos = pos
	}

	return n.rebuild()
}

// DelVertex removes id, rebuilds, and returns the diff.
func (n *Network) DelVertex(id string) Diff {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.vertices[id]; !ok {
		return Diff{}
	}
	delete(n.vertices, id)
	_ = n.graph.RemoveVertex(id)

	return n.rebuild()
}

// UpdVertexPos writes a new position in place without re-triangulating
// — small ARP-refinement drift doesn't justify a rebuild (spec §4.5).
func (n *Network) UpdVertexPos(id string, pos gnssgo.Vec3) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.vertices[id]
	if !ok {
		return false
	}
	v.Pos = pos
	return true
}

// rebuild recomputes the full triangulation from n.vertices, diffs the
// resulting edge set against the previous n.edges, updates
// vertices/edges/triangles and the lvlath mirror in place, and returns
// the added/removed edge ids. Caller must hold n.mu.
func (n *Network) rebuild() Diff {
	ids := make([]string, 0, len(n.vertices))
	for id := range n.vertices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, v := range n.vertices {
		v.Adjacency = nil
		v.Edges = nil
	}

	newEdges := make(map[string]*Edge)
	newTriangles := make(map[string]*Triangle)

	addDirectedEdge := func(a, b string) {
		id := edgeID(a, b)
		if old, ok := n.edges[id]; ok {
			newEdges[id] = &Edge{ID: id, A: a, B: b, Baseline: old.Baseline}
		} else {
			newEdges[id] = &Edge{ID: id, A: a, B: b}
		}
	}

	switch len(ids) {
	case 0, 1:
		// no edges
	case 2:
		addDirectedEdge(ids[0], ids[1])
		addDirectedEdge(ids[1], ids[0])
	default:
		pts := make([]point2D, len(ids))
		originLat, originLon := centroidGeodetic(n.vertices, ids)
		for i, id := range ids {
			e, north := projectENU(n.vertices[id].Pos, originLat, originLon)
			pts[i] = point2D{id: id, x: e, y: north}
		}

		for _, t := range delaunay(pts) {
			a, b, c := pts[t.a].id, pts[t.b].id, pts[t.c].id
			addDirectedEdge(a, b)
			addDirectedEdge(b, a)
			addDirectedEdge(b, c)
			addDirectedEdge(c, b)
			addDirectedEdge(c, a)
			addDirectedEdge(a, c)

			triID := a + "→" + b + "→" + c
			newTriangles[triID] = &Triangle{
				ID:       triID,
				Vertices: [3]string{a, b, c},
				Edges:    [3]string{edgeID(a, b), edgeID(b, c), edgeID(c, a)},
				FanEdges: map[string][2]string{
					a: {edgeID(a, b), edgeID(a, c)},
					b: {edgeID(b, c), edgeID(b, a)},
					c: {edgeID(c, a), edgeID(c, b)},
				},
			}
		}
	}

	// Fold in explicit edges the Delaunay pass didn't produce, so
	// add_vertex/del_vertex rebuilds never silently drop a
	// control-plane edge (spec §4.5, testable property #2).
	triangleEdgeSet := make(map[string]bool)
	for _, t := range newTriangles {
		for _, eid := range t.Edges {
			triangleEdgeSet[eid] = true
		}
	}
	for id, pair := range n.explicit {
		if _, exists := newEdges[id]; exists {
			continue
		}
		a, b := pair[0], pair[1]
		if n.vertices[a] == nil || n.vertices[b] == nil {
			continue
		}
		if old, ok := n.edges[id]; ok {
			newEdges[id] = &Edge{ID: id, A: a, B: b, Baseline: old.Baseline}
		} else {
			newEdges[id] = &Edge{ID: id, A: a, B: b}
		}
	}
	n.triangleEdges = triangleEdgeSet

	var added, removed []string
	for id := range newEdges {
		if _, ok := n.edges[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range n.edges {
		if _, ok := newEdges[id]; !ok {
			removed = append(removed, id)
		}
	}
	for id, pair := range n.explicit {
		if n.vertices[pair[0]] == nil || n.vertices[pair[1]] == nil {
			delete(n.explicit, id)
		}
	}

	sort.Strings(added)
	sort.Strings(removed)

	for _, id := range removed {
		e := n.edges[id]
		_ = n.graph.RemoveEdge(mirrorEdgeKey(e.A, e.B))
	}
	for _, id := range added {
		e := newEdges[id]
		if n.vertices[e.A] != nil && n.vertices[e.B] != nil {
			_, _ = n.graph.AddEdge(e.A, e.B, 1.0)
		}
	}

	n.edges = newEdges
	n.triangles = newTriangles

	for id, e := range n.edges {
		va, vb := n.vertices[e.A], n.vertices[e.B]
		if va == nil || vb == nil {
			continue
		}
		va.Edges = append(va.Edges, id)
		va.Adjacency = append(va.Adjacency, e.B)
	}

	return Diff{Added: added, Removed: removed}
}

// Connected reports whether every vertex is reachable from every other
// vertex over the lvlath mirror — a BFS using Vertices/NeighborIDs in
// the same style as lvlath's own cascading-failure example's LCC scan.
// The Supervisor calls this after del_vertex to detect when removing a
// station has split the triangulation into disconnected subnets.
func (n *Network) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	verts := n.graph.Vertices()
	if len(verts) <= 1 {
		return true
	}

	visited := make(map[string]bool, len(verts))
	queue := []string{verts[0]}
	visited[verts[0]] = true
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		neighbors, _ := n.graph.NeighborIDs(v)
		for _, nb := range neighbors {
			if !visited[nb] {
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	return len(visited) == len(verts)
}

// mirrorEdgeKey is a stable undirected key lvlath's undirected graph
// can use to find the edge to remove regardless of which direction it
// was originally inserted under (lvlath dedups undirected edges by
// endpoint pair, so this is only used defensively).
func mirrorEdgeKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Vertex returns a copy of the vertex record for id.
func (n *Network) Vertex(id string) (Vertex, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.vertices[id]
	if !ok {
		return Vertex{}, false
	}
	return *v, true
}

// Edge returns a copy of the edge record for id.
func (n *Network) Edge(id string) (Edge, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.edges[id]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Triangle returns a copy of the triangle record for id.
func (n *Network) Triangle(id string) (Triangle, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.triangles[id]
	if !ok {
		return Triangle{}, false
	}
	return *t, true
}

// Triangles returns every current triangle, for the Supervisor's
// per-triangle ambiguity closure pass.
func (n *Network) Triangles() []Triangle {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Triangle, 0, len(n.triangles))
	for _, t := range n.triangles {
		out = append(out, *t)
	}
	return out
}

// Vertices returns every current vertex, for the Supervisor's
// per-vertex subnet sync pass.
func (n *Network) Vertices() []Vertex {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Vertex, 0, len(n.vertices))
	for _, v := range n.vertices {
		out = append(out, *v)
	}
	return out
}

// Edges returns every current edge.
func (n *Network) Edges() []Edge {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Edge, 0, len(n.edges))
	for _, e := range n.edges {
		out = append(out, *e)
	}
	return out
}

// AddEdge inserts a control-plane edge outside the Delaunay rebuild
// path (spec §4.5 add_edge), for baselines the current projected
// positions don't happen to produce as Delaunay neighbors — e.g. a
// console `rtkpos -add` between two stations the triangulation hasn't
// paired. It is idempotent and survives future AddVertex/DelVertex
// rebuilds (testable property #2) until explicitly removed via
// DelEdge. Returns an error if either endpoint is unknown.
func (n *Network) AddEdge(a, b string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.vertices[a] == nil {
		return fmt.Errorf("triangulation: no vertex %s", a)
	}
	if n.vertices[b] == nil {
		return fmt.Errorf("triangulation: no vertex %s", b)
	}

	id := edgeID(a, b)
	n.explicit[id] = [2]string{a, b}
	if _, ok := n.edges[id]; ok {
		return nil
	}

	e := &Edge{ID: id, A: a, B: b}
	n.edges[id] = e
	va := n.vertices[a]
	va.Edges = append(va.Edges, id)
	va.Adjacency = append(va.Adjacency, b)
	_, _ = n.graph.AddEdge(a, b, 1.0)
	return nil
}

// DelEdge removes a control-plane edge added via AddEdge. An edge
// that is also required by the current Delaunay triangulation (one of
// its triangles' three edges) survives the call — testable property
// #2 guarantees every triangle's edges stay present regardless of an
// explicit removal; only the "explicit" marking is cleared, so it
// will still disappear on its own once the triangulation no longer
// needs it.
func (n *Network) DelEdge(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := edgeID(a, b)
	delete(n.explicit, id)
	if n.triangleEdges[id] {
		return
	}
	e, ok := n.edges[id]
	if !ok {
		return
	}
	delete(n.edges, id)
	if va, ok := n.vertices[e.A]; ok {
		va.Edges = removeString(va.Edges, id)
		va.Adjacency = removeString(va.Adjacency, e.B)
	}
	_ = n.graph.RemoveEdge(mirrorEdgeKey(a, b))
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// UpdEdge binds a baseline id to an existing edge, a control-plane
// edit used by the Supervisor to keep the Solver's baseline set
// aligned with the triangulation's edge set. Returns an error if the
// edge doesn't exist yet — callers that may be binding a baseline
// between stations the Delaunay rebuild didn't pair should call
// AddEdge first.
func (n *Network) UpdEdge(a, b, baseline string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := edgeID(a, b)
	e, ok := n.edges[id]
	if !ok {
		return fmt.Errorf("triangulation: no edge %s", id)
	}
	e.Baseline = baseline
	return nil
}

// AttachVirtualStation records that a virtual station is attached to
// master vertex id (symmetric with the VRS record's MasterVertex).
func (n *Network) AttachVirtualStation(masterID, vstaName string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.vertices[masterID]
	if !ok {
		return false
	}
	for _, existing := range v.VStations {
		if existing == vstaName {
			return true
		}
	}
	v.VStations = append(v.VStations, vstaName)
	return true
}

// DetachVirtualStation removes vstaName from masterID's attachment list.
func (n *Network) DetachVirtualStation(masterID, vstaName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.vertices[masterID]
	if !ok {
		return
	}
	for i, existing := range v.VStations {
		if existing == vstaName {
			v.VStations = append(v.VStations[:i], v.VStations[i+1:]...)
			return
		}
	}
}
