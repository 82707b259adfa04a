package triangulation

import "math"

// point2D is a station projected onto the local east-north plane.
type point2D struct {
	id   string
	x, y float64
}

// tri3 is a Bowyer-Watson working triangle, indexing into the point
// slice passed to delaunay (including the three synthetic
// super-triangle corners appended at the end).
type tri3 struct {
	a, b, c int
}

// delaunay computes a 2D Delaunay triangulation of pts using the
// incremental Bowyer-Watson algorithm, grounded on the hash-table
// diffing shape of original_source/src/dtrignet/dtrignet.c (there,
// triangles/edges are rebuilt into a uthash table and diffed against
// the previous one; here the rebuild happens against Go maps in
// Network.rebuild). Station counts in a CORS network are small enough
// (tens to low hundreds) that a full from-scratch rebuild per
// add/del_vertex is cheap, so no true incremental insert/remove is
// attempted — see DESIGN.md.
func delaunay(pts []point2D) []tri3 {
	n := len(pts)
	if n < 3 {
		return nil
	}

	minX, minY := pts[0].x, pts[0].y
	maxX, maxY := pts[0].x, pts[0].y
	for _, p := range pts[1:] {
		minX, maxX = math.Min(minX, p.x), math.Max(maxX, p.x)
		minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
	}
	dx, dy := maxX-minX, maxY-minY
	deltaMax := math.Max(dx, dy)
	if deltaMax == 0 {
		deltaMax = 1
	}
	midX, midY := (minX+maxX)/2, (minY+maxY)/2

	// Super-triangle large enough to contain every input point,
	// appended as the last three entries of an extended point list.
	super := []point2D{
		{x: midX - 20*deltaMax, y: midY - deltaMax},
		{x: midX, y: midY + 20*deltaMax},
		{x: midX + 20*deltaMax, y: midY - deltaMax},
	}
	all := append(append([]point2D{}, pts...), super...)
	superA, superB, superC := n, n+1, n+2

	triangles := []tri3{{superA, superB, superC}}

	for i := 0; i < n; i++ {
		p := all[i]

		var badTriangles []int
		for ti, t := range triangles {
			if inCircumcircle(all[t.a], all[t.b], all[t.c], p) {
				badTriangles = append(badTriangles, ti)
			}
		}

		// The polygonal hole is bounded by edges not shared between
		// two bad triangles.
		type edge struct{ u, v int }
		edgeCount := make(map[edge]int)
		addEdge := func(u, v int) {
			if u > v {
				u, v = v, u
			}
			edgeCount[edge{u, v}]++
		}
		for _, ti := range badTriangles {
			t := triangles[ti]
			addEdge(t.a, t.b)
			addEdge(t.b, t.c)
			addEdge(t.c, t.a)
		}

		var boundary []edge
		for e, cnt := range edgeCount {
			if cnt == 1 {
				boundary = append(boundary, e)
			}
		}

		// Remove bad triangles (iterate in reverse so indices stay valid).
		for j := len(badTriangles) - 1; j >= 0; j-- {
			ti := badTriangles[j]
			triangles = append(triangles[:ti], triangles[ti+1:]...)
		}

		for _, e := range boundary {
			triangles = append(triangles, tri3{e.u, e.v, i})
		}
	}

	var out []tri3
	for _, t := range triangles {
		if t.a == superA || t.a == superB || t.a == superC ||
			t.b == superA || t.b == superB || t.b == superC ||
			t.c == superA || t.c == superB || t.c == superC {
			continue
		}
		out = append(out, t)
	}
	return out
}

// inCircumcircle reports whether d lies inside the circumcircle of
// triangle (a, b, c), using the standard determinant test.
func inCircumcircle(a, b, c, d point2D) bool {
	ax, ay := a.x-d.x, a.y-d.y
	bx, by := b.x-d.x, b.y-d.y
	cx, cy := c.x-d.x, c.y-d.y

	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)

	// Orientation of (a,b,c) flips the sign convention; normalize so
	// the test is independent of input winding order.
	if signedArea(a, b, c) < 0 {
		return det < 0
	}
	return det > 0
}

func signedArea(a, b, c point2D) float64 {
	return (b.x-a.x)*(c.y-a.y) - (c.x-a.x)*(b.y-a.y)
}
