package registry

import (
	"math"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
)

// linearIndex is a straightforward O(n) scan over registered positions.
// The registry expects at most a few thousand stations, so a linear
// scan is simpler and cheaper than a tree for this scale; it sits
// behind SpatialIndex so a k-d tree can replace it later without
// touching Registry.
type linearIndex struct {
	pos map[string]gnssgo.Vec3
}

func newLinearIndex() *linearIndex {
	return &linearIndex{pos: make(map[string]gnssgo.Vec3)}
}

func (l *linearIndex) Upsert(name string, pos gnssgo.Vec3) {
	l.pos[name] = pos
}

func (l *linearIndex) Remove(name string) {
	delete(l.pos, name)
}

func (l *linearIndex) Nearest(pos gnssgo.Vec3) (string, bool) {
	best := ""
	bestDist := math.Inf(1)
	for name, p := range l.pos {
		d := ecefDist2(pos, p)
		if d < bestDist {
			bestDist = d
			best = name
		}
	}
	return best, best != ""
}

func (l *linearIndex) Within(pos gnssgo.Vec3, radius float64) []string {
	var out []string
	r2 := radius * radius
	for name, p := range l.pos {
		if ecefDist2(pos, p) <= r2 {
			out = append(out, name)
		}
	}
	return out
}

func ecefDist2(a, b gnssgo.Vec3) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}
