package triangulation

import "github.com/bramburn/gnssgo/pkg/gnssgo"

// centroidGeodetic returns the geodetic latitude/longitude (radians)
// of the centroid of the given vertices' ECEF positions, used as the
// local tangent-plane origin for the Delaunay projection.
func centroidGeodetic(vertices map[string]*Vertex, ids []string) (lat, lon float64) {
	var sum gnssgo.Vec3
	for _, id := range ids {
		p := vertices[id].Pos
		sum[0] += p[0]
		sum[1] += p[1]
		sum[2] += p[2]
	}
	n := float64(len(ids))
	centroid := gnssgo.Vec3{sum[0] / n, sum[1] / n, sum[2] / n}
	pos := gnssgo.Ecef2Pos(centroid)
	return pos[0], pos[1]
}

// projectENU projects an ECEF position onto the east-north plane
// tangent to (originLat, originLon), returning (east, north) meters.
func projectENU(p gnssgo.Vec3, originLat, originLon float64) (east, north float64) {
	originGeo := gnssgo.Vec3{originLat, originLon, 0}
	originECEF := gnssgo.Pos2Ecef(originGeo)
	baseline := gnssgo.Vec3{p[0] - originECEF[0], p[1] - originECEF[1], p[2] - originECEF[2]}
	enu := gnssgo.Ecef2Enu(originGeo, baseline)
	return enu[0], enu[1]
}
