package supervisor

import (
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/solver"
	"github.com/bramburn/gnssgo/pkg/triangulation"
	"github.com/sirupsen/logrus"
)

// age returns the sync tolerance for the Supervisor's current mode
// (spec §4.6 step 2, mirroring §4.4 step 5).
func (s *Supervisor) age() time.Duration {
	if s.mode == solver.ModeLenient {
		return lenientAge
	}
	return strictAge
}

// subnetSync implements spec §4.6 step 2: for every vertex, check that
// every incident edge's baseline has a solution fresh within age; if
// so and the vertex has attached virtual stations, hand the VRS
// engine the fresh baseline fixes around it.
func (s *Supervisor) subnetSync() {
	if s.vrs == nil {
		return
	}
	now := time.Now()
	maxAge := s.age()

	for _, v := range s.network.Vertices() {
		if len(v.VStations) == 0 {
			continue
		}
		id, ok := sourceID(v.ID)
		if !ok {
			continue
		}

		fresh := true
		fixes := make([]BaselineFix, 0, len(v.Edges))
		for _, edgeID := range v.Edges {
			e, ok := s.network.Edge(edgeID)
			if !ok || e.Baseline == "" {
				fresh = false
				break
			}
			b, ok := s.solvers.Baseline(e.Baseline)
			if !ok {
				fresh = false
				break
			}
			sol := b.Solution()
			if sol == nil || now.Sub(sol.Time) > maxAge {
				fresh = false
				break
			}
			peer := e.B
			if peer == v.ID {
				peer = e.A
			}
			peerID, ok := sourceID(peer)
			if !ok {
				continue
			}
			peerVertex, _ := s.network.Vertex(peer)
			fixes = append(fixes, BaselineFix{EdgeID: e.ID, PeerID: peerID, PeerPos: peerVertex.Pos, Solution: sol, Sign: e.Sign()})
		}
		if !fresh || len(fixes) == 0 {
			continue
		}

		slot := s.store.Slot(id)
		obs := slot.Epoch()
		if obs == nil {
			continue
		}

		for _, vsta := range v.VStations {
			s.vrs.Update(vsta, id, v.Pos, obs, fixes)
		}
	}
}

// closureKey identifies one (satellite, frequency) residual sum within
// a triangle's ambiguity closure check.
type closureKey struct {
	Sat  int
	Freq int
}

// triangleClosure implements spec §4.6 step 3: for every triangle
// whose three incident baselines are all fresh, fixed, and share the
// same epoch and reference satellite, sum the signed double-difference
// ambiguity residuals around the triangle and log any non-zero
// closure — it should sum to zero for a consistent, correctly-resolved
// network (spec §4.5 edge-vs-baseline sign rule).
func (s *Supervisor) triangleClosure() {
	maxAge := s.age()
	now := time.Now()

	for _, t := range s.network.Triangles() {
		edges := make([]triangulation.Edge, 0, 3)
		solutions := make([]*solver.Solution, 0, 3)
		ok := true
		var refSat int
		var epoch time.Time

		for i, edgeID := range t.Edges {
			e, exists := s.network.Edge(edgeID)
			if !exists || e.Baseline == "" {
				ok = false
				break
			}
			b, exists := s.solvers.Baseline(e.Baseline)
			if !exists {
				ok = false
				break
			}
			sol := b.Solution()
			if sol == nil || sol.Status == nil || sol.Status.Status != gnssgo.RTK_STATUS_FIX {
				ok = false
				break
			}
			if now.Sub(sol.Time) > maxAge {
				ok = false
				break
			}
			if i == 0 {
				refSat = sol.RefSat
				epoch = sol.Time
			} else if sol.RefSat != refSat || !sol.Time.Equal(epoch) {
				ok = false
				break
			}
			edges = append(edges, e)
			solutions = append(solutions, sol)
		}
		if !ok || len(edges) != 3 {
			continue
		}

		sums := make(map[closureKey]float64)
		for i, e := range edges {
			sign := float64(e.Sign())
			for sat, perFreq := range solutions[i].Residuals {
				for freq, residual := range perFreq {
					sums[closureKey{Sat: sat, Freq: freq}] += sign * residual
				}
			}
		}

		for key, sum := range sums {
			if sum != 0 {
				s.logger.WithFields(logrus.Fields{
					"triangle": t.ID,
					"sat":      key.Sat,
					"freq":     key.Freq,
					"closure":  sum,
				}).Warn("non-zero ambiguity closure around triangle")
			}
		}
	}
}
