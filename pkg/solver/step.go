package solver

import (
	"context"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/obsstore"
)

// NullStep is a deterministic stand-in for the real RTK numeric kernel,
// used in tests that exercise the dispatcher/worker plumbing without a
// real Kalman filter. It reports FLOAT when both epochs are present
// and carry at least one shared satellite, SINGLE when only one side
// has data, and NONE otherwise — just enough variation for tests to
// assert on solution quality transitions.
func NullStep(_ context.Context, base, rover *obsstore.Epoch, prior *Solution) (*Solution, error) {
	status := gnssgo.NewRTKStatus()

	switch {
	case base != nil && rover != nil:
		status.Status = gnssgo.RTK_STATUS_FLOAT
		status.NSats = sharedSatCount(base, rover)
	case base != nil || rover != nil:
		status.Status = gnssgo.RTK_STATUS_SINGLE
	default:
		status.Status = gnssgo.RTK_STATUS_NONE
	}

	sol := &Solution{Status: status, Residuals: make(map[int]map[int]float64)}
	if prior != nil {
		sol.RefSat = prior.RefSat
	}
	return sol, nil
}

func sharedSatCount(a, b *obsstore.Epoch) int {
	seen := make(map[int]bool, a.N)
	for i := 0; i < a.N; i++ {
		seen[a.Obs[i].Sat] = true
	}
	count := 0
	for i := 0; i < b.N; i++ {
		if seen[b.Obs[i].Sat] {
			count++
		}
	}
	return count
}
