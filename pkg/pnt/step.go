package pnt

import (
	"context"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/obsstore"
)

// NullPNT is a deterministic stand-in for the real single-point-
// positioning numeric kernel, used in tests that exercise the job
// queue/worker-loop plumbing without a real pntpos. It reports SINGLE
// when the epoch carries at least one satellite, NONE otherwise —
// exactly the {SINGLE, NONE} pair spec.md's S1 scenario checks for.
func NullPNT(_ context.Context, epoch *obsstore.Epoch, prior *Solution) (*Solution, error) {
	status := gnssgo.NewRTKStatus()
	if epoch != nil && epoch.N > 0 {
		status.Status = gnssgo.RTK_STATUS_SINGLE
		status.NSats = epoch.N
	} else {
		status.Status = gnssgo.RTK_STATUS_NONE
	}

	sol := &Solution{Status: status}
	if prior != nil {
		sol.Pos = prior.Pos
	}
	return sol, nil
}
