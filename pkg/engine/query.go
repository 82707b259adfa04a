package engine

import (
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/bramburn/gnssgo/pkg/pnt"
	"github.com/bramburn/gnssgo/pkg/registry"
	"github.com/bramburn/gnssgo/pkg/solver"
	"github.com/bramburn/gnssgo/pkg/triangulation"
)

// Sources returns a snapshot of every registered source (the CLI's
// `sourceinfo all`).
func (e *Engine) Sources() []registry.Source {
	return e.registry.All()
}

// Source looks up a single registered source by name (the CLI's
// `sourceinfo <name>`).
func (e *Engine) Source(name string) (registry.Source, bool) {
	return e.registry.LookupByName(name)
}

// Epoch returns the latest observation epoch held for name, if any
// (the CLI's `observ <name>`).
func (e *Engine) Epoch(name string) (*obsstore.Epoch, bool) {
	src, ok := e.registry.LookupByName(name)
	if !ok {
		return nil, false
	}
	epoch := e.store.Slot(src.ID).Epoch()
	return epoch, epoch != nil
}

// Navigation returns the ephemeris cache held for name, if any (the
// CLI's `navidata`).
func (e *Engine) Navigation(name string) (*obsstore.Navigation, bool) {
	src, ok := e.registry.LookupByName(name)
	if !ok {
		return nil, false
	}
	return e.store.Slot(src.ID).Nav, true
}

// PNT returns name's latest single-point fix, if any (spec.md's S1
// scenario: "observe that a PNT result is published").
func (e *Engine) PNT(name string) (*pnt.Solution, bool) {
	src, ok := e.registry.LookupByName(name)
	if !ok {
		return nil, false
	}
	return e.pntLoop.Solution(src.ID)
}

// CrossCheckStats reports name's decoder cross-check tallies (the
// CLI's `monirtcm -msg`).
func (e *Engine) CrossCheckStats(name string) (map[int]int, bool) {
	src, ok := e.registry.LookupByName(name)
	if !ok {
		return nil, false
	}
	return e.decoders.CrossCheckStats(src.ID)
}

// Baseline looks up a solver-pool baseline by base/rover name (the
// CLI's `rtkpos -sol`).
func (e *Engine) Baseline(baseName, roverName string) (*solver.Baseline, bool) {
	base, ok := e.registry.LookupByName(baseName)
	if !ok {
		return nil, false
	}
	rover, ok := e.registry.LookupByName(roverName)
	if !ok {
		return nil, false
	}
	return e.solvers.Baseline(solver.BaselineID(base.ID, rover.ID))
}

// Network exposes the live Delaunay network for diagnostic listing
// (the CLI's `satellite`/`sourceinfo` triangle/edge summaries).
func (e *Engine) Network() *triangulation.Network {
	return e.network
}
