package engine

import (
	"fmt"
	"strconv"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/ingest"
	"github.com/bramburn/gnssgo/pkg/registry"
	"github.com/bramburn/gnssgo/pkg/solver"
	"github.com/bramburn/gnssgo/pkg/supervisor"
)

// AddSource registers a physical ingest source (the CLI's `addsource`,
// spec §6) under name: adds it to the Registry, registers a decoder,
// submits an AddSource control message so the Supervisor folds it into
// the triangulation, and — if the engine is currently running — starts
// pulling from it immediately via the shared ingest Pool. A source
// added before Start is picked up when Start iterates the Registry.
func (e *Engine) AddSource(name, addr string, port int, mountpoint, user, passwd string, latDeg, lonDeg, height float64) (int, error) {
	pos := gnssgo.Pos2Ecef(gnssgo.Vec3{latDeg * d2r, lonDeg * d2r, height})
	id, err := e.registry.Add(registry.Source{
		Name: name, Addr: addr, Port: port, User: user, Passwd: passwd,
		Mountpoint: mountpoint, Pos: pos, Kind: registry.Physical,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: add source %s: %w", name, err)
	}

	e.decoders.AddSource(id)

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if running {
		e.ingestPool.AddSource(ingest.Source{
			ID: id, Addr: addr, Port: port, Mountpoint: mountpoint, User: user, Passwd: passwd,
		})
	}

	e.super.Submit(supervisor.ControlMsg{Kind: supervisor.AddSource, SourceID: id, Pos: pos})

	return id, nil
}

// DelSource removes name (the CLI's `delsource`): stops and discards
// its ingest client (a no-op if the engine isn't running), drops its
// decoder and observation slot, and submits a DelSource control
// message so the Supervisor re-triangulates without it.
func (e *Engine) DelSource(name string) error {
	src, ok := e.registry.LookupByName(name)
	if !ok {
		return fmt.Errorf("engine: unknown source %q", name)
	}

	e.ingestPool.DelSource(src.ID)
	e.decoders.DelSource(src.ID)
	e.store.Drop(src.ID)
	if err := e.registry.Del(name); err != nil {
		return fmt.Errorf("engine: del source %q: %w", name, err)
	}

	e.super.Submit(supervisor.ControlMsg{Kind: supervisor.DelSource, SourceID: src.ID})
	return nil
}

// AddBaseline submits an AddBaseline control message for base->rover
// (the CLI's `rtkpos -add`), resolving both names through the Registry.
func (e *Engine) AddBaseline(baseName, roverName string, mode solver.Mode) error {
	base, ok := e.registry.LookupByName(baseName)
	if !ok {
		return fmt.Errorf("engine: unknown base %q", baseName)
	}
	rover, ok := e.registry.LookupByName(roverName)
	if !ok {
		return fmt.Errorf("engine: unknown rover %q", roverName)
	}
	e.super.Submit(supervisor.ControlMsg{Kind: supervisor.AddBaseline, BaseID: base.ID, RoverID: rover.ID, Mode: mode})
	return nil
}

// DelBaseline submits a DelBaseline control message (the CLI's
// `rtkpos -del`).
func (e *Engine) DelBaseline(baseName, roverName string) error {
	base, ok := e.registry.LookupByName(baseName)
	if !ok {
		return fmt.Errorf("engine: unknown base %q", baseName)
	}
	rover, ok := e.registry.LookupByName(roverName)
	if !ok {
		return fmt.Errorf("engine: unknown rover %q", roverName)
	}
	e.super.Submit(supervisor.ControlMsg{Kind: supervisor.DelBaseline, BaseID: base.ID, RoverID: rover.ID})
	return nil
}

// AddVirtualStation registers a virtual station at ecef (the CLI's
// `addvsta`): adds it to the Registry under registry.Virtual, using
// its own name as its mountpoint (the NTRIP Agent's Publish fans
// synthesized MSM bytes out under exactly that name), sets its target
// position on the VRS Engine, and attaches it to whichever currently
// registered source sits nearest — the triangulation vertex the
// Supervisor's subnet-sync pass will source fresh baseline fixes from.
func (e *Engine) AddVirtualStation(name string, ecef gnssgo.Vec3) error {
	masterName, ok := e.registry.Nearest(ecef)
	if !ok {
		return fmt.Errorf("engine: no registered source to attach virtual station %q to", name)
	}
	master, ok := e.registry.LookupByName(masterName)
	if !ok {
		return fmt.Errorf("engine: master source %q vanished", masterName)
	}

	if _, err := e.registry.Add(registry.Source{
		Name: name, Mountpoint: name, Kind: registry.Virtual,
	}); err != nil {
		return fmt.Errorf("engine: add virtual station %s: %w", name, err)
	}

	e.super.Submit(supervisor.ControlMsg{
		Kind: supervisor.AddVirtualStation, VStationName: name, MasterID: master.ID, Pos: ecef,
	})
	return nil
}

// DelVirtualStation removes name (the CLI's `delvsta`): detaches it
// from its master vertex and drops it from the Registry. Its
// obsstore slot (keyed by pkg/vrs.Engine's private negative id, not
// the Registry id just freed) is left for the VRS Engine's own
// lifetime to manage.
func (e *Engine) DelVirtualStation(name string) error {
	src, ok := e.registry.LookupByName(name)
	if !ok || src.Kind != registry.Virtual {
		return fmt.Errorf("engine: unknown virtual station %q", name)
	}

	for _, v := range e.network.Vertices() {
		for _, vsta := range v.VStations {
			if vsta != name {
				continue
			}
			masterID, err := strconv.Atoi(v.ID)
			if err != nil {
				continue
			}
			e.super.Submit(supervisor.ControlMsg{Kind: supervisor.DelVirtualStation, VStationName: name, MasterID: masterID})
		}
	}

	return e.registry.Del(name)
}

// AddUser registers or updates an NTRIP rover credential (the CLI's
// `adduser`).
func (e *Engine) AddUser(name, password string) {
	e.users.Add(name, password)
}

// DelUser removes an NTRIP rover credential (the CLI's `deluser`).
func (e *Engine) DelUser(name string) {
	e.users.Del(name)
}
