// Package engine wires the Station Registry, Observation Store, RTCM
// Decoder Pool, NTRIP Ingest pool, Delaunay Network, Baseline RTK
// Solver Pool, Network RTK Supervisor, VRS Engine, NTRIP Agent, and
// Monitor into one running system, and exposes the control-plane
// operations the CLI console drives (spec.md §6): add/del source,
// add/del baseline, add/del virtual station, add/del agent user.
package engine

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"

	"github.com/bramburn/gnssgo/pkg/agent"
	"github.com/bramburn/gnssgo/pkg/config"
	"github.com/bramburn/gnssgo/pkg/decoderpool"
	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/gnssgo/rtcm"
	"github.com/bramburn/gnssgo/pkg/ingest"
	"github.com/bramburn/gnssgo/pkg/monitor"
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/bramburn/gnssgo/pkg/pnt"
	"github.com/bramburn/gnssgo/pkg/registry"
	"github.com/bramburn/gnssgo/pkg/solver"
	"github.com/bramburn/gnssgo/pkg/supervisor"
	"github.com/bramburn/gnssgo/pkg/triangulation"
	"github.com/bramburn/gnssgo/pkg/vrs"
	"github.com/sirupsen/logrus"
)

const (
	d2r = math.Pi / 180.0

	// defaultAgentPort is the NTRIP Agent's rover-facing listen port,
	// grounded on the original implementation's NTRIP_AGENT_PORT.
	defaultAgentPort = 8002
)

// Engine owns every CORS component and the wiring between them. It is
// built once from a loaded config.Config and then driven by Start/Stop
// and the control-plane methods below.
type Engine struct {
	logger logrus.FieldLogger

	registry *registry.Registry
	store    *obsstore.Store
	network  *triangulation.Network
	decoders *decoderpool.Pool
	solvers  *solver.Pool
	pntLoop  *pnt.Loop
	super    *supervisor.Supervisor
	vrsEng   *vrs.Engine
	agentSrv *agent.Agent
	monitor  *monitor.Monitor
	users    *agent.DynamicUsers

	agentPort   int
	monitorPort int

	ingestPool *ingest.Pool

	mu      sync.Mutex
	running bool

	agentListener   net.Listener
	monitorListener net.Listener

	wg sync.WaitGroup
}

// New builds an Engine from cfg: it loads every CSV fixture cfg
// points to, populates the Registry and Delaunay Network, and wires
// every component's callbacks — but starts nothing (call Start).
func New(cfg *config.Config, logger logrus.FieldLogger) (*Engine, error) {
	e := &Engine{
		logger:      logger,
		registry:    registry.New(),
		store:       obsstore.New(),
		network:     triangulation.New(),
		agentPort:   defaultAgentPort,
		monitorPort: cfg.MonitorPort,
	}
	e.ingestPool = ingest.NewPool(e.onIngestData, e.rosterPosition, logger)

	users := make(map[string]string)
	if cfg.AgentUserFile != "" {
		loaded, err := config.LoadAgentUsers(cfg.AgentUserFile)
		if err != nil {
			return nil, fmt.Errorf("engine: load agent users: %w", err)
		}
		users = loaded
	}
	e.users = agent.NewDynamicUsers(users)

	e.decoders = decoderpool.New(e.decoderCallbacks(), logger)
	e.solvers = solver.NewPool(e.store, solver.NullStep, logger)
	e.pntLoop = pnt.NewLoop(e.store, pnt.NullPNT, logger)
	e.agentSrv = agent.New(e.registry, e.users, nil, logger)
	e.vrsEng = vrs.NewEngine(e.store, e.agentSrv, logger, false)
	e.super = supervisor.New(e.network, e.solvers, e.store, e.vrsEng, logger)
	e.monitor = monitor.New(e.registry, e.store, e.network, e.decoders.CrossCheckStats, e.ingestStatus, logger)

	if cfg.BaseStationsInfoFile != "" {
		infos, err := config.LoadBaseStationsInfo(cfg.BaseStationsInfoFile)
		if err != nil {
			return nil, fmt.Errorf("engine: load base stations info: %w", err)
		}
		meta := make(map[string]monitor.StationMeta, len(infos))
		for _, info := range infos {
			meta[info.ID] = monitor.StationMeta{Province: info.Province, City: info.City}
		}
		e.monitor.SetStationMeta(meta)
	}

	if cfg.NtripSourcesFile != "" {
		sources, err := config.LoadSources(cfg.NtripSourcesFile)
		if err != nil {
			return nil, fmt.Errorf("engine: load sources: %w", err)
		}
		for _, src := range sources {
			if _, err := e.AddSource(src.Name, src.Addr, src.Port, src.Mountpoint, src.User, src.Passwd, src.Lat, src.Lon, src.Height); err != nil {
				return nil, fmt.Errorf("engine: add source %s: %w", src.Name, err)
			}
		}
	}

	if cfg.VirtualStationsFile != "" {
		vstations, err := config.LoadVirtualStations(cfg.VirtualStationsFile)
		if err != nil {
			return nil, fmt.Errorf("engine: load virtual stations: %w", err)
		}
		for _, v := range vstations {
			if err := e.AddVirtualStation(v.Name, gnssgo.Vec3{v.X, v.Y, v.Z}); err != nil {
				return nil, fmt.Errorf("engine: add virtual station %s: %w", v.Name, err)
			}
		}
	}

	if cfg.BaselinesFile != "" {
		baselines, err := config.LoadBaselines(cfg.BaselinesFile)
		if err != nil {
			return nil, fmt.Errorf("engine: load baselines: %w", err)
		}
		for _, b := range baselines {
			if err := e.AddBaseline(b.Base, b.Rover, solver.ModeStrict); err != nil {
				return nil, fmt.Errorf("engine: add baseline %s->%s: %w", b.Base, b.Rover, err)
			}
		}
	}

	return e, nil
}

// Start launches the Supervisor's tick loop, an ingest.Client for
// every currently registered physical source, the NTRIP Agent's accept
// loop on defaultAgentPort, and the Monitor's accept loop on
// cfg.MonitorPort (only when that port is non-zero). It returns once
// those listeners are bound; serving
// continues in the background until Stop is called. Sources added via
// AddSource after Start begin ingesting immediately; sources added
// before Start (e.g. from cfg's ntrip-sources-file) start here.
func (e *Engine) Start(ctx context.Context) error {
	e.pntLoop.Start()
	e.super.Start()

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	for _, src := range e.registry.All() {
		if src.Kind == registry.Physical {
			e.ingestPool.AddSource(ingest.Source{
				ID: src.ID, Addr: src.Addr, Port: src.Port,
				Mountpoint: src.Mountpoint, User: src.User, Passwd: src.Passwd,
			})
		}
	}

	agentLn, err := net.Listen("tcp", fmt.Sprintf(":%d", e.agentPort))
	if err != nil {
		return fmt.Errorf("engine: listen agent port: %w", err)
	}
	e.agentListener = agentLn
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.agentSrv.Serve(ctx, agentLn); err != nil {
			e.logger.WithError(err).Warn("engine: agent accept loop exited")
		}
	}()

	if e.monitorPort != 0 {
		monLn, err := net.Listen("tcp", fmt.Sprintf(":%d", e.monitorPort))
		if err != nil {
			return fmt.Errorf("engine: listen monitor port: %w", err)
		}
		e.monitorListener = monLn
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.monitor.Serve(ctx, monLn); err != nil {
				e.logger.WithError(err).Warn("engine: monitor accept loop exited")
			}
		}()
	}

	return nil
}

// AttachConsole opens a local serial console on the Monitor, per
// spec.md §6's `-d <tty>` flag.
func (e *Engine) AttachConsole(path string) error {
	return e.monitor.AttachSerial(path)
}

// Stop implements spec §5's cooperative shutdown: every ingest client
// is stopped first (no more inbound bytes), then the supervisor (no
// more control-plane reconciliation), then the solver pool (baseline
// deletion waits for each baseline's in-flight count to reach zero),
// and finally both accept loops.
func (e *Engine) Stop() {
	e.ingestPool.Stop()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.pntLoop.Stop()
	e.super.Stop()
	e.solvers.Stop()
	e.agentSrv.Stop()
	e.monitor.Stop()
	e.wg.Wait()
}

// decoderCallbacks builds the fan-out table handed to the decoder
// pool: Observation writes land in the Observation Store, Navigation
// updates the per-source ephemeris cache, StationPosition and
// StationDescriptor refresh the registry and store metadata.
func (e *Engine) decoderCallbacks() decoderpool.Callbacks {
	return decoderpool.Callbacks{
		Observation: e.onObservation,
		Navigation: func(sourceID, sys, sat, iode int, eph interface{}) {
			e.store.Slot(sourceID).Nav.Update(sys, sat, iode, eph)
		},
		StationPosition:   e.onStationPosition,
		StationDescriptor: e.onStationDescriptor,
	}
}

// onObservation converts a decoded RTCM observation batch into an
// obsstore.Epoch, publishes it to the source's slot, and enqueues a
// PNT job for it (spec.md:80, "update Observation Store, enqueue PNT
// job"). Raw-byte passthrough to subscribed rovers happens earlier, in
// onIngestData, since that is where the untouched wire bytes are still
// in hand.
func (e *Engine) onObservation(sourceID, sys int, obs *rtcm.ObservationData) {
	epoch := toEpoch(sys, obs)
	e.store.Slot(sourceID).PutEpoch(epoch)
	e.pntLoop.Enqueue(sourceID, epoch)
}

// toEpoch adapts the decoder's legacy ObservationData shape into
// obsstore's fixed-size Epoch, capping at obsstore.Epoch's MAXOBS
// satellite slots and copying up to gnssgo.MAXFREQ of each satellite's
// frequency bands into obsstore.Observation's band-indexed arrays.
func toEpoch(sys int, obs *rtcm.ObservationData) *obsstore.Epoch {
	epoch := &obsstore.Epoch{Time: obs.Time}
	n := 0
	for i := 0; i < obs.N && i < len(obs.SatID) && n < len(epoch.Obs); i++ {
		o := obsstore.Observation{Sat: obs.SatID[i], Sys: sys}
		bands := len(obs.L[i])
		if b := len(obs.P[i]); b < bands || bands == 0 {
			bands = b
		}
		if bands > gnssgo.MAXFREQ {
			bands = gnssgo.MAXFREQ
		}
		for f := 0; f < bands; f++ {
			if f < len(obs.L[i]) {
				o.L[f] = obs.L[i][f]
			}
			if f < len(obs.P[i]) {
				o.P[f] = obs.P[i][f]
			}
			if f < len(obs.D[i]) {
				o.D[f] = obs.D[i][f]
			}
			if f < len(obs.SNR[i]) {
				o.SNR[f] = obs.SNR[i][f]
			}
			if f < len(obs.Code[i]) {
				o.Code[f] = obs.Code[i][f]
			}
			if f < len(obs.LLI[i]) {
				o.LLI[f] = obs.LLI[i][f]
			}
		}
		epoch.Obs[n] = o
		n++
	}
	epoch.N = n
	return epoch
}

func (e *Engine) onStationPosition(sourceID int, pos decoderpool.StationPosition) {
	src, ok := e.registry.LookupByID(sourceID)
	if !ok {
		return
	}
	ecef := gnssgo.Vec3{pos.ECEF[0], pos.ECEF[1], pos.ECEF[2]}
	if err := e.registry.UpdatePosition(src.Name, ecef); err != nil {
		e.logger.WithError(err).WithField("source", src.Name).Warn("engine: failed to update station position")
		return
	}
	e.network.UpdVertexPos(vertexID(sourceID), ecef)
}

func (e *Engine) onStationDescriptor(sourceID int, desc decoderpool.StationDescriptor) {
	slot := e.store.Slot(sourceID)
	meta := slot.Metadata()
	meta.AntennaDesc = desc.AntennaType
	meta.AntennaSerial = desc.AntennaSerial
	meta.ReceiverDesc = desc.ReceiverType
	meta.ReceiverSerial = desc.ReceiverSerial
	slot.PutMetadata(meta)
}

func vertexID(sourceID int) string { return fmt.Sprintf("%d", sourceID) }

// onIngestData is the single callback every ingest.Client in the Pool
// shares: it feeds the decoder pool and fans the untouched wire bytes
// out to the source's mountpoint (spec §4.8: "always emit the incoming
// payload unchanged"), looking the mountpoint up fresh each call so a
// DelSource/AddSource rename is never served stale.
func (e *Engine) onIngestData(sourceID int, data []byte) {
	e.decoders.Feed(sourceID, data)
	if src, ok := e.registry.LookupByID(sourceID); ok {
		e.agentSrv.PublishRaw(src.Mountpoint, data)
	}
}

// ingestStatus implements monitor.StatusFunc against the live ingest
// pool, keyed by registry name.
func (e *Engine) ingestStatus(name string) (bool, bool) {
	src, ok := e.registry.LookupByName(name)
	if !ok {
		return false, false
	}
	return e.ingestPool.Connected(src.ID), true
}

// rosterPosition reports the position the keepalive GGA should carry
// for sourceID: the master vertex's own ARP if known, falling back to
// not-ok (no keepalive this tick) when the registry has no fix yet.
func (e *Engine) rosterPosition(sourceID int) (lat, lon, height float64, numSats int, hdop float64, ok bool) {
	src, found := e.registry.LookupByID(sourceID)
	if !found || src.Pos == (gnssgo.Vec3{}) {
		return 0, 0, 0, 0, 0, false
	}
	geo := gnssgo.Ecef2Pos(src.Pos)
	epoch := e.store.Slot(sourceID).Epoch()
	sats := 0
	if epoch != nil {
		sats = epoch.SatCount()
	}
	return geo[0], geo[1], geo[2], sats, 1.0, true
}
