// Package monitor is the out-of-band diagnostic server of spec.md
// §4.9: a line-oriented TCP command stream, peripheral to the data
// plane (shutting it down drops no subscriber, solves no baseline).
// Commands are plain text; responses are one JSON object per line,
// built from live snapshots of the Station Registry, Observation
// Store, and Delaunay Network rather than any dedicated diagnostic
// state of its own.
package monitor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/gnssgo/stream"
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/bramburn/gnssgo/pkg/registry"
	"github.com/bramburn/gnssgo/pkg/triangulation"
	"github.com/sirupsen/logrus"
)

// StationMeta is the province/city metadata MONITOR-BSTADISTR groups
// by, loaded from the base-stations-info-file CSV (pkg/config) and
// handed in via SetStationMeta — pkg/monitor never reads config files
// itself.
type StationMeta struct {
	Province string
	City     string
}

// CrossCheckFunc reports a source's independently cross-checked RTCM
// message-type tally (pkg/decoderpool.Pool.CrossCheckStats), or false
// if the source has no decoder running.
type CrossCheckFunc func(sourceID int) (map[int]int, bool)

// StatusFunc reports whether a named source currently holds a live
// ingest connection (pkg/ingest.Client.Connected), or false if the
// name isn't an ingest-backed source at all.
type StatusFunc func(name string) (connected bool, ok bool)

// Monitor answers MONITOR-* queries against live subsystem state.
type Monitor struct {
	registry *registry.Registry
	store    *obsstore.Store
	network  *triangulation.Network
	crossFn  CrossCheckFunc
	statusFn StatusFunc
	logger   logrus.FieldLogger

	mu   sync.RWMutex
	meta map[string]StationMeta

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor. crossFn and statusFn may be nil (the
// corresponding response fields are simply omitted).
func New(reg *registry.Registry, store *obsstore.Store, network *triangulation.Network, crossFn CrossCheckFunc, statusFn StatusFunc, logger logrus.FieldLogger) *Monitor {
	return &Monitor{
		registry: reg,
		store:    store,
		network:  network,
		crossFn:  crossFn,
		statusFn: statusFn,
		logger:   logger,
		meta:     make(map[string]StationMeta),
	}
}

// SetStationMeta replaces the province/city lookup table, keyed by
// registry source name.
func (m *Monitor) SetStationMeta(meta map[string]StationMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta = meta
}

func (m *Monitor) lookupMeta(name string) (StationMeta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.meta[name]
	return meta, ok
}

// Serve accepts connections on ln, each running its own command loop,
// until ctx is cancelled or Stop is called.
func (m *Monitor) Serve(ctx context.Context, ln net.Listener) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		<-m.ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-m.ctx.Done():
				m.wg.Wait()
				return nil
			default:
				return err
			}
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.serveConn(conn)
		}()
	}
}

// Stop cancels the monitor's context and waits for connection
// goroutines to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// AttachSerial opens a local serial console (spec.md §6's `-d <tty>`
// flag) and runs the same command loop against it, repurposing
// pkg/gnssgo/stream's OpenSerial the way the teacher uses it for
// receiver I/O — here for an operator console instead.
func (m *Monitor) AttachSerial(path string) error {
	var openErr string
	sc := stream.OpenSerial(path, stream.STR_MODE_RW, &openErr)
	if sc == nil {
		return fmt.Errorf("monitor: open serial %s: %s", path, openErr)
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.serveSerial(sc)
	}()
	return nil
}

func (m *Monitor) serveSerial(sc *stream.SerialComm) {
	defer sc.CloseSerial()
	buf := make([]byte, 256)
	var line strings.Builder
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}
		var readErr string
		n := sc.ReadSerial(buf, len(buf), &readErr)
		if n <= 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		for _, b := range buf[:n] {
			if b == '\n' {
				m.respond(lineWriterFunc(func(p []byte) { var msg string; sc.WriteSerial(p, len(p), &msg) }), line.String())
				line.Reset()
				continue
			}
			if b != '\r' {
				line.WriteByte(b)
			}
		}
	}
}

func (m *Monitor) serveConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			m.respond(conn, line)
		}
		if err != nil {
			return
		}
	}
}

// lineWriterFunc adapts a func([]byte) into an io.Writer, used to
// reuse respond's single code path for both the TCP and serial
// transports.
type lineWriterFunc func([]byte)

func (f lineWriterFunc) Write(p []byte) (int, error) {
	f(p)
	return len(p), nil
}

func (m *Monitor) respond(w io.Writer, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	result, err := m.dispatch(line)
	if err != nil {
		result = map[string]string{"error": err.Error()}
	}
	out, jsonErr := json.Marshal(result)
	if jsonErr != nil {
		m.logger.WithError(jsonErr).Warn("monitor: failed to marshal response")
		return
	}
	out = append(out, '\n')
	w.Write(out)
}

func (m *Monitor) dispatch(line string) (interface{}, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd, args := strings.ToUpper(fields[0]), fields[1:]
	switch cmd {
	case "MONITOR-SOURCE":
		return m.monitorSource(args)
	case "MONITOR-BSTADISTR":
		return m.monitorBstaDistr(args)
	case "MONITOR-VRS":
		return m.monitorVRS(args)
	case "MONITOR-TRIG":
		return m.monitorTrig()
	default:
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
}

// sourceView is one MONITOR-SOURCE entry.
type sourceView struct {
	Name       string `json:"name"`
	ID         int    `json:"id"`
	Kind       string `json:"kind"`
	Mountpoint string `json:"mountpoint"`
	Addr       string `json:"addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Height     float64 `json:"height"`
	Connected  *bool  `json:"connected,omitempty"`
	CrossCheck map[int]int `json:"cross_check,omitempty"`
}

func (m *Monitor) sourceViewFor(src registry.Source) sourceView {
	geo := gnssgo.Ecef2Pos(src.Pos)
	const r2d = 180.0 / 3.14159265358979323846
	v := sourceView{
		Name: src.Name, ID: src.ID, Kind: src.Kind.String(),
		Mountpoint: src.Mountpoint, Addr: src.Addr, Port: src.Port,
		Lat: geo[0] * r2d, Lon: geo[1] * r2d, Height: geo[2],
	}
	if m.statusFn != nil {
		if connected, ok := m.statusFn(src.Name); ok {
			v.Connected = &connected
		}
	}
	if m.crossFn != nil {
		if stats, ok := m.crossFn(src.ID); ok {
			v.CrossCheck = stats
		}
	}
	return v
}

func (m *Monitor) monitorSource(args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: MONITOR-SOURCE <name|all>")
	}
	if args[0] == "all" {
		all := m.registry.All()
		views := make([]sourceView, 0, len(all))
		for _, src := range all {
			views = append(views, m.sourceViewFor(src))
		}
		return views, nil
	}
	src, ok := m.registry.LookupByName(args[0])
	if !ok {
		return nil, fmt.Errorf("unknown source %q", args[0])
	}
	return m.sourceViewFor(src), nil
}

// bstaGroup is one MONITOR-BSTADISTR province bucket.
type bstaGroup struct {
	Province string       `json:"province"`
	Sources  []sourceView `json:"sources"`
}

func (m *Monitor) monitorBstaDistr(args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("usage: MONITOR-BSTADISTR <province> {physics|virtual|all}")
	}
	province, kindFilter := args[0], args[1]

	var kinds []registry.Kind
	switch kindFilter {
	case "physics":
		kinds = []registry.Kind{registry.Physical}
	case "virtual":
		kinds = []registry.Kind{registry.Virtual}
	case "all":
		kinds = []registry.Kind{registry.Physical, registry.Virtual}
	default:
		return nil, fmt.Errorf("unknown kind filter %q", kindFilter)
	}
	wantKind := func(k registry.Kind) bool {
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
		return false
	}

	group := bstaGroup{Province: province}
	for _, src := range m.registry.All() {
		if !wantKind(src.Kind) {
			continue
		}
		meta, ok := m.lookupMeta(src.Name)
		if !ok || meta.Province != province {
			continue
		}
		group.Sources = append(group.Sources, m.sourceViewFor(src))
	}
	return group, nil
}

// vrsView is one MONITOR-VRS entry: the virtual station's last
// synthesized epoch, read straight from the Observation Store rather
// than tracked separately by pkg/vrs.Engine.
type vrsView struct {
	Name       string    `json:"name"`
	ID         int       `json:"id"`
	Mountpoint string    `json:"mountpoint"`
	LastEpoch  time.Time `json:"last_epoch,omitempty"`
	SatCount   int       `json:"sat_count"`
}

func (m *Monitor) vrsViewFor(src registry.Source) vrsView {
	v := vrsView{Name: src.Name, ID: src.ID, Mountpoint: src.Mountpoint}
	if epoch := m.store.Slot(src.ID).Epoch(); epoch != nil {
		v.LastEpoch = epoch.Time
		v.SatCount = epoch.SatCount()
	}
	return v
}

func (m *Monitor) monitorVRS(args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: MONITOR-VRS <name|all>")
	}
	if args[0] == "all" {
		views := make([]vrsView, 0)
		for _, src := range m.registry.All() {
			if src.Kind == registry.Virtual {
				views = append(views, m.vrsViewFor(src))
			}
		}
		return views, nil
	}
	src, ok := m.registry.LookupByName(args[0])
	if !ok || src.Kind != registry.Virtual {
		return nil, fmt.Errorf("unknown virtual station %q", args[0])
	}
	return m.vrsViewFor(src), nil
}

// trigView is the Delaunay network's current shape, for MONITOR-TRIG.
type trigView struct {
	Vertices  int `json:"vertices"`
	Edges     int `json:"edges"`
	Triangles int `json:"triangles"`
}

func (m *Monitor) monitorTrig() (interface{}, error) {
	return trigView{
		Vertices:  len(m.network.Vertices()),
		Edges:     len(m.network.Edges()),
		Triangles: len(m.network.Triangles()),
	}, nil
}
