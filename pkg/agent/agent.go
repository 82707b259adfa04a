// Package agent is the NTRIP Agent (Egress): a single accept loop that
// authenticates rover connections, binds each to a mountpoint, remaps
// the special virtual-aggregator mountpoint by proximity as GGA updates
// arrive, and fans decoded/synthesized RTCM3 bytes out to every rover
// subscribed to a mountpoint. Grounded on pkg/ingest.Client's
// context/sync.WaitGroup connection lifecycle (there run in the dial
// direction, here in the accept direction) and on
// pkg/caster.InMemorySourceService's mountpoint->subscriber fan-out,
// adapted from buffered chan []byte subscribers to raw net.Conn rovers.
package agent

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/gnssgo/rtcm"
	"github.com/bramburn/gnssgo/pkg/registry"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// VirtualMountpoint is the aggregator mountpoint re-bound by rover
// proximity (spec §4.8).
const VirtualMountpoint = "RTCM32"

const (
	navSnapshotInterval = 10 * time.Minute
	writeQueueDepth     = 32
	requestLineTimeout  = 10 * time.Second
)

// UserStore authenticates NTRIP Basic-auth credentials (name, password
// exact match per spec §4.8).
type UserStore interface {
	Authenticate(name, password string) bool
}

// StaticUsers is the simplest UserStore: an in-memory name->password
// table, the shape pkg/config's user-table loader fills in.
type StaticUsers map[string]string

func (u StaticUsers) Authenticate(name, password string) bool {
	want, ok := u[name]
	return ok && want == password
}

// DynamicUsers is a mutex-guarded UserStore, for deployments that add
// or remove NTRIP users at runtime (spec §6's `adduser`/`deluser`
// console commands) rather than loading a fixed table once at
// startup.
type DynamicUsers struct {
	mu    sync.Mutex
	users map[string]string
}

// NewDynamicUsers creates a DynamicUsers store, optionally seeded from
// an initial table (e.g. one loaded by pkg/config at startup).
func NewDynamicUsers(initial map[string]string) *DynamicUsers {
	d := &DynamicUsers{users: make(map[string]string, len(initial))}
	for name, pass := range initial {
		d.users[name] = pass
	}
	return d
}

func (d *DynamicUsers) Authenticate(name, password string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	want, ok := d.users[name]
	return ok && want == password
}

// Add registers or updates a user's password.
func (d *DynamicUsers) Add(name, password string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[name] = password
}

// Del removes a user.
func (d *DynamicUsers) Del(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, name)
}

// NavSnapshotFunc returns the current aggregate navigation snapshot as
// already-framed RTCM3 messages (1019/1020/1042/1044/1046 per spec
// §4.8), or nil if none is available yet. The Agent calls this at most
// once every ten minutes per subscribed rover, on that rover's first
// publish and then whenever ten minutes have passed since its last
// snapshot.
type NavSnapshotFunc func() []*rtcm.RTCMMessage

// rover is one authenticated NTRIP client connection.
type rover struct {
	id       string
	conn     net.Conn
	out      chan []byte
	done     chan struct{}
	stopOnce sync.Once

	mu              sync.Mutex
	mountpoint      string
	pos             gnssgo.Vec3
	posKnown        bool
	metadataChanged bool
	lastNav         time.Time
}

// stop signals the rover's writeLoop to exit. Safe to call more than
// once or concurrently (write-failure path and accept-loop teardown
// can both trigger it) — it never closes r.out, so publishAt can keep
// using its non-blocking send/drop without risking a send-on-closed-
// channel panic.
func (r *rover) stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// mountpoint is the fan-out target for one mountpoint name: every
// rover currently bound to it. Guarded by its own mutex, per spec §5's
// "Agent's mountpoint->connections map: coarse mutex".
type mountpoint struct {
	mu     sync.Mutex
	rovers map[string]*rover
}

// Agent owns the listener, the mountpoint table, and the deletion
// queue for rovers whose egress write failed.
type Agent struct {
	registry *registry.Registry
	users    UserStore
	navFn    NavSnapshotFunc
	logger   logrus.FieldLogger

	mu     sync.Mutex
	mounts map[string]*mountpoint

	deleteCh chan deletion

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type deletion struct {
	mount string
	id    string
}

// New creates an Agent. navFn may be nil (no nav snapshots emitted).
func New(reg *registry.Registry, users UserStore, navFn NavSnapshotFunc, logger logrus.FieldLogger) *Agent {
	return &Agent{
		registry: reg,
		users:    users,
		navFn:    navFn,
		logger:   logger,
		mounts:   make(map[string]*mountpoint),
		deleteCh: make(chan deletion, 64),
	}
}

// Serve accepts connections on ln until ctx is cancelled or Stop is
// called. It blocks until the accept loop exits.
func (a *Agent) Serve(ctx context.Context, ln net.Listener) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.drainDeletions()
	}()

	go func() {
		<-a.ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-a.ctx.Done():
				a.wg.Wait()
				return nil
			default:
				return err
			}
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.handleConn(conn)
		}()
	}
}

// Stop cancels the agent's context and waits for all connection
// goroutines and the deletion drainer to exit.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *Agent) drainDeletions() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case d := <-a.deleteCh:
			a.removeRover(d.mount, d.id)
		}
	}
}

func (a *Agent) removeRover(mount, id string) {
	a.mu.Lock()
	mp, ok := a.mounts[mount]
	a.mu.Unlock()
	if !ok {
		return
	}
	mp.mu.Lock()
	r, ok := mp.rovers[id]
	delete(mp.rovers, id)
	mp.mu.Unlock()
	if ok {
		r.stop()
		r.conn.Close()
	}
}

func (a *Agent) bind(mount string, r *rover) {
	a.mu.Lock()
	mp, ok := a.mounts[mount]
	if !ok {
		mp = &mountpoint{rovers: make(map[string]*rover)}
		a.mounts[mount] = mp
	}
	a.mu.Unlock()

	mp.mu.Lock()
	mp.rovers[r.id] = r
	mp.mu.Unlock()
}

func (a *Agent) unbind(mount string, id string) {
	a.mu.Lock()
	mp, ok := a.mounts[mount]
	a.mu.Unlock()
	if !ok {
		return
	}
	mp.mu.Lock()
	delete(mp.rovers, id)
	mp.mu.Unlock()
}

// handleConn owns one rover's lifetime: handshake, then concurrent
// read (GGA updates) and write (fan-out) loops until either errors.
func (a *Agent) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	mount, user, password, err := readRequestLine(conn, reader)
	if err != nil {
		a.logger.WithError(err).Debug("agent: malformed request line")
		return
	}

	if _, ok := a.registry.LookupByName(mount); !ok && mount != VirtualMountpoint {
		a.logger.WithField("mountpoint", mount).Debug("agent: unknown mountpoint, closing silently")
		return
	}

	if a.users != nil && !a.users.Authenticate(user, password) {
		conn.Write([]byte("HTTP/1.0 401 Unauthorized\r\n\r\n"))
		return
	}

	if _, err := conn.Write([]byte("ICY 200 OK\r\n\r\n")); err != nil {
		return
	}

	r := &rover{
		id:         uuid.NewString(),
		conn:       conn,
		out:        make(chan []byte, writeQueueDepth),
		done:       make(chan struct{}),
		mountpoint: mount,
	}
	a.bind(mount, r)
	defer a.unbind(r.currentMountpoint(), r.id)
	defer r.stop()

	go func() {
		select {
		case <-a.ctx.Done():
			conn.Close()
		case <-r.done:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.writeLoop(r)
	}()

	a.readLoop(r, reader)
	r.stop()
	wg.Wait()
}

// readRequestLine parses "GET /<mountpoint> HTTP/1.0" plus headers up
// to the blank line, extracting Basic-auth credentials if present
// (spec §4.8). Hand-parsed rather than net/http since the same
// connection later carries binary RTCM mixed with inbound NMEA lines,
// a shape net/http.Hijacker cannot express cleanly.
func readRequestLine(conn net.Conn, reader *bufio.Reader) (mount, user, password string, err error) {
	conn.SetReadDeadline(time.Now().Add(requestLineTimeout))
	defer conn.SetReadDeadline(time.Time{})

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", "", "", fmt.Errorf("read request line: %w", err)
	}
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "GET" || !strings.HasPrefix(fields[1], "/") {
		return "", "", "", fmt.Errorf("not an NTRIP request line: %q", line)
	}
	mount = strings.TrimPrefix(fields[1], "/")

	for {
		h, err := reader.ReadString('\n')
		if err != nil {
			return "", "", "", fmt.Errorf("read headers: %w", err)
		}
		h = strings.TrimSpace(h)
		if h == "" {
			break
		}
		const authPrefix = "Authorization: Basic "
		if strings.HasPrefix(h, authPrefix) {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(h, authPrefix))
			if err == nil {
				if parts := strings.SplitN(string(decoded), ":", 2); len(parts) == 2 {
					user, password = parts[0], parts[1]
				}
			}
		}
	}
	return mount, user, password, nil
}

func (r *rover) currentMountpoint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mountpoint
}

// readLoop consumes inbound bytes looking for NMEA GGA lines (spec
// §4.8: rover position updates and RTCM32 proximity remapping). NTRIP
// rover connections are egress-only besides GGA, so anything else is
// read and discarded.
func (a *Agent) readLoop(r *rover, reader *bufio.Reader) {
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			a.handleInboundLine(r, line)
		}
		if err != nil {
			return
		}
	}
}

func (a *Agent) handleInboundLine(r *rover, line string) {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "GGA") {
		return
	}
	parsed, err := nmea.Parse(line)
	if err != nil || parsed.DataType() != nmea.TypeGGA {
		return
	}
	gga := parsed.(nmea.GGA)

	const d2r = math.Pi / 180.0
	pos := gnssgo.Pos2Ecef(gnssgo.Vec3{gga.Latitude * d2r, gga.Longitude * d2r, 0})

	r.mu.Lock()
	r.pos = pos
	r.posKnown = true
	current := r.mountpoint
	r.mu.Unlock()

	if current != VirtualMountpoint {
		return
	}
	nearest, ok := a.registry.Nearest(pos)
	if !ok || nearest == current {
		return
	}

	a.unbind(current, r.id)
	r.mu.Lock()
	r.mountpoint = nearest
	r.metadataChanged = true
	r.mu.Unlock()
	a.bind(nearest, r)
}

// writeLoop drains r.out to the socket until r.done is signaled; any
// write error schedules the rover for deletion via the agent's
// deletion queue (spec §4.8: "Per-rover write failure -> schedule
// connection deletion").
func (a *Agent) writeLoop(r *rover) {
	for {
		select {
		case <-r.done:
			return
		case data := <-r.out:
			if _, err := r.conn.Write(data); err != nil {
				select {
				case a.deleteCh <- deletion{mount: r.currentMountpoint(), id: r.id}:
				default:
				}
				return
			}
		}
	}
}

// publishAt enqueues payload to every rover currently bound to mount,
// injecting a station record first on metadata change and a nav
// snapshot at most every ten minutes (spec §4.8 fan-out rules).
// Non-blocking per rover: a full queue drops the message rather than
// stalling the publisher, matching pkg/caster's mountPoint.Write.
func (a *Agent) publishAt(mount string, payload []byte) {
	a.mu.Lock()
	mp, ok := a.mounts[mount]
	a.mu.Unlock()
	if !ok {
		return
	}

	mp.mu.Lock()
	rovers := make([]*rover, 0, len(mp.rovers))
	for _, r := range mp.rovers {
		rovers = append(rovers, r)
	}
	mp.mu.Unlock()

	now := time.Now()
	for _, r := range rovers {
		a.prependMetadata(r, mount, now)
		select {
		case r.out <- payload:
		default:
		}
	}
}

func (a *Agent) prependMetadata(r *rover, mount string, now time.Time) {
	r.mu.Lock()
	changed := r.metadataChanged
	needNav := now.Sub(r.lastNav) >= navSnapshotInterval
	if changed {
		r.metadataChanged = false
	}
	if needNav {
		r.lastNav = now
	}
	r.mu.Unlock()

	if changed {
		if msg := a.stationRecord(mount); msg != nil {
			select {
			case r.out <- msg.Data:
			default:
			}
		}
	}
	if needNav && a.navFn != nil {
		for _, msg := range a.navFn() {
			select {
			case r.out <- msg.Data:
			default:
			}
		}
	}
}

func (a *Agent) stationRecord(mount string) *rtcm.RTCMMessage {
	src, ok := a.registry.LookupByName(mount)
	if !ok {
		return nil
	}
	sc := &rtcm.StationCoordinates{
		StationID:      uint16(src.ID),
		GPS:            true,
		SingleReceiver: true,
		X:              src.Pos[0],
		Y:              src.Pos[1],
		Z:              src.Pos[2],
	}
	msg, err := rtcm.EncodeStationCoordinates(sc, time.Now())
	if err != nil {
		a.logger.WithError(err).Warn("agent: failed to encode station record")
		return nil
	}
	return msg
}

// PublishRaw fans out RTCM bytes decoded from a physical source,
// unchanged, to mountName's subscribers (spec §4.8: "Always emit the
// incoming payload unchanged"). Wired by pkg/engine from the decoder
// pool's passthrough of ingest bytes.
func (a *Agent) PublishRaw(mountName string, data []byte) {
	a.publishAt(mountName, data)
}

// Publish implements pkg/vrs.Sink: synthetic MSM bytes for a virtual
// station are fanned out under that station's registry mountpoint name.
func (a *Agent) Publish(vstation string, msg *rtcm.RTCMMessage) {
	src, ok := a.registry.LookupByName(vstation)
	if !ok {
		return
	}
	a.publishAt(src.Mountpoint, msg.Data)
}
