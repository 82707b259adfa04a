// Package registry is the ground-truth mapping of logical station name to
// numeric id, position, and NTRIP credentials. It is the sole writer of
// source ids.
package registry

import (
	"sync"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
)

// Error is a simple sentinel error type, matching the style of
// pkg/caster.Error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrDuplicateName = Error("duplicate source name")
	ErrNotFound      = Error("source not found")
)

// Kind distinguishes a physical base station from a synthesized VRS
// station sharing the same registry.
type Kind int

const (
	Physical Kind = iota
	Virtual
)

func (k Kind) String() string {
	if k == Virtual {
		return "virtual"
	}
	return "physical"
}

// Source is the registry's record for one station, physical or virtual.
type Source struct {
	Name       string
	ID         int
	Addr       string
	Port       int
	User       string
	Passwd     string
	Mountpoint string
	Pos        gnssgo.Vec3 // ECEF, zero until first 1005/1006
	Kind       Kind
}

// Registry holds the by-name and by-id views plus a spatial index, all
// guarded by a single coarse lock — writes are rare (station
// add/del/reposition), reads are frequent, so a plain RWMutex is
// sufficient without a lock-free fast path.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Source
	byID   map[int]*Source
	nextID int
	index  SpatialIndex
}

// SpatialIndex supports nearest-neighbor and radius queries over live
// source positions. A swappable interface so a tree-based index can
// replace the linear scan without touching callers — grounded on the
// swappable-cache-behind-a-mutex shape of rtcm.RTCMParser.cache.
type SpatialIndex interface {
	Upsert(name string, pos gnssgo.Vec3)
	Remove(name string)
	Nearest(pos gnssgo.Vec3) (string, bool)
	Within(pos gnssgo.Vec3, radius float64) []string
}

// New creates an empty Registry backed by a linear-scan spatial index.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*Source),
		byID:   make(map[int]*Source),
		nextID: 1,
		index:  newLinearIndex(),
	}
}

// Add assigns the next id to info and inserts it, failing with
// ErrDuplicateName if the name is already registered.
func (r *Registry) Add(info Source) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[info.Name]; ok {
		return 0, ErrDuplicateName
	}

	info.ID = r.nextID
	r.nextID++

	src := info
	r.byName[src.Name] = &src
	r.byID[src.ID] = &src
	if src.Pos != (gnssgo.Vec3{}) {
		r.index.Upsert(src.Name, src.Pos)
	}
	return src.ID, nil
}

// Del removes name and releases its spatial-index entry. Ids are never
// reused even after deletion.
func (r *Registry) Del(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.byName[name]
	if !ok {
		return ErrNotFound
	}
	delete(r.byName, name)
	delete(r.byID, src.ID)
	r.index.Remove(name)
	return nil
}

// LookupByName returns the source registered under name, if any.
func (r *Registry) LookupByName(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.byName[name]
	if !ok {
		return Source{}, false
	}
	return *src, true
}

// LookupByID returns the source registered under id, if any.
func (r *Registry) LookupByID(id int) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.byID[id]
	if !ok {
		return Source{}, false
	}
	return *src, true
}

// UpdatePosition writes a new ECEF position for name, e.g. on decoding a
// 1005/1006 station message, and keeps the spatial index in sync.
func (r *Registry) UpdatePosition(name string, pos gnssgo.Vec3) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.byName[name]
	if !ok {
		return ErrNotFound
	}
	src.Pos = pos
	r.index.Upsert(name, pos)
	return nil
}

// Nearest returns the name of the registered source whose ECEF position
// minimizes Euclidean distance to pos, used to remap virtual mountpoints
// by proximity.
func (r *Registry) Nearest(pos gnssgo.Vec3) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Nearest(pos)
}

// Within returns the names of every registered source within radius
// (meters, ECEF straight-line) of pos.
func (r *Registry) Within(pos gnssgo.Vec3, radius float64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Within(pos, radius)
}

// Len returns the number of currently registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// All returns a snapshot of every currently registered source, used by
// the Monitor's MONITOR-SOURCE/MONITOR-BSTADISTR "all" queries.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.byName))
	for _, src := range r.byName {
		out = append(out, *src)
	}
	return out
}
