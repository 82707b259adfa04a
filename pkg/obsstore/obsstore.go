// Package obsstore holds, per source id, the latest observation epoch,
// navigation cache, and station metadata. Readers never observe a
// half-written epoch: each source owns a fixed-size slot, atomically
// swapped on every update.
package obsstore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
)

// Observation is a single satellite/frequency measurement, the unit
// the RTCM decoder and the VRS encoder both operate on.
type Observation struct {
	Sat  int // satellite PRN/slot, constellation-tagged by Sys
	Sys  int // gnssgo.SYS_*
	Code [gnssgo.MAXFREQ]byte
	L    [gnssgo.MAXFREQ]float64 // carrier phase, cycles
	P    [gnssgo.MAXFREQ]float64 // pseudorange, meters
	D    [gnssgo.MAXFREQ]float64 // doppler, Hz
	SNR  [gnssgo.MAXFREQ]float64 // dB-Hz
	LLI  [gnssgo.MAXFREQ]byte    // loss-of-lock indicator
}

// Epoch is one observation instant for a source: up to MAXOBS
// satellites, all sharing the same Time.
type Epoch struct {
	Time time.Time
	N    int
	Obs  [gnssgo.MAXOBS]Observation
}

// SatCount returns the number of valid observations in the epoch.
func (e *Epoch) SatCount() int { return e.N }

// Frequencies enumerates the distinct frequency-band indices actually
// populated across the epoch's observations, needed by the VRS engine
// to know which bands to synthesize (spec §4.7 step 3).
func (e *Epoch) Frequencies() []int {
	seen := make(map[int]bool)
	var out []int
	for i := 0; i < e.N; i++ {
		for f := 0; f < gnssgo.MAXFREQ; f++ {
			if e.Obs[i].L[f] != 0 || e.Obs[i].P[f] != 0 {
				if !seen[f] {
					seen[f] = true
					out = append(out, f)
				}
			}
		}
	}
	return out
}

// ephBucket is a fixed-size debounce cache for one satellite's
// broadcast ephemeris: current, previous, previous-previous for
// GPS-family satellites (3 slots), current/previous only for GLONASS
// (2 slots, see spec §3 and the Open Question recorded in DESIGN.md).
type ephBucket struct {
	iode [3]int
	eph  [3]interface{}
	n    int
}

func (b *ephBucket) update(iode int, eph interface{}, slots int) (replaced bool) {
	for i := 0; i < b.n && i < slots; i++ {
		if b.iode[i] == iode {
			return false // debounce: identical IODE already cached
		}
	}
	copy(b.iode[1:slots], b.iode[:slots-1])
	copy(b.eph[1:slots], b.eph[:slots-1])
	b.iode[0] = iode
	b.eph[0] = eph
	if b.n < slots {
		b.n++
	}
	return true
}

// Navigation is the per-source ephemeris cache, keyed by satellite id.
type Navigation struct {
	mu      sync.Mutex
	buckets map[int]*ephBucket
}

func newNavigation() *Navigation {
	return &Navigation{buckets: make(map[int]*ephBucket)}
}

// Update applies the debounce rule from spec §3: newest replaces
// current only if its IODE differs from every cached slot. GLONASS
// (gnssgo.SYS_GLO) gets a 2-slot cache; every other constellation
// gets 3.
func (n *Navigation) Update(sys, sat, iode int, eph interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	slots := 3
	if sys == gnssgo.SYS_GLO {
		slots = 2
	}

	b, ok := n.buckets[sat]
	if !ok {
		b = &ephBucket{}
		n.buckets[sat] = b
	}
	return b.update(iode, eph, slots)
}

// Current returns the most recently accepted ephemeris for sat, if any.
func (n *Navigation) Current(sat int) (interface{}, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.buckets[sat]
	if !ok || b.n == 0 {
		return nil, false
	}
	return b.eph[0], true
}

// Satellites lists every satellite id with at least one cached
// ephemeris, for the console's `navidata` command.
func (n *Navigation) Satellites() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int, 0, len(n.buckets))
	for sat, b := range n.buckets {
		if b.n > 0 {
			out = append(out, sat)
		}
	}
	return out
}

// StationMetadata is written whenever a 1005/1006/1007/1008/1033
// message is decoded for a source.
type StationMetadata struct {
	ARP            gnssgo.Vec3
	AntennaOffset  gnssgo.Vec3
	AntennaDesc    string
	AntennaSerial  string
	ReceiverDesc   string
	ReceiverSerial string
}

// Slot is everything obsstore tracks for one source. The Epoch pointer
// is swapped atomically so readers — PNT, solver, VRS, agent metadata
// fan-out — never see a torn write; Navigation and Metadata have their
// own fine-grained locks since they're updated far less often and
// read field-by-field.
type Slot struct {
	epoch    atomic.Pointer[Epoch]
	Nav      *Navigation
	metaMu   sync.RWMutex
	metadata StationMetadata
}

func newSlot() *Slot {
	return &Slot{Nav: newNavigation()}
}

// PutEpoch atomically replaces the slot's observation epoch.
func (s *Slot) PutEpoch(e *Epoch) { s.epoch.Store(e) }

// Epoch returns the slot's current observation epoch, or nil if none
// has arrived yet.
func (s *Slot) Epoch() *Epoch { return s.epoch.Load() }

// PutMetadata last-writer-wins updates the slot's station metadata.
func (s *Slot) PutMetadata(m StationMetadata) {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	s.metadata = m
}

// Metadata returns the slot's current station metadata.
func (s *Slot) Metadata() StationMetadata {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return s.metadata
}

// Store is the observation store, keyed by source id. One writer per
// source (the decoder worker for that source id); many readers.
type Store struct {
	mu    sync.RWMutex
	slots map[int]*Slot
}

// New creates an empty Store.
func New() *Store {
	return &Store{slots: make(map[int]*Slot)}
}

// Slot returns the slot for id, creating it on first use — the store
// never pre-allocates for sources that never report.
func (st *Store) Slot(id int) *Slot {
	st.mu.RLock()
	s, ok := st.slots[id]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.slots[id]; ok {
		return s
	}
	s = newSlot()
	st.slots[id] = s
	return s
}

// Drop removes a source's slot entirely, called when a source is
// deleted via the control plane.
func (st *Store) Drop(id int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.slots, id)
}
