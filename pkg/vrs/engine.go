package vrs

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/gnssgo/rtcm"
	"github.com/bramburn/gnssgo/pkg/obsstore"
	"github.com/bramburn/gnssgo/pkg/supervisor"
	"github.com/sirupsen/logrus"
)

// Sink is the narrow view of the NTRIP Agent the VRS Engine publishes
// synthesized MSM messages to, keeping pkg/vrs from importing
// pkg/agent (mirrors pkg/supervisor.VRSUpdater's consumer-side
// interface pattern). Keyed by the virtual station's name rather than
// this package's internal synthetic id, since that id is private to
// this Engine and has no meaning in the registry's id space.
type Sink interface {
	Publish(vstation string, msg *rtcm.RTCMMessage)
}

// defaultRidge is the ridge-regularization weight added to the
// gradient fit's normal-equations diagonal, guarding against singular
// systems when the surrounding baselines are near-collinear.
const defaultRidge = 1e-6

// Engine synthesizes a virtual reference station's observations from
// the fresh baseline RTK fixes around it (spec §4.7), implementing
// supervisor.VRSUpdater.
type Engine struct {
	store  *obsstore.Store
	sink   Sink
	logger logrus.FieldLogger

	highRes bool
	ridge   float64

	mu        sync.RWMutex
	positions map[string]gnssgo.Vec3
	ids       map[string]int
	nextID    int32
}

// NewEngine creates a VRS Engine. highRes selects the MSM6/7 message
// family (1076/1086/.../1116) over MSM4/5 (1074-series), per spec
// §4.7 step 4.
func NewEngine(store *obsstore.Store, sink Sink, logger logrus.FieldLogger, highRes bool) *Engine {
	return &Engine{
		store:     store,
		sink:      sink,
		logger:    logger,
		highRes:   highRes,
		ridge:     defaultRidge,
		positions: make(map[string]gnssgo.Vec3),
		ids:       make(map[string]int),
	}
}

// SetPosition implements supervisor.VRSUpdater.
func (e *Engine) SetPosition(vstation string, pos gnssgo.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[vstation] = pos
}

// vstationID assigns (or returns) the negative synthetic source id a
// virtual station's synthesized epochs are published under (spec
// §4.7 step 5: "emit synthetic epoch under the virtual station's
// negative id").
func (e *Engine) vstationID(vstation string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := e.ids[vstation]; ok {
		return id
	}
	id := -1 - int(atomic.AddInt32(&e.nextID, 1)-1)
	e.ids[vstation] = id
	return id
}

func vecSub(a, b gnssgo.Vec3) gnssgo.Vec3 {
	return gnssgo.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dotVec(a, b gnssgo.Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// Update implements supervisor.VRSUpdater: it is called once per fresh
// subnet sync for every virtual station attached to masterID's vertex
// (spec §4.6 step 2 / §4.7).
func (e *Engine) Update(vstation string, masterID int, masterPos gnssgo.Vec3, obs *obsstore.Epoch, baselines []supervisor.BaselineFix) {
	if obs == nil {
		return
	}
	if len(baselines) < 2 {
		// spec §4.7 guardrail: skip non-converged residual fits (m<2).
		return
	}

	e.mu.RLock()
	vstationPos, known := e.positions[vstation]
	e.mu.RUnlock()
	if !known {
		return
	}

	masterGeo := gnssgo.Ecef2Pos(masterPos)
	vstationGeo := gnssgo.Ecef2Pos(vstationPos)
	vstationENU := gnssgo.Ecef2Enu(masterPos, vecSub(vstationPos, masterPos))
	trop := tropoDiff(masterGeo[0], masterGeo[2], vstationGeo[0], vstationGeo[2])

	rows := make([]gnssgo.Vec3, len(baselines))
	for i, b := range baselines {
		rows[i] = gnssgo.Ecef2Enu(masterPos, vecSub(b.PeerPos, masterPos))
	}

	synth := &obsstore.Epoch{Time: obs.Time}
	n := 0
	for i := 0; i < obs.N && n < len(synth.Obs); i++ {
		src := obs.Obs[i]
		out := src
		anyFreq := false

		// spec §4.7 step 3's r_v-r_m and c(dtv-dtm) terms need the
		// satellite's broadcast position/clock at both stations; this
		// package only reconstructs GPS ephemerides (rtcm.GPSEphemeris),
		// so non-GPS satellites or ones the master has no ephemeris
		// for yet fall back to the trop+ambiguity-gradient-only
		// correction below.
		var geomMeters float64
		var haveGeometry bool
		if src.Sys == gnssgo.SYS_GPS {
			if eph, ok := e.store.Slot(masterID).Nav.Current(src.Sat); ok {
				if gpsEph, ok := eph.(*rtcm.GPSEphemeris); ok {
					rm, dtm, okm := satRangeClock(gpsEph, obs.Time, masterPos)
					rv, dtv, okv := satRangeClock(gpsEph, obs.Time, vstationPos)
					if okm && okv {
						geomMeters = (rv - rm) + gnssgo.CLIGHT*(dtv-dtm)
						haveGeometry = true
					}
				}
			}
		}

		for f := 0; f < gnssgo.MAXFREQ; f++ {
			if src.L[f] == 0 && src.P[f] == 0 {
				continue
			}
			freqHz := gnssgo.CarrierFreq(f)
			if freqHz == 0 {
				// spec §4.7 guardrail: skip bands this engine has no
				// wavelength for.
				out.L[f] = 0
				out.P[f] = 0
				continue
			}

			var validRows []gnssgo.Vec3
			var targets []float64
			for bi, b := range baselines {
				if b.Solution == nil {
					continue
				}
				perFreq, ok := b.Solution.Residuals[src.Sat]
				if !ok {
					continue
				}
				residual, ok := perFreq[f]
				if !ok {
					continue
				}
				validRows = append(validRows, rows[bi])
				targets = append(targets, residual)
			}

			gradient, ok := fitGradient(validRows, targets, e.ridge)
			if !ok {
				// spec §4.7 guardrail: skip absent satellites/bands
				// whose residual fit did not converge.
				out.L[f] = 0
				out.P[f] = 0
				continue
			}

			wavelength := gnssgo.CLIGHT / freqHz
			meterTerm := trop
			if haveGeometry {
				meterTerm += geomMeters
			}
			correctionCycles := dotVec(gradient, vstationENU) + meterTerm/wavelength
			out.L[f] = src.L[f] + correctionCycles
			out.P[f] = src.P[f] + correctionCycles*wavelength
			anyFreq = true
		}

		if !anyFreq {
			continue
		}
		synth.Obs[n] = out
		n++
	}
	synth.N = n
	if n == 0 {
		return
	}

	vid := e.vstationID(vstation)
	e.store.Slot(vid).PutEpoch(synth)

	if e.sink == nil {
		return
	}
	msmType := rtcm.MSM4
	if e.highRes {
		msmType = rtcm.MSM6
	}
	msmData := buildMSMData(synth, uint16(masterID))
	msg, err := rtcm.EncodeMSM(gnssgo.SYS_GPS, msmType, msmData, synth.Time)
	if err != nil {
		e.logger.WithError(err).WithField("vstation", vstation).Warn("vrs: failed to encode synthetic MSM")
		return
	}
	e.sink.Publish(vstation, msg)
}

// buildMSMData assembles an MSMData frame from a synthesized epoch.
// Satellite and signal (frequency-band) entries are emitted in
// ascending ID order; every present (satellite, band) pair is a cell,
// indexed satellite-major over the emitted bands, the numbering
// rtcm.EncodeMSM's cell mask uses.
func buildMSMData(epoch *obsstore.Epoch, stationID uint16) *rtcm.MSMData {
	satSet := make(map[int]obsstore.Observation)
	freqSet := make(map[int]bool)
	for i := 0; i < epoch.N; i++ {
		o := epoch.Obs[i]
		satSet[o.Sat] = o
		for f := 0; f < gnssgo.MAXFREQ; f++ {
			if o.L[f] != 0 || o.P[f] != 0 {
				freqSet[f] = true
			}
		}
	}

	sats := make([]int, 0, len(satSet))
	for s := range satSet {
		sats = append(sats, s)
	}
	sort.Ints(sats)

	freqs := make([]int, 0, len(freqSet))
	for f := range freqSet {
		freqs = append(freqs, f)
	}
	sort.Ints(freqs)

	data := &rtcm.MSMData{Header: rtcm.MSMHeader{StationID: stationID}}
	const msPerCycle = gnssgo.CLIGHT / 1000.0

	for si, sat := range sats {
		o := satSet[sat]
		var rangeM float64
		for _, f := range freqs {
			if o.P[f] != 0 {
				rangeM = o.P[f]
				break
			}
		}
		whole := float64(int64(rangeM / msPerCycle))
		data.Satellites = append(data.Satellites, rtcm.MSMSatellite{
			ID:           sat,
			RangeInteger: uint8(whole),
			RangeModulo:  rangeM/msPerCycle - whole,
		})

		for fi, f := range freqs {
			if o.L[f] == 0 && o.P[f] == 0 {
				continue
			}
			data.Cells = append(data.Cells, si*len(freqs)+fi)
			data.Signals = append(data.Signals, rtcm.MSMSignal{
				Type:        f + 1,
				Pseudorange: o.P[f],
				PhaseRange:  o.L[f],
				CNR:         o.SNR[f],
			})
		}
	}

	return data
}
