// Package decoderpool is the RTCM Decoder Pool: one persistent decoder
// per ingest source, fanning decoded messages out to the observation
// store, registry, and triangulation network.
package decoderpool

import (
	"sync"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/gnssgo/rtcm"
	gognssrtcm "github.com/go-gnss/rtcm"
	"github.com/sirupsen/logrus"
)

// StationPosition is the fan-out payload for RTCM 1005/1006.
type StationPosition struct {
	StationID int
	ECEF      [3]float64
}

// StationDescriptor is the fan-out payload for RTCM 1007/1008/1033.
type StationDescriptor struct {
	StationID      int
	AntennaType    string
	AntennaSerial  string
	ReceiverType   string
	ReceiverSerial string
}

// Callbacks are invoked by a Decoder as it classifies incoming
// messages; any of them may be nil.
type Callbacks struct {
	Observation        func(sourceID, sys int, obs *rtcm.ObservationData)
	Navigation         func(sourceID int, sys, sat, iode int, eph interface{})
	StationPosition    func(sourceID int, pos StationPosition)
	StationDescriptor  func(sourceID int, desc StationDescriptor)
	Other              func(sourceID int, msg *rtcm.RTCMMessage, decoded interface{})
}

// Decoder wraps one rtcm.RTCMParser for a single source, persisting
// its partial-frame buffer across calls to Feed — the teacher's own
// parser was stateless per call, built fresh every time; here one
// Decoder lives for the lifetime of the source's connection.
type Decoder struct {
	sourceID int
	parser   *rtcm.RTCMParser
	cb       Callbacks
	logger   logrus.FieldLogger

	statsMu    sync.Mutex
	crossStats map[int]int
}

func newDecoder(sourceID int, cb Callbacks, logger logrus.FieldLogger) *Decoder {
	return &Decoder{
		sourceID:   sourceID,
		parser:     rtcm.NewRTCMParser(),
		cb:         cb,
		logger:     logger,
		crossStats: make(map[int]int),
	}
}

// Feed appends data to the decoder's internal buffer and dispatches
// every complete message it yields.
func (d *Decoder) Feed(data []byte) {
	d.crossCheck(data)

	messages, _, err := d.parser.ParseRTCMMessage(data)
	if err != nil {
		d.logger.WithField("source", d.sourceID).WithError(err).Debug("RTCM framing error")
	}
	for i := range messages {
		d.dispatch(&messages[i])
	}
}

// crossCheck runs an independent decoder (go-gnss/rtcm) over the same
// bytes purely for message-type statistics exposed to the Monitor — a
// cheap sanity check that our own bit-exact framing agrees with a
// second implementation. It never drives the fan-out callbacks.
func (d *Decoder) crossCheck(data []byte) {
	msgs, err := gognssrtcm.ParseMessages(data)
	if err != nil {
		return
	}
	d.statsMu.Lock()
	for _, m := range msgs {
		d.crossStats[m.Number()]++
	}
	d.statsMu.Unlock()
}

// CrossCheckStats returns the go-gnss/rtcm message-type tally
// accumulated so far.
func (d *Decoder) CrossCheckStats() map[int]int {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	out := make(map[int]int, len(d.crossStats))
	for k, v := range d.crossStats {
		out[k] = v
	}
	return out
}

func (d *Decoder) dispatch(msg *rtcm.RTCMMessage) {
	if !rtcm.ValidateCRC(msg) {
		d.logger.WithFields(logrus.Fields{"source": d.sourceID, "type": msg.Type}).
			Warn("RTCM CRC mismatch, dropping message")
		return
	}

	decoded, err := rtcm.DecodeRTCMMessage(msg)
	if err != nil {
		if d.cb.Other != nil {
			d.cb.Other(d.sourceID, msg, nil)
		}
		return
	}

	switch v := decoded.(type) {
	case *rtcm.ObservationData:
		if d.cb.Observation != nil {
			d.cb.Observation(d.sourceID, legacySys(msg.Type), v)
		}
	case *rtcm.StationCoordinates:
		if d.cb.StationPosition != nil {
			d.cb.StationPosition(d.sourceID, StationPosition{
				StationID: int(v.StationID),
				ECEF:      [3]float64{v.X, v.Y, v.Z},
			})
		}
	case *rtcm.StationCoordinatesAlt:
		if d.cb.StationPosition != nil {
			d.cb.StationPosition(d.sourceID, StationPosition{
				StationID: int(v.StationID),
				ECEF:      [3]float64{v.X, v.Y, v.Z},
			})
		}
	case *rtcm.AntennaDescriptor:
		if d.cb.StationDescriptor != nil {
			d.cb.StationDescriptor(d.sourceID, StationDescriptor{
				StationID:   int(v.StationID),
				AntennaType: v.AntennaType,
			})
		}
	case *rtcm.AntennaDescriptorSerial:
		if d.cb.StationDescriptor != nil {
			d.cb.StationDescriptor(d.sourceID, StationDescriptor{
				StationID:     int(v.StationID),
				AntennaType:   v.AntennaType,
				AntennaSerial: v.AntennaSerial,
			})
		}
	case *rtcm.ReceiverInfo:
		if d.cb.StationDescriptor != nil {
			d.cb.StationDescriptor(d.sourceID, StationDescriptor{
				StationID:      int(v.StationID),
				AntennaType:    v.AntennaType,
				AntennaSerial:  v.AntennaSerial,
				ReceiverType:   v.ReceiverType,
				ReceiverSerial: v.ReceiverSerial,
			})
		}
	case *rtcm.GPSEphemeris:
		if d.cb.Navigation != nil {
			d.cb.Navigation(d.sourceID, gnssgo.SYS_GPS, int(v.SatID), int(v.IODE), v)
		}
	case *rtcm.GLONASSEphemeris:
		if d.cb.Navigation != nil {
			d.cb.Navigation(d.sourceID, gnssgo.SYS_GLO, int(v.SatID), int(v.Tb), v)
		}
	case *rtcm.MSMData:
		if d.cb.Observation != nil {
			d.cb.Observation(d.sourceID, msmSys(v.Header.GNSSID), msmToObservationData(v, msg.Timestamp))
		}
	default:
		if d.cb.Other != nil {
			d.cb.Other(d.sourceID, msg, decoded)
		}
	}
}

// legacySys resolves the gnssgo constellation constant for a legacy
// observation message type: 1001-1004 are GPS-only, 1009-1012 are
// GLONASS-only (RTCM 10403.3 §3.5.1/3.5.2).
func legacySys(msgType int) int {
	switch {
	case msgType >= rtcm.RTCM_MSG_1001 && msgType <= rtcm.RTCM_MSG_1004:
		return gnssgo.SYS_GPS
	case msgType >= rtcm.RTCM_MSG_1009 && msgType <= rtcm.RTCM_MSG_1012:
		return gnssgo.SYS_GLO
	default:
		return gnssgo.SYS_GPS
	}
}

// msmSys maps an MSM header's GNSSID (0:GPS, 1:GLONASS, 2:Galileo,
// 3:SBAS, 4:QZSS, 5:BeiDou, 6:IRNSS) to its gnssgo constellation
// constant.
func msmSys(gnssID int) int {
	switch gnssID {
	case 0:
		return gnssgo.SYS_GPS
	case 1:
		return gnssgo.SYS_GLO
	case 2:
		return gnssgo.SYS_GAL
	case 3:
		return gnssgo.SYS_SBS
	case 4:
		return gnssgo.SYS_QZS
	case 5:
		return gnssgo.SYS_CMP
	case 6:
		return gnssgo.SYS_IRN
	default:
		return gnssgo.SYS_GPS
	}
}

// msmToObservationData adapts an MSMData decode into the legacy
// ObservationData shape the rest of the pipeline (obsstore) consumes,
// pairing satellites with their signals in mask order. MSM's true
// satellite/signal cell mask is not fully unpacked here (the teacher's
// own decodeMSMMessage already collapses it to parallel Satellites/
// Signals slices without per-cell satellite indices); this performs a
// best-effort sequential pairing that gives each satellite an equal
// run of len(Signals)/len(Satellites) consecutive signals (at least
// one), sufficient for the observation store's per-epoch satellite
// presence bookkeeping.
func msmToObservationData(msm *rtcm.MSMData, ts time.Time) *rtcm.ObservationData {
	n := len(msm.Satellites)
	obs := &rtcm.ObservationData{
		Time:      ts,
		StationID: int(msm.Header.StationID),
		N:         n,
		SatID:     make([]int, n),
		Code:      make([][]byte, n),
		L:         make([][]float64, n),
		P:         make([][]float64, n),
		D:         make([][]float64, n),
		SNR:       make([][]float64, n),
		LLI:       make([][]byte, n),
	}
	signalsPerSat := 1
	if n > 0 && len(msm.Signals) > n {
		signalsPerSat = len(msm.Signals) / n
	}
	for i := 0; i < n; i++ {
		obs.SatID[i] = msm.Satellites[i].ID
		lo := i * signalsPerSat
		hi := lo + signalsPerSat
		if hi > len(msm.Signals) {
			hi = len(msm.Signals)
		}
		for _, sig := range msm.Signals[lo:hi] {
			obs.Code[i] = append(obs.Code[i], byte(sig.Code))
			obs.L[i] = append(obs.L[i], sig.PhaseRange)
			obs.P[i] = append(obs.P[i], sig.Pseudorange)
			obs.D[i] = append(obs.D[i], sig.PhaseRangeRate)
			obs.SNR[i] = append(obs.SNR[i], sig.CNR)
			obs.LLI[i] = append(obs.LLI[i], 0)
		}
	}
	return obs
}

// Pool owns one Decoder per active source.
type Pool struct {
	cb     Callbacks
	logger logrus.FieldLogger

	mu       sync.RWMutex
	decoders map[int]*Decoder
}

// New creates an empty decoder Pool; cb is shared by every source's
// Decoder.
func New(cb Callbacks, logger logrus.FieldLogger) *Pool {
	return &Pool{
		cb:       cb,
		logger:   logger,
		decoders: make(map[int]*Decoder),
	}
}

// AddSource creates a persistent decoder for sourceID, replacing any
// existing one.
func (p *Pool) AddSource(sourceID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decoders[sourceID] = newDecoder(sourceID, p.cb, p.logger)
}

// DelSource drops sourceID's decoder and its buffered partial frame.
func (p *Pool) DelSource(sourceID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.decoders, sourceID)
}

// Feed routes data to sourceID's decoder. It is a no-op if the source
// was never added (or was already removed).
func (p *Pool) Feed(sourceID int, data []byte) {
	p.mu.RLock()
	d, ok := p.decoders[sourceID]
	p.mu.RUnlock()
	if !ok {
		return
	}
	d.Feed(data)
}

// Len reports how many sources currently have a live decoder.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.decoders)
}

// CrossCheckStats returns sourceID's independently-cross-checked
// message-type tally, for the Monitor's MONITOR-BSTADISTR response.
func (p *Pool) CrossCheckStats(sourceID int) (map[int]int, bool) {
	p.mu.RLock()
	d, ok := p.decoders[sourceID]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return d.CrossCheckStats(), true
}
