package rtcm

import (
	"fmt"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
)

// msmTypeOffset returns the RTCM message type for (sys, msmType), the
// encode-side mirror of decodeMSMMessage's range-start arithmetic.
func msmTypeOffset(sys, msmType int) (int, error) {
	switch sys {
	case gnssgo.SYS_GPS:
		return MSM_GPS_RANGE_START + msmType - 1, nil
	case gnssgo.SYS_GLO:
		return MSM_GLONASS_RANGE_START + msmType - 1, nil
	case gnssgo.SYS_GAL:
		return MSM_GALILEO_RANGE_START + msmType - 1, nil
	case gnssgo.SYS_SBS:
		return MSM_SBAS_RANGE_START + msmType - 1, nil
	case gnssgo.SYS_QZS:
		return MSM_QZSS_RANGE_START + msmType - 1, nil
	case gnssgo.SYS_CMP:
		return MSM_BEIDOU_RANGE_START + msmType - 1, nil
	case gnssgo.SYS_IRN:
		return MSM_IRNSS_RANGE_START + msmType - 1, nil
	default:
		return 0, fmt.Errorf("msm encode: unsupported system %d", sys)
	}
}

// EncodeMSM packs data into a framed RTCM3 message of the MSM type
// matching its header's satellite/signal/cell masks (spec §4.7 step 4:
// "encode MSM-level RTCM3 ... default types 1076/1086/1096/1126/1116
// in high-resolution mode, 1074-series otherwise"). msmType is MSM4
// (full, standard resolution) or MSM6 (full, high resolution); MSM5/7
// additionally carry phase-range-rate.
func EncodeMSM(sys, msmType int, data *MSMData, ts time.Time) (*RTCMMessage, error) {
	msgType, err := msmTypeOffset(sys, msmType)
	if err != nil {
		return nil, err
	}
	if len(data.Satellites) == 0 {
		return nil, fmt.Errorf("msm encode: no satellites")
	}

	var satMask uint64
	for _, sat := range data.Satellites {
		satMask |= 1 << uint(sat.ID-1)
	}

	var sigMask uint32
	for _, sig := range data.Signals {
		sigMask |= 1 << uint(sig.Type-1)
	}

	numSat := countBits(satMask)
	numSig := countBits32(sigMask)
	numCells := len(data.Cells)

	// Pre-size a generous buffer; bit packing never reads past what it
	// writes, so an over-estimate just leaves trailing zero bytes that
	// the length field below does not include.
	buf := make([]byte, 6+(36+64+32+numSat*numSig+numSat*33+numCells*70)/8+16)

	// pos=24 is the first payload bit after the 24-bit frame header
	// (preamble + 6 reserved bits + 10-bit length). The message type
	// occupies the next 12 bits; decodeMSMHeader's own field layout
	// (see msm_test.go) then starts the epoch field at pos=36, with no
	// separate station-ID field inside the MSM payload — station ID
	// travels on RTCMMessage.StationID instead, set below via
	// frameMessage. This encoder mirrors that layout exactly so it
	// round-trips against decodeMSMMessage.
	pos := 24
	gnssgo.SetBitU(buf, pos, 12, uint32(msgType))
	pos += 12

	if sys == gnssgo.SYS_GLO {
		gnssgo.SetBitU(buf, pos, 27, data.Header.Epoch)
		pos += 27
	} else {
		gnssgo.SetBitU(buf, pos, 30, data.Header.Epoch)
		pos += 30
	}

	setBool := func(v bool) {
		if v {
			gnssgo.SetBitU(buf, pos, 1, 1)
		} else {
			gnssgo.SetBitU(buf, pos, 1, 0)
		}
		pos++
	}
	setBool(data.Header.MultipleMessage)
	gnssgo.SetBitU(buf, pos, 3, uint32(data.Header.IssueOfDataStation))
	pos += 3
	gnssgo.SetBitU(buf, pos, 2, uint32(data.Header.ClockSteeringIndicator))
	pos += 2
	gnssgo.SetBitU(buf, pos, 2, uint32(data.Header.ExternalClockIndicator))
	pos += 2
	setBool(data.Header.SmoothingIndicator)
	gnssgo.SetBitU(buf, pos, 3, uint32(data.Header.SmoothingInterval))
	pos += 3

	gnssgo.SetBitU64(buf, pos, 64, satMask)
	pos += 64
	gnssgo.SetBitU(buf, pos, 32, sigMask)
	pos += 32

	cellSet := make(map[int]bool, numCells)
	for _, c := range data.Cells {
		cellSet[c] = true
	}
	for i := 0; i < numSat*numSig; i++ {
		if cellSet[i] {
			gnssgo.SetBitU(buf, pos, 1, 1)
		} else {
			gnssgo.SetBitU(buf, pos, 1, 0)
		}
		pos++
	}

	extended := msmType == MSM5 || msmType == MSM7
	for _, sat := range data.Satellites {
		gnssgo.SetBitU(buf, pos, 8, uint32(sat.RangeInteger))
		pos += 8
		if extended {
			gnssgo.SetBitU(buf, pos, 4, uint32(sat.ExtendedInfo))
			pos += 4
		}
	}
	// rough holds each satellite's rough range in metres as the decoder
	// rebuilds it (integer ms plus the quantized modulo); fine
	// pseudoranges below are written relative to it.
	rough := make([]float64, 0, len(data.Satellites))
	for _, sat := range data.Satellites {
		var mod float64
		switch msmType {
		case MSM1, MSM2, MSM3:
			gnssgo.SetBitU(buf, pos, 10, uint32(sat.RangeModulo))
			mod = float64(uint32(sat.RangeModulo))
			pos += 10
		case MSM4, MSM5:
			gnssgo.SetBitU(buf, pos, 15, uint32(sat.RangeModulo*1024.0))
			mod = float64(uint32(sat.RangeModulo*1024.0)) / 1024.0
			pos += 15
		case MSM6, MSM7:
			gnssgo.SetBitU(buf, pos, 20, uint32(sat.RangeModulo*16384.0))
			mod = float64(uint32(sat.RangeModulo*16384.0)) / 16384.0
			pos += 20
		}
		rough = append(rough, (float64(sat.RangeInteger)+mod)*299792.458)
		if extended {
			rate := int32(sat.PhaseRangeRate / 0.1)
			width := 15
			if msmType == MSM7 {
				rate = int32(sat.PhaseRangeRate / 0.0001)
				width = 20
			}
			gnssgo.SetBits(buf, pos, width, rate)
			pos += width
		}
	}

	for k, sig := range data.Signals {
		fine := sig.Pseudorange - rough[data.Cells[k]/numSig]
		switch msmType {
		case MSM1, MSM3:
			gnssgo.SetBits(buf, pos, 15, int32(fine/0.1))
			pos += 15
		case MSM4, MSM5:
			gnssgo.SetBits(buf, pos, 20, int32(fine/0.01))
			pos += 20
		case MSM6, MSM7:
			gnssgo.SetBits(buf, pos, 24, int32(fine/0.0001))
			pos += 24
		}
	}
	for _, sig := range data.Signals {
		gnssgo.SetBits(buf, pos, 24, int32(sig.PhaseRange/0.0001))
		pos += 24
	}
	for _, sig := range data.Signals {
		gnssgo.SetBitU(buf, pos, 4, uint32(sig.PhaseRangeLockTime))
		pos += 4
	}
	for _, sig := range data.Signals {
		setBool(sig.HalfCycleAmbiguity)
	}
	for _, sig := range data.Signals {
		gnssgo.SetBitU(buf, pos, 6, uint32(sig.CNR))
		pos += 6
	}
	if extended {
		for _, sig := range data.Signals {
			gnssgo.SetBits(buf, pos, 15, int32(sig.PhaseRangeRate/0.0001))
			pos += 15
		}
	}

	payloadBits := pos - 24
	payloadBytes := (payloadBits + 7) / 8
	return frameMessage(msgType, data.Header.StationID, buf[3:3+payloadBytes], ts)
}

// frameMessage wraps a decoded payload in the RTCM3 preamble, 10-bit
// length, and CRC-24Q trailer (spec.md §6), producing a full on-wire
// message ready for the NTRIP Agent fan-out. The returned message's
// Length follows RTCMParser.extractMessage's convention: header+payload
// byte count, not the raw 10-bit length field alone. stationID is set
// on the returned message directly (not packed into the payload bits)
// since decodeMSMHeader reads header.StationID from msg.StationID.
func frameMessage(msgType int, stationID uint16, payload []byte, ts time.Time) (*RTCMMessage, error) {
	if len(payload) > 1023 {
		return nil, fmt.Errorf("msm encode: payload too large (%d bytes)", len(payload))
	}

	total := 3 + len(payload) + 3
	out := make([]byte, total)
	out[0] = RTCM3PREAMB
	gnssgo.SetBitU(out, 14, 10, uint32(len(payload)))
	copy(out[3:], payload)

	crc := gnssgo.Rtk_CRC24q(out, 3+len(payload))
	gnssgo.SetBitU(out, (3+len(payload))*8, 24, crc)

	return &RTCMMessage{
		Type:      msgType,
		Length:    3 + len(payload),
		Data:      out,
		Timestamp: ts,
		StationID: stationID,
	}, nil
}
