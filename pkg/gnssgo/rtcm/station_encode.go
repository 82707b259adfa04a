package rtcm

import (
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
)

// EncodeStationCoordinates packs sc into a framed RTCM3 message 1005
// (spec §4.8: the Agent injects a station record on every subscriber
// connect and on registry metadata change, so receivers can resolve
// antenna position without an out-of-band feed). The bit layout
// mirrors decodeStationCoordinates exactly: a 12-bit message type at
// pos=24 followed immediately by the flags/coordinate fields at
// pos=36, with no separate station-ID field in the payload — station
// ID travels on RTCMMessage.StationID, same convention as EncodeMSM.
func EncodeStationCoordinates(sc *StationCoordinates, ts time.Time) (*RTCMMessage, error) {
	buf := make([]byte, 6+24)

	pos := 24
	gnssgo.SetBitU(buf, pos, 12, uint32(RTCM_STATION_COORDINATES))
	pos += 12

	gnssgo.SetBitU(buf, pos, 6, uint32(sc.ITRF))
	pos += 6
	setBool := func(v bool) {
		if v {
			gnssgo.SetBitU(buf, pos, 1, 1)
		} else {
			gnssgo.SetBitU(buf, pos, 1, 0)
		}
		pos++
	}
	setBool(sc.GPS)
	setBool(sc.GLONASS)
	setBool(sc.Galileo)
	setBool(sc.ReferencePoint)
	setBool(sc.SingleReceiver)
	pos++ // reserved bit

	// X, Y, Z: 38-bit two's complement at 0.0001 m
	for _, v := range []float64{sc.X, sc.Y, sc.Z} {
		gnssgo.SetBitU64(buf, pos, 38, uint64(int64(v/0.0001))&(1<<38-1))
		pos += 38
	}

	payloadBytes := (pos - 24 + 7) / 8
	return frameMessage(RTCM_STATION_COORDINATES, sc.StationID, buf[3:3+payloadBytes], ts)
}
