// Package gnssgo holds the narrow, dependency-free primitives shared by
// every CORS component: RTCM bit-level access, CRC-24Q, and the
// ECEF/geodetic/ENU conversions needed by the triangulation and VRS
// packages. It deliberately excludes the PNT/RTK numeric kernels, which
// this project treats as external collaborators (see SPEC_FULL.md).
package gnssgo

// Satellite system identifiers, as used throughout RTCM3 and the rest
// of the data plane to tag an observation or ephemeris by constellation.
const (
	SYS_NONE = 0x00
	SYS_GPS  = 0x01
	SYS_SBS  = 0x02
	SYS_GLO  = 0x04
	SYS_GAL  = 0x08
	SYS_QZS  = 0x10
	SYS_CMP  = 0x20 // BeiDou
	SYS_IRN  = 0x40 // IRNSS/NavIC
	SYS_ALL  = 0xFF
)

// MAXOBS bounds the number of satellite observations carried in a
// single Observation Epoch slot (spec.md §3).
const MAXOBS = 96

// MAXFREQ bounds the number of carrier frequencies tracked per
// satellite in an observation record.
const MAXFREQ = 7

// CLIGHT is the speed of light in vacuum (m/s), used by the VRS engine
// to convert ranges/clocks into phase cycles.
const CLIGHT = 299792458.0

// Physical constants for the WGS84 ellipsoid (RE: semi-major axis,
// FE: flattening), used by the ECEF<->geodetic conversions below.
const (
	RE_WGS84 = 6378137.0
	FE_WGS84 = 1.0 / 298.257223563
)

// Nominal L-band carrier frequencies (Hz), indexed the same way as
// Observation.L/.P/.SNR's frequency-band axis (0:L1, 1:L2, 2:L5). The
// VRS engine uses these to convert its meter-domain corrections into
// phase cycles; this project carries no per-satellite signal-to-
// frequency table, so every constellation is treated as GPS-band for
// this purpose (see DESIGN.md).
const (
	FREQ_L1 = 1.57542e9
	FREQ_L2 = 1.22760e9
	FREQ_L5 = 1.17645e9
)

// CarrierFreq returns the nominal carrier frequency for band index f,
// or 0 if f is out of the known range.
func CarrierFreq(f int) float64 {
	switch f {
	case 0:
		return FREQ_L1
	case 1:
		return FREQ_L2
	case 2:
		return FREQ_L5
	default:
		return 0
	}
}
