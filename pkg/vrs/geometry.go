package vrs

import (
	"math"
	"time"

	"github.com/bramburn/gnssgo/pkg/gnssgo"
	"github.com/bramburn/gnssgo/pkg/gnssgo/rtcm"
)

// defaultHumidity is the relative humidity fraction assumed when no
// per-station weather feed exists (spec §4.7 step 3 names the
// Saastamoinen model but leaves weather input an Open Question — this
// project has no meteorological ingest, so a standard-atmosphere
// constant is used throughout, same spirit as RTKLIB's tropmodel()
// default).
const defaultHumidity = 0.7

// defaultElevation is the nominal satellite elevation angle (radians)
// used by the troposphere mapping function. This codebase has no
// orbit-propagation/ephemeris-to-position numeric kernel (those are
// treated as external collaborators, see pkg/solver.StepFunc's own
// "isolate behind stable pure-function interfaces" stance), so a true
// per-satellite elevation cannot be computed; a representative
// mid-sky elevation is used instead. Documented in DESIGN.md as a
// deliberate scope limitation, not an oversight.
const defaultElevation = 45.0 * math.Pi / 180.0

// saastamoinenDelay returns the tropospheric zenith-plus-mapped delay
// (meters) at height hgt (m above the ellipsoid), latitude lat
// (radians), and elevation el (radians), after the Saastamoinen model
// (as used in RTKLIB's tropmodel(), which pkg/gnssgo's wider family is
// ported from — grounded on that lineage even though this specific
// formula is new to this project).
func saastamoinenDelay(hgt, lat, el float64) float64 {
	if hgt < -100 || hgt > 1e4 || el <= 0 {
		return 0
	}
	if hgt < 0 {
		hgt = 0
	}

	const temp0 = 15.0
	pres := 1013.25 * math.Pow(1.0-2.2557e-5*hgt, 5.2568)
	temp := temp0 - 6.5e-3*hgt + 273.16
	e := 6.108 * defaultHumidity * math.Exp((17.15*temp-4684.0)/(temp-38.45))

	z := math.Pi/2.0 - el
	cosZ := math.Cos(z)
	if cosZ < 1e-6 {
		cosZ = 1e-6
	}

	trph := 0.0022768 * pres / (1.0 - 0.00266*math.Cos(2.0*lat) - 0.00028*hgt/1e3) / cosZ
	trpw := 0.002277 * (1255.0/temp + 0.05) * e / cosZ
	return trph + trpw
}

// tropoDiff returns the troposphere delay difference (meters) between
// a virtual station and its master, at their respective heights and a
// shared nominal elevation — the trop_v - trop_m term of spec §4.7's
// synthesis formula.
func tropoDiff(masterLat, masterHgt, vstationLat, vstationHgt float64) float64 {
	return saastamoinenDelay(vstationHgt, vstationLat, defaultElevation) -
		saastamoinenDelay(masterHgt, masterLat, defaultElevation)
}

// Broadcast-ephemeris Keplerian orbit constants (GPS only — this
// project's decoder only reconstructs rtcm.GPSEphemeris, not the
// Galileo/BeiDou/QZSS variants the original eph2pos switches mu/omega
// for; see pkg/gnssgo/rtcm/ephemeris.go).
const (
	muGPS         = 3.986005e14   // GPS gravitational constant (m^3/s^2)
	earthRotation = 7.2921151467e-5 // WGS84 earth rotation rate (rad/s)
	maxKeplerIter = 30
	keplerTol     = 1e-13
)

// satPosClock computes a GPS satellite's ECEF position and clock bias
// (seconds, relativity-corrected, no group-delay/TGD) from its
// broadcast ephemeris at time t. Grounded on
// `_examples/FengXuebin-gnssgo/src/ephemeris.go`'s `Eph2Pos`/`Eph2Clk`
// (the GPS branch: mu=MU_GPS, omge=OMGE), adapted from that package's
// `Eph`/`Gtime` shape to this project's `rtcm.GPSEphemeris`/
// `time.Time`.
func satPosClock(eph *rtcm.GPSEphemeris, t time.Time) (pos gnssgo.Vec3, clockBias float64, ok bool) {
	if eph == nil || eph.SqrtA <= 0 {
		return gnssgo.Vec3{}, 0, false
	}
	a := eph.SqrtA * eph.SqrtA

	toe := rtcm.GpsT2Time(int(eph.Week), float64(eph.Toe))
	tk := t.Sub(toe).Seconds()
	switch {
	case tk > 302400:
		tk -= 604800
	case tk < -302400:
		tk += 604800
	}

	n := math.Sqrt(muGPS/(a*a*a)) + eph.DeltaN
	m := eph.M0 + n*tk

	e := m
	for i := 0; i < maxKeplerIter; i++ {
		prev := e
		e -= (e - eph.Eccentricity*math.Sin(e) - m) / (1.0 - eph.Eccentricity*math.Cos(e))
		if math.Abs(e-prev) < keplerTol {
			break
		}
	}
	sinE, cosE := math.Sin(e), math.Cos(e)

	u := math.Atan2(math.Sqrt(1.0-eph.Eccentricity*eph.Eccentricity)*sinE, cosE-eph.Eccentricity) + eph.Omega
	r := a * (1.0 - eph.Eccentricity*cosE)
	inc := eph.Inclination + eph.IDOT*tk

	sin2u, cos2u := math.Sin(2*u), math.Cos(2*u)
	u += eph.Cus*sin2u + eph.Cuc*cos2u
	r += eph.Crs*sin2u + eph.Crc*cos2u
	inc += eph.Cis*sin2u + eph.Cic*cos2u

	x := r * math.Cos(u)
	y := r * math.Sin(u)
	cosi := math.Cos(inc)

	omega := eph.Omega0 + (eph.OmegaDot-earthRotation)*tk - earthRotation*float64(eph.Toe)
	sinO, cosO := math.Sin(omega), math.Cos(omega)

	pos[0] = x*cosO - y*cosi*sinO
	pos[1] = x*sinO + y*cosi*cosO
	pos[2] = y * math.Sin(inc)

	toc := rtcm.GpsT2Time(int(eph.Week), float64(eph.Toc))
	dtc := t.Sub(toc).Seconds()
	clockBias = eph.Af0 + eph.Af1*dtc + eph.Af2*dtc*dtc
	clockBias -= 2.0 * math.Sqrt(muGPS*a) * eph.Eccentricity * sinE / (gnssgo.CLIGHT * gnssgo.CLIGHT)

	return pos, clockBias, true
}

// geoDist is the satellite-to-station geometric range, Sagnac-effect
// corrected, grounded on
// `_examples/FengXuebin-gnssgo/src/common.go`'s `GeoDist`.
func geoDist(satPos, stationPos gnssgo.Vec3) float64 {
	dx := satPos[0] - stationPos[0]
	dy := satPos[1] - stationPos[1]
	dz := satPos[2] - stationPos[2]
	r := math.Sqrt(dx*dx + dy*dy + dz*dz)
	return r + earthRotation*(satPos[0]*stationPos[1]-satPos[1]*stationPos[0])/gnssgo.CLIGHT
}

// satRangeClock returns the satellite-to-station geometric range (m)
// and satellite clock bias (s) at approximate signal reception time
// epochTime, iterating the transmission-time correction twice (one
// more than strictly needed — RTKLIB's satpos()/pntpos() callers
// settle in a couple of iterations for this travel time, roughly
// 70-90 ms for a GNSS signal). This is the `r_*`/`dt_*` pair spec
// §4.7 step 3's synthesis formula needs; it stops at broadcast-orbit
// geometry and does not touch the excluded pntpos/rtkpos Kalman
// filter internals (spec §1, §9).
func satRangeClock(eph *rtcm.GPSEphemeris, epochTime time.Time, stationPos gnssgo.Vec3) (rangeM, clockBias float64, ok bool) {
	txTime := epochTime
	var pos gnssgo.Vec3
	for i := 0; i < 2; i++ {
		var satOK bool
		pos, clockBias, satOK = satPosClock(eph, txTime)
		if !satOK {
			return 0, 0, false
		}
		rangeM = geoDist(pos, stationPos)
		txTime = epochTime.Add(-time.Duration(rangeM / gnssgo.CLIGHT * float64(time.Second)))
	}
	return rangeM, clockBias, true
}
