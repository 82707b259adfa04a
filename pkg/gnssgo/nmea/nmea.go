// Package nmea formats the outbound NMEA sentences the CORS data plane
// itself produces. It has no sentence parser: inbound rover GGA fixes
// are parsed by pkg/agent with github.com/adrianmo/go-nmea. This
// package covers the other direction: building a $GNGGA keepalive line
// from a station position, the way the NTRIP ingest client up-pushes
// position to a caster.
package nmea

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CalculateChecksum computes the XOR checksum of an NMEA sentence body
// (the part between '$' and '*', exclusive).
func CalculateChecksum(body string) string {
	var checksum uint8
	for i := 0; i < len(body); i++ {
		checksum ^= body[i]
	}
	return fmt.Sprintf("%02X", checksum)
}

// FormatGGA builds a $GNGGA sentence reporting lat/lon (degrees),
// height (m) and fix quality at time t, suitable for the ingest
// client's periodic position up-push (spec: NTRIP GGA keepalive).
func FormatGGA(t time.Time, lat, lon, height float64, quality, numSats int, hdop float64) string {
	latDeg, latMin, latHem := toDegMin(lat, "N", "S")
	lonDeg, lonMin, lonHem := toDegMin(lon, "E", "W")

	body := fmt.Sprintf("GNGGA,%s,%02d%08.5f,%s,%03d%08.5f,%s,%d,%02d,%.1f,%.2f,M,0.0,M,,",
		t.UTC().Format("150405.00"),
		latDeg, latMin, latHem,
		lonDeg, lonMin, lonHem,
		quality, numSats, hdop, height,
	)
	return "$" + body + "*" + CalculateChecksum(body) + "\r\n"
}

func toDegMin(v float64, pos, neg string) (int, float64, string) {
	hem := pos
	if v < 0 {
		hem = neg
		v = -v
	}
	deg := math.Floor(v)
	min := (v - deg) * 60.0
	return int(deg), min, hem
}

// SplitSentences splits a raw byte stream into candidate NMEA lines,
// to find $--GGA lines mixed in with binary RTCM3 payload: each line
// is kept from its first '$' on, and lines without a '$' are dropped.
func SplitSentences(data string) []string {
	var out []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimRight(line, "\r")
		if i := strings.IndexByte(line, '$'); i >= 0 {
			out = append(out, line[i:])
		}
	}
	return out
}
