package nmea

import (
	"strings"
	"testing"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/require"
)

func TestFormatGGARoundTripsThroughGoNMEA(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 34, 56, 0, time.UTC)
	line := FormatGGA(ts, 37.7749, -122.4194, 12.3, 4, 9, 0.8)

	require.True(t, strings.HasPrefix(line, "$GNGGA,"))

	parsed, err := nmea.Parse(strings.TrimSpace(line))
	require.NoError(t, err)
	require.Equal(t, nmea.TypeGGA, parsed.DataType())

	gga := parsed.(nmea.GGA)
	require.InDelta(t, 37.7749, gga.Latitude, 1e-4)
	require.InDelta(t, -122.4194, gga.Longitude, 1e-4)
	require.Equal(t, int64(4), gga.FixQuality)
	require.Equal(t, int64(9), gga.NumSatellites)
}

func TestChecksum(t *testing.T) {
	require.Equal(t, CalculateChecksum("GPGGA,,,,,,0,,,,,,,,"), "66")
}

func TestSplitSentences(t *testing.T) {
	data := "garbage\x01\x02$GNGGA,1\r\nnotasentence\n$GPRMC,2\r\n"
	lines := SplitSentences(data)
	require.Equal(t, []string{"$GNGGA,1", "$GPRMC,2"}, lines)
}
