package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKeyValueConfig(t *testing.T) {
	text := `
# comment line
ntrip-sources-file = /etc/cors/sources.csv # inline comment
baselines-file   =/etc/cors/baselines.csv
monitor-port = 2101
unknown-key = ignored
`
	cfg, err := parse(strings.NewReader(text))
	require.NoError(t, err)
	require.Equal(t, "/etc/cors/sources.csv", cfg.NtripSourcesFile)
	require.Equal(t, "/etc/cors/baselines.csv", cfg.BaselinesFile)
	require.Equal(t, 2101, cfg.MonitorPort)
}

func TestParseKeyValueConfigRejectsBadMonitorPort(t *testing.T) {
	_, err := parse(strings.NewReader("monitor-port = not-a-number\n"))
	require.Error(t, err)
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sources.csv"
	writeFile(t, path, "BASE1,10.0.0.1,2101,user1,pass1,BASE1,34.5,-118.2,100.0\n# comment\nBASE2,10.0.0.2,2101,user2,pass2,BASE2,34.6,-118.3,110.0\n")

	rows, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "BASE1", rows[0].Name)
	require.Equal(t, 2101, rows[0].Port)
	require.InDelta(t, 34.5, rows[0].Lat, 1e-9)
	require.InDelta(t, -118.2, rows[0].Lon, 1e-9)
	require.InDelta(t, 100.0, rows[0].Height, 1e-9)
}

func TestLoadBaselines(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/baselines.csv"
	writeFile(t, path, "BASE1,ROVER1\nBASE1,ROVER2\n")

	rows, err := LoadBaselines(path)
	require.NoError(t, err)
	require.Equal(t, []BaselineRecord{{Base: "BASE1", Rover: "ROVER1"}, {Base: "BASE1", Rover: "ROVER2"}}, rows)
}

func TestLoadVirtualStations(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/vsta.csv"
	writeFile(t, path, "VRS1,1111.0,2222.0,3333.0\n")

	rows, err := LoadVirtualStations(path)
	require.NoError(t, err)
	require.Equal(t, []VirtualStationRecord{{Name: "VRS1", X: 1111.0, Y: 2222.0, Z: 3333.0}}, rows)
}

func TestLoadAgentUsers(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/users.csv"
	writeFile(t, path, "alice,secret\nbob,hunter2\n")

	users, err := LoadAgentUsers(path)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"alice": "secret", "bob": "hunter2"}, users)
}

func TestLoadBaseStationsInfo(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/stations.csv"
	writeFile(t, path, "1,10.0.0.1,Ontario,Toronto,43.6,-79.4,100.0,14,CORS\n")

	rows, err := LoadBaseStationsInfo(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Ontario", rows[0].Province)
	require.Equal(t, 14, rows[0].ITRF)
}

func TestLoadSourcesRejectsWrongFieldCount(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.csv"
	writeFile(t, path, "BASE1,10.0.0.1\n")

	_, err := LoadSources(path)
	require.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
