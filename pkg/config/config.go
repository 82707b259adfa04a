// Package config loads the engine's text configuration (spec.md §6:
// "key = value" lines, "#" introduces a comment) and the CSV fixture
// files it points to. Nothing here starts any subsystem; pkg/engine
// turns these plain records into registry entries, baselines, and
// agent users.
package config

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Error is a simple sentinel error type, matching the style of
// pkg/registry.Error and pkg/caster.Error.
type Error string

func (e Error) Error() string { return string(e) }

const ErrMissingKey = Error("config: missing required key")

// Config is the parsed top-level "key = value" file.
type Config struct {
	NtripSourcesFile     string
	BaselinesFile        string
	BaseStationsInfoFile string
	VirtualStationsFile  string
	AgentUserFile        string
	RTKConfFile          string
	PNTConfFile          string
	TraceFile            string
	MonitorPort          int
}

var keySetters = map[string]func(*Config, string) error{
	"ntrip-sources-file":      func(c *Config, v string) error { c.NtripSourcesFile = v; return nil },
	"baselines-file":          func(c *Config, v string) error { c.BaselinesFile = v; return nil },
	"base-stations-info-file": func(c *Config, v string) error { c.BaseStationsInfoFile = v; return nil },
	"virtual-stations-file":   func(c *Config, v string) error { c.VirtualStationsFile = v; return nil },
	"agent-user-file":         func(c *Config, v string) error { c.AgentUserFile = v; return nil },
	"rtk-conf-file":           func(c *Config, v string) error { c.RTKConfFile = v; return nil },
	"pnt-conf-file":           func(c *Config, v string) error { c.PNTConfFile = v; return nil },
	"trace-file":              func(c *Config, v string) error { c.TraceFile = v; return nil },
	"monitor-port": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: monitor-port: %w", err)
		}
		c.MonitorPort = n
		return nil
	},
}

// Load reads and parses the "key = value" config file at path.
// Unrecognized keys are ignored (forward compatibility), matching the
// no-panic-on-bad-input stance the rest of the data plane takes with
// network input (spec.md §7).
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		setter, ok := keySetters[key]
		if !ok {
			continue
		}
		if err := setter(cfg, value); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan: %w", err)
	}
	return cfg, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

// SourceRecord is one row of the ntrip-sources-file CSV:
// name,addr,port,user,passwd,mntpnt,lat,lon,h (lat/lon in degrees).
type SourceRecord struct {
	Name       string
	Addr       string
	Port       int
	User       string
	Passwd     string
	Mountpoint string
	Lat        float64
	Lon        float64
	Height     float64
}

// LoadSources reads the ntrip-sources-file CSV.
func LoadSources(path string) ([]SourceRecord, error) {
	rows, err := readCSV(path, 9)
	if err != nil {
		return nil, err
	}
	out := make([]SourceRecord, 0, len(rows))
	for _, row := range rows {
		port, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("config: %s: bad port %q: %w", path, row[2], err)
		}
		lat, lon, h, err := parseLatLonH(row[6], row[7], row[8])
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		out = append(out, SourceRecord{
			Name: row[0], Addr: row[1], Port: port,
			User: row[3], Passwd: row[4], Mountpoint: row[5],
			Lat: lat, Lon: lon, Height: h,
		})
	}
	return out, nil
}

// BaselineRecord is one row of the baselines-file CSV: base,rover.
type BaselineRecord struct {
	Base  string
	Rover string
}

// LoadBaselines reads the baselines-file CSV.
func LoadBaselines(path string) ([]BaselineRecord, error) {
	rows, err := readCSV(path, 2)
	if err != nil {
		return nil, err
	}
	out := make([]BaselineRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, BaselineRecord{Base: row[0], Rover: row[1]})
	}
	return out, nil
}

// BaseStationInfo is one row of the base-stations-info-file CSV:
// id,address,province,city,lat,lon,h,itrf,type.
type BaseStationInfo struct {
	ID       string
	Address  string
	Province string
	City     string
	Lat      float64
	Lon      float64
	Height   float64
	ITRF     int
	Type     string
}

// LoadBaseStationsInfo reads the base-stations-info-file CSV, the
// province/city metadata the Monitor's MONITOR-BSTADISTR command
// groups stations by (spec.md §4.9).
func LoadBaseStationsInfo(path string) ([]BaseStationInfo, error) {
	rows, err := readCSV(path, 9)
	if err != nil {
		return nil, err
	}
	out := make([]BaseStationInfo, 0, len(rows))
	for _, row := range rows {
		lat, lon, h, err := parseLatLonH(row[4], row[5], row[6])
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		itrf, err := strconv.Atoi(row[7])
		if err != nil {
			return nil, fmt.Errorf("config: %s: bad itrf %q: %w", path, row[7], err)
		}
		out = append(out, BaseStationInfo{
			ID: row[0], Address: row[1], Province: row[2], City: row[3],
			Lat: lat, Lon: lon, Height: h, ITRF: itrf, Type: row[8],
		})
	}
	return out, nil
}

// VirtualStationRecord is one row of the virtual-stations-file CSV:
// name,x,y,z (ECEF meters).
type VirtualStationRecord struct {
	Name string
	X, Y, Z float64
}

// LoadVirtualStations reads the virtual-stations-file CSV.
func LoadVirtualStations(path string) ([]VirtualStationRecord, error) {
	rows, err := readCSV(path, 4)
	if err != nil {
		return nil, err
	}
	out := make([]VirtualStationRecord, 0, len(rows))
	for _, row := range rows {
		x, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("config: %s: bad x %q: %w", path, row[1], err)
		}
		y, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("config: %s: bad y %q: %w", path, row[2], err)
		}
		z, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("config: %s: bad z %q: %w", path, row[3], err)
		}
		out = append(out, VirtualStationRecord{Name: row[0], X: x, Y: y, Z: z})
	}
	return out, nil
}

// LoadAgentUsers reads the agent-user-file CSV (user,passwd) into a
// plain name->password map; pkg/engine wraps this with agent.NewDynamicUsers
// so pkg/config never needs to import pkg/agent.
func LoadAgentUsers(path string) (map[string]string, error) {
	rows, err := readCSV(path, 2)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row[0]] = row[1]
	}
	return out, nil
}

// readCSV opens path and reads every record, requiring each to have
// exactly width fields. Blank lines and "#"-prefixed comment lines are
// skipped before csv.Reader ever sees them, since the fixture files
// share the same "#" comment convention as the top-level config file.
func readCSV(path string, width int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var filtered strings.Builder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}
		filtered.WriteString(line)
		filtered.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan %s: %w", path, err)
	}

	reader := csv.NewReader(strings.NewReader(filtered.String()))
	reader.FieldsPerRecord = width
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseLatLonH(latS, lonS, hS string) (lat, lon, h float64, err error) {
	lat, err = strconv.ParseFloat(latS, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad lat %q: %w", latS, err)
	}
	lon, err = strconv.ParseFloat(lonS, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad lon %q: %w", lonS, err)
	}
	h, err = strconv.ParseFloat(hS, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad height %q: %w", hS, err)
	}
	return lat, lon, h, nil
}
