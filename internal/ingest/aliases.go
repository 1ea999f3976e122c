// Package ingest loads raw CSV readings and resolves inconsistent headers
// into the canonical schema. Alias resolution happens once here; the engines
// downstream only ever see canonical column names.
package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AliasTable maps canonical column names to the header spellings accepted
// for them, in priority order.
type AliasTable map[string][]string

// DefaultAliases covers the header drift seen across the survey CSVs
// ("Temperature (C)" vs "Temp (C)", "ODO (mg/L)" vs "ODO mg/L", ...).
func DefaultAliases() AliasTable {
	return AliasTable{
		"ts":          {"Time", "Time hh:mm:ss", "Timestamp", "Date Time", "DateTime"},
		"temperature": {"Temperature (C)", "Temperature (°C)", "Temperature (c)", "Temperature", "Temp (C)"},
		"ph":          {"pH", "PH"},
		"odo":         {"ODO (mg/L)", "ODO mg/L", "ODO", "ODO_mg_L"},
		"salinity":    {"Salinity (ppt)", "Salinity", "Sal"},
		"depth":       {"Depth (m)", "Depth", "Total Water Column (m)"},
		"latitude":    {"Latitude", "Lat", "latitude", "lat"},
		"longitude":   {"Longitude", "Lon", "Lng", "longitude", "lon", "lng"},
	}
}

// LoadAliases reads a YAML alias file and merges it over the defaults.
// Canonical columns present in the file replace their default alias lists.
func LoadAliases(path string) (AliasTable, error) {
	table := DefaultAliases()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	var overrides AliasTable
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	for canonical, aliases := range overrides {
		if _, known := table[canonical]; !known {
			return nil, fmt.Errorf("alias file %s: unknown canonical column %q", path, canonical)
		}
		table[canonical] = aliases
	}
	return table, nil
}
