package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bluereef/baymonitor/internal/store"
)

// File is one parsed CSV: canonicalized rows plus what the header resolution
// decided, for reporting.
type File struct {
	Path        string
	Rows        []store.Observation
	SkippedRows int               // rows without a parseable timestamp key
	Resolved    map[string]string // canonical column -> matched header
}

// timeLayouts accepted for the key column, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"15:04:05",
}

// ReadCSV parses one survey CSV, resolving headers through the alias table.
// Non-numeric cells in numeric columns become missing values, not errors.
// Rows without a parseable timestamp are skipped and counted: the timestamp
// is the store key and cannot be absent.
func ReadCSV(path string, aliases AliasTable, source string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	if source == "" {
		source = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	resolved := resolveHeader(header, aliases)
	if _, ok := resolved["ts"]; !ok {
		return nil, fmt.Errorf("%s: no time column found (tried %v)", path, aliases["ts"])
	}

	index := make(map[string]int, len(resolved))
	for canonical, name := range resolved {
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				index[canonical] = i
				break
			}
		}
	}

	out := &File{Path: path, Rows: []store.Observation{}, Resolved: resolved}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		ts, ok := parseTime(cell(record, index, "ts"))
		if !ok {
			out.SkippedRows++
			continue
		}
		o := store.Observation{
			Ts:          ts,
			Temperature: parseNumeric(cell(record, index, "temperature")),
			PH:          parseNumeric(cell(record, index, "ph")),
			ODO:         parseNumeric(cell(record, index, "odo")),
			Salinity:    parseNumeric(cell(record, index, "salinity")),
			Depth:       parseNumeric(cell(record, index, "depth")),
			Latitude:    parseNumeric(cell(record, index, "latitude")),
			Longitude:   parseNumeric(cell(record, index, "longitude")),
			Source:      source,
		}
		out.Rows = append(out.Rows, o)
	}
	return out, nil
}

// resolveHeader picks, per canonical column, the first alias present in the
// header. Comparison ignores surrounding whitespace and case.
func resolveHeader(header []string, aliases AliasTable) map[string]string {
	present := make(map[string]string, len(header))
	for _, h := range header {
		trimmed := strings.TrimSpace(h)
		present[strings.ToLower(trimmed)] = trimmed
	}

	resolved := make(map[string]string)
	for canonical, names := range aliases {
		for _, name := range names {
			if actual, ok := present[strings.ToLower(strings.TrimSpace(name))]; ok {
				resolved[canonical] = actual
				break
			}
		}
	}
	return resolved
}

func cell(record []string, index map[string]int, canonical string) string {
	i, ok := index[canonical]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseNumeric(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
