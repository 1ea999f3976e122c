// Package pipeline is the one-shot batch clean: read raw CSVs, drop z-score
// outliers over the signal columns, emit cleaned CSVs and upsert survivors.
package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bluereef/baymonitor/internal/analysis"
	"github.com/bluereef/baymonitor/internal/ingest"
	"github.com/bluereef/baymonitor/internal/store"
)

// SignalColumns are the outlier-detection signals used for cleaning:
// temperature, pH (salinity proxy) and dissolved oxygen.
var SignalColumns = []string{"temperature", "ph", "odo"}

// DefaultThreshold is the fixed z-score cut for cleaning.
const DefaultThreshold = 3.0

// Options configures a cleaning run.
type Options struct {
	Aliases   ingest.AliasTable
	K         float64 // z-score threshold, DefaultThreshold when zero
	OutputDir string  // cleaned CSVs land here; beside the input when empty
	DryRun    bool    // skip the store write and CSV emission
	Source    string  // source label override; file basename when empty
}

// FileReport summarizes the clean of one input file.
type FileReport struct {
	Input   string `json:"input"`
	Output  string `json:"output,omitempty"`
	Total   int    `json:"total"`
	Flagged int    `json:"flagged"`
	Kept    int    `json:"kept"`
	Skipped int    `json:"skipped"`
}

// Report summarizes a whole run.
type Report struct {
	RunID  string             `json:"run_id"`
	Files  []FileReport       `json:"files"`
	Kept   int                `json:"kept"`
	Upsert store.UpsertResult `json:"upsert"`
}

// Pipeline cleans raw batches into the record store.
type Pipeline struct {
	store store.RecordStore
	opts  Options
}

// New builds a pipeline around an explicit store handle.
func New(st store.RecordStore, opts Options) *Pipeline {
	if opts.K <= 0 {
		opts.K = DefaultThreshold
	}
	if opts.Aliases == nil {
		opts.Aliases = ingest.DefaultAliases()
	}
	return &Pipeline{store: st, opts: opts}
}

// Run cleans every input CSV and upserts the surviving rows keyed by ts.
// The clean is deterministic and the write is a keyed replace, so re-running
// the same inputs leaves the store in the same final state.
func (p *Pipeline) Run(ctx context.Context, inputs []string) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Files: []FileReport{}}
	kept := make([]store.Observation, 0)

	for _, input := range inputs {
		file, err := ingest.ReadCSV(input, p.opts.Aliases, p.opts.Source)
		if err != nil {
			return nil, err
		}

		mask := analysis.ZScoreMask(file.Rows, SignalColumns, p.opts.K)
		cleaned := make([]store.Observation, 0, len(file.Rows))
		flagged := 0
		for i, o := range file.Rows {
			if mask[i] {
				flagged++
				continue
			}
			cleaned = append(cleaned, o)
		}

		fr := FileReport{
			Input:   input,
			Total:   len(file.Rows),
			Flagged: flagged,
			Kept:    len(cleaned),
			Skipped: file.SkippedRows,
		}
		if !p.opts.DryRun {
			out, err := p.writeCleaned(input, cleaned)
			if err != nil {
				return nil, err
			}
			fr.Output = out
		}
		log.Printf("%s: removed %d outliers (from %d rows to %d)", input, flagged, fr.Total, fr.Kept)

		report.Files = append(report.Files, fr)
		kept = append(kept, cleaned...)
	}

	report.Kept = len(kept)
	if p.opts.DryRun {
		log.Printf("dry-run: skipping upsert of %d rows", len(kept))
		return report, nil
	}

	result, err := p.store.UpsertMany(ctx, kept)
	if err != nil {
		return nil, err
	}
	report.Upsert = result
	log.Printf("run %s: upserted=%d modified=%d", report.RunID, result.Upserted, result.Modified)
	return report, nil
}

// cleanedColumns is the emitted CSV header, key column first.
var cleanedColumns = []string{"ts", "temperature", "ph", "odo", "salinity", "depth", "latitude", "longitude", "source"}

func (p *Pipeline) writeCleaned(input string, rows []store.Observation) (string, error) {
	dir := p.opts.OutputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	out := filepath.Join(dir, "cleaned_"+filepath.Base(input))

	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create cleaned csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cleanedColumns); err != nil {
		return "", err
	}
	for _, o := range rows {
		record := []string{
			o.Ts.UTC().Format(time.RFC3339),
			formatNumeric(o.Temperature),
			formatNumeric(o.PH),
			formatNumeric(o.ODO),
			formatNumeric(o.Salinity),
			formatNumeric(o.Depth),
			formatNumeric(o.Latitude),
			formatNumeric(o.Longitude),
			o.Source,
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return out, w.Error()
}

func formatNumeric(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
