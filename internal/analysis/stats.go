package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/bluereef/baymonitor/internal/store"
)

// ColumnStats is one describe()-style row for a numeric column. Pointer
// fields are nil when the statistic is undefined (empty column, single
// sample std); serialized JSON therefore never carries NaN or Infinity.
type ColumnStats struct {
	Parameter string   `json:"parameter"`
	Count     int      `json:"count"`
	Mean      *float64 `json:"mean"`
	Std       *float64 `json:"std"`
	Min       *float64 `json:"min"`
	P25       *float64 `json:"25%"`
	Median    *float64 `json:"50%"`
	P75       *float64 `json:"75%"`
	Max       *float64 `json:"max"`
}

// GroupStats is the grouped variant keyed by the source label.
type GroupStats struct {
	Group string        `json:"group"`
	Stats []ColumnStats `json:"stats"`
}

// Describe summarizes every numeric column of the result set. Missing values
// are excluded per column (pairwise-complete). An empty result set yields an
// empty slice.
func Describe(rows []store.Observation) []ColumnStats {
	items := make([]ColumnStats, 0, len(store.NumericColumns()))
	if len(rows) == 0 {
		return items
	}
	for _, col := range store.NumericColumns() {
		vals, _ := column(rows, col)
		items = append(items, describeColumn(col, vals))
	}
	return items
}

// DescribeGrouped summarizes numeric columns per source label, groups sorted
// by name.
func DescribeGrouped(rows []store.Observation) []GroupStats {
	if len(rows) == 0 {
		return []GroupStats{}
	}

	byGroup := make(map[string][]store.Observation)
	for _, o := range rows {
		byGroup[o.Source] = append(byGroup[o.Source], o)
	}
	names := make([]string, 0, len(byGroup))
	for name := range byGroup {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]GroupStats, 0, len(names))
	for _, name := range names {
		out = append(out, GroupStats{Group: name, Stats: Describe(byGroup[name])})
	}
	return out
}

func describeColumn(name string, vals []float64) ColumnStats {
	cs := ColumnStats{Parameter: name, Count: len(vals)}
	if len(vals) == 0 {
		return cs
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	cs.Mean = rounded(stat.Mean(vals, nil))
	cs.Std = rounded(stat.StdDev(vals, nil))
	cs.Min = rounded(sorted[0])
	cs.P25 = rounded(quantile(sorted, 0.25))
	cs.Median = rounded(quantile(sorted, 0.5))
	cs.P75 = rounded(quantile(sorted, 0.75))
	cs.Max = rounded(sorted[len(sorted)-1])
	return cs
}

// rounded clips to 3 decimal digits for presentation stability and converts
// NaN/Infinity to nil so they never reach the JSON boundary.
func rounded(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := math.Round(v*1000) / 1000
	return &r
}
