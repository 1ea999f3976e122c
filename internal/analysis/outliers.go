// Package analysis flags anomalous observations and summarizes result sets.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/bluereef/baymonitor/internal/store"
)

// Method selects the outlier test.
type Method string

const (
	MethodZScore Method = "z-score"
	MethodIQR    Method = "iqr"
)

// ParseMethod validates the method literal from a request.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodZScore:
		return MethodZScore, true
	case MethodIQR:
		return MethodIQR, true
	}
	return "", false
}

// FieldAll selects every numeric column; the outlier set is the union across
// columns.
const FieldAll = "all"

// Flagged is one anomalous row: its position in the input plus the full
// record.
type Flagged struct {
	Index  int
	Record store.Observation
}

// Detect flags anomalous rows in the given selection. Statistics (mu, sigma,
// quartiles) are computed over exactly these rows, not a global baseline.
// A field absent from the schema yields an empty result, not an error.
func Detect(rows []store.Observation, field string, method Method, k float64) ([]Flagged, error) {
	if k <= 0 || math.IsNaN(k) || math.IsInf(k, 0) {
		return nil, fmt.Errorf("threshold k must be a positive number, got %v", k)
	}

	var cols []string
	if field == FieldAll {
		cols = store.NumericColumns()
	} else {
		if _, ok := (store.Observation{}).NumericValue(field); !ok {
			return []Flagged{}, nil
		}
		cols = []string{field}
	}

	var mask []bool
	switch method {
	case MethodZScore:
		mask = ZScoreMask(rows, cols, k)
	case MethodIQR:
		mask = IQRMask(rows, cols, k)
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}

	out := make([]Flagged, 0)
	for i, flagged := range mask {
		if flagged {
			out = append(out, Flagged{Index: i, Record: rows[i]})
		}
	}
	return out, nil
}

// column extracts the present values of one column with their row indices.
func column(rows []store.Observation, col string) ([]float64, []int) {
	vals := make([]float64, 0, len(rows))
	idx := make([]int, 0, len(rows))
	for i, o := range rows {
		v, ok := o.NumericValue(col)
		if !ok || v == nil {
			continue
		}
		vals = append(vals, *v)
		idx = append(idx, i)
	}
	return vals, idx
}

// ZScoreMask marks rows where |x-mu| / sigma > k on any of the given columns.
// Sigma is the population standard deviation (divide by N). A column with
// fewer than two values or zero spread contributes no outliers.
func ZScoreMask(rows []store.Observation, cols []string, k float64) []bool {
	mask := make([]bool, len(rows))
	for _, col := range cols {
		vals, idx := column(rows, col)
		if len(vals) < 2 {
			continue
		}
		mu := stat.Mean(vals, nil)
		sigma := math.Sqrt(stat.PopVariance(vals, nil))
		if sigma == 0 || math.IsNaN(sigma) {
			continue
		}
		for i, v := range vals {
			if math.Abs((v-mu)/sigma) > k {
				mask[idx[i]] = true
			}
		}
	}
	return mask
}

// IQRMask marks rows falling outside [Q1 - k*IQR, Q3 + k*IQR] on any of the
// given columns.
func IQRMask(rows []store.Observation, cols []string, k float64) []bool {
	mask := make([]bool, len(rows))
	for _, col := range cols {
		vals, idx := column(rows, col)
		if len(vals) == 0 {
			continue
		}
		sorted := make([]float64, len(vals))
		copy(sorted, vals)
		sort.Float64s(sorted)

		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1
		lo := q1 - k*iqr
		hi := q3 + k*iqr
		for i, v := range vals {
			if v < lo || v > hi {
				mask[idx[i]] = true
			}
		}
	}
	return mask
}
