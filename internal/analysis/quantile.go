package analysis

import "math"

// quantile computes the linear-interpolation quantile (h = (n-1)p, the
// conventional numpy/pandas definition) over sorted data. gonum's
// stat.Quantile kinds interpolate the empirical CDF instead and disagree
// with this definition, so the interpolation is done here.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
