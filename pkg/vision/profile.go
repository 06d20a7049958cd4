package vision

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ColumnMeans returns the mean intensity of each column in [x0, x1) over the
// rows [y0, y1).
func ColumnMeans(g *Gray, x0, x1, y0, y1 int) []float64 {
	x0, x1 = clampRange(x0, x1, g.W)
	y0, y1 = clampRange(y0, y1, g.H)
	out := make([]float64, x1-x0)
	rows := float64(y1 - y0)
	if rows == 0 {
		return out
	}
	for y := y0; y < y1; y++ {
		base := y * g.W
		for x := x0; x < x1; x++ {
			out[x-x0] += g.Pix[base+x]
		}
	}
	for i := range out {
		out[i] /= rows
	}
	return out
}

// RowMeans returns the mean intensity of each row in [y0, y1) over the
// columns [x0, x1).
func RowMeans(g *Gray, x0, x1, y0, y1 int) []float64 {
	x0, x1 = clampRange(x0, x1, g.W)
	y0, y1 = clampRange(y0, y1, g.H)
	out := make([]float64, y1-y0)
	cols := float64(x1 - x0)
	if cols == 0 {
		return out
	}
	for y := y0; y < y1; y++ {
		base := y * g.W
		var sum float64
		for x := x0; x < x1; x++ {
			sum += g.Pix[base+x]
		}
		out[y-y0] = sum / cols
	}
	return out
}

// Smooth returns a centered moving average with the given radius.
func Smooth(values []float64, radius int) []float64 {
	out := make([]float64, len(values))
	if radius <= 0 {
		copy(out, values)
		return out
	}
	prefix := make([]float64, len(values)+1)
	for i, v := range values {
		prefix[i+1] = prefix[i] + v
	}
	for i := range values {
		lo := i - radius
		if lo < 0 {
			lo = 0
		}
		hi := i + radius + 1
		if hi > len(values) {
			hi = len(values)
		}
		out[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}
	return out
}

// Median returns the median of values without modifying them.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// Percentile returns the p-th quantile (0..1) of values.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// StdDev returns the sample standard deviation of g's intensities.
func (g *Gray) StdDev() float64 {
	if len(g.Pix) < 2 {
		return 0
	}
	return stat.StdDev(g.Pix, nil)
}

func clampRange(lo, hi, limit int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > limit {
		hi = limit
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
