package stats

import (
	"math"
	"sort"
)

// Percentile returns the nearest-rank percentile of an ascending slice:
// sorted[min(floor(n*p/100), n-1)]. No interpolation is performed.
// It returns 0 for an empty slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(float64(n) * p / 100))
	if idx > n-1 {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// Sorted returns an ascending copy of xs.
func Sorted(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// Percentiles is the standard percentile set reported for a distribution.
type Percentiles struct {
	P5   float64 `json:"p5" yaml:"p5"`
	P50  float64 `json:"p50" yaml:"p50"`
	P90  float64 `json:"p90" yaml:"p90"`
	P95  float64 `json:"p95" yaml:"p95"`
	P99  float64 `json:"p99" yaml:"p99"`
	P999 float64 `json:"p99_9" yaml:"p99_9"`
	Max  float64 `json:"max" yaml:"max"`
}

// ComputePercentiles fills a Percentiles set from an ascending slice.
func ComputePercentiles(sorted []float64) Percentiles {
	if len(sorted) == 0 {
		return Percentiles{}
	}
	return Percentiles{
		P5:   Percentile(sorted, 5),
		P50:  Percentile(sorted, 50),
		P90:  Percentile(sorted, 90),
		P95:  Percentile(sorted, 95),
		P99:  Percentile(sorted, 99),
		P999: Percentile(sorted, 99.9),
		Max:  sorted[len(sorted)-1],
	}
}
