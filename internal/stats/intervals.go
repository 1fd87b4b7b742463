package stats

import (
	"errors"
	"sort"

	"github.com/mrzor/pollscope/internal/correlate"
)

// Band limits for retained intervals, in microseconds (exclusive).
const (
	MinIntervalMicros = 0.0
	MaxIntervalMicros = 50_000.0
)

// ErrInsufficientData is returned when no interval survives filtering.
var ErrInsufficientData = errors.New("insufficient data")

// SortByEnd returns a copy of txs ordered by end timestamp. The sort is
// stable so equal timestamps keep completion order.
func SortByEnd(txs []correlate.Transaction) []correlate.Transaction {
	out := make([]correlate.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].End < out[j].End })
	return out
}

// Retained reports whether an interval belongs to the polling band.
func Retained(intervalMicros float64) bool {
	return intervalMicros > MinIntervalMicros && intervalMicros < MaxIntervalMicros
}

// Deltas returns consecutive end-timestamp differences in microseconds for
// transactions already ordered by end timestamp. Nothing is filtered.
func Deltas(sorted []correlate.Transaction) []float64 {
	if len(sorted) < 2 {
		return nil
	}
	out := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		out = append(out, (sorted[i].End-sorted[i-1].End)*1000)
	}
	return out
}

// Intervals sorts txs by end timestamp and returns the retained
// inter-completion intervals in stream order.
func Intervals(txs []correlate.Transaction) []float64 {
	var out []float64
	for _, d := range Deltas(SortByEnd(txs)) {
		if Retained(d) {
			out = append(out, d)
		}
	}
	return out
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// RateHz converts a mean interval in microseconds to a frequency.
// It returns 0 for a non-positive interval.
func RateHz(meanMicros float64) float64 {
	if meanMicros <= 0 {
		return 0
	}
	return 1_000_000 / meanMicros
}

// EstimateHz is the quick per-device estimate used to list devices:
// the rate implied by the mean retained interval, or 0 without data.
func EstimateHz(txs []correlate.Transaction) float64 {
	return RateHz(Mean(Intervals(txs)))
}

// PollRate returns the polling frequency implied by the retained intervals.
func PollRate(intervals []float64) (float64, error) {
	if len(intervals) == 0 {
		return 0, ErrInsufficientData
	}
	return RateHz(Mean(intervals)), nil
}
