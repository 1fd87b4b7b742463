package stats

import "github.com/mrzor/pollscope/internal/correlate"

// Result holds the polling statistics of one transaction stream.
type Result struct {
	Samples            int         `json:"samples" yaml:"samples"`
	PollRateHz         float64     `json:"poll_rate_hz" yaml:"poll_rate_hz"`
	MeanIntervalMicros float64     `json:"mean_interval_us" yaml:"mean_interval_us"`
	Intervals          Percentiles `json:"intervals_us" yaml:"intervals_us"`
	Gaps               GapCounts   `json:"gaps" yaml:"gaps"`
	Histogram          []Bin       `json:"histogram" yaml:"histogram"`
}

// Compute derives the full statistics for txs. It returns
// ErrInsufficientData when no interval falls inside the polling band.
func Compute(txs []correlate.Transaction) (*Result, error) {
	intervals := Intervals(txs)
	rate, err := PollRate(intervals)
	if err != nil {
		return nil, err
	}

	return &Result{
		Samples:            len(intervals),
		PollRateHz:         rate,
		MeanIntervalMicros: Mean(intervals),
		Intervals:          ComputePercentiles(Sorted(intervals)),
		Gaps:               CountGaps(intervals),
		Histogram:          Histogram(intervals),
	}, nil
}
