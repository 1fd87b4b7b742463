package stats

// GapThresholds are the interval limits, in microseconds, above which a
// gap is counted.
var GapThresholds = [4]float64{200, 500, 1000, 5000}

// GapCounts holds how many intervals strictly exceed each threshold.
// Buckets overlap: an interval above 5ms is counted in all four.
type GapCounts struct {
	Over200us int `json:"over_200us" yaml:"over_200us"`
	Over500us int `json:"over_500us" yaml:"over_500us"`
	Over1ms   int `json:"over_1ms" yaml:"over_1ms"`
	Over5ms   int `json:"over_5ms" yaml:"over_5ms"`
}

// Counts returns the buckets in threshold order.
func (g GapCounts) Counts() [4]int {
	return [4]int{g.Over200us, g.Over500us, g.Over1ms, g.Over5ms}
}

// CountGaps counts intervals above each of GapThresholds.
func CountGaps(intervals []float64) GapCounts {
	var g GapCounts
	for _, x := range intervals {
		if x > GapThresholds[0] {
			g.Over200us++
		}
		if x > GapThresholds[1] {
			g.Over500us++
		}
		if x > GapThresholds[2] {
			g.Over1ms++
		}
		if x > GapThresholds[3] {
			g.Over5ms++
		}
	}
	return g
}
