package stats

import (
	"math"
	"sort"

	"github.com/mrzor/pollscope/internal/correlate"
)

// Diagnostic limits.
const (
	LargestGapsLimit       = 10
	LargestGapMinMicros    = 200.0
	ControlSampleLimit     = 5
	ControlWindowMillis    = 2.0
	NearbyPerControlLimit  = 10
	NearControlLimitMicros = 100.0
)

// DurationStats summarises dispatch-to-completion times in microseconds.
type DurationStats struct {
	Samples int     `json:"samples" yaml:"samples"`
	P50     float64 `json:"p50_us" yaml:"p50_us"`
	P99     float64 `json:"p99_us" yaml:"p99_us"`
	P999    float64 `json:"p99_9_us" yaml:"p99_9_us"`
	Max     float64 `json:"max_us" yaml:"max_us"`
}

// Gap is one inter-completion interval and the completion that ended it.
type Gap struct {
	IntervalMicros float64 `json:"interval_us" yaml:"interval_us"`
	TimestampMs    float64 `json:"timestamp_ms" yaml:"timestamp_ms"`
}

// Nearby is a polling completion close to a control transfer.
type Nearby struct {
	OffsetMicros   float64 `json:"offset_us" yaml:"offset_us"`
	DurationMicros float64 `json:"duration_us" yaml:"duration_us"`
	Near           bool    `json:"near" yaml:"near"`
}

// ControlWindow lists polling completions within ControlWindowMillis of a
// control transfer's completion.
type ControlWindow struct {
	StartMs        float64  `json:"start_ms" yaml:"start_ms"`
	EndMs          float64  `json:"end_ms" yaml:"end_ms"`
	DurationMicros float64  `json:"duration_us" yaml:"duration_us"`
	Nearby         []Nearby `json:"nearby" yaml:"nearby"`
}

// Diagnostics is the verbose bundle used to chase jitter sources.
type Diagnostics struct {
	Durations    DurationStats   `json:"durations" yaml:"durations"`
	LargestGaps  []Gap           `json:"largest_gaps" yaml:"largest_gaps"`
	ControlCount int             `json:"control_count" yaml:"control_count"`
	Controls     []ControlWindow `json:"controls" yaml:"controls"`
}

// Durations computes duration percentiles for txs.
func Durations(txs []correlate.Transaction) DurationStats {
	if len(txs) == 0 {
		return DurationStats{}
	}
	d := make([]float64, len(txs))
	for i, tx := range txs {
		d[i] = tx.DurationMicros()
	}
	sort.Float64s(d)
	return DurationStats{
		Samples: len(d),
		P50:     Percentile(d, 50),
		P99:     Percentile(d, 99),
		P999:    Percentile(d, 99.9),
		Max:     d[len(d)-1],
	}
}

// LargestGaps returns up to limit raw intervals above LargestGapMinMicros,
// largest first. Unlike the rate figures, gaps above the polling band are
// included.
func LargestGaps(txs []correlate.Transaction, limit int) []Gap {
	sorted := SortByEnd(txs)
	var gaps []Gap
	for i := 1; i < len(sorted); i++ {
		interval := (sorted[i].End - sorted[i-1].End) * 1000
		if interval > LargestGapMinMicros {
			gaps = append(gaps, Gap{IntervalMicros: interval, TimestampMs: sorted[i].End})
		}
	}
	sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].IntervalMicros > gaps[j].IntervalMicros })
	if len(gaps) > limit {
		gaps = gaps[:limit]
	}
	return gaps
}

// ControlInterference pairs the first ControlSampleLimit control transfers
// with the polling completions around them.
func ControlInterference(polling, controls []correlate.Transaction) []ControlWindow {
	if len(controls) == 0 {
		return nil
	}
	sortedPolling := SortByEnd(polling)

	n := len(controls)
	if n > ControlSampleLimit {
		n = ControlSampleLimit
	}
	windows := make([]ControlWindow, 0, n)
	for _, ctl := range controls[:n] {
		w := ControlWindow{
			StartMs:        ctl.Start,
			EndMs:          ctl.End,
			DurationMicros: ctl.DurationMicros(),
		}

		// First completion inside the window, then walk forward.
		lo := sort.Search(len(sortedPolling), func(i int) bool {
			return sortedPolling[i].End > ctl.End-ControlWindowMillis
		})
		for i := lo; i < len(sortedPolling) && len(w.Nearby) < NearbyPerControlLimit; i++ {
			tx := sortedPolling[i]
			if math.Abs(tx.End-ctl.End) >= ControlWindowMillis {
				if tx.End > ctl.End {
					break
				}
				continue
			}
			offset := (tx.End - ctl.End) * 1000
			w.Nearby = append(w.Nearby, Nearby{
				OffsetMicros:   offset,
				DurationMicros: tx.DurationMicros(),
				Near:           math.Abs(offset) < NearControlLimitMicros,
			})
		}
		windows = append(windows, w)
	}
	return windows
}

// Diagnose builds the verbose bundle for one device.
func Diagnose(polling, controls []correlate.Transaction) *Diagnostics {
	return &Diagnostics{
		Durations:    Durations(polling),
		LargestGaps:  LargestGaps(polling, LargestGapsLimit),
		ControlCount: len(controls),
		Controls:     ControlInterference(polling, controls),
	}
}
