package stats

import (
	"encoding/json"
	"fmt"
	"math"
)

// Histogram shape.
const (
	HistogramBins  = 8
	middleBins     = HistogramBins - 2
	MinBinWidthUs  = 1.0
	outlierLowBin  = 0
	outlierHighBin = HistogramBins - 1
)

// Bin is one histogram bucket covering [Min, Max) microseconds.
// The last bin has Max = +Inf.
type Bin struct {
	Label   string  `json:"label" yaml:"label"`
	Min     float64 `json:"min_us" yaml:"min_us"`
	Max     float64 `json:"max_us" yaml:"max_us"`
	Count   int     `json:"count" yaml:"count"`
	Percent float64 `json:"percent" yaml:"percent"`
	Outlier bool    `json:"outlier" yaml:"outlier"`
}

// binJSON is Bin without methods, so the codecs below can embed it.
type binJSON Bin

// MarshalJSON leaves out an unbounded Max, which JSON cannot represent.
func (b Bin) MarshalJSON() ([]byte, error) {
	out := struct {
		binJSON
		Max *float64 `json:"max_us,omitempty"`
	}{binJSON: binJSON(b)}
	if !math.IsInf(b.Max, 1) {
		out.Max = &b.Max
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a missing max_us as +Inf.
func (b *Bin) UnmarshalJSON(data []byte) error {
	in := struct {
		*binJSON
		Max *float64 `json:"max_us"`
	}{binJSON: (*binJSON)(b)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	b.Max = math.Inf(1)
	if in.Max != nil {
		b.Max = *in.Max
	}
	return nil
}

// Histogram buckets intervals into 8 bins adapted to the data: one lower
// outlier bin below P5, six equal-width bins across [P5, P95) and one upper
// outlier bin from P95. Labels are frequencies, so the lower microsecond
// bound of a bin gives the higher Hz figure.
//
// Every interval lands in exactly one bin. When the minimum 1us width
// pushes the middle bins past P95, the upper outlier bin starts where the
// sixth middle bin ends.
func Histogram(intervals []float64) []Bin {
	if len(intervals) == 0 {
		return nil
	}

	sorted := Sorted(intervals)
	p5 := Percentile(sorted, 5)
	p95 := Percentile(sorted, 95)

	width := (p95 - p5) / middleBins
	clamped := false
	if width < MinBinWidthUs {
		width = MinBinWidthUs
		clamped = true
	}

	upper := p95
	if clamped {
		upper = p5 + middleBins*width
	}

	bins := make([]Bin, HistogramBins)
	bins[outlierLowBin] = Bin{
		Label:   fmt.Sprintf(">%.0f Hz", RateHz(p5)),
		Min:     0,
		Max:     p5,
		Outlier: true,
	}
	for i := 0; i < middleBins; i++ {
		lo := p5 + float64(i)*width
		hi := p5 + float64(i+1)*width
		if i == middleBins-1 {
			hi = upper
		}
		bins[i+1] = Bin{
			Label: fmt.Sprintf("%.0f-%.0f", RateHz(hi), RateHz(lo)),
			Min:   lo,
			Max:   hi,
		}
	}
	bins[outlierHighBin] = Bin{
		Label:   fmt.Sprintf("<%.0f Hz", RateHz(p95)),
		Min:     upper,
		Max:     math.Inf(1),
		Outlier: true,
	}

	for _, x := range intervals {
		bins[binIndex(bins, x)].Count++
	}

	n := float64(len(intervals))
	for i := range bins {
		bins[i].Percent = 100 * float64(bins[i].Count) / n
	}
	return bins
}

// binIndex finds the bin whose [Min, Max) range holds x. Bins are
// contiguous, so scanning the upper bounds is enough.
func binIndex(bins []Bin, x float64) int {
	for i := 0; i < len(bins)-1; i++ {
		if x < bins[i].Max {
			return i
		}
	}
	return len(bins) - 1
}
