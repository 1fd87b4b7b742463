package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrzor/pollscope/internal/analysis"
	"github.com/mrzor/pollscope/internal/stats"
)

func sampleReport() *analysis.Report {
	dev := analysis.DeviceSummary{
		Index:       1,
		Handle:      "0xA",
		Identity:    "046D:C08B",
		EstimatedHz: 1000,
		Transfers:   12345,
	}
	return &analysis.Report{
		Capture:       "trace.jsonl",
		CaptureMillis: 12345.6,
		Interrupt:     12345,
		Control:       2,
		Devices:       []analysis.DeviceSummary{dev},
		Reports: []analysis.DeviceReport{{
			Device: dev,
			Reason: "only device",
			Stats: &stats.Result{
				Samples:            12344,
				PollRateHz:         1000,
				MeanIntervalMicros: 1000,
				Intervals:          stats.Percentiles{P5: 990, P50: 1000, P95: 1010, Max: 6000},
				Gaps:               stats.GapCounts{Over200us: 12344, Over500us: 12344, Over1ms: 3, Over5ms: 1},
				Histogram: []stats.Bin{
					{Label: ">1010 Hz", Count: 10, Percent: 0.1, Outlier: true},
					{Label: "1000-1010", Count: 12000, Percent: 97.2},
					{Label: "<990 Hz", Count: 334, Percent: 2.7, Outlier: true},
				},
			},
			Diagnostics: &stats.Diagnostics{
				Durations:    stats.DurationStats{Samples: 12345, P50: 120, P99: 250, P999: 400, Max: 900},
				LargestGaps:  []stats.Gap{{IntervalMicros: 6000, TimestampMs: 42.5}},
				ControlCount: 2,
				Controls: []stats.ControlWindow{{
					StartMs:        10,
					EndMs:          10.2,
					DurationMicros: 200,
					Nearby: []stats.Nearby{
						{OffsetMicros: -50, DurationMicros: 120, Near: true},
						{OffsetMicros: 950, DurationMicros: 118},
					},
				}},
			},
		}},
	}
}

func TestTextRenderer_Report(t *testing.T) {
	var buf bytes.Buffer
	NewTextRenderer(&buf, false).Render(sampleReport())
	out := buf.String()

	assert.Contains(t, out, title)
	assert.Contains(t, out, "Device: 046D:C08B (0xA)  [only device]")
	assert.Contains(t, out, "Poll Rate:  1000 Hz    Samples: 12,344")
	assert.Contains(t, out, "Timing Distribution:")
	assert.Contains(t, out, "Interrupt: 12,345")
	assert.Contains(t, out, "░")
	assert.Contains(t, out, "▓")
	assert.Contains(t, out, "97.2%")
	assert.NotContains(t, out, "DIAGNOSTIC DATA")
}

func TestTextRenderer_Verbose(t *testing.T) {
	var buf bytes.Buffer
	NewTextRenderer(&buf, true).Render(sampleReport())
	out := buf.String()

	for _, section := range []string{"DIAGNOSTIC DATA", "GAP COUNTS", "URB DURATION", "LARGEST GAPS", "EP0 CONTROL TRANSFERS"} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "Max interval: 6000.0 μs")
	assert.Contains(t, out, "P99.9:   400.0 μs")
	assert.Contains(t, out, "EP0 at 10.000ms (duration: 200μs)")
	assert.Contains(t, out, "-050μs: 120μs ◄")
	assert.Contains(t, out, "+950μs: 118μs\n")
}

func TestTextRenderer_NotEnoughData(t *testing.T) {
	rep := sampleReport()
	rep.Reports[0].Stats = nil
	rep.Reports[0].Diagnostics = nil
	rep.Reports[0].Error = stats.ErrInsufficientData.Error()

	var buf bytes.Buffer
	NewTextRenderer(&buf, true).Render(rep)

	assert.Contains(t, buf.String(), "Not enough data to calculate poll rate.")
	assert.NotContains(t, buf.String(), "Poll Rate:")
}

func TestTextRenderer_Inactive(t *testing.T) {
	rep := sampleReport()
	rep.Inactive = []analysis.InactiveDevice{
		{Handle: "0x20", Identity: "04D9:0169"},
		{Handle: "0x30", Identity: "Unknown"},
	}

	var buf bytes.Buffer
	NewTextRenderer(&buf, false).Render(rep)
	assert.Contains(t, buf.String(), "No interrupt transfers: 04D9:0169 (0x20), Unknown (0x30)\n")
}

func TestTextRenderer_Devices(t *testing.T) {
	var buf bytes.Buffer
	NewTextRenderer(&buf, false).RenderDevices([]analysis.DeviceSummary{
		{Index: 1, Identity: "046D:C08B", EstimatedHz: 1000, Transfers: 5000},
		{Index: 2, Identity: "Unknown", Transfers: 1},
	})
	out := buf.String()

	assert.Contains(t, out, "Found devices:")
	assert.Contains(t, out, "[1] 046D:C08B     5,000 samples  ~1000 Hz")
	assert.Contains(t, out, "[2] Unknown           1 samples")
}

func TestGapBar_MinimumBlock(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextRenderer(&buf, true)
	r.gapBar(">5ms", 1, 10000)
	r.gapBar(">1ms", 0, 10000)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, 1, strings.Count(lines[0], "█"))
	assert.Equal(t, 0, strings.Count(lines[1], "█"))
}

func TestCommas(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, commas(tt.n))
	}
}

func TestPad(t *testing.T) {
	assert.Equal(t, "██  ", pad("██", 4))
	assert.Equal(t, "  μs", padLeft("μs", 4))
	assert.Equal(t, "abc", pad("abc", 2))
}
