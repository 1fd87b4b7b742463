package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mrzor/pollscope/internal/analysis"
	"github.com/mrzor/pollscope/internal/stats"
)

const (
	ruleWidth    = 60
	histBarWidth = 35
	gapBarWidth  = 40
	title        = "P O L L S C O P E"
)

// TextRenderer writes the console report.
type TextRenderer struct {
	w       io.Writer
	verbose bool
}

// NewTextRenderer creates a renderer writing to w.
func NewTextRenderer(w io.Writer, verbose bool) *TextRenderer {
	return &TextRenderer{w: w, verbose: verbose}
}

// RenderDevices prints the numbered device list used for selection.
func (r *TextRenderer) RenderDevices(devices []analysis.DeviceSummary) {
	r.println()
	r.println("  Found devices:")
	r.println()
	for _, d := range devices {
		hz := ""
		if d.EstimatedHz > 0 {
			hz = fmt.Sprintf("~%.0f Hz", d.EstimatedHz)
		}
		r.printf("    [%d] %-12s %6s samples  %s\n", d.Index, d.Identity, commas(d.Transfers), hz)
	}
	r.println()
}

// Render prints the full report.
func (r *TextRenderer) Render(rep *analysis.Report) {
	r.println()
	r.printf("  Capture: %s    %.1f ms    Interrupt: %s    Control: %s\n",
		rep.Capture, rep.CaptureMillis, commas(rep.Interrupt), commas(rep.Control))
	if len(rep.Inactive) > 0 {
		names := make([]string, len(rep.Inactive))
		for i, d := range rep.Inactive {
			names[i] = fmt.Sprintf("%s (%s)", d.Identity, d.Handle)
		}
		r.printf("  No interrupt transfers: %s\n", strings.Join(names, ", "))
	}

	for i := range rep.Reports {
		r.renderDevice(&rep.Reports[i])
	}
}

func (r *TextRenderer) renderDevice(dr *analysis.DeviceReport) {
	r.println()
	r.rule('═')
	r.centered(title)
	r.rule('═')

	line := fmt.Sprintf("  Device: %s (%s)", dr.Device.Identity, dr.Device.Handle)
	if dr.Reason != "" {
		line += "  [" + dr.Reason + "]"
	}
	r.println(line)
	for _, issue := range dr.Device.Issues {
		r.printf("  ! %s\n", issue)
	}
	r.println()

	if dr.Stats == nil {
		r.println("  Not enough data to calculate poll rate.")
		r.rule('═')
		return
	}

	res := dr.Stats
	r.printf("  Poll Rate:  %.0f Hz    Samples: %s\n", res.PollRateHz, commas(res.Samples))
	r.println()
	r.println("  Timing Distribution:")
	r.println()
	r.histogram(res.Histogram)
	r.rule('═')
	r.println()

	if r.verbose {
		r.diagnostics(res, dr.Diagnostics)
	}
}

func (r *TextRenderer) histogram(bins []stats.Bin) {
	maxCount := 0
	for _, b := range bins {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}

	for _, b := range bins {
		barLen := 0
		if maxCount > 0 {
			barLen = histBarWidth * b.Count / maxCount
		}
		ch := "▓"
		if b.Outlier {
			ch = "░"
		}
		r.printf("  %12s %s %5.1f%%\n", b.Label, pad(strings.Repeat(ch, barLen), histBarWidth), b.Percent)
	}
}

func (r *TextRenderer) diagnostics(res *stats.Result, diag *stats.Diagnostics) {
	r.println("DIAGNOSTIC DATA")
	r.rule('═')

	r.println()
	r.println("GAP COUNTS")
	r.rule('─')
	counts := res.Gaps.Counts()
	maxGap := 1
	for _, c := range counts {
		if c > maxGap {
			maxGap = c
		}
	}
	for i, label := range []string{">200μs", ">500μs", ">1ms", ">5ms"} {
		r.gapBar(label, counts[i], maxGap)
	}
	r.println()
	r.printf("  Max interval: %.1f μs\n", res.Intervals.Max)

	if diag == nil {
		r.println()
		return
	}

	r.println()
	r.println("URB DURATION (Dispatch → Complete)")
	r.rule('─')
	r.printf("  Samples: %s\n", commas(diag.Durations.Samples))
	r.printf("  P50:     %.1f μs\n", diag.Durations.P50)
	r.printf("  P99:     %.1f μs\n", diag.Durations.P99)
	r.printf("  P99.9:   %.1f μs\n", diag.Durations.P999)
	r.printf("  Max:     %.1f μs\n", diag.Durations.Max)

	if len(diag.LargestGaps) > 0 {
		r.println()
		r.println("LARGEST GAPS")
		r.rule('─')
		for _, g := range diag.LargestGaps {
			r.printf("  %10.1f μs  at  %.3f ms\n", g.IntervalMicros, g.TimestampMs)
		}
	}

	if diag.ControlCount > 0 {
		r.println()
		r.println("EP0 CONTROL TRANSFERS")
		r.rule('─')
		r.printf("  Count: %d\n", diag.ControlCount)
		for _, w := range diag.Controls {
			r.println()
			r.printf("  EP0 at %.3fms (duration: %.0fμs)\n", w.StartMs, w.DurationMicros)
			for _, n := range w.Nearby {
				marker := ""
				if n.Near {
					marker = " ◄"
				}
				r.printf("    %+04.0fμs: %.0fμs%s\n", n.OffsetMicros, n.DurationMicros, marker)
			}
		}
	}
	r.println()
}

// gapBar draws a bar scaled to maxCount; any nonzero count gets at least
// one block.
func (r *TextRenderer) gapBar(label string, count, maxCount int) {
	barLen := 0
	if maxCount > 0 {
		barLen = gapBarWidth * count / maxCount
	}
	if count > 0 && barLen == 0 {
		barLen = 1
	}
	r.printf("  %s  %s  %6s\n", padLeft(label, 7), pad(strings.Repeat("█", barLen), gapBarWidth), commas(count))
}

func (r *TextRenderer) rule(ch rune) {
	r.println(strings.Repeat(string(ch), ruleWidth))
}

func (r *TextRenderer) centered(text string) {
	r.println(strings.Repeat(" ", (ruleWidth-len(text))/2) + text)
}

func (r *TextRenderer) println(a ...interface{}) {
	_, _ = fmt.Fprintln(r.w, a...) //nolint:errcheck // Console output, nothing to recover
}

func (r *TextRenderer) printf(format string, a ...interface{}) {
	_, _ = fmt.Fprintf(r.w, format, a...) //nolint:errcheck // Console output, nothing to recover
}

// pad right-pads s to width runes; fmt widths count bytes, which breaks
// on block characters.
func pad(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func padLeft(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}

// commas formats n with thousands separators.
func commas(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
