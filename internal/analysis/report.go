package analysis

import (
	"github.com/mrzor/pollscope/internal/correlate"
	"github.com/mrzor/pollscope/internal/eventstream"
	"github.com/mrzor/pollscope/internal/stats"
)

// Counts tallies what happened to the input.
type Counts struct {
	Records         int `json:"records" yaml:"records"`
	Skipped         int `json:"skipped_records" yaml:"skipped_records"`
	MalformedFields int `json:"malformed_fields" yaml:"malformed_fields"`
	Filtered        int `json:"filtered" yaml:"filtered"`
	Ignored         int `json:"ignored" yaml:"ignored"`
	ZeroKey         int `json:"zero_key" yaml:"zero_key"`
	Dispatches      int `json:"dispatches" yaml:"dispatches"`
	Completions     int `json:"completions" yaml:"completions"`
	Completed       int `json:"completed" yaml:"completed"`
	Unmatched       int `json:"unmatched" yaml:"unmatched"`
	Anomalous       int `json:"anomalous" yaml:"anomalous"`
	Overwritten     int `json:"overwritten" yaml:"overwritten"`
	Orphaned        int `json:"orphaned" yaml:"orphaned"`
	Evicted         int `json:"evicted" yaml:"evicted"`
	OutOfOrder      int `json:"out_of_order" yaml:"out_of_order"`
}

func newCounts(ds eventstream.DecodeStats, rs eventstream.RunStats, cs correlate.Stats) Counts {
	return Counts{
		Records:         ds.Records,
		Skipped:         ds.Skipped,
		MalformedFields: ds.MalformedFields,
		Filtered:        rs.Filtered,
		Ignored:         cs.Ignored,
		ZeroKey:         cs.ZeroKey,
		Dispatches:      cs.Dispatches,
		Completions:     cs.Completions,
		Completed:       cs.Completed,
		Unmatched:       cs.Unmatched,
		Anomalous:       cs.Anomalous,
		Overwritten:     cs.Overwritten,
		Orphaned:        cs.Orphaned,
		Evicted:         cs.Evicted,
		OutOfOrder:      cs.OutOfOrder,
	}
}

// DeviceSummary is one entry of the device list.
type DeviceSummary struct {
	Index       int      `json:"index" yaml:"index"` // 1-based list position
	Handle      string   `json:"handle" yaml:"handle"`
	Identity    string   `json:"identity" yaml:"identity"`
	EstimatedHz float64  `json:"estimated_hz" yaml:"estimated_hz"`
	Transfers   int      `json:"transfers" yaml:"transfers"`
	Issues      []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// IssueNoInterrupt marks a device seen in the trace that completed no
// interrupt transfer.
const IssueNoInterrupt = "no completed interrupt transfers"

// InactiveDevice is an observed device that has no statistics.
type InactiveDevice struct {
	Handle   string   `json:"handle" yaml:"handle"`
	Identity string   `json:"identity" yaml:"identity"`
	Issues   []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// DeviceReport holds the statistics of one device.
type DeviceReport struct {
	Device      DeviceSummary      `json:"device" yaml:"device"`
	Reason      string             `json:"reason,omitempty" yaml:"reason,omitempty"`
	Stats       *stats.Result      `json:"stats,omitempty" yaml:"stats,omitempty"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
	Diagnostics *stats.Diagnostics `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Report is the outcome of one analysis.
type Report struct {
	Capture       string           `json:"capture" yaml:"capture"`
	CaptureMillis float64          `json:"capture_ms" yaml:"capture_ms"`
	Interrupt     int              `json:"interrupt_transfers" yaml:"interrupt_transfers"`
	Control       int              `json:"control_transfers" yaml:"control_transfers"`
	Counts        Counts           `json:"counts" yaml:"counts"`
	Devices       []DeviceSummary  `json:"devices" yaml:"devices"`
	Inactive      []InactiveDevice `json:"inactive_devices,omitempty" yaml:"inactive_devices,omitempty"`
	Reports       []DeviceReport   `json:"reports" yaml:"reports"`
}
