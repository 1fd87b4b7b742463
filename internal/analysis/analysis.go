package analysis

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mrzor/pollscope/internal/correlate"
	"github.com/mrzor/pollscope/internal/devmeta"
	"github.com/mrzor/pollscope/internal/eventstream"
	"github.com/mrzor/pollscope/internal/grouping"
	"github.com/mrzor/pollscope/internal/logging"
	"github.com/mrzor/pollscope/internal/stats"
	"github.com/mrzor/pollscope/internal/usbtrace"
)

var log = logging.Logger("analysis")

// Options configures Run.
type Options struct {
	// Filter drops events before correlation. Optional.
	Filter eventstream.Predicate
	// MaxOpenAge is passed to the correlator, in milliseconds.
	MaxOpenAge float64
	// Handler receives each reportable transaction. Optional.
	Handler correlate.TransactionHandler
	// Registry collects device identities and issues. Created if nil.
	Registry *devmeta.Registry
}

// Capture is a correlated trace, ready for device selection.
type Capture struct {
	Name     string
	Result   *correlate.Result
	Groups   []grouping.DeviceGroup
	Registry *devmeta.Registry
	Counts   Counts
}

// Run drains src through the correlator and groups the interrupt
// transfers by device.
func Run(ctx context.Context, src eventstream.Source, name string, opts Options) (*Capture, error) {
	registry := opts.Registry
	if registry == nil {
		registry = devmeta.NewRegistry()
	}

	corr := correlate.New(correlate.Options{
		MaxOpenAge: opts.MaxOpenAge,
		Registry:   registry,
		Handler:    opts.Handler,
	})

	rs, err := eventstream.Run(ctx, src, opts.Filter, corr)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	result := corr.Finish()

	c := &Capture{
		Name:     name,
		Result:   result,
		Groups:   grouping.Group(result.Interrupt()),
		Registry: registry,
		Counts:   newCounts(src.Stats(), rs, result.Stats),
	}
	c.flagInactive()

	log.Infow("capture correlated",
		"capture", name,
		"events", rs.Events,
		"transfers", len(result.Completed),
		"devices", len(c.Groups),
		"capture_ms", result.Stats.CaptureMillis(),
	)
	return c, nil
}

// flagInactive records an issue on every observed device that completed
// no interrupt transfer, so it still shows up in the report.
func (c *Capture) flagInactive() {
	grouped := make(map[uint64]bool, len(c.Groups))
	for i := range c.Groups {
		grouped[c.Groups[i].Handle] = true
	}
	for _, d := range c.Registry.Devices() {
		if !grouped[d] {
			c.Registry.AddIssue(d, IssueNoInterrupt)
		}
	}
}

// Inactive lists observed devices without a device group, in first-seen
// order.
func (c *Capture) Inactive() []InactiveDevice {
	grouped := make(map[uint64]bool, len(c.Groups))
	for i := range c.Groups {
		grouped[c.Groups[i].Handle] = true
	}

	var out []InactiveDevice
	for _, d := range c.Registry.Devices() {
		if grouped[d] {
			continue
		}
		identity := c.Registry.Identity(d)
		if identity == "" {
			identity = grouping.UnknownIdentity
		}
		out = append(out, InactiveDevice{
			Handle:   fmt.Sprintf("0x%X", d),
			Identity: identity,
			Issues:   c.Registry.GetIssues(d),
		})
	}
	return out
}

// Devices summarizes every device group in list order.
func (c *Capture) Devices() []DeviceSummary {
	out := make([]DeviceSummary, len(c.Groups))
	for i := range c.Groups {
		out[i] = c.summary(i)
	}
	return out
}

func (c *Capture) summary(i int) DeviceSummary {
	g := &c.Groups[i]
	return DeviceSummary{
		Index:       i + 1,
		Handle:      fmt.Sprintf("0x%X", g.Handle),
		Identity:    g.Identity,
		EstimatedHz: g.EstimatedHz,
		Transfers:   g.Count(),
		Issues:      c.Registry.GetIssues(g.Handle),
	}
}

// Select picks a device. A positive choice is a 1-based list index and
// wins over deviceFilter; otherwise the automatic policy applies and may
// return grouping.ErrSelectionRequired.
func (c *Capture) Select(deviceFilter string, choice int) (grouping.Selection, error) {
	if choice > 0 {
		return grouping.Choose(c.Groups, choice-1)
	}
	return grouping.Select(c.Groups, deviceFilter)
}

// Report computes statistics for the selected device.
func (c *Capture) Report(sel grouping.Selection, verbose bool) (*Report, error) {
	if sel.Index < 0 || sel.Index >= len(c.Groups) {
		return nil, fmt.Errorf("%w: index %d", grouping.ErrInvalidSelection, sel.Index)
	}

	dr, err := c.deviceReport(sel.Index, verbose)
	if err != nil {
		return nil, err
	}
	dr.Reason = sel.Reason.String()

	r := c.newReport()
	r.Reports = []DeviceReport{dr}
	return r, nil
}

// ReportAll computes statistics for every device concurrently.
func (c *Capture) ReportAll(ctx context.Context, verbose bool) (*Report, error) {
	reports := make([]DeviceReport, len(c.Groups))

	g, ctx := errgroup.WithContext(ctx)
	for i := range c.Groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dr, err := c.deviceReport(i, verbose)
			if err != nil {
				return err
			}
			reports[i] = dr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := c.newReport()
	r.Reports = reports
	return r, nil
}

func (c *Capture) deviceReport(i int, verbose bool) (DeviceReport, error) {
	g := &c.Groups[i]
	dr := DeviceReport{Device: c.summary(i)}

	res, err := stats.Compute(g.Transactions)
	switch {
	case errors.Is(err, stats.ErrInsufficientData):
		dr.Error = err.Error()
	case err != nil:
		return dr, fmt.Errorf("device %s: %w", dr.Device.Handle, err)
	default:
		dr.Stats = res
	}

	if verbose {
		dr.Diagnostics = stats.Diagnose(g.Transactions, c.controlsOf(g.Handle))
	}
	return dr, nil
}

// controlsOf returns the control transfers of device in completion order.
func (c *Capture) controlsOf(device uint64) []correlate.Transaction {
	var out []correlate.Transaction
	for _, tx := range c.Result.Completed {
		if tx.Transfer == usbtrace.TransferControl && tx.Device == device {
			out = append(out, tx)
		}
	}
	return out
}

func (c *Capture) newReport() *Report {
	return &Report{
		Capture:       c.Name,
		CaptureMillis: c.Result.Stats.CaptureMillis(),
		Interrupt:     len(c.Result.Interrupt()),
		Control:       len(c.Result.Control()),
		Counts:        c.Counts,
		Devices:       c.Devices(),
		Inactive:      c.Inactive(),
	}
}
