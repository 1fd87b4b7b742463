package correlate

import (
	"fmt"
	"sort"

	"github.com/mrzor/pollscope/internal/devmeta"
	"github.com/mrzor/pollscope/internal/logging"
	"github.com/mrzor/pollscope/internal/usbtrace"
)

var log = logging.Logger("correlate")

// minHighWater is the pending table size below which eviction never runs.
const minHighWater = 1024

// TransactionHandler receives every reportable transaction as soon as it
// completes.
type TransactionHandler interface {
	HandleTransaction(tx Transaction) error
}

// Options configures a Correlator.
type Options struct {
	// MaxOpenAge, in milliseconds, evicts pending entries older than this
	// relative to the newest event. Zero keeps entries until end of stream.
	MaxOpenAge float64
	// Registry receives device identities and per-device issues. Optional.
	Registry *devmeta.Registry
	// Handler is called for each reportable transaction. Optional.
	Handler TransactionHandler
}

// Stats counts what happened to every event the correlator saw.
type Stats struct {
	Events      int // all events passed to HandleEvent
	Ignored     int // unclassified (KindOther) events
	ZeroKey     int // classified events without a correlation key
	Dispatches  int
	Completions int
	Completed   int // reportable transactions
	Unmatched   int // completions without an open dispatch
	Anomalous   int // durations outside [0, 100ms)
	Overwritten int // dispatches that replaced a still-open entry
	Orphaned    int // entries still open at end of stream
	Evicted     int // entries removed by MaxOpenAge
	OutOfOrder  int // events older than their predecessor

	FirstTimestamp float64 // ms, first classified event with a key
	LastTimestamp  float64 // ms, last classified event with a key
}

// CaptureMillis returns the span covered by classified events.
func (s Stats) CaptureMillis() float64 {
	return s.LastTimestamp - s.FirstTimestamp
}

// Result is the output of one correlation pass.
type Result struct {
	// Completed holds reportable transactions in completion order.
	Completed []Transaction
	Stats     Stats
}

// Interrupt returns the interrupt transfers of r in completion order.
func (r *Result) Interrupt() []Transaction {
	return r.byTransfer(usbtrace.TransferInterrupt)
}

// Control returns the control transfers of r in completion order.
func (r *Result) Control() []Transaction {
	return r.byTransfer(usbtrace.TransferControl)
}

func (r *Result) byTransfer(kind usbtrace.TransferKind) []Transaction {
	var out []Transaction
	for _, tx := range r.Completed {
		if tx.Transfer == kind {
			out = append(out, tx)
		}
	}
	return out
}

// deviceCounters tracks per-device drop reasons for issue reporting.
type deviceCounters struct {
	unmatched int
	anomalous int
	orphaned  int
	evicted   int
}

// Correlator matches dispatch and completion events by correlation key.
type Correlator struct {
	opts      Options
	pending   map[uint64]Open
	completed []Transaction
	stats     Stats
	perDevice map[uint64]*deviceCounters
	highWater int
	seen      bool
	lastTs    float64
}

// New creates a Correlator.
func New(opts Options) *Correlator {
	return &Correlator{
		opts:      opts,
		pending:   make(map[uint64]Open),
		perDevice: make(map[uint64]*deviceCounters),
		highWater: minHighWater,
	}
}

// Pending returns the number of open transactions.
func (c *Correlator) Pending() int {
	return len(c.pending)
}

// HandleEvent feeds one event into the correlator.
// The only error it returns comes from the TransactionHandler; the event
// itself has been fully accounted for by then.
func (c *Correlator) HandleEvent(ev *usbtrace.Event) error {
	c.stats.Events++

	if !ev.Kind.IsDispatch() && !ev.Kind.IsCompletion() {
		c.stats.Ignored++
		return nil
	}
	if ev.Key == 0 {
		c.stats.ZeroKey++
		return nil
	}

	c.track(ev.Timestamp)

	if c.opts.Registry != nil {
		c.opts.Registry.Observe(ev.Device, ev.VendorID, ev.ProductID)
	}

	if ev.Kind.IsDispatch() {
		c.dispatch(ev)
		return nil
	}
	return c.complete(ev)
}

func (c *Correlator) track(ts float64) {
	if !c.seen {
		c.seen = true
		c.stats.FirstTimestamp = ts
	} else if ts < c.lastTs {
		c.stats.OutOfOrder++
	}
	c.lastTs = ts
	c.stats.LastTimestamp = ts
}

func (c *Correlator) dispatch(ev *usbtrace.Event) {
	c.stats.Dispatches++

	if prev, ok := c.pending[ev.Key]; ok {
		// Latest dispatch wins when a key is reused while still open.
		c.stats.Overwritten++
		log.Debugw("overwriting open transaction", "key", ev.Key, "device", prev.Device, "start_ms", prev.Start)
	}

	c.pending[ev.Key] = Open{
		Key:       ev.Key,
		Device:    ev.Device,
		Pipe:      ev.Pipe,
		Transfer:  ev.Kind.Transfer(),
		Start:     ev.Timestamp,
		VendorID:  ev.VendorID,
		ProductID: ev.ProductID,
	}

	if c.opts.MaxOpenAge > 0 && len(c.pending) > c.highWater {
		c.evict(ev.Timestamp)
	}
}

func (c *Correlator) complete(ev *usbtrace.Event) error {
	c.stats.Completions++

	open, ok := c.pending[ev.Key]
	if !ok {
		c.stats.Unmatched++
		c.counters(ev.Device).unmatched++
		return nil
	}
	delete(c.pending, ev.Key)

	tx := open.Complete(ev.Timestamp, ev.Status)
	if tx.VendorID == 0 && c.opts.Registry != nil {
		if meta := c.opts.Registry.Get(tx.Device); meta != nil {
			tx.VendorID = meta.VendorID
			tx.ProductID = meta.ProductID
		}
	}

	if !tx.Reportable() {
		c.stats.Anomalous++
		c.counters(tx.Device).anomalous++
		return nil
	}

	c.stats.Completed++
	c.completed = append(c.completed, tx)

	if c.opts.Handler != nil {
		if err := c.opts.Handler.HandleTransaction(tx); err != nil {
			return fmt.Errorf("handling transaction %#x: %w", tx.Key, err)
		}
	}
	return nil
}

// evict drops entries open longer than MaxOpenAge and resets the high-water
// mark so sweeps stay amortised.
func (c *Correlator) evict(now float64) {
	for key, open := range c.pending {
		if now-open.Start > c.opts.MaxOpenAge {
			delete(c.pending, key)
			c.stats.Evicted++
			c.counters(open.Device).evicted++
		}
	}

	c.highWater = 2 * len(c.pending)
	if c.highWater < minHighWater {
		c.highWater = minHighWater
	}
	log.Debugw("evicted stale transactions", "pending", len(c.pending), "evicted_total", c.stats.Evicted)
}

func (c *Correlator) counters(device uint64) *deviceCounters {
	dc, ok := c.perDevice[device]
	if !ok {
		dc = &deviceCounters{}
		c.perDevice[device] = dc
	}
	return dc
}

// Finish ends the stream. Entries still open are dropped and counted.
// The Correlator must not be used afterwards.
func (c *Correlator) Finish() *Result {
	for _, open := range c.pending {
		c.stats.Orphaned++
		c.counters(open.Device).orphaned++
	}
	c.pending = nil

	c.reportIssues()

	log.Debugw("correlation finished",
		"completed", c.stats.Completed,
		"unmatched", c.stats.Unmatched,
		"anomalous", c.stats.Anomalous,
		"orphaned", c.stats.Orphaned,
	)

	return &Result{
		Completed: c.completed,
		Stats:     c.stats,
	}
}

func (c *Correlator) reportIssues() {
	if c.opts.Registry == nil {
		return
	}

	devices := make([]uint64, 0, len(c.perDevice))
	for d := range c.perDevice {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })

	for _, d := range devices {
		dc := c.perDevice[d]
		var issues []string
		if dc.unmatched > 0 {
			issues = append(issues, fmt.Sprintf("%d completions without a matching dispatch", dc.unmatched))
		}
		if dc.anomalous > 0 {
			issues = append(issues, fmt.Sprintf("%d transfers outside 0-100ms discarded", dc.anomalous))
		}
		if dc.orphaned > 0 {
			issues = append(issues, fmt.Sprintf("%d transfers still open at end of capture", dc.orphaned))
		}
		if dc.evicted > 0 {
			issues = append(issues, fmt.Sprintf("%d transfers evicted after %.0fms open", dc.evicted, c.opts.MaxOpenAge))
		}
		if len(issues) > 0 {
			c.opts.Registry.AddIssues(d, issues)
		}
	}
}
