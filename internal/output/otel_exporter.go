package output

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/pollscope/internal/analysis"
	"github.com/mrzor/pollscope/internal/attributes"
	"github.com/mrzor/pollscope/internal/correlate"
	"github.com/mrzor/pollscope/internal/timesync"
)

// Span names.
const (
	SpanAnalysis = "pollscope.analysis"
	SpanTransfer = "usb.transfer"
)

// ntStatusError marks NTSTATUS values with error severity.
const ntStatusError = 0xC0000000

// OTelOptions configures an OTelExporter.
type OTelOptions struct {
	Capture string
	RunID   string
	// Parent is a remote parent for the analysis span. Ignored unless valid.
	Parent trace.SpanContext
	// Warnings are attached to the analysis span, e.g. from ID evaluation.
	Warnings []attribute.KeyValue
	// Evaluator adds custom attributes to each transfer span. Optional.
	Evaluator *attributes.Evaluator
}

// OTelExporter turns completed transfers into spans. It implements
// correlate.TransactionHandler and is driven synchronously by the
// correlator, so it needs no locking.
type OTelExporter struct {
	tracer    trace.Tracer
	clock     *timesync.CaptureClock
	evaluator *attributes.Evaluator

	rootCtx  context.Context
	root     trace.Span
	lastEnd  float64
	exported int
}

var _ correlate.TransactionHandler = (*OTelExporter)(nil)

// NewOTelExporter starts the analysis span at capture time 0.
func NewOTelExporter(tracer trace.Tracer, clock *timesync.CaptureClock, opts OTelOptions) *OTelExporter {
	ctx := context.Background()
	if opts.Parent.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, opts.Parent)
	}

	ctx, root := tracer.Start(ctx, SpanAnalysis,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(clock.Origin()),
		trace.WithAttributes(
			attribute.String("pollscope.capture", opts.Capture),
			attribute.String("pollscope.run_id", opts.RunID),
		),
	)
	if len(opts.Warnings) > 0 {
		root.SetAttributes(opts.Warnings...)
	}

	return &OTelExporter{
		tracer:    tracer,
		clock:     clock,
		evaluator: opts.Evaluator,
		rootCtx:   ctx,
		root:      root,
	}
}

// HandleTransaction emits one span covering tx.
func (e *OTelExporter) HandleTransaction(tx correlate.Transaction) error {
	_, span := e.tracer.Start(e.rootCtx, SpanTransfer,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(e.clock.WallClock(tx.Start)),
	)

	span.SetAttributes(
		attribute.String("usb.device", fmt.Sprintf("0x%X", tx.Device)),
		attribute.String("usb.pipe", fmt.Sprintf("0x%X", tx.Pipe)),
		attribute.String("usb.urb", fmt.Sprintf("0x%X", tx.Key)),
		attribute.String("usb.transfer", tx.Transfer.String()),
		attribute.Int64("usb.status", int64(tx.Status)),
		attribute.Float64("usb.duration_us", tx.DurationMicros()),
	)
	if id := tx.Identity(); id != "" {
		span.SetAttributes(attribute.String("usb.identity", id))
	}
	if custom := e.evaluator.Evaluate(&tx); len(custom) > 0 {
		span.SetAttributes(custom...)
	}
	if tx.Status&ntStatusError == ntStatusError {
		span.SetStatus(codes.Error, fmt.Sprintf("NTSTATUS 0x%08X", tx.Status))
	}

	span.End(trace.WithTimestamp(e.clock.WallClock(tx.End)))

	if tx.End > e.lastEnd {
		e.lastEnd = tx.End
	}
	e.exported++
	return nil
}

// Exported returns the number of transfer spans emitted.
func (e *OTelExporter) Exported() int {
	return e.exported
}

// Finish records the report on the analysis span and ends it. rep may be
// nil when the analysis failed.
func (e *OTelExporter) Finish(rep *analysis.Report, err error) {
	e.root.SetAttributes(attribute.Int("pollscope.exported_transfers", e.exported))

	if rep != nil {
		e.root.SetAttributes(
			attribute.Float64("pollscope.capture_ms", rep.CaptureMillis),
			attribute.Int("pollscope.interrupt_transfers", rep.Interrupt),
			attribute.Int("pollscope.control_transfers", rep.Control),
			attribute.Int("pollscope.devices", len(rep.Devices)),
			attribute.Int("pollscope.unmatched", rep.Counts.Unmatched),
			attribute.Int("pollscope.anomalous", rep.Counts.Anomalous),
		)
		e.root.SetAttributes(reportAttributes(rep)...)
	}

	if err != nil {
		e.root.RecordError(err)
		e.root.SetStatus(codes.Error, err.Error())
	} else {
		e.root.SetStatus(codes.Ok, "")
	}

	e.root.End(trace.WithTimestamp(e.clock.WallClock(e.lastEnd)))
}

// reportAttributes flattens per-device figures under pollscope.device.<n>.
func reportAttributes(rep *analysis.Report) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, dr := range rep.Reports {
		prefix := fmt.Sprintf("pollscope.device.%d.", dr.Device.Index)
		attrs = append(attrs,
			attribute.String(prefix+"identity", dr.Device.Identity),
			attribute.String(prefix+"handle", dr.Device.Handle),
		)
		for i, issue := range dr.Device.Issues {
			attrs = append(attrs, attribute.String(fmt.Sprintf("%sissue_%d", prefix, i), issue))
		}
		if dr.Stats == nil {
			attrs = append(attrs, attribute.String(prefix+"error", dr.Error))
			continue
		}
		s := dr.Stats
		attrs = append(attrs,
			attribute.Float64(prefix+"poll_rate_hz", s.PollRateHz),
			attribute.Int(prefix+"samples", s.Samples),
			attribute.Float64(prefix+"p50_us", s.Intervals.P50),
			attribute.Float64(prefix+"p99_us", s.Intervals.P99),
			attribute.Float64(prefix+"max_us", s.Intervals.Max),
			attribute.Int(prefix+"gaps_over_1ms", s.Gaps.Over1ms),
		)
	}
	return attrs
}
