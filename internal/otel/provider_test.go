package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/pollscope/internal/config"
)

func TestNewResource(t *testing.T) {
	cfg := &config.OTELConfig{ServiceName: "pollscope-test", ServiceVersion: "1.2.3", ResourceAttributes: "rig=bench-1"}

	res, err := NewResource(context.Background(), cfg)
	require.NoError(t, err)

	values := map[string]string{}
	for _, kv := range res.Attributes() {
		values[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "pollscope-test", values[string(semconv.ServiceNameKey)])
	assert.Equal(t, "1.2.3", values[string(semconv.ServiceVersionKey)])
	assert.Equal(t, "bench-1", values["rig"])
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, ExporterOptions("localhost:4318", nil), 3)
	assert.Len(t, ExporterOptions("https://collector.example:4318/v1/traces", nil), 2)
	assert.Len(t, ExporterOptions("localhost:4318", map[string]string{"x-team": "usb"}), 4)
}

func TestInitProvider_Shutdown(t *testing.T) {
	cfg := &config.OTELConfig{ServiceName: "pollscope-test", ExporterEndpoint: "127.0.0.1:1"}

	tp, err := InitProvider(context.Background(), cfg, trace.TraceID{})
	require.NoError(t, err)
	require.NotNil(t, tp)

	// Nothing was exported, so shutdown does not need the collector.
	assert.NoError(t, ShutdownProvider(context.Background(), tp))
	assert.NoError(t, ShutdownProvider(context.Background(), nil))
}

func TestFixedTraceIDGenerator(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithIDGenerator(NewFixedTraceIDGenerator(traceID)),
	)
	tracer := tp.Tracer("test")

	ctx, root := tracer.Start(context.Background(), "root")
	_, child := tracer.Start(ctx, "child")
	child.End()
	root.End()
	_, other := tracer.Start(context.Background(), "other-root")
	other.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	seen := map[trace.SpanID]bool{}
	for _, s := range spans {
		assert.Equal(t, traceID, s.SpanContext.TraceID())
		assert.True(t, s.SpanContext.SpanID().IsValid())
		assert.False(t, seen[s.SpanContext.SpanID()], "span IDs are unique")
		seen[s.SpanContext.SpanID()] = true
	}
	require.NoError(t, tp.Shutdown(context.Background()))
}
