package otel

import (
	"context"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// fixedTraceIDGenerator puts every root span in one configured trace.
type fixedTraceIDGenerator struct {
	traceID trace.TraceID

	mu  sync.Mutex
	rng *rand.Rand
}

var _ sdktrace.IDGenerator = (*fixedTraceIDGenerator)(nil)

// NewFixedTraceIDGenerator returns an IDGenerator whose root spans all use
// traceID.
func NewFixedTraceIDGenerator(traceID trace.TraceID) sdktrace.IDGenerator {
	return &fixedTraceIDGenerator{
		traceID: traceID,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // Span IDs need uniqueness, not secrecy
	}
}

func (g *fixedTraceIDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	return g.traceID, g.NewSpanID(ctx, g.traceID)
}

func (g *fixedTraceIDGenerator) NewSpanID(_ context.Context, _ trace.TraceID) trace.SpanID {
	g.mu.Lock()
	defer g.mu.Unlock()

	var sid trace.SpanID
	for !sid.IsValid() {
		binary.BigEndian.PutUint64(sid[:], g.rng.Uint64())
	}
	return sid
}
