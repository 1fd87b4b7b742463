package eventstream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mrzor/pollscope/internal/logging"
	"github.com/mrzor/pollscope/internal/usbtrace"
)

var log = logging.Logger("eventstream")

// DecodeStats counts records seen by a Source.
type DecodeStats struct {
	Records         int // records decoded into events
	Skipped         int // records that could not be decoded
	MalformedFields int // fields that fell back to zero
}

// Source yields decoded events in capture order.
type Source interface {
	// Next returns the next event, or io.EOF when the stream is exhausted.
	Next(ctx context.Context) (usbtrace.Event, error)
	// Stats reports decoding counters so far.
	Stats() DecodeStats
	Close() error
}

// Anchored is implemented by sources that know the wall-clock time of
// capture time 0.
type Anchored interface {
	Origin() time.Time
}

// EventHandler consumes events from a stream.
type EventHandler interface {
	HandleEvent(ev *usbtrace.Event) error
}

// Predicate decides whether an event is passed on.
type Predicate interface {
	Match(ev *usbtrace.Event) (bool, error)
}

// RunStats reports what Run did with the events it read.
type RunStats struct {
	Events        int // events read from the source
	Filtered      int // events rejected by the predicate
	HandlerErrors int
}

// Run drains src into handler, synchronously and in order, until the
// source is exhausted. Events rejected by filter (if non-nil) are dropped.
// Handler errors are logged and do not stop the stream.
func Run(ctx context.Context, src Source, filter Predicate, handler EventHandler) (RunStats, error) {
	var rs RunStats
	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return rs, nil
			}
			return rs, err
		}
		rs.Events++

		if filter != nil {
			ok, err := filter.Match(&ev)
			if err != nil {
				log.Debugw("filter evaluation failed", "kind", ev.Kind, "key", ev.Key, "error", err)
			}
			if !ok {
				rs.Filtered++
				continue
			}
		}

		if err := handler.HandleEvent(&ev); err != nil {
			rs.HandlerErrors++
			log.Warnw("handling event", "kind", ev.Kind, "key", ev.Key, "error", err)
		}
	}
}

// SliceSource replays a fixed list of events. It is used for tests and
// for re-running an analysis over events already in memory.
type SliceSource struct {
	events []usbtrace.Event
	pos    int
}

// NewSliceSource creates a Source over events.
func NewSliceSource(events []usbtrace.Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next implements Source.
func (s *SliceSource) Next(_ context.Context) (usbtrace.Event, error) {
	if s.pos >= len(s.events) {
		return usbtrace.Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// Stats implements Source.
func (s *SliceSource) Stats() DecodeStats {
	return DecodeStats{Records: s.pos}
}

// Close implements Source.
func (s *SliceSource) Close() error {
	return nil
}
