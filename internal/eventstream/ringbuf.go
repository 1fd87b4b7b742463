package eventstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/hashicorp/go-multierror"

	"github.com/mrzor/pollscope/internal/timesync"
	"github.com/mrzor/pollscope/internal/usbtrace"
)

// pollInterval bounds how long a single ring buffer read blocks, so
// cancellation and the capture deadline are noticed promptly.
const pollInterval = 200 * time.Millisecond

// RingbufSource reads RawEvent records from a pinned eBPF ring buffer map.
// Records carry CLOCK_MONOTONIC nanoseconds; they are rebased so that 0 ms
// is the moment the source was opened. Older records clamp to 0.
type RingbufSource struct {
	m        *ebpf.Map
	reader   *ringbuf.Reader
	deadline time.Time
	base     uint64
	origin   time.Time
	record   ringbuf.Record
	stats    DecodeStats
}

// NewRingbufSource opens the ring buffer pinned at path. A positive
// duration ends the stream that long after the source is opened.
func NewRingbufSource(path string, duration time.Duration) (*RingbufSource, error) {
	m, err := ebpf.LoadPinnedMap(path, &ebpf.LoadPinOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("loading pinned map %s: %w", path, err)
	}
	if m.Type() != ebpf.RingBuf {
		_ = m.Close() //nolint:errcheck // Best-effort cleanup in error path
		return nil, fmt.Errorf("pinned map %s is %s, want %s", path, m.Type(), ebpf.RingBuf)
	}

	rd, err := ringbuf.NewReader(m)
	if err != nil {
		_ = m.Close() //nolint:errcheck // Best-effort cleanup in error path
		return nil, fmt.Errorf("opening ring buffer reader: %w", err)
	}

	conv, err := timesync.NewConverter()
	if err != nil {
		_ = rd.Close() //nolint:errcheck // Best-effort cleanup in error path
		_ = m.Close()  //nolint:errcheck // Best-effort cleanup in error path
		return nil, err
	}
	base, err := timesync.MonotonicNow()
	if err != nil {
		_ = rd.Close() //nolint:errcheck // Best-effort cleanup in error path
		_ = m.Close()  //nolint:errcheck // Best-effort cleanup in error path
		return nil, err
	}

	s := &RingbufSource{
		m:      m,
		reader: rd,
		base:   base,
		origin: conv.MonotonicToWallClock(base),
	}
	if duration > 0 {
		s.deadline = time.Now().Add(duration)
	}
	return s, nil
}

// Next implements Source. The stream ends when ctx is done, the capture
// duration elapses or the ring buffer is closed.
func (s *RingbufSource) Next(ctx context.Context) (usbtrace.Event, error) {
	for {
		if ctx.Err() != nil {
			return usbtrace.Event{}, io.EOF
		}

		wait := time.Now().Add(pollInterval)
		if !s.deadline.IsZero() {
			if !time.Now().Before(s.deadline) {
				return usbtrace.Event{}, io.EOF
			}
			if s.deadline.Before(wait) {
				wait = s.deadline
			}
		}
		s.reader.SetDeadline(wait)

		if err := s.reader.ReadInto(&s.record); err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, ringbuf.ErrClosed) {
				return usbtrace.Event{}, io.EOF
			}
			return usbtrace.Event{}, fmt.Errorf("reading from ring buffer: %w", err)
		}

		raw, err := DecodeRaw(s.record.RawSample)
		if err != nil {
			s.stats.Skipped++
			log.Debugw("skipping ring buffer sample", "error", err)
			continue
		}

		if raw.TimestampNs >= s.base {
			raw.TimestampNs -= s.base
		} else {
			raw.TimestampNs = 0
		}

		s.stats.Records++
		return raw.Event(ProviderProbe), nil
	}
}

// Origin returns the wall-clock time of capture time 0.
func (s *RingbufSource) Origin() time.Time {
	return s.origin
}

// Stats implements Source.
func (s *RingbufSource) Stats() DecodeStats {
	return s.stats
}

// Close releases the reader and the map handle.
func (s *RingbufSource) Close() error {
	var merr error
	if err := s.reader.Close(); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("closing ring buffer reader: %w", err))
	}
	if err := s.m.Close(); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("closing map: %w", err))
	}
	return merr
}
