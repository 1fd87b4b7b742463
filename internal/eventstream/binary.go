package eventstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mrzor/pollscope/internal/usbtrace"
)

// ProviderProbe tags events decoded from raw probe records.
const ProviderProbe = "pollscope-probe"

// DecodeRaw parses one little-endian usbtrace.RawEvent.
func DecodeRaw(sample []byte) (usbtrace.RawEvent, error) {
	var raw usbtrace.RawEvent
	if len(sample) < usbtrace.RawEventSize {
		return raw, fmt.Errorf("short record: %d bytes, want %d", len(sample), usbtrace.RawEventSize)
	}
	if err := binary.Read(bytes.NewReader(sample), binary.LittleEndian, &raw); err != nil {
		return raw, fmt.Errorf("parsing record: %w", err)
	}
	return raw, nil
}

// EncodeRaw writes ev as one usbtrace.RawEvent record.
func EncodeRaw(w io.Writer, ev usbtrace.Event) error {
	raw := usbtrace.NewRawEvent(ev)
	return binary.Write(w, binary.LittleEndian, &raw)
}

// BinarySource reads consecutive RawEvent records from a file or pipe.
type BinarySource struct {
	r      *bufio.Reader
	closer io.Closer
	buf    [usbtrace.RawEventSize]byte
	stats  DecodeStats
	origin time.Time
}

// NewBinarySource reads records from r. If r is an io.Closer it is closed
// by Close.
func NewBinarySource(r io.Reader) *BinarySource {
	s := &BinarySource{r: bufio.NewReader(r)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next implements Source. A trailing partial record is counted as skipped
// and ends the stream.
func (s *BinarySource) Next(ctx context.Context) (usbtrace.Event, error) {
	if err := ctx.Err(); err != nil {
		return usbtrace.Event{}, err
	}

	n, err := io.ReadFull(s.r, s.buf[:])
	switch {
	case errors.Is(err, io.EOF):
		return usbtrace.Event{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.stats.Skipped++
		log.Debugw("truncated trailing record", "bytes", n)
		return usbtrace.Event{}, io.EOF
	case err != nil:
		return usbtrace.Event{}, fmt.Errorf("reading record %d: %w", s.stats.Records+1, err)
	}

	raw, err := DecodeRaw(s.buf[:])
	if err != nil {
		return usbtrace.Event{}, err
	}
	s.stats.Records++
	return raw.Event(ProviderProbe), nil
}

// Origin returns the wall-clock anchor set by OpenFile, or the zero time.
func (s *BinarySource) Origin() time.Time {
	return s.origin
}

// Stats implements Source.
func (s *BinarySource) Stats() DecodeStats {
	return s.stats
}

// Close implements Source.
func (s *BinarySource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
