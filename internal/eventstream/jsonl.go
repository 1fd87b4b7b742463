package eventstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mrzor/pollscope/internal/usbtrace"
)

// Payload field names of the USB-UCX provider.
const (
	FieldURB       = "fid_URB_Ptr"
	FieldDevice    = "fid_UsbDevice"
	FieldPipe      = "fid_PipeHandle"
	FieldVendorID  = "fid_idVendor"
	FieldProductID = "fid_idProduct"
	FieldStatus    = "fid_IRP_NtStatus"
)

const maxLineSize = 1 << 20

// jsonRecord is one exported trace event.
type jsonRecord struct {
	Provider  string                     `json:"provider"`
	Event     string                     `json:"event"`
	Timestamp json.RawMessage            `json:"ts_ms"`
	Payload   map[string]json.RawMessage `json:"payload"`
}

// JSONLSource decodes JSON Lines trace exports.
type JSONLSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
	stats   DecodeStats
	line    int
	origin  time.Time
}

// NewJSONLSource reads events from r. If r is an io.Closer it is closed by
// Close.
func NewJSONLSource(r io.Reader) *JSONLSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	s := &JSONLSource{scanner: sc}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next implements Source.
func (s *JSONLSource) Next(ctx context.Context) (usbtrace.Event, error) {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return usbtrace.Event{}, err
		}
		s.line++

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var rec jsonRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.stats.Skipped++
			log.Debugw("skipping undecodable line", "line", s.line, "error", err)
			continue
		}

		s.stats.Records++
		return s.decode(&rec), nil
	}

	if err := s.scanner.Err(); err != nil {
		return usbtrace.Event{}, fmt.Errorf("reading line %d: %w", s.line+1, err)
	}
	return usbtrace.Event{}, io.EOF
}

// decode classifies the record and extracts typed fields. Missing fields
// are zero; present but unparsable fields are zero and counted.
func (s *JSONLSource) decode(rec *jsonRecord) usbtrace.Event {
	ev := usbtrace.Event{
		Provider: rec.Provider,
		Kind:     usbtrace.Classify(rec.Provider, rec.Event),
	}

	if len(rec.Timestamp) > 0 {
		ts, err := parseFloat(rec.Timestamp)
		switch {
		case err != nil:
			s.malformed("ts_ms", err)
		case math.IsInf(ts, 0) || math.IsNaN(ts):
			s.malformed("ts_ms", fmt.Errorf("not a finite number: %s", rec.Timestamp))
		default:
			ev.Timestamp = ts
		}
	}

	if ev.Kind == usbtrace.KindOther {
		return ev
	}

	ev.Key = s.uintField(rec.Payload, FieldURB, 64)
	ev.Device = s.uintField(rec.Payload, FieldDevice, 64)
	ev.Pipe = s.uintField(rec.Payload, FieldPipe, 64)
	ev.VendorID = uint16(s.uintField(rec.Payload, FieldVendorID, 16))
	ev.ProductID = uint16(s.uintField(rec.Payload, FieldProductID, 16))
	ev.Status = uint32(s.uintField(rec.Payload, FieldStatus, 32))
	return ev
}

func (s *JSONLSource) uintField(payload map[string]json.RawMessage, name string, bits int) uint64 {
	raw, ok := payload[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	v, err := parseUint(raw, bits)
	if err != nil {
		s.malformed(name, err)
		return 0
	}
	return v
}

func (s *JSONLSource) malformed(field string, err error) {
	s.stats.MalformedFields++
	log.Debugw("malformed field", "line", s.line, "field", field, "error", err)
}

// parseUint accepts a JSON number or a string holding a decimal or
// 0x-prefixed hexadecimal value. Negative status codes are taken as their
// two's complement.
func parseUint(raw json.RawMessage, bits int) (uint64, error) {
	text := string(raw)
	if strings.HasPrefix(text, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
		text = strings.TrimSpace(str)
	}

	if v, err := strconv.ParseUint(text, 0, bits); err == nil {
		return v, nil
	}
	if v, err := strconv.ParseInt(text, 0, bits); err == nil {
		return uint64(v) & (math.MaxUint64 >> (64 - bits)), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", text)
	}
	if f < 0 || f != math.Trunc(f) || f > math.Ldexp(1, bits)-1 {
		return 0, fmt.Errorf("out of range for %d bits: %q", bits, text)
	}
	return uint64(f), nil
}

func parseFloat(raw json.RawMessage) (float64, error) {
	text := string(raw)
	if strings.HasPrefix(text, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
		text = strings.TrimSpace(str)
	}
	return strconv.ParseFloat(text, 64)
}

// Origin returns the wall-clock anchor set by OpenFile, or the zero time.
func (s *JSONLSource) Origin() time.Time {
	return s.origin
}

// Stats implements Source.
func (s *JSONLSource) Stats() DecodeStats {
	return s.stats
}

// Close implements Source.
func (s *JSONLSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
