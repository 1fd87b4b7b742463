package usbtrace

import "math"

// Record phase and transfer constants matching the probe's C header.
//
//nolint:revive,staticcheck // ALL_CAPS naming matches C/kernel conventions
const (
	PHASE_DISPATCH   = 1
	PHASE_COMPLETION = 2

	XFER_UNKNOWN   = 0
	XFER_INTERRUPT = 1
	XFER_CONTROL   = 2
)

// RawEventSize is the encoded size of RawEvent in bytes.
const RawEventSize = 48

// RawEvent matches the fixed record written by the kernel probe and by
// binary capture files.
type RawEvent struct {
	Key         uint64
	Device      uint64
	Pipe        uint64
	TimestampNs uint64
	Status      uint32
	VendorID    uint16
	ProductID   uint16
	Phase       uint8
	Transfer    uint8
	_           [6]byte // Padding to 8-byte alignment
}

// Event converts the raw record into a classified Event.
func (r *RawEvent) Event(provider string) Event {
	var transfer TransferKind
	switch r.Transfer {
	case XFER_INTERRUPT:
		transfer = TransferInterrupt
	case XFER_CONTROL:
		transfer = TransferControl
	}

	kind := KindOther
	switch r.Phase {
	case PHASE_DISPATCH:
		kind = MakeKind(true, transfer)
	case PHASE_COMPLETION:
		kind = MakeKind(false, transfer)
	}

	return Event{
		Provider:  provider,
		Kind:      kind,
		Key:       r.Key,
		Device:    r.Device,
		Pipe:      r.Pipe,
		VendorID:  r.VendorID,
		ProductID: r.ProductID,
		Status:    r.Status,
		Timestamp: float64(r.TimestampNs) / 1e6,
	}
}

// NewRawEvent builds the raw record for e.
func NewRawEvent(e Event) RawEvent {
	r := RawEvent{
		Key:       e.Key,
		Device:    e.Device,
		Pipe:      e.Pipe,
		Status:    e.Status,
		VendorID:  e.VendorID,
		ProductID: e.ProductID,
	}
	if e.Timestamp > 0 {
		r.TimestampNs = uint64(math.Round(e.Timestamp * 1e6))
	}
	switch {
	case e.Kind.IsDispatch():
		r.Phase = PHASE_DISPATCH
	case e.Kind.IsCompletion():
		r.Phase = PHASE_COMPLETION
	}
	switch e.Kind.Transfer() {
	case TransferInterrupt:
		r.Transfer = XFER_INTERRUPT
	case TransferControl:
		r.Transfer = XFER_CONTROL
	}
	return r
}
