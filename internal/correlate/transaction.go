package correlate

import "github.com/mrzor/pollscope/internal/usbtrace"

// MaxDurationMicros bounds a reportable transaction. Anything at or above
// it is treated as anomalous and discarded.
const MaxDurationMicros = 100_000.0

// Open is a dispatched transaction waiting for its completion.
type Open struct {
	Key       uint64
	Device    uint64
	Pipe      uint64
	Transfer  usbtrace.TransferKind
	Start     float64 // ms since capture start
	VendorID  uint16
	ProductID uint16
}

// Complete advances o to a completed Transaction.
func (o Open) Complete(end float64, status uint32) Transaction {
	return Transaction{
		Key:       o.Key,
		Device:    o.Device,
		Pipe:      o.Pipe,
		Transfer:  o.Transfer,
		Start:     o.Start,
		End:       end,
		Status:    status,
		VendorID:  o.VendorID,
		ProductID: o.ProductID,
	}
}

// Transaction is a completed USB transfer. It is never modified after
// creation.
type Transaction struct {
	Key       uint64
	Device    uint64
	Pipe      uint64
	Transfer  usbtrace.TransferKind
	Start     float64 // ms since capture start
	End       float64 // ms since capture start
	Status    uint32
	VendorID  uint16
	ProductID uint16
}

// DurationMicros returns end - start in microseconds.
func (t Transaction) DurationMicros() float64 {
	return (t.End - t.Start) * 1000
}

// Identity returns the "VVVV:PPPP" string, or "" when no vendor id is known.
func (t Transaction) Identity() string {
	return usbtrace.Identity(t.VendorID, t.ProductID)
}

// Reportable reports whether t falls inside [0, MaxDurationMicros).
func (t Transaction) Reportable() bool {
	d := t.DurationMicros()
	return d >= 0 && d < MaxDurationMicros
}
