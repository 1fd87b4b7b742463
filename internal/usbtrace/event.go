package usbtrace

import (
	"fmt"
	"strings"
)

// TransferKind is the classification of an I/O operation.
type TransferKind uint8

// Transfer kinds.
const (
	TransferUnknown TransferKind = iota
	TransferInterrupt
	TransferControl
)

func (t TransferKind) String() string {
	switch t {
	case TransferInterrupt:
		return "Interrupt"
	case TransferControl:
		return "Control"
	default:
		return "Unknown"
	}
}

// Kind is the classified identity of a trace event.
type Kind uint8

// Event kinds.
const (
	KindOther Kind = iota
	KindDispatchInterrupt
	KindCompletionInterrupt
	KindDispatchControl
	KindCompletionControl
	KindDispatchUnknown
	KindCompletionUnknown
)

var kindNames = [...]string{
	KindOther:               "Other",
	KindDispatchInterrupt:   "DispatchInterrupt",
	KindCompletionInterrupt: "CompletionInterrupt",
	KindDispatchControl:     "DispatchControl",
	KindCompletionControl:   "CompletionControl",
	KindDispatchUnknown:     "DispatchUnknown",
	KindCompletionUnknown:   "CompletionUnknown",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsDispatch reports whether k opens a transaction.
func (k Kind) IsDispatch() bool {
	return k == KindDispatchInterrupt || k == KindDispatchControl || k == KindDispatchUnknown
}

// IsCompletion reports whether k closes a transaction.
func (k Kind) IsCompletion() bool {
	return k == KindCompletionInterrupt || k == KindCompletionControl || k == KindCompletionUnknown
}

// Transfer returns the transfer kind encoded in k.
func (k Kind) Transfer() TransferKind {
	switch k {
	case KindDispatchInterrupt, KindCompletionInterrupt:
		return TransferInterrupt
	case KindDispatchControl, KindCompletionControl:
		return TransferControl
	default:
		return TransferUnknown
	}
}

// MakeKind combines a phase and a transfer kind.
func MakeKind(dispatch bool, transfer TransferKind) Kind {
	switch transfer {
	case TransferInterrupt:
		if dispatch {
			return KindDispatchInterrupt
		}
		return KindCompletionInterrupt
	case TransferControl:
		if dispatch {
			return KindDispatchControl
		}
		return KindCompletionControl
	default:
		if dispatch {
			return KindDispatchUnknown
		}
		return KindCompletionUnknown
	}
}

// Event is a decoded trace event.
type Event struct {
	Provider  string
	Kind      Kind
	Key       uint64 // correlation key, 0 means absent
	Device    uint64
	Pipe      uint64
	VendorID  uint16
	ProductID uint16
	Status    uint32
	Timestamp float64 // milliseconds since capture start
}

// Naming conventions of the USB host controller extension provider.
const (
	ProviderUCX = "USB-UCX"

	markDispatch   = "/Start"
	markCompletion = "/Stop"
	markInterrupt  = "BULK_OR_INTERRUPT"
	markControl    = "CONTROL"
	markClassIface = "CLASS_INTERFACE"
)

// Classify maps a provider and event name to a Kind.
// Anything outside the UCX provider, or without a start/stop marker, is
// KindOther.
func Classify(provider, name string) Kind {
	if !strings.Contains(provider, ProviderUCX) {
		return KindOther
	}

	var dispatch bool
	switch {
	case strings.Contains(name, markDispatch):
		dispatch = true
	case strings.Contains(name, markCompletion):
		dispatch = false
	default:
		return KindOther
	}

	transfer := TransferUnknown
	switch {
	case strings.Contains(name, markInterrupt):
		transfer = TransferInterrupt
	case strings.Contains(name, markControl), strings.Contains(name, markClassIface):
		transfer = TransferControl
	}

	return MakeKind(dispatch, transfer)
}

// Identity formats a vendor/product pair as "VVVV:PPPP".
// It returns "" when vendorID is zero.
func Identity(vendorID, productID uint16) string {
	if vendorID == 0 {
		return ""
	}
	return fmt.Sprintf("%04X:%04X", vendorID, productID)
}
