// Package usbtrace defines the typed USB trace event consumed by the
// correlation engine.
//
// Events are classified exactly once, at the stream boundary, into a Kind
// that combines the event phase (dispatch or completion) with the transfer
// type (interrupt, control or unknown). Everything downstream switches on
// Kind and never inspects provider or event names again.
//
// RawEvent is the fixed little-endian record layout shared by the binary
// capture format and the kernel ring buffer:
//
//	offset  size  field
//	     0     8  Key        (URB pointer, 0 = absent)
//	     8     8  Device     (device handle)
//	    16     8  Pipe       (pipe handle)
//	    24     8  TimestampNs (nanoseconds since capture start)
//	    32     4  Status
//	    36     2  VendorID
//	    38     2  ProductID
//	    40     1  Phase      (PHASE_DISPATCH / PHASE_COMPLETION)
//	    41     1  Transfer   (XFER_INTERRUPT / XFER_CONTROL / XFER_UNKNOWN)
//	    42     6  padding
package usbtrace
