// Package eventstream turns captured or live USB trace data into an ordered
// sequence of usbtrace.Event values.
//
// Sources:
//   - JSONLSource reads one JSON object per line, as exported from an ETW
//     USB-UCX capture. Payload fields are looked up by name here, once, and
//     never again downstream.
//   - BinarySource reads fixed usbtrace.RawEvent records.
//   - RingbufSource reads the same records from a pinned eBPF ring buffer
//     filled by a kernel probe.
//
// Every Source returns io.EOF once exhausted. Malformed optional fields
// default to zero; records that cannot be decoded at all are skipped and
// counted in DecodeStats.
package eventstream
