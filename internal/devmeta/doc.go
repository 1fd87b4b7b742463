// Package devmeta tracks per-device metadata for the duration of one
// analysis run.
//
// DeviceMetadata holds the vendor/product identity observed for a device
// handle. Trace providers usually report vendor and product ids only on
// some events (device creation, first dispatch), so the registry lets
// later transactions on the same handle inherit them.
//
// Registry provides command-query separation:
//
// Queries (read-only):
//   - Get(device) - Retrieve metadata
//   - Identity(device) - Retrieve the "VVVV:PPPP" string
//   - GetIssues(device) - Retrieve capture warnings
//   - Devices() - All known handles in first-seen order
//
// Commands (mutations):
//   - Observe(device, vid, pid) - Record identity, first nonzero vendor wins
//   - AddIssue(device, issue) - Add capture warning
//   - AddIssues(device, issues) - Add several warnings
//
// The correlator records identities and correlation issues; the analysis
// reads them back per device group and uses Devices, Identity and AddIssue
// to report devices that completed no interrupt transfer.
//
// Thread-safe with RWMutex so reports can be built concurrently.
package devmeta
