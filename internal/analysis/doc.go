// Package analysis drives one pass over a trace:
//
//	Source ──> filter ──> Correlator ──> Group ──> Select ──> Compute/Diagnose
//	                          │
//	                          └──> TransactionHandler (span export)
//
// Run consumes the stream and returns a Capture. Device selection may need
// the user, so it is a separate step: Capture.Select followed by
// Capture.Report, or Capture.ReportAll for every device at once.
package analysis
