// Package stats computes polling statistics over completed transactions.
//
// All functions are pure: they never modify their inputs and keep no state
// between calls, so statistics for disjoint device groups can be computed
// concurrently.
//
// Intervals are inter-completion gaps in microseconds. Only gaps inside
// the open band (0, 50000) feed the rate, percentile, gap and histogram
// figures; non-positive gaps come from ordering anomalies and larger ones
// are device pauses, not polling. The verbose diagnostics deliberately
// look above the band.
package stats
