// Package timesync maps trace timestamps to wall-clock time.
//
// Kernel probes stamp events with CLOCK_MONOTONIC nanoseconds. Converter
// derives the boot instant from the current monotonic and realtime clocks
// (falling back to btime in /proc/stat) and adds the monotonic offset.
//
// Analysis works in milliseconds since capture start. CaptureClock anchors
// that axis at a wall-clock origin so exported spans carry real times.
package timesync
