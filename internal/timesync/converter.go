package timesync

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Converter handles conversion from monotonic timestamps to wall-clock time.
type Converter struct {
	bootTime time.Time
}

// NewConverter creates a new time converter. The boot time comes from the
// monotonic clock, then /proc/stat, then a conservative estimate.
func NewConverter() (*Converter, error) {
	bootTime, err := clockBootTime()
	if err != nil {
		bootTime, err = getSystemBootTime()
	}
	if err != nil {
		bootTime = time.Now().Add(-time.Hour)
	}

	return &Converter{
		bootTime: bootTime,
	}, nil
}

// MonotonicToWallClock converts a monotonic timestamp (nanoseconds since boot) to wall-clock time.
func (c *Converter) MonotonicToWallClock(monotonicNanos uint64) time.Time {
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return c.bootTime.Add(time.Duration(monotonicNanos))
}

// BootTime returns the system boot time used for conversions.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}

// MonotonicNow returns CLOCK_MONOTONIC in nanoseconds, the clock kernel
// probes stamp events with.
func MonotonicNow() (uint64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, fmt.Errorf("reading monotonic clock: %w", err)
	}
	//nolint:gosec // Monotonic time is never negative
	return uint64(ts.Nano()), nil
}

func clockBootTime() (time.Time, error) {
	mono, err := MonotonicNow()
	if err != nil {
		return time.Time{}, err
	}
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return time.Now().Add(-time.Duration(mono)), nil
}

// getSystemBootTime reads the system boot time from /proc/stat.
func getSystemBootTime() (time.Time, error) {
	file, err := os.Open("/proc/stat")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to open /proc/stat: %w", err)
	}
	defer func() {
		_ = file.Close() //nolint:errcheck // Read-only file, defer cleanup
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "btime" {
			bootTimeSec, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return time.Time{}, fmt.Errorf("failed to parse btime: %w", err)
			}
			return time.Unix(bootTimeSec, 0), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return time.Time{}, fmt.Errorf("error reading /proc/stat: %w", err)
	}

	return time.Time{}, fmt.Errorf("btime not found in /proc/stat")
}

// CaptureClock maps milliseconds since capture start to wall-clock time.
type CaptureClock struct {
	origin time.Time
}

// NewCaptureClock anchors capture time 0 at origin.
func NewCaptureClock(origin time.Time) *CaptureClock {
	return &CaptureClock{origin: origin}
}

// Origin returns the wall-clock time of capture time 0.
func (c *CaptureClock) Origin() time.Time {
	return c.origin
}

// WallClock converts a capture timestamp in milliseconds.
func (c *CaptureClock) WallClock(ms float64) time.Time {
	return c.origin.Add(time.Duration(ms * float64(time.Millisecond)))
}
