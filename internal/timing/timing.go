// Package timing measures how long a unit of work takes.
package timing

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/coral-mesh/ioprof/internal/safe"
)

// Measure runs work once and returns its result together with the full
// elapsed time. Readings come from c; clock.RealClock uses the monotonic
// clock, so wall-clock steps do not affect the result.
func Measure[R any](c clock.PassiveClock, work func() R) (R, time.Duration) {
	start := c.Now()
	ret := work()
	return ret, c.Since(start)
}

// Nanos converts d to the unsigned nanosecond count stored in events.
// Negative durations, which only fake clocks can produce, become zero.
func Nanos(d time.Duration) uint64 {
	n, _ := safe.Int64ToUint64(int64(d))
	return n
}

// Timestamp returns the full Unix time of t in nanoseconds.
func Timestamp(t time.Time) uint64 {
	n, _ := safe.Int64ToUint64(t.UnixNano())
	return n
}
