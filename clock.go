package rawaccel

import "time"

// Clock is the monotonic counter used to time samples.
type Clock interface {
	// Counter returns the current tick count. It never decreases.
	Counter() int64
	// Frequency returns ticks per second. It is read once, at startup.
	Frequency() int64
}

// MonotonicClock counts nanoseconds on the Go monotonic clock since it was
// created.
type MonotonicClock struct {
	epoch time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{epoch: time.Now()}
}

func (c *MonotonicClock) Counter() int64   { return int64(time.Since(c.epoch)) }
func (c *MonotonicClock) Frequency() int64 { return int64(time.Second) }

// tickIntervalMS converts a counter frequency into milliseconds per tick.
func tickIntervalMS(c Clock) float64 {
	f := c.Frequency()
	if f <= 0 {
		return 0
	}
	return 1e3 / float64(f)
}
