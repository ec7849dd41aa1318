package util

import (
	"time"
)

// Holder keeps the caller waiting for d. Every settle delay of the
// bit-banged protocols goes through a Holder so the timing stays
// configuration and tests can replace it.
type Holder interface {
	Hold(d time.Duration)
}

// HolderFunc adapts a function to the Holder interface.
type HolderFunc func(d time.Duration)

func (f HolderFunc) Hold(d time.Duration) { f(d) }

// BusyWait spins on the monotonic clock. time.Sleep has a granularity of
// tens of microseconds on Linux, far too coarse for a 10µs SPI half-period.
// The wait cannot be interrupted.
type BusyWait struct{}

func (BusyWait) Hold(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}

// Sleep yields the goroutine for d; used for millisecond cadences.
type Sleep struct{}

func (Sleep) Hold(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// NoHold returns immediately.
type NoHold struct{}

func (NoHold) Hold(time.Duration) {}

// HoldRecorder records the requested durations instead of waiting.
type HoldRecorder struct {
	Holds []time.Duration
}

func (r *HoldRecorder) Hold(d time.Duration) {
	r.Holds = append(r.Holds, d)
}

// Total is the sum of all recorded holds.
func (r *HoldRecorder) Total() time.Duration {
	var sum time.Duration
	for _, d := range r.Holds {
		sum += d
	}
	return sum
}
