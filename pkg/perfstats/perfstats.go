// Package perfstats records how long the stages of frame processing take,
// so that it's easy to see where the time goes on different hardware.
package perfstats

import (
	"sync/atomic"
	"time"
)

// MovingAverage is an exponential moving average of a duration.
// It is safe to update from one goroutine while reading from others.
type MovingAverage struct {
	ns atomic.Int64
}

func (m *MovingAverage) Update(sample time.Duration) {
	v := sample.Nanoseconds()
	// We don't bother about strict correctness here, with CompareAndSwap,
	// because this is just sampled stats, and it's OK to miss one or two samples.
	if m.ns.Load() == 0 {
		m.ns.Store(v)
	} else {
		m.ns.Store((m.ns.Load()*63 + v) >> 6)
	}
}

func (m *MovingAverage) Get() time.Duration {
	return time.Duration(m.ns.Load())
}

// Time since start, added to the moving average
func (m *MovingAverage) Since(start time.Time) {
	m.Update(time.Since(start))
}

// FrameStats holds the timings of each stage of the frame loop
type FrameStats struct {
	Acquire MovingAverage
	Track   MovingAverage
	Compose MovingAverage
	Total   MovingAverage
}

// Milliseconds returns the average time of each stage, in milliseconds
func (f *FrameStats) Milliseconds() map[string]float64 {
	ms := func(m *MovingAverage) float64 {
		return float64(m.Get().Microseconds()) / 1000
	}
	return map[string]float64{
		"acquire": ms(&f.Acquire),
		"track":   ms(&f.Track),
		"compose": ms(&f.Compose),
		"total":   ms(&f.Total),
	}
}
