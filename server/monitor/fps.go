package monitor

import (
	"math"
	"slices"
	"time"
)

// Estimate frames per second from a set of consecutive frame intervals.
// We use the median interval, so that one slow tracker call doesn't skew the result.
// Returns zero if there are no intervals.
func estimateFPS(frameIntervals []time.Duration) float64 {
	if len(frameIntervals) == 0 {
		return 0
	}
	sorted := slices.Clone(frameIntervals)
	slices.Sort(sorted)
	mid := sorted[len(sorted)/2]
	if mid <= 0 {
		return 0
	}
	fps := float64(time.Second) / float64(mid)
	// One decimal place is plenty for a status display
	return math.Round(fps*10) / 10
}
