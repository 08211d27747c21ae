package perfstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMovingAverage(t *testing.T) {
	m := MovingAverage{}
	require.Equal(t, time.Duration(0), m.Get())

	// The first sample is taken as-is
	m.Update(64 * time.Millisecond)
	require.Equal(t, 64*time.Millisecond, m.Get())

	// Later samples have a weight of 1/64
	m.Update(0)
	require.Equal(t, 63*time.Millisecond, m.Get())
}

func TestFrameStats(t *testing.T) {
	f := FrameStats{}
	f.Track.Update(1500 * time.Microsecond)
	ms := f.Milliseconds()
	require.Len(t, ms, 4)
	require.Equal(t, 1.5, ms["track"])
	require.Equal(t, 0.0, ms["compose"])
}
