package trajectory

import (
	"sync"
	"testing"

	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/stretchr/testify/require"
)

func pt(i int) nn.Point {
	return nn.Point{X: i, Y: 1000 + i}
}

func TestBatchedEviction(t *testing.T) {
	s := NewStore(DefaultSettings())
	for i := 0; i < 60; i++ {
		s.RecordPoint(1, pt(i))
	}
	require.Equal(t, 60, s.Len(1))

	// The 61st point pushes us over capacity, so the oldest 10 go in one step
	s.RecordPoint(1, pt(60))
	require.Equal(t, 51, s.Len(1))
	require.Equal(t, pt(10), s.Points(1)[0])

	for i := 61; i < 70; i++ {
		s.RecordPoint(1, pt(i))
	}
	// 70 points recorded: we retain the 11th through 70th, in order
	all := s.Points(1)
	require.Len(t, all, 60)
	for i, p := range all {
		require.Equal(t, pt(10+i), p)
	}
}

func TestLengthNeverExceedsCapacity(t *testing.T) {
	s := NewStore(Settings{Capacity: 7, EvictBlock: 3, RecentWindow: 7, Skip: 1})
	for i := 0; i < 500; i++ {
		s.RecordPoint(5, pt(i))
		require.LessOrEqual(t, s.Len(5), 7)
		last, ok := s.Last(5)
		require.True(t, ok)
		require.Equal(t, pt(i), last)
	}
}

func TestRecentPoints(t *testing.T) {
	s := NewStore(DefaultSettings())
	for i := 0; i < 70; i++ {
		s.RecordPoint(1, pt(i))
	}
	// 60 retained (10..69), window is the newest 50 (20..69), every 5th
	recent := s.RecentPoints(1, 5)
	require.Equal(t, []nn.Point{pt(20), pt(25), pt(30), pt(35), pt(40), pt(45), pt(50), pt(55), pt(60), pt(65)}, recent)

	// Fewer points than the window
	s.RecordPoint(2, pt(0))
	s.RecordPoint(2, pt(1))
	s.RecordPoint(2, pt(2))
	require.Equal(t, []nn.Point{pt(0), pt(2)}, s.RecentPoints(2, 2))

	// Default skip
	require.Equal(t, []nn.Point{pt(0)}, s.RecentPoints(2, 0))

	// Unknown identity
	require.Len(t, s.RecentPoints(99, 5), 0)
}

func TestRecentPointsNeverIncludesEvicted(t *testing.T) {
	s := NewStore(Settings{Capacity: 60, EvictBlock: 10, RecentWindow: 100, Skip: 5})
	for i := 0; i < 70; i++ {
		s.RecordPoint(1, pt(i))
	}
	recent := s.RecentPoints(1, 5)
	require.Equal(t, pt(10), recent[0])
	for i := 1; i < len(recent); i++ {
		require.Equal(t, recent[i-1].X+5, recent[i].X)
	}
}

func TestIdentitiesAndReset(t *testing.T) {
	s := NewStore(DefaultSettings())
	require.Len(t, s.Identities(), 0)
	s.RecordPoint(9, pt(0))
	s.RecordPoint(3, pt(0))
	s.RecordPoint(5, pt(0))
	require.Equal(t, []nn.TrackID{3, 5, 9}, s.Identities())

	s.Reset()
	require.Len(t, s.Identities(), 0)
	require.Equal(t, 0, s.Len(3))
	s.Reset()
	require.Len(t, s.Identities(), 0)
}

func TestIdentitiesInRect(t *testing.T) {
	s := NewStore(DefaultSettings())
	require.Len(t, s.IdentitiesInRect(nn.MakeRect(0, 0, 100, 100)), 0)
	s.RecordPoint(1, nn.Point{X: 500, Y: 500})
	s.RecordPoint(1, nn.Point{X: 10, Y: 10}) // latest point counts
	s.RecordPoint(2, nn.Point{X: 50, Y: 99})
	s.RecordPoint(3, nn.Point{X: 100, Y: 100})
	require.Equal(t, []nn.TrackID{1, 2}, s.IdentitiesInRect(nn.MakeRect(0, 0, 100, 100)))
	require.Equal(t, []nn.TrackID{3}, s.IdentitiesInRect(nn.MakeRect(100, 100, 101, 101)))
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(DefaultSettings())
	wg := sync.WaitGroup{}
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(id nn.TrackID) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				s.RecordPoint(id, pt(i))
				s.RecentPoints(id, 5)
				s.Identities()
			}
		}(nn.TrackID(g))
	}
	wg.Wait()
	require.Len(t, s.Identities(), 4)
	for _, id := range s.Identities() {
		require.LessOrEqual(t, s.Len(id), DefaultCapacity)
	}
}
