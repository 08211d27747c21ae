package trajectory

import (
	"slices"
	"sync"

	"github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/aquatrack/pkg/nn"
)

// Package trajectory keeps the recent path of every tracked object.
//
// Each identity has its own buffer of display-space points, oldest first.
// When a buffer grows beyond Capacity, the oldest EvictBlock points are dropped
// in a single step. Dropping a block instead of a single point means the copy
// cost is paid once every EvictBlock insertions.
//
// Identities are never removed because they were absent from a frame. The
// tracker may re-use an identity after occlusion, and we want the path to
// continue. Only Reset() clears buffers.

const (
	DefaultCapacity     = 60
	DefaultEvictBlock   = 10
	DefaultRecentWindow = 50
	DefaultSkip         = 5
)

type Settings struct {
	Capacity     int `json:"capacity"`     // Maximum number of points retained per identity
	EvictBlock   int `json:"evictBlock"`   // Number of oldest points dropped when Capacity is exceeded
	RecentWindow int `json:"recentWindow"` // RecentPoints considers only this many of the newest points
	Skip         int `json:"skip"`         // Default subsampling step for RecentPoints
}

func DefaultSettings() Settings {
	return Settings{
		Capacity:     DefaultCapacity,
		EvictBlock:   DefaultEvictBlock,
		RecentWindow: DefaultRecentWindow,
		Skip:         DefaultSkip,
	}
}

// Fix up out of range values
func (s *Settings) normalize() {
	if s.Capacity < 1 {
		s.Capacity = DefaultCapacity
	}
	s.EvictBlock = min(max(s.EvictBlock, 1), s.Capacity)
	if s.RecentWindow < 1 {
		s.RecentWindow = s.Capacity
	}
	if s.Skip < 1 {
		s.Skip = 1
	}
}

// Store is safe to use from multiple goroutines
type Store struct {
	settings Settings
	lock     sync.RWMutex
	tracks   map[nn.TrackID][]nn.Point
}

func NewStore(settings Settings) *Store {
	settings.normalize()
	return &Store{
		settings: settings,
		tracks:   map[nn.TrackID][]nn.Point{},
	}
}

func (s *Store) Settings() Settings {
	return s.settings
}

// RecordPoint appends p to the path of id, creating the path if necessary.
func (s *Store) RecordPoint(id nn.TrackID, p nn.Point) {
	s.lock.Lock()
	defer s.lock.Unlock()
	buf := s.tracks[id]
	if buf == nil {
		buf = make([]nn.Point, 0, s.settings.Capacity+1)
	}
	buf = append(buf, p)
	if len(buf) > s.settings.Capacity {
		n := copy(buf, buf[s.settings.EvictBlock:])
		buf = buf[:n]
	}
	s.tracks[id] = buf
}

// RecentPoints returns every skip'th point from the newest RecentWindow points of id,
// in chronological order. The first point returned is the oldest point inside the window.
// If skip is less than 1, the configured Skip is used.
func (s *Store) RecentPoints(id nn.TrackID, skip int) []nn.Point {
	if skip < 1 {
		skip = s.settings.Skip
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	buf := s.tracks[id]
	start := max(0, len(buf)-s.settings.RecentWindow)
	out := make([]nn.Point, 0, (len(buf)-start+skip-1)/skip)
	for i := start; i < len(buf); i += skip {
		out = append(out, buf[i])
	}
	return out
}

// Points returns a copy of the entire retained path of id
func (s *Store) Points(id nn.TrackID) []nn.Point {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return slices.Clone(s.tracks[id])
}

// Len returns the number of retained points for id
func (s *Store) Len(id nn.TrackID) int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.tracks[id])
}

// Return the latest point of id
func (s *Store) Last(id nn.TrackID) (nn.Point, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	buf := s.tracks[id]
	if len(buf) == 0 {
		return nn.Point{}, false
	}
	return buf[len(buf)-1], true
}

// Identities returns all identities with a non-empty path, in ascending order
func (s *Store) Identities() []nn.TrackID {
	s.lock.RLock()
	ids := make([]nn.TrackID, 0, len(s.tracks))
	for id, buf := range s.tracks {
		if len(buf) != 0 {
			ids = append(ids, id)
		}
	}
	s.lock.RUnlock()
	slices.Sort(ids)
	return ids
}

// IdentitiesInRect returns the identities whose most recent point lies inside r,
// in ascending order.
func (s *Store) IdentitiesInRect(r nn.Rect) []nn.TrackID {
	s.lock.RLock()
	ids := make([]nn.TrackID, 0, len(s.tracks))
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(s.tracks))
	for id, buf := range s.tracks {
		if len(buf) == 0 {
			continue
		}
		p := buf[len(buf)-1]
		ids = append(ids, id)
		fb.Add(int32(p.X), int32(p.Y), int32(p.X), int32(p.Y))
	}
	s.lock.RUnlock()
	if len(ids) == 0 {
		return nil
	}
	fb.Finish()

	// The rectangle is half-open, but flatbush search is inclusive
	hits := fb.SearchFast(int32(r.X), int32(r.Y), int32(r.X2()-1), int32(r.Y2()-1), nil)
	out := make([]nn.TrackID, 0, len(hits))
	for _, h := range hits {
		out = append(out, ids[h])
	}
	slices.Sort(out)
	return out
}

// Reset discards all paths. Calling Reset on an empty store does nothing.
func (s *Store) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tracks = map[nn.TrackID][]nn.Point{}
}
