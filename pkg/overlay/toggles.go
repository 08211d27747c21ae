package overlay

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Names of the toggles, as used by the command interface
const (
	ToggleBoxes        = "boxes"
	ToggleTrajectories = "trajectories"
	ToggleHeatmap      = "heatmap"
	ToggleCroppedOnly  = "croppedOnly"
)

// Toggles is an immutable snapshot of a ToggleSet, taken once per frame
type Toggles struct {
	ShowBoxes        bool `json:"boxes"`
	ShowTrajectories bool `json:"trajectories"`
	ShowHeatmap      bool `json:"heatmap"`
	ShowCroppedOnly  bool `json:"croppedOnly"`
}

func DefaultToggles() Toggles {
	return Toggles{
		ShowBoxes:        true,
		ShowTrajectories: true,
	}
}

// ToggleSet holds the visualization switches.
// Every toggle is independent, and may be flipped from any goroutine
// while the frame loop is running.
type ToggleSet struct {
	boxes        atomic.Bool
	trajectories atomic.Bool
	heatmap      atomic.Bool
	croppedOnly  atomic.Bool
}

func NewToggleSet(initial Toggles) *ToggleSet {
	t := &ToggleSet{}
	t.boxes.Store(initial.ShowBoxes)
	t.trajectories.Store(initial.ShowTrajectories)
	t.heatmap.Store(initial.ShowHeatmap)
	t.croppedOnly.Store(initial.ShowCroppedOnly)
	return t
}

func (t *ToggleSet) lookup(name string) (*atomic.Bool, error) {
	switch name {
	case ToggleBoxes:
		return &t.boxes, nil
	case ToggleTrajectories:
		return &t.trajectories, nil
	case ToggleHeatmap:
		return &t.heatmap, nil
	case ToggleCroppedOnly:
		return &t.croppedOnly, nil
	}
	return nil, fmt.Errorf("Unknown toggle '%v'", name)
}

// Set the named toggle
func (t *ToggleSet) Set(name string, on bool) error {
	v, err := t.lookup(name)
	if err != nil {
		return err
	}
	v.Store(on)
	return nil
}

// Flip the named toggle, and return its new value
func (t *ToggleSet) Flip(name string) (bool, error) {
	v, err := t.lookup(name)
	if err != nil {
		return false, err
	}
	for {
		old := v.Load()
		if v.CompareAndSwap(old, !old) {
			return !old, nil
		}
	}
}

func (t *ToggleSet) Get(name string) (bool, error) {
	v, err := t.lookup(name)
	if err != nil {
		return false, err
	}
	return v.Load(), nil
}

func (t *ToggleSet) Snapshot() Toggles {
	return Toggles{
		ShowBoxes:        t.boxes.Load(),
		ShowTrajectories: t.trajectories.Load(),
		ShowHeatmap:      t.heatmap.Load(),
		ShowCroppedOnly:  t.croppedOnly.Load(),
	}
}

// Names returns the names of all toggles, sorted
func Names() []string {
	n := []string{ToggleBoxes, ToggleTrajectories, ToggleHeatmap, ToggleCroppedOnly}
	sort.Strings(n)
	return n
}
