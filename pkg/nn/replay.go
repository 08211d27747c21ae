package nn

import (
	"image"
	"sync"
)

// ReplayTracker is an ObjectTracker that plays back previously recorded TrackLabels.
// Each call to Track consumes one frame. Once the labels are exhausted, Track
// returns no detections.
type ReplayTracker struct {
	lock    sync.Mutex
	labels  *TrackLabels
	byFrame map[int][]Detection
	frame   int
}

func NewReplayTracker(labels *TrackLabels) *ReplayTracker {
	r := &ReplayTracker{
		labels:  labels,
		byFrame: map[int][]Detection{},
	}
	for _, f := range labels.Frames {
		r.byFrame[f.Frame] = append(r.byFrame[f.Frame], f.Objects...)
	}
	return r
}

func (r *ReplayTracker) Close() {
}

func (r *ReplayTracker) Classes() []string {
	return r.labels.Classes
}

func (r *ReplayTracker) Track(img *image.RGBA, persist bool) ([]Detection, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	objects := r.byFrame[r.frame]
	r.frame++
	out := make([]Detection, len(objects))
	copy(out, objects)
	for i := range out {
		if out[i].ClassName == "" {
			out[i].ClassName = ClassName(r.labels.Classes, out[i].Class)
		}
		if !persist {
			out[i].HasTrack = false
		}
	}
	return out, nil
}
