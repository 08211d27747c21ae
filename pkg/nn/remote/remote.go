package remote

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/imgx"
	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/www"
)

// Package remote is an ObjectTracker that sends each image to an HTTP tracking service.
//
// Request:  POST <url>?persist=true|false, body is a JPEG
// Response: {"classes":["fish"],"detections":[{"class":0,"confidence":0.9,"box":[x1,y1,x2,y2],"trackId":7}]}
//
// A missing or null trackId means the tracker could not assign an identity.

type responseDetection struct {
	Class      int        `json:"class"`
	ClassName  string     `json:"className"`
	Confidence float32    `json:"confidence"`
	Box        [4]float32 `json:"box"`
	TrackID    *int64     `json:"trackId"`
}

type response struct {
	Classes    []string            `json:"classes"`
	Detections []responseDetection `json:"detections"`
}

type Tracker struct {
	url         string
	timeout     time.Duration
	jpegQuality int

	classesLock sync.Mutex
	classes     []string
}

// Create a new remote tracker.
// If classes is not empty, it is used to name the detections, otherwise we
// use whatever class list the service returns.
func NewTracker(serviceURL string, timeout time.Duration, classes []string) (*Tracker, error) {
	if _, err := url.Parse(serviceURL); err != nil {
		return nil, fmt.Errorf("Invalid tracker URL '%v': %w", serviceURL, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Tracker{
		url:         serviceURL,
		timeout:     timeout,
		jpegQuality: 90,
		classes:     classes,
	}, nil
}

func (t *Tracker) Close() {
}

func (t *Tracker) Classes() []string {
	t.classesLock.Lock()
	defer t.classesLock.Unlock()
	return t.classes
}

func (t *Tracker) Track(img *image.RGBA, persist bool) ([]nn.Detection, error) {
	jpg, err := imgx.EncodeJPEG(img, t.jpegQuality)
	if err != nil {
		return nil, fmt.Errorf("Failed to encode image for tracker: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	u := fmt.Sprintf("%v?persist=%v", t.url, persist)
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(jpg))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp := response{}
	if err := www.FetchJSON(req, &resp); err != nil {
		return nil, err
	}

	classes := t.Classes()
	if len(classes) == 0 && len(resp.Classes) != 0 {
		t.classesLock.Lock()
		t.classes = resp.Classes
		t.classesLock.Unlock()
		classes = resp.Classes
	}

	out := make([]nn.Detection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		det := nn.Detection{
			Class:      d.Class,
			ClassName:  d.ClassName,
			Confidence: d.Confidence,
			Box:        nn.Box{X1: d.Box[0], Y1: d.Box[1], X2: d.Box[2], Y2: d.Box[3]},
		}
		if det.ClassName == "" {
			det.ClassName = nn.ClassName(classes, d.Class)
		}
		if d.TrackID != nil {
			det.HasTrack = true
			det.TrackID = nn.TrackID(*d.TrackID)
		}
		out = append(out, det)
	}
	return out, nil
}
