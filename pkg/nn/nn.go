package nn

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"strings"
)

// Package nn is the interface layer between us and an external object tracker.
// The tracker owns detection and identity assignment. We only consume its output.

// TrackID is the identity that a tracker assigns to an object, and keeps stable
// across frames for as long as it believes it is looking at the same object.
type TrackID int64

// Detection is a single object found by the tracker in one frame.
// Box is in detection space, which is the coordinate system of the image
// that was given to the tracker (i.e. the crop, not the full frame).
type Detection struct {
	Class      int     `json:"class"`
	ClassName  string  `json:"className"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
	HasTrack   bool    `json:"hasTrack"` // False if the tracker could not assign an identity
	TrackID    TrackID `json:"trackId"`  // Only valid if HasTrack is true
}

// ObjectTracker is given an image, and returns zero or more detected objects,
// with identities that persist across calls when persist is true.
type ObjectTracker interface {
	// Close releases any resources held by the tracker
	Close()

	// Track returns the objects found in img.
	// If persist is false, the tracker may forget all identities before processing img.
	Track(img *image.RGBA, persist bool) ([]Detection, error)

	// Class names, indexed by Detection.Class
	Classes() []string
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Failed to read class file %v: %w", filename, err)
	}
	return classes, nil
}

// ClassName returns the name of class i, or "unknown" if i is out of range
func ClassName(classes []string, i int) string {
	if i < 0 || i >= len(classes) {
		return "unknown"
	}
	return classes[i]
}
