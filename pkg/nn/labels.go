package nn

import (
	"encoding/json"
	"fmt"
	"os"
)

// TrackLabels contains the tracker output for each frame of a video.
// This is the format we use to record a session, and to replay it later
// without the tracker.
type TrackLabels struct {
	Classes []string       `json:"classes"`
	Frames  []*FrameLabels `json:"frames"`
}

type FrameLabels struct {
	Frame   int         `json:"frame"` // Zero-based frame number
	Objects []Detection `json:"objects"`
}

func LoadTrackLabels(filename string) (*TrackLabels, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	labels := &TrackLabels{}
	if err := json.Unmarshal(raw, labels); err != nil {
		return nil, fmt.Errorf("Error parsing track labels %v: %w", filename, err)
	}
	return labels, nil
}

func (t *TrackLabels) Save(filename string) error {
	raw, err := json.MarshalIndent(t, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, raw, 0644)
}
