package monitor

import (
	"image"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/nn"
)

// DetectionEvent is emitted once for every tracked detection of every frame.
// Box and trajectory are in display space.
type DetectionEvent struct {
	Frame            int64      `json:"frame"`
	Time             time.Time  `json:"time"`
	Class            int        `json:"class"`
	ClassName        string     `json:"class_name"`
	Confidence       float32    `json:"confidence"`
	Box              nn.Box     `json:"bbox"`
	TrackID          nn.TrackID `json:"track_id"`
	RecentTrajectory []nn.Point `json:"recent_trajectory"`
}

// FrameResult is everything that the monitor produced from one frame.
// It is shared between watchers, so it must be treated as read-only.
type FrameResult struct {
	Index        int64             // Zero-based frame number within the session
	Time         time.Time         // When the frame was acquired
	Image        *image.RGBA       // The composited frame
	Detections   []nn.Detection    // Raw tracker output, in detection space
	Events       []*DetectionEvent // One per tracked detection with valid geometry, in tracker order
	DetectionErr error             // Non-nil if the tracker call failed for this frame
}
