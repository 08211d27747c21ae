package monitor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/imgx"
	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/aquatrack/pkg/overlay"
	"github.com/cyclopcam/aquatrack/server/camera"
)

var errEndOfStream = errors.New("End of stream")

// The masked area is painted this color before the crop is sent to the tracker
var maskColor = color.RGBA{255, 255, 255, 255}

// Fetch the next frame from the source. Returns errEndOfStream if the stream ended normally,
// and an error wrapping camera.ErrCorruptFrame if only this frame is lost.
// Any other error wraps ErrFrameAcquisition.
func (m *Monitor) acquire(index int64) (*image.RGBA, error) {
	img, err := m.source.NextFrame()
	if errors.Is(err, io.EOF) {
		return nil, errEndOfStream
	} else if errors.Is(err, camera.ErrCorruptFrame) {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("%w on frame %v: %w", ErrFrameAcquisition, index, err)
	} else if img == nil {
		return nil, fmt.Errorf("%w on frame %v: source returned no image", ErrFrameAcquisition, index)
	}
	if err := m.checkFrame(index, img); err != nil {
		return nil, err
	}
	return img, nil
}

// The first frame fixes the dimensions of the session, and must contain the region.
// Every later frame must have the same dimensions.
func (m *Monitor) checkFrame(index int64, img *image.RGBA) error {
	size := img.Bounds().Size()
	if img.Bounds().Min != (image.Point{}) {
		return fmt.Errorf("%w on frame %v: frame origin must be (0,0), not %v", ErrFrameAcquisition, index, img.Bounds().Min)
	}
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	if m.frameSize == (image.Point{}) {
		if !m.options.Region.InsideImage(size.X, size.Y) {
			return fmt.Errorf("%w: region %+v is outside of the %vx%v frame", ErrFrameAcquisition, m.options.Region, size.X, size.Y)
		}
		m.frameSize = size
		return nil
	}
	if size != m.frameSize {
		return fmt.Errorf("%w on frame %v: dimensions changed from %vx%v to %vx%v", ErrFrameAcquisition, index, m.frameSize.X, m.frameSize.Y, size.X, size.Y)
	}
	return nil
}

// Build the image that is sent to the tracker: the region, with the mask painted over
func (m *Monitor) trackerInput(img *image.RGBA) *image.RGBA {
	region := m.options.Region
	crop := imgx.CopyRect(img, image.Rect(region.X, region.Y, region.X2(), region.Y2()))
	if mask := m.options.Mask; !mask.IsEmpty() {
		local := image.Rect(mask.X-region.X, mask.Y-region.Y, mask.X2()-region.X, mask.Y2()-region.Y)
		imgx.Fill(crop, local, maskColor)
	}
	return crop
}

func (m *Monitor) processFrame(index int64, frameTime time.Time, img *image.RGBA) *FrameResult {
	result := &FrameResult{
		Index: index,
		Time:  frameTime,
	}
	toggles := m.toggles.Snapshot()

	start := time.Now()
	detections, err := m.tracker.Track(m.trackerInput(img), m.options.Persist)
	m.stats.Track.Since(start)
	if err != nil {
		result.DetectionErr = fmt.Errorf("%w on frame %v: %w", ErrDetectionCall, index, err)
		if time.Since(m.lastErrAt) > 15*time.Second {
			if m.suppressed != 0 {
				m.Log.Errorf("%v (and %v earlier failures since frame %v)", result.DetectionErr, m.suppressed, m.suppressedAt)
			} else {
				m.Log.Errorf("%v", result.DetectionErr)
			}
			m.lastErrAt = time.Now()
			m.suppressed = 0
		} else {
			m.Log.Debugf("%v", result.DetectionErr)
			if m.suppressed == 0 {
				m.suppressedAt = index
			}
			m.suppressed++
		}
		detections = nil
	}

	// Detections with broken geometry are neither drawn nor recorded
	valid := make([]nn.Detection, 0, len(detections))
	for _, d := range detections {
		if err := d.Box.Validate(); err != nil {
			m.Log.Warnf("Frame %v: dropping detection of class %v: %v", index, d.Class, err)
			continue
		}
		valid = append(valid, d)
	}
	result.Detections = valid

	m.mutateLock.Lock()
	if m.options.Heatmap.DecayEnabled() {
		m.heat.Decay(m.options.Heatmap.DecayFactor)
	}
	for i := range valid {
		if !valid[i].HasTrack {
			continue
		}
		ev, err := m.applyDetection(index, frameTime, &valid[i])
		if err != nil {
			m.Log.Warnf("Frame %v: dropping detection of track %v: %v", index, valid[i].TrackID, err)
			continue
		}
		result.Events = append(result.Events, ev)
	}
	m.mutateLock.Unlock()

	start = time.Now()
	composed, err := m.compositor.Compose(overlay.ComposeInput{
		Frame:      img,
		Region:     m.options.Region,
		Mask:       m.options.Mask,
		Detections: valid,
		Toggles:    toggles,
		History:    m.history,
		Heatmap:    m.heat,
	})
	m.stats.Compose.Since(start)
	if err != nil {
		// The region was validated against the first frame, so this should never happen
		m.Log.Errorf("Frame %v: compose failed: %v", index, err)
		composed = imgx.Clone(img)
	}
	result.Image = composed
	return result
}

// Update the trajectory and heatmap for one tracked detection, and build its event.
// Either both updates happen, or neither does.
func (m *Monitor) applyDetection(index int64, frameTime time.Time, d *nn.Detection) (*DetectionEvent, error) {
	origin := m.options.Region.Origin()
	center, err := nn.Center(d.Box)
	if err != nil {
		return nil, err
	}
	display, err := nn.ToDisplay(d.Box, origin)
	if err != nil {
		return nil, err
	}
	radius := m.options.Heatmap.RadiusForBox(d.Box)

	m.history.RecordPoint(d.TrackID, nn.PointToDisplay(center, origin))
	// The heatmap covers the region, so it uses detection space
	if err := m.heat.Deposit(center, radius); err != nil {
		// RadiusForBox never returns a negative radius
		m.Log.Errorf("Frame %v: heatmap deposit failed: %v", index, err)
	}

	return &DetectionEvent{
		Frame:            index,
		Time:             frameTime,
		Class:            d.Class,
		ClassName:        d.ClassName,
		Confidence:       d.Confidence,
		Box:              display,
		TrackID:          d.TrackID,
		RecentTrajectory: m.history.RecentPoints(d.TrackID, 0),
	}, nil
}
