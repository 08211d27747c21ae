package monitor

import (
	"image"
	"time"
)

// Functions used by unit tests

// Feed one frame through the pipeline, synchronously, without touching the capture source.
// The frame must have the same dimensions as all other frames of the session.
func (m *Monitor) ProcessTestFrame(img *image.RGBA) (*FrameResult, error) {
	m.stateLock.Lock()
	index := m.nFrames
	m.stateLock.Unlock()
	if err := m.checkFrame(index, img); err != nil {
		return nil, err
	}
	result := m.processFrame(index, time.Now(), img)
	m.publish(result)
	return result, nil
}
