package monitor

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/aquatrack/pkg/heatmap"
	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/aquatrack/pkg/overlay"
	"github.com/cyclopcam/aquatrack/pkg/perfstats"
	"github.com/cyclopcam/aquatrack/pkg/trajectory"
	"github.com/cyclopcam/aquatrack/server/camera"
	"github.com/cyclopcam/logs"
)

// monitor pulls frames from a camera, sends them to the object tracker, and
// turns the tracker's output into trajectories, a heatmap, an overlay, and events.

var (
	// The capture source failed. This ends the session.
	ErrFrameAcquisition = errors.New("Frame acquisition failed")
	// The tracker failed on one frame. The frame is still displayed, without detections.
	ErrDetectionCall = errors.New("Object tracker failed")
	// Start was called on a monitor that has already run
	ErrAlreadyStarted = errors.New("Monitor has already been started")
)

type State int

const (
	StateIdle State = iota
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type StopReason int

const (
	StopReasonNone StopReason = iota
	StopReasonEndOfStream
	StopReasonStopRequested
	StopReasonCaptureFailed
)

func (r StopReason) String() string {
	switch r {
	case StopReasonNone:
		return ""
	case StopReasonEndOfStream:
		return "endOfStream"
	case StopReasonStopRequested:
		return "stopRequested"
	case StopReasonCaptureFailed:
		return "captureFailed"
	}
	return "unknown"
}

func (r StopReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Number of frame intervals used to estimate FPS. Must be a power of 2.
const fpsWindow = 32

type Options struct {
	Region       nn.Rect             // Part of the frame that is given to the tracker. Display space.
	Mask         nn.Rect             // Display space area inside Region that is whited out before tracking. May be empty.
	Persist      bool                // Ask the tracker to keep identities across frames
	History      trajectory.Settings //
	Heatmap      heatmap.Settings    //
	Style        overlay.Style       //
	Toggles      *overlay.ToggleSet  // If nil, a new set is created from overlay.DefaultToggles()
	RecordLabels bool                // Keep a copy of all tracker output, so that it can be replayed later
}

type Monitor struct {
	Log           logs.Log
	source        camera.FrameSource
	tracker       nn.ObjectTracker
	options       Options
	toggles       *overlay.ToggleSet
	history       *trajectory.Store
	heat          *heatmap.Accumulator
	compositor    *overlay.Compositor
	stats         perfstats.FrameStats
	mustStop      atomic.Bool // True if Stop() has been called
	started       atomic.Bool // True once Start() or Run() has been called
	looperStopped chan bool   // Closed when the frame loop exits
	lastErrAt     time.Time   // Only accessed by the frame loop
	suppressed    int64       // Tracker failures not logged at error level since lastErrAt. Only accessed by the frame loop.
	suppressedAt  int64       // Frame index of the first suppressed tracker failure

	// mutateLock makes the per-frame updates of history and heatmap atomic with respect to Reset()
	mutateLock sync.Mutex

	stateLock      sync.Mutex
	state          State
	stopReason     StopReason
	stopErr        error
	frameSize      image.Point // Dimensions of the first frame
	nFrames        int64
	nEvents        int64
	nDetectionErrs int64
	nCorrupt       int64
	latest         *FrameResult
	frameIntervals ringbuffer.RingP[time.Duration]
	lastFrameAt    time.Time
	recorded       *nn.TrackLabels

	watchersLock sync.RWMutex
	watchers     []chan *FrameResult
}

// Status is a snapshot of the monitor, suitable for sending to a client
type Status struct {
	State           State              `json:"state"`
	StopReason      StopReason         `json:"stopReason"`
	Error           string             `json:"error,omitempty"`
	Frames          int64              `json:"frames"`
	Events          int64              `json:"events"`
	DetectionErrors int64              `json:"detectionErrors"`
	CorruptFrames   int64              `json:"corruptFrames"`
	Identities      int                `json:"identities"`
	FPS             float64            `json:"fps"`
	StageMS         map[string]float64 `json:"stageMS"`
	Toggles         overlay.Toggles    `json:"toggles"`
}

// Create a new monitor. The monitor takes ownership of source and tracker, and closes them in Close().
// Region must be non-empty. It is checked against the frame size when the first frame arrives.
func NewMonitor(logger logs.Log, source camera.FrameSource, tracker nn.ObjectTracker, options Options) (*Monitor, error) {
	if options.Region.IsEmpty() {
		return nil, fmt.Errorf("Monitor region %+v is empty", options.Region)
	}
	if !options.Mask.IsEmpty() && options.Mask.Intersection(options.Region) != options.Mask {
		return nil, fmt.Errorf("Monitor mask %+v is not inside region %+v", options.Mask, options.Region)
	}
	compositor, err := overlay.NewCompositor(logger, options.Style)
	if err != nil {
		return nil, err
	}
	toggles := options.Toggles
	if toggles == nil {
		toggles = overlay.NewToggleSet(overlay.DefaultToggles())
	}
	m := &Monitor{
		Log:            logger,
		source:         source,
		tracker:        tracker,
		options:        options,
		toggles:        toggles,
		history:        trajectory.NewStore(options.History),
		heat:           heatmap.NewAccumulator(options.Region.Width, options.Region.Height),
		compositor:     compositor,
		looperStopped:  make(chan bool),
		frameIntervals: ringbuffer.NewRingP[time.Duration](fpsWindow),
	}
	if options.RecordLabels {
		m.recorded = &nn.TrackLabels{
			Classes: tracker.Classes(),
		}
	}
	return m, nil
}

// Start the frame loop in a background goroutine
func (m *Monitor) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go m.loop()
	return nil
}

// Run the frame loop on the calling goroutine, until the stream ends, Stop() is called,
// or the capture source fails. Returns nil unless the capture source failed.
func (m *Monitor) Run() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	return m.loop()
}

// Ask the frame loop to stop, and wait for it to exit.
// The stop flag is only checked between frames, so the frame in flight is completed.
func (m *Monitor) Stop() {
	m.mustStop.Store(true)
	if m.started.CompareAndSwap(false, true) {
		// The loop never ran
		m.finish(StopReasonStopRequested, nil)
		close(m.looperStopped)
		return
	}
	<-m.looperStopped
}

// Close the monitor object.
func (m *Monitor) Close() {
	m.Log.Infof("Monitor shutting down")
	m.Stop()
	if err := m.source.Close(); err != nil {
		m.Log.Warnf("Error closing frame source: %v", err)
	}
	m.tracker.Close()
	m.Log.Infof("Monitor is closed")
}

// Wait for the frame loop to exit, and return the terminal error (if any)
func (m *Monitor) Wait() error {
	<-m.looperStopped
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	return m.stopErr
}

// Clear all trajectories and the heatmap. It is safe to call this at any time, and more than once.
func (m *Monitor) Reset() {
	m.mutateLock.Lock()
	m.history.Reset()
	m.heat.Reset()
	m.mutateLock.Unlock()
	m.Log.Infof("Monitor history and heatmap reset")
}

func (m *Monitor) Toggles() *overlay.ToggleSet {
	return m.toggles
}

func (m *Monitor) History() *trajectory.Store {
	return m.history
}

func (m *Monitor) Heatmap() *heatmap.Accumulator {
	return m.heat
}

func (m *Monitor) Options() Options {
	return m.options
}

// Return the most recent frame result, or nil if no frame has been processed yet
func (m *Monitor) LatestFrame() *FrameResult {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	return m.latest
}

// Return a copy of the recorded tracker output, or nil if Options.RecordLabels was false
func (m *Monitor) RecordedLabels() *nn.TrackLabels {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	if m.recorded == nil {
		return nil
	}
	c := *m.recorded
	c.Frames = append([]*nn.FrameLabels(nil), m.recorded.Frames...)
	return &c
}

func (m *Monitor) Status() Status {
	m.stateLock.Lock()
	s := Status{
		State:           m.state,
		StopReason:      m.stopReason,
		Frames:          m.nFrames,
		Events:          m.nEvents,
		DetectionErrors: m.nDetectionErrs,
		CorruptFrames:   m.nCorrupt,
	}
	if m.stopErr != nil {
		s.Error = m.stopErr.Error()
	}
	intervals := make([]time.Duration, 0, m.frameIntervals.Len())
	for i := 0; i < m.frameIntervals.Len(); i++ {
		intervals = append(intervals, m.frameIntervals.Peek(i))
	}
	m.stateLock.Unlock()

	s.FPS = estimateFPS(intervals)
	s.StageMS = m.stats.Milliseconds()
	s.Identities = len(m.history.Identities())
	s.Toggles = m.toggles.Snapshot()
	return s
}

func (m *Monitor) setState(state State) {
	m.stateLock.Lock()
	m.state = state
	m.stateLock.Unlock()
}

// Enter the terminal state. Only the first call has any effect.
func (m *Monitor) finish(reason StopReason, err error) {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	if m.state == StateStopped {
		return
	}
	m.state = StateStopped
	m.stopReason = reason
	m.stopErr = err
}

func (m *Monitor) loop() error {
	defer close(m.looperStopped)
	m.setState(StateStreaming)
	m.Log.Infof("Monitor started. Region %+v, mask %+v", m.options.Region, m.options.Mask)

	for index := int64(0); ; index++ {
		if m.mustStop.Load() {
			m.Log.Infof("Monitor stopped after %v frames", index)
			m.finish(StopReasonStopRequested, nil)
			return nil
		}

		start := time.Now()
		img, err := m.acquire(index)
		if err == errEndOfStream {
			m.Log.Infof("End of stream after %v frames", index)
			m.finish(StopReasonEndOfStream, nil)
			return nil
		} else if errors.Is(err, camera.ErrCorruptFrame) {
			m.Log.Warnf("Skipping frame %v: %v", index, err)
			m.stateLock.Lock()
			m.nCorrupt++
			m.stateLock.Unlock()
			continue
		} else if err != nil {
			m.Log.Errorf("%v", err)
			m.finish(StopReasonCaptureFailed, err)
			return err
		}
		m.stats.Acquire.Since(start)

		result := m.processFrame(index, start, img)
		m.stats.Total.Since(start)
		m.publish(result)
	}
}

// Publish a processed frame to the latest-frame slot and all watchers
func (m *Monitor) publish(result *FrameResult) {
	m.stateLock.Lock()
	now := time.Now()
	if !m.lastFrameAt.IsZero() {
		m.frameIntervals.Add(now.Sub(m.lastFrameAt))
	}
	m.lastFrameAt = now
	m.nFrames++
	m.nEvents += int64(len(result.Events))
	if result.DetectionErr != nil {
		m.nDetectionErrs++
	}
	m.latest = result
	if m.recorded != nil {
		m.recorded.Frames = append(m.recorded.Frames, &nn.FrameLabels{
			Frame:   int(result.Index),
			Objects: result.Detections,
		})
	}
	m.stateLock.Unlock()

	m.sendToWatchers(result)
}
