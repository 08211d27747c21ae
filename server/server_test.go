package server

import (
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/imgx"
	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/aquatrack/server/config"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	remaining int
}

func (s *countingSource) NextFrame() (*image.RGBA, error) {
	if s.remaining == 0 {
		return nil, io.EOF
	}
	s.remaining--
	return image.NewRGBA(image.Rect(0, 0, 160, 120)), nil
}

func (s *countingSource) Close() error {
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Region = nn.Rect{X: 20, Y: 10, Width: 100, Height: 100}
	cfg.EventDB.Path = filepath.Join(t.TempDir(), "events.sqlite")
	cfg.Tracker.RecordFile = filepath.Join(t.TempDir(), "recording.json")
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestServer(t *testing.T, nFrames int) *Server {
	labels := &nn.TrackLabels{Classes: []string{"fish"}}
	for i := 0; i < nFrames; i++ {
		x := float32(i * 5)
		labels.Frames = append(labels.Frames, &nn.FrameLabels{
			Frame: i,
			Objects: []nn.Detection{
				{Class: 0, Confidence: 0.9, Box: nn.Box{X1: x, Y1: 10, X2: x + 10, Y2: 20}, HasTrack: true, TrackID: 1},
				{Class: 0, Confidence: 0.8, Box: nn.Box{X1: 50, Y1: 50, X2: 60, Y2: 60}, HasTrack: true, TrackID: 2},
			},
		})
	}
	s, err := NewServer(logs.NewTestingLog(t), testConfig(t), &countingSource{remaining: nFrames}, nn.NewReplayTracker(labels))
	require.NoError(t, err)
	return s
}

func request(s *Server, method, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.httpRouter.ServeHTTP(w, httptest.NewRequest(method, url, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestServerAPI(t *testing.T) {
	s := newTestServer(t, 10)
	require.NoError(t, s.monitor.Run())

	require.Equal(t, http.StatusOK, request(s, "GET", "/api/ping").Code)

	status := decode[map[string]any](t, request(s, "GET", "/api/status"))
	require.Equal(t, "stopped", status["state"])
	require.Equal(t, "endOfStream", status["stopReason"])
	require.EqualValues(t, 10, status["frames"])
	require.EqualValues(t, 20, status["events"])

	// Tracks
	type track struct {
		ID     int64      `json:"id"`
		Length int        `json:"length"`
		Recent []nn.Point `json:"recent"`
	}
	tracks := decode[[]track](t, request(s, "GET", "/api/tracks?skip=1"))
	require.Len(t, tracks, 2)
	require.EqualValues(t, 1, tracks[0].ID)
	require.Equal(t, 10, tracks[0].Length)
	require.Equal(t, nn.Point{X: 25, Y: 25}, tracks[0].Recent[0])
	require.Len(t, tracks[1].Recent, 10)

	// Track 1 ends at (70,25), track 2 sits at (75,65)
	tracks = decode[[]track](t, request(s, "GET", "/api/tracks?area=60,50,100,100"))
	require.Len(t, tracks, 1)
	require.EqualValues(t, 2, tracks[0].ID)
	require.Equal(t, http.StatusBadRequest, request(s, "GET", "/api/tracks?area=1,2,3").Code)

	// Events are written by a background thread
	require.Eventually(t, func() bool {
		n, _ := s.events.Count()
		return n == 20
	}, 5*time.Second, 5*time.Millisecond)
	events := decode[[]map[string]any](t, request(s, "GET", "/api/events?limit=3"))
	require.Len(t, events, 3)
	require.Equal(t, "fish", events[0]["class_name"])
	trackEvents := decode[[]map[string]any](t, request(s, "GET", "/api/tracks/2/events"))
	require.Len(t, trackEvents, 10)

	// Latest frame and heatmap
	w := request(s, "GET", "/api/frame/latest")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	img, err := imgx.DecodeJPEG(w.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 160, 120), img.Bounds())

	w = request(s, "GET", "/api/heatmap")
	require.Equal(t, http.StatusOK, w.Code)
	img, err = imgx.DecodeJPEG(w.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	sensors := decode[map[string]any](t, request(s, "GET", "/api/sensors"))
	require.Equal(t, false, sensors["enabled"])

	// Reset
	require.Equal(t, http.StatusOK, request(s, "POST", "/api/reset").Code)
	tracks = decode[[]track](t, request(s, "GET", "/api/tracks"))
	require.Empty(t, tracks)

	s.Shutdown()
	require.NoError(t, <-s.ShutdownComplete)

	// The session was recorded, and can be replayed
	recorded, err := nn.LoadTrackLabels(s.Config.Tracker.RecordFile)
	require.NoError(t, err)
	require.Len(t, recorded.Frames, 10)
}

func TestToggleAPI(t *testing.T) {
	s := newTestServer(t, 0)
	defer s.Shutdown()

	toggles := decode[map[string]bool](t, request(s, "GET", "/api/toggles"))
	require.True(t, toggles["boxes"])
	require.False(t, toggles["heatmap"])

	toggles = decode[map[string]bool](t, request(s, "POST", "/api/toggles/heatmap/on"))
	require.True(t, toggles["heatmap"])
	toggles = decode[map[string]bool](t, request(s, "POST", "/api/toggles/boxes/toggle"))
	require.False(t, toggles["boxes"])
	toggles = decode[map[string]bool](t, request(s, "POST", "/api/toggles/boxes/1"))
	require.True(t, toggles["boxes"])
	require.True(t, s.monitor.Toggles().Snapshot().ShowHeatmap)

	require.Equal(t, http.StatusBadRequest, request(s, "POST", "/api/toggles/sparkles/on").Code)
	require.Equal(t, http.StatusBadRequest, request(s, "POST", "/api/toggles/heatmap/maybe").Code)
}

func TestStopAPIAndRateLimit(t *testing.T) {
	s := newTestServer(t, 0)
	defer s.Shutdown()

	status := decode[map[string]any](t, request(s, "POST", "/api/stop"))
	require.Equal(t, "stopped", status["state"])
	require.Equal(t, "stopRequested", status["stopReason"])

	// 5 requests per second are allowed
	codes := []int{}
	for i := 0; i < 6; i++ {
		codes = append(codes, request(s, "POST", "/api/reset").Code)
	}
	require.Equal(t, http.StatusOK, codes[0])
	require.Equal(t, http.StatusTooManyRequests, codes[5])

	w := request(s, "GET", "/api/frame/latest")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
