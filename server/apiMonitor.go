package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/imgx"
	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/aquatrack/pkg/overlay"
	"github.com/cyclopcam/aquatrack/server/monitor"
	"github.com/cyclopcam/aquatrack/server/sensors"
	"github.com/cyclopcam/aquatrack/server/streamer"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}

func (s *Server) httpStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	www.SendJSON(w, s.monitor.Status())
}

func (s *Server) httpGetToggles(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	www.SendJSON(w, s.toggles.Snapshot())
}

// Set a display toggle.
// Example: curl -X POST localhost:8090/api/toggles/heatmap/on
// Value may be on, off, true, false, 1, 0, or toggle.
func (s *Server) httpSetToggle(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := params.ByName("name")
	value := params.ByName("value")
	var err error
	switch value {
	case "on", "true", "1":
		err = s.toggles.Set(name, true)
	case "off", "false", "0":
		err = s.toggles.Set(name, false)
	case "toggle":
		_, err = s.toggles.Flip(name)
	default:
		www.PanicBadRequestf("Invalid toggle value '%v'. Valid values are 'on', 'off', and 'toggle'", value)
	}
	if err != nil {
		www.PanicBadRequestf("%v. Valid toggles are %v", err, strings.Join(overlay.Names(), ", "))
	}
	www.SendJSON(w, s.toggles.Snapshot())
}

func (s *Server) httpReset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.monitor.Reset()
	www.SendOK(w)
}

// Stop the frame loop. The HTTP API stays up.
func (s *Server) httpStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.monitor.Stop()
	www.SendJSON(w, s.monitor.Status())
}

type trackJSON struct {
	ID     nn.TrackID `json:"id"`
	Length int        `json:"length"` // Number of points retained
	Recent []nn.Point `json:"recent"` // Subsampled recent points, oldest first, display space
}

// Return the recent trajectory of every identity that has been seen.
// Optional query parameter "skip" sets the subsampling step. Otherwise history.skip is used.
// If "area" is given as x1,y1,x2,y2 (display space), only identities whose latest
// point lies inside that rectangle are returned.
// Example: curl localhost:8090/api/tracks?area=0,0,640,360
func (s *Server) httpTracks(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	skip := www.QueryInt(r, "skip")
	history := s.monitor.History()
	var ids []nn.TrackID
	if area := www.QueryValue(r, "area"); area != "" {
		rect, err := parseArea(area)
		if err != nil {
			www.PanicBadRequestf("%v", err)
		}
		ids = history.IdentitiesInRect(rect)
	} else {
		ids = history.Identities()
	}
	tracks := []trackJSON{}
	for _, id := range ids {
		tracks = append(tracks, trackJSON{
			ID:     id,
			Length: history.Len(id),
			Recent: history.RecentPoints(id, skip),
		})
	}
	www.SendJSON(w, tracks)
}

// Parse "x1,y1,x2,y2"
func parseArea(area string) (nn.Rect, error) {
	parts := strings.Split(area, ",")
	if len(parts) != 4 {
		return nn.Rect{}, fmt.Errorf("Invalid area '%v'. Expected x1,y1,x2,y2", area)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nn.Rect{}, fmt.Errorf("Invalid area '%v': %w", area, err)
		}
		v[i] = n
	}
	r := nn.MakeRect(v[0], v[1], v[2], v[3])
	if r.IsEmpty() {
		return nn.Rect{}, fmt.Errorf("Area '%v' is empty", area)
	}
	return r, nil
}

func (s *Server) httpHeatmap(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	jpg, err := imgx.EncodeJPEG(s.monitor.Heatmap().RenderNormalized(), s.Config.JPEGQuality)
	www.Check(err)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(jpg)
}

func (s *Server) httpSensors(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type sensorsJSON struct {
		Enabled bool              `json:"enabled"`
		Latest  *sensors.Reading  `json:"latest"`
		History []sensors.Reading `json:"history"`
	}
	www.CacheNever(w)
	resp := sensorsJSON{
		History: []sensors.Reading{},
	}
	if s.sensors != nil {
		resp.Enabled = true
		if latest, ok := s.sensors.Latest(); ok {
			resp.Latest = &latest
		}
		resp.History = s.sensors.History()
	}
	www.SendJSON(w, resp)
}

const maxEventsPerRequest = 1000

func (s *Server) eventLimit(r *http.Request) int {
	limit := www.QueryInt(r, "limit")
	if limit <= 0 {
		limit = 100
	}
	return min(limit, maxEventsPerRequest)
}

// Return the most recent detection events, newest first.
// Example: curl localhost:8090/api/events?limit=10
func (s *Server) httpEvents(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.events == nil {
		www.PanicBadRequestf("The event log is disabled")
	}
	www.CacheNever(w)
	events, err := s.events.Recent(s.eventLimit(r))
	www.Check(err)
	out := make([]*monitor.DetectionEvent, 0, len(events))
	for i := range events {
		out = append(out, events[i].Detection())
	}
	www.SendJSON(w, out)
}

func (s *Server) httpTrackEvents(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.events == nil {
		www.PanicBadRequestf("The event log is disabled")
	}
	id := www.ParseID(params.ByName("id"))
	www.CacheNever(w)
	events, err := s.events.RecentForTrack(id, s.eventLimit(r))
	www.Check(err)
	out := make([]*monitor.DetectionEvent, 0, len(events))
	for i := range events {
		out = append(out, events[i].Detection())
	}
	www.SendJSON(w, out)
}

// Fetch a JPG of the last composited frame.
// Example: curl -o img.jpg localhost:8090/api/frame/latest
func (s *Server) httpLatestFrame(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	latest := s.monitor.LatestFrame()
	if latest == nil {
		www.PanicBadRequestf("No image available yet")
	}
	jpg, err := imgx.EncodeJPEG(latest.Image, s.Config.JPEGQuality)
	www.Check(err)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(jpg)
}

// Stream detection events, and composited frames, over a websocket.
// Add ?frames=0 to receive only detection events.
func (s *Server) httpWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sendFrames := www.QueryValue(r, "frames") != "0"
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpWebSocket websocket upgrade failed: %v", err)
		return
	}
	streamer.RunEventWebSocketStreamer(s.Log, conn, s.monitor, streamer.Options{
		SendFrames:  sendFrames,
		JPEGQuality: s.Config.JPEGQuality,
	})
}
