package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() error {
	logEveryRequest := false
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if logEveryRequest {
				s.Log.Infof("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	// Commands that change the state of the monitor are rate limited, so that a stuck
	// client (eg a UI button that auto-repeats) can't hammer the frame loop's locks.
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		// We don't need httprate.KeyByEndpoint, because we create a unique rate limiter for each endpoint.
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))

		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/status", s.httpStatus)
	handle("GET", "/api/toggles", s.httpGetToggles)
	ratelimited("POST", "/api/toggles/:name/:value", s.httpSetToggle, 20, time.Second)
	ratelimited("POST", "/api/reset", s.httpReset, 5, time.Second)
	ratelimited("POST", "/api/stop", s.httpStop, 5, time.Second)
	handle("GET", "/api/tracks", s.httpTracks)
	handle("GET", "/api/tracks/:id/events", s.httpTrackEvents)
	handle("GET", "/api/heatmap", s.httpHeatmap)
	handle("GET", "/api/sensors", s.httpSensors)
	handle("GET", "/api/events", s.httpEvents)
	handle("GET", "/api/frame/latest", s.httpLatestFrame)
	handle("GET", "/api/ws", s.httpWebSocket)

	s.httpRouter = router
	return nil
}
