package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/logprefix"
	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/aquatrack/pkg/overlay"
	"github.com/cyclopcam/aquatrack/server/camera"
	"github.com/cyclopcam/aquatrack/server/config"
	"github.com/cyclopcam/aquatrack/server/eventdb"
	"github.com/cyclopcam/aquatrack/server/monitor"
	"github.com/cyclopcam/aquatrack/server/sensors"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log              logs.Log
	Config           *config.Config
	ShutdownComplete chan error // Receives one value when Shutdown() has finished

	monitor      *monitor.Monitor
	toggles      *overlay.ToggleSet
	events       *eventdb.EventDB // nil if the event log is disabled
	sensors      *sensors.Poller  // nil if sensors are disabled
	signalIn     chan os.Signal
	httpServer   *http.Server
	httpRouter   *httprouter.Router
	wsUpgrader   websocket.Upgrader
	shutdownOnce sync.Once
}

// Create a new server from config. The caller supplies the frame source and tracker,
// so that the server can be driven by anything that produces frames.
func NewServer(logger logs.Log, cfg *config.Config, source camera.FrameSource, tracker nn.ObjectTracker) (*Server, error) {
	s := &Server{
		Log:              logger,
		Config:           cfg,
		ShutdownComplete: make(chan error, 1),
		toggles:          overlay.NewToggleSet(cfg.Toggles),
	}

	mon, err := monitor.NewMonitor(logprefix.New(logger, "Monitor:"), source, tracker, monitor.Options{
		Region:       cfg.Region,
		Mask:         cfg.Mask,
		Persist:      cfg.Tracker.Persist,
		History:      cfg.History,
		Heatmap:      cfg.Heatmap,
		Style:        cfg.Style,
		Toggles:      s.toggles,
		RecordLabels: cfg.Tracker.RecordFile != "",
	})
	if err != nil {
		return nil, err
	}
	s.monitor = mon

	if cfg.EventDB.Path != "" {
		s.events, err = eventdb.Open(logprefix.New(logger, "EventDB:"), cfg.EventDB.Path, cfg.EventDB.MaxEvents)
		if err != nil {
			mon.Close()
			return nil, err
		}
		s.events.Attach(mon)
	}

	if cfg.Sensors.Enabled {
		s.sensors, err = sensors.NewPollerFromConfig(logprefix.New(logger, "Sensors:"), cfg.Sensors)
		if err != nil {
			s.closeComponents()
			return nil, err
		}
	}

	if err := s.setupHttpRoutes(); err != nil {
		s.closeComponents()
		return nil, err
	}
	return s, nil
}

func (s *Server) Monitor() *monitor.Monitor {
	return s.monitor
}

// Start the frame loop and sensor polling
func (s *Server) StartAll() error {
	if s.sensors != nil {
		s.sensors.Start()
	}
	if err := s.monitor.Start(); err != nil {
		return err
	}
	go func() {
		// The HTTP API stays up after the stream ends, so that results can still be inspected
		if err := s.monitor.Wait(); err != nil {
			s.Log.Errorf("Monitor stopped: %v", err)
		} else {
			s.Log.Infof("Monitor stopped: %v", s.monitor.Status().StopReason)
		}
	}()
	return nil
}

// port example: ":8090"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'", sig.String())
			s.Shutdown()
		}
	}()
}

// Stop everything. It is safe to call this more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.Log.Infof("Shutdown")
		if s.signalIn != nil {
			signal.Stop(s.signalIn)
			close(s.signalIn)
		}
		var err error
		if s.httpServer != nil {
			s.Log.Infof("Closing HTTP server")
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = s.httpServer.Shutdown(ctx)
			cancel()
		}
		s.closeComponents()
		if err != nil {
			s.Log.Warnf("Shutdown complete, with error: %v", err)
		} else {
			s.Log.Infof("Shutdown complete")
		}
		s.ShutdownComplete <- err
	})
}

func (s *Server) closeComponents() {
	// Stop the monitor first, so that the event DB receives every frame before it closes
	s.monitor.Stop()
	if err := s.saveRecording(); err != nil {
		s.Log.Errorf("%v", err)
	}
	if s.events != nil {
		s.events.Close()
	}
	if s.sensors != nil {
		s.sensors.Close()
	}
	s.monitor.Close()
}

// Write the tracker output of this session to Tracker.RecordFile, so that it can be replayed
func (s *Server) saveRecording() error {
	fn := s.Config.Tracker.RecordFile
	labels := s.monitor.RecordedLabels()
	if fn == "" || labels == nil {
		return nil
	}
	if err := labels.Save(fn); err != nil {
		return fmt.Errorf("Failed to save tracker recording: %w", err)
	}
	s.Log.Infof("Saved %v frames of tracker output to %v", len(labels.Frames), fn)
	return nil
}
