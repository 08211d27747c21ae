package server

import (
	"fmt"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/aquatrack/pkg/nn/remote"
	"github.com/cyclopcam/aquatrack/server/camera"
	"github.com/cyclopcam/aquatrack/server/config"
	"github.com/cyclopcam/logs"
)

// Create the object tracker that is described by the config
func NewTrackerFromConfig(log logs.Log, cfg config.Tracker) (nn.ObjectTracker, error) {
	var classes []string
	if cfg.ClassFile != "" {
		var err error
		classes, err = nn.LoadClassFile(cfg.ClassFile)
		if err != nil {
			return nil, fmt.Errorf("Failed to load class file: %w", err)
		}
	}

	switch cfg.Kind {
	case "remote":
		log.Infof("Using remote tracker at %v", cfg.URL)
		tracker, err := remote.NewTracker(cfg.URL, time.Duration(cfg.TimeoutMS)*time.Millisecond, classes)
		if err != nil {
			return nil, err
		}
		return tracker, nil
	case "replay":
		labels, err := nn.LoadTrackLabels(cfg.LabelsFile)
		if err != nil {
			return nil, err
		}
		if classes != nil {
			labels.Classes = classes
		}
		log.Infof("Replaying %v frames of tracker output from %v", len(labels.Frames), cfg.LabelsFile)
		return nn.NewReplayTracker(labels), nil
	}
	return nil, fmt.Errorf("Unknown tracker kind '%v'", cfg.Kind)
}

// Create the frame source that is described by the config
func NewSourceFromConfig(log logs.Log, cfg config.Source) (camera.FrameSource, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("source.directory must be set")
	}
	source, err := camera.NewImageSequenceSource(log, cfg.Directory, cfg.FPS)
	if err != nil {
		return nil, err
	}
	return source, nil
}
