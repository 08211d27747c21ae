package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cyclopcam/aquatrack/pkg/heatmap"
	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/aquatrack/pkg/overlay"
	"github.com/cyclopcam/aquatrack/pkg/trajectory"
	"github.com/cyclopcam/aquatrack/server/sensors"
)

const DefaultFilename = "aquatrack.json"

type Source struct {
	Directory string  `json:"directory"` // Directory of JPEG frames, played back in filename order
	FPS       float64 `json:"fps"`       // Playback rate. Zero plays back as fast as possible.
}

type Tracker struct {
	Kind       string `json:"kind"`       // "remote" or "replay"
	URL        string `json:"url"`        // For remote, eg http://localhost:8500/track
	TimeoutMS  int    `json:"timeoutMS"`  // For remote
	ClassFile  string `json:"classFile"`  // Optional text file with one class name per line
	LabelsFile string `json:"labelsFile"` // For replay, a JSON file of recorded tracker output
	Persist    bool   `json:"persist"`    // Ask the tracker to keep identities across frames
	RecordFile string `json:"recordFile"` // If set, all tracker output is saved here on shutdown, in the replay format
}

type EventDB struct {
	Path      string `json:"path"`      // SQLite file. Empty disables the event log.
	MaxEvents int    `json:"maxEvents"` // Oldest events are deleted beyond this count
}

type HTTP struct {
	Listen string `json:"listen"` // eg ":8090"
}

type Config struct {
	Source      Source              `json:"source"`
	Tracker     Tracker             `json:"tracker"`
	Region      nn.Rect             `json:"region"` // The part of the frame that is given to the tracker
	Mask        nn.Rect             `json:"mask"`   // Display space area inside Region that is whited out before tracking. Optional.
	Toggles     overlay.Toggles     `json:"toggles"`
	History     trajectory.Settings `json:"history"`
	Heatmap     heatmap.Settings    `json:"heatmap"`
	Style       overlay.Style       `json:"style"`
	Sensors     sensors.Config      `json:"sensors"`
	EventDB     EventDB             `json:"eventDB"`
	HTTP        HTTP                `json:"http"`
	JPEGQuality int                 `json:"jpegQuality"` // Quality of JPEG frames sent to clients
}

// Default returns a config that works out of the box, except for Source.Directory and Region
func Default() *Config {
	return &Config{
		Tracker: Tracker{
			Kind:      "remote",
			URL:       "http://localhost:8500/track",
			TimeoutMS: 5000,
			Persist:   true,
		},
		Toggles: overlay.DefaultToggles(),
		History: trajectory.DefaultSettings(),
		Heatmap: heatmap.DefaultSettings(),
		Style:   overlay.DefaultStyle(),
		Sensors: sensors.DefaultConfig(),
		EventDB: EventDB{
			Path:      "aquatrack-events.sqlite",
			MaxEvents: 100000,
		},
		HTTP: HTTP{
			Listen: ":8090",
		},
		JPEGQuality: 80,
	}
}

// Load the config file, on top of the defaults
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	cfg := Default()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

// Validate checks the parts of the config that don't depend on the frame size.
// The region is checked against the frame size when the first frame arrives.
func (c *Config) Validate() error {
	if c.Region.IsEmpty() {
		return errors.New("region must have a positive width and height")
	}
	if !c.Mask.IsEmpty() {
		if c.Mask.Intersection(c.Region) != c.Mask {
			return fmt.Errorf("mask %+v must lie inside region %+v", c.Mask, c.Region)
		}
	}
	switch c.Tracker.Kind {
	case "remote":
		if c.Tracker.URL == "" {
			return errors.New("tracker.url is required for a remote tracker")
		}
	case "replay":
		if c.Tracker.LabelsFile == "" {
			return errors.New("tracker.labelsFile is required for a replay tracker")
		}
	default:
		return fmt.Errorf("unknown tracker kind '%v'. Valid values are 'remote' and 'replay'", c.Tracker.Kind)
	}
	if c.History.Capacity < 1 {
		return errors.New("history.capacity must be at least 1")
	}
	if c.History.EvictBlock < 1 || c.History.EvictBlock > c.History.Capacity {
		return fmt.Errorf("history.evictBlock must be between 1 and %v", c.History.Capacity)
	}
	if c.Heatmap.DecayFactor != 0 && !c.Heatmap.DecayEnabled() {
		return errors.New("heatmap.decayFactor must be zero (disabled), or between 0 and 1")
	}
	return nil
}
