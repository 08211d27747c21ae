package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	fn := filepath.Join(t.TempDir(), "aquatrack.json")
	require.NoError(t, os.WriteFile(fn, []byte(body), 0644))
	return fn
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	fn := writeConfig(t, `{
		"source": {"directory": "/tmp/frames", "fps": 15},
		"region": {"x": 200, "y": 300, "width": 640, "height": 480},
		"mask": {"x": 250, "y": 350, "width": 40, "height": 40},
		"toggles": {"heatmap": true},
		"heatmap": {"radiusScale": 0.25}
	}`)
	cfg, err := LoadConfig(fn)
	require.NoError(t, err)
	require.Equal(t, "/tmp/frames", cfg.Source.Directory)
	require.Equal(t, nn.Rect{X: 200, Y: 300, Width: 640, Height: 480}, cfg.Region)
	require.True(t, cfg.Toggles.ShowHeatmap)
	require.True(t, cfg.Toggles.ShowBoxes) // fields not mentioned keep their defaults
	require.EqualValues(t, 0.25, cfg.Heatmap.RadiusScale)

	// Untouched sections keep their defaults
	require.Equal(t, 60, cfg.History.Capacity)
	require.Equal(t, 10, cfg.History.EvictBlock)
	require.Equal(t, "remote", cfg.Tracker.Kind)
	require.Equal(t, ":8090", cfg.HTTP.Listen)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `{not json`))
	require.Error(t, err)

	// No region
	_, err = LoadConfig(writeConfig(t, `{}`))
	require.Error(t, err)

	// Mask outside region
	_, err = LoadConfig(writeConfig(t, `{"region": {"x":0,"y":0,"width":100,"height":100}, "mask": {"x":90,"y":90,"width":20,"height":20}}`))
	require.Error(t, err)

	// Bad tracker
	_, err = LoadConfig(writeConfig(t, `{"region": {"x":0,"y":0,"width":100,"height":100}, "tracker": {"kind": "magic"}}`))
	require.Error(t, err)

	// Bad decay
	_, err = LoadConfig(writeConfig(t, `{"region": {"x":0,"y":0,"width":100,"height":100}, "heatmap": {"decayFactor": 1.5}}`))
	require.Error(t, err)

	// Eviction block larger than capacity
	_, err = LoadConfig(writeConfig(t, `{"region": {"x":0,"y":0,"width":100,"height":100}, "history": {"capacity": 5, "evictBlock": 6}}`))
	require.Error(t, err)
}
