package logprefix

import (
	"fmt"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// recorder captures formatted messages, and passes them on to the test log
type recorder struct {
	logs.Log
	lines []string
}

func (r *recorder) Infof(format string, a ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, a...))
	r.Log.Infof(format, a...)
}

func TestPrefix(t *testing.T) {
	rec := &recorder{Log: logs.NewTestingLog(t)}
	New(rec, "Sensors:").Infof("temperature %.1f", 24.5)
	NewNoSpace(rec, "[ws 3] ").Infof("closed")
	require.Equal(t, []string{"Sensors: temperature 24.5", "[ws 3] closed"}, rec.lines)
}
