package camera

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/imgx"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func writeJPEG(t *testing.T, filename string, width, height int, gray uint8) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imgx.Fill(img, img.Bounds(), color.RGBA{gray, gray, gray, 255})
	jpg, err := imgx.EncodeJPEG(img, 90)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filename, jpg, 0644))
}

func TestImageSequenceSource(t *testing.T) {
	dir := t.TempDir()
	// Written out of order, to check that playback is sorted by filename
	for _, i := range []int{2, 0, 1} {
		writeJPEG(t, filepath.Join(dir, fmt.Sprintf("frame-%03d.jpg", i)), 32, 16, uint8(50+i*50))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	src, err := NewImageSequenceSource(logs.NewTestingLog(t), dir, 0)
	require.NoError(t, err)
	defer src.Close()
	require.Equal(t, 3, src.Len())

	for i := 0; i < 3; i++ {
		img, err := src.NextFrame()
		require.NoError(t, err)
		require.Equal(t, image.Rect(0, 0, 32, 16), img.Bounds())
		require.InDelta(t, 50+i*50, int(img.RGBAAt(16, 8).R), 4)
	}
	_, err = src.NextFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestImageSequenceSizeChange(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 32, 16, 100)
	writeJPEG(t, filepath.Join(dir, "b.jpeg"), 16, 16, 100)

	src, err := NewImageSequenceSource(logs.NewTestingLog(t), dir, 0)
	require.NoError(t, err)
	_, err = src.NextFrame()
	require.NoError(t, err)
	_, err = src.NextFrame()
	require.ErrorIs(t, err, ErrFrameSize)
}

func TestImageSequencePacing(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		writeJPEG(t, filepath.Join(dir, fmt.Sprintf("%v.jpg", i)), 8, 8, 0)
	}
	src, err := NewImageSequenceSource(logs.NewTestingLog(t), dir, 20)
	require.NoError(t, err)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := src.NextFrame()
		require.NoError(t, err)
	}
	// Two intervals of 50ms must elapse between three frames
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestImageSequenceEmpty(t *testing.T) {
	_, err := NewImageSequenceSource(logs.NewTestingLog(t), t.TempDir(), 0)
	require.Error(t, err)
	_, err = NewImageSequenceSource(logs.NewTestingLog(t), filepath.Join(t.TempDir(), "missing"), 0)
	require.Error(t, err)
}

func TestImageSequenceCorruptFrame(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "000.jpg"), 16, 16, 100)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001.jpg"), []byte("garbage"), 0644))
	writeJPEG(t, filepath.Join(dir, "002.jpg"), 16, 16, 100)

	src, err := NewImageSequenceSource(logs.NewTestingLog(t), dir, 0)
	require.NoError(t, err)
	_, err = src.NextFrame()
	require.NoError(t, err)
	_, err = src.NextFrame()
	require.ErrorIs(t, err, ErrCorruptFrame)
	// The source moves on after a corrupt frame
	img, err := src.NextFrame()
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	_, err = src.NextFrame()
	require.ErrorIs(t, err, io.EOF)
}
