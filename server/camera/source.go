package camera

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/imgx"
	"github.com/cyclopcam/logs"
)

// ErrFrameSize is returned when a frame's dimensions differ from the first frame of the session
var ErrFrameSize = errors.New("Frame dimensions changed mid-session")

// ErrCorruptFrame is returned for a single frame that could not be read or decoded.
// The source is still usable, and the next call to NextFrame moves on to the following frame.
var ErrCorruptFrame = errors.New("Corrupt frame")

// FrameSource produces the frames of one capture session.
// NextFrame returns io.EOF when the stream has ended normally.
// An error wrapping ErrCorruptFrame means only that frame is lost.
// Any other error means the capture device has failed.
// All frames of a session have the same dimensions.
type FrameSource interface {
	NextFrame() (*image.RGBA, error)
	Close() error
}

// ImageSequenceSource plays back a directory of JPEG files, in filename order.
type ImageSequenceSource struct {
	log       logs.Log
	files     []string
	next      int
	interval  time.Duration // Zero means no pacing
	lastFrame time.Time
	width     int
	height    int
}

// Open a directory of .jpg/.jpeg files.
// If fps is greater than zero, NextFrame will sleep so that frames are produced no faster than fps.
func NewImageSequenceSource(log logs.Log, dir string, fps float64) (*ImageSequenceSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("Failed to open image sequence '%v': %w", dir, err)
	}
	files := []string{}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".jpg" || ext == ".jpeg") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("No JPEG files found in '%v'", dir)
	}
	s := &ImageSequenceSource{
		log:   log,
		files: files,
	}
	if fps > 0 {
		s.interval = time.Duration(float64(time.Second) / fps)
	}
	log.Infof("Image sequence '%v' has %v frames", dir, len(files))
	return s, nil
}

func (s *ImageSequenceSource) Len() int {
	return len(s.files)
}

func (s *ImageSequenceSource) NextFrame() (*image.RGBA, error) {
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	if s.interval != 0 && !s.lastFrame.IsZero() {
		if wait := s.interval - time.Since(s.lastFrame); wait > 0 {
			time.Sleep(wait)
		}
	}
	fn := s.files[s.next]
	s.next++
	img, err := imgx.ReadJPEGFile(fn)
	s.lastFrame = time.Now()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFrame, err)
	}
	if err := s.checkSize(img); err != nil {
		return nil, fmt.Errorf("%v: %w", fn, err)
	}
	return img, nil
}

func (s *ImageSequenceSource) checkSize(img *image.RGBA) error {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if s.width == 0 {
		s.width, s.height = w, h
		return nil
	}
	if w != s.width || h != s.height {
		return fmt.Errorf("%w (%vx%v, expected %vx%v)", ErrFrameSize, w, h, s.width, s.height)
	}
	return nil
}

func (s *ImageSequenceSource) Close() error {
	return nil
}
