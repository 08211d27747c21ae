package heatmap

import (
	"errors"
	"image"
	"sync"

	"github.com/cyclopcam/aquatrack/pkg/nn"
)

// Package heatmap accumulates where objects have been.
//
// The surface is a float32 grid with the same dimensions as the detection region.
// Every detection deposits a filled disc of +1 around its center. Values are never
// clipped. They are only rescaled to 0..255 when rendered, using the global min
// and max of the surface. A consequence of global rescaling is that one spot which
// accumulates far more than the rest will compress the visible range everywhere else.

var ErrNegativeRadius = errors.New("heatmap deposit radius may not be negative")

type Settings struct {
	RadiusScale float32 `json:"radiusScale"` // Disc radius is this fraction of the shorter side of the detection box
	DecayFactor float32 `json:"decayFactor"` // If between 0 and 1, the surface is multiplied by this once per frame. Zero disables decay.
}

func DefaultSettings() Settings {
	return Settings{
		RadiusScale: 0.5,
		DecayFactor: 0,
	}
}

// DecayEnabled returns true if DecayFactor is a valid multiplicative decay
func (s Settings) DecayEnabled() bool {
	return s.DecayFactor > 0 && s.DecayFactor < 1
}

// RadiusForBox returns the deposit radius for a detection box
func (s Settings) RadiusForBox(b nn.Box) int {
	side := min(b.Width(), b.Height())
	return max(0, int(side*s.RadiusScale))
}

// Accumulator is safe to use from multiple goroutines
type Accumulator struct {
	lock   sync.Mutex
	width  int
	height int
	cells  []float32
}

func NewAccumulator(width, height int) *Accumulator {
	return &Accumulator{
		width:  width,
		height: height,
		cells:  make([]float32, width*height),
	}
}

func (a *Accumulator) Size() (width, height int) {
	return a.width, a.height
}

// Value returns the raw accumulated value at (x,y), or zero if out of bounds
func (a *Accumulator) Value(x, y int) float32 {
	if x < 0 || y < 0 || x >= a.width || y >= a.height {
		return 0
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.cells[y*a.width+x]
}

// Deposit adds 1 to every cell within radius of center (inclusive).
// Cells outside the surface are ignored, so the center may lie outside the surface.
// A radius of zero deposits into the single cell at center.
func (a *Accumulator) Deposit(center nn.Point, radius int) error {
	if radius < 0 {
		return ErrNegativeRadius
	}
	x1 := max(center.X-radius, 0)
	y1 := max(center.Y-radius, 0)
	x2 := min(center.X+radius, a.width-1)
	y2 := min(center.Y+radius, a.height-1)
	r2 := radius * radius

	a.lock.Lock()
	defer a.lock.Unlock()
	for y := y1; y <= y2; y++ {
		dy := y - center.Y
		line := a.cells[y*a.width : (y+1)*a.width]
		for x := x1; x <= x2; x++ {
			dx := x - center.X
			if dx*dx+dy*dy <= r2 {
				line[x] += 1
			}
		}
	}
	return nil
}

// Decay multiplies every cell by factor. Values outside (0,1) are ignored.
func (a *Accumulator) Decay(factor float32) {
	if factor <= 0 || factor >= 1 {
		return
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	for i := range a.cells {
		a.cells[i] *= factor
	}
}

// Reset sets every cell back to zero
func (a *Accumulator) Reset() {
	a.lock.Lock()
	defer a.lock.Unlock()
	clear(a.cells)
}

// Normalized returns the surface rescaled to 0..255 using the global min and max.
// If every cell holds the same value, the result is all zeros.
func (a *Accumulator) Normalized() []uint8 {
	a.lock.Lock()
	defer a.lock.Unlock()
	out := make([]uint8, len(a.cells))
	if len(a.cells) == 0 {
		return out
	}
	lo, hi := a.cells[0], a.cells[0]
	for _, v := range a.cells {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi == lo {
		return out
	}
	scale := 255 / (hi - lo)
	for i, v := range a.cells {
		out[i] = uint8((v-lo)*scale + 0.5)
	}
	return out
}

// RenderNormalized renders the surface through the cold-to-hot palette.
// The returned image has the same dimensions as the surface, with origin (0,0).
func (a *Accumulator) RenderNormalized() *image.RGBA {
	norm := a.Normalized()
	img := image.NewRGBA(image.Rect(0, 0, a.width, a.height))
	for y := 0; y < a.height; y++ {
		src := norm[y*a.width : (y+1)*a.width]
		dst := img.Pix[y*img.Stride:]
		for x, v := range src {
			c := Color(v)
			dst[x*4+0] = c.R
			dst[x*4+1] = c.G
			dst[x*4+2] = c.B
			dst[x*4+3] = 255
		}
	}
	return img
}
