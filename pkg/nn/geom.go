package nn

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

// ErrInvalidGeometry is the parent of all geometry failures.
// A detection whose box fails validation is dropped, but the frame continues.
var ErrInvalidGeometry = errors.New("invalid geometry")

var ErrNonFiniteBox = fmt.Errorf("%w: non-finite box coordinate", ErrInvalidGeometry)
var ErrDegenerateBox = fmt.Errorf("%w: box has x1 > x2 or y1 > y2", ErrInvalidGeometry)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Add(b Point) Point {
	return Point{X: p.X + b.X, Y: p.Y + b.Y}
}

func (p Point) Sub(b Point) Point {
	return Point{X: p.X - b.X, Y: p.Y - b.Y}
}

// MarshalJSON writes the point as a two element array [x,y], which is the
// shape that consumers of trajectories expect.
func (p Point) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%d,%d]", p.X, p.Y)), nil
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var a [2]int
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	p.X, p.Y = a[0], a[1]
	return nil
}

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func MakeRect(x1, y1, x2, y2 int) Rect {
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func (r Rect) X2() int {
	return r.X + r.Width
}

func (r Rect) Y2() int {
	return r.Y + r.Height
}

func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Origin is the top-left corner of the rectangle.
func (r Rect) Origin() Point {
	return Point{X: r.X, Y: r.Y}
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X+r.Width, b.X+b.Width)
	y2 := min(r.Y+r.Height, b.Y+b.Height)
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

// Returns true if r lies entirely inside a width x height image
func (r Rect) InsideImage(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.Width >= 0 && r.Height >= 0 && r.X2() <= width && r.Y2() <= height
}

// Box is an axis-aligned bounding box with floating point corners, as produced by a tracker.
// X1,Y1 is the top-left corner, and X2,Y2 is the bottom-right corner.
type Box struct {
	X1 float32
	Y1 float32
	X2 float32
	Y2 float32
}

// MarshalJSON writes the box as [x1,y1,x2,y2]
func (b Box) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%g,%g,%g,%g]", b.X1, b.Y1, b.X2, b.Y2)), nil
}

func (b *Box) UnmarshalJSON(data []byte) error {
	var a [4]float32
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = Box{X1: a[0], Y1: a[1], X2: a[2], Y2: a[3]}
	return nil
}

func (b Box) Width() float32 {
	return b.X2 - b.X1
}

func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Validate returns nil if all coordinates are finite and the box is not inverted.
// Zero width or height is allowed.
func (b Box) Validate() error {
	for _, v := range [4]float32{b.X1, b.Y1, b.X2, b.Y2} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return ErrNonFiniteBox
		}
	}
	if b.X1 > b.X2 || b.Y1 > b.Y2 {
		return ErrDegenerateBox
	}
	return nil
}

// Convert a detection-space box into display space, by adding the origin of the
// detection region to all four coordinates.
//
// Coordinates are float32, so FromDisplay(ToDisplay(b)) is exact only when every
// coordinate is representable at the display magnitude. For display coordinates
// below 16384, the round trip is off by at most 1/2048 of a pixel.
func ToDisplay(b Box, origin Point) (Box, error) {
	return offsetBox(b, float32(origin.X), float32(origin.Y))
}

// Inverse of ToDisplay
func FromDisplay(b Box, origin Point) (Box, error) {
	return offsetBox(b, -float32(origin.X), -float32(origin.Y))
}

func offsetBox(b Box, dx, dy float32) (Box, error) {
	if err := b.Validate(); err != nil {
		return Box{}, err
	}
	r := Box{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
	if err := r.Validate(); err != nil {
		return Box{}, err
	}
	return r, nil
}

func PointToDisplay(p Point, origin Point) Point {
	return p.Add(origin)
}

func PointFromDisplay(p Point, origin Point) Point {
	return p.Sub(origin)
}

// Center returns the integer center of the box.
// The center is computed in floating point and then truncated toward zero,
// so (0,0,5,5) has center (2,2).
func Center(b Box) (Point, error) {
	if err := b.Validate(); err != nil {
		return Point{}, err
	}
	return Point{
		X: int((b.X1 + b.X2) / 2),
		Y: int((b.Y1 + b.Y2) / 2),
	}, nil
}
