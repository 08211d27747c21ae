package overlay

import (
	"image"
	"image/color"

	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// TrackColor returns a stable color for a track identity.
// Successive identities are spread around the hue circle by roughly the golden angle.
func TrackColor(id nn.TrackID) color.RGBA {
	hue := float64((uint64(id) * 137) % 360)
	c := colorful.Hsv(hue, 0.85, 0.95)
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Color of boxes that have no track identity
var untrackedColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}

func detectionColor(d *nn.Detection) color.RGBA {
	if d.HasTrack {
		return TrackColor(d.TrackID)
	}
	return untrackedColor
}

// Draw a box outline, with a label above it (or inside it, if there is no room above)
func drawBox(dc *gg.Context, b nn.Box, c color.Color, lineWidth float64, label string, fontSize float64) {
	dc.SetColor(c)
	dc.SetLineWidth(lineWidth)
	dc.DrawRectangle(float64(b.X1), float64(b.Y1), float64(b.Width()), float64(b.Height()))
	dc.Stroke()

	if label == "" || fontSize <= 0 {
		return
	}
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: fontSize}))
	tw, th := dc.MeasureString(label)
	pad := 2.0
	x := float64(b.X1)
	y := float64(b.Y1) - th - 2*pad
	if y < 0 {
		y = float64(b.Y1)
	}
	dc.DrawRectangle(x, y, tw+2*pad, th+2*pad)
	dc.Fill()
	dc.SetColor(color.Black)
	dc.DrawStringAnchored(label, x+pad, y+pad, 0, 1)
}

// Draw a polyline through points, with a marker at each point.
// Consecutive identical points produce no segment.
func drawPath(dc *gg.Context, points []image.Point, c color.Color, lineWidth, markerRadius float64) {
	dc.SetColor(c)
	dc.SetLineWidth(lineWidth)
	dc.SetLineCapRound()
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if a == b {
			continue
		}
		dc.DrawLine(float64(a.X), float64(a.Y), float64(b.X), float64(b.Y))
		dc.Stroke()
	}
	if markerRadius <= 0 {
		return
	}
	for _, p := range points {
		dc.DrawCircle(float64(p.X), float64(p.Y), markerRadius)
		dc.Fill()
	}
}

// Draw a dashed rectangle whose stroke lies entirely inside a width x height canvas
func drawDashedBorder(dc *gg.Context, width, height int, c color.Color, lineWidth, dash, gap float64) {
	dc.SetColor(c)
	dc.SetLineWidth(lineWidth)
	dc.SetLineCapButt()
	dc.SetDash(dash, gap)
	half := lineWidth / 2
	dc.DrawRectangle(half, half, float64(width)-lineWidth, float64(height)-lineWidth)
	dc.Stroke()
	dc.SetDash()
}
