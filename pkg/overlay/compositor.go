package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/cyclopcam/aquatrack/pkg/imgx"
	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/logs"
	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
)

// TrackHistory is the part of the trajectory store that the compositor needs.
// Points are in display space.
type TrackHistory interface {
	RecentPoints(id nn.TrackID, skip int) []nn.Point
}

// HeatmapRenderer produces a colorized heatmap with the same size as the crop region
type HeatmapRenderer interface {
	RenderNormalized() *image.RGBA
}

type Style struct {
	BoxLineWidth      float64 `json:"boxLineWidth"`
	LabelFontSize     float64 `json:"labelFontSize"` // Zero disables labels
	PathLineWidth     float64 `json:"pathLineWidth"`
	PathMarkerRadius  float64 `json:"pathMarkerRadius"`
	HeatmapBlend      float32 `json:"heatmapBlend"` // Weight of the heatmap over the video
	BorderLineWidth   float64 `json:"borderLineWidth"`
	BorderDash        float64 `json:"borderDash"`
	BorderGap         float64 `json:"borderGap"`
	BorderColorHex    string  `json:"borderColor"` // eg "#ffffff"
	borderColorParsed color.RGBA
}

func DefaultStyle() Style {
	return Style{
		BoxLineWidth:     2,
		LabelFontSize:    13,
		PathLineWidth:    2,
		PathMarkerRadius: 2.5,
		HeatmapBlend:     0.6,
		BorderLineWidth:  2,
		BorderDash:       10,
		BorderGap:        6,
		BorderColorHex:   "#ffffff",
	}
}

// ComposeInput is everything that goes into one output frame
type ComposeInput struct {
	Frame      *image.RGBA    // The camera frame, in display space. Not modified.
	Region     nn.Rect        // The region that was given to the tracker
	Mask       nn.Rect        // Display space region that was hidden from the tracker. May be empty.
	Detections []nn.Detection // Detection space (relative to Region)
	Toggles    Toggles
	History    TrackHistory    // May be nil if Toggles.ShowTrajectories is false
	Heatmap    HeatmapRenderer // May be nil if Toggles.ShowHeatmap is false
}

// Compositor draws the visualization layers over a camera frame
type Compositor struct {
	log   logs.Log
	style Style
}

func NewCompositor(log logs.Log, style Style) (*Compositor, error) {
	c, err := parseHexColor(style.BorderColorHex)
	if err != nil {
		return nil, fmt.Errorf("Invalid border color '%v': %w", style.BorderColorHex, err)
	}
	style.borderColorParsed = c
	return &Compositor{
		log:   log,
		style: style,
	}, nil
}

// Compose produces a new output frame. None of the inputs are modified.
//
// Layers are applied in this order:
//  1. Boxes and labels (on a copy of the crop)
//  2. Trajectories (on the same copy)
//  3. Heatmap, which replaces layers 1 and 2 with the heatmap blended over the clean crop
//  4. The crop copy is pasted back into the frame
//  5. The mask region is restored from the original frame
//  6. A dashed border is drawn inside the region
//  7. Optionally, the output is cropped to the region
//
// Steps 5 and 6 are always applied.
func (c *Compositor) Compose(in ComposeInput) (*image.RGBA, error) {
	out := imgx.Clone(in.Frame)
	bounds := out.Bounds()
	region := toImageRect(in.Region)
	if !region.In(bounds) || region.Empty() {
		return nil, fmt.Errorf("Region %v is outside of frame %v", region, bounds)
	}
	sub := imgx.CopyRect(out, region)

	// The heatmap is a separate view mode, so it replaces the box and trajectory layers.
	// If the heatmap cannot be drawn, we fall back to those layers.
	heatmapDrawn := false
	if in.Toggles.ShowHeatmap && in.Heatmap != nil {
		heat := in.Heatmap.RenderNormalized()
		if err := imgx.Blend(sub, heat, c.style.HeatmapBlend); err != nil {
			c.log.Warnf("Skipping heatmap layer: %v", err)
		} else {
			heatmapDrawn = true
		}
	}
	if !heatmapDrawn {
		dc := gg.NewContextForRGBA(sub)
		if in.Toggles.ShowBoxes {
			c.drawBoxes(dc, in.Detections)
		}
		if in.Toggles.ShowTrajectories && in.History != nil {
			c.drawTrajectories(dc, in.Detections, in.History, in.Region.Origin())
		}
	}

	imgx.Paste(out, sub, region.Min)

	if !in.Mask.IsEmpty() {
		mask := toImageRect(in.Mask).Intersect(bounds)
		if !mask.Empty() {
			imgx.Paste(out, imgx.CopyRect(in.Frame, mask.Add(in.Frame.Bounds().Min)), mask.Min)
		}
	}

	// The border is drawn through a view of the region, so it cannot touch pixels outside it
	view := regionView(out, region)
	drawDashedBorder(gg.NewContextForRGBA(view), region.Dx(), region.Dy(), c.style.borderColorParsed, c.style.BorderLineWidth, c.style.BorderDash, c.style.BorderGap)

	if in.Toggles.ShowCroppedOnly {
		return imgx.CopyRect(out, region), nil
	}
	return out, nil
}

func (c *Compositor) drawBoxes(dc *gg.Context, detections []nn.Detection) {
	for i := range detections {
		d := &detections[i]
		if d.Box.Validate() != nil {
			continue
		}
		label := fmt.Sprintf("%v %.2f", d.ClassName, d.Confidence)
		if d.HasTrack {
			label += fmt.Sprintf(" #%v", d.TrackID)
		}
		drawBox(dc, d.Box, detectionColor(d), c.style.BoxLineWidth, label, c.style.LabelFontSize)
	}
}

func (c *Compositor) drawTrajectories(dc *gg.Context, detections []nn.Detection, history TrackHistory, origin nn.Point) {
	seen := map[nn.TrackID]bool{}
	for i := range detections {
		d := &detections[i]
		if !d.HasTrack || seen[d.TrackID] {
			continue
		}
		seen[d.TrackID] = true
		recent := history.RecentPoints(d.TrackID, 0)
		pts := make([]image.Point, len(recent))
		for j, p := range recent {
			local := nn.PointFromDisplay(p, origin)
			pts[j] = image.Point{X: local.X, Y: local.Y}
		}
		drawPath(dc, pts, TrackColor(d.TrackID), c.style.PathLineWidth, c.style.PathMarkerRadius)
	}
}

func toImageRect(r nn.Rect) image.Rectangle {
	return image.Rect(r.X, r.Y, r.X2(), r.Y2())
}

// regionView returns an image that shares pixels with img, covering only r, with origin (0,0)
func regionView(img *image.RGBA, r image.Rectangle) *image.RGBA {
	return &image.RGBA{
		Pix:    img.Pix[img.PixOffset(r.Min.X, r.Min.Y):],
		Stride: img.Stride,
		Rect:   image.Rect(0, 0, r.Dx(), r.Dy()),
	}
}

func parseHexColor(s string) (color.RGBA, error) {
	if s == "" {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}, nil
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
