package heatmap

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Cold to hot gradient, similar to the classic "jet" colormap
var paletteStops = []string{
	"#00008f", // dark blue
	"#0000ff",
	"#00ffff",
	"#80ff80",
	"#ffff00",
	"#ff0000",
	"#800000", // dark red
}

// 256 entry lookup table, built from paletteStops
var palette = buildPalette(paletteStops)

// Color returns the palette color for a normalized value
func Color(v uint8) color.RGBA {
	return palette[v]
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func buildPalette(stops []string) [256]color.RGBA {
	cols := make([]colorful.Color, len(stops))
	for i, s := range stops {
		cols[i] = mustHex(s)
	}
	var lut [256]color.RGBA
	segments := float64(len(cols) - 1)
	for i := 0; i < 256; i++ {
		pos := float64(i) / 255 * segments
		seg := min(int(pos), len(cols)-2)
		c := cols[seg].BlendLab(cols[seg+1], pos-float64(seg)).Clamped()
		r, g, b := c.RGB255()
		lut[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return lut
}
