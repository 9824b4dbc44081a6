// Package export renders scenes and traces to SVG.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/rigid/internal/scene"
	"github.com/san-kum/rigid/internal/viz"
)

// CanvasToSVG converts a braille canvas to SVG, one circle per set dot,
// colored by the cell's ink.
func CanvasToSVG(canvas *viz.Canvas, theme viz.Theme, scale float64) string {
	if canvas == nil {
		return ""
	}

	pw, ph := canvas.Pixels()
	width := float64(pw) * scale
	height := float64(ph) * scale
	colors := [...]string{
		viz.InkMuted:   string(theme.Muted),
		viz.InkBody:    string(theme.Primary),
		viz.InkContact: string(theme.Accent),
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	dotRadius := scale * 0.4
	for row := 0; row < canvas.Height; row++ {
		for col := 0; col < canvas.Width; col++ {
			first := true
			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					x, y := col*2+dx, row*4+dy
					if !canvas.IsSet(x, y) {
						continue
					}
					if first {
						fmt.Fprintf(&sb, "<g fill=\"%s\">", colors[canvas.Inks[row][col]])
						first = false
					}
					fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f"/>`,
						(float64(x)+0.5)*scale, (float64(y)+0.5)*scale, dotRadius)
				}
			}
			if !first {
				sb.WriteString("</g>\n")
			}
		}
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}

// WriteSceneSVG draws the current state of s on a cols x rows canvas and
// writes it as SVG.
func WriteSceneSVG(w io.Writer, s *scene.Scene, cols, rows int, theme viz.Theme, scale float64) error {
	canvas := viz.NewCanvas(cols, rows)
	wire := viz.NewWireframe()
	wire.AddScene(s)
	viz.Render3D(canvas, wire, viz.NewCamera(viz.Frame(s)))
	_, err := io.WriteString(w, CanvasToSVG(canvas, theme, scale))
	return err
}

// TraceToSVG plots values against their index as a polyline.
func TraceToSVG(values []float64, width, height int, strokeColor string) string {
	if len(values) < 2 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}
	lo -= rng * 0.1
	rng *= 1.2

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor)

	last := float64(len(values) - 1)
	for i, v := range values {
		x := float64(i) / last * float64(width)
		y := float64(height) - (v-lo)/rng*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}

	sb.WriteString(`"/>
</svg>
`)
	return sb.String()
}
