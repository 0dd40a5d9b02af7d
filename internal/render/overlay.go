package render

import (
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/parcelmap/internal/tile"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

var (
	parcelFill     = color.NRGBA{R: 0x1f, G: 0x6f, B: 0xd1, A: 0x40}
	parcelStroke   = color.NRGBA{R: 0x1f, G: 0x6f, B: 0xd1, A: 0xff}
	selectedFill   = color.NRGBA{R: 0xe5, G: 0x48, B: 0x2c, A: 0x60}
	selectedStroke = color.NRGBA{R: 0xe5, G: 0x48, B: 0x2c, A: 0xff}
	labelInk       = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	labelHalo      = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

const markerRadius = 4

// projection maps WGS84 positions to frame pixels at a fractional zoom.
type projection struct {
	zoom      float64
	left, top float64
}

func newProjection(center types.LatLng, zoom float64, width, height int) projection {
	cx, cy := tile.ToPixel(center, zoom)
	return projection{zoom: zoom, left: cx - float64(width)/2, top: cy - float64(height)/2}
}

func (p projection) pixel(ll types.LatLng) (float64, float64) {
	x, y := tile.ToPixel(ll, p.zoom)
	return x - p.left, y - p.top
}

func (p projection) point(pt orb.Point) (float32, float32) {
	x, y := p.pixel(types.FromPoint(pt))
	return float32(x), float32(y)
}

// drawProperties fills and outlines polygons and marks points. The selected
// property is drawn last so it sits on top.
func drawProperties(dst *image.RGBA, proj projection, props []types.Property, selectedID string) {
	var selected *types.Property
	for i := range props {
		if props[i].ID == selectedID {
			selected = &props[i]
			continue
		}
		drawGeometry(dst, proj, props[i].Geometry, parcelFill, parcelStroke)
	}
	if selected != nil {
		drawGeometry(dst, proj, selected.Geometry, selectedFill, selectedStroke)
	}
}

func drawGeometry(dst *image.RGBA, proj projection, g orb.Geometry, fill, stroke color.Color) {
	switch geom := g.(type) {
	case orb.Point:
		x, y := proj.point(geom)
		drawMarker(dst, x, y, stroke)
	case orb.Polygon:
		drawPolygon(dst, proj, geom, fill, stroke)
	case orb.MultiPolygon:
		for _, poly := range geom {
			drawPolygon(dst, proj, poly, fill, stroke)
		}
	}
}

func drawPolygon(dst *image.RGBA, proj projection, poly orb.Polygon, fill, stroke color.Color) {
	b := dst.Bounds()
	if !visible(proj, poly.Bound(), b) {
		return
	}

	// tiny parcels at low zoom collapse to a marker
	minX, minY := proj.point(poly.Bound().Min)
	maxX, maxY := proj.point(poly.Bound().Max)
	if math.Abs(float64(maxX-minX)) < 3 && math.Abs(float64(maxY-minY)) < 3 {
		drawMarker(dst, (minX+maxX)/2, (minY+maxY)/2, stroke)
		return
	}

	r := vector.NewRasterizer(b.Dx(), b.Dy())
	for _, ring := range poly {
		for i, pt := range ring {
			x, y := proj.point(pt)
			if i == 0 {
				r.MoveTo(x, y)
			} else {
				r.LineTo(x, y)
			}
		}
		r.ClosePath()
	}
	r.Draw(dst, b, image.NewUniform(fill), image.Point{})

	for _, ring := range poly {
		for i := 1; i < len(ring); i++ {
			x0, y0 := proj.point(ring[i-1])
			x1, y1 := proj.point(ring[i])
			drawLine(dst, int(x0), int(y0), int(x1), int(y1), stroke)
		}
	}
}

func visible(proj projection, bound orb.Bound, frame image.Rectangle) bool {
	x0, y1 := proj.point(bound.Min)
	x1, y0 := proj.point(bound.Max)
	return !(x1 < 0 || y1 < 0 || int(x0) > frame.Max.X || int(y0) > frame.Max.Y)
}

func drawMarker(dst *image.RGBA, x, y float32, c color.Color) {
	cx, cy := int(x), int(y)
	for dy := -markerRadius; dy <= markerRadius; dy++ {
		for dx := -markerRadius; dx <= markerRadius; dx++ {
			if dx*dx+dy*dy <= markerRadius*markerRadius {
				dst.Set(cx+dx, cy+dy, c)
			}
		}
	}
}

// drawLine is Bresenham's line algorithm.
func drawLine(dst *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	b := dst.Bounds()
	for steps := 0; steps < 1<<16; steps++ {
		if image.Pt(x0, y0).In(b) {
			dst.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawLabels writes centered text with a one pixel halo.
func drawLabels(dst *image.RGBA, labels []Label) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Face: face}
	for _, l := range labels {
		if l.Text == "" {
			continue
		}
		w := d.MeasureString(l.Text).Round()
		x := int(l.X) - w/2
		y := int(l.Y) - markerRadius - 2

		d.Src = image.NewUniform(labelHalo)
		for _, off := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			d.Dot = fixed.P(x+off[0], y+off[1])
			d.DrawString(l.Text)
		}
		d.Src = image.NewUniform(labelInk)
		d.Dot = fixed.P(x, y)
		d.DrawString(l.Text)
	}
}
