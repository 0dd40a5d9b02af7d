package types

import (
	"fmt"
	"math"
)

// Viewport is the map's current center, zoom level, and visible bounds.
type Viewport struct {
	Center LatLng       `json:"center"`
	Zoom   float64      `json:"zoom"`
	Bounds *BoundingBox `json:"bounds,omitempty"`
}

// Validate checks that the bounds, when present, contain the center.
func (v Viewport) Validate() error {
	if v.Bounds == nil {
		return nil
	}
	if !v.Bounds.Contains(v.Center) {
		return fmt.Errorf("viewport center %s outside %s", v.Center, v.Bounds)
	}
	return nil
}

// Near reports whether the center and zoom of o are within the given tolerances of v.
func (v Viewport) Near(o Viewport, centerEps, zoomEps float64) bool {
	return math.Abs(v.Center.Lat-o.Center.Lat) <= centerEps &&
		math.Abs(v.Center.Lng-o.Center.Lng) <= centerEps &&
		math.Abs(v.Zoom-o.Zoom) <= zoomEps
}

func (v Viewport) String() string {
	if v.Bounds == nil {
		return fmt.Sprintf("%s z%.2f", v.Center, v.Zoom)
	}
	return fmt.Sprintf("%s z%.2f %s", v.Center, v.Zoom, v.Bounds)
}
