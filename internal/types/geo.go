package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// LatLng is a WGS84 position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point returns the orb point (lon, lat) for this position.
func (p LatLng) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// FromPoint converts an orb point (lon, lat) to a LatLng.
func FromPoint(pt orb.Point) LatLng {
	return LatLng{Lat: pt.Lat(), Lng: pt.Lon()}
}

func (p LatLng) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.Lat, p.Lng)
}

// BoundingBox represents a geographic bounding box in WGS84 (EPSG:4326)
type BoundingBox struct {
	MinLon float64 `json:"min_lon"` // Western edge (degrees)
	MinLat float64 `json:"min_lat"` // Southern edge (degrees)
	MaxLon float64 `json:"max_lon"` // Eastern edge (degrees)
	MaxLat float64 `json:"max_lat"` // Northern edge (degrees)
}

// BoundingBoxFromBound converts an orb.Bound into a BoundingBox.
func BoundingBoxFromBound(b orb.Bound) BoundingBox {
	return BoundingBox{MinLon: b.Min.Lon(), MinLat: b.Min.Lat(), MaxLon: b.Max.Lon(), MaxLat: b.Max.Lat()}
}

// ParseBoundingBox parses "minLng,minLat,maxLng,maxLat".
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("invalid bbox %q: expected minLng,minLat,maxLng,maxLat", s)
	}

	var vals [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("invalid bbox %q: %w", s, err)
		}
		vals[i] = f
	}

	b := BoundingBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if b.MinLon > b.MaxLon || b.MinLat > b.MaxLat {
		return BoundingBox{}, fmt.Errorf("invalid bbox %q: min exceeds max", s)
	}
	return b, nil
}

// String returns a human-readable representation of the bounding box
func (b BoundingBox) String() string {
	return fmt.Sprintf("bbox(%.6f,%.6f,%.6f,%.6f)", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Param formats the box the way the search endpoint expects it: minLng,minLat,maxLng,maxLat.
func (b BoundingBox) Param() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// Center returns the center point of the bounding box
func (b BoundingBox) Center() LatLng {
	return LatLng{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLon + b.MaxLon) / 2}
}

// Width returns the width of the bounding box in degrees
func (b BoundingBox) Width() float64 {
	return b.MaxLon - b.MinLon
}

// Height returns the height of the bounding box in degrees
func (b BoundingBox) Height() float64 {
	return b.MaxLat - b.MinLat
}

// Contains reports whether p lies inside the box (edges included).
func (b BoundingBox) Contains(p LatLng) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLon && p.Lng <= b.MaxLon
}

// Bound returns the orb representation of the box.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// ExpandByFraction grows the box on every side by fraction of its width/height.
func (b BoundingBox) ExpandByFraction(fraction float64) BoundingBox {
	if fraction <= 0 {
		return b
	}
	dx := b.Width() * fraction
	dy := b.Height() * fraction
	return BoundingBox{
		MinLon: b.MinLon - dx,
		MinLat: b.MinLat - dy,
		MaxLon: b.MaxLon + dx,
		MaxLat: b.MaxLat + dy,
	}
}

// AreaKm2 returns the geodesic area of the box in square kilometres.
func (b BoundingBox) AreaKm2() float64 {
	return geo.Area(b.Bound().ToPolygon()) / 1e6
}

// Quantize snaps every edge to the nearest multiple of step degrees.
func (b BoundingBox) Quantize(step float64) BoundingBox {
	if step <= 0 {
		return b
	}
	snap := func(v float64) float64 {
		return math.Round(v/step) * step
	}
	return BoundingBox{
		MinLon: snap(b.MinLon),
		MinLat: snap(b.MinLat),
		MaxLon: snap(b.MaxLon),
		MaxLat: snap(b.MaxLat),
	}
}

// QuantizedKey returns a stable string for the box snapped to step degrees.
// Two boxes that differ by less than step/2 on every edge share a key.
func (b BoundingBox) QuantizedKey(step float64) string {
	q := b.Quantize(step)
	prec := 0
	if step > 0 && step < 1 {
		prec = int(math.Ceil(-math.Log10(step)))
	}
	return fmt.Sprintf("%.*f,%.*f,%.*f,%.*f", prec, q.MinLon, prec, q.MinLat, prec, q.MaxLon, prec, q.MaxLat)
}
