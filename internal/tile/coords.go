// Package tile holds slippy-map tile addressing and Web Mercator pixel math.
package tile

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Size is the edge length of a raster tile in pixels.
const Size = 256

// MaxLat is the latitude limit of the Web Mercator projection.
const MaxLat = 85.05112878

// Coords represents a tile coordinate in the Web Mercator tile system (z/x/y)
type Coords struct {
	Z uint32 // Zoom level (0-22)
	X uint32 // X coordinate (column)
	Y uint32 // Y coordinate (row)
}

// String returns the tile coordinate as a string in format "z{zoom}_x{x}_y{y}"
func (c Coords) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", c.Z, c.X, c.Y)
}

// Tile returns the maptile.Tile for this coordinate
func (c Coords) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// Bounds returns the geographic bounding box for this tile in WGS84 (EPSG:4326)
func (c Coords) Bounds() types.BoundingBox {
	return types.BoundingBoxFromBound(c.Tile().Bound())
}

// Valid reports whether x and y are inside the tile grid for zoom z.
func (c Coords) Valid() bool {
	n := uint32(1) << c.Z
	return c.Z <= 30 && c.X < n && c.Y < n
}

// NewCoords creates a new Coords from zoom, x, y values
func NewCoords(z, x, y uint32) Coords {
	return Coords{Z: z, X: x, Y: y}
}

// ParseCoords parses a tile string like "z13_x4297_y2754" into Coords
func ParseCoords(s string) (Coords, error) {
	var c Coords
	_, err := fmt.Sscanf(s, "z%d_x%d_y%d", &c.Z, &c.X, &c.Y)
	if err != nil {
		return c, fmt.Errorf("invalid tile coordinate format: %s", s)
	}
	return c, nil
}

// WorldSize returns the width of the whole world in pixels at a (possibly fractional) zoom.
func WorldSize(zoom float64) float64 {
	return Size * math.Pow(2, zoom)
}

// ToPixel projects a WGS84 position to global pixel coordinates at zoom.
func ToPixel(p types.LatLng, zoom float64) (float64, float64) {
	lat := clampLat(p.Lat)
	ws := WorldSize(zoom)
	x := (p.Lng + 180.0) / 360.0 * ws
	latRad := lat * math.Pi / 180.0
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * ws
	return x, y
}

// FromPixel converts global pixel coordinates at zoom back to WGS84.
func FromPixel(x, y, zoom float64) types.LatLng {
	ws := WorldSize(zoom)
	lng := x/ws*360.0 - 180.0
	n := math.Pi - 2*math.Pi*y/ws
	lat := 180.0 / math.Pi * math.Atan(math.Sinh(n))
	return types.LatLng{Lat: lat, Lng: lng}
}

// ViewBounds returns the geographic box visible in a width x height pixel window
// centered on center at zoom.
func ViewBounds(center types.LatLng, zoom float64, width, height int) types.BoundingBox {
	cx, cy := ToPixel(center, zoom)
	hw, hh := float64(width)/2, float64(height)/2
	nw := FromPixel(cx-hw, cy-hh, zoom)
	se := FromPixel(cx+hw, cy+hh, zoom)
	return types.BoundingBox{
		MinLon: math.Max(nw.Lng, -180),
		MinLat: math.Max(se.Lat, -MaxLat),
		MaxLon: math.Min(se.Lng, 180),
		MaxLat: math.Min(nw.Lat, MaxLat),
	}
}

func clampLat(lat float64) float64 {
	return math.Max(-MaxLat, math.Min(MaxLat, lat))
}

// Cover returns the tiles at zoom z that intersect the box.
func Cover(bbox types.BoundingBox, z uint32) []Coords {
	return TilesInBBox(bbox, int(z), int(z))
}

// TilesInBBox returns all tile coordinates within a bounding box across a zoom range.
// Calculates correct tile coordinates at each zoom level independently.
func TilesInBBox(bbox types.BoundingBox, zoomMin, zoomMax int) []Coords {
	tiles := make([]Coords, 0, TileCount(bbox, zoomMin, zoomMax))

	for z := zoomMin; z <= zoomMax; z++ {
		minX, maxX, minY, maxY := tileRange(bbox, maptile.Zoom(z))
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				tiles = append(tiles, NewCoords(uint32(z), x, y))
			}
		}
	}

	return tiles
}

// TileCount returns the number of tiles in a bounding box across a zoom range.
// This is useful for progress estimation without allocating the full tile list.
func TileCount(bbox types.BoundingBox, zoomMin, zoomMax int) int {
	count := 0
	for z := zoomMin; z <= zoomMax; z++ {
		minX, maxX, minY, maxY := tileRange(bbox, maptile.Zoom(z))
		count += int(maxX-minX+1) * int(maxY-minY+1)
	}
	return count
}

func tileRange(bbox types.BoundingBox, zoom maptile.Zoom) (minX, maxX, minY, maxY uint32) {
	minPoint := orb.Point{bbox.MinLon, clampLat(bbox.MinLat)}
	maxPoint := orb.Point{bbox.MaxLon, clampLat(bbox.MaxLat)}

	minTile := maptile.At(minPoint, zoom)
	maxTile := maptile.At(maxPoint, zoom)

	// Y grows southwards, so the min point maps to the max row
	minX, maxX = minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY = minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return minX, maxX, minY, maxY
}
