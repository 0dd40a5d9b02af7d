package tile

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/parcelmap/internal/types"
)

func TestCoordsString(t *testing.T) {
	tests := []struct {
		coords   Coords
		expected string
	}{
		{Coords{Z: 13, X: 2411, Y: 3079}, "z13_x2411_y3079"},
		{Coords{Z: 0, X: 0, Y: 0}, "z0_x0_y0"},
		{Coords{Z: 18, X: 12345, Y: 67890}, "z18_x12345_y67890"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.coords.String()
			if result != tt.expected {
				t.Errorf("String() = %s, want %s", result, tt.expected)
			}
		})
	}
}

func TestCoordsBounds(t *testing.T) {
	// Tile over Bridgeport, CT
	coords := Coords{Z: 13, X: 2430, Y: 3065}
	bounds := coords.Bounds()

	if bounds.MinLon < -74 || bounds.MaxLon > -72 {
		t.Errorf("lon range [%.6f, %.6f] outside Connecticut", bounds.MinLon, bounds.MaxLon)
	}
	if bounds.MinLat < 40.5 || bounds.MaxLat > 42.5 {
		t.Errorf("lat range [%.6f, %.6f] outside Connecticut", bounds.MinLat, bounds.MaxLat)
	}
	if bounds.MinLon >= bounds.MaxLon || bounds.MinLat >= bounds.MaxLat {
		t.Errorf("bounds not ordered: %+v", bounds)
	}
}

func TestParseCoords(t *testing.T) {
	tests := []struct {
		input    string
		expected Coords
		wantErr  bool
	}{
		{"z13_x4297_y2754", Coords{Z: 13, X: 4297, Y: 2754}, false},
		{"z0_x0_y0", Coords{Z: 0, X: 0, Y: 0}, false},
		{"z18_x262143_y262143", Coords{Z: 18, X: 262143, Y: 262143}, false},
		{"invalid", Coords{}, true},
		{"z13_x4297", Coords{}, true},
		{"13_4297_2754", Coords{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseCoords(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseCoords(%s) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseCoords(%s) unexpected error: %v", tt.input, err)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseCoords(%s) = %+v, want %+v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCoordsValid(t *testing.T) {
	if !(Coords{Z: 2, X: 3, Y: 3}).Valid() {
		t.Errorf("expected z2/3/3 to be valid")
	}
	if (Coords{Z: 2, X: 4, Y: 0}).Valid() {
		t.Errorf("expected z2/4/0 to be invalid")
	}
}

func TestPixelRoundTrip(t *testing.T) {
	points := []types.LatLng{
		{Lat: 0, Lng: 0},
		{Lat: 41.1792, Lng: -73.1894}, // Bridgeport
		{Lat: 37.78, Lng: -122.42},
		{Lat: 35.69, Lng: 139.69},
	}

	for _, p := range points {
		for _, z := range []float64{0, 10.5, 18} {
			x, y := ToPixel(p, z)
			back := FromPixel(x, y, z)
			if math.Abs(back.Lat-p.Lat) > 1e-9 || math.Abs(back.Lng-p.Lng) > 1e-9 {
				t.Errorf("round trip at z%.1f: %v -> %v", z, p, back)
			}
		}
	}
}

func TestToPixelMatchesTileGrid(t *testing.T) {
	c := Coords{Z: 13, X: 2430, Y: 3065}
	b := c.Bounds()
	x, y := ToPixel(types.LatLng{Lat: b.MaxLat, Lng: b.MinLon}, 13)
	if math.Abs(x-float64(c.X)*Size) > 1e-6 || math.Abs(y-float64(c.Y)*Size) > 1e-6 {
		t.Fatalf("tile corner at (%.4f, %.4f), want (%d, %d)", x, y, c.X*Size, c.Y*Size)
	}
}

func TestViewBounds(t *testing.T) {
	center := types.LatLng{Lat: 41.1792, Lng: -73.1894}
	b := ViewBounds(center, 14, 800, 600)

	if !b.Contains(center) {
		t.Fatalf("bounds %v do not contain center", b)
	}
	// 800px at z14 is 800/(256*2^14)*360 degrees wide
	wantWidth := 800.0 / WorldSize(14) * 360
	if math.Abs(b.Width()-wantWidth) > 1e-9 {
		t.Fatalf("width %.8f, want %.8f", b.Width(), wantWidth)
	}
}

func TestTilesInBBox(t *testing.T) {
	testTile := Coords{Z: 13, X: 2430, Y: 3065}
	bounds := testTile.Bounds()

	// Shrink slightly so the edges don't spill into neighbours
	inner := types.BoundingBox{
		MinLon: bounds.MinLon + 1e-6,
		MinLat: bounds.MinLat + 1e-6,
		MaxLon: bounds.MaxLon - 1e-6,
		MaxLat: bounds.MaxLat - 1e-6,
	}

	tiles := TilesInBBox(inner, 13, 14)
	if len(tiles) != 1+4 {
		t.Fatalf("expected 5 tiles (1 at z13, 4 at z14), got %d: %v", len(tiles), tiles)
	}
	if tiles[0] != testTile {
		t.Fatalf("expected %s first, got %s", testTile, tiles[0])
	}
	if TileCount(inner, 13, 14) != len(tiles) {
		t.Fatalf("TileCount disagrees with TilesInBBox")
	}
	if got := Cover(inner, 13); len(got) != 1 {
		t.Fatalf("Cover at z13 = %v", got)
	}
}
