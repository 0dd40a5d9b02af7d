package geojson

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/paulmach/orb"
)

func testProperties() []types.Property {
	return []types.Property{
		{
			ID:           "p-1",
			ParcelID:     "12/34",
			Address:      "10 Main St",
			Municipality: "Bridgeport",
			Geometry:     orb.Polygon{{{-73.19, 41.17}, {-73.18, 41.17}, {-73.18, 41.18}, {-73.19, 41.18}, {-73.19, 41.17}}},
			Attributes: types.Attributes{
				OwnerName:    "ACME LLC",
				Zoning:       "RA",
				YearBuilt:    1954,
				LastSaleDate: time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			ID:           "p-2",
			Address:      "4 Elm St",
			Municipality: "Fairfield",
			Geometry:     orb.Point{-73.25, 41.14},
		},
		{ID: "p-3", Municipality: "Bridgeport"},
	}
}

func TestToGeoJSON(t *testing.T) {
	fc := ToGeoJSON(testProperties())

	if len(fc.Features) != 2 {
		t.Fatalf("Expected 2 features, got %d", len(fc.Features))
	}

	first := fc.Features[0]
	if first.Geometry.GeoJSONType() != "Polygon" {
		t.Errorf("Expected Polygon, got %s", first.Geometry.GeoJSONType())
	}
	if first.ID != "p-1" {
		t.Errorf("Expected feature id p-1, got %v", first.ID)
	}
	for key, want := range map[string]any{
		"parcel_id":      "12/34",
		"address":        "10 Main St",
		"municipality":   "Bridgeport",
		"owner_name":     "ACME LLC",
		"zoning":         "RA",
		"year_built":     float64(1954),
		"last_sale_date": "2021-05-01T00:00:00Z",
	} {
		if first.Properties[key] != want {
			t.Errorf("Expected %s=%v, got %v", key, want, first.Properties[key])
		}
	}

	second := fc.Features[1]
	if second.Geometry.GeoJSONType() != "Point" {
		t.Errorf("Expected Point, got %s", second.Geometry.GeoJSONType())
	}
	if _, ok := second.Properties["last_sale_date"]; ok {
		t.Error("Expected zero sale date to be omitted")
	}
	if _, ok := second.Properties["parcel_id"]; ok {
		t.Error("Expected empty parcel id to be omitted")
	}
}

func TestToGeoJSONBytes(t *testing.T) {
	data, err := ToGeoJSONBytes(testProperties())
	if err != nil {
		t.Fatalf("ToGeoJSONBytes failed: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if parsed["type"] != "FeatureCollection" {
		t.Errorf("Expected FeatureCollection, got %v", parsed["type"])
	}
}

func TestBound(t *testing.T) {
	b, ok := Bound(testProperties())
	if !ok {
		t.Fatal("Expected a bound")
	}
	want := types.BoundingBox{MinLon: -73.25, MinLat: 41.14, MaxLon: -73.18, MaxLat: 41.18}
	if b != want {
		t.Errorf("Expected %v, got %v", want, b)
	}

	if _, ok := Bound([]types.Property{{ID: "x"}}); ok {
		t.Error("Expected no bound without geometries")
	}
}

func TestSummary(t *testing.T) {
	got := Summary(testProperties())
	want := "Bridgeport: 2, Fairfield: 1 (Total: 3)"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
