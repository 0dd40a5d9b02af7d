// Package geojson exports parcel result sets as GeoJSON.
package geojson

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToGeoJSON converts properties to a FeatureCollection. Properties without a
// geometry are skipped.
func ToGeoJSON(props []types.Property) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range props {
		if p.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(p.Geometry)
		f.ID = p.ID
		f.Properties["id"] = p.ID
		if p.ParcelID != "" {
			f.Properties["parcel_id"] = p.ParcelID
		}
		if p.Address != "" {
			f.Properties["address"] = p.Address
		}
		if p.Municipality != "" {
			f.Properties["municipality"] = p.Municipality
		}
		for k, v := range attributeProperties(p.Attributes) {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}

// attributeProperties flattens the set attributes into GeoJSON properties.
func attributeProperties(a types.Attributes) map[string]any {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	// zero times survive omitempty
	if a.LastSaleDate.IsZero() {
		delete(m, "last_sale_date")
	}
	return m
}

// ToGeoJSONBytes converts properties to indented GeoJSON.
func ToGeoJSONBytes(props []types.Property) ([]byte, error) {
	data, err := json.MarshalIndent(ToGeoJSON(props), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}

// Bound returns the bound of all geometries, and false when there are none.
func Bound(props []types.Property) (types.BoundingBox, bool) {
	var (
		b     orb.Bound
		found bool
	)
	for _, p := range props {
		if p.Geometry == nil {
			continue
		}
		if !found {
			b = p.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(p.Geometry.Bound())
	}
	if !found {
		return types.BoundingBox{}, false
	}
	return types.BoundingBoxFromBound(b), true
}

// Summary returns the result count per municipality, largest first.
func Summary(props []types.Property) string {
	counts := make(map[string]int)
	for _, p := range props {
		town := p.Municipality
		if town == "" {
			town = "unknown"
		}
		counts[town]++
	}
	towns := make([]string, 0, len(counts))
	for town := range counts {
		towns = append(towns, town)
	}
	sort.Slice(towns, func(i, j int) bool {
		if counts[towns[i]] != counts[towns[j]] {
			return counts[towns[i]] > counts[towns[j]]
		}
		return towns[i] < towns[j]
	})

	parts := make([]string, len(towns))
	for i, town := range towns {
		parts[i] = fmt.Sprintf("%s: %d", town, counts[town])
	}
	return fmt.Sprintf("%s (Total: %d)", strings.Join(parts, ", "), len(props))
}
