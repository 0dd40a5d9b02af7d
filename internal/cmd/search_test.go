package cmd

import (
	"bytes"
	"testing"

	"github.com/MeKo-Tech/parcelmap/internal/app"
	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/MeKo-Tech/parcelmap/internal/tile"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterEvents(t *testing.T) {
	t.Run("groups repeated keys in flag order", func(t *testing.T) {
		events, err := filterEvents([]string{"Bridgeport"}, []string{"zoning=RS-1", "owner_state=CT", "zoning= RM-2 "})
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, app.FilterSet{Key: filters.Town, Values: []string{"Bridgeport"}}, events[0])
		assert.Equal(t, app.FilterSet{Key: filters.Zoning, Values: []string{"RS-1", "RM-2"}}, events[1])
		assert.Equal(t, app.FilterSet{Key: filters.OwnerState, Values: []string{"CT"}}, events[2])
	})

	t.Run("no flags", func(t *testing.T) {
		events, err := filterEvents(nil, nil)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	for _, pair := range []string{"zoning", "zoning=", "colour=red"} {
		t.Run("rejects "+pair, func(t *testing.T) {
			_, err := filterEvents(nil, []string{pair})
			assert.Error(t, err)
		})
	}
}

func TestFitBounds(t *testing.T) {
	b := types.BoundingBox{MinLon: -73.25, MinLat: 41.15, MaxLon: -73.10, MaxLat: 41.25}
	center, zoom := fitBounds(b, 1024, 768)

	assert.InDelta(t, 41.2, center.Lat, 1e-9)
	assert.InDelta(t, -73.175, center.Lng, 1e-9)
	require.Greater(t, zoom, 10.0)
	require.Less(t, zoom, 14.0)

	// the box must fit inside the frame at the chosen zoom
	x0, y0 := tile.ToPixel(types.LatLng{Lat: b.MaxLat, Lng: b.MinLon}, zoom)
	x1, y1 := tile.ToPixel(types.LatLng{Lat: b.MinLat, Lng: b.MaxLon}, zoom)
	assert.LessOrEqual(t, x1-x0, 1024.0)
	assert.LessOrEqual(t, y1-y0, 768.0)

	t.Run("degenerate box keeps max zoom", func(t *testing.T) {
		p := types.BoundingBox{MinLon: -73.2, MinLat: 41.2, MaxLon: -73.2, MaxLat: 41.2}
		_, z := fitBounds(p, 800, 600)
		assert.Equal(t, 22.0, z)
	})
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	props := []types.Property{{
		ID:           "p-1",
		Address:      "12 Main St",
		Municipality: "Bridgeport",
		Attributes:   types.Attributes{OwnerName: "Smith John", Zoning: "RS-1", AssessedValue: 215000},
	}}
	writeTable(&buf, props)

	out := buf.String()
	for _, want := range []string{"ADDRESS", "12 Main St", "Bridgeport", "Smith John", "RS-1", "215000"} {
		assert.Contains(t, out, want)
	}
}
