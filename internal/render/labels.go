package render

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/parcelmap/internal/types"
)

const (
	// LabelMinZoom is the lowest zoom at which parcel labels are materialized.
	LabelMinZoom = 15
	// DefaultMaxLabels bounds the rendered label count.
	DefaultMaxLabels = 150
)

// Label is an address label anchored at a parcel centroid.
type Label struct {
	ID       string
	Text     string
	Position types.LatLng
	// X and Y are frame pixels, set by the backend that draws the label.
	X, Y float64
}

// Labels computes the labels for the current result set: centroids inside the
// viewport bounds, nearest to the center first, at most max of them.
// Below LabelMinZoom it returns nil.
func Labels(v types.Viewport, props []types.Property, max int) []Label {
	if v.Zoom < LabelMinZoom {
		return nil
	}
	if max <= 0 {
		max = DefaultMaxLabels
	}

	type candidate struct {
		label Label
		dist  float64
	}
	cands := make([]candidate, 0, len(props))
	for _, p := range props {
		c, ok := p.Centroid()
		if !ok {
			continue
		}
		if v.Bounds != nil && !v.Bounds.Contains(c) {
			continue
		}
		text := p.Address
		if text == "" {
			text = p.ParcelID
		}
		dLat := c.Lat - v.Center.Lat
		dLng := (c.Lng - v.Center.Lng) * math.Cos(v.Center.Lat*math.Pi/180)
		cands = append(cands, candidate{
			label: Label{ID: p.ID, Text: text, Position: c},
			dist:  dLat*dLat + dLng*dLng,
		})
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > max {
		cands = cands[:max]
	}

	out := make([]Label, len(cands))
	for i, c := range cands {
		out[i] = c.label
	}
	return out
}
