package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// DefaultSuggestionLimit is the number of suggestions requested per keystroke.
const DefaultSuggestionLimit = 8

// AutocompleteRequest is one call to GET /api/autocomplete.
type AutocompleteRequest struct {
	Query          string
	Mode           types.SearchMode
	Municipalities []string
	Limit          int
}

// Values encodes the request as query parameters.
func (r AutocompleteRequest) Values() url.Values {
	q := url.Values{}
	q.Set("q", strings.TrimSpace(r.Query))
	q.Set("search_type", string(r.Mode))
	if len(r.Municipalities) > 0 {
		q.Set("municipality", strings.Join(r.Municipalities, ","))
	}
	limit := r.Limit
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	q.Set("limit", strconv.Itoa(limit))
	return q
}

type wireSuggestion struct {
	Type    flexString      `json:"type"`
	Value   flexString      `json:"value"`
	Display flexString      `json:"display"`
	Count   *flexFloat      `json:"count"`
	Center  json.RawMessage `json:"center"`
	Lat     *flexFloat      `json:"lat"`
	Lng     *flexFloat      `json:"lng"`
}

type autocompleteResponse struct {
	Suggestions []json.RawMessage `json:"suggestions"`
}

// Autocomplete fetches suggestions for one search bar.
func (c *Client) Autocomplete(ctx context.Context, req AutocompleteRequest) ([]types.Suggestion, error) {
	var resp autocompleteResponse
	if err := c.get(ctx, "autocomplete", "/api/autocomplete", req.Values(), &resp); err != nil {
		return nil, err
	}

	out := make([]types.Suggestion, 0, len(resp.Suggestions))
	for _, raw := range resp.Suggestions {
		s, ok := decodeSuggestion(raw)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeSuggestion(raw json.RawMessage) (types.Suggestion, bool) {
	var w wireSuggestion
	if err := json.Unmarshal(raw, &w); err != nil {
		return types.Suggestion{}, false
	}
	s := types.Suggestion{
		Type:    types.SuggestionType(strings.ToLower(string(w.Type))),
		Value:   string(w.Value),
		Display: string(w.Display),
	}
	if !s.Type.Valid() || s.Value == "" {
		return types.Suggestion{}, false
	}
	if s.Display == "" {
		s.Display = s.Value
	}
	if w.Count != nil {
		n := int(*w.Count)
		s.Count = &n
	}
	if c, ok := decodeCenter(w.Center); ok {
		s.Center = &c
	} else if w.Lat != nil && w.Lng != nil {
		s.Center = &types.LatLng{Lat: float64(*w.Lat), Lng: float64(*w.Lng)}
	}
	return s, true
}

// decodeCenter accepts {"lat":..,"lng":..} or a GeoJSON-ordered [lng, lat] pair.
func decodeCenter(raw json.RawMessage) (types.LatLng, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return types.LatLng{}, false
	}
	var obj struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
		Lon *float64 `json:"lon"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Lat != nil {
		switch {
		case obj.Lng != nil:
			return types.LatLng{Lat: *obj.Lat, Lng: *obj.Lng}, true
		case obj.Lon != nil:
			return types.LatLng{Lat: *obj.Lat, Lng: *obj.Lon}, true
		}
	}
	var pair []float64
	if err := json.Unmarshal(raw, &pair); err == nil && len(pair) == 2 {
		return types.LatLng{Lat: pair[1], Lng: pair[0]}, true
	}
	return types.LatLng{}, false
}
