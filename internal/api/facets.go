package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Facet names a filter dimension the backend serves options for.
type Facet string

const (
	FacetTowns       Facet = "towns"
	FacetZoning      Facet = "zoning"
	FacetUnitTypes   Facet = "unit-types"
	FacetOwnerCities Facet = "owner-cities"
	FacetOwnerStates Facet = "owner-states"
)

// Facets lists every facet endpoint.
var Facets = []Facet{FacetTowns, FacetZoning, FacetUnitTypes, FacetOwnerCities, FacetOwnerStates}

// ParseFacet validates a facet name.
func ParseFacet(s string) (Facet, error) {
	for _, f := range Facets {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown facet %q", s)
}

// FacetOption is one selectable value.
type FacetOption struct {
	Value string `json:"value"`
	Count *int   `json:"count,omitempty"`
}

// UnmarshalJSON accepts a bare string or a {"value", "count"} object.
func (o *FacetOption) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*o = FacetOption{Value: strings.TrimSpace(s)}
		return nil
	}
	var obj struct {
		Value flexString `json:"value"`
		Name  flexString `json:"name"`
		Count *flexFloat `json:"count"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("facet option: %w", err)
	}
	o.Value = string(obj.Value)
	if o.Value == "" {
		o.Value = string(obj.Name)
	}
	if obj.Count != nil {
		n := int(*obj.Count)
		o.Count = &n
	}
	return nil
}

type facetResponse struct {
	Options []FacetOption `json:"options"`
}

// FacetOptions lists the values of facet given the other active filters.
func (c *Client) FacetOptions(ctx context.Context, facet Facet, filters url.Values) ([]FacetOption, error) {
	var resp facetResponse
	path := "/api/search/" + url.PathEscape(string(facet)) + "/options"
	if err := c.get(ctx, "facets", path, filters, &resp); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(resp.Options))
	out := resp.Options[:0]
	for _, o := range resp.Options {
		if o.Value == "" || seen[o.Value] {
			continue
		}
		seen[o.Value] = true
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Value) < strings.ToLower(out[j].Value)
	})
	return out, nil
}
