package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// SearchRequest is one call to GET /api/search.
type SearchRequest struct {
	Query          string
	Mode           types.SearchMode
	Municipalities []string
	BBox           *types.BoundingBox
	// Filters holds the refinement parameters, already encoded.
	Filters  url.Values
	Page     int
	PageSize int
}

// SearchResult is a decoded search page.
type SearchResult struct {
	Properties []types.Property
	Total      int
	Page       int
	PageSize   int
	// Dropped counts records rejected by the validating decode.
	Dropped int
}

type searchResponse struct {
	Properties []json.RawMessage `json:"properties"`
	Total      flexFloat         `json:"total"`
	Page       flexFloat         `json:"page"`
	PageSize   flexFloat         `json:"page_size"`
}

// Validate runs the checks the backend would reject with HTTP 400.
func (r SearchRequest) Validate() error {
	if r.PageSize < 0 || r.PageSize > MaxPageSize {
		return &ValidationError{Field: "page_size", Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxPageSize, r.PageSize)}
	}
	if r.BBox != nil {
		if area := r.BBox.AreaKm2(); area > MaxBBoxAreaKm2 {
			return &ValidationError{Field: "bbox", Message: fmt.Sprintf("%.0f km² exceeds the %.0f km² limit", area, MaxBBoxAreaKm2)}
		}
	}
	return nil
}

// Values encodes the request as query parameters.
func (r SearchRequest) Values() url.Values {
	q := url.Values{}
	for k, v := range r.Filters {
		q[k] = append([]string(nil), v...)
	}
	if s := strings.TrimSpace(r.Query); s != "" {
		q.Set("q", s)
		if r.Mode != "" {
			q.Set("search_type", string(r.Mode))
		}
	}
	if len(r.Municipalities) > 0 {
		q.Set("municipality", strings.Join(r.Municipalities, ","))
	}
	if r.BBox != nil {
		q.Set("bbox", r.BBox.Param())
	}
	if r.Page > 0 {
		q.Set("page", strconv.Itoa(r.Page))
	}
	size := r.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	q.Set("page_size", strconv.Itoa(size))
	return q
}

// Search runs a property search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := c.get(ctx, "search", "/api/search", req.Values(), &resp); err != nil {
		return nil, err
	}

	props, dropped, errs := DecodeProperties(resp.Properties)
	if dropped > 0 {
		c.log().Warn("dropped invalid properties", "count", dropped, "first_error", errs[0])
	}

	res := &SearchResult{
		Properties: props,
		Total:      int(resp.Total),
		Page:       int(resp.Page),
		PageSize:   int(resp.PageSize),
		Dropped:    dropped,
	}
	if res.Total < len(props) {
		res.Total = len(props)
	}
	return res, nil
}
