// Package query picks exactly one fetch strategy from the viewport, filters and
// search text, issues it and guards against stale responses.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// BBoxKeyStep is the quantization step, in degrees, of bounding-box request keys.
const BBoxKeyStep = 0.01

// Strategy is the active fetch strategy. Lower values win.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyMunicipality
	StrategyText
	StrategyLeadType
	StrategyBBox
)

func (s Strategy) String() string {
	switch s {
	case StrategyMunicipality:
		return "municipality"
	case StrategyText:
		return "text"
	case StrategyLeadType:
		return "lead_type"
	case StrategyBBox:
		return "bbox"
	default:
		return "none"
	}
}

// Inputs are the three independent sources the orchestrator observes.
type Inputs struct {
	Filters filters.State
	Search  types.SearchQuery
	Bounds  *types.BoundingBox
}

// Select returns the strategy for in, by priority:
// town filter, free-text search, lead type, viewport bounds.
func Select(in Inputs) Strategy {
	switch {
	case in.Filters.Has(filters.Town):
		return StrategyMunicipality
	case !in.Search.IsEmpty():
		return StrategyText
	case in.Filters.Has(filters.LeadType):
		return StrategyLeadType
	case in.Bounds != nil:
		return StrategyBBox
	default:
		return StrategyNone
	}
}

// Params is the full shape of a search request together with its strategy.
type Params struct {
	Strategy Strategy
	Request  api.SearchRequest
}

// Build derives the request parameters for in.
// Refinement filters always ride along; the town key only drives strategy 1.
func Build(in Inputs, pageSize int) Params {
	p := Params{Strategy: Select(in)}
	req := api.SearchRequest{PageSize: pageSize, Filters: url.Values{}}

	switch p.Strategy {
	case StrategyMunicipality:
		req.Municipalities = in.Filters.Values(filters.Town)
		in.Filters.Encode(req.Filters, filters.Town)
	case StrategyText:
		req.Query = strings.TrimSpace(in.Search.Text)
		req.Mode = in.Search.Mode
		in.Filters.Encode(req.Filters, filters.Town)
	case StrategyLeadType:
		in.Filters.Encode(req.Filters, filters.Town)
	case StrategyBBox:
		b := *in.Bounds
		req.BBox = &b
		in.Filters.Encode(req.Filters, filters.Town)
	case StrategyNone:
		return Params{}
	}

	p.Request = req
	return p
}

// Key is a canonical string for p. Bounding boxes are quantized to BBoxKeyStep so
// small pans keep the same key. User text is escaped so it cannot forge separators.
func (p Params) Key() string {
	if p.Strategy == StrategyNone {
		return ""
	}
	r := p.Request
	var sb strings.Builder
	sb.WriteString(p.Strategy.String())
	if r.Query != "" {
		fmt.Fprintf(&sb, "|q=%s|mode=%s", url.QueryEscape(r.Query), url.QueryEscape(string(r.Mode)))
	}
	if len(r.Municipalities) > 0 {
		sb.WriteString("|municipality=" + escapeJoin(r.Municipalities))
	}
	if r.BBox != nil {
		sb.WriteString("|bbox=" + r.BBox.QuantizedKey(BBoxKeyStep))
	}
	if len(r.Filters) > 0 {
		keys := make([]string, 0, len(r.Filters))
		for k := range r.Filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("|" + url.QueryEscape(k) + "=" + escapeJoin(r.Filters[k]))
		}
	}
	sb.WriteString("|page=" + strconv.Itoa(r.Page) + "|size=" + strconv.Itoa(r.PageSize))
	return sb.String()
}

func escapeJoin(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = url.QueryEscape(v)
	}
	return strings.Join(out, ",")
}

func (p Params) String() string {
	return p.Key()
}
