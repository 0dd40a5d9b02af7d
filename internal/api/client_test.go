package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	return c
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	_, err = New("ftp://example.com")
	require.Error(t, err)

	c, err := New("https://parcels.example.com/", WithUserAgent("test/1"), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "https://parcels.example.com", c.BaseURL())
	assert.Equal(t, "test/1", c.userAgent)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
}

const searchBody = `{
  "properties": [
    {"id": 101, "parcel_id": "B-12-3", "address": "768 Maple St", "municipality": "Bridgeport",
     "geometry": {"type": "Polygon", "coordinates": [[[-73.2,41.2],[-73.199,41.2],[-73.199,41.201],[-73.2,41.201],[-73.2,41.2]]]},
     "owner_name": "Jane Doe", "owner_state": "ct", "year_built": "1925", "assessed_value": "$210,500",
     "last_sale_date": "2019-06-14", "vacant": "yes", "absentee_owner": false},
    {"id": "102", "address": "12 Main St", "municipality": "Bridgeport", "latitude": 41.18, "longitude": -73.19,
     "attributes": {"owner_name": "Acme LLC", "lot_acres": 0.25}},
    {"address": "no id"},
    {"id": "104", "geometry": {"type": "LineString", "coordinates": [[-73.2,41.2],[-73.1,41.3]]}}
  ],
  "total": 2, "page": 1, "page_size": 100
}`

func TestSearch(t *testing.T) {
	var got url.Values
	var requestID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search", r.URL.Path)
		got = r.URL.Query()
		requestID = r.Header.Get("X-Request-ID")
		assert.Contains(t, r.Header.Get("User-Agent"), "parcelmap/")
		_, _ = w.Write([]byte(searchBody))
	})

	bbox := types.BoundingBox{MinLon: -73.25, MinLat: 41.15, MaxLon: -73.10, MaxLat: 41.25}
	res, err := c.Search(context.Background(), SearchRequest{
		Query:    "768 Maple",
		Mode:     types.SearchAddressTown,
		BBox:     &bbox,
		Filters:  url.Values{"zoning": {"RS-1"}},
		PageSize: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, "768 Maple", got.Get("q"))
	assert.Equal(t, "address_town", got.Get("search_type"))
	assert.Equal(t, "-73.250000,41.150000,-73.100000,41.250000", got.Get("bbox"))
	assert.Equal(t, "RS-1", got.Get("zoning"))
	assert.Equal(t, "50", got.Get("page_size"))
	assert.Len(t, requestID, 36)

	require.Len(t, res.Properties, 2)
	assert.Equal(t, 2, res.Dropped)

	p := res.Properties[0]
	assert.Equal(t, "101", p.ID)
	assert.IsType(t, orb.Polygon{}, p.Geometry)
	assert.Equal(t, "CT", p.Attributes.OwnerState)
	assert.Equal(t, 1925, p.Attributes.YearBuilt)
	assert.Equal(t, 210500.0, p.Attributes.AssessedValue)
	assert.True(t, p.Attributes.Vacant)
	assert.Equal(t, 2019, p.Attributes.LastSaleDate.Year())

	q := res.Properties[1]
	assert.Equal(t, orb.Point{-73.19, 41.18}, q.Geometry)
	assert.Equal(t, "Acme LLC", q.Attributes.OwnerName)
	assert.Equal(t, 0.25, q.Attributes.LotAcres)
}

func TestSearchPreflightValidation(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	huge := types.BoundingBox{MinLon: -74, MinLat: 40.5, MaxLon: -72, MaxLat: 42}
	_, err := c.Search(context.Background(), SearchRequest{BBox: &huge})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "bbox", valErr.Field)

	_, err = c.Search(context.Background(), SearchRequest{PageSize: 500})
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "page_size", valErr.Field)

	assert.Zero(t, calls.Load(), "pre-flight failures must not reach the backend")
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{"bad bbox", http.StatusBadRequest, `{"error": "Bounding box exceeds 5000 km2"}`, KindValidation},
		{"server error", http.StatusBadGateway, `upstream down`, KindNetwork},
		{"not found", http.StatusNotFound, `{"message": "no route"}`, KindAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Search(context.Background(), SearchRequest{Query: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, Classify(err))
		})
	}
}

func TestValidationAndNetworkMessagesDiffer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bbox area too large"}`))
	})
	_, valErr := c.Search(context.Background(), SearchRequest{Query: "x"})
	require.Error(t, valErr)

	dead, err := New("http://127.0.0.1:1")
	require.NoError(t, err)
	_, netErr := dead.Search(context.Background(), SearchRequest{Query: "x"})
	require.Error(t, netErr)

	assert.Equal(t, KindValidation, Classify(valErr))
	assert.Equal(t, KindNetwork, Classify(netErr))
	assert.False(t, Retryable(valErr))
	assert.True(t, Retryable(netErr))
	assert.NotEqual(t, UserMessage(valErr), UserMessage(netErr))
	assert.Contains(t, UserMessage(valErr), "too large")
}

func TestTimeoutAndCancel(t *testing.T) {
	block := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Search(ctx, SearchRequest{Query: "slow"})
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout)

	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel2()
	}()
	_, err = c.Search(ctx2, SearchRequest{Query: "superseded"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, KindCanceled, Classify(err))
	assert.Empty(t, UserMessage(err))
}

func TestAutocomplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/autocomplete", r.URL.Path)
		assert.Equal(t, "768 Maple St", r.URL.Query().Get("q"))
		assert.Equal(t, "Bridgeport,Fairfield", r.URL.Query().Get("municipality"))
		assert.Equal(t, "8", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"suggestions": []any{
				map[string]any{"type": "address", "value": "768 Maple St", "display": "768 Maple St, Bridgeport",
					"center": map[string]float64{"lat": 41.2, "lng": -73.2}},
				map[string]any{"type": "town", "value": "Bridgeport", "count": 4210, "center": []float64{-73.19, 41.18}},
				map[string]any{"type": "planet", "value": "Mars"},
				map[string]any{"type": "owner", "value": ""},
			},
		})
	})

	got, err := c.Autocomplete(context.Background(), AutocompleteRequest{
		Query:          "768 Maple St",
		Mode:           types.SearchAddressTown,
		Municipalities: []string{"Bridgeport", "Fairfield"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, types.SuggestAddress, got[0].Type)
	require.NotNil(t, got[0].Center)
	assert.Equal(t, 41.2, got[0].Center.Lat)

	assert.Equal(t, "Bridgeport", got[1].Display)
	require.NotNil(t, got[1].Count)
	assert.Equal(t, 4210, *got[1].Count)
	assert.Equal(t, types.LatLng{Lat: 41.18, Lng: -73.19}, *got[1].Center)
}

func TestFacetOptions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search/unit-types/options", r.URL.Path)
		assert.Equal(t, "Bridgeport", r.URL.Query().Get("town"))
		_, _ = w.Write([]byte(`{"options": ["Condo", {"value": "Single Family", "count": 120}, "condo", "", "Condo", {"name": "Apartment"}]}`))
	})

	opts, err := c.FacetOptions(context.Background(), FacetUnitTypes, url.Values{"town": {"Bridgeport"}})
	require.NoError(t, err)

	values := make([]string, len(opts))
	for i, o := range opts {
		values[i] = o.Value
	}
	assert.Equal(t, []string{"Apartment", "Condo", "condo", "Single Family"}, values)
	require.NotNil(t, opts[3].Count)
	assert.Equal(t, 120, *opts[3].Count)

	_, err = ParseFacet("colors")
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	})
	hs, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", hs.Status)
}

func TestTelemetrySwallowsFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		var ev map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.NotEmpty(t, ev["session_id"])
		w.WriteHeader(http.StatusInternalServerError)
	})

	tel := NewTelemetry(c, nil)
	tel.MapLoad(context.Background(), types.RenderBackendState{Active: types.BackendFallback, FallbackReason: "no token"},
		types.LatLng{Lat: 41.2, Lng: -73.2}, 13, 120*time.Millisecond)
	tel.Search(context.Background(), SearchEvent{Strategy: "bbox", Results: 3})
	assert.Equal(t, int32(2), hits.Load())

	var nilTel *Telemetry
	nilTel.Search(context.Background(), SearchEvent{})
}
