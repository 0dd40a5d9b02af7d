package render

import (
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/parcelmap/internal/mbtiles"
	"github.com/MeKo-Tech/parcelmap/internal/metrics"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

const (
	// DefaultPrimaryURL is the satellite imagery source used by the primary backend.
	DefaultPrimaryURL = "https://api.mapbox.com/styles/v1/mapbox/satellite-streets-v12/tiles/256/{z}/{x}/{y}?access_token={token}"
	// DefaultFallbackURL is the open street map source used by the fallback backend.
	DefaultFallbackURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

	primaryAttribution  = "© Mapbox © OpenStreetMap contributors"
	fallbackAttribution = "© OpenStreetMap contributors"
)

// ProviderOptions are shared by both backend constructors.
type ProviderOptions struct {
	URLTemplate string
	Token       string
	HTTPClient  *http.Client
	UserAgent   string
	Cache       *mbtiles.Cache
	Dim         float32
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewPrimary creates the token-protected satellite backend. Init probes the
// source so an invalid token triggers the fallback before the first frame.
func NewPrimary(opts ProviderOptions) *TileBackend {
	tmpl := opts.URLTemplate
	if tmpl == "" {
		tmpl = DefaultPrimaryURL
	}
	return NewTileBackend(TileConfig{
		Kind:         types.BackendPrimary,
		URLTemplate:  tmpl,
		Token:        opts.Token,
		RequireToken: true,
		Attribution:  primaryAttribution,
		MaxZoom:      22,
		Probe:        true,
		Dim:          opts.Dim,
		HTTPClient:   opts.HTTPClient,
		UserAgent:    opts.UserAgent,
		Cache:        opts.Cache,
		Metrics:      opts.Metrics,
		Logger:       opts.Logger,
	})
}

// NewFallback creates the token-free street map backend.
func NewFallback(opts ProviderOptions) *TileBackend {
	tmpl := opts.URLTemplate
	if tmpl == "" {
		tmpl = DefaultFallbackURL
	}
	return NewTileBackend(TileConfig{
		Kind:        types.BackendFallback,
		URLTemplate: tmpl,
		Token:       opts.Token,
		Attribution: fallbackAttribution,
		MaxZoom:     19,
		Dim:         opts.Dim,
		HTTPClient:  opts.HTTPClient,
		UserAgent:   opts.UserAgent,
		Cache:       opts.Cache,
		Metrics:     opts.Metrics,
		Logger:      opts.Logger,
	})
}
