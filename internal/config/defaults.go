package config

import "time"

const (
	DefaultBaseURL          = "http://localhost:8000"
	DefaultHealthTimeout    = 2 * time.Second
	DefaultTelemetryTimeout = 3 * time.Second

	DefaultPrimaryURL    = "https://api.mapbox.com/styles/v1/mapbox/satellite-streets-v12/tiles/256/{z}/{x}/{y}?access_token={token}"
	DefaultFallbackURL   = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultCacheMaxAge   = 7 * 24 * time.Hour
	DefaultRenderTimeout = 15 * time.Second
	DefaultCenterLat     = 41.1792
	DefaultCenterLng     = -73.1894
	DefaultZoom          = 13.0
	DefaultWidth         = 800
	DefaultHeight        = 600

	DefaultDebounce        = 300 * time.Millisecond
	DefaultMailingDebounce = 400 * time.Millisecond
	DefaultMinLength       = 2
	DefaultSuggestionLimit = 8
	DefaultSuggestTimeout  = 8 * time.Second

	DefaultPageSize     = 100
	MaxPageSize         = 200
	DefaultQueryTimeout = 10 * time.Second

	DefaultMaxLabels = 150

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// ApplyDefaults fills zero-value fields. Explicit settings win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.HealthTimeout == 0 {
		cfg.API.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.API.TelemetryTimeout == 0 {
		cfg.API.TelemetryTimeout = DefaultTelemetryTimeout
	}

	if cfg.Map.PrimaryURL == "" {
		cfg.Map.PrimaryURL = DefaultPrimaryURL
	}
	if cfg.Map.FallbackURL == "" {
		cfg.Map.FallbackURL = DefaultFallbackURL
	}
	if cfg.Map.CacheMaxAge == 0 {
		cfg.Map.CacheMaxAge = DefaultCacheMaxAge
	}
	if cfg.Map.RenderTimeout == 0 {
		cfg.Map.RenderTimeout = DefaultRenderTimeout
	}
	if cfg.Map.CenterLat == 0 && cfg.Map.CenterLng == 0 {
		cfg.Map.CenterLat = DefaultCenterLat
		cfg.Map.CenterLng = DefaultCenterLng
	}
	if cfg.Map.Zoom == 0 {
		cfg.Map.Zoom = DefaultZoom
	}
	if cfg.Map.Width == 0 {
		cfg.Map.Width = DefaultWidth
	}
	if cfg.Map.Height == 0 {
		cfg.Map.Height = DefaultHeight
	}

	if cfg.Autocomplete.Debounce == 0 {
		cfg.Autocomplete.Debounce = DefaultDebounce
	}
	if cfg.Autocomplete.MailingDebounce == 0 {
		cfg.Autocomplete.MailingDebounce = DefaultMailingDebounce
	}
	if cfg.Autocomplete.MinLength == 0 {
		cfg.Autocomplete.MinLength = DefaultMinLength
	}
	if cfg.Autocomplete.Limit == 0 {
		cfg.Autocomplete.Limit = DefaultSuggestionLimit
	}
	if cfg.Autocomplete.Timeout == 0 {
		cfg.Autocomplete.Timeout = DefaultSuggestTimeout
	}

	if cfg.Query.PageSize == 0 {
		cfg.Query.PageSize = DefaultPageSize
	}
	if cfg.Query.Timeout == 0 {
		cfg.Query.Timeout = DefaultQueryTimeout
	}

	if cfg.Labels.Max == 0 {
		cfg.Labels.Max = DefaultMaxLabels
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
