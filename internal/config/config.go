// Package config holds the typed configuration of parcelmap and the viper
// plumbing that fills it from a YAML file, PARCELMAP_* variables and flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// Config is the complete runtime configuration.
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Map          MapConfig          `mapstructure:"map"`
	Autocomplete AutocompleteConfig `mapstructure:"autocomplete"`
	Query        QueryConfig        `mapstructure:"query"`
	Labels       LabelsConfig       `mapstructure:"labels"`
	Ops          OpsConfig          `mapstructure:"ops"`
	Log          LogConfig          `mapstructure:"log"`
}

// APIConfig configures the property REST backend.
type APIConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	UserAgent        string        `mapstructure:"user_agent"`
	HealthTimeout    time.Duration `mapstructure:"health_timeout"`
	TelemetryTimeout time.Duration `mapstructure:"telemetry_timeout"`
	DisableTelemetry bool          `mapstructure:"disable_telemetry"`
}

// MapConfig configures the map backends and the initial viewport.
type MapConfig struct {
	PrimaryURL  string `mapstructure:"primary_url"`
	FallbackURL string `mapstructure:"fallback_url"`
	// Token is the primary backend access token. Without it the session starts
	// on the fallback.
	Token         string        `mapstructure:"token"`
	ForceFallback bool          `mapstructure:"force_fallback"`
	CacheDir      string        `mapstructure:"cache_dir"`
	CacheMaxAge   time.Duration `mapstructure:"cache_max_age"`
	Dim           float64       `mapstructure:"dim"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	CenterLat     float64       `mapstructure:"center_lat"`
	CenterLng     float64       `mapstructure:"center_lng"`
	Zoom          float64       `mapstructure:"zoom"`
	Width         int           `mapstructure:"width"`
	Height        int           `mapstructure:"height"`
}

// Center returns the initial map center.
func (m MapConfig) Center() types.LatLng {
	return types.LatLng{Lat: m.CenterLat, Lng: m.CenterLng}
}

// AutocompleteConfig configures the three search bars.
type AutocompleteConfig struct {
	Debounce        time.Duration `mapstructure:"debounce"`
	MailingDebounce time.Duration `mapstructure:"mailing_debounce"`
	MinLength       int           `mapstructure:"min_length"`
	Limit           int           `mapstructure:"limit"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// QueryConfig configures the property search channel.
type QueryConfig struct {
	PageSize int           `mapstructure:"page_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LabelsConfig configures parcel labels on rendered frames.
type LabelsConfig struct {
	Max      int  `mapstructure:"max"`
	Disabled bool `mapstructure:"disabled"`
}

// OpsConfig configures the optional ops listener. An empty Addr disables it.
type OpsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.API.BaseURL)
	switch {
	case c.API.BaseURL == "":
		errs = append(errs, errors.New("api.base_url is required"))
	case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		errs = append(errs, fmt.Errorf("api.base_url %q must be an http(s) URL", c.API.BaseURL))
	}

	if c.Query.PageSize < 1 || c.Query.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("query.page_size must be between 1 and %d, got %d", MaxPageSize, c.Query.PageSize))
	}
	if c.Autocomplete.MinLength < 1 {
		errs = append(errs, fmt.Errorf("autocomplete.min_length must be positive, got %d", c.Autocomplete.MinLength))
	}
	if c.Autocomplete.Limit < 1 {
		errs = append(errs, fmt.Errorf("autocomplete.limit must be positive, got %d", c.Autocomplete.Limit))
	}
	if c.Map.Zoom < 0 || c.Map.Zoom > 22 {
		errs = append(errs, fmt.Errorf("map.zoom must be between 0 and 22, got %g", c.Map.Zoom))
	}
	if c.Map.CenterLat < -85 || c.Map.CenterLat > 85 || c.Map.CenterLng < -180 || c.Map.CenterLng > 180 {
		errs = append(errs, fmt.Errorf("map center %s is out of range", c.Map.Center()))
	}
	if c.Map.Dim < 0 || c.Map.Dim > 100 {
		errs = append(errs, fmt.Errorf("map.dim must be a percentage, got %g", c.Map.Dim))
	}
	if c.Labels.Max < 0 {
		errs = append(errs, fmt.Errorf("labels.max must not be negative, got %d", c.Labels.Max))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}
