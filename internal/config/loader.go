package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "PARCELMAP"

// keys lists every setting so that PARCELMAP_* variables resolve during
// Unmarshal even when no file or flag mentions them.
var keys = []string{
	"api.base_url", "api.user_agent", "api.health_timeout", "api.telemetry_timeout", "api.disable_telemetry",
	"map.primary_url", "map.fallback_url", "map.token", "map.force_fallback", "map.cache_dir",
	"map.cache_max_age", "map.dim", "map.render_timeout", "map.center_lat", "map.center_lng",
	"map.zoom", "map.width", "map.height",
	"autocomplete.debounce", "autocomplete.mailing_debounce", "autocomplete.min_length",
	"autocomplete.limit", "autocomplete.timeout",
	"query.page_size", "query.timeout",
	"labels.max", "labels.disabled",
	"ops.addr",
	"log.level", "log.format", "log.file",
}

// Configure applies the environment conventions to v: PARCELMAP_ prefix and
// "." mapped to "_", so map.token resolves to PARCELMAP_MAP_TOKEN.
func Configure(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// FromViper unmarshals v, applies defaults and validates the result.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Load reads the YAML file at path (optional when empty), merges PARCELMAP_*
// variables and returns the validated configuration.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	Configure(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: failed to read config file %q: %w", path, err)
			}
		}
	}
	return FromViper(v)
}
