package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/app"
	"github.com/MeKo-Tech/parcelmap/internal/config"
	"github.com/MeKo-Tech/parcelmap/internal/mbtiles"
	"github.com/MeKo-Tech/parcelmap/internal/metrics"
	"github.com/MeKo-Tech/parcelmap/internal/render"
	"github.com/MeKo-Tech/parcelmap/internal/server"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// services are the long-lived collaborators shared by every command.
type services struct {
	cfg       *config.Config
	client    *api.Client
	telemetry *api.Telemetry
	metrics   *metrics.Metrics

	primary  *render.TileBackend
	fallback *render.TileBackend
	adapter  *render.Adapter
	caches   map[types.BackendKind]*mbtiles.Cache
}

func newServices(cfg *config.Config) (*services, error) {
	client, err := api.New(cfg.API.BaseURL,
		api.WithUserAgent(cfg.API.UserAgent),
		api.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	s := &services{
		cfg:     cfg,
		client:  client,
		metrics: metrics.New(),
		caches:  make(map[types.BackendKind]*mbtiles.Cache),
	}
	if !cfg.API.DisableTelemetry {
		s.telemetry = api.NewTelemetry(client, logger)
		s.telemetry.SetTimeout(cfg.API.TelemetryTimeout)
	}

	if cfg.Map.CacheDir != "" {
		if err := os.MkdirAll(cfg.Map.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		for _, kind := range []types.BackendKind{types.BackendPrimary, types.BackendFallback} {
			cache, err := mbtiles.Open(filepath.Join(cfg.Map.CacheDir, string(kind)+".mbtiles"), mbtiles.Options{
				Metadata: mbtiles.Metadata{
					Name:   "parcelmap " + string(kind),
					Format: "png",
					Type:   "baselayer",
				},
				MaxAge: cfg.Map.CacheMaxAge,
			})
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("failed to open %s tile cache: %w", kind, err)
			}
			s.caches[kind] = cache
		}
	}

	httpClient := &http.Client{Timeout: cfg.Map.RenderTimeout}
	opts := func(kind types.BackendKind, tmpl string) render.ProviderOptions {
		return render.ProviderOptions{
			URLTemplate: tmpl,
			Token:       cfg.Map.Token,
			HTTPClient:  httpClient,
			UserAgent:   cfg.API.UserAgent,
			Cache:       s.caches[kind],
			Dim:         float32(cfg.Map.Dim),
			Metrics:     s.metrics,
			Logger:      logger,
		}
	}
	s.fallback = render.NewFallback(opts(types.BackendFallback, cfg.Map.FallbackURL))
	if !cfg.Map.ForceFallback {
		s.primary = render.NewPrimary(opts(types.BackendPrimary, cfg.Map.PrimaryURL))
	}

	adapterCfg := render.AdapterConfig{
		Fallback:        s.fallback,
		FallbackTimeout: cfg.Map.RenderTimeout,
		Metrics:         s.metrics,
		Logger:          logger,
	}
	if s.primary != nil {
		adapterCfg.Primary = s.primary
	}
	s.adapter = render.NewAdapter(adapterCfg)
	return s, nil
}

// newSession creates a session. A nil renderer skips map rendering.
func (s *services) newSession(renderer app.Renderer) *app.Session {
	deps := app.Deps{
		Client:   s.client,
		Renderer: renderer,
		Metrics:  s.metrics,
		Logger:   logger,
		Config:   s.cfg,
	}
	if s.telemetry != nil {
		deps.Telemetry = s.telemetry
	}
	return app.New(deps)
}

// startOps runs the ops listener in the background when ops.addr is set.
func (s *services) startOps(ctx context.Context, state func() any) {
	if s.cfg.Ops.Addr == "" {
		return
	}
	srv := s.opsServer(state)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ops listener stopped", "error", err)
		}
	}()
}

func (s *services) opsServer(state func() any) *server.Server {
	tiles := make(map[string]server.TileSource, len(s.caches))
	for kind, cache := range s.caches {
		tiles[string(kind)] = cache
	}
	return server.New(server.Config{
		Addr:    s.cfg.Ops.Addr,
		Metrics: s.metrics,
		State:   state,
		Health: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.cfg.API.HealthTimeout)
			defer cancel()
			_, err := s.client.Health(ctx)
			return err
		},
		Tiles:  tiles,
		Logger: logger,
	})
}

// backend returns the tile backend of the given kind.
func (s *services) backend(kind types.BackendKind) (*render.TileBackend, error) {
	switch kind {
	case types.BackendFallback:
		return s.fallback, nil
	case types.BackendPrimary:
		if s.primary == nil {
			return nil, errors.New("primary backend disabled by map.force_fallback")
		}
		return s.primary, nil
	}
	return nil, fmt.Errorf("unknown backend %q", kind)
}

// Close flushes and closes the tile caches.
func (s *services) Close() error {
	var errs []error
	if s.adapter != nil {
		if err := s.adapter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, cache := range s.caches {
		if err := cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func setup() (*services, error) {
	if logger == nil {
		initLogging()
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newServices(cfg)
}

// drainTimeout bounds a non-interactive run: a few rounds of every channel.
func drainTimeout(cfg *config.Config) time.Duration {
	return 3*(cfg.Query.Timeout+cfg.Map.RenderTimeout+cfg.Autocomplete.Timeout) + cfg.Autocomplete.MailingDebounce
}

// drain runs a session's effects to completion with an overall deadline.
func drain(sess *app.Session, effects []app.Effect, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return sess.Drain(ctx, effects)
}
