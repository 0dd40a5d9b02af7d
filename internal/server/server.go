// Package server runs the optional ops listener: health, Prometheus metrics,
// the last session snapshot and cached map tiles.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/metrics"
	"github.com/MeKo-Tech/parcelmap/internal/tile"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 5 * time.Second

// TileSource reads cached tiles. mbtiles.Cache implements it.
type TileSource interface {
	Get(ctx context.Context, c tile.Coords) ([]byte, bool, error)
}

// Config configures the ops listener.
type Config struct {
	Addr    string
	Metrics *metrics.Metrics
	// State returns a JSON-serializable snapshot of the running session.
	State func() any
	// Health checks the property backend; nil reports healthy.
	Health func(ctx context.Context) error
	// Tiles maps backend names ("primary", "fallback") to their caches.
	Tiles        map[string]TileSource
	CacheControl string
	Logger       *slog.Logger
}

// Server is the ops HTTP listener.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.CacheControl == "" {
		cfg.CacheControl = "public, max-age=3600"
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())
	r.Get("/state", s.handleState)
	r.Get("/tiles/{backend}/{z}/{x}/{y}.png", s.handleTile)

	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log().Info("ops listener started", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.cfg.Metrics.ObserveOpsRequest(r.Method, route, ww.Status())
		s.log().Debug("http_request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	if err := s.cfg.Health(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.State == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "no session"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.State())
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	src, ok := s.cfg.Tiles[chi.URLParam(r, "backend")]
	if !ok || src == nil {
		http.NotFound(w, r)
		return
	}
	coords, ok := parseTileParams(chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y"))
	if !ok {
		http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
		return
	}

	data, found, err := src.Get(r.Context(), coords)
	if err != nil {
		s.log().Error("failed to read tile", "coords", coords.String(), "error", err)
		http.Error(w, "tile cache error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", s.cfg.CacheControl)
	w.Header().Set("Content-Type", http.DetectContentType(data))
	if _, err := w.Write(data); err != nil {
		s.log().Error("failed to write response", "error", err)
	}
}

func parseTileParams(zs, xs, ys string) (tile.Coords, bool) {
	z, err1 := strconv.ParseUint(zs, 10, 32)
	x, err2 := strconv.ParseUint(xs, 10, 32)
	y, err3 := strconv.ParseUint(ys, 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return tile.Coords{}, false
	}
	c := tile.NewCoords(uint32(z), uint32(x), uint32(y))
	return c, c.Valid()
}
