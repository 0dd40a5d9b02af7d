package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/parcelmap/internal/mbtiles"
	"github.com/MeKo-Tech/parcelmap/internal/metrics"
	"github.com/MeKo-Tech/parcelmap/internal/tile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n0000")

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestParseTileParams(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		c, ok := parseTileParams("13", "2406", "3065")
		if !ok {
			t.Fatalf("expected ok")
		}
		if c.String() != "z13_x2406_y3065" {
			t.Fatalf("unexpected coords: %s", c)
		}
	})

	t.Run("outside grid", func(t *testing.T) {
		if _, ok := parseTileParams("1", "2", "0"); ok {
			t.Fatalf("expected not ok")
		}
	})

	t.Run("not a number", func(t *testing.T) {
		if _, ok := parseTileParams("a", "0", "0"); ok {
			t.Fatalf("expected not ok")
		}
	})
}

func TestRouter(t *testing.T) {
	cache, err := mbtiles.Open(filepath.Join(t.TempDir(), "fallback.mbtiles"), mbtiles.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	c := tile.NewCoords(13, 2406, 3065)
	require.NoError(t, cache.Put(c, pngMagic))

	m := metrics.New()
	s := New(Config{
		Metrics: m,
		State:   func() any { return map[string]string{"backend": "fallback"} },
		Health:  func(context.Context) error { return errors.New("backend down") },
		Tiles:   map[string]TileSource{"fallback": cache},
	})
	h := s.Router()

	t.Run("healthz", func(t *testing.T) {
		rr := get(t, h, "/healthz")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("Content-Type"))
	})

	t.Run("readyz reports backend failure", func(t *testing.T) {
		rr := get(t, h, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "backend down")
	})

	t.Run("state", func(t *testing.T) {
		rr := get(t, h, "/state")
		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "fallback", body["backend"])
	})

	t.Run("cached tile", func(t *testing.T) {
		rr := get(t, h, "/tiles/fallback/13/2406/3065.png")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
		assert.Equal(t, pngMagic, rr.Body.Bytes())
	})

	t.Run("missing tile", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, h, "/tiles/fallback/13/2406/3066.png").Code)
	})

	t.Run("unknown backend", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, h, "/tiles/primary/13/2406/3065.png").Code)
	})

	t.Run("invalid coordinates", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(t, h, "/tiles/fallback/1/5/0.png").Code)
	})

	t.Run("metrics records routes", func(t *testing.T) {
		rr := get(t, h, "/metrics")
		require.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.String()
		assert.True(t, strings.Contains(body, `route="/tiles/{backend}/{z}/{x}/{y}.png",status="200"`), body)
	})
}

func TestStateWithoutSession(t *testing.T) {
	rr := get(t, New(Config{}).Router(), "/state")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{Addr: "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	cancel()

	require.NoError(t, <-done)
}
