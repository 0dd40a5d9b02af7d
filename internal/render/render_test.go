package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/mbtiles"
	"github.com/MeKo-Tech/parcelmap/internal/metrics"
	"github.com/MeKo-Tech/parcelmap/internal/tile"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bridgeport = types.LatLng{Lat: 41.1792, Lng: -73.1894}

func solidTile(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, tile.Size, tile.Size))
	for y := 0; y < tile.Size; y++ {
		for x := 0; x < tile.Size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// tileServer serves a solid tile, or status when it is non-zero.
func tileServer(t *testing.T, status int, c color.Color) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	data := solidTile(t, c)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testFrame(zoom float64) Frame {
	bounds := tile.ViewBounds(bridgeport, zoom, 320, 240)
	return Frame{
		Viewport: types.Viewport{Center: bridgeport, Zoom: zoom, Bounds: &bounds},
		Width:    320,
		Height:   240,
	}
}

func TestTileBackendInit(t *testing.T) {
	t.Run("missing placeholder", func(t *testing.T) {
		b := NewTileBackend(TileConfig{URLTemplate: "http://example.invalid/tiles.png"})
		require.Error(t, b.Init(context.Background()))
	})

	t.Run("missing token", func(t *testing.T) {
		b := NewPrimary(ProviderOptions{URLTemplate: "http://example.invalid/{z}/{x}/{y}?t={token}"})
		err := b.Init(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing access token")
	})

	t.Run("probe rejected", func(t *testing.T) {
		srv, hits := tileServer(t, http.StatusUnauthorized, nil)
		b := NewPrimary(ProviderOptions{URLTemplate: srv.URL + "/{z}/{x}/{y}?t={token}", Token: "bad"})
		require.Error(t, b.Init(context.Background()))
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("fallback needs no token", func(t *testing.T) {
		b := NewFallback(ProviderOptions{URLTemplate: "http://example.invalid/{z}/{x}/{y}.png"})
		require.NoError(t, b.Init(context.Background()))
	})
}

func TestTileURL(t *testing.T) {
	b := NewTileBackend(TileConfig{URLTemplate: "https://{s}.example.com/{z}/{x}/{y}.png?key={token}", Token: "abc"})
	got := b.TileURL(tile.NewCoords(13, 2406, 3065))
	assert.Equal(t, "https://c.example.com/13/2406/3065.png?key=abc", got)
}

func TestTileBackendRender(t *testing.T) {
	srv, hits := tileServer(t, 0, color.RGBA{R: 10, G: 200, B: 10, A: 255})
	b := NewFallback(ProviderOptions{URLTemplate: srv.URL + "/{z}/{x}/{y}.png"})
	require.NoError(t, b.Init(context.Background()))

	res, err := b.Render(context.Background(), testFrame(13.5))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 320, 240), res.Image.Bounds())
	assert.Equal(t, types.BackendFallback, res.Backend)
	assert.NotEmpty(t, res.Attribution)
	assert.Positive(t, hits.Load())

	r, g, _, _ := res.Image.At(160, 120).RGBA()
	assert.Greater(t, g, r, "basemap tiles should cover the frame")
}

func TestTileBackendCache(t *testing.T) {
	srv, hits := tileServer(t, 0, color.White)
	cache, err := mbtiles.Open(filepath.Join(t.TempDir(), "fallback.mbtiles"), mbtiles.Options{BatchSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	m := metrics.New()
	b := NewFallback(ProviderOptions{URLTemplate: srv.URL + "/{z}/{x}/{y}.png", Cache: cache, Metrics: m})
	c := tile.NewCoords(13, 2406, 3065)

	_, err = b.FetchTile(context.Background(), c)
	require.NoError(t, err)
	_, err = b.FetchTile(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second fetch must be served from the cache")
}

func TestRenderDrawsSelectedProperty(t *testing.T) {
	srv, _ := tileServer(t, 0, color.White)
	b := NewFallback(ProviderOptions{URLTemplate: srv.URL + "/{z}/{x}/{y}.png"})

	f := testFrame(17)
	f.Properties = []types.Property{
		{ID: "p1", Address: "10 Main St", Geometry: bridgeport.Point()},
	}
	f.SelectedID = "p1"

	res, err := b.Render(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, selectedStroke, color.NRGBAModel.Convert(res.Image.At(160, 120)))
	require.Len(t, res.Labels, 1)
	assert.Equal(t, "10 Main St", res.Labels[0].Text)
	assert.InDelta(t, 160, res.Labels[0].X, 1)
}

func TestLabels(t *testing.T) {
	bounds := tile.ViewBounds(bridgeport, 16, 800, 600)
	v := types.Viewport{Center: bridgeport, Zoom: 16, Bounds: &bounds}

	near := types.Property{ID: "near", ParcelID: "P-1", Geometry: orb.Point{bridgeport.Lng + 0.0001, bridgeport.Lat}}
	far := types.Property{ID: "far", Address: "2 Far Rd", Geometry: orb.Point{bridgeport.Lng + 0.002, bridgeport.Lat}}
	outside := types.Property{ID: "out", Address: "x", Geometry: orb.Point{bridgeport.Lng + 1, bridgeport.Lat}}
	noGeom := types.Property{ID: "none", Address: "y"}

	got := Labels(v, []types.Property{far, outside, near, noGeom}, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, "P-1", got[0].Text, "parcel id is used without an address")
	assert.Equal(t, "far", got[1].ID)

	assert.Len(t, Labels(v, []types.Property{far, near}, 1), 1)

	v.Zoom = LabelMinZoom - 1
	assert.Nil(t, Labels(v, []types.Property{near}, 0))
}

type fakeBackend struct {
	kind      types.BackendKind
	initErr   error
	renderErr error
	panics    bool
	// hangInit and hangRender block until the context is done.
	hangInit   bool
	hangRender bool
	inits      int
	renders    int
}

func (f *fakeBackend) Kind() types.BackendKind { return f.kind }

func (f *fakeBackend) Init(ctx context.Context) error {
	f.inits++
	if f.hangInit {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.initErr
}

func (f *fakeBackend) Render(ctx context.Context, fr Frame) (*Result, error) {
	f.renders++
	if f.hangRender {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.panics {
		panic("style failed to load")
	}
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	return &Result{Image: image.NewRGBA(image.Rect(0, 0, fr.Width, fr.Height))}, nil
}

func (f *fakeBackend) Close() error { return nil }

func TestAdapterInitFailureSwitches(t *testing.T) {
	primary := &fakeBackend{kind: types.BackendPrimary, initErr: errors.New("missing access token")}
	fallback := &fakeBackend{kind: types.BackendFallback}
	m := metrics.New()
	a := NewAdapter(AdapterConfig{Primary: primary, Fallback: fallback, Metrics: m})

	assert.Equal(t, types.BackendPrimary, a.State().Active)
	require.NoError(t, a.Init(context.Background()))

	st := a.State()
	assert.Equal(t, types.BackendFallback, st.Active)
	assert.Contains(t, st.FallbackReason, "missing access token")

	res, err := a.Render(context.Background(), testFrame(13))
	require.NoError(t, err)
	assert.Equal(t, types.BackendFallback, res.Backend)
	assert.Equal(t, 0, primary.renders)
}

func TestAdapterRenderPanicSwitchesOnce(t *testing.T) {
	primary := &fakeBackend{kind: types.BackendPrimary, panics: true}
	fallback := &fakeBackend{kind: types.BackendFallback}
	a := NewAdapter(AdapterConfig{Primary: primary, Fallback: fallback})

	res, err := a.Render(context.Background(), testFrame(13))
	require.NoError(t, err, "the frame is retried on the fallback")
	assert.Equal(t, types.BackendFallback, res.Backend)
	assert.Contains(t, a.State().FallbackReason, "panic")

	// primary recovering does not bring it back
	primary.panics = false
	for range 3 {
		res, err = a.Render(context.Background(), testFrame(14))
		require.NoError(t, err)
		assert.Equal(t, types.BackendFallback, res.Backend)
	}
	assert.Equal(t, 1, primary.renders)
	assert.Equal(t, 1, fallback.inits)
	assert.Equal(t, 4, fallback.renders)
}

func TestAdapterPrimaryTimeoutSwitches(t *testing.T) {
	tests := []struct {
		name    string
		primary *fakeBackend
		reason  string
	}{
		{"init hangs", &fakeBackend{kind: types.BackendPrimary, hangInit: true}, "initialization failed"},
		{"render hangs", &fakeBackend{kind: types.BackendPrimary, hangRender: true}, "render failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := &fakeBackend{kind: types.BackendFallback}
			a := NewAdapter(AdapterConfig{Primary: tt.primary, Fallback: fallback, FallbackTimeout: time.Second})

			for i := range 3 {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
				res, err := a.Render(ctx, testFrame(13))
				cancel()
				require.NoError(t, err, "frame %d", i)
				assert.Equal(t, types.BackendFallback, res.Backend)
			}

			st := a.State()
			assert.Equal(t, types.BackendFallback, st.Active)
			assert.Contains(t, st.FallbackReason, tt.reason)
			assert.Contains(t, st.FallbackReason, "deadline exceeded")
			assert.Equal(t, 1, tt.primary.inits)
			assert.Equal(t, 1, fallback.inits)
			assert.Equal(t, 3, fallback.renders)
		})
	}
}

func TestAdapterCanceledRenderKeepsPrimary(t *testing.T) {
	primary := &fakeBackend{kind: types.BackendPrimary, hangRender: true}
	fallback := &fakeBackend{kind: types.BackendFallback}
	a := NewAdapter(AdapterConfig{Primary: primary, Fallback: fallback})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := a.Render(ctx, testFrame(13))
	require.ErrorIs(t, err, context.Canceled)

	st := a.State()
	assert.Equal(t, types.BackendPrimary, st.Active, "a superseded frame is not a backend failure")
	assert.Empty(t, st.FallbackReason)
	assert.Equal(t, 0, fallback.inits)
}

func TestAdapterBothFail(t *testing.T) {
	primary := &fakeBackend{kind: types.BackendPrimary, initErr: errors.New("bad token")}
	fallback := &fakeBackend{kind: types.BackendFallback, initErr: errors.New("offline")}
	a := NewAdapter(AdapterConfig{Primary: primary, Fallback: fallback})

	_, err := a.Render(context.Background(), testFrame(13))
	var pie *ProviderInitError
	require.ErrorAs(t, err, &pie)
	assert.Equal(t, types.BackendFallback, pie.Backend)
	assert.Equal(t, types.BackendFallback, a.State().Active)
}

func TestAdapterPrimaryHealthy(t *testing.T) {
	primary := &fakeBackend{kind: types.BackendPrimary}
	fallback := &fakeBackend{kind: types.BackendFallback}
	a := NewAdapter(AdapterConfig{Primary: primary, Fallback: fallback})

	for range 2 {
		res, err := a.Render(context.Background(), testFrame(13))
		require.NoError(t, err)
		assert.Equal(t, types.BackendPrimary, res.Backend)
	}
	assert.Equal(t, 1, primary.inits)
	assert.Equal(t, 0, fallback.inits)
	assert.Empty(t, a.State().FallbackReason)
}

// Invalid token: the probe fails, the map still renders via the fallback.
func TestAdapterInvalidTokenEndToEnd(t *testing.T) {
	bad, _ := tileServer(t, http.StatusUnauthorized, nil)
	good, _ := tileServer(t, 0, color.White)

	a := NewAdapter(AdapterConfig{
		Primary:  NewPrimary(ProviderOptions{URLTemplate: bad.URL + "/{z}/{x}/{y}?t={token}", Token: "expired"}),
		Fallback: NewFallback(ProviderOptions{URLTemplate: good.URL + "/{z}/{x}/{y}.png"}),
	})
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Render(context.Background(), testFrame(12))
	require.NoError(t, err)
	assert.Equal(t, types.BackendFallback, res.Backend)
	assert.Equal(t, types.BackendFallback, a.State().Active)
}
