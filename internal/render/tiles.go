package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // tile decoders
	"image/png"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/mbtiles"
	"github.com/MeKo-Tech/parcelmap/internal/metrics"
	"github.com/MeKo-Tech/parcelmap/internal/tile"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/disintegration/gift"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConcurrent = 6
	defaultTileTimeout   = 10 * time.Second
	maxTileBytes         = 4 << 20
)

var background = color.RGBA{R: 0xe8, G: 0xe4, B: 0xd8, A: 0xff}

// TileConfig configures a TileBackend.
type TileConfig struct {
	Kind types.BackendKind
	// URLTemplate contains {z}, {x} and {y} and optionally {token} and {s}.
	URLTemplate  string
	Token        string
	RequireToken bool
	Attribution  string
	MaxZoom      int
	// Probe fetches the z0 tile during Init to catch bad tokens early.
	Probe bool
	// Dim reduces basemap brightness in percent so parcel overlays stand out.
	Dim float32

	HTTPClient    *http.Client
	UserAgent     string
	Cache         *mbtiles.Cache
	MaxConcurrent int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// TileBackend renders frames by stitching 256px raster tiles from a URL template.
type TileBackend struct {
	cfg    TileConfig
	client *http.Client
	logger *slog.Logger
}

// NewTileBackend creates a TileBackend. Configuration errors surface in Init.
func NewTileBackend(cfg TileConfig) *TileBackend {
	if cfg.MaxZoom <= 0 {
		cfg.MaxZoom = 19
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "parcelmap"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTileTimeout}
	}
	return &TileBackend{cfg: cfg, client: client, logger: cfg.Logger}
}

func (b *TileBackend) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// Kind returns the backend kind.
func (b *TileBackend) Kind() types.BackendKind {
	return b.cfg.Kind
}

// Attribution returns the attribution text of the tile source.
func (b *TileBackend) Attribution() string {
	return b.cfg.Attribution
}

// Init validates the template and token, then probes the source when configured.
func (b *TileBackend) Init(ctx context.Context) error {
	tmpl := b.cfg.URLTemplate
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(tmpl, ph) {
			return fmt.Errorf("tile URL template %q lacks %s", tmpl, ph)
		}
	}
	needsToken := b.cfg.RequireToken || strings.Contains(tmpl, "{token}")
	if needsToken && strings.TrimSpace(b.cfg.Token) == "" {
		return errors.New("missing access token")
	}
	if !b.cfg.Probe {
		return nil
	}
	if _, err := b.fetch(ctx, tile.Coords{}); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	return nil
}

// TileURL expands the template for c.
func (b *TileBackend) TileURL(c tile.Coords) string {
	sub := string("abc"[(c.X+c.Y)%3])
	return strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(c.Z), 10),
		"{x}", strconv.FormatUint(uint64(c.X), 10),
		"{y}", strconv.FormatUint(uint64(c.Y), 10),
		"{s}", sub,
		"{token}", b.cfg.Token,
	).Replace(b.cfg.URLTemplate)
}

// FetchTile returns the encoded tile, from the cache when possible.
func (b *TileBackend) FetchTile(ctx context.Context, c tile.Coords) ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid tile %s", c)
	}
	if b.cfg.Cache != nil {
		data, ok, err := b.cfg.Cache.Get(ctx, c)
		switch {
		case err != nil:
			b.cfg.Metrics.IncTileCache("error")
			b.log().Warn("tile cache read failed", "tile", c, "error", err)
		case ok:
			b.cfg.Metrics.IncTileCache("hit")
			return data, nil
		default:
			b.cfg.Metrics.IncTileCache("miss")
		}
	}

	data, err := b.fetch(ctx, c)
	if err != nil {
		return nil, err
	}
	if b.cfg.Cache != nil {
		if err := b.cfg.Cache.Put(c, data); err != nil {
			b.log().Warn("tile cache write failed", "tile", c, "error", err)
		}
	}
	return data, nil
}

func (b *TileBackend) fetch(ctx context.Context, c tile.Coords) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.TileURL(c), nil)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", c, err)
	}
	req.Header.Set("User-Agent", b.cfg.UserAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile %s: HTTP %d", c, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("tile %s: read body: %w", c, err)
	}
	return data, nil
}

// Render stitches the tiles covering the frame at the integer zoom below the
// viewport zoom, scales for the fractional part and draws the overlays.
func (b *TileBackend) Render(ctx context.Context, f Frame) (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	base, err := b.basemap(ctx, f)
	if err != nil {
		return nil, err
	}

	proj := newProjection(f.Viewport.Center, f.Viewport.Zoom, f.Width, f.Height)
	drawProperties(base, proj, f.Properties, f.SelectedID)

	var labels []Label
	if f.Viewport.Zoom >= LabelMinZoom && !f.HideLabels {
		labels = Labels(f.Viewport, f.Properties, f.MaxLabels)
		for i := range labels {
			labels[i].X, labels[i].Y = proj.pixel(labels[i].Position)
		}
		drawLabels(base, labels)
	}

	return &Result{Image: base, Backend: b.cfg.Kind, Attribution: b.cfg.Attribution, Labels: labels}, nil
}

func (b *TileBackend) basemap(ctx context.Context, f Frame) (*image.RGBA, error) {
	zoom := math.Min(f.Viewport.Zoom, float64(b.cfg.MaxZoom))
	iz := math.Floor(math.Max(zoom, 0))
	scale := math.Pow(2, f.Viewport.Zoom-iz)

	srcW := int(math.Ceil(float64(f.Width) / scale))
	srcH := int(math.Ceil(float64(f.Height) / scale))
	cx, cy := tile.ToPixel(f.Viewport.Center, iz)
	left := cx - float64(srcW)/2
	top := cy - float64(srcH)/2

	canvas := image.NewRGBA(image.Rect(0, 0, srcW, srcH))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	z := uint32(iz)
	n := int64(1) << z
	minTX := int64(math.Floor(left / tile.Size))
	maxTX := int64(math.Floor((left + float64(srcW) - 1) / tile.Size))
	minTY := int64(math.Floor(top / tile.Size))
	maxTY := int64(math.Floor((top + float64(srcH) - 1) / tile.Size))

	type placed struct {
		coords tile.Coords
		at     image.Point
	}
	var jobs []placed
	for ty := minTY; ty <= maxTY; ty++ {
		if ty < 0 || ty >= n {
			continue
		}
		for tx := minTX; tx <= maxTX; tx++ {
			wx := ((tx % n) + n) % n
			jobs = append(jobs, placed{
				coords: tile.NewCoords(z, uint32(wx), uint32(ty)),
				at: image.Point{
					X: int(math.Round(float64(tx)*tile.Size - left)),
					Y: int(math.Round(float64(ty)*tile.Size - top)),
				},
			})
		}
	}

	tiles := make([]image.Image, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxConcurrent)
	for i, job := range jobs {
		g.Go(func() error {
			data, err := b.FetchTile(gctx, job.coords)
			if err != nil {
				return err
			}
			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("tile %s: decode: %w", job.coords, err)
			}
			tiles[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, job := range jobs {
		r := image.Rectangle{Min: job.at, Max: job.at.Add(image.Point{X: tile.Size, Y: tile.Size})}
		draw.Draw(canvas, r, tiles[i], tiles[i].Bounds().Min, draw.Src)
	}

	var filters []gift.Filter
	if srcW != f.Width || srcH != f.Height {
		filters = append(filters, gift.Resize(f.Width, f.Height, gift.LinearResampling))
	}
	if b.cfg.Dim > 0 {
		filters = append(filters, gift.Brightness(-b.cfg.Dim))
	}
	if len(filters) == 0 {
		return canvas, nil
	}

	g2 := gift.New(filters...)
	out := image.NewRGBA(g2.Bounds(canvas.Bounds()))
	g2.Draw(out, canvas)
	return out, nil
}

// Close flushes the tile cache.
func (b *TileBackend) Close() error {
	if b.cfg.Cache != nil {
		return b.cfg.Cache.Flush()
	}
	return nil
}

// EncodePNG encodes a rendered frame.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
