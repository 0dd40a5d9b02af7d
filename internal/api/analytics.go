package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/google/uuid"
)

// TelemetryTimeout bounds each analytics call.
const TelemetryTimeout = 3 * time.Second

// MapLoadEvent is posted once per session when the map first renders.
type MapLoadEvent struct {
	SessionID string  `json:"session_id"`
	Backend   string  `json:"backend"`
	Fallback  string  `json:"fallback_reason,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Zoom      float64 `json:"zoom"`
	LoadMs    int64   `json:"load_ms"`
}

// SearchEvent is posted for every applied search.
type SearchEvent struct {
	SessionID string `json:"session_id"`
	Strategy  string `json:"strategy"`
	Query     string `json:"query,omitempty"`
	Mode      string `json:"search_type,omitempty"`
	Results   int    `json:"results"`
	Total     int    `json:"total"`
}

// Telemetry posts fire-and-forget analytics. Every failure is swallowed.
type Telemetry struct {
	client    *Client
	sessionID string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewTelemetry creates a Telemetry bound to client. A nil client disables it.
func NewTelemetry(client *Client, logger *slog.Logger) *Telemetry {
	return &Telemetry{
		client:    client,
		sessionID: uuid.NewString(),
		timeout:   TelemetryTimeout,
		logger:    logger,
	}
}

func (t *Telemetry) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

// SetTimeout bounds each analytics post. Zero keeps TelemetryTimeout.
func (t *Telemetry) SetTimeout(d time.Duration) {
	if t != nil && d > 0 {
		t.timeout = d
	}
}

// SessionID identifies this process in analytics events.
func (t *Telemetry) SessionID() string {
	if t == nil {
		return ""
	}
	return t.sessionID
}

// MapLoad reports the first map render.
func (t *Telemetry) MapLoad(ctx context.Context, backend types.RenderBackendState, center types.LatLng, zoom float64, load time.Duration) {
	if t == nil || t.client == nil {
		return
	}
	t.send(ctx, "/api/analytics/map-load", MapLoadEvent{
		SessionID: t.sessionID,
		Backend:   string(backend.Active),
		Fallback:  backend.FallbackReason,
		Lat:       center.Lat,
		Lng:       center.Lng,
		Zoom:      zoom,
		LoadMs:    load.Milliseconds(),
	})
}

// Search reports an applied search.
func (t *Telemetry) Search(ctx context.Context, ev SearchEvent) {
	if t == nil || t.client == nil {
		return
	}
	ev.SessionID = t.sessionID
	t.send(ctx, "/api/analytics/search", ev)
}

func (t *Telemetry) send(ctx context.Context, path string, body any) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.client.post(ctx, "analytics", path, body, nil); err != nil {
		t.log().Debug("analytics dropped", "path", path, "error", err)
	}
}
