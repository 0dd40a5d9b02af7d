// Package metrics exposes Prometheus counters for the sync engine and renderer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application series. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	queryRequests   *prometheus.CounterVec
	querySkipped    prometheus.Counter
	staleResponses  *prometheus.CounterVec
	queryErrors     *prometheus.CounterVec
	autocomplete    *prometheus.CounterVec
	renderFallbacks prometheus.Counter
	renderDuration  *prometheus.HistogramVec
	tileCache       *prometheus.CounterVec
	opsRequests     *prometheus.CounterVec
}

// New creates a fresh registry with every series registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	queryRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parcelmap",
		Name:      "query_requests_total",
		Help:      "Search requests issued, by fetch strategy",
	}, []string{"strategy"})

	querySkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parcelmap",
		Name:      "query_skipped_total",
		Help:      "Search recomputations skipped because the request key was unchanged",
	})

	staleResponses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parcelmap",
		Name:      "stale_responses_total",
		Help:      "Responses discarded because a newer request superseded them",
	}, []string{"channel"})

	queryErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parcelmap",
		Name:      "query_errors_total",
		Help:      "Failed search requests, by error kind",
	}, []string{"kind"})

	autocomplete := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parcelmap",
		Name:      "autocomplete_requests_total",
		Help:      "Autocomplete requests issued, by search bar",
	}, []string{"mode"})

	renderFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parcelmap",
		Name:      "render_fallbacks_total",
		Help:      "Switches from the primary to the fallback map backend",
	})

	renderDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parcelmap",
		Name:      "render_duration_seconds",
		Help:      "Time to render one map frame",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"backend"})

	tileCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parcelmap",
		Name:      "tile_cache_total",
		Help:      "Tile cache lookups, by result",
	}, []string{"result"})

	opsRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parcelmap",
		Name:      "ops_http_requests_total",
		Help:      "Requests served by the ops listener",
	}, []string{"method", "route", "status"})

	registry.MustRegister(
		queryRequests,
		querySkipped,
		staleResponses,
		queryErrors,
		autocomplete,
		renderFallbacks,
		renderDuration,
		tileCache,
		opsRequests,
	)

	return &Metrics{
		registry:        registry,
		queryRequests:   queryRequests,
		querySkipped:    querySkipped,
		staleResponses:  staleResponses,
		queryErrors:     queryErrors,
		autocomplete:    autocomplete,
		renderFallbacks: renderFallbacks,
		renderDuration:  renderDuration,
		tileCache:       tileCache,
		opsRequests:     opsRequests,
	}
}

// IncQuery counts an issued search request.
func (m *Metrics) IncQuery(strategy string) {
	if m == nil {
		return
	}
	m.queryRequests.WithLabelValues(strategy).Inc()
}

// IncQuerySkipped counts a recomputation that did not issue a request.
func (m *Metrics) IncQuerySkipped() {
	if m == nil {
		return
	}
	m.querySkipped.Inc()
}

// IncStale counts a discarded stale response on channel.
func (m *Metrics) IncStale(channel string) {
	if m == nil {
		return
	}
	m.staleResponses.WithLabelValues(channel).Inc()
}

// IncQueryError counts a failed search.
func (m *Metrics) IncQueryError(kind string) {
	if m == nil {
		return
	}
	m.queryErrors.WithLabelValues(kind).Inc()
}

// IncAutocomplete counts an issued autocomplete request.
func (m *Metrics) IncAutocomplete(mode string) {
	if m == nil {
		return
	}
	m.autocomplete.WithLabelValues(mode).Inc()
}

// IncRenderFallback counts a primary to fallback switch.
func (m *Metrics) IncRenderFallback() {
	if m == nil {
		return
	}
	m.renderFallbacks.Inc()
}

// ObserveRender records one frame render.
func (m *Metrics) ObserveRender(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// IncTileCache counts a tile cache lookup ("hit", "miss", "error").
func (m *Metrics) IncTileCache(result string) {
	if m == nil {
		return
	}
	m.tileCache.WithLabelValues(result).Inc()
}

// ObserveOpsRequest counts a request served by the ops listener.
func (m *Metrics) ObserveOpsRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.opsRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
