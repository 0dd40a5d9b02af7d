// Package app wires the state machines into one owned Session.
//
// Handle is the only mutating entry point and must be called from a single
// goroutine. It returns effects; Run performs an effect's I/O on any goroutine
// and returns the event to feed back into Handle.
package app

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/autocomplete"
	"github.com/MeKo-Tech/parcelmap/internal/config"
	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/MeKo-Tech/parcelmap/internal/metrics"
	"github.com/MeKo-Tech/parcelmap/internal/query"
	"github.com/MeKo-Tech/parcelmap/internal/render"
	"github.com/MeKo-Tech/parcelmap/internal/sidebar"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/MeKo-Tech/parcelmap/internal/viewport"
)

// SelectionZoom is the zoom used when recentering on a selected property.
const SelectionZoom = 18

// PropertyService is the REST backend. *api.Client implements it.
type PropertyService interface {
	Search(ctx context.Context, req api.SearchRequest) (*api.SearchResult, error)
	Autocomplete(ctx context.Context, req api.AutocompleteRequest) ([]types.Suggestion, error)
	FacetOptions(ctx context.Context, facet api.Facet, filters url.Values) ([]api.FacetOption, error)
}

// Renderer draws map frames. *render.Adapter implements it.
type Renderer interface {
	Render(ctx context.Context, f render.Frame) (*render.Result, error)
	State() types.RenderBackendState
}

// Reporter receives analytics. *api.Telemetry implements it.
type Reporter interface {
	MapLoad(ctx context.Context, backend types.RenderBackendState, center types.LatLng, zoom float64, load time.Duration)
	Search(ctx context.Context, ev api.SearchEvent)
}

// Deps are the collaborators of a Session.
type Deps struct {
	Client    PropertyService
	Renderer  Renderer
	Telemetry Reporter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Config    *config.Config
}

// Session owns the viewport, filters, search bars, query channel and sidebar
// of one running client.
type Session struct {
	cfg       *config.Config
	client    PropertyService
	renderer  Renderer
	telemetry Reporter
	metrics   *metrics.Metrics
	logger    *slog.Logger

	viewport *viewport.Store
	filters  *filters.Store
	bars     map[types.SearchMode]*autocomplete.Engine
	search   types.SearchQuery
	query    *query.Orchestrator
	sidebar  *sidebar.Controller

	facets    map[api.Facet][]api.FacetOption
	facetErrs map[api.Facet]string

	renderGen uint64
	frame     *render.Result
	renderErr error
	mapLoaded bool
	notice    string
	started   time.Time

	dirtyQuery  bool
	dirtyRender bool

	chans     *channels
	base      context.Context
	cancel    context.CancelFunc
	published atomic.Pointer[Snapshot]
}

// New creates a Session. A nil Config uses config.Default().
func New(deps Deps) *Session {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	base, cancel := context.WithCancel(context.Background())

	s := &Session{
		cfg:       cfg,
		client:    deps.Client,
		renderer:  deps.Renderer,
		telemetry: deps.Telemetry,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		viewport: viewport.New(viewport.Config{
			Center: cfg.Map.Center(),
			Zoom:   cfg.Map.Zoom,
			Width:  cfg.Map.Width,
			Height: cfg.Map.Height,
			Logger: deps.Logger,
		}),
		filters:   filters.NewStore(deps.Logger),
		bars:      make(map[types.SearchMode]*autocomplete.Engine, len(types.SearchModes)),
		query:     query.New(query.Config{PageSize: cfg.Query.PageSize, Metrics: deps.Metrics, Logger: deps.Logger}),
		sidebar:   sidebar.New(deps.Logger),
		facets:    make(map[api.Facet][]api.FacetOption),
		facetErrs: make(map[api.Facet]string),
		chans:     newChannels(base),
		base:      base,
		cancel:    cancel,
	}
	for _, mode := range types.SearchModes {
		debounce := cfg.Autocomplete.Debounce
		if mode == types.SearchMailingAddress {
			debounce = cfg.Autocomplete.MailingDebounce
		}
		s.bars[mode] = autocomplete.New(autocomplete.Config{
			Mode:      mode,
			Debounce:  debounce,
			MinLength: cfg.Autocomplete.MinLength,
			Limit:     cfg.Autocomplete.Limit,
			Logger:    deps.Logger,
		})
	}
	s.publish()
	return s
}

func (s *Session) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Start returns the effects of the first frame: the initial viewport query,
// the first render and the town facet.
func (s *Session) Start() []Effect {
	s.started = time.Now()
	s.dirtyQuery = true
	s.dirtyRender = true
	out := s.flush(nil)
	out = append(out, s.facetsEffect(api.FacetTowns))
	s.publish()
	s.log().Info("session started", "viewport", s.viewport.Viewport())
	return out
}

// Close cancels every in-flight effect and closes the renderer when it can be closed.
func (s *Session) Close() error {
	s.cancel()
	if c, ok := s.renderer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Handle applies ev and returns the effects it requires.
func (s *Session) Handle(ev Event) []Effect {
	var out []Effect

	switch e := ev.(type) {
	case Resized:
		if s.viewport.Resize(e.Width, e.Height) {
			s.dirtyQuery = true
		}
		s.dirtyRender = true

	case MoveStarted:
		s.viewport.MoveStart()

	case MoveEnded:
		s.moveEnded(e.Viewport)

	case Panned:
		s.viewport.MoveStart()
		s.moveEnded(s.viewport.Pan(e.DX, e.DY))

	case Zoomed:
		s.viewport.MoveStart()
		s.moveEnded(s.viewport.ZoomBy(e.Delta))

	case RecenterRequested:
		s.recenter(e.Center, e.Zoom)

	case FilterToggled:
		if _, err := s.filters.Toggle(e.Key, e.Value); err != nil {
			s.notice = err.Error()
			break
		}
		s.filtersChanged()

	case FilterSet:
		if _, err := s.filters.Set(e.Key, e.Values...); err != nil {
			s.notice = err.Error()
			break
		}
		s.filtersChanged()

	case FilterCleared:
		if !s.filters.State().Has(e.Key) {
			break
		}
		s.filters.Clear(e.Key)
		s.filtersChanged()

	case FiltersCleared:
		s.filters.ClearAll()
		s.filtersChanged()
		s.sidebar.OnCleared(!s.search.IsEmpty())
		s.dirtyRender = true

	case SearchInput:
		out = s.searchInput(e, out)

	case SearchSubmitted:
		if bar, ok := s.bars[e.Mode]; ok {
			s.chans.stop(suggestChannel(e.Mode))
			if action, ok := bar.Submit(); ok {
				s.apply(action)
			}
		}

	case SearchCleared:
		s.clearSearch(e.Mode)

	case SuggestionMoved:
		if bar, ok := s.bars[e.Mode]; ok {
			bar.Move(e.Delta)
		}

	case SuggestionSelected:
		bar, ok := s.bars[e.Mode]
		if !ok {
			break
		}
		action, err := bar.Select(e.Index)
		if err != nil {
			s.notice = err.Error()
			break
		}
		s.chans.stop(suggestChannel(e.Mode))
		s.apply(action)

	case SuggestionsClosed:
		if bar, ok := s.bars[e.Mode]; ok {
			bar.Close()
			s.chans.stop(suggestChannel(e.Mode))
		}

	case DebounceElapsed:
		out = s.debounceElapsed(e, out)

	case SuggestionsLoaded:
		bar, ok := s.bars[e.Mode]
		if !ok {
			break
		}
		if e.Generation != bar.Generation() {
			s.metrics.IncStale("autocomplete")
		}
		bar.Apply(e.Generation, e.Suggestions, e.Err)

	case QueryLoaded:
		out = s.queryLoaded(e.Response, out)

	case RetryRequested:
		if req, ok := s.query.Retry(); ok {
			out = append(out, QueryEffect{Request: req, ctx: s.chans.next(channelQuery)})
		}

	case FailureDismissed:
		s.query.DismissFailure()
		s.notice = ""

	case PropertySelectedOnMap:
		results := s.query.Results()
		p, ok := types.FindProperty(s.sidebar.Visible(results), e.ID)
		if !ok {
			break
		}
		s.sidebar.SelectFromMap(p, results)
		s.focus(p)

	case PropertySelectedInList:
		results := s.query.Results()
		if s.sidebar.SelectFromList(e.Index, results) {
			s.focus(results[e.Index])
		}

	case ListCursorMoved:
		s.sidebar.MoveCursor(e.Delta, len(s.query.Results()))

	case SidebarClosed:
		s.sidebar.Close()
		s.dirtyRender = true

	case SidebarBack:
		s.sidebar.Back()

	case FacetsRequested:
		out = append(out, s.facetsEffect(e.Facet))

	case FacetsLoaded:
		if e.Err != nil {
			if api.Classify(e.Err) != api.KindCanceled {
				s.facetErrs[e.Facet] = api.UserMessage(e.Err)
			}
			break
		}
		delete(s.facetErrs, e.Facet)
		s.facets[e.Facet] = e.Options

	case RenderDone:
		out = s.renderDone(e, out)
	}

	out = s.flush(out)
	s.publish()
	return out
}

func (s *Session) moveEnded(observed types.Viewport) {
	if s.viewport.MoveEnd(observed) {
		s.dirtyQuery = true
		s.dirtyRender = true
	}
}

// recenter performs a programmatic move. The rendered frame jumps to the
// target at once, so the map's move callbacks follow immediately and are
// classified as programmatic.
func (s *Session) recenter(center types.LatLng, zoom float64) {
	tr, ok := s.viewport.RequestRecenter(center, zoom)
	if !ok {
		return
	}
	s.viewport.MoveStart()
	s.viewport.MoveEnd(tr.To)
	s.dirtyQuery = true
	s.dirtyRender = true
}

// focus recenters on a selected property.
func (s *Session) focus(p types.Property) {
	s.dirtyRender = true
	if c, ok := p.Centroid(); ok {
		s.recenter(c, SelectionZoom)
	}
}

func (s *Session) filtersChanged() {
	towns := s.filters.State().Values(filters.Town)
	for _, bar := range s.bars {
		bar.Scope(towns)
	}
	s.dirtyQuery = true
}

// apply performs a suggestion or submit action: at most one filter mutation or
// search, plus an optional recenter.
func (s *Session) apply(a autocomplete.Action) {
	switch {
	case a.Filter != nil:
		if _, err := s.filters.Set(a.Filter.Key, a.Filter.Values...); err != nil {
			s.notice = err.Error()
			return
		}
		s.filtersChanged()
	case a.Search != nil:
		s.search = *a.Search
		s.dirtyQuery = true
	}
	if a.Recenter != nil {
		s.recenter(a.Recenter.Center, a.Recenter.Zoom)
	}
}

func (s *Session) searchInput(e SearchInput, out []Effect) []Effect {
	bar, ok := s.bars[e.Mode]
	if !ok {
		return out
	}
	d, ok := bar.Input(e.Text)
	if !ok {
		s.chans.stop(suggestChannel(e.Mode))
		// an emptied bar drops its search
		if strings.TrimSpace(e.Text) == "" && s.search.Mode == e.Mode && !s.search.IsEmpty() {
			s.search = types.SearchQuery{}
			s.dirtyQuery = true
		}
		return out
	}
	return append(out, DebounceEffect{Debounce: d, ctx: s.chans.next(suggestChannel(e.Mode))})
}

func (s *Session) clearSearch(mode types.SearchMode) {
	bar, ok := s.bars[mode]
	if !ok {
		return
	}
	bar.Clear()
	s.chans.stop(suggestChannel(mode))
	if s.search.Mode == mode && !s.search.IsEmpty() {
		s.search = types.SearchQuery{}
		s.sidebar.OnCleared(!s.filters.State().IsEmpty())
		s.dirtyQuery = true
		s.dirtyRender = true
	}
}

func (s *Session) debounceElapsed(e DebounceElapsed, out []Effect) []Effect {
	bar, ok := s.bars[e.Mode]
	if !ok {
		return out
	}
	req, ok := bar.Fire(e.Generation)
	if !ok {
		return out
	}
	s.metrics.IncAutocomplete(string(e.Mode))
	return append(out, SuggestEffect{Request: req, ctx: s.chans.next(suggestChannel(e.Mode))})
}

func (s *Session) queryLoaded(resp query.Response, out []Effect) []Effect {
	switch s.query.Apply(resp) {
	case query.Applied:
		results := s.query.Results()
		s.sidebar.OnResults(results)
		s.dirtyRender = true
		if s.telemetry != nil && !s.cfg.API.DisableTelemetry {
			snap := s.query.Snapshot()
			out = append(out, TelemetryEffect{Search: &api.SearchEvent{
				Strategy: resp.Params.Strategy.String(),
				Query:    resp.Params.Request.Query,
				Mode:     string(resp.Params.Request.Mode),
				Results:  len(results),
				Total:    snap.Total,
			}})
		}
	case query.FailedOutcome, query.Discarded:
	}
	return out
}

func (s *Session) renderDone(e RenderDone, out []Effect) []Effect {
	if e.Generation != s.renderGen {
		s.metrics.IncStale("render")
		return out
	}
	if e.Err != nil {
		if api.Classify(e.Err) == api.KindCanceled {
			return out
		}
		s.renderErr = e.Err
		s.log().Error("map render failed", "error", e.Err)
		return out
	}
	s.frame = e.Result
	s.renderErr = nil

	if !s.mapLoaded {
		s.mapLoaded = true
		v := s.viewport.Viewport()
		if s.telemetry != nil && !s.cfg.API.DisableTelemetry {
			out = append(out, TelemetryEffect{MapLoad: &MapLoad{
				Backend: s.renderer.State(),
				Center:  v.Center,
				Zoom:    v.Zoom,
				Elapsed: time.Since(s.started),
			}})
		}
	}
	return out
}

// flush turns the dirty flags raised while handling one event into at most
// one query and one render.
func (s *Session) flush(out []Effect) []Effect {
	if s.dirtyQuery {
		s.dirtyQuery = false
		req, ok := s.query.Update(s.inputs())
		switch {
		case ok:
			out = append(out, QueryEffect{Request: req, ctx: s.chans.next(channelQuery)})
		case !s.query.InFlight():
			s.chans.stop(channelQuery)
		}
	}
	if s.dirtyRender {
		s.dirtyRender = false
		if eff, ok := s.renderEffect(); ok {
			out = append(out, eff)
		}
	}
	return out
}

func (s *Session) inputs() query.Inputs {
	return query.Inputs{
		Filters: s.filters.State(),
		Search:  s.search,
		Bounds:  s.viewport.Bounds(),
	}
}

func (s *Session) renderEffect() (Effect, bool) {
	if s.renderer == nil {
		return nil, false
	}
	w, h := s.viewport.Size()
	if w <= 0 || h <= 0 {
		return nil, false
	}
	s.renderGen++
	var selectedID string
	if p, ok := s.sidebar.Selected(); ok {
		selectedID = p.ID
	}
	return RenderEffect{
		Generation: s.renderGen,
		Frame: render.Frame{
			Viewport:   s.viewport.Viewport(),
			Width:      w,
			Height:     h,
			Properties: s.sidebar.Visible(s.query.Results()),
			SelectedID: selectedID,
			MaxLabels:  s.cfg.Labels.Max,
			HideLabels: s.cfg.Labels.Disabled,
		},
		ctx: s.chans.next(channelRender),
	}, true
}

func (s *Session) facetsEffect(f api.Facet) Effect {
	q := url.Values{}
	s.filters.State().Encode(q, FacetKey(f))
	return FacetsEffect{Facet: f, Filters: q, ctx: s.chans.next(facetChannel(f))}
}

// FacetKey is the filter a facet offers values for. Its own selection is not
// sent so the options do not collapse to what is already selected.
func FacetKey(f api.Facet) filters.Key {
	switch f {
	case api.FacetTowns:
		return filters.Town
	case api.FacetZoning:
		return filters.Zoning
	case api.FacetUnitTypes:
		return filters.UnitType
	case api.FacetOwnerCities:
		return filters.OwnerCity
	case api.FacetOwnerStates:
		return filters.OwnerState
	}
	return ""
}
