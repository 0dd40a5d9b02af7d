package app

import (
	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/MeKo-Tech/parcelmap/internal/render"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// Snapshot is a read-only view of the session for the UI and the ops listener.
type Snapshot struct {
	Viewport types.Viewport           `json:"viewport"`
	Backend  types.RenderBackendState `json:"backend"`
	Filters  map[filters.Key][]string `json:"filters,omitempty"`
	Search   types.SearchQuery        `json:"search"`
	Bars     []BarState               `json:"bars"`
	Query    QueryState               `json:"query"`
	Sidebar  SidebarState             `json:"sidebar"`
	Notice   string                   `json:"notice,omitempty"`

	RenderError string         `json:"render_error,omitempty"`
	Frame       *render.Result `json:"-"`

	Facets      map[api.Facet][]api.FacetOption `json:"-"`
	FacetErrors map[api.Facet]string            `json:"facet_errors,omitempty"`
}

// BarState is one search bar with its suggestion panel.
type BarState struct {
	Mode        types.SearchMode   `json:"mode"`
	Text        string             `json:"text"`
	Panel       string             `json:"panel"`
	Suggestions []types.Suggestion `json:"suggestions,omitempty"`
	Highlighted int                `json:"highlighted"`
}

// QueryState is the main query channel.
type QueryState struct {
	Status     string           `json:"status"`
	Strategy   string           `json:"strategy"`
	Generation uint64           `json:"generation"`
	Total      int              `json:"total"`
	Count      int              `json:"count"`
	Error      string           `json:"error,omitempty"`
	ErrorKind  api.Kind         `json:"error_kind,omitempty"`
	Retryable  bool             `json:"retryable,omitempty"`
	AfterRetry bool             `json:"after_retry,omitempty"`
	Results    []types.Property `json:"-"`
}

// SidebarState is the sidebar view with the list it shows.
type SidebarState struct {
	View       string           `json:"view"`
	SelectedID string           `json:"selected_id,omitempty"`
	Cursor     int              `json:"cursor"`
	Items      []types.Property `json:"-"`
	Selected   *types.Property  `json:"-"`
}

// Snapshot builds the current snapshot. Call it from the Handle goroutine.
func (s *Session) Snapshot() Snapshot {
	v := s.viewport.Viewport()
	snap := Snapshot{
		Viewport: v,
		Search:   s.search,
		Notice:   s.notice,
		Frame:    s.frame,
		Facets:   make(map[api.Facet][]api.FacetOption, len(s.facets)),
	}
	if s.renderer != nil {
		snap.Backend = s.renderer.State()
	}
	if s.renderErr != nil {
		snap.RenderError = s.renderErr.Error()
	}

	fs := s.filters.State()
	if !fs.IsEmpty() {
		snap.Filters = make(map[filters.Key][]string, fs.Len())
		for _, k := range filters.Keys {
			if vals := fs.Values(k); vals != nil {
				snap.Filters[k] = vals
			}
		}
	}

	for _, mode := range types.SearchModes {
		st := s.bars[mode].Snapshot()
		snap.Bars = append(snap.Bars, BarState{
			Mode:        mode,
			Text:        st.Text,
			Panel:       st.Status.String(),
			Suggestions: st.Suggestions,
			Highlighted: st.Highlighted,
		})
	}

	q := s.query.Snapshot()
	snap.Query = QueryState{
		Status:     q.Status.String(),
		Strategy:   q.Strategy.String(),
		Generation: q.Generation,
		Total:      q.Total,
		Count:      len(q.Results),
		Results:    q.Results,
	}
	if q.Failure != nil {
		snap.Query.Error = q.Failure.Message
		snap.Query.ErrorKind = q.Failure.Kind
		snap.Query.Retryable = q.Failure.Retryable
		snap.Query.AfterRetry = q.Failure.AfterRetry
	}

	sb := s.sidebar.State()
	snap.Sidebar = SidebarState{
		View:   sb.View.String(),
		Cursor: sb.Cursor,
		Items:  s.sidebar.Visible(q.Results),
	}
	if p, ok := s.sidebar.Selected(); ok {
		snap.Sidebar.SelectedID = p.ID
		snap.Sidebar.Selected = &p
	}

	for f, opts := range s.facets {
		snap.Facets[f] = opts
	}
	if len(s.facetErrs) > 0 {
		snap.FacetErrors = make(map[api.Facet]string, len(s.facetErrs))
		for f, msg := range s.facetErrs {
			snap.FacetErrors[f] = msg
		}
	}
	return snap
}

// State returns the snapshot published after the last Handle. It is safe to
// call from any goroutine and backs the ops /state endpoint.
func (s *Session) State() any {
	if p := s.published.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Session) publish() {
	snap := s.Snapshot()
	s.published.Store(&snap)
}
