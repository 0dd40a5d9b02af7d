package app

import (
	"context"
	"net/url"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/autocomplete"
	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/MeKo-Tech/parcelmap/internal/query"
	"github.com/MeKo-Tech/parcelmap/internal/render"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// Event is an input to Session.Handle: a user gesture or the result of an effect.
type Event interface{ isEvent() }

// Map gestures.
type (
	// Resized reports the map pane size in pixels.
	Resized struct{ Width, Height int }
	// MoveStarted is the map's move-start callback.
	MoveStarted struct{}
	// MoveEnded is the map's move-end callback with the viewport it settled at.
	MoveEnded struct{ Viewport types.Viewport }
	// Panned is a complete user drag by a pixel offset.
	Panned struct{ DX, DY float64 }
	// Zoomed is a complete user zoom by delta levels.
	Zoomed struct{ Delta float64 }
	// RecenterRequested asks for a programmatic move.
	RecenterRequested struct {
		Center types.LatLng
		Zoom   float64
	}
)

// Filter changes.
type (
	FilterToggled struct {
		Key   filters.Key
		Value string
	}
	FilterSet struct {
		Key    filters.Key
		Values []string
	}
	FilterCleared  struct{ Key filters.Key }
	FiltersCleared struct{}
)

// Search bar input.
type (
	SearchInput struct {
		Mode types.SearchMode
		Text string
	}
	SearchSubmitted struct{ Mode types.SearchMode }
	SearchCleared   struct{ Mode types.SearchMode }
	// SuggestionMoved moves the highlight in a suggestion panel.
	SuggestionMoved struct {
		Mode  types.SearchMode
		Delta int
	}
	SuggestionSelected struct {
		Mode  types.SearchMode
		Index int
	}
	SuggestionsClosed struct{ Mode types.SearchMode }
)

// Sidebar and selection.
type (
	PropertySelectedOnMap  struct{ ID string }
	PropertySelectedInList struct{ Index int }
	ListCursorMoved        struct{ Delta int }
	SidebarClosed          struct{}
	SidebarBack            struct{}
	RetryRequested         struct{}
	FailureDismissed       struct{}
	FacetsRequested        struct{ Facet api.Facet }
)

// Effect results.
type (
	DebounceElapsed struct {
		Mode       types.SearchMode
		Generation uint64
	}
	SuggestionsLoaded struct {
		Mode        types.SearchMode
		Generation  uint64
		Suggestions []types.Suggestion
		Err         error
	}
	QueryLoaded struct{ Response query.Response }
	RenderDone  struct {
		Generation uint64
		Result     *render.Result
		Err        error
	}
	FacetsLoaded struct {
		Facet   api.Facet
		Options []api.FacetOption
		Err     error
	}
)

func (Resized) isEvent()                {}
func (MoveStarted) isEvent()            {}
func (MoveEnded) isEvent()              {}
func (Panned) isEvent()                 {}
func (Zoomed) isEvent()                 {}
func (RecenterRequested) isEvent()      {}
func (FilterToggled) isEvent()          {}
func (FilterSet) isEvent()              {}
func (FilterCleared) isEvent()          {}
func (FiltersCleared) isEvent()         {}
func (SearchInput) isEvent()            {}
func (SearchSubmitted) isEvent()        {}
func (SearchCleared) isEvent()          {}
func (SuggestionMoved) isEvent()        {}
func (SuggestionSelected) isEvent()     {}
func (SuggestionsClosed) isEvent()      {}
func (PropertySelectedOnMap) isEvent()  {}
func (PropertySelectedInList) isEvent() {}
func (ListCursorMoved) isEvent()        {}
func (SidebarClosed) isEvent()          {}
func (SidebarBack) isEvent()            {}
func (RetryRequested) isEvent()         {}
func (FailureDismissed) isEvent()       {}
func (FacetsRequested) isEvent()        {}
func (DebounceElapsed) isEvent()        {}
func (SuggestionsLoaded) isEvent()      {}
func (QueryLoaded) isEvent()            {}
func (RenderDone) isEvent()             {}
func (FacetsLoaded) isEvent()           {}

// Effect is I/O requested by Session.Handle. Run performs it.
// Channel effects carry the context of their channel; issuing a newer effect
// on the same channel cancels it.
type Effect interface{ isEffect() }

type (
	// DebounceEffect waits before firing a suggestion request.
	DebounceEffect struct {
		autocomplete.Debounce
		ctx context.Context
	}
	// SuggestEffect fetches suggestions for one bar.
	SuggestEffect struct {
		Request autocomplete.Request
		ctx     context.Context
	}
	// QueryEffect runs a property search on the query channel.
	QueryEffect struct {
		Request query.Request
		ctx     context.Context
	}
	// RenderEffect draws the map.
	RenderEffect struct {
		Generation uint64
		Frame      render.Frame
		ctx        context.Context
	}
	// FacetsEffect loads the options of one filter facet.
	FacetsEffect struct {
		Facet   api.Facet
		Filters url.Values
		ctx     context.Context
	}
	// TelemetryEffect posts analytics. It produces no event.
	TelemetryEffect struct {
		Search  *api.SearchEvent
		MapLoad *MapLoad
	}
)

// MapLoad is the first successful render of a session.
type MapLoad struct {
	Backend types.RenderBackendState
	Center  types.LatLng
	Zoom    float64
	Elapsed time.Duration
}

func (DebounceEffect) isEffect()  {}
func (SuggestEffect) isEffect()   {}
func (QueryEffect) isEffect()     {}
func (RenderEffect) isEffect()    {}
func (FacetsEffect) isEffect()    {}
func (TelemetryEffect) isEffect() {}
