// Package autocomplete implements the per-search-bar suggestion engine.
//
// Each Engine owns one channel: a monotonically increasing generation counter
// decides which debounce timer may fire and which response may be applied.
package autocomplete

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

const (
	// MinQueryLength is the shortest input that produces suggestions.
	MinQueryLength = 2

	DefaultDebounce        = 300 * time.Millisecond
	MailingAddressDebounce = 400 * time.Millisecond

	// Zoom levels used for recenter hints.
	AddressZoom = 18
	TownZoom    = 13
)

// DebounceFor returns the default debounce window for a bar.
func DebounceFor(mode types.SearchMode) time.Duration {
	if mode == types.SearchMailingAddress {
		return MailingAddressDebounce
	}
	return DefaultDebounce
}

// Status is the suggestion panel state.
type Status int

const (
	Hidden Status = iota
	Loading
	Results
	Empty
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Results:
		return "results"
	case Empty:
		return "empty"
	default:
		return "hidden"
	}
}

// Config configures an Engine.
type Config struct {
	Mode      types.SearchMode
	Debounce  time.Duration // 0 uses DebounceFor(Mode)
	MinLength int           // 0 uses MinQueryLength
	Limit     int
	Logger    *slog.Logger
}

// Debounce asks the caller to call Fire(Generation) after Delay.
type Debounce struct {
	Mode       types.SearchMode
	Generation uint64
	Delay      time.Duration
}

// Request is a suggestion fetch for one generation.
type Request struct {
	Mode       types.SearchMode
	Generation uint64
	api.AutocompleteRequest
}

// Recenter is a navigation hint attached to a selection.
type Recenter struct {
	Center types.LatLng
	Zoom   float64
}

// FilterMutation replaces the values of one filter key.
type FilterMutation struct {
	Key    filters.Key
	Values []string
}

// Action is the single outbound effect of a selection.
// Filter and Search are never both set.
type Action struct {
	Recenter *Recenter
	Filter   *FilterMutation
	Search   *types.SearchQuery
}

// IsZero reports whether the action does nothing.
func (a Action) IsZero() bool {
	return a.Recenter == nil && a.Filter == nil && a.Search == nil
}

// State is a read-only snapshot for rendering.
type State struct {
	Mode        types.SearchMode
	Text        string
	Status      Status
	Suggestions []types.Suggestion
	Highlighted int
	Generation  uint64
}

// Engine is the suggestion state machine for one search bar.
type Engine struct {
	cfg Config

	text        string
	status      Status
	suggestions []types.Suggestion
	highlighted int
	generation  uint64
	scope       []string

	logger *slog.Logger
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DebounceFor(cfg.Mode)
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = MinQueryLength
	}
	if cfg.Limit <= 0 {
		cfg.Limit = api.DefaultSuggestionLimit
	}
	return &Engine{cfg: cfg, logger: cfg.Logger}
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// Mode returns the bar this engine serves.
func (e *Engine) Mode() types.SearchMode {
	return e.cfg.Mode
}

// Generation returns the latest issued generation.
func (e *Engine) Generation() uint64 {
	return e.generation
}

// Text returns the current bar text.
func (e *Engine) Text() string {
	return e.text
}

// Snapshot returns the state for rendering.
func (e *Engine) Snapshot() State {
	sugg := make([]types.Suggestion, len(e.suggestions))
	copy(sugg, e.suggestions)
	return State{
		Mode:        e.cfg.Mode,
		Text:        e.text,
		Status:      e.status,
		Suggestions: sugg,
		Highlighted: e.highlighted,
		Generation:  e.generation,
	}
}

// Scope sets the active town values passed as municipality on every request.
func (e *Engine) Scope(towns []string) {
	e.scope = append([]string(nil), towns...)
}

// Input records a keystroke. Every call supersedes in-flight work.
// Short input hides the panel; otherwise the panel shows Loading at once and the
// returned Debounce must be scheduled.
func (e *Engine) Input(text string) (Debounce, bool) {
	e.text = text
	e.generation++
	e.highlighted = 0

	if utf8.RuneCountInString(strings.TrimSpace(text)) < e.cfg.MinLength {
		e.status = Hidden
		e.suggestions = nil
		return Debounce{}, false
	}

	e.status = Loading
	return Debounce{Mode: e.cfg.Mode, Generation: e.generation, Delay: e.cfg.Debounce}, true
}

// Fire is called when a debounce timer elapses. Only the latest generation fires.
func (e *Engine) Fire(gen uint64) (Request, bool) {
	if gen != e.generation || e.status != Loading {
		return Request{}, false
	}
	return Request{
		Mode:       e.cfg.Mode,
		Generation: gen,
		AutocompleteRequest: api.AutocompleteRequest{
			Query:          strings.TrimSpace(e.text),
			Mode:           e.cfg.Mode,
			Municipalities: append([]string(nil), e.scope...),
			Limit:          e.cfg.Limit,
		},
	}, true
}

// Apply stores the response for gen. Responses of older generations are dropped
// and Apply returns false. Errors and timeouts degrade to Empty.
func (e *Engine) Apply(gen uint64, suggestions []types.Suggestion, err error) bool {
	if gen != e.generation {
		e.log().Debug("stale suggestions discarded", "mode", e.cfg.Mode, "generation", gen, "latest", e.generation)
		return false
	}
	if e.status != Loading {
		return false
	}
	if err != nil {
		e.log().Debug("suggestions failed", "mode", e.cfg.Mode, "error", err)
		suggestions = nil
	}

	e.suggestions = append([]types.Suggestion(nil), suggestions...)
	e.highlighted = 0
	if len(e.suggestions) == 0 {
		e.status = Empty
	} else {
		e.status = Results
	}
	return true
}

// Move shifts the highlighted suggestion by delta, wrapping around.
func (e *Engine) Move(delta int) {
	n := len(e.suggestions)
	if n == 0 {
		return
	}
	e.highlighted = ((e.highlighted+delta)%n + n) % n
}

// Highlighted returns the index of the highlighted suggestion.
func (e *Engine) Highlighted() int {
	return e.highlighted
}

// Select picks suggestion i. The bar text becomes its display value, the panel
// closes and exactly one action is returned.
func (e *Engine) Select(i int) (Action, error) {
	if e.status != Results || i < 0 || i >= len(e.suggestions) {
		return Action{}, fmt.Errorf("no suggestion at index %d", i)
	}
	s := e.suggestions[i]

	e.text = s.Display
	e.status = Hidden
	e.suggestions = nil
	e.highlighted = 0
	e.generation++

	action := ActionFor(s)
	e.log().Debug("suggestion selected", "mode", e.cfg.Mode, "type", s.Type, "value", s.Value)
	return action, nil
}

// Submit turns the typed text into a free-text search, closing the panel.
func (e *Engine) Submit() (Action, bool) {
	text := strings.TrimSpace(e.text)
	e.status = Hidden
	e.suggestions = nil
	e.generation++
	if text == "" {
		return Action{}, false
	}
	return Action{Search: &types.SearchQuery{Mode: e.cfg.Mode, Text: text}}, true
}

// Clear empties the bar and hides the panel.
func (e *Engine) Clear() {
	e.text = ""
	e.status = Hidden
	e.suggestions = nil
	e.highlighted = 0
	e.generation++
}

// Close hides the panel but keeps the text.
func (e *Engine) Close() {
	if e.status == Hidden {
		return
	}
	e.status = Hidden
	e.suggestions = nil
	e.generation++
}

// ActionFor maps a suggestion to its outbound action.
func ActionFor(s types.Suggestion) Action {
	var a Action
	switch s.Type {
	case types.SuggestAddress:
		a.Search = &types.SearchQuery{Mode: types.SearchAddressTown, Text: s.Value}
		if s.Center != nil {
			a.Recenter = &Recenter{Center: *s.Center, Zoom: AddressZoom}
		}
	case types.SuggestTown:
		a.Filter = &FilterMutation{Key: filters.Town, Values: []string{s.Value}}
		if s.Center != nil {
			a.Recenter = &Recenter{Center: *s.Center, Zoom: TownZoom}
		}
	case types.SuggestState:
		a.Filter = &FilterMutation{Key: filters.OwnerState, Values: []string{s.Value}}
	case types.SuggestOwner:
		a.Search = &types.SearchQuery{Mode: types.SearchOwner, Text: s.Value}
	case types.SuggestOwnerAddress:
		a.Filter = &FilterMutation{Key: filters.MailingAddress, Values: []string{s.Value}}
	}
	return a
}
