package types

import (
	"fmt"
	"strings"
)

// SearchMode identifies one of the three search bars.
type SearchMode string

const (
	SearchAddressTown    SearchMode = "address_town"
	SearchOwner          SearchMode = "owner"
	SearchMailingAddress SearchMode = "mailing_address"
)

// SearchModes lists the bars in display order.
var SearchModes = []SearchMode{SearchAddressTown, SearchOwner, SearchMailingAddress}

// ParseSearchMode validates a mode name.
func ParseSearchMode(s string) (SearchMode, error) {
	for _, m := range SearchModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown search mode %q", s)
}

// SearchQuery is the free-text search currently driving the result set.
type SearchQuery struct {
	Mode SearchMode `json:"mode"`
	Text string     `json:"text"`
}

// IsEmpty reports whether the query has no meaningful text.
func (q SearchQuery) IsEmpty() bool {
	return strings.TrimSpace(q.Text) == ""
}

// SuggestionType classifies an autocomplete suggestion.
type SuggestionType string

const (
	SuggestAddress      SuggestionType = "address"
	SuggestTown         SuggestionType = "town"
	SuggestState        SuggestionType = "state"
	SuggestOwner        SuggestionType = "owner"
	SuggestOwnerAddress SuggestionType = "owner_address"
)

// Valid reports whether t is a known suggestion type.
func (t SuggestionType) Valid() bool {
	switch t {
	case SuggestAddress, SuggestTown, SuggestState, SuggestOwner, SuggestOwnerAddress:
		return true
	}
	return false
}

// Suggestion is one autocomplete entry. Regenerated per request.
type Suggestion struct {
	Type    SuggestionType `json:"type"`
	Value   string         `json:"value"`
	Display string         `json:"display"`
	Count   *int           `json:"count,omitempty"`
	Center  *LatLng        `json:"center,omitempty"`
}

// BackendKind names a map rendering backend.
type BackendKind string

const (
	BackendPrimary  BackendKind = "primary"
	BackendFallback BackendKind = "fallback"
)

// RenderBackendState tracks which rendering backend is active.
// Once Active is BackendFallback it stays there for the session.
type RenderBackendState struct {
	Active         BackendKind `json:"active"`
	FallbackReason string      `json:"fallback_reason,omitempty"`
}
