// Package filters owns the named filter selections applied to parcel searches.
package filters

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key names a filter dimension.
type Key string

const (
	Town           Key = "town"
	UnitType       Key = "unit_type"
	Zoning         Key = "zoning"
	PropertyAge    Key = "property_age"
	TimeSinceSale  Key = "time_since_sale"
	TaxBracket     Key = "tax_bracket"
	OwnerCity      Key = "owner_city"
	OwnerState     Key = "owner_state"
	LeadType       Key = "lead_type"
	MailingAddress Key = "mailing_address"
)

// Kind describes how a key accepts values.
type Kind int

const (
	MultiSelect Kind = iota
	SingleSelect
	FreeText
)

var kinds = map[Key]Kind{
	Town:           MultiSelect,
	UnitType:       MultiSelect,
	Zoning:         MultiSelect,
	OwnerCity:      MultiSelect,
	OwnerState:     MultiSelect,
	PropertyAge:    SingleSelect,
	TimeSinceSale:  SingleSelect,
	TaxBracket:     SingleSelect,
	LeadType:       SingleSelect,
	MailingAddress: FreeText,
}

// Keys lists every filter key in display order.
var Keys = []Key{Town, UnitType, Zoning, PropertyAge, TimeSinceSale, TaxBracket, OwnerCity, OwnerState, LeadType, MailingAddress}

// KindOf returns the selection kind of k.
func KindOf(k Key) (Kind, bool) {
	kind, ok := kinds[k]
	return kind, ok
}

// ParseKey validates a key name.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("unknown filter %q", s)
	}
	return k, nil
}

// Lead type presets.
const (
	LeadHighEquity     = "high-equity"
	LeadVacant         = "vacant"
	LeadAbsenteeOwners = "absentee-owners"
	LeadRecentlySold   = "recently-sold"
	LeadLowEquity      = "low-equity"
)

// LeadTypes lists the lead presets the backend understands.
var LeadTypes = []string{LeadHighEquity, LeadVacant, LeadAbsenteeOwners, LeadRecentlySold, LeadLowEquity}

// Preset options for the single-select keys the backend has no facet endpoint for.
var Presets = map[Key][]string{
	PropertyAge:   {"0-10", "10-25", "25-50", "50-100", "100+"},
	TimeSinceSale: {"0-1", "1-3", "3-5", "5-10", "10+"},
	TaxBracket:    {"0-5000", "5000-10000", "10000-20000", "20000+"},
	LeadType:      LeadTypes,
}

// State is an immutable snapshot of the filter selections.
// An empty selection is represented by key absence.
type State struct {
	values map[Key][]string
}

// Values returns a copy of the selected values for k (nil when unset).
func (s State) Values(k Key) []string {
	v := s.values[k]
	if len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// First returns the first value for k, or "".
func (s State) First(k Key) string {
	if v := s.values[k]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Has reports whether k has a selection.
func (s State) Has(k Key) bool {
	_, ok := s.values[k]
	return ok
}

// IsEmpty reports whether no filter is selected.
func (s State) IsEmpty() bool {
	return len(s.values) == 0
}

// Len returns the number of keys with a selection.
func (s State) Len() int {
	return len(s.values)
}

// Equal compares two snapshots, honouring value order.
func (s State) Equal(o State) bool {
	if len(s.values) != len(o.values) {
		return false
	}
	for k, v := range s.values {
		ov, ok := o.values[k]
		if !ok || len(ov) != len(v) {
			return false
		}
		for i := range v {
			if v[i] != ov[i] {
				return false
			}
		}
	}
	return true
}

// Encode writes every selection except the excluded keys as query parameters.
// Multi-select values are comma-joined in selection order.
func (s State) Encode(q url.Values, exclude ...Key) {
	skip := make(map[Key]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}
	for k, v := range s.values {
		if skip[k] {
			continue
		}
		q.Set(string(k), strings.Join(v, ","))
	}
}

// Key returns a canonical string for the snapshot, stable across map iteration order.
func (s State) Key() string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strings.Join(s.values[Key(k)], ","))
	}
	return sb.String()
}

func (s State) String() string {
	return s.Key()
}
