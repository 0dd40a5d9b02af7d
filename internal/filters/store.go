package filters

import (
	"fmt"
	"log/slog"
	"strings"
)

// Store is the mutable owner of the filter selections.
// Mutations return the new snapshot; callers hold snapshots, never the map.
type Store struct {
	values map[Key][]string
	logger *slog.Logger
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{values: make(map[Key][]string), logger: logger}
}

func (s *Store) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// State returns an immutable snapshot of the current selections.
func (s *Store) State() State {
	out := make(map[Key][]string, len(s.values))
	for k, v := range s.values {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return State{values: out}
}

// Toggle selects value for k, or removes it when already selected.
// Single-select keys replace their value; toggling the current value clears the key.
func (s *Store) Toggle(k Key, value string) (State, error) {
	kind, ok := kinds[k]
	if !ok {
		return s.State(), fmt.Errorf("unknown filter %q", k)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return s.State(), fmt.Errorf("empty value for filter %q", k)
	}

	switch kind {
	case MultiSelect:
		cur := s.values[k]
		idx := indexOf(cur, value)
		if idx >= 0 {
			cur = append(cur[:idx:idx], cur[idx+1:]...)
		} else {
			cur = append(cur, value)
		}
		s.put(k, cur)
	case SingleSelect:
		if s.First(k) == value {
			delete(s.values, k)
		} else {
			s.values[k] = []string{value}
		}
	case FreeText:
		s.values[k] = []string{value}
	}

	s.log().Debug("filter toggled", "key", k, "value", value, "selected", s.values[k])
	return s.State(), nil
}

// Set replaces the selection for k. An empty list clears the key.
func (s *Store) Set(k Key, values ...string) (State, error) {
	kind, ok := kinds[k]
	if !ok {
		return s.State(), fmt.Errorf("unknown filter %q", k)
	}

	clean := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || indexOf(clean, v) >= 0 {
			continue
		}
		clean = append(clean, v)
	}
	if kind != MultiSelect && len(clean) > 1 {
		return s.State(), fmt.Errorf("filter %q accepts a single value, got %d", k, len(clean))
	}

	s.put(k, clean)
	return s.State(), nil
}

// SetText sets the free-text mailing address filter. Blank text clears it.
func (s *Store) SetText(text string) State {
	text = strings.TrimSpace(text)
	if text == "" {
		delete(s.values, MailingAddress)
	} else {
		s.values[MailingAddress] = []string{text}
	}
	return s.State()
}

// Clear removes k entirely.
func (s *Store) Clear(k Key) State {
	delete(s.values, k)
	return s.State()
}

// ClearAll resets to the empty mapping.
func (s *Store) ClearAll() State {
	s.values = make(map[Key][]string)
	s.log().Debug("filters cleared")
	return s.State()
}

// First returns the first value selected for k.
func (s *Store) First(k Key) string {
	if v := s.values[k]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (s *Store) put(k Key, values []string) {
	if len(values) == 0 {
		delete(s.values, k)
		return
	}
	s.values[k] = values
}

func indexOf(values []string, v string) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return -1
}
