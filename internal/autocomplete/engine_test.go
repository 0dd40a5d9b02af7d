package autocomplete

import (
	"errors"
	"testing"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortInputHidesPanel(t *testing.T) {
	for _, text := range []string{"", "7", " 7 ", "é"} {
		t.Run(text, func(t *testing.T) {
			e := New(Config{Mode: types.SearchAddressTown})
			_, ok := e.Input(text)
			assert.False(t, ok)
			assert.Equal(t, Hidden, e.Snapshot().Status)
		})
	}
}

func TestLoadingThenResultsOrEmpty(t *testing.T) {
	e := New(Config{Mode: types.SearchOwner})

	d, ok := e.Input("sm")
	require.True(t, ok)
	assert.Equal(t, Loading, e.Snapshot().Status, "loading shows before the debounce resolves")
	assert.Equal(t, DefaultDebounce, d.Delay)

	req, ok := e.Fire(d.Generation)
	require.True(t, ok)
	assert.Equal(t, "sm", req.Query)
	assert.Equal(t, types.SearchOwner, req.AutocompleteRequest.Mode)

	require.True(t, e.Apply(req.Generation, []types.Suggestion{{Type: types.SuggestOwner, Value: "Smith", Display: "Smith"}}, nil))
	assert.Equal(t, Results, e.Snapshot().Status)

	d, _ = e.Input("smx")
	req, _ = e.Fire(d.Generation)
	require.True(t, e.Apply(req.Generation, nil, nil))
	assert.Equal(t, Empty, e.Snapshot().Status)
}

func TestErrorsDegradeToEmpty(t *testing.T) {
	e := New(Config{Mode: types.SearchAddressTown})
	d, _ := e.Input("12 Ma")
	req, _ := e.Fire(d.Generation)
	require.True(t, e.Apply(req.Generation, nil, errors.New("timeout")))
	assert.Equal(t, Empty, e.Snapshot().Status)
}

// Typing "768 Maple" then "768 Maple St" inside the debounce window issues
// one request, for the longer text.
func TestDebounceCoalescesKeystrokes(t *testing.T) {
	e := New(Config{Mode: types.SearchAddressTown})

	first, ok := e.Input("768 Maple")
	require.True(t, ok)
	second, ok := e.Input("768 Maple St")
	require.True(t, ok)

	var issued []Request
	for _, d := range []Debounce{first, second} {
		if req, ok := e.Fire(d.Generation); ok {
			issued = append(issued, req)
		}
	}

	require.Len(t, issued, 1)
	assert.Equal(t, "768 Maple St", issued[0].Query)
}

func TestStaleResponseNeverOverwrites(t *testing.T) {
	e := New(Config{Mode: types.SearchAddressTown})

	d1, _ := e.Input("ma")
	r1, ok := e.Fire(d1.Generation)
	require.True(t, ok)

	d2, _ := e.Input("map")
	r2, ok := e.Fire(d2.Generation)
	require.True(t, ok)

	newer := []types.Suggestion{{Type: types.SuggestAddress, Value: "1 Maple Ave", Display: "1 Maple Ave"}}
	older := []types.Suggestion{{Type: types.SuggestTown, Value: "Madison", Display: "Madison"}}

	require.True(t, e.Apply(r2.Generation, newer, nil))
	assert.False(t, e.Apply(r1.Generation, older, nil), "r1 arrives after r2 and must be dropped")
	assert.Equal(t, newer, e.Snapshot().Suggestions)
}

func TestMailingAddressDebounce(t *testing.T) {
	e := New(Config{Mode: types.SearchMailingAddress})
	d, ok := e.Input("PO Box")
	require.True(t, ok)
	assert.Equal(t, 400*time.Millisecond, d.Delay)
}

func TestScopePassesTowns(t *testing.T) {
	e := New(Config{Mode: types.SearchAddressTown})
	e.Scope([]string{"Bridgeport"})
	d, _ := e.Input("Main")
	req, ok := e.Fire(d.Generation)
	require.True(t, ok)
	assert.Equal(t, []string{"Bridgeport"}, req.Municipalities)
}

func TestSelect(t *testing.T) {
	center := types.LatLng{Lat: 41.18, Lng: -73.19}
	tests := []struct {
		name       string
		suggestion types.Suggestion
		check      func(t *testing.T, a Action)
	}{
		{
			name:       "address",
			suggestion: types.Suggestion{Type: types.SuggestAddress, Value: "768 Maple St", Display: "768 Maple St, Bridgeport", Center: &center},
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Search)
				assert.Equal(t, types.SearchQuery{Mode: types.SearchAddressTown, Text: "768 Maple St"}, *a.Search)
				require.NotNil(t, a.Recenter)
				assert.Equal(t, float64(AddressZoom), a.Recenter.Zoom)
			},
		},
		{
			name:       "town",
			suggestion: types.Suggestion{Type: types.SuggestTown, Value: "Bridgeport", Display: "Bridgeport", Center: &center},
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Filter)
				assert.Equal(t, filters.Town, a.Filter.Key)
				require.NotNil(t, a.Recenter)
				assert.Equal(t, float64(TownZoom), a.Recenter.Zoom)
			},
		},
		{
			name:       "state",
			suggestion: types.Suggestion{Type: types.SuggestState, Value: "NY", Display: "New York"},
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Filter)
				assert.Equal(t, filters.OwnerState, a.Filter.Key)
				assert.Nil(t, a.Recenter)
			},
		},
		{
			name:       "owner",
			suggestion: types.Suggestion{Type: types.SuggestOwner, Value: "SMITH JOHN", Display: "Smith, John"},
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Search)
				assert.Equal(t, types.SearchOwner, a.Search.Mode)
			},
		},
		{
			name:       "owner address",
			suggestion: types.Suggestion{Type: types.SuggestOwnerAddress, Value: "PO BOX 12", Display: "PO Box 12"},
			check: func(t *testing.T, a Action) {
				require.NotNil(t, a.Filter)
				assert.Equal(t, filters.MailingAddress, a.Filter.Key)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(Config{Mode: types.SearchAddressTown})
			d, _ := e.Input("xx")
			e.Fire(d.Generation)
			e.Apply(d.Generation, []types.Suggestion{tt.suggestion}, nil)

			a, err := e.Select(0)
			require.NoError(t, err)
			assert.False(t, a.Filter != nil && a.Search != nil, "filter and search must not both be set")
			tt.check(t, a)

			st := e.Snapshot()
			assert.Equal(t, tt.suggestion.Display, st.Text)
			assert.Equal(t, Hidden, st.Status)

			// a response for the pre-selection generation must not reopen the panel
			assert.False(t, e.Apply(d.Generation, []types.Suggestion{tt.suggestion}, nil))
		})
	}
}

func TestSelectOutOfRange(t *testing.T) {
	e := New(Config{Mode: types.SearchOwner})
	_, err := e.Select(0)
	assert.Error(t, err)
}

func TestSubmitAndClear(t *testing.T) {
	e := New(Config{Mode: types.SearchOwner})
	e.Input("  Smith ")
	a, ok := e.Submit()
	require.True(t, ok)
	assert.Equal(t, types.SearchQuery{Mode: types.SearchOwner, Text: "Smith"}, *a.Search)

	e.Clear()
	assert.Empty(t, e.Text())
	_, ok = e.Submit()
	assert.False(t, ok)
}

func TestMoveWraps(t *testing.T) {
	e := New(Config{Mode: types.SearchOwner})
	d, _ := e.Input("sm")
	e.Apply(d.Generation, []types.Suggestion{
		{Type: types.SuggestOwner, Value: "a"}, {Type: types.SuggestOwner, Value: "b"}, {Type: types.SuggestOwner, Value: "c"},
	}, nil)
	e.Move(-1)
	assert.Equal(t, 2, e.Highlighted())
	e.Move(2)
	assert.Equal(t, 1, e.Highlighted())
}
