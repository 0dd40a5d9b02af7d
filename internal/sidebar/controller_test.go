package sidebar

import (
	"fmt"
	"testing"

	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func props(n int) []types.Property {
	out := make([]types.Property, n)
	for i := range out {
		out[i] = types.Property{ID: fmt.Sprintf("p%d", i), Address: fmt.Sprintf("%d Main St", i)}
	}
	return out
}

func TestResultsOpenList(t *testing.T) {
	c := New(nil)
	c.OnResults(nil)
	assert.Equal(t, Hidden, c.View())

	c.OnResults(props(3))
	assert.Equal(t, ListView, c.View())

	c.Close()
	assert.Equal(t, Hidden, c.View())
}

func TestMapSelectionWhileHiddenOpensDetail(t *testing.T) {
	c := New(nil)
	p := types.Property{ID: "x"}
	c.SelectFromMap(p, nil)
	assert.Equal(t, DetailView, c.View())
	sel, ok := c.Selected()
	require.True(t, ok)
	assert.Equal(t, "x", sel.ID)
}

func TestMapSelectionWhileListKeepsList(t *testing.T) {
	c := New(nil)
	results := props(50)
	c.OnResults(results)

	c.SelectFromMap(results[37], results)
	st := c.State()
	assert.Equal(t, ListView, st.View)
	require.NotNil(t, st.Selected)
	assert.Equal(t, "p37", st.Selected.ID)
	assert.Equal(t, 37, st.Cursor)
}

func TestListSelectAndBack(t *testing.T) {
	c := New(nil)
	results := props(5)
	c.OnResults(results)

	require.True(t, c.SelectFromList(2, results))
	assert.Equal(t, DetailView, c.View())
	assert.False(t, c.SelectFromList(9, results))

	c.Back()
	assert.Equal(t, ListView, c.View())

	// detail opened from the map with no list goes back to hidden
	d := New(nil)
	d.SelectFromMap(types.Property{ID: "y"}, nil)
	d.Back()
	assert.Equal(t, Hidden, d.View())
}

func TestResultsKeepOpenDetail(t *testing.T) {
	t.Run("detail from list survives a refetch", func(t *testing.T) {
		c := New(nil)
		results := props(5)
		c.OnResults(results)
		require.True(t, c.SelectFromList(2, results))

		refetched := props(8)
		c.OnResults(refetched)
		st := c.State()
		assert.Equal(t, DetailView, st.View)
		require.NotNil(t, st.Selected)
		assert.Equal(t, "p2", st.Selected.ID)

		c.Back()
		assert.Equal(t, ListView, c.View())
		assert.Equal(t, 2, c.State().Cursor)
	})

	t.Run("detail from map while hidden survives a refetch", func(t *testing.T) {
		c := New(nil)
		c.SelectFromMap(types.Property{ID: "p4"}, nil)
		c.OnResults(props(6))
		assert.Equal(t, DetailView, c.View())

		c.Back()
		assert.Equal(t, ListView, c.View(), "the refetched list is available behind Back")
		assert.Equal(t, 4, c.State().Cursor)
	})

	t.Run("list follows the selection to its new row", func(t *testing.T) {
		c := New(nil)
		results := props(10)
		c.OnResults(results)
		c.SelectFromMap(results[7], results)

		c.OnResults(props(10)[5:])
		st := c.State()
		assert.Equal(t, ListView, st.View)
		assert.Equal(t, 2, st.Cursor)
	})
}

func TestOnCleared(t *testing.T) {
	c := New(nil)
	c.OnResults(props(2))
	c.OnCleared(true)
	assert.Equal(t, ListView, c.View(), "active search keeps the sidebar")
	c.OnCleared(false)
	assert.Equal(t, Hidden, c.View())

	s := New(nil)
	s.SelectFromMap(types.Property{ID: "keep"}, nil)
	s.OnCleared(false)
	assert.Equal(t, DetailView, s.View(), "a selection keeps the sidebar")
}

func TestVisibleInjectsSelection(t *testing.T) {
	c := New(nil)
	results := props(3)
	assert.Equal(t, results, c.Visible(results))

	outside := types.Property{ID: "far-away"}
	c.SelectFromMap(outside, results)
	vis := c.Visible(results)
	require.Len(t, vis, 4)
	assert.Equal(t, "far-away", vis[3].ID)
	assert.Len(t, results, 3, "input slice untouched")

	c.SelectFromMap(results[1], results)
	assert.Len(t, c.Visible(results), 3, "no duplicate when already present")
}

func TestMoveCursor(t *testing.T) {
	c := New(nil)
	c.MoveCursor(5, 3)
	assert.Equal(t, 2, c.State().Cursor)
	c.MoveCursor(-9, 3)
	assert.Equal(t, 0, c.State().Cursor)
}
