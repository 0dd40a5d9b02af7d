// Package sidebar derives the sidebar view from query results and selections.
package sidebar

import (
	"log/slog"

	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// View is the sidebar state.
type View int

const (
	Hidden View = iota
	ListView
	DetailView
)

func (v View) String() string {
	switch v {
	case ListView:
		return "list"
	case DetailView:
		return "detail"
	default:
		return "hidden"
	}
}

// State is a read-only snapshot.
type State struct {
	View     View
	Selected *types.Property
	// Cursor is the highlighted row in ListView.
	Cursor int
}

// Controller is the sidebar state machine.
type Controller struct {
	view     View
	selected *types.Property
	cursor   int
	// listAvailable is set once a query produced results, so Back can return to it.
	listAvailable bool

	logger *slog.Logger
}

// New creates a hidden Controller.
func New(logger *slog.Logger) *Controller {
	return &Controller{logger: logger}
}

func (c *Controller) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// State returns the current snapshot.
func (c *Controller) State() State {
	st := State{View: c.view, Cursor: c.cursor}
	if c.selected != nil {
		p := *c.selected
		st.Selected = &p
	}
	return st
}

// View returns the current view.
func (c *Controller) View() View {
	return c.view
}

// Selected returns the selected property, if any.
func (c *Controller) Selected() (types.Property, bool) {
	if c.selected == nil {
		return types.Property{}, false
	}
	return *c.selected, true
}

// OnResults handles an applied query. Results show the list unless a detail
// view is open; that one stays and the new list waits behind Back.
func (c *Controller) OnResults(results []types.Property) {
	if len(results) == 0 {
		c.listAvailable = false
		return
	}
	c.listAvailable = true
	if c.selected != nil {
		for i, r := range results {
			if r.ID == c.selected.ID {
				c.cursor = i
				break
			}
		}
	}
	if c.cursor >= len(results) {
		c.cursor = len(results) - 1
	}
	if c.view == DetailView && c.selected != nil {
		return
	}
	c.transition(ListView)
}

// Close hides the sidebar. The selection is dropped.
func (c *Controller) Close() {
	c.selected = nil
	c.cursor = 0
	c.transition(Hidden)
}

// SelectFromMap handles a click on a property on the map.
// While the list is showing the list stays and marks the item; otherwise the
// detail view opens.
func (c *Controller) SelectFromMap(p types.Property, results []types.Property) {
	c.selected = &p
	for i, r := range results {
		if r.ID == p.ID {
			c.cursor = i
			break
		}
	}
	if c.view == ListView {
		c.log().Debug("map selection kept in list", "id", p.ID)
		return
	}
	c.transition(DetailView)
}

// SelectFromList opens the detail view for the property at the cursor or given index.
func (c *Controller) SelectFromList(index int, results []types.Property) bool {
	if index < 0 || index >= len(results) {
		return false
	}
	p := results[index]
	c.selected = &p
	c.cursor = index
	c.transition(DetailView)
	return true
}

// Back returns from the detail view to the list when a list exists.
func (c *Controller) Back() {
	if c.view != DetailView {
		return
	}
	if c.listAvailable {
		c.transition(ListView)
		return
	}
	c.Close()
}

// MoveCursor moves the list cursor by delta, clamped to the result count.
func (c *Controller) MoveCursor(delta, n int) {
	if n == 0 {
		c.cursor = 0
		return
	}
	c.cursor += delta
	if c.cursor < 0 {
		c.cursor = 0
	}
	if c.cursor >= n {
		c.cursor = n - 1
	}
}

// OnCleared handles all filters being cleared. With nothing selected and no
// search active the sidebar hides.
func (c *Controller) OnCleared(searchActive bool) {
	c.listAvailable = false
	if c.selected == nil && !searchActive {
		c.transition(Hidden)
	}
}

// Visible returns the result set to render with the selected property injected
// by id when it is missing, so its marker never disappears.
func (c *Controller) Visible(results []types.Property) []types.Property {
	if c.selected == nil {
		return results
	}
	if _, ok := types.FindProperty(results, c.selected.ID); ok {
		return results
	}
	out := make([]types.Property, 0, len(results)+1)
	out = append(out, results...)
	return append(out, *c.selected)
}

func (c *Controller) transition(to View) {
	if c.view == to {
		return
	}
	c.log().Debug("sidebar transition", "from", c.view, "to", to)
	c.view = to
}
