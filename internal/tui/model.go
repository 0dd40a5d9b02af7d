// Package tui is the interactive terminal client. It feeds key presses into an
// app.Session and runs the returned effects as bubbletea commands.
package tui

import (
	"log/slog"
	"math"
	"os"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/app"
	"github.com/MeKo-Tech/parcelmap/internal/render"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type focus int

const (
	focusMap focus = iota
	focusAddress
	focusOwner
	focusMailing
	focusFilters
	focusSidebar
	focusCount
)

const (
	filterPaneWidth  = 28
	sidebarPaneWidth = 42
	// pixelsPerCell is the frame resolution behind one map cell column.
	pixelsPerCell = 8
	headerRows    = 4
	footerRows    = 2
)

// Options configures a Model.
type Options struct {
	Session *app.Session
	// FramePath, when set, receives every rendered frame as PNG.
	FramePath string
	Logger    *slog.Logger
}

// eventMsg carries the result of an effect back into Update.
type eventMsg struct{ ev app.Event }

// Model is the bubbletea model.
type Model struct {
	session *app.Session
	snap    app.Snapshot

	inputs  []textinput.Model
	spinner spinner.Model
	focus   focus

	facet       int
	option      int
	staleFacets map[api.Facet]bool

	width, height    int
	mapCols, mapRows int
	frameW, frameH   int
	mapView          string
	mapFrame         *render.Result

	framePath string
	logger    *slog.Logger
}

// New creates a Model for a session that has not been started yet.
func New(opts Options) *Model {
	m := &Model{
		session:     opts.Session,
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		staleFacets: make(map[api.Facet]bool),
		framePath:   opts.FramePath,
		logger:      opts.Logger,
	}
	for _, mode := range types.SearchModes {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = placeholder(mode)
		ti.CharLimit = 120
		m.inputs = append(m.inputs, ti)
	}
	m.snap = m.session.Snapshot()
	return m
}

func (m *Model) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

func placeholder(mode types.SearchMode) string {
	switch mode {
	case types.SearchOwner:
		return "owner name"
	case types.SearchMailingAddress:
		return "mailing address"
	default:
		return "address or town"
	}
}

// Init starts the session.
func (m *Model) Init() tea.Cmd {
	effects := m.session.Start()
	m.refresh()
	return tea.Batch(m.spinner.Tick, m.dispatch(effects))
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout(msg.Width, msg.Height)
		return m, m.handle(app.Resized{Width: m.frameW, Height: m.frameH})

	case eventMsg:
		if msg.ev == nil {
			return m, nil
		}
		return m, m.handle(msg.ev)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

// dispatch turns effects into commands. Each command runs the effect on the
// bubbletea goroutine pool and reports back through eventMsg.
func (m *Model) dispatch(effects []app.Effect) tea.Cmd {
	if len(effects) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(effects))
	for _, eff := range effects {
		cmds = append(cmds, func() tea.Msg {
			return eventMsg{ev: m.session.Run(eff)}
		})
	}
	return tea.Batch(cmds...)
}

func (m *Model) handle(ev app.Event) tea.Cmd {
	effects := m.session.Handle(ev)
	m.refresh()
	return m.dispatch(effects)
}

// refresh pulls a new snapshot and keeps the widgets in step with it.
func (m *Model) refresh() {
	m.snap = m.session.Snapshot()

	for i, bar := range m.snap.Bars {
		if i < len(m.inputs) && m.inputs[i].Value() != bar.Text {
			m.inputs[i].SetValue(bar.Text)
		}
	}

	if m.snap.Frame != m.mapFrame {
		m.mapFrame = m.snap.Frame
		m.redrawMap()
		m.writeFrame()
	}
}

func (m *Model) redrawMap() {
	if m.mapFrame == nil || m.mapFrame.Image == nil {
		m.mapView = ""
		return
	}
	m.mapView = halfBlocks(m.mapFrame.Image, m.mapCols, m.mapRows)
}

func (m *Model) writeFrame() {
	if m.framePath == "" || m.mapFrame == nil {
		return
	}
	f, err := os.Create(m.framePath)
	if err != nil {
		m.log().Warn("cannot write frame", "path", m.framePath, "error", err)
		return
	}
	defer func() { _ = f.Close() }()
	if err := render.EncodePNG(f, m.mapFrame.Image); err != nil {
		m.log().Warn("cannot write frame", "path", m.framePath, "error", err)
	}
}

// layout splits the terminal into the filter pane, the map and the sidebar.
func (m *Model) layout(width, height int) {
	m.width, m.height = width, height
	m.mapCols = max(width-filterPaneWidth-sidebarPaneWidth-4, 10)
	m.mapRows = max(height-headerRows-footerRows-2, 4)
	m.frameW = min(m.mapCols*pixelsPerCell, render.MaxFrameSize)
	m.frameH = min(m.mapRows*2*pixelsPerCell, render.MaxFrameSize)
	for i := range m.inputs {
		m.inputs[i].Width = max(width/len(m.inputs)-16, 8)
	}
	m.redrawMap()
}

func (m *Model) setFocus(f focus) tea.Cmd {
	var cmds []tea.Cmd
	if prev, ok := m.barIndex(); ok && m.snap.Bars[prev].Panel != "hidden" {
		cmds = append(cmds, m.handle(app.SuggestionsClosed{Mode: types.SearchModes[prev]}))
	}
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
	m.focus = f
	if i, ok := m.barIndex(); ok {
		cmds = append(cmds, m.inputs[i].Focus())
	}
	if f == focusFilters {
		cmds = append(cmds, m.ensureFacet())
	}
	return tea.Batch(cmds...)
}

func (m *Model) barIndex() (int, bool) {
	switch m.focus {
	case focusAddress, focusOwner, focusMailing:
		return int(m.focus - focusAddress), true
	}
	return 0, false
}

func (m *Model) handleKey(k tea.KeyMsg) tea.Cmd {
	switch k.String() {
	case "ctrl+c":
		return tea.Quit
	case "tab":
		return m.setFocus((m.focus + 1) % focusCount)
	case "shift+tab":
		return m.setFocus((m.focus + focusCount - 1) % focusCount)
	}

	if i, ok := m.barIndex(); ok {
		return m.barKey(i, k)
	}
	switch m.focus {
	case focusFilters:
		return m.filterKey(k)
	case focusSidebar:
		return m.sidebarKey(k)
	default:
		return m.mapKey(k)
	}
}

func (m *Model) barKey(i int, k tea.KeyMsg) tea.Cmd {
	mode := types.SearchModes[i]
	bar := m.snap.Bars[i]

	switch k.String() {
	case "enter":
		if bar.Panel == "results" {
			return m.handle(app.SuggestionSelected{Mode: mode, Index: bar.Highlighted})
		}
		return m.handle(app.SearchSubmitted{Mode: mode})
	case "up":
		return m.handle(app.SuggestionMoved{Mode: mode, Delta: -1})
	case "down":
		return m.handle(app.SuggestionMoved{Mode: mode, Delta: 1})
	case "ctrl+x":
		return m.handle(app.SearchCleared{Mode: mode})
	case "esc":
		if bar.Panel != "hidden" {
			return m.handle(app.SuggestionsClosed{Mode: mode})
		}
		return m.setFocus(focusMap)
	}

	before := m.inputs[i].Value()
	var cmd tea.Cmd
	m.inputs[i], cmd = m.inputs[i].Update(k)
	if after := m.inputs[i].Value(); after != before {
		return tea.Batch(cmd, m.handle(app.SearchInput{Mode: mode, Text: after}))
	}
	return cmd
}

func (m *Model) mapKey(k tea.KeyMsg) tea.Cmd {
	dx, dy := float64(m.frameW)/4, float64(m.frameH)/4
	if dx == 0 {
		dx, dy = 64, 64
	}
	switch k.String() {
	case "q":
		return tea.Quit
	case "left", "h":
		return m.handle(app.Panned{DX: -dx})
	case "right", "l":
		return m.handle(app.Panned{DX: dx})
	case "up", "k":
		return m.handle(app.Panned{DY: -dy})
	case "down", "j":
		return m.handle(app.Panned{DY: dy})
	case "+", "=":
		return m.handle(app.Zoomed{Delta: 1})
	case "-":
		return m.handle(app.Zoomed{Delta: -1})
	case "enter", "s":
		if id, ok := m.nearestToCenter(); ok {
			return m.handle(app.PropertySelectedOnMap{ID: id})
		}
	case "r":
		return m.handle(app.RetryRequested{})
	case "x":
		return m.handle(app.FailureDismissed{})
	case "c":
		return m.handle(app.FiltersCleared{})
	case "1", "2", "3":
		return m.setFocus(focusAddress + focus(k.String()[0]-'1'))
	case "f":
		return m.setFocus(focusFilters)
	}
	return nil
}

// nearestToCenter stands in for a map click: it picks the visible property
// closest to the viewport center.
func (m *Model) nearestToCenter() (string, bool) {
	center := m.snap.Viewport.Center
	best, bestDist := "", math.Inf(1)
	for _, p := range m.snap.Sidebar.Items {
		c, ok := p.Centroid()
		if !ok {
			continue
		}
		dLat := c.Lat - center.Lat
		dLng := (c.Lng - center.Lng) * math.Cos(center.Lat*math.Pi/180)
		if d := dLat*dLat + dLng*dLng; d < bestDist {
			best, bestDist = p.ID, d
		}
	}
	return best, best != ""
}

func (m *Model) currentFacet() api.Facet {
	return api.Facets[m.facet]
}

// ensureFacet loads the options of the shown facet when they are missing or
// outdated by a filter change.
func (m *Model) ensureFacet() tea.Cmd {
	f := m.currentFacet()
	if _, ok := m.snap.Facets[f]; ok && !m.staleFacets[f] {
		return nil
	}
	delete(m.staleFacets, f)
	return m.handle(app.FacetsRequested{Facet: f})
}

func (m *Model) filterKey(k tea.KeyMsg) tea.Cmd {
	f := m.currentFacet()
	opts := m.snap.Facets[f]

	switch k.String() {
	case "left", "h":
		m.facet = (m.facet + len(api.Facets) - 1) % len(api.Facets)
		m.option = 0
		return m.ensureFacet()
	case "right", "l":
		m.facet = (m.facet + 1) % len(api.Facets)
		m.option = 0
		return m.ensureFacet()
	case "up", "k":
		m.option = max(m.option-1, 0)
	case "down", "j":
		m.option = min(m.option+1, max(len(opts)-1, 0))
	case " ", "enter":
		if m.option >= len(opts) {
			return nil
		}
		for _, other := range api.Facets {
			if other != f {
				m.staleFacets[other] = true
			}
		}
		return m.handle(app.FilterToggled{Key: app.FacetKey(f), Value: opts[m.option].Value})
	case "c":
		return m.handle(app.FilterCleared{Key: app.FacetKey(f)})
	case "esc":
		return m.setFocus(focusMap)
	}
	return nil
}

func (m *Model) sidebarKey(k tea.KeyMsg) tea.Cmd {
	switch k.String() {
	case "up", "k":
		return m.handle(app.ListCursorMoved{Delta: -1})
	case "down", "j":
		return m.handle(app.ListCursorMoved{Delta: 1})
	case "enter":
		return m.handle(app.PropertySelectedInList{Index: m.snap.Sidebar.Cursor})
	case "backspace", "b":
		return m.handle(app.SidebarBack{})
	case "esc":
		return m.handle(app.SidebarClosed{})
	}
	return nil
}
