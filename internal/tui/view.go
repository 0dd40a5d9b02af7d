package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/app"
	"github.com/MeKo-Tech/parcelmap/internal/filters"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")).Padding(0, 1)
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220")).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236"))

	paneStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	focusedStyle = paneStyle.BorderForeground(lipgloss.Color("39"))
)

// View renders the whole screen.
func (m *Model) View() string {
	if m.width == 0 {
		return "starting…"
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.pane(focusFilters, filterPaneWidth, m.filtersView()),
		m.pane(focusMap, m.mapCols, m.mapPane()),
		m.pane(focusSidebar, sidebarPaneWidth, m.rightPane()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, m.barsView(), body, m.bannerView(), m.statusView())
}

func (m *Model) pane(f focus, width int, content string) string {
	style := paneStyle
	if m.focus == f {
		style = focusedStyle
	}
	return style.Width(width).Height(m.mapRows).MaxHeight(m.mapRows + 2).Render(content)
}

func (m *Model) barsView() string {
	labels := []string{"1 Address/Town", "2 Owner", "3 Mailing"}
	cells := make([]string, 0, len(m.inputs))
	for i, in := range m.inputs {
		style := paneStyle
		if idx, ok := m.barIndex(); ok && idx == i {
			style = focusedStyle
		}
		cells = append(cells, style.Render(dimStyle.Render(labels[i]+" ")+in.View()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

func (m *Model) mapPane() string {
	if m.mapView != "" {
		return m.mapView
	}
	text := "loading map…"
	if m.snap.RenderError != "" {
		text = m.snap.RenderError
	}
	return emptyMap(m.mapCols, m.mapRows, text)
}

func (m *Model) filtersView() string {
	f := m.currentFacet()
	key := app.FacetKey(f)
	active := m.snap.Filters[key]

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("◀ "+facetTitle(f)+" ▶") + "\n")
	if msg, ok := m.snap.FacetErrors[f]; ok {
		sb.WriteString(errorStyle.Render(msg) + "\n")
	}
	opts := m.snap.Facets[f]
	if opts == nil {
		sb.WriteString(dimStyle.Render("no options loaded"))
	}
	start := max(0, m.option-m.mapRows+3)
	for i := start; i < len(opts) && i < start+m.mapRows-2; i++ {
		o := opts[i]
		box := "[ ]"
		if slices.Contains(active, o.Value) {
			box = "[x]"
		}
		line := box + " " + o.Value
		if o.Count != nil {
			line += dimStyle.Render(fmt.Sprintf(" (%d)", *o.Count))
		}
		if m.focus == focusFilters && i == m.option {
			line = cursorStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// rightPane shows the suggestion panel of the focused bar, otherwise the sidebar.
func (m *Model) rightPane() string {
	if i, ok := m.barIndex(); ok && m.snap.Bars[i].Panel != "hidden" {
		return m.suggestionsView(m.snap.Bars[i])
	}
	return m.sidebarView()
}

func (m *Model) suggestionsView(bar app.BarState) string {
	switch bar.Panel {
	case "loading":
		return m.spinner.View() + " searching…"
	case "empty":
		return dimStyle.Render("no suggestions")
	}
	var sb strings.Builder
	for i, s := range bar.Suggestions {
		line := fmt.Sprintf("%-13s %s", "["+string(s.Type)+"]", s.Display)
		if s.Count != nil {
			line += dimStyle.Render(fmt.Sprintf(" (%d)", *s.Count))
		}
		if i == bar.Highlighted {
			line = cursorStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Model) sidebarView() string {
	sb := m.snap.Sidebar
	switch sb.View {
	case "list":
		return m.listView(sb)
	case "detail":
		if sb.Selected != nil {
			return detailView(*sb.Selected)
		}
	}
	return dimStyle.Render("no results")
}

func (m *Model) listView(sb app.SidebarState) string {
	var out strings.Builder
	out.WriteString(titleStyle.Render(fmt.Sprintf("%d of %d properties", m.snap.Query.Count, m.snap.Query.Total)) + "\n")
	rows := m.mapRows - 1
	start := max(0, sb.Cursor-rows+1)
	for i := start; i < len(sb.Items) && i < start+rows; i++ {
		p := sb.Items[i]
		line := truncate(label(p), sidebarPaneWidth-2)
		switch {
		case m.focus == focusSidebar && i == sb.Cursor:
			line = cursorStyle.Render(line)
		case p.ID == sb.SelectedID:
			line = selectedStyle.Render(line)
		}
		out.WriteString(line + "\n")
	}
	return strings.TrimRight(out.String(), "\n")
}

func label(p types.Property) string {
	if p.Address != "" {
		return p.Address + ", " + p.Municipality
	}
	return p.ParcelID + ", " + p.Municipality
}

func detailView(p types.Property) string {
	a := p.Attributes
	rows := [][2]string{
		{"Address", p.Address},
		{"Town", p.Municipality},
		{"Parcel", p.ParcelID},
		{"Owner", a.OwnerName},
		{"Mailing", a.MailingAddress},
		{"Owner city", strings.TrimSpace(a.OwnerCity + " " + a.OwnerState)},
		{"Unit type", a.UnitType},
		{"Zoning", a.Zoning},
	}
	if a.YearBuilt > 0 {
		rows = append(rows, [2]string{"Built", fmt.Sprint(a.YearBuilt)})
	}
	if a.AssessedValue > 0 {
		rows = append(rows, [2]string{"Assessed", fmt.Sprintf("$%.0f", a.AssessedValue)})
	}
	if !a.LastSaleDate.IsZero() {
		rows = append(rows, [2]string{"Last sale", fmt.Sprintf("%s $%.0f", a.LastSaleDate.Format("2006-01-02"), a.LastSalePrice)})
	}
	if a.LotAcres > 0 {
		rows = append(rows, [2]string{"Lot", fmt.Sprintf("%.2f ac", a.LotAcres)})
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Property") + dimStyle.Render("  b: back") + "\n")
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%-11s", r[0])) + r[1] + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (m *Model) bannerView() string {
	q := m.snap.Query
	switch {
	case q.Error != "" && q.AfterRetry:
		return errorStyle.Render("Search failed again: " + q.Error)
	case q.Error != "" && q.Retryable:
		return errorStyle.Render(q.Error + "  [r] retry  [x] dismiss")
	case q.Error != "":
		return errorStyle.Render(q.Error + "  [x] dismiss")
	case m.snap.Notice != "":
		return noticeStyle.Render(m.snap.Notice)
	}
	return ""
}

func (m *Model) statusView() string {
	s := m.snap
	backend := "map: " + string(s.Backend.Active)
	if s.Backend.FallbackReason != "" {
		backend += " (" + s.Backend.FallbackReason + ")"
	}
	if s.Frame != nil && s.Frame.Attribution != "" {
		backend += " " + s.Frame.Attribution
	}

	query := s.Query.Strategy + " " + s.Query.Status
	if s.Query.Status == "loading" {
		query = m.spinner.View() + " " + query
	}

	parts := []string{
		backend,
		fmt.Sprintf("%.5f,%.5f z%.1f", s.Viewport.Center.Lat, s.Viewport.Center.Lng, s.Viewport.Zoom),
		query,
		filterSummary(s.Filters),
		"tab: focus  q: quit",
	}
	return statusStyle.Width(m.width).MaxWidth(m.width).Render(strings.Join(parts, " │ "))
}

func filterSummary(fs map[filters.Key][]string) string {
	if len(fs) == 0 {
		return "no filters"
	}
	n := 0
	for _, v := range fs {
		n += len(v)
	}
	return fmt.Sprintf("%d filter values", n)
}

// facetTitle is the label of a facet in the filter pane.
func facetTitle(f api.Facet) string {
	return strings.ReplaceAll(string(f), "-", " ")
}
