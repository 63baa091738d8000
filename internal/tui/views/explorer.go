package views

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/leadtap/internal/api"
	"github.com/rendis/leadtap/internal/engine/leads"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/tui/styles"
)

type focusArea int

const (
	focusTable focusArea = iota
	focusFilter
	focusNote
	focusCard
)

// sortCycle is the order the sort key steps through on "s".
var sortCycle = []string{"", "Nome", "Rating", "Keyword Ricerca", leads.SortFieldTimestamp}

// ExplorerModel displays a lead list with filtering, sorting, row flags
// and note editing.
type ExplorerModel struct {
	client   *api.Client
	listName string
	rec      *leads.Reconciler

	filter   leads.FilterState
	sortKey  leads.SortState
	keywords []string // distinct keywords across the collection
	kwIdx    int      // index into keywords, -1 = all

	view       []model.LeadRecord
	total      int
	table      table.Model
	nameFilter textinput.Model
	noteInput  textinput.Model
	focus      focusArea
	selectedID string

	width     int
	height    int
	err       error
	statusMsg string

	cardScrollY int
	cardLines   []string
}

type leadsLoadedMsg struct {
	Records []model.LeadRecord
	Err     error
}

type patchResultMsg struct {
	Err error
}

type exportResultMsg struct {
	Path string
	Err  error
}

func NewExplorerModel(client *api.Client, listName string, rec *leads.Reconciler) ExplorerModel {
	if rec == nil {
		rec = leads.NewReconciler(listName, client, nil)
	}

	nameFilter := textinput.New()
	nameFilter.Placeholder = "Type to filter by name..."
	nameFilter.CharLimit = 50

	noteInput := textinput.New()
	noteInput.Placeholder = "Note..."
	noteInput.CharLimit = 500
	noteInput.Width = 60

	m := ExplorerModel{
		client:     client,
		listName:   listName,
		rec:        rec,
		kwIdx:      -1,
		nameFilter: nameFilter,
		noteInput:  noteInput,
	}
	m.rebuild()
	return m
}

func (m ExplorerModel) Init() tea.Cmd {
	client := m.client
	listName := m.listName
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		records, err := client.GetList(ctx, listName)
		return leadsLoadedMsg{Records: records, Err: err}
	}
}

func (m ExplorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.rebuild()
	case tea.KeyMsg:
		key := msg.String()

		if key == "ctrl+c" {
			return m, tea.Quit
		}

		switch m.focus {
		case focusTable:
			if handled, next, cmd := m.handleTableKey(key); handled {
				return next, cmd
			}

		case focusFilter:
			switch key {
			case "esc", "enter", "tab":
				m.focus = focusTable
				m.nameFilter.Blur()
				return m, nil
			}

		case focusNote:
			switch key {
			case "esc":
				m.focus = focusTable
				m.noteInput.Blur()
				return m, nil
			case "enter":
				m.focus = focusTable
				m.noteInput.Blur()
				return m, m.saveNote(m.noteInput.Value())
			}

		case focusCard:
			ph := m.panelHeight()
			maxScroll := len(m.cardLines) - ph
			if maxScroll < 0 {
				maxScroll = 0
			}
			switch key {
			case "esc", "1":
				m.focus = focusTable
				m.table.SetStyles(m.focusedTableStyles())
				return m, nil
			case "up", "k":
				if m.cardScrollY > 0 {
					m.cardScrollY--
				}
				return m, nil
			case "down", "j":
				if m.cardScrollY < maxScroll {
					m.cardScrollY++
				}
				return m, nil
			}
		}

	case leadsLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.rec.ReplaceAll(msg.Records)
		m.rebuild()
		return m, nil

	case patchResultMsg:
		if msg.Err != nil {
			m.statusMsg = fmt.Sprintf("Update failed: %v", msg.Err)
		} else {
			m.statusMsg = ""
		}
		m.rebuild()
		return m, nil

	case exportResultMsg:
		if msg.Err != nil {
			m.statusMsg = fmt.Sprintf("Export failed: %v", msg.Err)
		} else {
			m.statusMsg = fmt.Sprintf("Exported to %s", msg.Path)
		}
		return m, nil
	}

	// Route input to focused area
	var cmd tea.Cmd
	switch m.focus {
	case focusTable:
		m.table, cmd = m.table.Update(msg)
		if cursor := m.table.Cursor(); cursor >= 0 && cursor < len(m.view) {
			if m.view[cursor].PlaceID != m.selectedID {
				m.selectedID = m.view[cursor].PlaceID
				m.cardScrollY = 0
				m.cacheCardContent()
			}
		}
	case focusFilter:
		m.nameFilter, cmd = m.nameFilter.Update(msg)
		m.filter.Name = m.nameFilter.Value()
		m.rebuild()
	case focusNote:
		m.noteInput, cmd = m.noteInput.Update(msg)
	}

	return m, cmd
}

// handleTableKey maps the table-focus shortcuts. Lowercase keys mutate
// the selected row, uppercase keys adjust the view.
func (m ExplorerModel) handleTableKey(key string) (bool, tea.Model, tea.Cmd) {
	switch key {
	case "esc", "q":
		return true, m, func() tea.Msg { return NavigateToHome{} }
	case "/", "tab":
		m.focus = focusFilter
		m.nameFilter.Focus()
		return true, m, textinput.Blink
	case "1":
		m.focus = focusCard
		m.table.SetStyles(m.unfocusedTableStyles())
		return true, m, nil

	case "V":
		m.filter.ShowHidden = !m.filter.ShowHidden
		m.rebuild()
		return true, m, nil
	case "C":
		m.filter.Contacted = m.filter.Contacted.Next()
		m.rebuild()
		return true, m, nil
	case "I":
		m.filter.Interested = m.filter.Interested.Next()
		m.rebuild()
		return true, m, nil
	case "N":
		m.filter.HasNote = m.filter.HasNote.Next()
		m.rebuild()
		return true, m, nil
	case "K":
		m.cycleKeyword()
		m.rebuild()
		return true, m, nil

	case "s":
		m.sortKey = nextSort(m.sortKey)
		m.rebuild()
		return true, m, nil
	case "S":
		if m.sortKey.Field != "" {
			m.sortKey = m.sortKey.Toggle(m.sortKey.Field)
			m.rebuild()
		}
		return true, m, nil

	case "x":
		return true, m, m.toggleFlag(model.ActionHide)
	case "c":
		return true, m, m.toggleFlag(model.ActionCall)
	case "i":
		return true, m, m.toggleFlag(model.ActionInterested)
	case "n":
		if rec, ok := m.selectedRecord(); ok {
			m.focus = focusNote
			m.noteInput.SetValue(rec.Note)
			m.noteInput.Focus()
			return true, m, textinput.Blink
		}
		return true, m, nil

	case "t":
		listName := m.listName
		return true, m, func() tea.Msg { return NavigateToHistory{ListName: listName} }
	case "e":
		return true, m, m.export()
	case "r":
		return true, m, m.Init()
	}
	return false, m, nil
}

// nextSort advances along sortCycle, keeping Toggle's default direction
// per column.
func nextSort(s leads.SortState) leads.SortState {
	for i, f := range sortCycle {
		if f == s.Field {
			next := sortCycle[(i+1)%len(sortCycle)]
			if next == "" {
				return leads.SortState{}
			}
			return leads.SortState{}.Toggle(next)
		}
	}
	return leads.SortState{}
}

func (m *ExplorerModel) cycleKeyword() {
	if len(m.keywords) == 0 {
		m.kwIdx = -1
		return
	}
	m.kwIdx++
	if m.kwIdx >= len(m.keywords) {
		m.kwIdx = -1
	}
}

func (m ExplorerModel) selectedRecord() (model.LeadRecord, bool) {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.view) {
		return model.LeadRecord{}, false
	}
	return m.view[cursor], true
}

func (m ExplorerModel) toggleFlag(action model.RowAction) tea.Cmd {
	rec, ok := m.selectedRecord()
	if !ok || rec.PlaceID == "" {
		return nil
	}

	var current bool
	switch action {
	case model.ActionHide:
		current = rec.Hide
	case model.ActionCall:
		current = rec.Call
	case model.ActionInterested:
		current = rec.Interested
	}

	r := m.rec
	placeID := rec.PlaceID
	value := !current
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return patchResultMsg{Err: r.SetFlag(ctx, placeID, action, value)}
	}
}

func (m ExplorerModel) saveNote(note string) tea.Cmd {
	rec, ok := m.selectedRecord()
	if !ok || rec.PlaceID == "" {
		return nil
	}
	r := m.rec
	placeID := rec.PlaceID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return patchResultMsg{Err: r.SetNote(ctx, placeID, note)}
	}
}

func (m ExplorerModel) export() tea.Cmd {
	client := m.client
	listName := m.listName
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		rc, err := client.Download(ctx, listName)
		if err != nil {
			return exportResultMsg{Err: err}
		}
		defer rc.Close()

		f, err := os.Create(listName)
		if err != nil {
			return exportResultMsg{Err: err}
		}
		defer f.Close()
		if _, err := io.Copy(f, rc); err != nil {
			return exportResultMsg{Err: err}
		}
		return exportResultMsg{Path: listName}
	}
}

// rebuild derives the visible rows from the reconciler snapshot and the
// current filter and sort state.
func (m *ExplorerModel) rebuild() {
	snap := m.rec.Snapshot()
	m.total = len(snap)
	m.collectKeywords(snap)

	if m.kwIdx >= 0 && m.kwIdx < len(m.keywords) {
		m.filter.Keywords = map[string]bool{m.keywords[m.kwIdx]: true}
	} else {
		m.filter.Keywords = nil
	}

	m.view = leads.ApplyView(snap, m.filter, m.sortKey)
	m.buildTable()

	// Restore the cursor on the same row if it is still visible.
	cursor := 0
	for i, r := range m.view {
		if r.PlaceID != "" && r.PlaceID == m.selectedID {
			cursor = i
			break
		}
	}
	if len(m.view) > 0 {
		m.table.SetCursor(cursor)
		m.selectedID = m.view[cursor].PlaceID
	} else {
		m.selectedID = ""
	}
	m.cacheCardContent()
}

func (m *ExplorerModel) collectKeywords(records []model.LeadRecord) {
	seen := map[string]bool{}
	var kws []string
	for _, r := range records {
		if r.Keyword != "" && !seen[r.Keyword] {
			seen[r.Keyword] = true
			kws = append(kws, r.Keyword)
		}
	}
	sort.Strings(kws)

	// Keep the selected keyword stable across reloads.
	var selected string
	if m.kwIdx >= 0 && m.kwIdx < len(m.keywords) {
		selected = m.keywords[m.kwIdx]
	}
	m.keywords = kws
	m.kwIdx = -1
	for i, k := range kws {
		if k == selected {
			m.kwIdx = i
			break
		}
	}
}

func (m *ExplorerModel) buildTable() {
	nameW := 28
	phoneW := 16
	ratingW := 6
	kwW := 16
	flagsW := 7
	if m.width > 110 {
		extra := m.width - 110
		nameW += extra * 5 / 10
		kwW += extra * 2 / 10
	}

	columns := []table.Column{
		{Title: "Nome", Width: nameW},
		{Title: "Telefono", Width: phoneW},
		{Title: "Rating", Width: ratingW},
		{Title: "Keyword", Width: kwW},
		{Title: "H C I", Width: flagsW},
	}

	rows := make([]table.Row, len(m.view))
	for i, r := range m.view {
		rows[i] = table.Row{
			truncate(r.Nome, nameW),
			truncate(r.Telefono, phoneW),
			r.Rating,
			truncate(r.Keyword, kwW),
			flagMarks(r),
		}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(m.tableHeight()),
	)
	t.SetStyles(m.focusedTableStyles())
	m.table = t
}

func flagMarks(r model.LeadRecord) string {
	mark := func(b bool) string {
		if b {
			return "✓"
		}
		return "·"
	}
	return fmt.Sprintf("%s %s %s", mark(r.Hide), mark(r.Call), mark(r.Interested))
}

func (m ExplorerModel) tableHeight() int {
	h := m.height/2 - 5
	if h < 5 {
		h = 5
	}
	return h
}

func (m ExplorerModel) panelHeight() int {
	h := m.height/2 - 8
	if h < 6 {
		h = 6
	}
	return h
}

func (m ExplorerModel) focusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Secondary)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.Primary).
		Bold(true)
	return s
}

func (m ExplorerModel) unfocusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Muted)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(lipgloss.Color("#333333")).
		Bold(false)
	return s
}

func (m *ExplorerModel) cacheCardContent() {
	rec, ok := m.selectedRecord()
	if !ok {
		m.cardLines = nil
		return
	}
	m.cardLines = buildCardLines(rec)
}

func buildCardLines(r model.LeadRecord) []string {
	var lines []string

	lines = append(lines, r.Nome)
	if r.Rating != "" {
		lines = append(lines, r.Rating+" ★")
	}
	if r.Categorie != "" {
		lines = append(lines, r.Categorie)
	}
	lines = append(lines, "")

	addRow := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%-10s %s", label, value))
		}
	}

	addRow("Address:", r.Indirizzo)
	addRow("Phone:", r.Telefono)
	addRow("Website:", r.SitoWeb)
	addRow("Keyword:", r.Keyword)
	addRow("Extracted:", r.Estrazione)
	addRow("PlaceID:", r.PlaceID)

	var flags []string
	if r.Hide {
		flags = append(flags, "hidden")
	}
	if r.Call {
		flags = append(flags, "contacted")
	}
	if r.Interested {
		flags = append(flags, "interested")
	}
	if len(flags) > 0 {
		addRow("Flags:", strings.Join(flags, ", "))
	}

	if r.Note != "" {
		lines = append(lines, "")
		addRow("Note:", r.Note)
	}

	return lines
}

func (m ExplorerModel) View() string {
	if m.err != nil {
		var b strings.Builder
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error loading list: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("r retry • esc back"))
		return b.String()
	}

	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("List %s: %d leads", m.listName, m.total)))
	if len(m.view) != m.total {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
			Render(fmt.Sprintf(" (showing %d)", len(m.view))))
	}
	b.WriteString("\n")
	b.WriteString(m.renderViewState())
	b.WriteString("\n")

	// Filter
	filterStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.focus == focusFilter {
		filterStyle = lipgloss.NewStyle().Foreground(styles.Primary)
	}
	b.WriteString(filterStyle.Render("Filter: "))
	b.WriteString(m.nameFilter.View())
	b.WriteString("\n")

	// Table
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	if m.focus == focusNote {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).Render("Note: "))
		b.WriteString(m.noteInput.View())
		b.WriteString("\n\n")
	} else {
		b.WriteString(m.renderCard())
		b.WriteString("\n")
	}

	if m.statusMsg != "" {
		style := lipgloss.NewStyle().Foreground(styles.Success)
		if strings.Contains(m.statusMsg, "failed") {
			style = styles.ErrorText
		}
		b.WriteString(style.Render(m.statusMsg))
		b.WriteString("\n")
	}

	var statusText string
	switch m.focus {
	case focusTable:
		statusText = "↑↓ move • x/c/i flags • n note • V/C/I/N/K filters • s sort • 1 details • t history • e export • esc back"
	case focusFilter:
		statusText = "type to filter • esc back"
	case focusNote:
		statusText = "enter save • esc cancel"
	case focusCard:
		statusText = "↑↓ scroll • esc back to table"
	}
	b.WriteString(styles.StatusBar.Render(statusText))

	return b.String()
}

// renderViewState summarizes the active filters and sort key.
func (m ExplorerModel) renderViewState() string {
	muted := lipgloss.NewStyle().Foreground(styles.Muted)
	active := lipgloss.NewStyle().Foreground(styles.Secondary)

	part := func(label, value string, isActive bool) string {
		s := fmt.Sprintf("%s:%s", label, value)
		if isActive {
			return active.Render(s)
		}
		return muted.Render(s)
	}

	hidden := "off"
	if m.filter.ShowHidden {
		hidden = "on"
	}
	kw := "all"
	if m.kwIdx >= 0 && m.kwIdx < len(m.keywords) {
		kw = m.keywords[m.kwIdx]
	}
	sortStr := "none"
	if m.sortKey.Field != "" {
		dir := "↑"
		if m.sortKey.Desc {
			dir = "↓"
		}
		sortStr = m.sortKey.Field + dir
	}

	return strings.Join([]string{
		part("hidden", hidden, m.filter.ShowHidden),
		part("call", m.filter.Contacted.String(), m.filter.Contacted != leads.TriAny),
		part("interested", m.filter.Interested.String(), m.filter.Interested != leads.TriAny),
		part("note", m.filter.HasNote.String(), m.filter.HasNote != leads.TriAny),
		part("keyword", kw, m.kwIdx >= 0),
		part("sort", sortStr, m.sortKey.Field != ""),
	}, muted.Render(" • "))
}

func (m ExplorerModel) renderCard() string {
	panelH := m.panelHeight()
	panelW := m.width - 6
	if panelW < 44 {
		panelW = 44
	}

	borderColor := styles.Muted
	if m.focus == focusCard {
		borderColor = styles.Primary
	}

	content := m.viewCardPanel(panelW-4, panelH)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Width(panelW - 2).
		Height(panelH).
		Render(content)
	label := lipgloss.NewStyle().Bold(true).Foreground(borderColor).Render("[1] Details")
	return label + "\n" + box
}

func (m ExplorerModel) viewCardPanel(w, h int) string {
	if len(m.cardLines) == 0 {
		return lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("Select a lead\nto view details")
	}

	lines := m.cardLines

	scrollY := m.cardScrollY
	if scrollY > len(lines)-h {
		scrollY = len(lines) - h
	}
	if scrollY < 0 {
		scrollY = 0
	}

	end := scrollY + h
	if end > len(lines) {
		end = len(lines)
	}
	visible := lines[scrollY:end]

	var sb strings.Builder
	label := lipgloss.NewStyle().Foreground(styles.Muted)
	valStyle := lipgloss.NewStyle().Foreground(styles.Text)

	for i, line := range visible {
		switch {
		case scrollY+i == 0:
			sb.WriteString(lipgloss.NewStyle().Bold(true).Foreground(styles.Text).
				Render(truncate(line, w)))
		case strings.HasSuffix(line, "★"):
			sb.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).
				Render(truncate(line, w)))
		case strings.HasPrefix(line, "Website:"):
			parts := strings.SplitN(line, " ", 2)
			val := ""
			if len(parts) > 1 {
				val = strings.TrimSpace(parts[1])
			}
			sb.WriteString(label.Render(fmt.Sprintf("%-10s ", parts[0])))
			sb.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).
				Render(truncate(val, w-11)))
		default:
			sb.WriteString(valStyle.Render(truncate(line, w)))
		}
		if i < len(visible)-1 {
			sb.WriteString("\n")
		}
	}

	if scrollY > 0 {
		sb.WriteString("\n")
		sb.WriteString(label.Render("  ▲ more above"))
	}
	if end < len(lines) {
		sb.WriteString("\n")
		sb.WriteString(label.Render("  ▼ more below"))
	}

	return sb.String()
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// NavigateBackToExplorer returns to the explorer without reloading it.
type NavigateBackToExplorer struct{}

// NavigateToHistory opens the search history of a list.
type NavigateToHistory struct {
	ListName string
}
