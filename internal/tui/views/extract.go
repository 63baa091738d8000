package views

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/leadtap/internal/api"
	"github.com/rendis/leadtap/internal/engine/geo"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/tui/components"
	"github.com/rendis/leadtap/internal/tui/styles"
)

// Field indices
const (
	fieldCity = iota
	fieldRadius
	fieldStep
	fieldKeywords
	fieldList
	fieldCount
)

// collapseFactor mirrors the backend's radius collapse: a radius this
// close to the step degenerates to a single center sample.
const collapseFactor = 1.5

type ExtractModel struct {
	client      *api.Client
	inputs      []textinput.Model
	focused     int
	err         string
	lists       []string
	suggestions []string
	suggIdx     int
	preview     components.GridView
}

type listNamesLoadedMsg struct {
	names []string
}

func NewExtractModel(client *api.Client) ExtractModel {
	inputs := make([]textinput.Model, fieldCount)

	inputs[fieldCity] = newInput(`Torino, or "45.07, 7.68"`, "", 40)
	inputs[fieldRadius] = newInput("2000", "", 10)
	inputs[fieldStep] = newInput("500", "", 10)
	inputs[fieldKeywords] = newInput("bar, pizzeria", "", 50)
	inputs[fieldList] = newInput("type to search lists...", "", 30)

	m := ExtractModel{
		client:  client,
		inputs:  inputs,
		focused: fieldCity,
		suggIdx: -1,
		preview: components.NewGridView(36, 10),
	}
	m.inputs[fieldCity].Focus()
	return m
}

func newInput(placeholder, value string, width int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 100
	if width > 0 {
		ti.Width = width
	}
	if value != "" {
		ti.SetValue(value)
	}
	return ti
}

func (m ExtractModel) Init() tea.Cmd {
	client := m.client
	return tea.Batch(textinput.Blink, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		names, err := client.Lists(ctx)
		if err != nil {
			return listNamesLoadedMsg{}
		}
		return listNamesLoadedMsg{names: names}
	})
}

func (m ExtractModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case listNamesLoadedMsg:
		m.lists = msg.names
		return m, nil
	case tea.KeyMsg:
		key := msg.String()

		switch key {
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }

		case "up":
			if m.focused == fieldList && len(m.suggestions) > 0 && m.suggIdx > 0 {
				m.suggIdx--
				return m, nil
			}
			m.err = ""
			return m, m.focusPrev()

		case "down":
			if m.focused == fieldList && len(m.suggestions) > 0 && m.suggIdx < len(m.suggestions)-1 {
				m.suggIdx++
				return m, nil
			}
			m.err = ""
			return m, m.focusNext()

		case "tab":
			m.err = ""
			if m.focused == fieldList && len(m.suggestions) > 0 {
				m.selectSuggestion()
			}
			return m, m.focusNext()

		case "shift+tab":
			m.err = ""
			return m, m.focusPrev()

		case "enter":
			if m.focused == fieldList && len(m.suggestions) > 0 {
				m.selectSuggestion()
				return m, nil
			}
			if cmd := m.submit(); cmd != nil {
				return m, cmd
			}
		}
	}

	// Update focused textinput
	var cmd tea.Cmd
	if m.focused >= 0 && m.focused < fieldCount {
		m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	}

	if m.focused == fieldList {
		m.updateSuggestions()
	}
	m.updatePreview()

	return m, cmd
}

func (m *ExtractModel) selectSuggestion() {
	if m.suggIdx >= 0 && m.suggIdx < len(m.suggestions) {
		m.inputs[fieldList].SetValue(m.suggestions[m.suggIdx])
		m.suggestions = nil
		m.suggIdx = -1
	}
}

func (m *ExtractModel) updateSuggestions() {
	raw := strings.ToLower(strings.TrimSpace(m.inputs[fieldList].Value()))
	if raw == "" {
		m.suggestions = nil
		m.suggIdx = -1
		return
	}

	var matches []string
	for _, name := range m.lists {
		if strings.Contains(strings.ToLower(name), raw) {
			matches = append(matches, name)
			if len(matches) >= 5 {
				break
			}
		}
	}
	m.suggestions = matches
	if len(matches) > 0 {
		if m.suggIdx < 0 || m.suggIdx >= len(matches) {
			m.suggIdx = 0
		}
	} else {
		m.suggIdx = -1
	}
}

// plannedGrid computes the sample points for the current form values.
// The point count only depends on radius and step, so the preview works
// even before the place name is geocoded.
func (m ExtractModel) plannedGrid() ([]geo.Point, float64, float64, int, bool) {
	radius, err1 := strconv.Atoi(strings.TrimSpace(m.inputs[fieldRadius].Value()))
	step, err2 := strconv.Atoi(strings.TrimSpace(m.inputs[fieldStep].Value()))
	if err1 != nil || err2 != nil || radius <= 0 || step <= 0 {
		return nil, 0, 0, 0, false
	}

	lat, lng, ok := geo.ParseCoordPair(m.inputs[fieldCity].Value())
	if !ok {
		lat, lng = 0, 0
	}

	if float64(radius) <= collapseFactor*float64(step) {
		return []geo.Point{{Lat: lat, Lng: lng}}, lat, lng, radius, true
	}
	return geo.GenerateGridPoints(lat, lng, radius, step), lat, lng, radius, true
}

func (m *ExtractModel) updatePreview() {
	points, lat, lng, radius, ok := m.plannedGrid()
	if !ok {
		m.preview.SetGrid(nil, 0, 0, 0)
		return
	}
	m.preview.SetGrid(points, lat, lng, radius)
}

func (m ExtractModel) keywords() []string {
	var out []string
	for _, k := range strings.Split(m.inputs[fieldKeywords].Value(), ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func (m *ExtractModel) focusNext() tea.Cmd {
	m.inputs[m.focused].Blur()
	m.focused++
	if m.focused >= fieldCount {
		m.focused = fieldCity
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *ExtractModel) focusPrev() tea.Cmd {
	m.inputs[m.focused].Blur()
	m.focused--
	if m.focused < 0 {
		m.focused = fieldList
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *ExtractModel) submit() tea.Cmd {
	params := model.ExtractParams{
		City:     strings.TrimSpace(m.inputs[fieldCity].Value()),
		Keywords: m.keywords(),
		ListName: strings.TrimSpace(m.inputs[fieldList].Value()),
	}

	radiusStr := strings.TrimSpace(m.inputs[fieldRadius].Value())
	stepStr := strings.TrimSpace(m.inputs[fieldStep].Value())
	var err error
	if params.Radius, err = strconv.Atoi(radiusStr); err != nil && radiusStr != "" {
		m.err = "Radius must be a number of meters"
		return nil
	}
	if params.GridStep, err = strconv.Atoi(stepStr); err != nil && stepStr != "" {
		m.err = "Step must be a number of meters"
		return nil
	}

	if msg := params.Validate(); msg != "" {
		m.err = msg
		return nil
	}

	return func() tea.Msg {
		return StartExtractionMsg{Params: params}
	}
}

func (m ExtractModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("New Extraction") + "\n\n")

	b.WriteString(m.renderField("Place:", fieldCity))
	b.WriteString(m.renderField("Radius (m):", fieldRadius))
	b.WriteString(m.renderField("Step (m):", fieldStep))
	b.WriteString(m.renderField("Keywords:", fieldKeywords))
	b.WriteString(m.renderField("List:", fieldList))
	if m.focused == fieldList && len(m.suggestions) > 0 {
		b.WriteString(m.renderSuggestions())
	}

	if points, _, _, _, ok := m.plannedGrid(); ok {
		kw := len(m.keywords())
		if kw == 0 {
			kw = 1
		}
		est := geo.EstimateRequests(len(points), kw)
		info := fmt.Sprintf("%d grid points · up to ~%d upstream calls", len(points), est)
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).Render("  " + info))
		b.WriteString("\n")
		b.WriteString(m.preview.View())
		b.WriteString("\n")
	}

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render("  " + m.err))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.StatusBar.Render("enter start • tab next • esc back"))

	return styles.Border.Render(b.String())
}

func (m ExtractModel) renderSuggestions() string {
	var sb strings.Builder
	active := lipgloss.NewStyle().Foreground(styles.Primary).Bold(true)
	inactive := lipgloss.NewStyle().Foreground(styles.Muted)

	for i, name := range m.suggestions {
		if i == m.suggIdx {
			sb.WriteString(active.Render("  > " + name))
		} else {
			sb.WriteString(inactive.Render("    " + name))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m ExtractModel) renderField(label string, idx int) string {
	l := styles.Label.Render(label)
	v := m.inputs[idx].View()
	return fmt.Sprintf("%s %s\n", l, v)
}

// StartExtractionMsg asks the app to start a run with validated params.
type StartExtractionMsg struct {
	Params model.ExtractParams
}
