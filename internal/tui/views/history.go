package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/leadtap/internal/api"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/tui/styles"
)

// HistoryModel shows the past extraction runs recorded in a list.
type HistoryModel struct {
	client   *api.Client
	listName string
	entries  []model.SearchHistoryEntry
	cursor   int
	loading  bool
	err      error
}

type historyLoadedMsg struct {
	Entries []model.SearchHistoryEntry
	Err     error
}

func NewHistoryModel(client *api.Client, listName string) HistoryModel {
	return HistoryModel{
		client:   client,
		listName: listName,
		loading:  true,
	}
}

func (m HistoryModel) Init() tea.Cmd {
	client := m.client
	listName := m.listName
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		entries, err := client.GetSearches(ctx, listName)
		return historyLoadedMsg{Entries: entries, Err: err}
	}
}

func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		m.loading = false
		m.err = msg.Err
		m.entries = msg.Entries
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case "esc", "q":
			return m, func() tea.Msg { return NavigateBackToExplorer{} }
		}
	}
	return m, nil
}

func (m HistoryModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Search history: %s", m.listName)))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.loading:
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("Loading..."))
	case len(m.entries) == 0:
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("No extractions recorded for this list"))
	default:
		coordStyle := lipgloss.NewStyle().Foreground(styles.Secondary)
		kwStyle := lipgloss.NewStyle().Foreground(styles.Text)
		muted := lipgloss.NewStyle().Foreground(styles.Muted)

		for i, e := range m.entries {
			cursor := "  "
			if i == m.cursor {
				cursor = "> "
			}
			coords := coordStyle.Render(fmt.Sprintf("%.4f, %.4f", e.Lat, e.Lng))
			radius := muted.Render(fmt.Sprintf("  r=%dm", e.Raggio))
			when := muted.Render("  " + e.Data)
			b.WriteString(fmt.Sprintf("%s%s%s%s\n", cursor, coords, radius, when))
			b.WriteString(fmt.Sprintf("    %s\n", kwStyle.Render(e.Keywords)))
		}
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("↑↓ navigate • esc back"))

	return styles.Border.Render(b.String())
}
