package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/leadtap/internal/api"
	"github.com/rendis/leadtap/internal/tui/styles"
)

// ListsModel browses the lists held by the backend: open, create,
// delete.
type ListsModel struct {
	client        *api.Client
	names         []string
	cursor        int
	err           error
	loading       bool
	creating      bool
	confirmDelete bool
	input         textinput.Model
	statusMsg     string
}

type listsLoadedMsg struct {
	Names []string
	Err   error
}

type listCreatedMsg struct {
	Name string
	Err  error
}

type listDeletedMsg struct {
	Err error
}

func NewListsModel(client *api.Client) ListsModel {
	input := textinput.New()
	input.Placeholder = "nuova_lista.xlsx"
	input.CharLimit = 80
	input.Width = 40

	return ListsModel{
		client:  client,
		loading: true,
		input:   input,
	}
}

func (m ListsModel) Init() tea.Cmd {
	return m.load()
}

func (m ListsModel) load() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		names, err := client.Lists(ctx)
		return listsLoadedMsg{Names: names, Err: err}
	}
}

func (m ListsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case listsLoadedMsg:
		m.loading = false
		m.err = msg.Err
		m.names = msg.Names
		if m.cursor >= len(m.names) {
			m.cursor = len(m.names) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case listCreatedMsg:
		if msg.Err != nil {
			m.statusMsg = fmt.Sprintf("Create failed: %v", msg.Err)
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("Created %s", msg.Name)
		m.creating = false
		m.input.SetValue("")
		m.input.Blur()
		return m, m.load()

	case listDeletedMsg:
		if msg.Err != nil {
			m.statusMsg = fmt.Sprintf("Delete failed: %v", msg.Err)
			return m, nil
		}
		m.statusMsg = "Deleted"
		return m, m.load()

	case tea.KeyMsg:
		key := msg.String()

		if m.creating {
			switch key {
			case "esc":
				m.creating = false
				m.input.Blur()
				return m, nil
			case "enter":
				name := strings.TrimSpace(m.input.Value())
				if name == "" {
					return m, nil
				}
				client := m.client
				return m, func() tea.Msg {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					created, err := client.CreateList(ctx, name)
					return listCreatedMsg{Name: created, Err: err}
				}
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch key {
		case "up", "k":
			m.confirmDelete = false
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			m.confirmDelete = false
			if m.cursor < len(m.names)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.names) {
				name := m.names[m.cursor]
				return m, func() tea.Msg {
					return NavigateToExplorer{ListName: name}
				}
			}
		case "n":
			m.creating = true
			m.confirmDelete = false
			m.statusMsg = ""
			m.input.Focus()
			return m, textinput.Blink
		case "d":
			if m.cursor >= len(m.names) {
				return m, nil
			}
			if !m.confirmDelete {
				m.confirmDelete = true
				return m, nil
			}
			m.confirmDelete = false
			client := m.client
			name := m.names[m.cursor]
			return m, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return listDeletedMsg{Err: client.DeleteList(ctx, name)}
			}
		case "r":
			return m, m.load()
		case "esc":
			if m.confirmDelete {
				m.confirmDelete = false
				return m, nil
			}
			return m, func() tea.Msg { return NavigateToHome{} }
		}
	}
	return m, nil
}

func (m ListsModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Lists"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("r retry • esc back"))
		return styles.Border.Render(b.String())
	}

	if m.loading {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("Loading..."))
		return styles.Border.Render(b.String())
	}

	if len(m.names) == 0 && !m.creating {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("No lists yet — press n to create one"))
		b.WriteString("\n")
	}

	// Show max 15 items
	start := 0
	if m.cursor > 12 {
		start = m.cursor - 12
	}
	end := start + 15
	if end > len(m.names) {
		end = len(m.names)
	}

	for i := start; i < end; i++ {
		cursor := "  "
		style := styles.InactiveItem
		if i == m.cursor {
			cursor = "> "
			style = styles.ActiveItem
		}
		line := fmt.Sprintf("%s%s", cursor, style.Render(m.names[i]))
		if i == m.cursor && m.confirmDelete {
			line += styles.ErrorText.Render("  press d again to delete")
		}
		b.WriteString(line + "\n")
	}

	if m.creating {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).Render("New list: "))
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if m.statusMsg != "" {
		style := lipgloss.NewStyle().Foreground(styles.Success)
		if strings.Contains(m.statusMsg, "failed") {
			style = styles.ErrorText
		}
		b.WriteString("\n")
		b.WriteString(style.Render(m.statusMsg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.creating {
		b.WriteString(styles.StatusBar.Render("enter create • esc cancel"))
	} else {
		b.WriteString(styles.StatusBar.Render("enter open • n new • d delete • r reload • esc back"))
	}

	return styles.Border.Render(b.String())
}
