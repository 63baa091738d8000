package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/leadtap/internal/api"
	"github.com/rendis/leadtap/internal/config"
	"github.com/rendis/leadtap/internal/tui/views"
)

type viewID int

const (
	viewHome viewID = iota
	viewExtract
	viewProgress
	viewExplorer
	viewLists
	viewRecent
	viewHistory
)

// App is the root bubbletea model.
type App struct {
	client      *api.Client
	currentView viewID
	width       int
	height      int
	home        views.HomeModel
	extract     views.ExtractModel
	progress    views.ProgressModel
	explorer    views.ExplorerModel
	lists       views.ListsModel
	recent      views.RecentModel
	history     views.HistoryModel
}

func NewApp(cfg *config.Config) App {
	client := api.New(cfg.Backend.BaseURL)
	return App{
		client:      client,
		currentView: viewHome,
		home:        views.NewHomeModel(cfg.Backend.BaseURL),
		extract:     views.NewExtractModel(client),
	}
}

func (a App) Init() tea.Cmd {
	return a.home.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && a.currentView != viewProgress {
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	case views.NavigateToExtract:
		a.currentView = viewExtract
		a.extract = views.NewExtractModel(a.client)
		return a, tea.Batch(a.extract.Init(), a.sizeCmd())
	case views.NavigateToHome:
		a.currentView = viewHome
		return a, nil
	case views.NavigateToLists:
		a.currentView = viewLists
		a.lists = views.NewListsModel(a.client)
		return a, a.lists.Init()
	case views.StartExtractionMsg:
		a.currentView = viewProgress
		a.progress = views.NewProgressModel(a.client, msg.Params)
		return a, tea.Batch(a.progress.Init(), a.sizeCmd())
	case views.NavigateToExplorer:
		a.currentView = viewExplorer
		a.explorer = views.NewExplorerModel(a.client, msg.ListName, msg.Rec)
		SaveRecent(msg.ListName)
		return a, tea.Batch(a.explorer.Init(), a.sizeCmd())
	case views.NavigateBackToExplorer:
		// Return to the explorer as it was, filters and cursor intact.
		a.currentView = viewExplorer
		return a, nil
	case views.NavigateToHistory:
		a.currentView = viewHistory
		a.history = views.NewHistoryModel(a.client, msg.ListName)
		return a, a.history.Init()
	case views.NavigateToRecent:
		a.currentView = viewRecent
		entries := LoadRecent()
		var recentEntries []views.RecentEntry
		for _, e := range entries {
			recentEntries = append(recentEntries, views.RecentEntry{
				List:     e.List,
				OpenedAt: e.OpenedAt,
			})
		}
		a.recent = views.NewRecentModel(recentEntries)
		return a, a.recent.Init()
	}

	var cmd tea.Cmd
	switch a.currentView {
	case viewHome:
		var m tea.Model
		m, cmd = a.home.Update(msg)
		a.home = m.(views.HomeModel)
	case viewExtract:
		var m tea.Model
		m, cmd = a.extract.Update(msg)
		a.extract = m.(views.ExtractModel)
	case viewProgress:
		var m tea.Model
		m, cmd = a.progress.Update(msg)
		a.progress = m.(views.ProgressModel)
	case viewExplorer:
		var m tea.Model
		m, cmd = a.explorer.Update(msg)
		a.explorer = m.(views.ExplorerModel)
	case viewLists:
		var m tea.Model
		m, cmd = a.lists.Update(msg)
		a.lists = m.(views.ListsModel)
	case viewRecent:
		var m tea.Model
		m, cmd = a.recent.Update(msg)
		a.recent = m.(views.RecentModel)
	case viewHistory:
		var m tea.Model
		m, cmd = a.history.Update(msg)
		a.history = m.(views.HistoryModel)
	}

	return a, cmd
}

func (a App) View() string {
	var content string
	switch a.currentView {
	case viewHome:
		content = a.home.View()
	case viewExtract:
		content = a.extract.View()
	case viewProgress:
		content = a.progress.View()
	case viewExplorer:
		content = a.explorer.View()
	case viewLists:
		content = a.lists.View()
	case viewRecent:
		content = a.recent.View()
	case viewHistory:
		content = a.history.View()
	}

	return lipgloss.Place(
		a.width, a.height,
		lipgloss.Center, lipgloss.Top,
		content,
	)
}

// sizeCmd sends a WindowSizeMsg so newly created views get the current terminal size.
func (a App) sizeCmd() tea.Cmd {
	w, h := a.width, a.height
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: w, Height: h}
	}
}

// Run starts the TUI.
func Run(cfg *config.Config) error {
	p := tea.NewProgram(NewApp(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
