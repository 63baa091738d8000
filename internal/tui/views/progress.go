package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/leadtap/internal/api"
	"github.com/rendis/leadtap/internal/engine/leads"
	"github.com/rendis/leadtap/internal/engine/session"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/tui/styles"
)

// sharedState holds the running session shared between the stream
// goroutine and the TUI. Lives behind a pointer so it survives
// bubbletea's value copies.
type sharedState struct {
	mu   sync.Mutex
	sess *session.Session
}

func (s *sharedState) get() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *sharedState) set(sess *session.Session) {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
}

// ProgressModel shows a live extraction: progress bar, streamed log
// tail, and the terminal outcome.
type ProgressModel struct {
	client      *api.Client
	params      model.ExtractParams
	progress    progress.Model
	startTime   time.Time
	done        bool
	confirmQuit bool
	err         error
	width       int
	height      int
	shared      *sharedState
}

// Messages
type progressTickMsg time.Time

type extractDoneMsg struct {
	Err error
}

func NewProgressModel(client *api.Client, params model.ExtractParams) ProgressModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	return ProgressModel{
		client:    client,
		params:    params,
		progress:  p,
		startTime: time.Now(),
		shared:    &sharedState{},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(
		m.startExtraction(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

func (m ProgressModel) startExtraction() tea.Cmd {
	shared := m.shared
	client := m.client
	params := m.params

	return func() tea.Msg {
		// Reconciler revert notices land on the same log the stream
		// feeds; the session is created right after, so the closure
		// resolves it lazily.
		var sess *session.Session
		rec := leads.NewReconciler(params.ListName, client, func(format string, args ...any) {
			if sess != nil {
				sess.Aggregator().Logf(format, args...)
			}
		})
		sess = session.New(rec, nil)

		// Publish before Run so ticks can read progress immediately.
		shared.set(sess)

		err := sess.Run(context.Background(), client, params)
		return extractDoneMsg{Err: err}
	}
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if sess := m.shared.get(); sess != nil {
				sess.Cancel()
			}
			return m, tea.Quit
		case "esc":
			if m.done {
				return m, m.navigateToExplorer()
			}
			if m.confirmQuit {
				// Second esc: cancel and go home
				if sess := m.shared.get(); sess != nil {
					sess.Cancel()
				}
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			// First esc: show confirmation
			m.confirmQuit = true
			return m, nil
		case "enter":
			if m.done {
				return m, m.navigateToExplorer()
			}
			if m.confirmQuit {
				m.confirmQuit = false
				return m, nil
			}
		}
		// Any other key cancels the confirmation
		if m.confirmQuit {
			m.confirmQuit = false
		}
	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case extractDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, nil
	}

	var cmd tea.Cmd
	var pModel tea.Model
	pModel, cmd = m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

func (m ProgressModel) navigateToExplorer() tea.Cmd {
	listName := m.params.ListName
	var rec *leads.Reconciler
	if sess := m.shared.get(); sess != nil {
		rec = sess.Reconciler()
	}
	return func() tea.Msg {
		return NavigateToExplorer{ListName: listName, Rec: rec}
	}
}

func (m ProgressModel) View() string {
	var b strings.Builder

	keywords := strings.Join(m.params.Keywords, ", ")
	b.WriteString(styles.Title.Render(fmt.Sprintf("Extracting: %q in %s", keywords, m.params.City)))
	b.WriteString("\n\n")

	// Stats
	statsBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(36).
		Render(m.renderStats())
	b.WriteString(statsBox)
	b.WriteString("\n\n")

	// Progress bar
	var prog session.Progress
	if sess := m.shared.get(); sess != nil {
		prog = sess.Aggregator().Progress()
	}
	b.WriteString(m.progress.ViewAs(float64(prog.Value) / 100))
	if prog.Label != "" {
		b.WriteString("  ")
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render(prog.Label))
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderLogTail())
	b.WriteString("\n")

	// Status
	if m.done {
		if m.err != nil && !errors.Is(m.err, context.Canceled) {
			b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		} else if m.err == nil {
			total := 0
			if sess := m.shared.get(); sess != nil && sess.Reconciler() != nil {
				total = sess.Reconciler().Len()
			}
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Bold(true).
				Render(fmt.Sprintf("Complete! %d leads in %s", total, m.params.ListName)))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Bold(true).
				Render("Cancelled"))
		}
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("enter open list • esc back"))
	} else if m.confirmQuit {
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop the extraction and go back"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	} else {
		b.WriteString(styles.StatusBar.Render("esc cancel • ctrl+c quit"))
	}

	return b.String()
}

func (m ProgressModel) renderStats() string {
	var sb strings.Builder
	elapsed := time.Since(m.startTime).Truncate(time.Second)

	state := session.StateIdle
	leadsCount := 0
	var prog session.Progress
	if sess := m.shared.get(); sess != nil {
		state = sess.State()
		prog = sess.Aggregator().Progress()
		if sess.Reconciler() != nil {
			leadsCount = sess.Reconciler().Len()
		}
	}

	statLabel := lipgloss.NewStyle().Foreground(styles.Muted).Width(10)
	statVal := lipgloss.NewStyle().Foreground(styles.Text).Bold(true)

	row := func(label string, value string) {
		sb.WriteString(statLabel.Render(label))
		sb.WriteString(statVal.Render(value))
		sb.WriteString("\n")
	}

	row("List:", m.params.ListName)
	row("State:", state.String())
	if prog.Subtype != "" {
		row("Phase:", prog.Subtype)
	}
	if leadsCount > 0 {
		row("Leads:", fmt.Sprintf("%d", leadsCount))
	}
	row("Elapsed:", elapsed.String())

	return sb.String()
}

// renderLogTail shows the newest streamed log lines.
func (m ProgressModel) renderLogTail() string {
	sess := m.shared.get()
	if sess == nil {
		return ""
	}
	lines := sess.Aggregator().Log()
	const tail = 8
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}

	normal := lipgloss.NewStyle().Foreground(styles.Muted)
	errored := lipgloss.NewStyle().Foreground(styles.Error)

	var sb strings.Builder
	for _, line := range lines {
		stamp := line.At.Format("15:04:05")
		if line.IsError {
			sb.WriteString(errored.Render(fmt.Sprintf("%s  %s", stamp, line.Message)))
		} else {
			sb.WriteString(normal.Render(fmt.Sprintf("%s  %s", stamp, line.Message)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// NavigateToExplorer opens a list in the explorer. Rec carries the
// just-finished session's collection when coming from an extraction;
// nil makes the explorer load the list from the backend.
type NavigateToExplorer struct {
	ListName string
	Rec      *leads.Reconciler
}
