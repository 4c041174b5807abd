// Package tui is the live terminal view of "tabgenius serve --tui". It
// shows the extension connection state and a feed of placement outcomes.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabgenius/internal/engine"
	"github.com/lotas/tabgenius/internal/registry"
)

// --- Messages ---

type outcomeMsg engine.Outcome

type feedClosedMsg struct{}

type tickMsg time.Time

type serverStoppedMsg struct{ err error }

// --- Model ---

type Model struct {
	outcomes  <-chan engine.Outcome
	connected func() bool
	snapshot  func() *registry.Registry
	serve     func() error
	port      int

	feed      Feed
	online    bool
	known     int
	stopped   bool
	serverErr error
	width     int
	height    int
}

// NewModel returns a view over outcomes. connected reports the extension
// state and snapshot the last known group registry; both are polled every
// second. serve, if non-nil, runs the server and is started by Init.
func NewModel(outcomes <-chan engine.Outcome, connected func() bool, snapshot func() *registry.Registry, serve func() error, port int) Model {
	return Model{
		outcomes:  outcomes,
		connected: connected,
		snapshot:  snapshot,
		serve:     serve,
		port:      port,
		feed:      NewFeed(DefaultFeedSize),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{listenOutcomes(m.outcomes), tick()}
	if m.serve != nil {
		cmds = append(cmds, startServer(m.serve))
	}
	return tea.Batch(cmds...)
}

func listenOutcomes(ch <-chan engine.Outcome) tea.Cmd {
	return func() tea.Msg {
		o, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return outcomeMsg(o)
	}
}

func startServer(serve func() error) tea.Cmd {
	return func() tea.Msg {
		return serverStoppedMsg{err: serve()}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			m.feed.Clear()
		case "s":
			m.feed.ShowSkipped = !m.feed.ShowSkipped
		}
		return m, nil

	case outcomeMsg:
		m.feed.Add(engine.Outcome(msg), time.Now())
		return m, listenOutcomes(m.outcomes)

	case feedClosedMsg:
		return m, nil

	case tickMsg:
		if m.connected != nil {
			m.online = m.connected()
		}
		if m.snapshot != nil {
			m.known = m.snapshot().Len()
		}
		return m, tick()

	case serverStoppedMsg:
		m.stopped = true
		m.serverErr = msg.err
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	topBarStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)
	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)

	var status string
	switch {
	case m.stopped:
		status = "Server stopped"
	case m.online:
		status = "Live ● connected"
	default:
		status = fmt.Sprintf("Live ○ waiting for extension on :%d", m.port)
	}
	topBar := topBarStyle.Render(fmt.Sprintf("%s  %s · %d groups known", status, m.feed.Summary(), m.known))

	body := m.feed.View(m.bodyHeight())
	if m.serverErr != nil {
		body = errStyle.Render("Error: "+m.serverErr.Error()) + "\n" + body
	}

	skipped := "s show skipped"
	if m.feed.ShowSkipped {
		skipped = "s hide skipped"
	}
	bottomBar := bottomBarStyle.Render(skipped + " · c clear · q quit")

	return lipgloss.JoinVertical(lipgloss.Left, topBar, body, bottomBar)
}

func (m Model) bodyHeight() int {
	if m.height <= 0 {
		return DefaultFeedSize
	}
	if h := m.height - 3; h > 0 {
		return h
	}
	return 1
}
