// Package pager is a scrollable viewer for highlighted text.
package pager

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/prism/internal/log"
	"github.com/zjrosen/prism/internal/pubsub"
)

var (
	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("236"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Options configures a pager.
type Options struct {
	Title         string
	ShowStatusBar bool

	// Highlight produces the styled content. It runs once on startup and
	// again after every reload event, so grammar and theme changes show up
	// without reopening the pager.
	Highlight func() (string, error)

	// Reloads, when set, delivers grammar/theme reload notifications.
	Reloads *pubsub.Broker[string]
}

type highlightedMsg struct {
	content string
	err     error
}

// Model is the pager's Bubble Tea model.
type Model struct {
	opts     Options
	viewport viewport.Model
	ready    bool
	content  string
	err      error

	cancel  context.CancelFunc
	reloads *pubsub.ContinuousListener[string]
}

// New creates a pager model.
func New(opts Options) *Model {
	m := &Model{opts: opts}
	if opts.Reloads != nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.reloads = pubsub.NewContinuousListener(ctx, opts.Reloads)
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.highlightCmd()}
	if m.reloads != nil {
		cmds = append(cmds, m.reloads.Listen())
	}
	return tea.Batch(cmds...)
}

func (m *Model) highlightCmd() tea.Cmd {
	return func() tea.Msg {
		content, err := m.opts.Highlight()
		return highlightedMsg{content: content, err: err}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		height := msg.Height
		if m.opts.ShowStatusBar {
			height--
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}

	case highlightedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.content = msg.content
		}
		if m.ready {
			m.viewport.SetContent(m.content)
		}
		if msg.err != nil {
			log.ErrorErr(log.CatUI, "highlight failed", msg.err)
		}

	case pubsub.Event[string]:
		log.Debug(log.CatUI, "reload event", "payload", msg.Payload)
		return m, tea.Batch(m.highlightCmd(), m.reloads.Listen())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}
	if !m.opts.ShowStatusBar {
		return m.viewport.View()
	}
	return m.viewport.View() + "\n" + m.statusBar()
}

func (m *Model) statusBar() string {
	left := " " + m.opts.Title
	if m.err != nil {
		left += " " + errStyle.Render("[highlight error]")
	}
	right := fmt.Sprintf("%3.0f%% ", m.viewport.ScrollPercent()*100)

	gap := m.viewport.Width - runewidth.StringWidth(left) - runewidth.StringWidth(right)
	if gap < 1 {
		gap = 1
	}
	return statusBarStyle.Render(left + strings.Repeat(" ", gap) + right)
}

// Close releases the reload subscription.
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}
