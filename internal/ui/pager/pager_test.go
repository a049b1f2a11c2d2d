package pager

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/prism/internal/pubsub"
)

func updateModel(t *testing.T, m *Model, msg tea.Msg) *Model {
	t.Helper()
	result, _ := m.Update(msg)
	return result.(*Model)
}

func TestPager_ShowsContent(t *testing.T) {
	m := New(Options{
		Title:     "file.go",
		Highlight: func() (string, error) { return "alpha\nbeta", nil },
	})

	m = updateModel(t, m, tea.WindowSizeMsg{Width: 40, Height: 10})
	m = updateModel(t, m, highlightedMsg{content: "alpha\nbeta"})

	view := m.View()
	assert.Contains(t, view, "alpha")
	assert.Contains(t, view, "beta")
}

func TestPager_StatusBar(t *testing.T) {
	m := New(Options{
		Title:         "file.go",
		ShowStatusBar: true,
		Highlight:     func() (string, error) { return "x", nil },
	})

	m = updateModel(t, m, tea.WindowSizeMsg{Width: 40, Height: 10})
	m = updateModel(t, m, highlightedMsg{content: "x"})

	view := m.View()
	assert.Contains(t, view, "file.go")
	assert.Contains(t, view, "%")
}

func TestPager_HighlightErrorKeepsLastContent(t *testing.T) {
	m := New(Options{
		Title:         "file.go",
		ShowStatusBar: true,
		Highlight:     func() (string, error) { return "", errors.New("boom") },
	})

	m = updateModel(t, m, tea.WindowSizeMsg{Width: 60, Height: 10})
	m = updateModel(t, m, highlightedMsg{content: "good"})
	m = updateModel(t, m, highlightedMsg{err: errors.New("boom")})

	view := m.View()
	assert.Contains(t, view, "good")
	assert.Contains(t, view, "highlight error")
}

func TestPager_ReloadRecomputesHighlight(t *testing.T) {
	broker := pubsub.NewBroker[string]()
	defer broker.Close()

	content := "before"
	m := New(Options{
		Title:     "file.go",
		Highlight: func() (string, error) { return content, nil },
		Reloads:   broker,
	})
	defer m.Close()

	m = updateModel(t, m, tea.WindowSizeMsg{Width: 40, Height: 10})
	m = updateModel(t, m, highlightedMsg{content: content})
	require.Contains(t, m.View(), "before")

	// A reload event triggers a fresh highlight pass.
	content = "after"
	result, cmd := m.Update(pubsub.Event[string]{Type: pubsub.ReloadedEvent, Payload: "grammars"})
	m = result.(*Model)
	require.NotNil(t, cmd)

	m = updateModel(t, m, highlightedMsg{content: content})
	assert.Contains(t, m.View(), "after")
}

func TestPager_Smoke(t *testing.T) {
	m := New(Options{
		Title:         "smoke.txt",
		ShowStatusBar: true,
		Highlight: func() (string, error) {
			return strings.Repeat("line\n", 50), nil
		},
	})

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("line"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
}
