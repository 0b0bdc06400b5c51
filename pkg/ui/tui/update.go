package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// FetchStartMsg is sent when a worker picks up a key
type FetchStartMsg struct {
	Key string
}

// FetchCompleteMsg is sent when a key was fetched
type FetchCompleteMsg struct {
	Key string
}

// FetchErrorMsg is sent when fetching a key failed
type FetchErrorMsg struct {
	Key   string
	Error error
}

// FetchSkippedMsg is sent for keys whose result is already saved
type FetchSkippedMsg struct {
	Key string
}

// BatchDoneMsg is sent once every key is accounted for; the board quits on it
type BatchDoneMsg struct{}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.finished {
			return m, nil
		}
		return m, tickCmd()

	case FetchStartMsg:
		m.StartFetch(msg.Key)
		return m, nil

	case FetchCompleteMsg:
		m.CompleteFetch(msg.Key)
		m.AddLogMessage(LevelSuccess, "Fetched "+msg.Key)
		return m, nil

	case FetchErrorMsg:
		m.FailFetch(msg.Key, msg.Error)
		m.AddLogMessage(LevelError, fmt.Sprintf("%s: %v", msg.Key, msg.Error))
		return m, nil

	case FetchSkippedMsg:
		m.SkipFetch(msg.Key)
		m.AddLogMessage(LevelInfo, "Already saved "+msg.Key)
		return m, nil

	case BatchDoneMsg:
		m.finished = true
		return m, tea.Quit

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		m.mu.Lock()
		m.aborted = !m.finished
		m.mu.Unlock()
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.ClearLogs()
		return m, nil
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
