// Package tui is a full-screen board that follows a batch of fetches
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI represents the terminal user interface
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a board for keys fetched by the given number of workers. opts are passed on to
// the bubbletea program, after the alternate screen option.
func NewTUI(workers int, keys []string, opts ...tea.ProgramOption) *TUI {
	model := NewModel(workers, keys)
	program := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)

	return &TUI{
		program: program,
		model:   model,
	}
}

// Start runs the board until Finish is called or the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop quits the board immediately
func (t *TUI) Stop() {
	t.program.Quit()
}

// Finish tells the board every key is accounted for, which ends Start
func (t *TUI) Finish() {
	t.Send(BatchDoneMsg{})
}

// Send sends a message to the TUI. It does not block once the program has exited.
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// Started notifies the board that a worker picked up key
func (t *TUI) Started(key string) {
	t.Send(FetchStartMsg{Key: key})
}

// Done notifies the board that key finished, failed when err is not nil
func (t *TUI) Done(key string, err error) {
	if err != nil {
		t.Send(FetchErrorMsg{Key: key, Error: err})
		return
	}
	t.Send(FetchCompleteMsg{Key: key})
}

// Skipped notifies the board that key is already saved
func (t *TUI) Skipped(key string) {
	t.Send(FetchSkippedMsg{Key: key})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log(LevelInfo, format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log(LevelWarn, format, args...)
}

// Stats returns the board counters
func (t *TUI) Stats() Stats {
	return t.model.Stats()
}

// Aborted reports whether the user quit before Finish
func (t *TUI) Aborted() bool {
	return t.model.Aborted()
}
