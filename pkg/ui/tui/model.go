package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FetchState is where an item of the batch is
type FetchState int

const (
	FetchPending FetchState = iota
	FetchActive
	FetchDone
	FetchFailed
	FetchSkipped
)

func (s FetchState) String() string {
	switch s {
	case FetchActive:
		return "active"
	case FetchDone:
		return "done"
	case FetchFailed:
		return "failed"
	case FetchSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Log levels
const (
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelWarn    = "WARN"
	LevelError   = "ERROR"
)

// FetchItem is one key of the batch, usually a username
type FetchItem struct {
	Key       string
	State     FetchState
	StartTime time.Time
	Duration  time.Duration
	Error     error
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the bubbletea model of the batch board
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	items   map[string]*FetchItem
	order   []string
	workers int

	active    int
	fetched   int
	failed    int
	skipped   int
	startTime time.Time

	width          int
	height         int
	showHelp       bool
	finished       bool
	aborted        bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// NewModel creates a board for keys fetched by the given number of workers
func NewModel(workers int, keys []string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	m := &Model{
		spinner:        s,
		bar:            progress.New(progress.WithDefaultGradient()),
		items:          make(map[string]*FetchItem, len(keys)),
		workers:        workers,
		startTime:      time.Now(),
		maxLogMessages: 50,
	}
	for _, key := range keys {
		if _, ok := m.items[key]; ok {
			continue
		}
		m.items[key] = &FetchItem{Key: key, State: FetchPending}
		m.order = append(m.order, key)
	}
	return m
}

// Init starts the spinner and the refresh tick
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// item returns the entry for key, adding keys the board was not created with
func (m *Model) item(key string) *FetchItem {
	it, ok := m.items[key]
	if !ok {
		it = &FetchItem{Key: key, State: FetchPending}
		m.items[key] = it
		m.order = append(m.order, key)
	}
	return it
}

// StartFetch marks a key as being fetched
func (m *Model) StartFetch(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.item(key)
	if it.State != FetchPending {
		return
	}
	it.State = FetchActive
	it.StartTime = time.Now()
	m.active++
}

// CompleteFetch marks a key as fetched
func (m *Model) CompleteFetch(key string) {
	m.finish(key, FetchDone, nil)
}

// FailFetch marks a key as failed
func (m *Model) FailFetch(key string, err error) {
	m.finish(key, FetchFailed, err)
}

// SkipFetch marks a key whose result is already saved
func (m *Model) SkipFetch(key string) {
	m.finish(key, FetchSkipped, nil)
}

func (m *Model) finish(key string, state FetchState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.item(key)
	switch it.State {
	case FetchDone, FetchFailed, FetchSkipped:
		return
	case FetchActive:
		m.active--
		it.Duration = time.Since(it.StartTime)
	}
	it.State = state
	it.Error = err

	switch state {
	case FetchDone:
		m.fetched++
	case FetchFailed:
		m.failed++
	case FetchSkipped:
		m.skipped++
	}
}

// AddLogMessage adds a log message, keeping the most recent ones
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   levelColor(level),
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// ClearLogs drops all log messages
func (m *Model) ClearLogs() {
	m.mu.Lock()
	m.logMessages = nil
	m.mu.Unlock()
}

// ItemsIn returns the items in a state, in the order they were added
func (m *Model) ItemsIn(state FetchState) []*FetchItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemsIn(state)
}

func (m *Model) itemsIn(state FetchState) []*FetchItem {
	var out []*FetchItem
	for _, key := range m.order {
		if it := m.items[key]; it.State == state {
			out = append(out, it)
		}
	}
	return out
}

// Stats holds the counters shown on the board
type Stats struct {
	Total   int
	Active  int
	Fetched int
	Failed  int
	Skipped int
	Elapsed time.Duration
}

// Pending returns the number of keys not picked up yet
func (s Stats) Pending() int {
	return s.Total - s.Active - s.Fetched - s.Failed - s.Skipped
}

// Fraction returns the share of keys that are finished
func (s Stats) Fraction() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Fetched+s.Failed+s.Skipped) / float64(s.Total)
}

// Rate returns finished keys per minute
func (s Stats) Rate() float64 {
	minutes := s.Elapsed.Minutes()
	if minutes == 0 {
		return 0
	}
	return float64(s.Fetched+s.Failed) / minutes
}

// ETA estimates the time left from the rate so far
func (s Stats) ETA() time.Duration {
	finished := s.Fetched + s.Failed
	left := s.Pending() + s.Active
	if finished == 0 || left == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(finished) * time.Duration(left)
}

// Stats returns a snapshot of the counters
func (m *Model) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats()
}

func (m *Model) stats() Stats {
	return Stats{
		Total:   len(m.order),
		Active:  m.active,
		Fetched: m.fetched,
		Failed:  m.failed,
		Skipped: m.skipped,
		Elapsed: time.Since(m.startTime),
	}
}

// Aborted reports whether the user quit before the batch finished
func (m *Model) Aborted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.aborted
}
