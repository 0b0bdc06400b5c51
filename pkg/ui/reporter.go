package ui

// FetchReporter is told about each item of a batch as workers pick it up and finish it.
// StatusTracker and tui.TUI both implement it.
type FetchReporter interface {
	Started(key string)
	Done(key string, err error)
}
