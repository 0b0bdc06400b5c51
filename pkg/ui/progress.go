package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker reports the progress of a batch of fetches. It is safe for concurrent use.
type StatusTracker struct {
	mu        sync.Mutex
	total     int
	active    int
	completed int
	failed    int
	startTime time.Time
}

// NewStatusTracker creates a tracker for total items
func NewStatusTracker(total int) *StatusTracker {
	return &StatusTracker{total: total, startTime: time.Now()}
}

// Started records an item a worker picked up
func (st *StatusTracker) Started(key string) {
	st.mu.Lock()
	st.active++
	st.mu.Unlock()
}

// Done records one finished item and prints a progress line for it
func (st *StatusTracker) Done(key string, err error) {
	st.mu.Lock()
	if st.active > 0 {
		st.active--
	}
	st.completed++
	if err != nil {
		st.failed++
	}
	bar := st.progressLocked()
	st.mu.Unlock()

	if err != nil {
		emit(false, "%s %s %s\n", Red("[FAILED]"), bar, key)
		return
	}
	emit(false, "%s %s %s\n", Green("[FETCHED]"), bar, key)
}

// Progress returns a formatted progress bar
func (st *StatusTracker) Progress() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.progressLocked()
}

func (st *StatusTracker) progressLocked() string {
	const width = 20
	filled := width
	if st.total > 0 {
		filled = st.completed * width / st.total
	}
	if filled > width {
		filled = width
	}

	bar := strings.Repeat(ProgressBar, filled) +
		strings.Repeat(ProgressEmpty, width-filled)

	return fmt.Sprintf("[%s] %d/%d", bar, st.completed, st.total)
}

// Counts returns the number of finished and failed items
func (st *StatusTracker) Counts() (completed, failed int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.completed, st.failed
}

// Active returns the number of items started but not done
func (st *StatusTracker) Active() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.startTime)
}

// GetRate returns the average rate in items per minute
func (st *StatusTracker) GetRate() float64 {
	elapsed := st.GetElapsedTime().Minutes()
	if elapsed == 0 {
		return 0
	}
	completed, _ := st.Counts()
	return float64(completed) / elapsed
}

// Summary prints the totals; skipped items never went through Done
func (st *StatusTracker) Summary(skipped int) {
	completed, failed := st.Counts()
	PrintBatchSummary(completed-failed, skipped, failed, st.GetElapsedTime())
}

// PrintBatchSummary prints the totals of a finished batch
func PrintBatchSummary(fetched, skipped, failed int, elapsed time.Duration) {
	line := fmt.Sprintf("%d fetched, %d skipped, %d failed in %s",
		fetched, skipped, failed, elapsed.Round(time.Millisecond))
	if failed > 0 {
		PrintWarning(line)
		return
	}
	PrintSuccess(line)
}
