package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const header = `igfeed :: batch fetch`

// View renders the board
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	half := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(half),
		m.renderActivePanel(half),
		m.renderQueuePanel(half),
	)
	main := lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", m.renderLogsPanel(half))

	sections := []string{headerStyle.Width(m.width).Render(header), main}
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to stop"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderStatsPanel(width int) string {
	s := m.stats()

	bar := m.bar
	bar.Width = max(width-6, 10)

	lines := []string{
		titleStyle.Render(" BATCH "),
		stat("Elapsed:", formatDuration(s.Elapsed)),
		stat("Workers:", fmt.Sprintf("%d", m.workers)),
		stat("Fetched:", fmt.Sprintf("%d / %d", s.Fetched, s.Total)),
		stat("Skipped:", fmt.Sprintf("%d", s.Skipped)),
		stat("Failed:", fmt.Sprintf("%d", s.Failed)),
		stat("Rate:", fmt.Sprintf("%.1f/min", s.Rate())),
		stat("ETA:", formatDuration(s.ETA())),
		bar.ViewAs(s.Fraction()),
	}
	if m.finished {
		lines = append(lines, successStyle.Render("✓ batch finished"))
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func stat(label, value string) string {
	return statsLabelStyle.Render(label) + " " + statsValueStyle.Render(value)
}

func (m *Model) renderActivePanel(width int) string {
	lines := []string{titleStyle.Render(" IN FLIGHT ")}

	active := m.itemsIn(FetchActive)
	if len(active) == 0 {
		lines = append(lines, logMessageStyle.Render("Nothing in flight"))
	}
	for _, it := range active {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			m.spinner.View(),
			queueItemActiveStyle.Render(it.Key),
			logTimestampStyle.Render(time.Since(it.StartTime).Round(100*time.Millisecond).String()),
		))
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderQueuePanel(width int) string {
	lines := []string{titleStyle.Render(" QUEUE ")}

	pending := m.itemsIn(FetchPending)
	if n := len(pending); n > 0 {
		lines = append(lines, warningStyle.Render(fmt.Sprintf("⏳ %d pending", n)))
		for i := 0; i < 3 && i < n; i++ {
			lines = append(lines, queueItemStyle.Render("• "+pending[i].Key))
		}
		if n > 3 {
			lines = append(lines, queueItemStyle.Render(fmt.Sprintf("... and %d more", n-3)))
		}
	}

	done := m.itemsIn(FetchDone)
	if n := len(done); n > 0 {
		lines = append(lines, successStyle.Render(fmt.Sprintf("✓ %d fetched", n)))
		for _, it := range done[max(n-3, 0):] {
			lines = append(lines, queueItemDoneStyle.Render(fmt.Sprintf("✓ %s %s", it.Key, it.Duration.Round(time.Millisecond))))
		}
	}

	if failed := m.itemsIn(FetchFailed); len(failed) > 0 {
		lines = append(lines, errorStyle.Render(fmt.Sprintf("✗ %d failed", len(failed))))
		for _, it := range failed[max(len(failed)-3, 0):] {
			lines = append(lines, queueItemStyle.Render("✗ "+it.Key))
		}
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderLogsPanel(width int) string {
	start := max(len(m.logMessages)-10, 0)
	maxMsgLen := max(width-25, 10)

	var logs []string
	for _, entry := range m.logMessages[start:] {
		message := entry.Message
		if len(message) > maxMsgLen {
			message = message[:maxMsgLen-3] + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s",
			logTimestampStyle.Render(entry.Time.Format("15:04:05")),
			lipgloss.NewStyle().Foreground(entry.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", entry.Level)),
			logMessageStyle.Render(message),
		))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = logMessageStyle.Render("No logs yet...")
	}

	return panelStyle.Width(width).Height(max(m.height-8, 5)).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(" LOG "), content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/ctrl+c - Stop the batch; keys not fetched yet are reported as cancelled
    ctrl+l   - Clear the log
    ?        - Toggle this help

  ` + successStyle.Render("✓") + ` fetched   ` + warningStyle.Render("⏳") + ` pending   ` + errorStyle.Render("✗") + ` failed
`
	return panelStyle.Width(m.width - 2).Render(help)
}

// formatDuration formats a duration as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
