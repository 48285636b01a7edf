package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
)

// Colors
var (
	colorPrimary   = lipgloss.Color("#00BFFF")
	colorSecondary = lipgloss.Color("#FFD700")
	colorUrgent    = lipgloss.Color("#FF4444")
	colorSuccess   = lipgloss.Color("#44FF44")
	colorMuted     = lipgloss.Color("#666666")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary)

	countdownStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSuccess)

	statStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)

	urgentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorUrgent)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// View renders the UI
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.viewHelp()
	}

	innerWidth := m.width - 2

	lines := []string{
		titleStyle.Render("FOCUSGATE"),
		"",
	}
	lines = append(lines, m.viewBody()...)
	lines = append(lines, "", m.viewFooter())

	for i, line := range lines {
		if ansi.StringWidth(line) > innerWidth-2 {
			lines[i] = ansi.Truncate(line, innerWidth-2, "…")
		}
	}

	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorPrimary).
		Padding(0, 1).
		Width(innerWidth)

	return frame.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) viewBody() []string {
	if !m.connected {
		msg := "Waiting for the focusgate daemon..."
		if m.lastError != nil {
			msg = "Daemon unreachable: " + m.lastError.Error()
		}
		return []string{urgentStyle.Render(msg)}
	}

	s := m.state
	switch {
	case s.TimerActive:
		return []string{
			countdownStyle.Render(formatCountdown(m.remaining())),
			m.bar.ViewAs(m.elapsedFraction()),
			statStyle.Render(fmt.Sprintf("%d minute session, started %s", s.TimerDurationMinutes, humanize.Time(s.StartTime()))),
			mutedStyle.Render("Ends at " + s.EndTime().Format("3:04 PM")),
		}
	case s.Enabled:
		return []string{statStyle.Render("Blocking is on (no timer)")}
	default:
		return []string{mutedStyle.Render("Blocking is off")}
	}
}

func (m *Model) viewFooter() string {
	if m.lastError != nil && m.connected {
		return urgentStyle.Render(m.lastError.Error())
	}
	if m.note != "" {
		return statStyle.Render(m.note)
	}
	return helpStyle.Render("[s] start  [r] -1 min  [x] end  [b] block on/off  [?] help  [q] quit")
}

func (m *Model) viewHelp() string {
	help := `
         FOCUSGATE WATCH
────────────────────────────────
  s    Start a session (default length)
  r    Shorten the session by 1 minute
  x    End the session, blocking off
  b    Toggle manual blocking
  ?    Toggle help
  q    Quit

     Press any key to close
`
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorPrimary).
		Padding(1, 2).
		Render(help)
}

func formatCountdown(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
	}
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
