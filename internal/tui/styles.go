package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskconsole/internal/taskgraph"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusReady = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39"))

	StyleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleSelected = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))

	StyleLogLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	StyleStale = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	StyleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)
)

// StatusStyle returns the style used for a status value.
func StatusStyle(s taskgraph.Status) lipgloss.Style {
	switch s {
	case taskgraph.StatusRunning:
		return StyleStatusRunning
	case taskgraph.StatusSuccessful:
		return StyleStatusComplete
	case taskgraph.StatusFailed:
		return StyleStatusFailed
	case taskgraph.StatusReady:
		return StyleStatusReady
	default:
		return StyleStatusPending
	}
}

// StatusIcon returns the unstyled indicator for a status.
func StatusIcon(s taskgraph.Status) string {
	switch s {
	case taskgraph.StatusRunning:
		return "●"
	case taskgraph.StatusSuccessful:
		return "✓"
	case taskgraph.StatusFailed:
		return "✗"
	case taskgraph.StatusReady:
		return "◎"
	default:
		return "○"
	}
}
