package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskconsole/internal/events"
	"github.com/aristath/taskconsole/internal/taskgraph"
)

// ProgressPaneModel represents the subtask progress display pane.
type ProgressPaneModel struct {
	taskID   int64
	status   taskgraph.Status
	progress taskgraph.Progress
	updated  time.Time
	width    int
	height   int
	focused  bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.DAGProgressEvent:
		// Out-of-order events for the same task are dropped
		if msg.ID == m.taskID && msg.Timestamp.Before(m.updated) {
			break
		}
		m.taskID = msg.ID
		m.status = msg.Status
		m.progress = msg.Progress
		m.updated = msg.Timestamp
	}

	return m, nil
}

// SetProgress replaces the displayed counts, used when switching tasks.
func (m *ProgressPaneModel) SetProgress(ev events.DAGProgressEvent) {
	m.taskID = ev.ID
	m.status = ev.Status
	m.progress = ev.Progress
	m.updated = ev.Timestamp
}

// Progress returns the counts currently displayed.
func (m ProgressPaneModel) Progress() taskgraph.Progress {
	return m.progress
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	// Title
	title := StyleTitle.Render("Progress")
	if m.taskID != 0 {
		title = StyleTitle.Render(fmt.Sprintf("Progress #%d", m.taskID))
	}
	b.WriteString(title)
	if m.status != "" {
		b.WriteString(" " + StatusStyle(m.status).Render(string(m.status)))
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n")

	p := m.progress
	b.WriteString(fmt.Sprintf("Total: %d  %s %s %s %s\n",
		p.Total,
		StyleStatusComplete.Render(fmt.Sprintf("✓%d", p.Successful)),
		StyleStatusRunning.Render(fmt.Sprintf("●%d", p.Running)),
		StyleStatusFailed.Render(fmt.Sprintf("✗%d", p.Failed)),
		StyleStatusPending.Render(fmt.Sprintf("○%d", p.Pending+p.Ready+p.Other)),
	))

	// Progress bar
	if p.Total > 0 {
		b.WriteString(progressBar(p, min(m.width-14, 40)))
		b.WriteString("\n")
	}

	content := b.String()

	// Apply border style
	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// progressBar draws p as a bar of barWidth cells followed by a count.
func progressBar(p taskgraph.Progress, barWidth int) string {
	barWidth = max(barWidth, 10)
	completedWidth := (p.Successful * barWidth) / p.Total
	failedWidth := (p.Failed * barWidth) / p.Total
	runningWidth := (p.Running * barWidth) / p.Total
	pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

	return fmt.Sprintf("[%s]  %d/%d", bar, p.Successful, p.Total)
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
