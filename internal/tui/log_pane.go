package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/taskconsole/internal/logseg"
	"github.com/aristath/taskconsole/internal/taskgraph"
)

// LogPaneModel shows the segmented log of one subtask in a scrollable viewport.
type LogPaneModel struct {
	viewport viewport.Model
	title    string
	subtask  int64
	content  string
	width    int
	height   int
	focused  bool
}

// NewLogPaneModel creates a new log pane model.
func NewLogPaneModel() LogPaneModel {
	vp := viewport.New(0, 0)
	vp.SetContent("Waiting for tasks...")
	return LogPaneModel{
		viewport: vp,
		title:    "Log",
	}
}

// SetLog shows the log of r. Content for the same subtask keeps the scroll
// position; a different subtask starts at the top, where the newest
// segment is.
func (m *LogPaneModel) SetLog(r *taskgraph.SubtaskRecord, log logseg.Log) {
	if r == nil {
		m.Clear()
		return
	}

	content := renderLog(log, true)
	same := r.ID == m.subtask
	m.title = "Log " + recordTitle(r)
	m.subtask = r.ID
	if same && content == m.content {
		return
	}
	m.content = content
	m.viewport.SetContent(content)
	if !same {
		m.viewport.GotoTop()
	}
}

// Clear empties the pane.
func (m *LogPaneModel) Clear() {
	m.title = "Log"
	m.subtask = 0
	m.content = ""
	m.viewport.SetContent("No subtask selected")
	m.viewport.GotoTop()
}

// SubtaskID returns the id of the subtask being shown, or 0.
func (m LogPaneModel) SubtaskID() int64 {
	return m.subtask
}

// Update handles messages for the log pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyTop:
			m.viewport.GotoTop()
		case KeyBottom:
			m.viewport.GotoBottom()
		default:
			// j/k and paging are the viewport's own bindings
			m.viewport, cmd = m.viewport.Update(msg)
		}
	}

	return m, cmd
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *LogPaneModel) resizeViewport() {
	m.viewport.Width = max(10, m.width-4)
	m.viewport.Height = max(3, m.height-3) // border and title
}

// SetSize updates the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *LogPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
