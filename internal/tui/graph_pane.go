package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskconsole/internal/snapshot"
)

// GraphPaneModel shows the reconstructed graph of the active task and lets
// the user pick a subtask. Until the user moves the selection it follows
// the progress pointer.
type GraphPaneModel struct {
	snap     snapshot.Snapshot
	rows     []graphRow
	selected int  // Index into rows; always a row with a record when any exist
	follow   bool // Track the progress pointer
	offset   int  // First visible row
	width    int
	height   int
	focused  bool
}

// NewGraphPaneModel creates a new graph pane model.
func NewGraphPaneModel() GraphPaneModel {
	return GraphPaneModel{follow: true}
}

// SetSnapshot replaces the displayed snapshot. The selection stays on the
// same subtask id when it still exists.
func (m *GraphPaneModel) SetSnapshot(snap snapshot.Snapshot) {
	prevID, hadSel := m.SelectedID()

	m.snap = snap
	m.rows = graphRows(snap.Nodes)
	m.selected = -1

	if !m.follow && hadSel {
		m.selectID(prevID)
	}
	if m.selected < 0 {
		m.selectCurrent()
	}
	m.scrollToSelection()
}

// Reset returns to follow mode, used when switching tasks.
func (m *GraphPaneModel) Reset() {
	m.follow = true
	m.offset = 0
	m.selected = -1
}

// Update handles messages for the graph pane.
func (m GraphPaneModel) Update(msg tea.Msg) (GraphPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			m.move(1)
		case KeyK, KeyUp:
			m.move(-1)
		case KeyTop:
			m.follow = false
			m.selected = -1
			m.move(1)
		case KeyBottom:
			m.follow = false
			m.selected = len(m.rows)
			m.move(-1)
		case KeyCurrent:
			m.follow = true
			m.selectCurrent()
		}
		m.scrollToSelection()
	}

	return m, nil
}

// move steps the selection by dir, skipping fork headers.
func (m *GraphPaneModel) move(dir int) {
	for i := m.selected + dir; i >= 0 && i < len(m.rows); i += dir {
		if m.rows[i].record != nil {
			m.selected = i
			m.follow = false
			return
		}
	}
}

func (m *GraphPaneModel) selectID(id int64) {
	for i, row := range m.rows {
		if row.record != nil && row.record.ID == id {
			m.selected = i
			return
		}
	}
}

// selectCurrent selects the progress pointer, or the first subtask.
func (m *GraphPaneModel) selectCurrent() {
	m.selected = -1
	if m.snap.Current != nil {
		m.selectID(m.snap.Current.ID)
	}
	if m.selected < 0 {
		for i, row := range m.rows {
			if row.record != nil {
				m.selected = i
				return
			}
		}
	}
}

// visibleRows is the number of graph rows that fit below the header.
func (m GraphPaneModel) visibleRows() int {
	return max(1, m.height-2-headerLines)
}

// headerLines is the task header, progress line, warning line and spacer.
const headerLines = 4

func (m *GraphPaneModel) scrollToSelection() {
	if m.selected < 0 {
		m.offset = 0
		return
	}
	n := m.visibleRows()
	if m.selected < m.offset {
		m.offset = m.selected
	}
	if m.selected >= m.offset+n {
		m.offset = m.selected - n + 1
	}
}

// SelectedID returns the id of the selected subtask.
func (m GraphPaneModel) SelectedID() (int64, bool) {
	if m.selected < 0 || m.selected >= len(m.rows) || m.rows[m.selected].record == nil {
		return 0, false
	}
	return m.rows[m.selected].record.ID, true
}

// Following reports whether the selection tracks the progress pointer.
func (m GraphPaneModel) Following() bool {
	return m.follow
}

// View renders the graph pane.
func (m GraphPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	if m.snap.Task == nil {
		b.WriteString(StyleTitle.Render("Graph"))
		b.WriteString("\n\n")
		b.WriteString(StyleStatusPending.Render("Waiting for first poll..."))
	} else {
		b.WriteString(taskHeader(m.snap, true))
		b.WriteString("\n")
		b.WriteString(progressLine(m.snap.Progress))
		b.WriteString("\n")
		switch {
		case m.snap.Stale:
			b.WriteString(StyleStale.Render(staleLine(m.snap)))
		case m.snap.TopologyErr != nil:
			b.WriteString(StyleError.Render("partial graph: " + m.snap.TopologyErr.Error()))
		}
		b.WriteString("\n\n")

		if len(m.rows) == 0 {
			b.WriteString(StyleStatusPending.Render("(no subtasks)"))
		}
		end := min(len(m.rows), m.offset+m.visibleRows())
		for i := m.offset; i < end; i++ {
			line := renderRow(m.rows[i], m.snap, i != m.selected)
			if i == m.selected {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(lipgloss.NewStyle().MaxWidth(m.width - 2).Render(b.String()))
}

// SetSize updates the pane dimensions.
func (m *GraphPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.scrollToSelection()
}

// SetFocused updates the focus state.
func (m *GraphPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
