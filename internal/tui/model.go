package tui

import (
	"fmt"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskconsole/internal/config"
	"github.com/aristath/taskconsole/internal/events"
	"github.com/aristath/taskconsole/internal/snapshot"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneGraph PaneID = iota
	PaneLog
	PaneProgress
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	graphPane         GraphPaneModel
	logPane           LogPaneModel
	progressPane      ProgressPaneModel
	settingsPane      SettingsPaneModel
	focusedPane       PaneID
	eventSub          <-chan events.Event
	width             int
	height            int
	quitting          bool
	showSettings      bool
	config            *config.ConsoleConfig
	globalConfigPath  string
	projectConfigPath string

	// Watched tasks, in the order they are cycled
	order    []int64
	active   int
	snaps    map[int64]snapshot.Snapshot
	progress map[int64]events.DAGProgressEvent
	failures map[int64]events.PollFailedEvent // Cleared by the next fresh snapshot
}

// New creates a new TUI model watching taskIDs.
// It subscribes to all events from the event bus using SubscribeAll.
func New(eventBus *events.EventBus, cfg *config.ConsoleConfig, globalPath, projectPath string, taskIDs []int64) Model {
	m := Model{
		graphPane:         NewGraphPaneModel(),
		logPane:           NewLogPaneModel(),
		progressPane:      NewProgressPaneModel(),
		settingsPane:      NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:       PaneGraph,
		eventSub:          eventBus.SubscribeAll(256),
		config:            cfg,
		globalConfigPath:  globalPath,
		projectConfigPath: projectPath,
		snaps:             make(map[int64]snapshot.Snapshot),
		progress:          make(map[int64]events.DAGProgressEvent),
		failures:          make(map[int64]events.PollFailedEvent),
	}
	for _, id := range taskIDs {
		if !slices.Contains(m.order, id) {
			m.order = append(m.order, id)
		}
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case nil:
		// Event bus closed; stop listening

	case tea.KeyMsg:
		// If settings panel is open, route all keys to it (modal behavior)
		if m.showSettings {
			switch msg.String() {
			case KeyEsc, KeyCtrlC:
				m.showSettings = false
				m.settingsPane.SetVisible(false)
			default:
				var cmd tea.Cmd
				m.settingsPane, cmd = m.settingsPane.Update(msg)
				cmds = append(cmds, cmd)

				// Check if settings pane closed itself (after save)
				if !m.settingsPane.IsVisible() {
					m.showSettings = false
				}
			}
			return m, tea.Batch(cmds...)
		}

		// Normal mode (settings not open)
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 3
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + 2) % 3 // +2 is equivalent to -1 mod 3
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneGraph
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneLog
			m.updateFocusStates()

		case KeyPane3:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		case KeyPrevTask:
			m.switchTask(-1)

		case KeyNextTask:
			m.switchTask(1)

		default:
			// Delegate to focused pane
			switch m.focusedPane {
			case PaneGraph:
				var cmd tea.Cmd
				m.graphPane, cmd = m.graphPane.Update(msg)
				cmds = append(cmds, cmd)
				m.syncLog()
			case PaneLog:
				var cmd tea.Cmd
				m.logPane, cmd = m.logPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneProgress:
				var cmd tea.Cmd
				m.progressPane, cmd = m.progressPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case events.TaskSnapshotEvent:
		if m.accept(msg.Snapshot) && msg.TaskID() == m.ActiveTaskID() {
			m.refresh()
		}
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.PollFailedEvent:
		m.track(msg.ID)
		m.failures[msg.ID] = msg
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.DAGProgressEvent:
		m.track(msg.ID)
		if prev, ok := m.progress[msg.ID]; !ok || !msg.Timestamp.Before(prev.Timestamp) {
			m.progress[msg.ID] = msg
		}
		if msg.ID == m.ActiveTaskID() {
			var cmd tea.Cmd
			m.progressPane, cmd = m.progressPane.Update(msg)
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, waitForEvent(m.eventSub))

	default:
		// Forward anything else (huh internals, viewport ticks) to an open form
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// accept stores snap when it is newer than what the model holds. A cached
// snapshot never replaces a fresh one of the same age.
func (m *Model) accept(snap snapshot.Snapshot) bool {
	id := snap.TaskID()
	if id == 0 {
		return false
	}
	m.track(id)

	if prev, ok := m.snaps[id]; ok {
		if snap.TakenAt.Before(prev.TakenAt) {
			return false
		}
		if snap.Stale && !prev.Stale && !snap.TakenAt.After(prev.TakenAt) {
			return false
		}
	}

	m.snaps[id] = snap
	if !snap.Stale {
		delete(m.failures, id)
	}
	return true
}

// track adds id to the cycle order if it is new.
func (m *Model) track(id int64) {
	if !slices.Contains(m.order, id) {
		m.order = append(m.order, id)
	}
}

// switchTask moves the active task by dir, wrapping around.
func (m *Model) switchTask(dir int) {
	if len(m.order) < 2 {
		return
	}
	m.active = (m.active + dir + len(m.order)) % len(m.order)
	m.graphPane.Reset()
	m.refresh()

	id := m.ActiveTaskID()
	if ev, ok := m.progress[id]; ok {
		m.progressPane.SetProgress(ev)
	} else {
		m.progressPane.SetProgress(events.DAGProgressEvent{ID: id})
	}
}

// refresh pushes the active task's snapshot into the panes.
func (m *Model) refresh() {
	snap, ok := m.snaps[m.ActiveTaskID()]
	if !ok {
		m.graphPane.SetSnapshot(snapshot.Snapshot{})
		m.logPane.Clear()
		return
	}
	m.graphPane.SetSnapshot(snap)
	m.syncLog()
}

// syncLog shows the log of the subtask selected in the graph pane.
func (m *Model) syncLog() {
	snap := m.snaps[m.ActiveTaskID()]
	id, ok := m.graphPane.SelectedID()
	if !ok {
		m.logPane.Clear()
		return
	}
	m.logPane.SetLog(snap.Record(id), snap.Logs[id])
}

// ActiveTaskID returns the id of the task being displayed, or 0.
func (m Model) ActiveTaskID() int64 {
	if m.active < len(m.order) {
		return m.order[m.active]
	}
	return 0
}

// Snapshot returns the latest snapshot held for a task.
func (m Model) Snapshot(id int64) (snapshot.Snapshot, bool) {
	s, ok := m.snaps[id]
	return s, ok
}

// statusLine describes the active task's position and any poll failure.
func (m Model) statusLine() string {
	id := m.ActiveTaskID()
	if id == 0 {
		return StyleHelp.Render("No tasks")
	}

	line := fmt.Sprintf("Task %d/%d #%d", m.active+1, len(m.order), id)
	if !m.graphPane.Following() {
		line += " (browsing)"
	}
	if f, ok := m.failures[id]; ok {
		line += "  " + StyleError.Render(fmt.Sprintf("poll failed (attempt %d): %v", f.Attempt, f.Err))
	}
	if notice := m.settingsPane.Notice(); notice != "" {
		line += "  " + StyleStatusComplete.Render(notice)
	}
	return lipgloss.NewStyle().MaxWidth(max(1, m.width)).Render(line)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// If settings panel is visible, render it full-screen
	if m.showSettings {
		return m.settingsPane.View()
	}

	leftPane := m.graphPane.View()
	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.logPane.View(), m.progressPane.View())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, m.statusLine(), HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 45) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 2 // status line and help bar
	rightTopHeight := (availableHeight * 70) / 100
	rightBottomHeight := availableHeight - rightTopHeight

	m.graphPane.SetSize(leftWidth, availableHeight)
	m.logPane.SetSize(rightWidth, rightTopHeight)
	m.progressPane.SetSize(rightWidth, rightBottomHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.graphPane.SetFocused(m.focusedPane == PaneGraph)
	m.logPane.SetFocused(m.focusedPane == PaneLog)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
