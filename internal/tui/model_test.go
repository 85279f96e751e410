package tui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/aristath/taskconsole/internal/config"
	"github.com/aristath/taskconsole/internal/events"
	"github.com/aristath/taskconsole/internal/snapshot"
	"github.com/aristath/taskconsole/internal/taskgraph"
)

func newTestModel(t *testing.T, ids ...int64) Model {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Close)

	dir := t.TempDir()
	m := New(bus, config.DefaultConfig(), filepath.Join(dir, "global.json"), filepath.Join(dir, "project.json"), ids)
	return update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model
}

func key(s string) tea.KeyMsg {
	switch s {
	case KeyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case KeyEsc:
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelAppliesSnapshot(t *testing.T) {
	m := newTestModel(t, 42)

	m = update(t, m, events.TaskSnapshotEvent{Snapshot: diamondSnapshot(testNow)})

	if _, ok := m.Snapshot(42); !ok {
		t.Fatal("snapshot for task 42 not stored")
	}
	if id, ok := m.graphPane.SelectedID(); !ok || id != 2 {
		t.Errorf("graph selection = %d, %v; want the progress pointer 2", id, ok)
	}
	if got := m.logPane.SubtaskID(); got != 2 {
		t.Errorf("log pane shows subtask %d, want 2", got)
	}

	view := m.View()
	for _, want := range []string{"nightly-etl", "#3 load-b", "boom", "Task 1/1 #42"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestModelLastWriteWins(t *testing.T) {
	m := newTestModel(t, 42)

	newer := diamondSnapshot(testNow.Add(time.Minute))
	older := diamondSnapshot(testNow)
	older.Task.Name = "older"

	m = update(t, m, events.TaskSnapshotEvent{Snapshot: newer})
	m = update(t, m, events.TaskSnapshotEvent{Snapshot: older})

	got, _ := m.Snapshot(42)
	if !got.TakenAt.Equal(newer.TakenAt) {
		t.Errorf("TakenAt = %v, want the newer %v", got.TakenAt, newer.TakenAt)
	}

	// A cached copy of the same age does not replace a fresh snapshot.
	cached := diamondSnapshot(testNow.Add(time.Minute)).AsStale()
	m = update(t, m, events.TaskSnapshotEvent{Snapshot: cached})
	if got, _ := m.Snapshot(42); got.Stale {
		t.Error("stale snapshot replaced a fresh one of the same age")
	}
}

func TestModelPollFailure(t *testing.T) {
	m := newTestModel(t, 42)

	m = update(t, m, events.PollFailedEvent{ID: 42, Err: errors.New("connection refused"), Attempt: 3, Timestamp: testNow})
	if !strings.Contains(m.statusLine(), "poll failed (attempt 3): connection refused") {
		t.Errorf("status line = %q", m.statusLine())
	}

	// A stale snapshot keeps the failure visible.
	m = update(t, m, events.TaskSnapshotEvent{Snapshot: diamondSnapshot(testNow).AsStale()})
	if _, ok := m.failures[42]; !ok {
		t.Error("stale snapshot cleared the poll failure")
	}

	m = update(t, m, events.TaskSnapshotEvent{Snapshot: diamondSnapshot(testNow.Add(time.Second))})
	if _, ok := m.failures[42]; ok {
		t.Error("fresh snapshot did not clear the poll failure")
	}
}

func TestModelSwitchTask(t *testing.T) {
	m := newTestModel(t, 42, 7)

	other := snapshot.Build(&taskgraph.TaskInstance{
		ID:     7,
		Name:   "backfill",
		Status: taskgraph.StatusSuccessful,
		Subtasks: []taskgraph.SubtaskRecord{
			{ID: 70, Name: "only", Status: taskgraph.StatusSuccessful},
		},
	}, snapshot.Options{Now: testNow})

	m = update(t, m, events.TaskSnapshotEvent{Snapshot: diamondSnapshot(testNow)})
	m = update(t, m, events.TaskSnapshotEvent{Snapshot: other})
	m = update(t, m, events.DAGProgressEvent{ID: 7, Status: taskgraph.StatusSuccessful, Progress: other.Progress, Timestamp: testNow})

	if got := m.ActiveTaskID(); got != 42 {
		t.Fatalf("ActiveTaskID() = %d, want 42", got)
	}

	m = update(t, m, key(KeyNextTask))
	if got := m.ActiveTaskID(); got != 7 {
		t.Fatalf("after ] ActiveTaskID() = %d, want 7", got)
	}
	if id, _ := m.graphPane.SelectedID(); id != 70 {
		t.Errorf("graph selection = %d, want 70", id)
	}
	if got := m.progressPane.Progress().Successful; got != 1 {
		t.Errorf("progress pane Successful = %d, want 1", got)
	}

	m = update(t, m, key(KeyNextTask))
	if got := m.ActiveTaskID(); got != 42 {
		t.Errorf("] should wrap to 42, got %d", got)
	}
	m = update(t, m, key(KeyPrevTask))
	if got := m.ActiveTaskID(); got != 7 {
		t.Errorf("[ should wrap to 7, got %d", got)
	}
}

func TestModelTracksUnknownTask(t *testing.T) {
	m := newTestModel(t)

	if got := m.ActiveTaskID(); got != 0 {
		t.Fatalf("ActiveTaskID() = %d with no tasks", got)
	}

	m = update(t, m, events.TaskSnapshotEvent{Snapshot: diamondSnapshot(testNow)})
	if got := m.ActiveTaskID(); got != 42 {
		t.Errorf("ActiveTaskID() = %d, want 42", got)
	}
}

func TestGraphPaneNavigation(t *testing.T) {
	m := newTestModel(t, 42)
	m = update(t, m, events.TaskSnapshotEvent{Snapshot: diamondSnapshot(testNow)})

	steps := []struct {
		key    string
		want   int64
		follow bool
	}{
		{KeyJ, 3, false},
		{KeyJ, 4, false},
		{KeyJ, 4, false}, // bottom
		{KeyK, 3, false},
		{KeyK, 2, false},
		{KeyK, 1, false}, // skips the fork header
		{KeyBottom, 4, false},
		{KeyTop, 1, false},
		{KeyCurrent, 2, true},
	}

	for _, s := range steps {
		m = update(t, m, key(s.key))
		id, _ := m.graphPane.SelectedID()
		if id != s.want {
			t.Fatalf("after %q selection = %d, want %d", s.key, id, s.want)
		}
		if m.graphPane.Following() != s.follow {
			t.Errorf("after %q Following() = %v, want %v", s.key, m.graphPane.Following(), s.follow)
		}
		if got := m.logPane.SubtaskID(); got != s.want {
			t.Errorf("after %q log pane shows %d, want %d", s.key, got, s.want)
		}
	}
}

func TestGraphPaneKeepsSelectionAcrossPolls(t *testing.T) {
	m := newTestModel(t, 42)
	m = update(t, m, events.TaskSnapshotEvent{Snapshot: diamondSnapshot(testNow)})
	m = update(t, m, key(KeyBottom))

	m = update(t, m, events.TaskSnapshotEvent{Snapshot: diamondSnapshot(testNow.Add(time.Second))})

	if id, _ := m.graphPane.SelectedID(); id != 4 {
		t.Errorf("selection = %d after a new poll, want 4", id)
	}
}

func TestFocusCycling(t *testing.T) {
	m := newTestModel(t, 42)

	m = update(t, m, key(KeyTab))
	if m.focusedPane != PaneLog {
		t.Errorf("after tab focused = %d, want PaneLog", m.focusedPane)
	}
	m = update(t, m, key(KeyPane3))
	if m.focusedPane != PaneProgress {
		t.Errorf("after 3 focused = %d, want PaneProgress", m.focusedPane)
	}
	m = update(t, m, key(KeyTab))
	if m.focusedPane != PaneGraph {
		t.Errorf("tab should wrap to PaneGraph, got %d", m.focusedPane)
	}
}

func TestProgressPaneDropsOlderEvents(t *testing.T) {
	p := NewProgressPaneModel()

	p, _ = p.Update(events.DAGProgressEvent{ID: 1, Progress: taskgraph.Progress{Total: 4, Successful: 3}, Timestamp: testNow})
	p, _ = p.Update(events.DAGProgressEvent{ID: 1, Progress: taskgraph.Progress{Total: 4, Successful: 1}, Timestamp: testNow.Add(-time.Second)})

	if got := p.Progress().Successful; got != 3 {
		t.Errorf("Successful = %d, want 3", got)
	}

	p.SetSize(60, 8)
	if view := p.View(); !strings.Contains(view, "3/4") {
		t.Errorf("View() missing bar count:\n%s", view)
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(t, 42)

	next, cmd := m.Update(key(KeyQuit))
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not produce tea.QuitMsg")
	}
	if view := next.View(); view != "Goodbye!\n" {
		t.Errorf("View() after quit = %q", view)
	}
}

func TestSettingsToggle(t *testing.T) {
	m := newTestModel(t, 42)

	m = update(t, m, key(KeySettings))
	if !m.showSettings || !m.settingsPane.IsVisible() {
		t.Fatal("s did not open settings")
	}
	if !strings.Contains(m.View(), "Settings") {
		t.Error("settings view not rendered")
	}

	m = update(t, m, key(KeyEsc))
	if m.showSettings {
		t.Error("esc did not close settings")
	}
}

func TestSettingsSave(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.json")
	project := filepath.Join(dir, "project.json")

	cfg := config.DefaultConfig()
	cfg.API.Token = "secret"
	s := NewSettingsPaneModel(cfg, global, project)
	s.SetVisible(true)

	s.fields.saveTarget = "project"
	s.fields.baseURL = "https://tasks.example.com/ds"
	s.fields.interval = "15s"
	s.fields.locale = "en-US"
	s.fields.timeZone = "UTC"
	s.save()

	if s.err != nil {
		t.Fatalf("save error: %v", s.err)
	}
	if s.IsVisible() {
		t.Error("pane still visible after save")
	}
	if !strings.Contains(s.Notice(), project) {
		t.Errorf("Notice() = %q, want the project path", s.Notice())
	}
	if cfg.Poll.Interval.Duration != 15*time.Second {
		t.Errorf("in-memory interval = %v, want 15s", cfg.Poll.Interval)
	}

	loaded, err := config.Load("", project)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.API.BaseURL != "https://tasks.example.com/ds" || loaded.Display.Locale != "en-US" || loaded.Display.TimeZone != "UTC" {
		t.Errorf("saved config = %+v", loaded)
	}
	if loaded.API.Token == "secret" {
		t.Error("token was written to the config file")
	}
}

func TestSettingsSaveRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	before := *cfg

	s := NewSettingsPaneModel(cfg, filepath.Join(dir, "g.json"), filepath.Join(dir, "p.json"))
	s.SetVisible(true)
	s.fields.interval = "200ms"
	s.save()

	if s.err == nil {
		t.Fatal("expected an error for a sub-second interval")
	}
	if *cfg != before {
		t.Error("config changed despite a failed save")
	}
}

func TestSettingsFailedSaveReturnsToEditing(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "g.json")
	cfg := config.DefaultConfig()

	s := NewSettingsPaneModel(cfg, global, filepath.Join(dir, "p.json"))
	s.SetSize(100, 40)
	s.SetVisible(true)
	s.fields.interval = "200ms"
	s.form.State = huh.StateCompleted

	s, _ = s.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	if s.err == nil {
		t.Fatal("expected a save error for a sub-second interval")
	}
	if s.form.State != huh.StateNormal {
		t.Fatalf("form state = %v after a failed save, want it editable again", s.form.State)
	}
	if !s.IsVisible() {
		t.Error("pane closed after a failed save")
	}
	if s.fields.interval != "200ms" {
		t.Errorf("entered interval = %q, want it kept for correction", s.fields.interval)
	}

	// Later messages must not retry the save behind the user's back.
	s.fields.interval = "10s"
	s, _ = s.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if s.saved {
		t.Error("save ran again without the form being submitted")
	}
	if _, err := os.Stat(global); !os.IsNotExist(err) {
		t.Errorf("config file written without a submit: %v", err)
	}
	if !strings.Contains(s.View(), "Error saving") {
		t.Error("save error not shown above the form")
	}
}

func TestSettingsValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		in      string
		wantErr bool
	}{
		{"url ok", validateBaseURL, "http://localhost:12345", false},
		{"url scheme", validateBaseURL, "ftp://host", true},
		{"url no host", validateBaseURL, "http://", true},
		{"interval ok", validateInterval, "5s", false},
		{"interval short", validateInterval, "500ms", true},
		{"interval garbage", validateInterval, "soon", true},
		{"zone empty", validateTimeZone, "", false},
		{"zone ok", validateTimeZone, "UTC", false},
		{"zone unknown", validateTimeZone, "Mars/Olympus", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
