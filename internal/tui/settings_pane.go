package tui

import (
	"fmt"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskconsole/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.ConsoleConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	savedTo     string
	err         error

	// Form bindings live behind a pointer so copies of the model share them
	fields *settingsFields
}

// settingsFields holds the values edited by the form.
type settingsFields struct {
	saveTarget string
	baseURL    string
	interval   string
	locale     string
	timeZone   string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.ConsoleConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		fields:      &settingsFields{},
	}
	m.loadFields()
	m.buildForm()
	return m
}

// loadFields copies the current config into the form bindings.
func (m *SettingsPaneModel) loadFields() {
	*m.fields = settingsFields{
		saveTarget: "global",
		baseURL:    m.config.API.BaseURL,
		interval:   m.config.Poll.Interval.String(),
		locale:     m.config.Display.Locale,
		timeZone:   m.config.Display.TimeZone,
	}
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	f := m.fields
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global ("+m.globalPath+")", "global"),
					huh.NewOption("Project ("+m.projectPath+")", "project"),
				).
				Value(&f.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("baseURL").
				Title("Task API URL").
				Value(&f.baseURL).
				Placeholder("http://localhost:12345").
				Validate(validateBaseURL),

			huh.NewInput().
				Key("interval").
				Title("Poll Interval").
				Value(&f.interval).
				Placeholder("5s").
				Validate(validateInterval),
		).Title("Task API"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("locale").
				Title("Duration Units").
				Options(
					huh.NewOption("中文 (1分钟30秒)", "zh-CN"),
					huh.NewOption("English (1m 30s)", "en-US"),
				).
				Value(&f.locale),

			huh.NewInput().
				Key("timeZone").
				Title("Log Time Zone").
				Description("IANA name; empty keeps each marker's offset").
				Value(&f.timeZone).
				Placeholder("Asia/Shanghai").
				Validate(validateTimeZone),
		).Title("Display"),
	)
}

func validateBaseURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL with a host")
	}
	return nil
}

func validateInterval(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < time.Second {
		return fmt.Errorf("must be at least 1s")
	}
	return nil
}

func validateTimeZone(s string) error {
	if s == "" {
		return nil
	}
	_, err := time.LoadLocation(s)
	return err
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == KeyEsc {
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	// Delegate to form
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.save()
		if m.err != nil {
			// Back to editing with the entered values kept
			m.buildForm()
			m.sizeForm()
			cmd = tea.Batch(cmd, m.form.Init())
		}
	}

	return m, cmd
}

// save writes the form values to the selected config file. The in-memory
// config only changes when the write succeeds.
func (m *SettingsPaneModel) save() {
	f := m.fields
	updated := *m.config
	if err := applyForm(&updated, f.baseURL, f.interval, f.locale, f.timeZone); err != nil {
		m.err = err
		m.saved = false
		return
	}

	targetPath := m.globalPath
	if f.saveTarget == "project" {
		targetPath = m.projectPath
	}

	if err := config.Save(&updated, targetPath); err != nil {
		m.err = err
		m.saved = false
		return
	}

	*m.config = updated
	m.saved = true
	m.savedTo = targetPath
	m.err = nil
	m.visible = false
}

// applyForm copies form field values into cfg.
func applyForm(cfg *config.ConsoleConfig, baseURL, interval, locale, timeZone string) error {
	d, err := time.ParseDuration(interval)
	if err != nil {
		return fmt.Errorf("poll interval: %w", err)
	}
	cfg.API.BaseURL = baseURL
	cfg.Poll.Interval = config.Duration{Duration: d}
	cfg.Display.Locale = locale
	cfg.Display.TimeZone = timeZone
	return cfg.Validate()
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	content := m.form.View()
	if m.err != nil {
		errLine := lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
		content = errLine + "\n\n" + content
	}

	// Wrap in styled border
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	body := style.Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// Notice returns a one-line result of the last save, or "".
func (m SettingsPaneModel) Notice() string {
	if m.saved {
		return fmt.Sprintf("✓ Settings saved to %s; restart watch to apply", m.savedTo)
	}
	return ""
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.sizeForm()
}

func (m *SettingsPaneModel) sizeForm() {
	if m.form != nil && m.width > 0 {
		m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.err = nil
	if v {
		m.saved = false
		m.loadFields()
		m.buildForm()
		m.sizeForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
