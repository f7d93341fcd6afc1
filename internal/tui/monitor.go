package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeeftor/qmp-macro/internal/engine"
	"github.com/jeeftor/qmp-macro/internal/styles"
)

// RunHandle is the part of a background run the monitor needs
type RunHandle interface {
	Events() <-chan engine.Event
	Wait() engine.Outcome
	Cancel()
}

type eventMsg engine.Event

type finishedMsg struct {
	outcome engine.Outcome
}

const maxLogEntries = 2000

// Monitor follows a macro run: a status line, a scrolling log of step
// events and a footer with shortcuts
type Monitor struct {
	*BaseTUIModel

	run      RunHandle
	title    string
	keys     KeyMap
	spinner  spinner.Model
	viewport viewport.Model
	logs     *LogManager
	renderer *TUIRenderer

	state      engine.State
	lastStatus string
	outcome    *engine.Outcome
	follow     bool
	quitAfter  bool
	cancelled  bool
}

// NewMonitor creates a monitor for run
func NewMonitor(vmid, title string, run RunHandle) *Monitor {
	base := NewBaseTUIModel(vmid)
	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(styles.Primary))),
	)
	vp := viewport.New(base.State.Width, base.State.Height-4)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(styles.Primary))

	return &Monitor{
		BaseTUIModel: base,
		run:          run,
		title:        title,
		keys:         DefaultKeyMap(),
		spinner:      sp,
		viewport:     vp,
		logs:         NewLogManager(maxLogEntries),
		renderer:     NewTUIRenderer(base.State.Width, base.State.Height),
		state:        engine.Running,
		follow:       true,
	}
}

// Outcome returns the run's outcome once it has finished
func (m *Monitor) Outcome() (engine.Outcome, bool) {
	if m.outcome == nil {
		return engine.Outcome{}, false
	}
	return *m.outcome, true
}

// waitForEvent reads the next event; a closed channel means the run is over
func waitForEvent(run RunHandle) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-run.Events()
		if !ok {
			return finishedMsg{outcome: run.Wait()}
		}
		return eventMsg(ev)
	}
}

func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return m.spinner.Tick() },
		waitForEvent(m.run),
		m.TickCmd(),
	)
}

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.HandleWindowResize(msg)
		m.renderer.UpdateDimensions(msg.Width, msg.Height)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 3)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.record(engine.Event(msg))
		return m, waitForEvent(m.run)

	case finishedMsg:
		out := msg.outcome
		m.outcome = &out
		m.state = out.State
		if m.quitAfter {
			m.State.Quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if m.outcome != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.outcome != nil {
			return m, nil
		}
		return m, m.TickCmd()
	}
	return m, nil
}

func (m *Monitor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		if m.outcome != nil {
			m.State.Quitting = true
			return m, tea.Quit
		}
		if !m.cancelled {
			m.cancelled = true
			m.run.Cancel()
			m.logs.Add(LogEntry{Content: "Stop requested", Level: LogLevelWarn})
			m.refresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.Quit):
		if m.outcome != nil {
			m.State.Quitting = true
			return m, tea.Quit
		}
		m.quitAfter = true
		if !m.cancelled {
			m.cancelled = true
			m.run.Cancel()
		}
		return m, nil

	case key.Matches(msg, m.keys.Follow):
		m.follow = true
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.PageUp):
		m.follow = false
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	if m.viewport.AtBottom() {
		m.follow = true
	}
	return m, cmd
}

// record turns a run event into a log line
func (m *Monitor) record(ev engine.Event) {
	entry := LogEntry{Timestamp: ev.Time, Depth: ev.Depth}
	switch ev.Type {
	case engine.EventStatus:
		entry.Content = ev.Message
		entry.Level = LogLevelInfo
		m.lastStatus = ev.Message

	case engine.EventStep:
		result := "ok"
		entry.Level = LogLevelDebug
		if !ev.OK {
			result = "failed"
			entry.Level = LogLevelWarn
			if ev.Message != "" {
				result += ": " + ev.Message
			}
		}
		entry.Content = fmt.Sprintf("%s[%d] %s %s", ev.Function, ev.Index, ev.Kind, result)

	case engine.EventFinished:
		entry.Content = ev.Message
		switch ev.State {
		case engine.Completed:
			entry.Level = LogLevelSuccess
		case engine.Aborted:
			entry.Level = LogLevelWarn
		default:
			entry.Level = LogLevelError
		}
		m.lastStatus = ev.Message
	}
	m.logs.Add(entry)
	m.refresh()
}

func (m *Monitor) refresh() {
	m.viewport.SetContent(strings.Join(m.renderer.RenderLogEntries(m.logs.GetEntries()), "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *Monitor) View() string {
	var b strings.Builder

	title := m.title
	if m.outcome == nil {
		title = m.spinner.View() + " " + title
	}
	b.WriteString(m.renderer.RenderTitle(title))
	b.WriteString("\n")

	b.WriteString(m.renderer.RenderStatus(StatusInfo{
		VMID:       m.State.VMID,
		Status:     m.state.String(),
		Uptime:     m.GetUptime(),
		LastAction: m.lastStatus,
	}))
	b.WriteString("\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.outcome != nil {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%d steps in %s. Press q to exit.", m.outcome.Steps, formatDuration(m.outcome.Duration))))
	} else {
		b.WriteString(m.renderer.RenderKeyHelp(m.keys.ShortHelp()))
	}
	return b.String()
}
