package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// CommonTUIState holds state common to all TUI models
type CommonTUIState struct {
	VMID      string
	Width     int
	Height    int
	Quitting  bool
	StartTime time.Time
}

// BaseTUIModel provides common functionality for all TUI models
type BaseTUIModel struct {
	State *CommonTUIState
}

// NewBaseTUIModel creates a new base TUI model
func NewBaseTUIModel(vmid string) *BaseTUIModel {
	return &BaseTUIModel{
		State: &CommonTUIState{
			VMID:      vmid,
			Width:     80,
			Height:    24,
			StartTime: time.Now(),
		},
	}
}

// HandleWindowResize handles window resize messages consistently
func (b *BaseTUIModel) HandleWindowResize(msg tea.WindowSizeMsg) {
	b.State.Width = msg.Width
	b.State.Height = msg.Height
}

// GetUptime returns the time elapsed since the TUI started
func (b *BaseTUIModel) GetUptime() time.Duration {
	return time.Since(b.State.StartTime)
}

// TickCmd returns a command that sends tick messages every second
func (b *BaseTUIModel) TickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// TickMsg refreshes elapsed-time displays
type TickMsg time.Time

// StatusInfo holds common status information
type StatusInfo struct {
	VMID       string
	Status     string
	Uptime     time.Duration
	LastAction string
}

// LogEntry represents a log entry with timestamp and content
type LogEntry struct {
	Timestamp time.Time
	Content   string
	Level     LogLevel
	Depth     int
}

// LogLevel represents the severity of a log entry
type LogLevel int

const (
	LogLevelInfo LogLevel = iota
	LogLevelWarn
	LogLevelError
	LogLevelSuccess
	LogLevelDebug
)

// LogManager handles log entries with automatic pruning
type LogManager struct {
	entries []LogEntry
	maxSize int
}

// NewLogManager creates a new log manager with the specified maximum size
func NewLogManager(maxSize int) *LogManager {
	return &LogManager{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add adds a new log entry, pruning old entries if necessary
func (lm *LogManager) Add(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	lm.entries = append(lm.entries, entry)

	if len(lm.entries) > lm.maxSize {
		lm.entries = lm.entries[1:]
	}
}

// GetEntries returns all log entries
func (lm *LogManager) GetEntries() []LogEntry {
	return lm.entries
}

// Len returns the number of entries held
func (lm *LogManager) Len() int {
	return len(lm.entries)
}
