package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeeftor/qmp-macro/internal/styles"
)

// Common TUI styles using the centralized styles package
var (
	TitleStyle     = styles.TitleStyle
	StatusStyle    = styles.SuccessStyle
	MutedStyle     = styles.MutedStyle
	HighlightStyle = styles.HighlightStyle

	LogInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(styles.Text))

	LogWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(styles.Warning))

	LogErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(styles.Error))

	LogSuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(styles.Success))

	LogDebugStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(styles.TextMuted))
)

// TUIRenderer provides common rendering functions for TUI models
type TUIRenderer struct {
	width  int
	height int
}

// NewTUIRenderer creates a new TUI renderer
func NewTUIRenderer(width, height int) *TUIRenderer {
	return &TUIRenderer{
		width:  width,
		height: height,
	}
}

// UpdateDimensions updates the renderer dimensions
func (r *TUIRenderer) UpdateDimensions(width, height int) {
	r.width = width
	r.height = height
}

// RenderTitle renders a consistent title bar
func (r *TUIRenderer) RenderTitle(title string) string {
	if r.width <= 0 {
		return TitleStyle.Render(title)
	}
	return TitleStyle.Width(r.width).Render(title)
}

// RenderStatus renders a status line with common information
func (r *TUIRenderer) RenderStatus(info StatusInfo) string {
	var parts []string

	if info.VMID != "" {
		parts = append(parts, fmt.Sprintf("VM: %s", HighlightStyle.Render(info.VMID)))
	}
	if info.Status != "" {
		parts = append(parts, fmt.Sprintf("State: %s", styles.ForState(info.Status).Render(info.Status)))
	}
	parts = append(parts, fmt.Sprintf("Elapsed: %s", MutedStyle.Render(formatDuration(info.Uptime))))
	if info.LastAction != "" {
		parts = append(parts, fmt.Sprintf("Last: %s", info.LastAction))
	}

	return strings.Join(parts, " | ")
}

// RenderLogEntries renders log entries indented by call depth
func (r *TUIRenderer) RenderLogEntries(entries []LogEntry) []string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		var style lipgloss.Style
		var levelIndicator string

		switch entry.Level {
		case LogLevelWarn:
			style, levelIndicator = LogWarnStyle, "!"
		case LogLevelError:
			style, levelIndicator = LogErrorStyle, "✗"
		case LogLevelSuccess:
			style, levelIndicator = LogSuccessStyle, "✓"
		case LogLevelDebug:
			style, levelIndicator = LogDebugStyle, "·"
		default:
			style, levelIndicator = LogInfoStyle, "•"
		}

		lines = append(lines, fmt.Sprintf("%s %s%s %s",
			MutedStyle.Render(entry.Timestamp.Format("15:04:05")),
			strings.Repeat("  ", entry.Depth),
			style.Render(levelIndicator),
			style.Render(entry.Content)))
	}
	return lines
}

// RenderKeyHelp renders a one-line shortcut summary
func (r *TUIRenderer) RenderKeyHelp(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, HighlightStyle.Render(h.Key)+" "+h.Desc)
	}
	return MutedStyle.Render(strings.Join(parts, "  "))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int((d % time.Hour).Minutes())
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
