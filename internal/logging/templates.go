package logging

import "fmt"

// LogTemplate represents a logging template with standardized emoji and formatting
type LogTemplate struct {
	emoji  string
	prefix string
	level  LogLevel
}

// LogLevel represents the logging level for templates
type LogLevel int

const (
	LevelInfo LogLevel = iota
	LevelSuccess
	LevelWarn
	LevelError
	LevelDebug
)

// Common logging templates with standardized emojis and formats.
// Step templates carry no prefix; the engine's status text already names the step.
var (
	WaitTemplate      = LogTemplate{emoji: "⏳", level: LevelInfo}
	ClickTemplate     = LogTemplate{emoji: "🖱️", level: LevelInfo}
	CallTemplate      = LogTemplate{emoji: "↪", level: LevelInfo}
	VariableTemplate  = LogTemplate{emoji: "📝", level: LevelInfo}
	ConditionTemplate = LogTemplate{emoji: "❓", level: LevelInfo}
	UnknownTemplate   = LogTemplate{emoji: "⚠️", level: LevelWarn}
	StepFailTemplate  = LogTemplate{emoji: "✗", prefix: "Step failed", level: LevelDebug}

	ScreenshotTemplate = LogTemplate{emoji: "📸", prefix: "Captured", level: LevelInfo}
	SaveTemplate       = LogTemplate{emoji: "💾", prefix: "Saved", level: LevelSuccess}
	LoadTemplate       = LogTemplate{emoji: "📂", prefix: "Loading", level: LevelInfo}

	StartTemplate    = LogTemplate{emoji: "🚀", prefix: "Starting", level: LevelInfo}
	StopTemplate     = LogTemplate{emoji: "🛑", prefix: "Stopped", level: LevelWarn}
	CompleteTemplate = LogTemplate{emoji: "✓", level: LevelSuccess}
	FailTemplate     = LogTemplate{emoji: "✗", level: LevelError}
)

// Format formats the template with the provided message
func (t LogTemplate) Format(message string) string {
	if t.prefix != "" {
		return fmt.Sprintf("%s %s: %s", t.emoji, t.prefix, message)
	}
	return fmt.Sprintf("%s %s", t.emoji, message)
}

// Log logs the message using the appropriate logging function based on level
func (t LogTemplate) Log(message string) {
	formatted := t.Format(message)
	switch t.level {
	case LevelInfo:
		UserInfof("%s", formatted)
	case LevelSuccess:
		Successf("%s", formatted)
	case LevelWarn:
		UserWarnf("%s", formatted)
	case LevelError:
		UserErrorf("%s", formatted)
	case LevelDebug:
		Debug(formatted)
	}
}

// Logf logs the message using printf-style formatting
func (t LogTemplate) Logf(format string, args ...interface{}) {
	t.Log(fmt.Sprintf(format, args...))
}

// TakeScreenshot logs a captured pattern or frame
func TakeScreenshot(path, details string) {
	ScreenshotTemplate.Logf("%s (%s)", path, details)
}

// SaveFile logs file save operation
func SaveFile(path string, details string) {
	if details != "" {
		SaveTemplate.Logf("%s (%s)", path, details)
	} else {
		SaveTemplate.Log(path)
	}
}

// LoadFile logs file load operation
func LoadFile(path string) {
	LoadTemplate.Log(path)
}

// Start logs process start
func Start(process string) {
	StartTemplate.Log(process)
}

// Stop logs process stop
func Stop(process string) {
	StopTemplate.Log(process)
}

// Complete logs successful completion
func Complete(operation string) {
	CompleteTemplate.Log(operation)
}

// Fail logs operation failure
func Fail(operation string, reason string) {
	if reason != "" {
		FailTemplate.Logf("%s: %s", operation, reason)
	} else {
		FailTemplate.Log(operation)
	}
}
