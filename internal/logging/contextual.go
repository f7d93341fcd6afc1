package logging

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ContextualLogger attaches a run or VM identifier and a component name to every record
type ContextualLogger struct {
	l *slog.Logger
}

// NewContextualLogger creates a logger scoped to an identifier and component
func NewContextualLogger(id, component string) *ContextualLogger {
	return &ContextualLogger{
		l: slog.Default().With("id", id, "component", component),
	}
}

// With returns a child logger with extra attributes
func (c *ContextualLogger) With(args ...any) *ContextualLogger {
	return &ContextualLogger{l: c.l.With(args...)}
}

func (c *ContextualLogger) Debug(msg string, args ...any) { c.l.Debug(msg, args...) }
func (c *ContextualLogger) Info(msg string, args ...any)  { c.l.Info(msg, args...) }
func (c *ContextualLogger) Warn(msg string, args ...any)  { c.l.Warn(msg, args...) }
func (c *ContextualLogger) Error(msg string, args ...any) { c.l.Error(msg, args...) }

// User-facing output. These bypass the level filter and go straight to the terminal.

// UserInfof prints an informational line for the user
func UserInfof(format string, args ...any) {
	fmt.Fprintln(os.Stdout, fmt.Sprintf(format, args...))
}

// UserWarnf prints a warning line for the user
func UserWarnf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, warnColor(fmt.Sprintf(format, args...)))
}

// UserErrorf prints an error line for the user
func UserErrorf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, errorColor(fmt.Sprintf(format, args...)))
}

// Successf prints a success line for the user
func Successf(format string, args ...any) {
	fmt.Fprintln(os.Stdout, infoColor(fmt.Sprintf(format, args...)))
}

// Timer measures an operation and logs its outcome
type Timer struct {
	operation string
	id        string
	start     time.Time
}

// StartTimer starts timing an operation
func StartTimer(operation, id string) *Timer {
	Debug("Operation started", "operation", operation, "id", id)
	return &Timer{operation: operation, id: id, start: time.Now()}
}

// Stop logs the operation result and returns the elapsed time
func (t *Timer) Stop(success bool, fields map[string]interface{}) time.Duration {
	elapsed := time.Since(t.start)
	args := []any{"operation", t.operation, "id", t.id, "success", success, "duration", elapsed}
	for k, v := range fields {
		args = append(args, k, v)
	}
	Info("Operation finished", args...)
	return elapsed
}

// StopWithError logs a failed operation and returns the elapsed time
func (t *Timer) StopWithError(err error, fields map[string]interface{}) time.Duration {
	elapsed := time.Since(t.start)
	args := []any{"operation", t.operation, "id", t.id, "error", err, "duration", elapsed}
	for k, v := range fields {
		args = append(args, k, v)
	}
	Error("Operation failed", args...)
	return elapsed
}

// LogOperation runs fn inside a timer
func LogOperation(operation, id string, fn func() error) error {
	timer := StartTimer(operation, id)
	if err := fn(); err != nil {
		timer.StopWithError(err, nil)
		return err
	}
	timer.Stop(true, nil)
	return nil
}
