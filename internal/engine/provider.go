package engine

import (
	"context"
	"fmt"
	"time"
)

// Region is a located rectangle in screen coordinates
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the point a click is aimed at
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Provider performs on-screen pattern location and pointer interaction.
// Calls block until they finish, the timeout passes, or ctx is cancelled.
// A nil confidence means the provider's default threshold.
type Provider interface {
	// Locate searches the current screen once for the pattern
	Locate(ctx context.Context, pattern string, confidence *float64) (Region, bool, error)

	// Click moves the pointer to the region's center and presses the primary button
	Click(ctx context.Context, region Region) error

	// WaitFor polls every pollInterval until the pattern appears (or disappears,
	// when appear is false) and reports whether that happened before timeout
	WaitFor(ctx context.Context, pattern string, timeout, pollInterval time.Duration, confidence *float64, appear bool) (bool, error)
}

// ProviderPanicError wraps a panic raised inside a provider call
type ProviderPanicError struct {
	Op    string
	Value any
}

func (e *ProviderPanicError) Error() string {
	return fmt.Sprintf("provider %s panicked: %v", e.Op, e.Value)
}

// guard runs a provider call and turns a panic into an error
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProviderPanicError{Op: op, Value: r}
		}
	}()
	return fn()
}
