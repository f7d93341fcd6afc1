package vision

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/jeeftor/qmp-macro/internal/constants"
	"github.com/jeeftor/qmp-macro/internal/engine"
	"github.com/jeeftor/qmp-macro/internal/logging"
)

// Options configures a Provider
type Options struct {
	Tolerance         uint8
	DefaultConfidence float64
}

// DefaultOptions returns the matcher defaults
func DefaultOptions() Options {
	return Options{
		Tolerance:         constants.DefaultTolerance,
		DefaultConfidence: constants.DefaultConfidence,
	}
}

// Provider implements engine.Provider with template matching on captured frames
type Provider struct {
	screen   Screen
	pointer  Pointer
	patterns *Patterns
	matcher  Matcher
	conf     float64

	mu    sync.Mutex
	frame image.Point
}

var _ engine.Provider = (*Provider)(nil)

// NewProvider creates a provider
func NewProvider(screen Screen, pointer Pointer, patterns *Patterns, opts Options) *Provider {
	if opts.DefaultConfidence <= 0 || opts.DefaultConfidence > 1 {
		opts.DefaultConfidence = constants.DefaultConfidence
	}
	return &Provider{
		screen:   screen,
		pointer:  pointer,
		patterns: patterns,
		matcher:  Matcher{Tolerance: opts.Tolerance},
		conf:     opts.DefaultConfidence,
	}
}

// Locate captures one frame and searches it for the pattern. A pattern that
// cannot be loaded is reported as not found; capture errors are returned.
func (p *Provider) Locate(ctx context.Context, pattern string, confidence *float64) (engine.Region, bool, error) {
	tmpl, err := p.patterns.Load(pattern)
	if err != nil {
		logging.Warn("Pattern unavailable", "pattern", pattern, "error", err)
		return engine.Region{}, false, nil
	}

	frame, err := p.screen.Capture(ctx)
	if err != nil {
		return engine.Region{}, false, err
	}
	b := frame.Bounds()
	p.mu.Lock()
	p.frame = image.Pt(b.Dx(), b.Dy())
	p.mu.Unlock()

	threshold := p.conf
	if confidence != nil {
		threshold = *confidence
	}
	m, ok, err := p.matcher.Find(frame, tmpl, threshold)
	if err != nil {
		logging.Warn("Pattern unusable", "pattern", pattern, "error", err)
		return engine.Region{}, false, nil
	}
	if !ok {
		logging.Debug("Pattern not on screen", "pattern", pattern, "threshold", threshold)
		return engine.Region{}, false, nil
	}
	logging.Debug("Pattern located", "pattern", pattern, "rect", m.Rect, "score", m.Score)
	return engine.Region{X: m.Rect.Min.X, Y: m.Rect.Min.Y, Width: m.Rect.Dx(), Height: m.Rect.Dy()}, true, nil
}

// Click presses the primary button at the center of region
func (p *Provider) Click(ctx context.Context, region engine.Region) error {
	x, y := region.Center()
	p.mu.Lock()
	frame := p.frame
	p.mu.Unlock()
	logging.Debug("Clicking", "x", x, "y", y, "frame", frame)
	return p.pointer.ClickAt(ctx, x, y, frame)
}

// WaitFor polls until the pattern's visibility equals appear or timeout passes.
// At least one check is made even with a zero timeout.
func (p *Provider) WaitFor(ctx context.Context, pattern string, timeout, pollInterval time.Duration, confidence *float64, appear bool) (bool, error) {
	if pollInterval < constants.MinPollInterval {
		pollInterval = constants.MinPollInterval
	}
	deadline := time.Now().Add(timeout)

	for {
		_, found, err := p.Locate(ctx, pattern, confidence)
		if err != nil {
			return false, err
		}
		if found == appear {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
	}
}
