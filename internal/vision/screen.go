package vision

import (
	"context"
	"fmt"
	"image"
)

// Screen captures the current frame
type Screen interface {
	Capture(ctx context.Context) (image.Image, error)
}

// Pointer clicks at a pixel of a frame of the given size
type Pointer interface {
	ClickAt(ctx context.Context, x, y int, frame image.Point) error
}

// FileScreen serves frames from an image file, re-read on every capture.
// It lets programs be exercised against a saved screendump.
type FileScreen struct {
	Path string
}

func (f FileScreen) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DecodeFile(f.Path)
}

// LogPointer records clicks instead of sending them
type LogPointer struct {
	Clicks []image.Point
}

func (l *LogPointer) ClickAt(ctx context.Context, x, y int, frame image.Point) error {
	if x < 0 || y < 0 || x >= frame.X || y >= frame.Y {
		return fmt.Errorf("click %d,%d outside frame %dx%d", x, y, frame.X, frame.Y)
	}
	l.Clicks = append(l.Clicks, image.Pt(x, y))
	return nil
}
