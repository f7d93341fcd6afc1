package qmp

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/jeeftor/qmp-macro/internal/logging"
)

// Move sends an absolute pointer move to pixel (x, y) of a frame
func (q *Client) Move(ctx context.Context, x, y int, frame image.Point) error {
	_, err := q.Execute(ctx, Command{
		Execute: "input-send-event",
		Arguments: InputEvents{Events: []InputEvent{
			{Type: "abs", Data: AbsEvent{Axis: "x", Value: ScaleAbs(x, frame.X)}},
			{Type: "abs", Data: AbsEvent{Axis: "y", Value: ScaleAbs(y, frame.Y)}},
		}},
	})
	return err
}

// Button presses or releases a pointer button
func (q *Client) Button(ctx context.Context, button string, down bool) error {
	_, err := q.Execute(ctx, Command{
		Execute: "input-send-event",
		Arguments: InputEvents{Events: []InputEvent{
			{Type: "btn", Data: BtnEvent{Down: down, Button: button}},
		}},
	})
	return err
}

// Pointer clicks through a QMP client
type Pointer struct {
	Client *Client
	// Hold is how long the button stays down
	Hold time.Duration
}

// ClickAt moves to (x, y) and clicks the left button
func (p Pointer) ClickAt(ctx context.Context, x, y int, frame image.Point) error {
	if frame.X <= 0 || frame.Y <= 0 {
		return fmt.Errorf("unknown frame size; capture a frame before clicking")
	}
	logging.Debug("QMP click", "x", x, "y", y, "frame", frame)

	if err := p.Client.Move(ctx, x, y, frame); err != nil {
		return err
	}
	if err := p.Client.Button(ctx, "left", true); err != nil {
		return err
	}
	if p.Hold > 0 {
		t := time.NewTimer(p.Hold)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	// always release, even after cancellation
	return p.Client.Button(context.WithoutCancel(ctx), "left", false)
}

// Screen captures frames through a QMP client
type Screen struct {
	Client *Client
}

func (s Screen) Capture(ctx context.Context) (image.Image, error) {
	return s.Client.Capture(ctx)
}
