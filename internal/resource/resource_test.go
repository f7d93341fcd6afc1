package resource

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeftor/qmp-macro/internal/vision"
)

func TestContextManagerSignalCancels(t *testing.T) {
	cm := newContextManager()
	defer cm.Shutdown()

	ctx, cancel := cm.WithTimeout(0)
	defer cancel()

	cm.signals <- syscallInterrupt{}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled by signal")
	}
	assert.False(t, cm.IsActive())
}

func TestContextManagerShutdownRunsCleanup(t *testing.T) {
	cm := newContextManager()

	var order []int
	rm := cm.GetResourceManager()
	rm.AddCleanupFunc(func() error { order = append(order, 1); return nil })
	rm.AddCleanupFunc(func() error { order = append(order, 2); return errors.New("second failed") })

	err := cm.Shutdown()
	assert.ErrorContains(t, err, "second failed")
	assert.Equal(t, []int{2, 1}, order)
	assert.False(t, cm.IsActive())

	assert.NoError(t, cm.Shutdown())
	_, err = rm.Connect(context.Background(), "1", "/nonexistent.sock")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConnectFailure(t *testing.T) {
	rm := NewResourceManager()
	_, err := rm.Connect(context.Background(), "1", filepath.Join(t.TempDir(), "missing.qmp"))
	assert.Error(t, err)
	assert.Equal(t, 0, rm.Stats()["connections"])
}

func TestCaptureRegion(t *testing.T) {
	dir := t.TempDir()
	frame := image.NewRGBA(image.Rect(0, 0, 40, 30))
	frame.Set(12, 7, color.RGBA{R: 255, A: 255})
	framePath := filepath.Join(dir, "frame.png")
	require.NoError(t, vision.SavePNG(framePath, frame))

	out := filepath.Join(dir, "images", "button.png")
	screen := vision.FileScreen{Path: framePath}

	region, err := CaptureRegion(context.Background(), screen, out, CaptureOptions{Region: image.Rect(10, 5, 20, 15)})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(10, 5, 20, 15), region)

	img, err := vision.DecodeFile(out)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
	r, _, _, _ := img.At(2, 2).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	_, err = CaptureRegion(context.Background(), screen, out, CaptureOptions{})
	assert.ErrorIs(t, err, ErrExists)

	region, err = CaptureRegion(context.Background(), screen, out, CaptureOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), region)

	_, err = CaptureRegion(context.Background(), screen, filepath.Join(dir, "x.png"), CaptureOptions{Region: image.Rect(30, 20, 50, 40)})
	assert.Error(t, err)
}

// syscallInterrupt stands in for a delivered signal
type syscallInterrupt struct{}

func (syscallInterrupt) String() string { return "interrupt" }
func (syscallInterrupt) Signal()        {}
