package resource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/jeeftor/qmp-macro/internal/constants"
	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/vision"
)

// ErrExists is returned when a capture would overwrite a file
var ErrExists = errors.New("file already exists")

// CaptureOptions configures CaptureRegion
type CaptureOptions struct {
	// Region to crop; the empty rectangle keeps the whole frame
	Region    image.Rectangle
	Overwrite bool
}

// CaptureRegion grabs one frame, crops it and saves it as a PNG
func CaptureRegion(ctx context.Context, screen vision.Screen, outputFile string, opts CaptureOptions) (image.Rectangle, error) {
	if !opts.Overwrite {
		if _, err := os.Stat(outputFile); err == nil {
			return image.Rectangle{}, fmt.Errorf("%w: %s", ErrExists, outputFile)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ScreenshotTimeout)
	defer cancel()

	frame, err := screen.Capture(ctx)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("failed to capture frame: %w", err)
	}

	region := opts.Region
	if region.Empty() {
		b := frame.Bounds()
		region = image.Rect(0, 0, b.Dx(), b.Dy())
	}
	cropped, err := vision.Crop(frame, region)
	if err != nil {
		return image.Rectangle{}, err
	}
	if err := vision.SavePNG(outputFile, cropped); err != nil {
		return image.Rectangle{}, err
	}

	logging.Debug("Saved capture", "file", outputFile, "region", region)
	return region, nil
}
