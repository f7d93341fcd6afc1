package vision

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/spakin/netpbm"
)

// DecodeFile reads a PPM/PGM/PBM, PNG or JPEG image
func DecodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode tries netpbm first, since QMP screendumps are PPM, then the registered formats
func Decode(r io.ReadSeeker) (image.Image, error) {
	var img image.Image
	img, err := netpbm.Decode(r, nil)
	if err == nil {
		return img, nil
	}
	if _, serr := r.Seek(0, io.SeekStart); serr != nil {
		return nil, fmt.Errorf("failed to rewind image: %w", serr)
	}
	img, _, err = image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// SavePNG writes img to path, creating parent directories
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return file.Close()
}

// Crop copies a rectangle of img into a new image anchored at the origin
func Crop(img image.Image, rect image.Rectangle) (*image.RGBA, error) {
	rect = rect.Add(img.Bounds().Min)
	if rect.Empty() || !rect.In(img.Bounds()) {
		return nil, fmt.Errorf("region %v outside image bounds %v", rect, img.Bounds())
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out, nil
}

// toRGBA returns img as an origin-anchored *image.RGBA, copying when needed
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
