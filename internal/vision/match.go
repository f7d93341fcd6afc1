package vision

import (
	"errors"
	"image"
	"math"
)

// ErrEmptyTemplate is returned for templates without opaque pixels
var ErrEmptyTemplate = errors.New("template has no opaque pixels")

// Match is the best placement of a template on a screen
type Match struct {
	Rect  image.Rectangle
	Score float64
}

// Matcher finds templates by comparing pixels. A pixel matches when every
// channel is within Tolerance of the screen pixel. The score of a placement is
// the share of opaque template pixels that match.
type Matcher struct {
	Tolerance uint8
}

// Find returns the highest-scoring placement of tmpl in screen whose score is
// at least threshold. Template pixels with alpha below half are ignored.
func (m Matcher) Find(screen, tmpl image.Image, threshold float64) (Match, bool, error) {
	s := toRGBA(screen)
	t := toRGBA(tmpl)
	sw, sh := s.Rect.Dx(), s.Rect.Dy()
	tw, th := t.Rect.Dx(), t.Rect.Dy()
	if tw > sw || th > sh || tw == 0 || th == 0 {
		return Match{}, false, nil
	}

	// offsets of opaque template pixels
	mask := make([]int, 0, tw*th)
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			off := y*t.Stride + x*4
			if t.Pix[off+3] >= 0x80 {
				mask = append(mask, off)
			}
		}
	}
	total := len(mask)
	if total == 0 {
		return Match{}, false, ErrEmptyTemplate
	}

	threshold = math.Max(0, math.Min(1, threshold))
	maxMiss := total - int(math.Ceil(threshold*float64(total)))
	tol := int(m.Tolerance)

	bestMiss := -1
	var bestAt image.Point

	for y := 0; y <= sh-th; y++ {
	placement:
		for x := 0; x <= sw-tw; x++ {
			base := y*s.Stride + x*4
			miss := 0
			for _, off := range mask {
				ty, tx := off/t.Stride, (off%t.Stride)/4
				so := base + ty*s.Stride + tx*4
				if !near(s.Pix[so], t.Pix[off], tol) ||
					!near(s.Pix[so+1], t.Pix[off+1], tol) ||
					!near(s.Pix[so+2], t.Pix[off+2], tol) {
					miss++
					if miss > maxMiss {
						continue placement
					}
				}
			}
			bestMiss = miss
			bestAt = image.Pt(x, y)
			if miss == 0 {
				return Match{Rect: image.Rect(x, y, x+tw, y+th), Score: 1}, true, nil
			}
			maxMiss = miss - 1
		}
	}

	if bestMiss < 0 {
		return Match{}, false, nil
	}
	return Match{
		Rect:  image.Rectangle{Min: bestAt, Max: bestAt.Add(image.Pt(tw, th))},
		Score: float64(total-bestMiss) / float64(total),
	}, true, nil
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}
