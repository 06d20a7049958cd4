// Package cropper cuts a two-page spread into its left and right pages along
// a possibly tilted spine line.
package cropper

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// Config holds configuration for splitting
type Config struct {
	// MarginRatio is the safety margin, as a fraction of the spread width,
	// each page keeps beyond the spine.
	MarginRatio float64 `json:"margin_ratio" yaml:"margin_ratio"`
	// FillValue paints pixels on the far side of the sheared cut.
	FillValue uint8 `json:"fill_value" yaml:"fill_value"`
}

// DefaultConfig returns a 2% margin and white fill.
func DefaultConfig() Config {
	return Config{MarginRatio: 0.02, FillValue: 255}
}

// Splitter separates spreads into pages
type Splitter struct {
	config Config
}

// New creates a new Splitter with default configuration
func New() *Splitter {
	return &Splitter{config: DefaultConfig()}
}

// NewWithConfig creates a new Splitter with custom configuration
func NewWithConfig(config Config) *Splitter {
	return &Splitter{config: config}
}

// Margin returns the margin in pixels for a spread of the given width.
func (s *Splitter) Margin(width int) int {
	return int(math.Round(s.config.MarginRatio * float64(width)))
}

// SplitAlongSpine returns the left and right pages of img. The cut follows
// spine.XAt for every row, so tilted spines are honored; each page keeps its
// side plus the margin and everything further across the cut is filled.
// *image.Gray input yields *image.Gray pages, anything else *image.NRGBA.
func (s *Splitter) SplitAlongSpine(img image.Image, spine types.SpineInfo) (image.Image, image.Image, error) {
	if img == nil {
		return nil, nil, fmt.Errorf("input image is nil")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if !spine.IsTwoPage {
		return nil, nil, failure.Newf(failure.SpineDetection, "split", "image is not a two-page spread")
	}
	if spine.XPosition <= 0 || spine.XPosition >= w {
		return nil, nil, failure.Newf(failure.SpineDetection, "split",
			"spine x=%d outside image width %d", spine.XPosition, w)
	}

	margin := float64(s.Margin(w))
	cuts := make([]float64, h)
	for y := 0; y < h; y++ {
		cuts[y] = spine.XAt(float64(y), h)
	}
	leftW, rightX := s.Extents(w, h, spine)

	left := s.page(img, image.Rect(0, 0, leftW, h), func(x, y int) bool {
		return float64(x) > cuts[y]+margin
	})
	right := s.page(img, image.Rect(rightX, 0, w, h), func(x, y int) bool {
		return float64(x) < cuts[y]-margin
	})
	return left, right, nil
}

// Extents returns the width of the left page and the x offset of the right
// page inside a w x h spread.
func (s *Splitter) Extents(w, h int, spine types.SpineInfo) (int, int) {
	margin := float64(s.Margin(w))
	top, bottom := spine.XAt(0, h), spine.XAt(float64(h-1), h)
	minX, maxX := math.Min(top, bottom), math.Max(top, bottom)
	leftW := clampInt(int(math.Ceil(maxX+margin)), 1, w)
	rightX := clampInt(int(math.Floor(minX-margin)), 0, w-1)
	return leftW, rightX
}

// page crops rect (relative to img's origin) and fills every pixel for which
// outside reports true. outside receives coordinates of the full spread.
func (s *Splitter) page(img image.Image, rect image.Rectangle, outside func(x, y int) bool) image.Image {
	b := img.Bounds()
	abs := rect.Add(b.Min)

	if gray, ok := img.(*image.Gray); ok {
		out := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		for y := 0; y < rect.Dy(); y++ {
			src := gray.Pix[gray.PixOffset(abs.Min.X, abs.Min.Y+y):]
			dst := out.Pix[y*out.Stride:]
			copy(dst[:rect.Dx()], src[:rect.Dx()])
			for x := 0; x < rect.Dx(); x++ {
				if outside(rect.Min.X+x, rect.Min.Y+y) {
					dst[x] = s.config.FillValue
				}
			}
		}
		return out
	}

	out := imaging.Crop(img, abs)
	v := s.config.FillValue
	for y := 0; y < out.Bounds().Dy(); y++ {
		i := y * out.Stride
		for x := 0; x < out.Bounds().Dx(); x++ {
			if outside(rect.Min.X+x, rect.Min.Y+y) {
				out.Pix[i+0] = v
				out.Pix[i+1] = v
				out.Pix[i+2] = v
				out.Pix[i+3] = 255
			}
			i += 4
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
