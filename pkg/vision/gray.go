// Package vision provides the low-level raster analysis shared by the
// geometric stages: a float intensity matrix, gradients, Canny edges, Otsu
// thresholding, connected components and projection profiles.
package vision

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Gray is a single-channel intensity image with values in [0, 255].
type Gray struct {
	W, H int
	Pix  []float64
}

// NewGray allocates a zeroed w x h intensity image.
func NewGray(w, h int) *Gray {
	return &Gray{W: w, H: h, Pix: make([]float64, w*h)}
}

// FromImage converts any image to luminance. *image.Gray is copied directly;
// everything else goes through imaging.Grayscale.
func FromImage(img image.Image) *Gray {
	b := img.Bounds()
	g := NewGray(b.Dx(), b.Dy())

	if src, ok := img.(*image.Gray); ok {
		for y := 0; y < g.H; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < g.W; x++ {
				g.Pix[y*g.W+x] = float64(row[x])
			}
		}
		return g
	}

	nrgba := imaging.Grayscale(img)
	for y := 0; y < g.H; y++ {
		i := y * nrgba.Stride
		for x := 0; x < g.W; x++ {
			g.Pix[y*g.W+x] = float64(nrgba.Pix[i])
			i += 4
		}
	}
	return g
}

// At returns the intensity at (x, y) with coordinates clamped to the image.
func (g *Gray) At(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= g.W {
		x = g.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.H {
		y = g.H - 1
	}
	return g.Pix[y*g.W+x]
}

// Set writes an intensity; out-of-range coordinates are ignored.
func (g *Gray) Set(x, y int, v float64) {
	if x < 0 || y < 0 || x >= g.W || y >= g.H {
		return
	}
	g.Pix[y*g.W+x] = v
}

// Bilinear samples the image at a fractional pixel position.
func (g *Gray) Bilinear(fx, fy float64) float64 {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	ax := fx - float64(x0)
	ay := fy - float64(y0)
	top := g.At(x0, y0)*(1-ax) + g.At(x0+1, y0)*ax
	bot := g.At(x0, y0+1)*(1-ax) + g.At(x0+1, y0+1)*ax
	return top*(1-ay) + bot*ay
}

// Clone returns a deep copy.
func (g *Gray) Clone() *Gray {
	out := &Gray{W: g.W, H: g.H, Pix: make([]float64, len(g.Pix))}
	copy(out.Pix, g.Pix)
	return out
}

// ToImage converts back to an 8-bit *image.Gray.
func (g *Gray) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.W, g.H))
	for i, v := range g.Pix {
		img.Pix[i] = clampByte(v)
	}
	return img
}

// Blur applies a Gaussian blur with the given sigma.
func Blur(g *Gray, sigma float64) *Gray {
	if sigma <= 0 {
		return g.Clone()
	}
	return FromImage(imaging.Blur(g.ToImage(), sigma))
}

// Downscale shrinks g so its longest side is at most maxDim and returns the
// factor that maps working coordinates back to g's coordinates.
func Downscale(g *Gray, maxDim int) (*Gray, float64) {
	longest := g.W
	if g.H > longest {
		longest = g.H
	}
	if maxDim <= 0 || longest <= maxDim {
		return g, 1
	}
	scale := float64(longest) / float64(maxDim)
	w := int(math.Round(float64(g.W) / scale))
	h := int(math.Round(float64(g.H) / scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	small := FromImage(imaging.Resize(g.ToImage(), w, h, imaging.Box))
	return small, float64(g.W) / float64(w)
}

// Mean returns the average intensity.
func (g *Gray) Mean() float64 {
	if len(g.Pix) == 0 {
		return 0
	}
	var sum float64
	for _, v := range g.Pix {
		sum += v
	}
	return sum / float64(len(g.Pix))
}

// GrayColor converts an intensity to a color.Gray.
func GrayColor(v float64) color.Gray {
	return color.Gray{Y: clampByte(v)}
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
