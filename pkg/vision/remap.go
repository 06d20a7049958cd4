package vision

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// MapFunc returns the source position sampled for output pixel (x, y).
type MapFunc func(x, y float64) (float64, float64)

// Remap builds a w x h image whose pixel (x, y) is img sampled bilinearly at
// fn(x, y). Samples more than half a pixel outside img take fill.
// *image.Gray input yields *image.Gray; anything else yields *image.NRGBA.
func Remap(img image.Image, w, h int, fn MapFunc, fill uint8) image.Image {
	f := float64(fill)

	if gray, ok := img.(*image.Gray); ok {
		b := gray.Bounds()
		sample := func(x, y int) float64 {
			return float64(gray.Pix[gray.PixOffset(b.Min.X+x, b.Min.Y+y)])
		}
		out := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				sx, sy := fn(float64(x), float64(y))
				out.Pix[y*out.Stride+x] = clampByte(bilinear(sample, b.Dx(), b.Dy(), sx, sy, f))
			}
		}
		return out
	}

	src := imaging.Clone(img)
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	var channels [3]func(x, y int) float64
	for ch := range channels {
		channels[ch] = func(x, y int) float64 {
			return float64(src.Pix[y*src.Stride+x*4+ch])
		}
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := fn(float64(x), float64(y))
			i := y*out.Stride + x*4
			for ch, sample := range channels {
				out.Pix[i+ch] = clampByte(bilinear(sample, sw, sh, sx, sy, f))
			}
			out.Pix[i+3] = 255
		}
	}
	return out
}

func bilinear(sample func(x, y int) float64, w, h int, fx, fy, fill float64) float64 {
	if math.IsNaN(fx) || math.IsNaN(fy) || fx < -0.5 || fy < -0.5 || fx > float64(w)-0.5 || fy > float64(h)-0.5 {
		return fill
	}
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	ax := fx - float64(x0)
	ay := fy - float64(y0)
	x1, y1 := clampIndex(x0+1, w), clampIndex(y0+1, h)
	x0, y0 = clampIndex(x0, w), clampIndex(y0, h)
	top := sample(x0, y0)*(1-ax) + sample(x1, y0)*ax
	bot := sample(x0, y1)*(1-ax) + sample(x1, y1)*ax
	return top*(1-ay) + bot*ay
}

func clampIndex(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
