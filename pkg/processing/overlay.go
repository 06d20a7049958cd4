package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/page-rectifier/pkg/geometry"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// CreateDebugOverlay draws the detected spine and page quadrilaterals on a
// copy of img. A nil spine or an empty boundary list is allowed.
func CreateDebugOverlay(img image.Image, spine *types.SpineInfo, boundaries []types.PageBoundary) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	// Colors
	green := color.NRGBA{0, 255, 0, 255}  // page boundary
	red := color.NRGBA{255, 0, 0, 255}    // confident spine
	gold := color.NRGBA{255, 204, 0, 255} // borderline spine
	blue := color.NRGBA{0, 170, 255, 255} // image center
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h))))

	for _, b := range boundaries {
		for i := 0; i < 4; i++ {
			drawSegment(nrgba, b.Corners[i], b.Corners[(i+1)%4], green, stroke)
		}
	}

	if spine != nil && spine.IsTwoPage {
		c := red
		if spine.Borderline {
			c = gold
		}
		top := geometry.Pt(spine.XAt(0, h), 0)
		bottom := geometry.Pt(spine.XAt(float64(h-1), h), float64(h-1))
		drawSegment(nrgba, top, bottom, c, stroke)
	}

	// Draw image center marker
	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

// drawSegment walks the longer axis of a-b and paints a stroke-wide run
// across the shorter one at every step.
func drawSegment(img *image.NRGBA, a, b geometry.Point2D, c color.NRGBA, stroke int) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if steps == 0 {
		steps = 1
	}
	half := stroke / 2
	horizontal := math.Abs(dx) >= math.Abs(dy)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Round(a.X + t*dx))
		y := int(math.Round(a.Y + t*dy))
		if horizontal {
			drawVLine(img, x, y-half, y-half+stroke, c)
		} else {
			drawHLine(img, y, x-half, x-half+stroke, c)
		}
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
