package cropper

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// createTestImage creates a spread whose left half is dark and right half mid-gray
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.RGBA{40, 40, 40, 255})
			} else {
				img.Set(x, y, color.RGBA{120, 120, 120, 255})
			}
		}
	}

	return img
}

func TestNew(t *testing.T) {
	splitter := New()
	if splitter == nil {
		t.Fatal("New() returned nil")
	}
	if splitter.config.MarginRatio != 0.02 {
		t.Errorf("Expected margin ratio 0.02, got %f", splitter.config.MarginRatio)
	}
	if splitter.Margin(1000) != 20 {
		t.Errorf("Expected 20px margin, got %d", splitter.Margin(1000))
	}
}

func TestSplitVerticalSpine(t *testing.T) {
	splitter := New()
	img := createTestImage(1000, 1400)
	spine := types.SpineInfo{Detected: true, IsTwoPage: true, XPosition: 500}

	left, right, err := splitter.SplitAlongSpine(img, spine)
	if err != nil {
		t.Fatalf("SplitAlongSpine failed: %v", err)
	}

	lb, rb := left.Bounds(), right.Bounds()
	if lb.Dy() != 1400 || rb.Dy() != 1400 {
		t.Errorf("Expected full height pages, got %v and %v", lb, rb)
	}
	for _, b := range []image.Rectangle{lb, rb} {
		if b.Dx() < 480 || b.Dx() > 540 {
			t.Errorf("Expected ~500px wide page, got %d", b.Dx())
		}
	}

	total := float64(lb.Dx()*lb.Dy() + rb.Dx()*rb.Dy())
	source := float64(1000 * 1400)
	if math.Abs(total-source)/source > 0.10 {
		t.Errorf("Page areas %f not within 10%% of source %f", total, source)
	}

	// Left page starts with left-page content, right page ends with right-page content.
	if r, _, _, _ := left.At(10, 700).RGBA(); r>>8 != 40 {
		t.Errorf("Unexpected left page content %d", r>>8)
	}
	if r, _, _, _ := right.At(rb.Dx()-10, 700).RGBA(); r>>8 != 120 {
		t.Errorf("Unexpected right page content %d", r>>8)
	}
}

func TestSplitTiltedSpineDoesNotCrossCut(t *testing.T) {
	splitter := NewWithConfig(Config{MarginRatio: 0.01, FillValue: 255})
	w, h := 800, 600
	spine := types.SpineInfo{Detected: true, IsTwoPage: true, XPosition: 400, AngleDegrees: 3}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray.Pix[y*gray.Stride+x] = 10
		}
	}

	left, right, err := splitter.SplitAlongSpine(gray, spine)
	if err != nil {
		t.Fatalf("SplitAlongSpine failed: %v", err)
	}
	lg, ok := left.(*image.Gray)
	if !ok {
		t.Fatalf("Expected *image.Gray page, got %T", left)
	}
	rg := right.(*image.Gray)

	margin := float64(splitter.Margin(w))
	// Top row: the spine leans left above mid-height, so the left page's far
	// columns lie past the cut and must be filled.
	cutTop := spine.XAt(0, h)
	for x := 0; x < lg.Bounds().Dx(); x++ {
		v := lg.GrayAt(x, 0).Y
		past := float64(x) > cutTop+margin
		if past && v != 255 {
			t.Fatalf("Left page pixel %d past the cut not filled", x)
		}
		if !past && v != 10 {
			t.Fatalf("Left page pixel %d inside the cut was modified", x)
		}
	}

	offset := int(math.Floor(spine.XAt(0, h) - margin))
	cutBottom := spine.XAt(float64(h-1), h)
	for x := 0; x < rg.Bounds().Dx(); x++ {
		v := rg.GrayAt(x, h-1).Y
		past := float64(x+offset) < cutBottom-margin
		if past && v != 255 {
			t.Fatalf("Right page pixel %d past the cut not filled", x)
		}
	}
}

func TestSplitRejectsSinglePage(t *testing.T) {
	splitter := New()
	img := createTestImage(100, 100)

	_, _, err := splitter.SplitAlongSpine(img, types.SpineInfo{})
	if !failure.Is(err, failure.SpineDetection) {
		t.Errorf("Expected SpineDetection failure, got %v", err)
	}

	_, _, err = splitter.SplitAlongSpine(img, types.SpineInfo{IsTwoPage: true, XPosition: 150})
	if !failure.Is(err, failure.SpineDetection) {
		t.Errorf("Expected SpineDetection failure for out-of-bounds spine, got %v", err)
	}
}
