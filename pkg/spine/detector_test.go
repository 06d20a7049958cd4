package spine

import (
	"image"
	"math"
	"testing"

	"github.com/menta2k/page-rectifier/pkg/failure"
)

// createSpread renders two text pages separated by a dark gutter with a soft
// binding shadow. The gutter passes through (spineX, h/2) tilted by angle degrees.
func createSpread(w, h, spineX int, angle float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	t := math.Tan(angle * math.Pi / 180)
	for y := 0; y < h; y++ {
		sx := float64(spineX) + (float64(y)-float64(h)/2)*t
		for x := 0; x < w; x++ {
			d := float64(x) - sx
			v := 225.0
			inText := y%40 >= 20 && y%40 < 28 && y > 100 && y < h-100
			if inText && ((x > w*6/100 && d < -float64(w)*0.08) || (x < w*94/100 && d > float64(w)*0.08)) {
				v = 40
			}
			v -= 120 * math.Exp(-d*d/(2*25*25))
			if math.Abs(d) < 2 {
				v = 20
			}
			if v < 0 {
				v = 0
			}
			img.Pix[y*img.Stride+x] = uint8(v)
		}
	}
	return img
}

// createSinglePage renders text lines running across the whole page
func createSinglePage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(225)
			if y%40 >= 20 && y%40 < 28 && y > 80 && y < h-80 && x > 50 && x < w-50 {
				v = 40
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img
}

func TestDetectSpineOnSpread(t *testing.T) {
	d := New()
	info, err := d.DetectSpine(createSpread(1000, 1400, 500, 0))
	if err != nil {
		t.Fatalf("DetectSpine failed: %v", err)
	}

	if !info.Detected || !info.IsTwoPage {
		t.Fatalf("Expected a two-page spread, got %+v", info)
	}
	if info.XPosition < 300 || info.XPosition > 700 {
		t.Errorf("Spine %d outside the central band", info.XPosition)
	}
	if math.Abs(float64(info.XPosition-500)) > 10 {
		t.Errorf("Expected spine near 500, got %d", info.XPosition)
	}
	if math.Abs(info.AngleDegrees) > 0.5 {
		t.Errorf("Expected vertical spine, got %.2f degrees", info.AngleDegrees)
	}
	if info.Confidence < 0.5 {
		t.Errorf("Expected confident detection, got %.2f", info.Confidence)
	}
}

func TestDetectSpineTilted(t *testing.T) {
	info, err := New().DetectSpine(createSpread(1000, 1400, 520, 2))
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsTwoPage {
		t.Fatalf("Expected a spread, got %+v", info)
	}
	if math.Abs(info.AngleDegrees-2) > 0.75 {
		t.Errorf("Expected angle near 2 degrees, got %.2f", info.AngleDegrees)
	}
	if math.Abs(float64(info.XPosition-520)) > 12 {
		t.Errorf("Expected spine near 520 at mid-height, got %d", info.XPosition)
	}
}

func TestDetectSpineSinglePage(t *testing.T) {
	info, err := New().DetectSpine(createSinglePage(700, 1000))
	if err != nil {
		t.Fatalf("DetectSpine failed: %v", err)
	}
	if info.Detected || info.IsTwoPage {
		t.Errorf("Expected single page, got %+v", info)
	}
}

func TestDetectSpineInvalidInput(t *testing.T) {
	d := New()
	if _, err := d.DetectSpine(nil); !failure.Is(err, failure.SpineDetection) {
		t.Errorf("Expected SpineDetection failure for nil image, got %v", err)
	}
	if _, err := d.DetectSpine(image.NewGray(image.Rect(0, 0, 4, 4))); !failure.Is(err, failure.SpineDetection) {
		t.Errorf("Expected SpineDetection failure for tiny image, got %v", err)
	}
}

func TestCombine(t *testing.T) {
	d := New()

	// Agreement reinforces confidence and averages position.
	s, ok := d.combine(signal{x: 100, angle: 1, confidence: 0.6}, signal{x: 104, confidence: 0.6}, 10)
	if !ok {
		t.Fatal("Expected a combined signal")
	}
	if s.x != 102 || s.angle != 1 {
		t.Errorf("Unexpected combined signal %+v", s)
	}
	if math.Abs(s.confidence-0.84) > 1e-9 {
		t.Errorf("Expected confidence 0.84, got %f", s.confidence)
	}

	// Disagreement prefers the shadow with reduced confidence.
	s, ok = d.combine(signal{x: 100, confidence: 0.9}, signal{x: 150, confidence: 0.8}, 10)
	if !ok || s.x != 150 {
		t.Fatalf("Expected shadow position, got %+v", s)
	}
	if math.Abs(s.confidence-0.6) > 1e-9 {
		t.Errorf("Expected reduced confidence 0.6, got %f", s.confidence)
	}

	// A weak lone signal is halved.
	s, _ = d.combine(signal{x: 100, confidence: 0.6}, signal{}, 10)
	if math.Abs(s.confidence-0.3) > 1e-9 {
		t.Errorf("Expected halved confidence, got %f", s.confidence)
	}

	if _, ok := d.combine(signal{}, signal{}, 10); ok {
		t.Error("Expected no candidate without signals")
	}
}

func TestBorderlineFlag(t *testing.T) {
	cfg := DefaultConfig()
	// A threshold right at the achievable confidence makes the decision borderline.
	cfg.MinConfidence = 0.95
	cfg.BorderlineMargin = 0.2
	info, err := NewWithConfig(cfg).DetectSpine(createSpread(1000, 1400, 500, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !info.Borderline {
		t.Errorf("Expected borderline decision, got %+v", info)
	}
}
