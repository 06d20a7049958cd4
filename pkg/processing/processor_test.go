package processing

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/menta2k/page-rectifier/pkg/geometry"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// createTextPage draws dark horizontal bars ("text lines") on a light page
func createTextPage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{235, 230, 220, 255}
			if y%20 >= 14 && x > width/10 && x < width*9/10 {
				c = color.RGBA{40, 40, 40, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocessReturnsGrayWithSameGeometry(t *testing.T) {
	p := NewPreprocessor(DefaultPreprocessConfig())
	src := createTextPage(200, 300)

	out, err := p.Preprocess(src)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if out.Bounds().Dx() != 200 || out.Bounds().Dy() != 300 {
		t.Errorf("Expected 200x300, got %v", out.Bounds())
	}

	again, err := p.Preprocess(src)
	if err != nil {
		t.Fatal(err)
	}
	for i := range out.Pix {
		if out.Pix[i] != again.Pix[i] {
			t.Fatalf("Expected deterministic output, pixel %d differs", i)
		}
	}
}

func meanAbsDiff(a, b *image.Gray) float64 {
	sum := 0.0
	for i := range a.Pix {
		sum += math.Abs(float64(a.Pix[i]) - float64(b.Pix[i]))
	}
	return sum / float64(len(a.Pix))
}

func TestPreprocessIsStableUnderRepetition(t *testing.T) {
	p := NewPreprocessor(DefaultPreprocessConfig())

	once, err := p.Preprocess(createTextPage(400, 600))
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	twice, err := p.Preprocess(once)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	thrice, err := p.Preprocess(twice)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}

	first := meanAbsDiff(once, twice)
	second := meanAbsDiff(twice, thrice)
	if first > 5 {
		t.Errorf("Expected a second pass to change pixels by at most 5 levels, got %.3f", first)
	}
	if second > first+0.01 {
		t.Errorf("Expected repeated passes to converge, got %.3f then %.3f", first, second)
	}
}

func TestPreprocessStretchesContrast(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			v := uint8(100)
			if x >= 50 {
				v = 150
			}
			src.SetGray(x, y, color.Gray{Y: v})
		}
	}

	out, err := NewPreprocessor(DefaultPreprocessConfig()).Preprocess(src)
	if err != nil {
		t.Fatal(err)
	}
	if v := out.GrayAt(5, 50).Y; v > 10 {
		t.Errorf("Expected dark side stretched towards 0, got %d", v)
	}
	if v := out.GrayAt(95, 50).Y; v < 245 {
		t.Errorf("Expected bright side stretched towards 255, got %d", v)
	}
}

func TestPreprocessNilImage(t *testing.T) {
	if _, err := NewPreprocessor(DefaultPreprocessConfig()).Preprocess(nil); err == nil {
		t.Error("Expected error for nil image")
	}
}

func TestBlurSigmaScalesWithResolution(t *testing.T) {
	p := NewPreprocessor(DefaultPreprocessConfig())

	if s := p.BlurSigma(1400, 1000); s < 0.79 || s > 0.81 {
		t.Errorf("Expected sigma 0.8, got %f", s)
	}
	if s := p.BlurSigma(100, 100); s != 0.5 {
		t.Errorf("Expected sigma clamped to 0.5, got %f", s)
	}
	if s := p.BlurSigma(20000, 20000); s != 3.0 {
		t.Errorf("Expected sigma clamped to 3.0, got %f", s)
	}
}

func TestPostprocessPreservesChannels(t *testing.T) {
	p := NewPostprocessor(DefaultPostprocessConfig())

	gray := image.NewGray(image.Rect(0, 0, 120, 120))
	src := createTextPage(120, 120)
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			gray.Set(x, y, src.At(x, y))
		}
	}

	out, err := p.Postprocess(gray)
	if err != nil {
		t.Fatalf("Postprocess failed: %v", err)
	}
	if _, ok := out.(*image.Gray); !ok {
		t.Errorf("Expected *image.Gray output, got %T", out)
	}

	colorOut, err := p.Postprocess(src)
	if err != nil {
		t.Fatalf("Postprocess failed: %v", err)
	}
	if m := Measure(colorOut); m.Channels != 3 {
		t.Errorf("Expected 3 channels, got %d", m.Channels)
	}
}

func TestPostprocessKeepsQuality(t *testing.T) {
	src := createTextPage(160, 160)
	out, err := NewPostprocessor(DefaultPostprocessConfig()).Postprocess(src)
	if err != nil {
		t.Fatalf("Postprocess failed: %v", err)
	}
	if Sharpness(out) < 0.9*Sharpness(src) {
		t.Errorf("Sharpness dropped: %f -> %f", Sharpness(src), Sharpness(out))
	}
	if Contrast(out) < 0.9*Contrast(src) {
		t.Errorf("Contrast dropped: %f -> %f", Contrast(src), Contrast(out))
	}
}

func TestPostprocessRejectsContrastLoss(t *testing.T) {
	cfg := DefaultPostprocessConfig()
	cfg.SharpenSigma = 0
	cfg.ContrastPercent = -30

	_, err := NewPostprocessor(cfg).Postprocess(createTextPage(100, 100))
	if err == nil {
		t.Fatal("Expected validation failure")
	}
	if !errors.Is(err, ErrQualityRegression) {
		t.Errorf("Expected ErrQualityRegression, got %v", err)
	}
}

func TestCreateDebugOverlay(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	boundary := types.PageBoundary{Corners: [4]geometry.Point2D{
		{X: 10, Y: 10}, {X: 90, Y: 10}, {X: 90, Y: 90}, {X: 10, Y: 90},
	}}
	spine := &types.SpineInfo{Detected: true, IsTwoPage: true, XPosition: 50}

	out := CreateDebugOverlay(img, spine, []types.PageBoundary{boundary})
	nrgba, ok := out.(*image.NRGBA)
	if !ok {
		t.Fatalf("Expected *image.NRGBA, got %T", out)
	}

	if c := nrgba.NRGBAAt(30, 10); c != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("Expected boundary color on top edge, got %v", c)
	}
	if c := nrgba.NRGBAAt(50, 30); c != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("Expected spine color, got %v", c)
	}
	if c := img.RGBAAt(30, 10); c.G != 0 {
		t.Error("Overlay must not modify the source image")
	}
}
