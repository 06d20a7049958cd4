package vision

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// createTestImage draws a bright rectangle on a dark background
func createTestImage(width, height int, rect image.Rectangle) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if image.Pt(x, y).In(rect) {
				img.Set(x, y, color.RGBA{230, 230, 230, 255})
			} else {
				img.Set(x, y, color.RGBA{30, 30, 30, 255})
			}
		}
	}
	return img
}

func TestFromImage(t *testing.T) {
	img := createTestImage(40, 30, image.Rect(10, 10, 30, 20))
	g := FromImage(img)

	if g.W != 40 || g.H != 30 {
		t.Fatalf("Expected 40x30, got %dx%d", g.W, g.H)
	}
	if v := g.At(15, 15); math.Abs(v-230) > 1 {
		t.Errorf("Expected bright pixel ~230, got %f", v)
	}
	if v := g.At(0, 0); math.Abs(v-30) > 1 {
		t.Errorf("Expected dark pixel ~30, got %f", v)
	}
	// Clamped access outside the image
	if v := g.At(-5, -5); v != g.At(0, 0) {
		t.Errorf("Expected clamped access, got %f", v)
	}
}

func TestFromGrayRoundTrip(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 8, 4))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	g := FromImage(src)
	back := g.ToImage()
	for i := range src.Pix {
		if back.Pix[i] != src.Pix[i] {
			t.Fatalf("pixel %d: expected %d, got %d", i, src.Pix[i], back.Pix[i])
		}
	}
}

func TestCannyFindsRectangleOutline(t *testing.T) {
	rect := image.Rect(20, 15, 80, 65)
	g := FromImage(createTestImage(100, 80, rect))
	edges := Canny(g, 50, 150)

	if edges.Count() == 0 {
		t.Fatal("Expected edges to be detected")
	}
	// The interior and the far background must stay empty.
	if edges.Get(50, 40) {
		t.Error("Expected no edge inside the rectangle")
	}
	if edges.Get(5, 5) {
		t.Error("Expected no edge in the background")
	}
	// Some edge pixel must lie within one pixel of the left border.
	found := false
	for x := rect.Min.X - 1; x <= rect.Min.X; x++ {
		if edges.Get(x, 40) {
			found = true
		}
	}
	if !found {
		t.Error("Expected an edge on the left border")
	}
}

func TestOtsuSeparatesClasses(t *testing.T) {
	g := FromImage(createTestImage(60, 60, image.Rect(0, 0, 30, 60)))
	th := Otsu(g)
	if th < 30 || th >= 230 {
		t.Errorf("Expected threshold between classes, got %f", th)
	}
	m := Threshold(g, th, true)
	if m.Count() != 30*60 {
		t.Errorf("Expected %d bright pixels, got %d", 30*60, m.Count())
	}
}

func TestComponents(t *testing.T) {
	m := NewMask(20, 10)
	// Two separate blobs.
	for y := 1; y < 4; y++ {
		for x := 1; x < 4; x++ {
			m.Pix[y*20+x] = true
		}
	}
	for y := 5; y < 9; y++ {
		for x := 10; x < 18; x++ {
			m.Pix[y*20+x] = true
		}
	}
	// A single isolated pixel, dropped by minSize.
	m.Pix[0*20+19] = true

	comps := Components(m, 2)
	if len(comps) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(comps))
	}
	if comps[0].Size() != 9 {
		t.Errorf("Expected first component of 9 pixels, got %d", comps[0].Size())
	}
	if comps[1].Bounds != image.Rect(10, 5, 18, 9) {
		t.Errorf("Unexpected bounds %v", comps[1].Bounds)
	}
}

func TestDilate(t *testing.T) {
	m := NewMask(9, 9)
	m.Pix[4*9+4] = true
	d := Dilate(m, 1)
	if d.Count() != 9 {
		t.Errorf("Expected 3x3 block after dilation, got %d pixels", d.Count())
	}
	if !d.Get(3, 3) || !d.Get(5, 5) || d.Get(6, 4) {
		t.Error("Unexpected dilation footprint")
	}
}

func TestProfilesAndSmooth(t *testing.T) {
	g := NewGray(4, 2)
	copy(g.Pix, []float64{0, 10, 20, 30, 0, 10, 20, 30})

	cols := ColumnMeans(g, 0, 4, 0, 2)
	for i, want := range []float64{0, 10, 20, 30} {
		if cols[i] != want {
			t.Errorf("column %d: expected %f, got %f", i, want, cols[i])
		}
	}
	rows := RowMeans(g, 0, 4, 0, 2)
	if rows[0] != 15 || rows[1] != 15 {
		t.Errorf("Expected row means of 15, got %v", rows)
	}

	sm := Smooth([]float64{0, 0, 9, 0, 0}, 1)
	if sm[2] != 3 || sm[0] != 0 {
		t.Errorf("Unexpected smoothing %v", sm)
	}
	if m := Median([]float64{5, 1, 3}); m != 3 {
		t.Errorf("Expected median 3, got %f", m)
	}
}

func TestDownscale(t *testing.T) {
	g := NewGray(400, 200)
	small, scale := Downscale(g, 100)
	if small.W != 100 || small.H != 50 {
		t.Errorf("Expected 100x50, got %dx%d", small.W, small.H)
	}
	if scale != 4 {
		t.Errorf("Expected scale 4, got %f", scale)
	}
	same, s := Downscale(g, 1000)
	if same != g || s != 1 {
		t.Error("Expected no-op for small images")
	}
}

func TestRemap(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range src.Pix {
		src.Pix[i] = uint8(i)
	}

	identity := Remap(src, 10, 10, func(x, y float64) (float64, float64) { return x, y }, 255).(*image.Gray)
	for i := range src.Pix {
		if identity.Pix[i] != src.Pix[i] {
			t.Fatalf("pixel %d: expected %d, got %d", i, src.Pix[i], identity.Pix[i])
		}
	}

	shifted := Remap(src, 10, 10, func(x, y float64) (float64, float64) { return x + 20, y }, 255).(*image.Gray)
	if shifted.Pix[0] != 255 {
		t.Errorf("Expected fill outside the source, got %d", shifted.Pix[0])
	}

	// Halfway between 2 and 3 rounds up.
	half := Remap(src, 10, 10, func(x, y float64) (float64, float64) { return x + 0.5, y }, 255).(*image.Gray)
	if half.GrayAt(2, 0).Y != 3 {
		t.Errorf("Expected interpolated value 3, got %d", half.GrayAt(2, 0).Y)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if _, ok := Remap(rgba, 4, 4, func(x, y float64) (float64, float64) { return x, y }, 0).(*image.NRGBA); !ok {
		t.Error("Expected *image.NRGBA for color input")
	}
}
