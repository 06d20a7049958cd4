package types

import (
	"math"
	"testing"

	"github.com/menta2k/page-rectifier/pkg/geometry"
)

func TestSuccessRate(t *testing.T) {
	if r := (BatchReport{}).SuccessRate(); r != 0 {
		t.Errorf("Expected 0 for empty report, got %f", r)
	}
	r := BatchReport{TotalImages: 4, Successful: 3, Failed: 1}
	if got := r.SuccessRate(); got != 0.75 {
		t.Errorf("Expected 0.75, got %f", got)
	}
}

func TestSpineXAt(t *testing.T) {
	s := SpineInfo{XPosition: 500, AngleDegrees: 0}
	if x := s.XAt(0, 1400); x != 500 {
		t.Errorf("Expected vertical spine at 500, got %f", x)
	}

	tilted := SpineInfo{XPosition: 500, AngleDegrees: 45}
	if x := tilted.XAt(800, 1400); math.Abs(x-600) > 1e-9 {
		t.Errorf("Expected 600 at y=800, got %f", x)
	}
	if x := tilted.XAt(700, 1400); math.Abs(x-500) > 1e-9 {
		t.Errorf("Expected 500 at mid-height, got %f", x)
	}
}

func TestBoundaryScaled(t *testing.T) {
	b := PageBoundary{
		Corners: [4]geometry.Point2D{{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 2}, {X: 1, Y: 2}},
		Area:    2,
	}
	s := b.Scaled(2)
	if s.Corners[2] != (geometry.Point2D{X: 6, Y: 4}) {
		t.Errorf("Unexpected scaled corner %v", s.Corners[2])
	}
	if s.Area != 8 {
		t.Errorf("Expected area 8, got %f", s.Area)
	}
	if b.Corners[2].X != 3 {
		t.Error("Scaled must not modify the receiver")
	}
}

func TestPageSideSuffix(t *testing.T) {
	cases := map[PageSide]string{SideLeft: "_left", SideRight: "_right", SideSingle: "_single"}
	for side, want := range cases {
		if got := side.Suffix(); got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}
