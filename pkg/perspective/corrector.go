// Package perspective maps a detected page quadrilateral onto an upright
// rectangle.
package perspective

import (
	"image"
	"math"

	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/geometry"
	"github.com/menta2k/page-rectifier/pkg/types"
	"github.com/menta2k/page-rectifier/pkg/vision"
)

// Config holds the correction tolerances.
type Config struct {
	// MaxEdgeDeviation is the largest angle, in degrees, a corrected edge may
	// deviate from its image border.
	MaxEdgeDeviation float64 `json:"max_edge_deviation" yaml:"max_edge_deviation"`
	// MaxAspectError is the allowed relative aspect ratio error.
	MaxAspectError float64 `json:"max_aspect_error" yaml:"max_aspect_error"`
	// MinCornerSine rejects quads with nearly collinear corners.
	MinCornerSine float64 `json:"min_corner_sine" yaml:"min_corner_sine"`
	MinSide       int     `json:"min_side" yaml:"min_side"`
	FillValue     uint8   `json:"fill_value" yaml:"fill_value"`
}

// DefaultConfig returns the 2 degree / 5% tolerances.
func DefaultConfig() Config {
	return Config{
		MaxEdgeDeviation: 2,
		MaxAspectError:   0.05,
		MinCornerSine:    0.05,
		MinSide:          16,
		FillValue:        255,
	}
}

// Corrector removes perspective skew.
type Corrector struct {
	config Config
}

// New creates a corrector with default configuration
func New() *Corrector {
	return &Corrector{config: DefaultConfig()}
}

// NewWithConfig creates a corrector with custom configuration
func NewWithConfig(config Config) *Corrector {
	return &Corrector{config: config}
}

// OutputSize returns the rectified size for a boundary: each side is the
// mean length of the two opposite edges.
func OutputSize(b types.PageBoundary) (int, int) {
	c := b.Corners
	w := (c[0].Distance(c[1]) + c[3].Distance(c[2])) / 2
	h := (c[0].Distance(c[3]) + c[1].Distance(c[2])) / 2
	return int(math.Round(w)), int(math.Round(h))
}

// Correct warps the boundary region of img to an upright rectangle with
// bilinear resampling. Gray input yields *image.Gray, anything else
// *image.NRGBA; samples outside img take FillValue. Degenerate
// boundaries and transforms that fail the edge/aspect checks return a
// Perspective failure.
func (c *Corrector) Correct(img image.Image, boundary types.PageBoundary) (image.Image, error) {
	if img == nil {
		return nil, failure.Newf(failure.Perspective, "correct", "input image is nil")
	}
	quad := boundary.Points()
	if !geometry.IsSimpleQuad(quad) || !geometry.IsConvex(quad) {
		return nil, failure.Newf(failure.Perspective, "correct", "boundary is not a simple convex quadrilateral")
	}
	if r := geometry.MinTurnRatio(quad); r < c.config.MinCornerSine {
		return nil, failure.Newf(failure.Perspective, "correct", "boundary corners are nearly collinear (sine %.3f)", r)
	}

	w, h := OutputSize(boundary)
	if w < c.config.MinSide || h < c.config.MinSide {
		return nil, failure.Newf(failure.Perspective, "correct", "rectified size %dx%d too small", w, h)
	}
	rect := [4]geometry.Point2D{
		geometry.Pt(0, 0),
		geometry.Pt(float64(w-1), 0),
		geometry.Pt(float64(w-1), float64(h-1)),
		geometry.Pt(0, float64(h-1)),
	}

	forward, err := ComputeHomography(boundary.Corners, rect)
	if err != nil {
		return nil, failure.New(failure.Perspective, "compute transform", err)
	}
	if err := c.verify(forward, boundary, w, h); err != nil {
		return nil, err
	}
	inverse, err := forward.Inverse()
	if err != nil {
		return nil, failure.New(failure.Perspective, "invert transform", err)
	}

	warp := func(x, y float64) (float64, float64) {
		p := inverse.Apply(geometry.Pt(x, y))
		return p.X, p.Y
	}
	return vision.Remap(img, w, h, warp, c.config.FillValue), nil
}

// verify checks that the mapped boundary edges are axis-aligned and that the
// output aspect ratio matches the boundary's.
func (c *Corrector) verify(forward Homography, boundary types.PageBoundary, w, h int) error {
	var mapped [4]geometry.Point2D
	for i, p := range boundary.Corners {
		mapped[i] = forward.Apply(p)
		if math.IsInf(mapped[i].X, 0) || math.IsNaN(mapped[i].X) {
			return failure.Newf(failure.Perspective, "verify", "corner %d maps to infinity", i)
		}
	}
	for i := 0; i < 4; i++ {
		if dev := geometry.AxisDeviation(mapped[i], mapped[(i+1)%4]); dev > c.config.MaxEdgeDeviation {
			return failure.Newf(failure.Perspective, "verify", "edge %d deviates %.2f degrees from its border", i, dev)
		}
	}

	bc := boundary.Corners
	srcAspect := (bc[0].Distance(bc[1]) + bc[3].Distance(bc[2])) / (bc[0].Distance(bc[3]) + bc[1].Distance(bc[2]))
	outAspect := float64(w) / float64(h)
	if math.Abs(outAspect-srcAspect)/srcAspect > c.config.MaxAspectError {
		return failure.Newf(failure.Perspective, "verify", "aspect ratio %.3f differs from boundary %.3f", outAspect, srcAspect)
	}
	return nil
}
