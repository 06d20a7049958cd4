// Package boundary finds the quadrilateral outline of a page.
//
// Candidates come from two sources: outlines of Canny edge components and
// the outline of the largest bright (Otsu) region. Each outline is reduced to
// its convex hull and simplified; survivors must be simple convex
// quadrilaterals covering a minimum fraction of the image. The largest one
// wins.
package boundary

import (
	"errors"
	"image"
	"math"
	"sort"

	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/geometry"
	"github.com/menta2k/page-rectifier/pkg/types"
	"github.com/menta2k/page-rectifier/pkg/vision"
)

// ErrNoBoundary is wrapped into the BoundaryDetection failure returned when
// no candidate survives filtering.
var ErrNoBoundary = errors.New("no page boundary candidate")

// Config holds the boundary detection parameters.
type Config struct {
	CannyLow       float64 `json:"canny_low" yaml:"canny_low"`
	CannyHigh      float64 `json:"canny_high" yaml:"canny_high"`
	BlurSigma      float64 `json:"blur_sigma" yaml:"blur_sigma"`
	DilateRadius   int     `json:"dilate_radius" yaml:"dilate_radius"`
	MinAreaRatio   float64 `json:"min_area_ratio" yaml:"min_area_ratio"`
	ApproxEpsilon  float64 `json:"approx_epsilon" yaml:"approx_epsilon"`
	MinCornerSine  float64 `json:"min_corner_sine" yaml:"min_corner_sine"`
	UseOtsu        bool    `json:"use_otsu" yaml:"use_otsu"`
	AnalysisMaxDim int     `json:"analysis_max_dim" yaml:"analysis_max_dim"`
}

// DefaultConfig returns the standard Canny/approximation settings.
func DefaultConfig() Config {
	return Config{
		CannyLow:       50,
		CannyHigh:      150,
		BlurSigma:      1.0,
		DilateRadius:   1,
		MinAreaRatio:   0.5,
		ApproxEpsilon:  0.02,
		MinCornerSine:  0.2,
		UseOtsu:        true,
		AnalysisMaxDim: 1000,
	}
}

// Detector finds page boundaries.
type Detector struct {
	config Config
}

// New creates a detector with default configuration
func New() *Detector {
	return &Detector{config: DefaultConfig()}
}

// NewWithConfig creates a detector with custom configuration
func NewWithConfig(config Config) *Detector {
	return &Detector{config: config}
}

// Candidate is a quadrilateral that passed shape filtering, in analysis
// coordinates.
type Candidate struct {
	Corners []geometry.Point2D
	Area    float64
}

// DetectBoundary returns the page outline of img in img's pixel
// coordinates, corners ordered TL, TR, BR, BL. When nothing qualifies the
// error is a BoundaryDetection failure wrapping ErrNoBoundary.
func (d *Detector) DetectBoundary(img image.Image) (*types.PageBoundary, error) {
	if img == nil {
		return nil, failure.Newf(failure.BoundaryDetection, "detect boundary", "input image is nil")
	}

	full := vision.FromImage(img)
	g, scale := vision.Downscale(full, d.config.AnalysisMaxDim)
	g = vision.Blur(g, d.config.BlurSigma)

	edges := vision.Dilate(vision.Canny(g, d.config.CannyLow, d.config.CannyHigh), d.config.DilateRadius)
	outlines := edgeOutlines(edges)
	if d.config.UseOtsu {
		if o := brightOutline(g); o != nil {
			outlines = append(outlines, o)
		}
	}

	candidates := d.Candidates(outlines, g.W, g.H)
	if len(candidates) == 0 {
		return nil, failure.New(failure.BoundaryDetection, "detect boundary", ErrNoBoundary)
	}

	best := SelectLargest(candidates)
	boundary := types.PageBoundary{
		Confidence: edgeSupport(edges, best.Corners),
		Area:       best.Area,
	}
	copy(boundary.Corners[:], best.Corners)
	boundary = boundary.Scaled(scale)
	return &boundary, nil
}

// Candidates turns raw outlines found in a w x h image into ordered
// quadrilaterals. Outlines that are too small, not four-sided,
// self-intersecting or nearly degenerate are dropped, as is the image frame
// itself.
func (d *Detector) Candidates(outlines [][]geometry.Point2D, w, h int) []Candidate {
	minArea := d.config.MinAreaRatio * float64(w*h)
	var out []Candidate
	for _, outline := range outlines {
		hull := geometry.ConvexHull(outline)
		if len(hull) < 4 {
			continue
		}
		if geometry.PolygonArea(hull) < minArea {
			continue
		}
		approx := geometry.SimplifyClosed(hull, d.config.ApproxEpsilon*geometry.Perimeter(hull))
		if len(approx) > 4 && len(approx) <= 8 {
			approx = reduceToQuad(approx)
		}
		if len(approx) != 4 {
			continue
		}
		quad := geometry.OrderCorners(approx)
		if !geometry.IsSimpleQuad(quad) || !geometry.IsConvex(quad) {
			continue
		}
		if geometry.MinTurnRatio(quad) < d.config.MinCornerSine {
			continue
		}
		area := geometry.PolygonArea(quad)
		if area < minArea || framesImage(quad, w, h) {
			continue
		}
		out = append(out, Candidate{Corners: quad, Area: area})
	}
	return out
}

// SelectLargest returns the candidate with the greatest area. Equal areas
// keep the earliest candidate.
func SelectLargest(candidates []Candidate) Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Area > sorted[j].Area
	})
	return sorted[0]
}

// framesImage reports whether every corner sits on the matching image corner,
// which happens when the page fills the whole scan.
func framesImage(quad []geometry.Point2D, w, h int) bool {
	tol := 0.005 * float64(w+h)
	frame := []geometry.Point2D{
		geometry.Pt(0, 0),
		geometry.Pt(float64(w-1), 0),
		geometry.Pt(float64(w-1), float64(h-1)),
		geometry.Pt(0, float64(h-1)),
	}
	for i, c := range quad {
		if c.Distance(frame[i]) > tol {
			return false
		}
	}
	return true
}

// reduceToQuad repeatedly drops the vertex spanning the smallest triangle
// with its neighbours until four remain. Rounded page corners often leave
// five or six hull vertices after simplification.
func reduceToQuad(poly []geometry.Point2D) []geometry.Point2D {
	out := make([]geometry.Point2D, len(poly))
	copy(out, poly)
	for len(out) > 4 {
		n := len(out)
		minIdx, minArea := 0, math.Inf(1)
		for i := range out {
			a := math.Abs(geometry.Cross(out[(i+n-1)%n], out[i], out[(i+1)%n])) / 2
			if a < minArea {
				minIdx, minArea = i, a
			}
		}
		out = append(out[:minIdx], out[minIdx+1:]...)
	}
	return out
}

// edgeOutlines returns the pixel coordinates of every sizable edge component.
func edgeOutlines(edges *vision.Mask) [][]geometry.Point2D {
	minSize := (edges.W + edges.H) / 4
	var outlines [][]geometry.Point2D
	for _, c := range vision.Components(edges, minSize) {
		pts := make([]geometry.Point2D, len(c.Points))
		for i, p := range c.Points {
			pts[i] = geometry.Pt(float64(p.X), float64(p.Y))
		}
		outlines = append(outlines, pts)
	}
	return outlines
}

// brightOutline returns the border pixels of the largest above-Otsu region,
// or nil when there is none.
func brightOutline(g *vision.Gray) []geometry.Point2D {
	mask := vision.Threshold(g, vision.Otsu(g), true)
	comps := vision.Components(mask, (g.W*g.H)/100)
	if len(comps) == 0 {
		return nil
	}
	largest := comps[0]
	for _, c := range comps[1:] {
		if c.Size() > largest.Size() {
			largest = c
		}
	}
	var pts []geometry.Point2D
	for _, p := range largest.Points {
		if !mask.Get(p.X-1, p.Y) || !mask.Get(p.X+1, p.Y) || !mask.Get(p.X, p.Y-1) || !mask.Get(p.X, p.Y+1) {
			pts = append(pts, geometry.Pt(float64(p.X), float64(p.Y)))
		}
	}
	return pts
}

// edgeSupport returns the fraction of points sampled along the quad's edges
// that land on (or next to) an edge pixel.
func edgeSupport(edges *vision.Mask, quad []geometry.Point2D) float64 {
	var total, hit int
	for i := 0; i < 4; i++ {
		a, b := quad[i], quad[(i+1)%4]
		steps := int(math.Ceil(a.Distance(b)))
		for s := 0; s <= steps; s++ {
			t := float64(s) / math.Max(1, float64(steps))
			x := int(math.Round(a.X + t*(b.X-a.X)))
			y := int(math.Round(a.Y + t*(b.Y-a.Y)))
			total++
			if edges.Get(x, y) || edges.Get(x-1, y) || edges.Get(x+1, y) || edges.Get(x, y-1) || edges.Get(x, y+1) {
				hit++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}
