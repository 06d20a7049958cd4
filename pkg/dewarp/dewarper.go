// Package dewarp straightens text lines bent by the curved surface of an
// open book.
//
// Lines are detected as wide ink blobs and sampled per vertical strip. Each
// line gets a cubic fit in normalized page coordinates and the per-line
// coefficients are regressed linearly against the line's vertical position,
// which gives a smooth deviation surface dev(u, v). The page is resampled
// through a displacement mesh built from that surface.
package dewarp

import (
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/types"
	"github.com/menta2k/page-rectifier/pkg/vision"
)

// Config holds the dewarp tunables.
//
// CurvatureThreshold is the fitted strength below which a page counts as
// flat. Strength scales the fitted displacement; 1 maps baselines onto
// horizontal lines. MaxDeviationRatio is the baseline deviation, as a
// fraction of page height, that corresponds to strength 1.
// MaxDisplacementRatio rejects fits that would move pixels further than
// that fraction of the page height.
type Config struct {
	CurvatureThreshold   float64 `json:"curvature_threshold" yaml:"curvature_threshold"`
	Strength             float64 `json:"strength" yaml:"strength"`
	MaxDeviationRatio    float64 `json:"max_deviation_ratio" yaml:"max_deviation_ratio"`
	MaxDisplacementRatio float64 `json:"max_displacement_ratio" yaml:"max_displacement_ratio"`
	MinLines             int     `json:"min_lines" yaml:"min_lines"`
	MinPointsPerLine     int     `json:"min_points_per_line" yaml:"min_points_per_line"`
	Strips               int     `json:"strips" yaml:"strips"`
	MinLineWidthRatio    float64 `json:"min_line_width_ratio" yaml:"min_line_width_ratio"`
	MinContrast          float64 `json:"min_contrast" yaml:"min_contrast"`
	MeshStep             int     `json:"mesh_step" yaml:"mesh_step"`
	AnalysisMaxDim       int     `json:"analysis_max_dim" yaml:"analysis_max_dim"`
	FillValue            uint8   `json:"fill_value" yaml:"fill_value"`
}

// DefaultConfig returns default dewarp settings
func DefaultConfig() Config {
	return Config{
		CurvatureThreshold:   0.1,
		Strength:             1.0,
		MaxDeviationRatio:    0.05,
		MaxDisplacementRatio: 0.15,
		MinLines:             3,
		MinPointsPerLine:     6,
		Strips:               20,
		MinLineWidthRatio:    0.3,
		MinContrast:          10,
		MeshStep:             16,
		AnalysisMaxDim:       1000,
		FillValue:            255,
	}
}

// Dewarper fits and removes page curvature.
type Dewarper struct {
	config Config
}

// New creates a dewarper with default configuration
func New() *Dewarper {
	return &Dewarper{config: DefaultConfig()}
}

// NewWithConfig creates a dewarper with custom configuration
func NewWithConfig(config Config) *Dewarper {
	return &Dewarper{config: config}
}

// Result is the outcome of one dewarp attempt.
type Result struct {
	Image     image.Image
	Curvature types.CurvatureParams
	// Applied is false when the page was flat enough to be returned as is.
	Applied        bool
	Lines          int
	AngleStdBefore float64
	AngleStdAfter  float64
}

// surface is the fitted deviation model. coef holds a1..a3 then b1..b3:
// dev(u, v) = sum over k of (a_k + b_k*v) * u^k.
type surface struct {
	coef       [6]float64
	minV, maxV float64
}

func (s surface) deviation(u, v float64) float64 {
	u = clamp(u, -1, 1)
	v = clamp(v, s.minV, s.maxV)
	var d float64
	p := u
	for k := 0; k < 3; k++ {
		d += (s.coef[k] + s.coef[3+k]*v) * p
		p *= u
	}
	return d
}

// Dewarp straightens the text lines of img. Pages without enough lines or
// with curvature below the threshold come back unchanged with Applied false.
// A warp that does not strictly reduce the spread of baseline angles is
// discarded and reported as a Dewarp failure; the returned Result then still
// carries the input image.
func (d *Dewarper) Dewarp(img image.Image) (Result, error) {
	if img == nil {
		return Result{}, failure.Newf(failure.Dewarp, "dewarp", "input image is nil")
	}
	res := Result{
		Image:     img,
		Curvature: types.CurvatureParams{CurveType: types.CurveNone, Direction: types.DirectionHorizontal},
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	lines := d.DetectLines(img)
	res.Lines = len(lines)
	if len(lines) < d.config.MinLines {
		return res, nil
	}

	params, surf, err := d.fit(lines, w, h)
	if err != nil {
		return res, err
	}
	res.Curvature = params
	if params.Strength < d.config.CurvatureThreshold {
		return res, nil
	}
	res.AngleStdBefore = AngleStdDev(lines)

	m := d.buildMesh(surf, w, h)
	if limit := d.config.MaxDisplacementRatio * float64(h); m.maxAbs() > limit {
		return res, failure.Newf(failure.Dewarp, "dewarp", "displacement %.1fpx exceeds %.1fpx", m.maxAbs(), limit)
	}
	warp := func(x, y float64) (float64, float64) {
		return x, y + m.at(x, y)
	}
	out := vision.Remap(img, w, h, warp, d.config.FillValue)

	after := d.DetectLines(out)
	if len(after) < d.config.MinLines {
		return res, failure.Newf(failure.Dewarp, "verify", "only %d text lines left after warping", len(after))
	}
	res.AngleStdAfter = AngleStdDev(after)
	if res.AngleStdAfter >= res.AngleStdBefore {
		return res, failure.Newf(failure.Dewarp, "verify",
			"baseline angle spread rose from %.3f to %.3f degrees", res.AngleStdBefore, res.AngleStdAfter)
	}

	res.Image = out
	res.Applied = true
	return res, nil
}

// FitCurvature fits the curvature model to lines detected on a w x h page.
// Coefficients are a1, a2, a3, b1, b2, b3 of the deviation surface
// sum_k (a_k + b_k*v) * u^k with u, v the page coordinates scaled to [-1, 1].
func (d *Dewarper) FitCurvature(lines []TextLine, w, h int) (types.CurvatureParams, error) {
	params, _, err := d.fit(lines, w, h)
	return params, err
}

func (d *Dewarper) fit(lines []TextLine, w, h int) (types.CurvatureParams, surface, error) {
	if w < 2 || h < 2 {
		return types.CurvatureParams{}, surface{}, failure.Newf(failure.Dewarp, "fit curvature", "page %dx%d too small", w, h)
	}

	var vs []float64
	var cs [3][]float64
	for _, l := range lines {
		c, ok := fitLine(l, w, h)
		if !ok {
			continue
		}
		vs = append(vs, c[0])
		for k := 0; k < 3; k++ {
			cs[k] = append(cs[k], c[k+1])
		}
	}
	if len(vs) < d.config.MinLines {
		return types.CurvatureParams{}, surface{}, failure.Newf(failure.Dewarp, "fit curvature",
			"%d usable text lines, need %d", len(vs), d.config.MinLines)
	}

	surf := surface{minV: vs[0], maxV: vs[0]}
	for _, v := range vs {
		surf.minV = math.Min(surf.minV, v)
		surf.maxV = math.Max(surf.maxV, v)
	}
	for k := 0; k < 3; k++ {
		a, b := stat.LinearRegression(vs, cs[k], nil, false)
		if math.IsNaN(a) || math.IsNaN(b) || surf.maxV-surf.minV < 1e-6 {
			a, b = stat.Mean(cs[k], nil), 0
		}
		surf.coef[k], surf.coef[3+k] = a, b
	}

	var maxDev float64
	for i := 0; i <= 4; i++ {
		v := surf.minV + (surf.maxV-surf.minV)*float64(i)/4
		for j := -10; j <= 10; j++ {
			maxDev = math.Max(maxDev, math.Abs(surf.deviation(float64(j)/10, v)))
		}
	}

	params := types.CurvatureParams{
		CurveType:    types.CurveNone,
		Coefficients: append([]float64(nil), surf.coef[:]...),
		Strength:     clamp(maxDev/(2*d.config.MaxDeviationRatio), 0, 1),
		Direction:    types.DirectionHorizontal,
	}
	if params.Strength >= d.config.CurvatureThreshold {
		quad := math.Max(math.Abs(surf.coef[1]), math.Abs(surf.coef[4]))
		cubic := math.Max(math.Abs(surf.coef[2]), math.Abs(surf.coef[5]))
		params.CurveType = types.CurveCylindrical
		if cubic > quad/2 {
			params.CurveType = types.CurvePolynomial
		}
	}
	return params, surf, nil
}

// fitLine least-squares fits v = c0 + c1*u + c2*u^2 + c3*u^3 to the line's
// samples in normalized coordinates.
func fitLine(l TextLine, w, h int) ([4]float64, bool) {
	n := len(l.Points)
	if n < 5 {
		return [4]float64{}, false
	}
	a := mat.NewDense(n, 4, nil)
	b := mat.NewVecDense(n, nil)
	for i, p := range l.Points {
		u := 2*p.X/float64(w) - 1
		a.SetRow(i, []float64{1, u, u * u, u * u * u})
		b.SetVec(i, 2*p.Y/float64(h)-1)
	}
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return [4]float64{}, false
	}
	return [4]float64{x.AtVec(0), x.AtVec(1), x.AtVec(2), x.AtVec(3)}, true
}

// mesh holds vertical displacements on a regular grid of nodes.
type mesh struct {
	step       int
	cols, rows int
	dy         []float64
}

func (d *Dewarper) buildMesh(surf surface, w, h int) *mesh {
	step := d.config.MeshStep
	if step < 1 {
		step = 1
	}
	m := &mesh{step: step, cols: (w-1)/step + 2, rows: (h-1)/step + 2}
	m.dy = make([]float64, m.cols*m.rows)
	half := float64(h) / 2
	for r := 0; r < m.rows; r++ {
		v := 2*float64(r*step)/float64(h) - 1
		for c := 0; c < m.cols; c++ {
			u := 2*float64(c*step)/float64(w) - 1
			m.dy[r*m.cols+c] = d.config.Strength * surf.deviation(u, v) * half
		}
	}
	return m
}

// at interpolates the displacement bilinearly between nodes.
func (m *mesh) at(x, y float64) float64 {
	fx := x / float64(m.step)
	fy := y / float64(m.step)
	c0 := clampInt(int(fx), 0, m.cols-2)
	r0 := clampInt(int(fy), 0, m.rows-2)
	ax := clamp(fx-float64(c0), 0, 1)
	ay := clamp(fy-float64(r0), 0, 1)
	i := r0*m.cols + c0
	top := m.dy[i]*(1-ax) + m.dy[i+1]*ax
	bot := m.dy[i+m.cols]*(1-ax) + m.dy[i+m.cols+1]*ax
	return top*(1-ay) + bot*ay
}

func (m *mesh) maxAbs() float64 {
	var max float64
	for _, v := range m.dy {
		max = math.Max(max, math.Abs(v))
	}
	return max
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
