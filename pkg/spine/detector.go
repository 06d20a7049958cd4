// Package spine locates the binding line of a two-page spread.
//
// Three signals are combined: a near-vertical line accumulator over Canny
// edges, the darkest column of the binding shadow, and a mirror-symmetry
// score of the two halves. All of them are restricted to a central band of
// the image, so a detected spine always lies inside that band.
package spine

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/types"
	"github.com/menta2k/page-rectifier/pkg/vision"
)

// Config holds the spine detection thresholds.
//
// CentralBandRatio is the centered fraction of the width that is searched.
// An image is classified as a spread when the combined confidence reaches
// MinConfidence; decisions within BorderlineMargin of it are flagged for
// review. A lone signal needs StrongSignal to count at full weight. When the
// line and shadow estimates differ by more than ToleranceRatio of the width,
// the shadow estimate is used with its confidence scaled by
// DisagreementPenalty. ShadowDepth is the relative darkening that maps to full
// shadow confidence.
type Config struct {
	CentralBandRatio    float64 `json:"central_band_ratio" yaml:"central_band_ratio"`
	MinConfidence       float64 `json:"min_confidence" yaml:"min_confidence"`
	BorderlineMargin    float64 `json:"borderline_margin" yaml:"borderline_margin"`
	StrongSignal        float64 `json:"strong_signal" yaml:"strong_signal"`
	ToleranceRatio      float64 `json:"tolerance_ratio" yaml:"tolerance_ratio"`
	DisagreementPenalty float64 `json:"disagreement_penalty" yaml:"disagreement_penalty"`
	MaxAngleDegrees     float64 `json:"max_angle_degrees" yaml:"max_angle_degrees"`
	ShadowDepth         float64 `json:"shadow_depth" yaml:"shadow_depth"`
	MinSymmetry         float64 `json:"min_symmetry" yaml:"min_symmetry"`
	CannyLow            float64 `json:"canny_low" yaml:"canny_low"`
	CannyHigh           float64 `json:"canny_high" yaml:"canny_high"`
	AnalysisMaxDim      int     `json:"analysis_max_dim" yaml:"analysis_max_dim"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		CentralBandRatio:    0.4,
		MinConfidence:       0.5,
		BorderlineMargin:    0.1,
		StrongSignal:        0.75,
		ToleranceRatio:      0.02,
		DisagreementPenalty: 0.75,
		MaxAngleDegrees:     5,
		ShadowDepth:         0.25,
		MinSymmetry:         0.3,
		CannyLow:            50,
		CannyHigh:           150,
		AnalysisMaxDim:      1000,
	}
}

// Detector finds the spine of a spread.
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

// signal is one spine estimate in analysis coordinates.
type signal struct {
	x          float64 // at mid-height
	angle      float64 // degrees, positive when the line leans right going down
	confidence float64
}

// DetectSpine classifies img as a spread or a single page. The returned
// SpineInfo has IsTwoPage set only when the combined confidence reaches
// MinConfidence; XPosition is then inside the central band.
func (d *Detector) DetectSpine(img image.Image) (types.SpineInfo, error) {
	if img == nil {
		return types.SpineInfo{}, failure.Newf(failure.SpineDetection, "detect spine", "input image is nil")
	}
	b := img.Bounds()
	if b.Dx() < 16 || b.Dy() < 16 {
		return types.SpineInfo{}, failure.Newf(failure.SpineDetection, "detect spine",
			"image too small: %dx%d", b.Dx(), b.Dy())
	}

	full := vision.FromImage(img)
	g, scale := vision.Downscale(full, d.config.AnalysisMaxDim)

	bandLo, bandHi := d.band(g.W)
	line := d.lineSignal(g, bandLo, bandHi)
	shadow := d.shadowSignal(g, bandLo, bandHi)

	best, ok := d.combine(line, shadow, float64(g.W)*d.config.ToleranceRatio)
	if !ok {
		return types.SpineInfo{}, nil
	}

	sym := Symmetry(g, best.x)
	if d.config.MinSymmetry > 0 && sym < d.config.MinSymmetry {
		best.confidence *= 0.5 + 0.5*sym/d.config.MinSymmetry
	}

	info := types.SpineInfo{
		AngleDegrees: best.angle,
		Confidence:   clamp01(best.confidence),
		Borderline:   math.Abs(best.confidence-d.config.MinConfidence) < d.config.BorderlineMargin,
	}
	if info.Confidence < d.config.MinConfidence {
		return info, nil
	}

	x := int(math.Round(best.x * scale))
	lo := int(math.Ceil(bandLo * scale))
	hi := int(math.Floor(bandHi * scale))
	if x < lo {
		x = lo
	}
	if x > hi {
		x = hi
	}
	info.Detected = true
	info.IsTwoPage = true
	info.XPosition = x
	return info, nil
}

// band returns the searched column range [lo, hi] for an image of width w.
func (d *Detector) band(w int) (float64, float64) {
	half := d.config.CentralBandRatio / 2
	return float64(w) * (0.5 - half), float64(w) * (0.5 + half)
}

// combine merges the line and shadow estimates. Agreeing signals reinforce
// each other; on disagreement the shadow wins with reduced confidence.
func (d *Detector) combine(line, shadow signal, tolerance float64) (signal, bool) {
	const minSignal = 0.2
	lineOK := line.confidence >= minSignal
	shadowOK := shadow.confidence >= minSignal

	switch {
	case lineOK && shadowOK && math.Abs(line.x-shadow.x) <= tolerance:
		w := line.confidence + shadow.confidence
		return signal{
			x:          (line.x*line.confidence + shadow.x*shadow.confidence) / w,
			angle:      line.angle,
			confidence: 1 - (1-line.confidence)*(1-shadow.confidence),
		}, true
	case lineOK && shadowOK:
		shadow.confidence *= d.config.DisagreementPenalty
		return shadow, true
	case shadowOK:
		if shadow.confidence < d.config.StrongSignal {
			shadow.confidence *= 0.5
		}
		return shadow, true
	case lineOK:
		if line.confidence < d.config.StrongSignal {
			line.confidence *= 0.5
		}
		return line, true
	}
	return signal{}, false
}

// lineSignal accumulates near-vertical Canny edge pixels into (x at
// mid-height, angle) bins and returns the strongest bin. Confidence is the
// fraction of analyzed rows supporting it.
func (d *Detector) lineSignal(g *vision.Gray, bandLo, bandHi float64) signal {
	edges := vision.Canny(g, d.config.CannyLow, d.config.CannyHigh)
	grad := vision.Sobel(g)

	y0 := g.H / 20
	y1 := g.H - y0
	rows := float64(y1 - y0)
	if rows <= 0 {
		return signal{}
	}
	mid := float64(g.H) / 2

	const step = 0.25
	nAngles := int(2*d.config.MaxAngleDegrees/step) + 1
	lo := int(math.Floor(bandLo))
	width := int(math.Ceil(bandHi)) - lo + 1
	if width <= 0 {
		return signal{}
	}
	acc := make([][]float64, nAngles)
	tans := make([]float64, nAngles)
	for a := range acc {
		acc[a] = make([]float64, width)
		tans[a] = math.Tan((-d.config.MaxAngleDegrees + float64(a)*step) * math.Pi / 180)
	}

	// A band slightly wider than the target lets tilted lines still vote.
	margin := int(math.Ceil(rows * math.Tan(d.config.MaxAngleDegrees*math.Pi/180)))
	for y := y0; y < y1; y++ {
		for x := lo - margin; x < lo+width+margin; x++ {
			if !edges.Get(x, y) {
				continue
			}
			i := y*g.W + x
			if math.Abs(grad.GX[i]) < 2*math.Abs(grad.GY[i]) {
				continue
			}
			dy := float64(y) - mid
			for a, t := range tans {
				bin := int(math.Round(float64(x)-dy*t)) - lo
				if bin >= 0 && bin < width {
					acc[a][bin]++
				}
			}
		}
	}

	var best signal
	for a := range acc {
		for bin := 1; bin+1 < width; bin++ {
			votes := acc[a][bin-1] + acc[a][bin] + acc[a][bin+1]
			conf := clamp01(votes / rows)
			if conf > best.confidence {
				best = signal{
					x:          float64(lo + bin),
					angle:      -d.config.MaxAngleDegrees + float64(a)*step,
					confidence: conf,
				}
			}
		}
	}
	return best
}

// shadowSignal finds the darkest smoothed column of the band. Its angle is
// estimated from the minima of the top and bottom halves.
func (d *Detector) shadowSignal(g *vision.Gray, bandLo, bandHi float64) signal {
	x0 := int(math.Floor(bandLo))
	x1 := int(math.Ceil(bandHi)) + 1
	y0 := g.H / 20
	y1 := g.H - y0
	radius := g.W/200 + 1

	profile := vision.Smooth(vision.ColumnMeans(g, x0, x1, y0, y1), radius)
	minIdx := argmin(profile)
	if minIdx < 0 {
		return signal{}
	}
	surface := vision.Median(profile)
	if surface <= 0 {
		return signal{}
	}
	depth := (surface - profile[minIdx]) / surface
	conf := clamp01(depth / d.config.ShadowDepth)

	yMid := (y0 + y1) / 2
	top := argmin(vision.Smooth(vision.ColumnMeans(g, x0, x1, y0, yMid), radius))
	bottom := argmin(vision.Smooth(vision.ColumnMeans(g, x0, x1, yMid, y1), radius))
	angle := 0.0
	if top >= 0 && bottom >= 0 {
		dy := float64(y1-y0) / 2
		angle = math.Atan2(float64(bottom-top), dy) * 180 / math.Pi
		if math.Abs(angle) > d.config.MaxAngleDegrees {
			angle = 0
		}
	}

	return signal{x: float64(x0 + minIdx), angle: angle, confidence: conf}
}

// Symmetry compares the mirrored column profiles on either side of x and
// returns a score in [0, 1]; flat or identical halves score 1.
func Symmetry(g *vision.Gray, x float64) float64 {
	cx := int(math.Round(x))
	w := cx
	if g.W-1-cx < w {
		w = g.W - 1 - cx
	}
	if w < 8 {
		return 0
	}
	cols := vision.ColumnMeans(g, 0, g.W, 0, g.H)
	left := make([]float64, w)
	right := make([]float64, w)
	for i := 0; i < w; i++ {
		left[i] = cols[cx-1-i]
		right[i] = cols[cx+1+i]
	}
	r := stat.Correlation(left, right, nil)
	if math.IsNaN(r) {
		return 1
	}
	return clamp01((r + 1) / 2)
}

func argmin(values []float64) int {
	idx := -1
	for i, v := range values {
		if idx < 0 || v < values[idx] {
			idx = i
		}
	}
	return idx
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
