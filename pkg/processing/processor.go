// Package processing holds the photometric stages that bracket the geometric
// pipeline: preprocessing for analysis and the final sharpen/contrast pass.
package processing

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/page-rectifier/pkg/analyzer"
	"github.com/menta2k/page-rectifier/pkg/vision"
)

// ErrQualityRegression is returned by Postprocess when the enhanced image lost
// too much sharpness or contrast.
var ErrQualityRegression = errors.New("postprocess reduced image quality")

// PreprocessConfig controls denoising and contrast normalization.
type PreprocessConfig struct {
	// BlurRatio is the Gaussian sigma per pixel of the shorter image side.
	BlurRatio      float64 `json:"blur_ratio" yaml:"blur_ratio"`
	MinBlurSigma   float64 `json:"min_blur_sigma" yaml:"min_blur_sigma"`
	MaxBlurSigma   float64 `json:"max_blur_sigma" yaml:"max_blur_sigma"`
	Equalize       bool    `json:"equalize" yaml:"equalize"`
	LowPercentile  float64 `json:"low_percentile" yaml:"low_percentile"`
	HighPercentile float64 `json:"high_percentile" yaml:"high_percentile"`
}

// DefaultPreprocessConfig returns settings tuned for 300-600 dpi book scans.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		BlurRatio:      0.0008,
		MinBlurSigma:   0.5,
		MaxBlurSigma:   3.0,
		Equalize:       true,
		LowPercentile:  0.01,
		HighPercentile: 0.99,
	}
}

// Preprocessor prepares an image for geometric analysis.
type Preprocessor struct {
	config PreprocessConfig
}

// NewPreprocessor creates a preprocessor with the given settings
func NewPreprocessor(config PreprocessConfig) *Preprocessor {
	return &Preprocessor{config: config}
}

// Preprocess converts img to a single-channel intensity image, smooths it
// with a resolution-relative Gaussian and optionally stretches its contrast
// between two percentiles. Geometry is unchanged.
func (p *Preprocessor) Preprocess(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("input image is empty")
	}

	g := vision.FromImage(img)
	g = vision.Blur(g, p.BlurSigma(g.W, g.H))
	if p.config.Equalize {
		stretchContrast(g, p.config.LowPercentile, p.config.HighPercentile)
	}
	return g.ToImage(), nil
}

// BlurSigma returns the smoothing sigma used for a w x h image.
func (p *Preprocessor) BlurSigma(w, h int) float64 {
	sigma := p.config.BlurRatio * float64(minInt(w, h))
	return clamp(sigma, p.config.MinBlurSigma, p.config.MaxBlurSigma)
}

// stretchContrast maps the [lo, hi] percentile range linearly onto [0, 255].
// Nearly uniform images are left untouched.
func stretchContrast(g *vision.Gray, low, high float64) {
	var hist [256]int
	for _, v := range g.Pix {
		hist[clampIndex(v)]++
	}
	lo := histPercentile(&hist, len(g.Pix), low)
	hi := histPercentile(&hist, len(g.Pix), high)
	if hi-lo < 8 {
		return
	}
	scale := 255 / float64(hi-lo)
	for i, v := range g.Pix {
		g.Pix[i] = clamp((v-float64(lo))*scale, 0, 255)
	}
}

func histPercentile(hist *[256]int, total int, p float64) int {
	target := int(math.Ceil(p * float64(total)))
	if target < 1 {
		target = 1
	}
	seen := 0
	for v, n := range hist {
		seen += n
		if seen >= target {
			return v
		}
	}
	return 255
}

// PostprocessConfig controls the final enhancement pass.
type PostprocessConfig struct {
	SharpenSigma    float64 `json:"sharpen_sigma" yaml:"sharpen_sigma"`
	ContrastPercent float64 `json:"contrast_percent" yaml:"contrast_percent"`
	MaxContrast     float64 `json:"max_contrast" yaml:"max_contrast"`
	// MinRetention is the fraction of sharpness and contrast the output must keep.
	MinRetention float64 `json:"min_retention" yaml:"min_retention"`
}

// DefaultPostprocessConfig returns a mild sharpen and contrast boost.
func DefaultPostprocessConfig() PostprocessConfig {
	return PostprocessConfig{
		SharpenSigma:    1.0,
		ContrastPercent: 10,
		MaxContrast:     30,
		MinRetention:    0.9,
	}
}

// Postprocessor sharpens and validates a rectified page.
type Postprocessor struct {
	config PostprocessConfig
}

// NewPostprocessor creates a postprocessor with the given settings
func NewPostprocessor(config PostprocessConfig) *Postprocessor {
	return &Postprocessor{config: config}
}

// QualityMetrics are the values compared before and after enhancement.
type QualityMetrics struct {
	Sharpness float64
	Contrast  float64
	Channels  int
}

// Measure computes the quality metrics of img.
func Measure(img image.Image) QualityMetrics {
	return QualityMetrics{
		Sharpness: Sharpness(img),
		Contrast:  Contrast(img),
		Channels:  analyzer.Channels(img),
	}
}

// Sharpness returns the mean Sobel gradient magnitude of img.
func Sharpness(img image.Image) float64 {
	return vision.Sobel(vision.FromImage(img)).MeanMagnitude()
}

// Contrast returns the intensity standard deviation of img.
func Contrast(img image.Image) float64 {
	return vision.FromImage(img).StdDev()
}

// Postprocess applies an unsharp mask and a bounded contrast adjustment. The
// result keeps the channel count of img. When the result fails validation
// the returned error wraps ErrQualityRegression and the caller should keep img.
func (p *Postprocessor) Postprocess(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	before := Measure(img)

	var out image.Image = img
	if p.config.SharpenSigma > 0 {
		out = imaging.Sharpen(out, p.config.SharpenSigma)
	}
	if c := clamp(p.config.ContrastPercent, -p.config.MaxContrast, p.config.MaxContrast); c != 0 {
		out = imaging.AdjustContrast(out, c)
	}
	if before.Channels == 1 {
		out = vision.FromImage(out).ToImage()
	}

	after := Measure(out)
	if err := p.validate(before, after); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postprocessor) validate(before, after QualityMetrics) error {
	if after.Channels != before.Channels {
		return fmt.Errorf("%w: channel count changed from %d to %d", ErrQualityRegression, before.Channels, after.Channels)
	}
	if after.Sharpness < p.config.MinRetention*before.Sharpness {
		return fmt.Errorf("%w: sharpness %.2f below %.0f%% of %.2f",
			ErrQualityRegression, after.Sharpness, p.config.MinRetention*100, before.Sharpness)
	}
	if after.Contrast < p.config.MinRetention*before.Contrast {
		return fmt.Errorf("%w: contrast %.2f below %.0f%% of %.2f",
			ErrQualityRegression, after.Contrast, p.config.MinRetention*100, before.Contrast)
	}
	return nil
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampIndex(v float64) int {
	return int(clamp(math.Round(v), 0, 255))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
