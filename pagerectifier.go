// Package pagerectifier turns scanned book spreads into flat, upright
// single-page images ready for text recognition.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		pagerectifier "github.com/menta2k/page-rectifier"
//	)
//
//	func main() {
//		r := pagerectifier.New()
//
//		// Rectify one scan into ./pages
//		result, err := r.RectifyFile(context.Background(), "scan_001.jpg", "pages")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("wrote %d pages (two-page spread: %v)", result.PagesGenerated, result.IsTwoPage)
//	}
//
// Every image goes through the same stages:
//
// 1. Preprocess (pkg/processing): grayscale, resolution-relative blur and contrast stretch
// 2. Spine (pkg/spine, pkg/cropper): spread detection and a split along the binding
// 3. Boundary (pkg/boundary): the page quadrilateral
// 4. Perspective (pkg/perspective): homography onto an upright rectangle
// 5. Dewarp (pkg/dewarp): text-line curvature removal through a displacement mesh
// 6. Postprocess (pkg/processing): unsharp mask and bounded contrast, validated
//
// A stage that fails leaves the previous stage's image in place, so every
// readable source yields its pages.
package pagerectifier

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/menta2k/page-rectifier/internal/batch"
	"github.com/menta2k/page-rectifier/internal/config"
	"github.com/menta2k/page-rectifier/internal/utils"
	"github.com/menta2k/page-rectifier/pkg/analyzer"
	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/pipeline"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// Version of the page rectifier library
const Version = "1.0.0"

// Rectifier provides a high-level interface to the rectification pipeline
type Rectifier struct {
	analyzer *analyzer.ImageAnalyzer
	pipeline *pipeline.Pipeline
	config   pipeline.Config
	format   string
	retries  int
	logger   *slog.Logger
}

// New creates a new Rectifier with default configuration
func New() *Rectifier {
	r, err := NewWithConfig(pipeline.DefaultConfig(), analyzer.DefaultConfig())
	if err != nil {
		// The default stage names always resolve.
		panic(err)
	}
	return r
}

// NewWithConfig creates a new Rectifier with custom stage and codec settings
func NewWithConfig(pipelineConfig pipeline.Config, analyzerConfig analyzer.Config) (*Rectifier, error) {
	p, err := pipeline.New(pipelineConfig)
	if err != nil {
		return nil, err
	}
	return &Rectifier{
		analyzer: analyzer.NewWithConfig(analyzerConfig),
		pipeline: p,
		config:   pipelineConfig,
		format:   "png",
		retries:  config.Default().Batch.SaveRetries,
		logger:   slog.Default(),
	}, nil
}

// SetLogger replaces the logger used for stage warnings.
func (r *Rectifier) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetOutputFormat selects the extension of written pages (png, tiff, webp, jpg).
// An unknown format is a Configuration failure and leaves the current one.
func (r *Rectifier) SetOutputFormat(format string) error {
	if !analyzer.IsEncodable(format) {
		return failure.Newf(failure.Configuration, "set output format", "unsupported output format: %s", format)
	}
	r.format = format
	return nil
}

// LoadImage loads an image from file
func (r *Rectifier) LoadImage(path string) (image.Image, error) {
	return r.analyzer.LoadImage(path)
}

// SaveImage saves an image to file
func (r *Rectifier) SaveImage(img image.Image, path string) error {
	return r.analyzer.SaveImage(img, path)
}

// RectifyImage runs the pipeline on an in-memory image without touching the
// filesystem. The returned pages are what a text-recognition stage consumes.
func (r *Rectifier) RectifyImage(ctx context.Context, img image.Image) (*pipeline.Output, error) {
	return r.pipeline.Process(ctx, r.logger, img)
}

// RectifyFile loads inputPath, rectifies it and writes its pages into
// outputDir as <base>_<side>.<format>. The returned error covers loading and
// pipeline failures; a page that cannot be saved is recorded in the result.
func (r *Rectifier) RectifyFile(ctx context.Context, inputPath, outputDir string) (types.ProcessingResult, error) {
	res := types.ProcessingResult{SourceFilename: inputPath}

	img, err := r.LoadImage(inputPath)
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("failed to load image: %w", err)
	}
	if err := r.analyzer.ValidateImage(img); err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("image validation failed: %w", err)
	}
	if err := utils.EnsureDir(outputDir); err != nil {
		res.Error = err.Error()
		return res, err
	}
	b := img.Bounds()
	res.InputDimensions = types.Dimensions{Width: b.Dx(), Height: b.Dy()}

	out, err := r.RectifyImage(ctx, img)
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("rectification failed: %w", err)
	}
	res.Spine = out.Spine
	res.IsTwoPage = out.Spine.IsTwoPage
	res.SpineDetected = out.Spine.Detected
	res.PagesGenerated = len(out.Pages)
	res.Success = true

	for _, page := range out.Pages {
		pr := page.Result
		target := utils.PageOutputPath(outputDir, inputPath, pr.Side, r.format)
		attempts, err := r.analyzer.SaveWithRetry(page.Image, target, r.retries)
		pr.Attempts = attempts
		if err != nil {
			pr.Success = false
			pr.Error = err.Error()
			res.Success = false
			res.Error = fmt.Sprintf("failed to save %s page: %v", pr.Side, err)
		} else {
			pr.OutputPath = target
			res.OutputDimensions = append(res.OutputDimensions, pr.OutputDimensions)
		}
		res.PageDetected = res.PageDetected || pr.PageDetected
		res.PerspectiveApplied = res.PerspectiveApplied || pr.PerspectiveApplied
		res.DewarpApplied = res.DewarpApplied || pr.DewarpApplied
		res.Pages = append(res.Pages, pr)
	}
	return res, nil
}

// RunBatch rectifies every image in inputDir into outputDir with this
// Rectifier's stage settings and writes the processing log there.
func (r *Rectifier) RunBatch(ctx context.Context, inputDir, outputDir string) (*types.BatchReport, error) {
	cfg := config.Default()
	cfg.Input.Dir = inputDir
	cfg.Output.Dir = outputDir
	cfg.Output.Format = r.format
	cfg.Output.Quality = r.analyzer.Quality()
	cfg.Batch.SaveRetries = r.retries
	cfg.Config = r.config

	runner, err := batch.NewRunner(batch.NewRunContext(batch.ModeBatch, cfg, r.logger))
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
