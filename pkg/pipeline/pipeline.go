// Package pipeline threads one source image through the rectification
// stages. Every stage either succeeds or leaves the last good image in
// place, so a failing stage degrades the output instead of discarding it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/menta2k/page-rectifier/pkg/boundary"
	"github.com/menta2k/page-rectifier/pkg/cropper"
	"github.com/menta2k/page-rectifier/pkg/dewarp"
	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/perspective"
	"github.com/menta2k/page-rectifier/pkg/processing"
	"github.com/menta2k/page-rectifier/pkg/spine"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// Config gathers the settings of every stage.
type Config struct {
	Preprocess  processing.PreprocessConfig  `json:"preprocess" yaml:"preprocess"`
	Spine       spine.Config                 `json:"spine" yaml:"spine"`
	Split       cropper.Config               `json:"split" yaml:"split"`
	Boundary    boundary.Config              `json:"boundary" yaml:"boundary"`
	Perspective perspective.Config           `json:"perspective" yaml:"perspective"`
	Dewarp      dewarp.Config                `json:"dewarp" yaml:"dewarp"`
	Postprocess processing.PostprocessConfig `json:"postprocess" yaml:"postprocess"`
	Stages      StageNames                   `json:"stages" yaml:"stages"`
}

// DefaultConfig returns the default settings of every stage.
func DefaultConfig() Config {
	return Config{
		Preprocess:  processing.DefaultPreprocessConfig(),
		Spine:       spine.DefaultConfig(),
		Split:       cropper.DefaultConfig(),
		Boundary:    boundary.DefaultConfig(),
		Perspective: perspective.DefaultConfig(),
		Dewarp:      dewarp.DefaultConfig(),
		Postprocess: processing.DefaultPostprocessConfig(),
		Stages:      DefaultStageNames(),
	}
}

// Pipeline runs the stages. It holds no per-image state and is safe for
// concurrent use as long as its stages are.
type Pipeline struct {
	stages Stages
	// postprocessEnabled is false for the passthrough variant.
	postprocessEnabled bool
}

// New builds a pipeline from cfg.
func New(cfg Config) (*Pipeline, error) {
	stages, err := BuildStages(cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{stages: stages, postprocessEnabled: cfg.Stages.Postprocess != StageNone}, nil
}

// NewWithStages builds a pipeline from explicit stage implementations.
func NewWithStages(stages Stages) *Pipeline {
	return &Pipeline{stages: stages, postprocessEnabled: true}
}

// Page is one rectified output page.
type Page struct {
	Image  image.Image
	Result types.PageResult
	// Offset is the page's origin inside the source image.
	Offset image.Point
}

// Output is everything produced from one source image.
type Output struct {
	Spine    types.SpineInfo
	Pages    []Page
	Warnings []string
}

// Process runs the full pipeline on img. Errors are returned only when no
// page can be produced at all: a nil input, a failed preprocess, or ctx
// expiring (a Timeout failure).
func (p *Pipeline) Process(ctx context.Context, logger *slog.Logger, img image.Image) (*Output, error) {
	if img == nil {
		return nil, failure.Newf(failure.IO, "process", "input image is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gray, err := p.stages.Preprocess.Preprocess(img)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	if err := checkContext(ctx, "preprocess"); err != nil {
		return nil, err
	}

	out := &Output{}
	info, err := p.stages.Spine.DetectSpine(gray)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("spine detection failed, treating as single page: %v", err))
		logger.Warn("Spine detection failed", "error", err)
		info = types.SpineInfo{}
	}
	if info.Borderline {
		out.Warnings = append(out.Warnings, fmt.Sprintf("borderline spine confidence %.2f, needs review", info.Confidence))
		logger.Warn("Borderline spine decision",
			"two_page", info.IsTwoPage,
			"confidence", fmt.Sprintf("%.3f", info.Confidence),
			"x", info.XPosition,
			"needs_review", true)
	}
	out.Spine = info
	if err := checkContext(ctx, "detect spine"); err != nil {
		return nil, err
	}

	type job struct {
		side     types.PageSide
		page     image.Image
		analysis image.Image
		offset   image.Point
	}
	jobs := []job{{side: types.SideSingle, page: img, analysis: gray}}

	if info.IsTwoPage {
		left, right, errColor := p.stages.Split.SplitAlongSpine(img, info)
		gl, gr, errGray := p.stages.Split.SplitAlongSpine(gray, info)
		if err := errors.Join(errColor, errGray); err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("split failed, treating as single page: %v", err))
			logger.Warn("Split failed", "error", err)
			out.Spine.IsTwoPage = false
		} else {
			b := img.Bounds()
			_, rightX := p.stages.Split.Extents(b.Dx(), b.Dy(), info)
			jobs = []job{
				{side: types.SideLeft, page: left, analysis: gl},
				{side: types.SideRight, page: right, analysis: gr, offset: image.Pt(rightX, 0)},
			}
			logger.Debug("Split spread", "spine_x", info.XPosition, "angle", info.AngleDegrees)
		}
	}

	for _, j := range jobs {
		page, err := p.ProcessPage(ctx, logger.With("side", string(j.side)), j.side, j.page, j.analysis)
		if err != nil {
			return nil, err
		}
		page.Offset = j.offset
		page.Result.Warnings = append(append([]string(nil), out.Warnings...), page.Result.Warnings...)
		out.Pages = append(out.Pages, page)
	}
	return out, nil
}

// ProcessPage rectifies one page. analysis is the preprocessed version of
// page used for boundary detection; when nil it is computed here. The only
// error is a Timeout failure when ctx expires between stages.
func (p *Pipeline) ProcessPage(ctx context.Context, logger *slog.Logger, side types.PageSide, page, analysis image.Image) (Page, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := types.PageResult{Side: side}
	current := page
	done := func() Page {
		b := current.Bounds()
		res.OutputDimensions = types.Dimensions{Width: b.Dx(), Height: b.Dy()}
		res.Success = true
		return Page{Image: current, Result: res}
	}
	warn := func(msg string, err error) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", msg, err))
		logger.Warn(msg, "error", err)
	}

	if analysis == nil {
		gray, err := p.stages.Preprocess.Preprocess(page)
		if err != nil {
			warn("preprocess failed, page kept as is", err)
			return done(), nil
		}
		analysis = gray
	}

	b, err := p.stages.Boundary.DetectBoundary(analysis)
	if err != nil {
		warn("page boundary not found, page kept as is", err)
		return done(), nil
	}
	if b == nil {
		return done(), nil
	}
	res.PageDetected = true
	res.Boundary = b
	if err := checkContext(ctx, "detect boundary"); err != nil {
		return Page{}, err
	}

	rectified, err := p.stages.Perspective.Correct(current, *b)
	if err != nil {
		warn("perspective correction failed, page kept uncorrected", err)
		return done(), nil
	}
	current = rectified
	res.PerspectiveApplied = true
	if err := checkContext(ctx, "correct perspective"); err != nil {
		return Page{}, err
	}

	dw, err := p.stages.Dewarp.Dewarp(current)
	if err != nil {
		warn("dewarp rejected, keeping perspective-corrected page", err)
	} else {
		res.Curvature = &dw.Curvature
		if dw.Applied {
			current = dw.Image
			res.DewarpApplied = true
			logger.Debug("Dewarped page",
				"strength", fmt.Sprintf("%.3f", dw.Curvature.Strength),
				"angle_std_before", fmt.Sprintf("%.3f", dw.AngleStdBefore),
				"angle_std_after", fmt.Sprintf("%.3f", dw.AngleStdAfter))
		}
	}
	if err := checkContext(ctx, "dewarp"); err != nil {
		return Page{}, err
	}

	final, err := p.stages.Postprocess.Postprocess(current)
	if err != nil {
		warn("postprocess rejected, keeping unenhanced page", err)
	} else if p.postprocessEnabled {
		current = final
		res.PostprocessApplied = true
	}
	return done(), nil
}

func checkContext(ctx context.Context, after string) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return failure.New(failure.Timeout, after, err)
	}
	return nil
}
