package pipeline

import (
	"image"

	"github.com/menta2k/page-rectifier/pkg/boundary"
	"github.com/menta2k/page-rectifier/pkg/cropper"
	"github.com/menta2k/page-rectifier/pkg/dewarp"
	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/perspective"
	"github.com/menta2k/page-rectifier/pkg/processing"
	"github.com/menta2k/page-rectifier/pkg/spine"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// Stage variant names.
const (
	StageNone        = "none"
	StageCombined    = "combined"
	StageContour     = "contour"
	StageCylindrical = "cylindrical"
	StageUnsharp     = "unsharp"
)

// Preprocessor prepares an analysis image.
type Preprocessor interface {
	Preprocess(img image.Image) (*image.Gray, error)
}

// SpineDetector classifies a source as spread or single page.
type SpineDetector interface {
	DetectSpine(img image.Image) (types.SpineInfo, error)
}

// Splitter cuts a spread into its two pages.
type Splitter interface {
	SplitAlongSpine(img image.Image, spine types.SpineInfo) (image.Image, image.Image, error)
	Extents(w, h int, spine types.SpineInfo) (int, int)
}

// BoundaryDetector locates the page quadrilateral. A nil boundary with a nil
// error means detection is disabled.
type BoundaryDetector interface {
	DetectBoundary(img image.Image) (*types.PageBoundary, error)
}

// PerspectiveCorrector maps a boundary onto an upright rectangle.
type PerspectiveCorrector interface {
	Correct(img image.Image, boundary types.PageBoundary) (image.Image, error)
}

// Dewarper straightens curved text lines.
type Dewarper interface {
	Dewarp(img image.Image) (dewarp.Result, error)
}

// Postprocessor runs the final enhancement pass. Returning img itself means
// nothing was applied.
type Postprocessor interface {
	Postprocess(img image.Image) (image.Image, error)
}

// Stages is one concrete set of stage implementations.
type Stages struct {
	Preprocess  Preprocessor
	Spine       SpineDetector
	Split       Splitter
	Boundary    BoundaryDetector
	Perspective PerspectiveCorrector
	Dewarp      Dewarper
	Postprocess Postprocessor
}

// StageNames selects stage variants by name.
type StageNames struct {
	Spine       string `json:"spine" yaml:"spine"`
	Boundary    string `json:"boundary" yaml:"boundary"`
	Dewarp      string `json:"dewarp" yaml:"dewarp"`
	Postprocess string `json:"postprocess" yaml:"postprocess"`
}

// DefaultStageNames enables every stage.
func DefaultStageNames() StageNames {
	return StageNames{
		Spine:       StageCombined,
		Boundary:    StageContour,
		Dewarp:      StageCylindrical,
		Postprocess: StageUnsharp,
	}
}

// BuildStages instantiates the variants named in cfg.Stages. Unknown names
// are Configuration failures.
func BuildStages(cfg Config) (Stages, error) {
	s := Stages{
		Preprocess:  processing.NewPreprocessor(cfg.Preprocess),
		Split:       cropper.NewWithConfig(cfg.Split),
		Perspective: perspective.NewWithConfig(cfg.Perspective),
	}

	switch cfg.Stages.Spine {
	case StageCombined, "":
		s.Spine = spine.NewWithConfig(cfg.Spine)
	case StageNone:
		s.Spine = singlePage{}
	default:
		return Stages{}, unknownStage("spine", cfg.Stages.Spine)
	}

	switch cfg.Stages.Boundary {
	case StageContour, "":
		s.Boundary = boundary.NewWithConfig(cfg.Boundary)
	case StageNone:
		s.Boundary = noBoundary{}
	default:
		return Stages{}, unknownStage("boundary", cfg.Stages.Boundary)
	}

	switch cfg.Stages.Dewarp {
	case StageCylindrical, "":
		s.Dewarp = dewarp.NewWithConfig(cfg.Dewarp)
	case StageNone:
		s.Dewarp = flatPage{}
	default:
		return Stages{}, unknownStage("dewarp", cfg.Stages.Dewarp)
	}

	switch cfg.Stages.Postprocess {
	case StageUnsharp, "":
		s.Postprocess = processing.NewPostprocessor(cfg.Postprocess)
	case StageNone:
		s.Postprocess = passthrough{}
	default:
		return Stages{}, unknownStage("postprocess", cfg.Stages.Postprocess)
	}
	return s, nil
}

func unknownStage(stage, name string) error {
	return failure.Newf(failure.Configuration, "build stages", "unknown %s stage %q", stage, name)
}

// singlePage treats every source as one page.
type singlePage struct{}

func (singlePage) DetectSpine(image.Image) (types.SpineInfo, error) {
	return types.SpineInfo{}, nil
}

type noBoundary struct{}

func (noBoundary) DetectBoundary(image.Image) (*types.PageBoundary, error) {
	return nil, nil
}

type flatPage struct{}

func (flatPage) Dewarp(img image.Image) (dewarp.Result, error) {
	return dewarp.Result{
		Image:     img,
		Curvature: types.CurvatureParams{CurveType: types.CurveNone, Direction: types.DirectionHorizontal},
	}, nil
}

type passthrough struct{}

func (passthrough) Postprocess(img image.Image) (image.Image, error) {
	return img, nil
}
