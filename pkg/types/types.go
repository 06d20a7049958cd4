// Package types holds the data model shared by the rectification stages and
// the batch orchestrator.
package types

import (
	"math"
	"time"

	"github.com/menta2k/page-rectifier/pkg/geometry"
)

// SpineInfo describes the binding line of a two-page spread.
type SpineInfo struct {
	Detected     bool    `json:"detected" yaml:"detected"`
	IsTwoPage    bool    `json:"is_two_page" yaml:"is_two_page"`
	XPosition    int     `json:"x_position" yaml:"x_position"`
	AngleDegrees float64 `json:"angle_degrees" yaml:"angle_degrees"`
	Confidence   float64 `json:"confidence" yaml:"confidence"`
	// Borderline marks decisions whose confidence sat close to the threshold.
	Borderline bool `json:"borderline" yaml:"borderline"`
}

// XAt returns the spine's x coordinate at row y of an image of height h.
// XPosition is measured at mid-height.
func (s SpineInfo) XAt(y float64, h int) float64 {
	return float64(s.XPosition) + (y-float64(h)/2)*tanDeg(s.AngleDegrees)
}

// PageBoundary is the quadrilateral outline of a page, corners in TL, TR, BR, BL order.
type PageBoundary struct {
	Corners    [4]geometry.Point2D `json:"corners" yaml:"corners"`
	Confidence float64             `json:"confidence" yaml:"confidence"`
	Area       float64             `json:"area" yaml:"area"`
}

// Points returns the corners as a slice.
func (b PageBoundary) Points() []geometry.Point2D {
	return b.Corners[:]
}

// Scaled returns the boundary with every coordinate multiplied by f.
func (b PageBoundary) Scaled(f float64) PageBoundary {
	out := b
	for i := range out.Corners {
		out.Corners[i] = out.Corners[i].Scale(f)
	}
	out.Area = b.Area * f * f
	return out
}

// CurveType enumerates curvature models.
type CurveType string

const (
	CurveNone        CurveType = "none"
	CurveCylindrical CurveType = "cylindrical"
	CurvePolynomial  CurveType = "polynomial"
)

// CurveDirection is the axis along which baselines bend.
type CurveDirection string

const (
	DirectionHorizontal CurveDirection = "horizontal"
	DirectionVertical   CurveDirection = "vertical"
	DirectionBoth       CurveDirection = "both"
)

// CurvatureParams is the fitted page-curvature model.
type CurvatureParams struct {
	CurveType    CurveType      `json:"curve_type" yaml:"curve_type"`
	Coefficients []float64      `json:"coefficients" yaml:"coefficients"`
	Strength     float64        `json:"strength" yaml:"strength"`
	Direction    CurveDirection `json:"direction" yaml:"direction"`
}

// PageSide names an output page relative to its source image.
type PageSide string

const (
	SideLeft   PageSide = "left"
	SideRight  PageSide = "right"
	SideSingle PageSide = "single"
)

// Suffix returns the filename suffix for the side, e.g. "_left".
func (s PageSide) Suffix() string {
	return "_" + string(s)
}

// Dimensions is a width/height pair.
type Dimensions struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// PageResult records what happened to one output page.
type PageResult struct {
	Side               PageSide         `json:"side" yaml:"side"`
	OutputPath         string           `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Success            bool             `json:"success" yaml:"success"`
	Error              string           `json:"error,omitempty" yaml:"error,omitempty"`
	Warnings           []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	OutputDimensions   Dimensions       `json:"output_dimensions" yaml:"output_dimensions"`
	PageDetected       bool             `json:"page_detected" yaml:"page_detected"`
	PerspectiveApplied bool             `json:"perspective_applied" yaml:"perspective_applied"`
	DewarpApplied      bool             `json:"dewarp_applied" yaml:"dewarp_applied"`
	PostprocessApplied bool             `json:"postprocess_applied" yaml:"postprocess_applied"`
	Attempts           int              `json:"attempts" yaml:"attempts"`
	Boundary           *PageBoundary    `json:"boundary,omitempty" yaml:"boundary,omitempty"`
	Curvature          *CurvatureParams `json:"curvature,omitempty" yaml:"curvature,omitempty"`
}

// ProcessingResult is the record for one source image. It is built once when
// the image finishes and never modified afterwards.
type ProcessingResult struct {
	SourceFilename     string        `json:"source_filename" yaml:"source_filename"`
	Success            bool          `json:"success" yaml:"success"`
	Error              string        `json:"error,omitempty" yaml:"error,omitempty"`
	ProcessingTime     time.Duration `json:"processing_time" yaml:"processing_time"`
	InputDimensions    Dimensions    `json:"input_dimensions" yaml:"input_dimensions"`
	OutputDimensions   []Dimensions  `json:"output_dimensions" yaml:"output_dimensions"`
	IsTwoPage          bool          `json:"is_two_page" yaml:"is_two_page"`
	SpineDetected      bool          `json:"spine_detected" yaml:"spine_detected"`
	Spine              SpineInfo     `json:"spine" yaml:"spine"`
	PagesGenerated     int           `json:"pages_generated" yaml:"pages_generated"`
	PageDetected       bool          `json:"page_detected" yaml:"page_detected"`
	PerspectiveApplied bool          `json:"perspective_applied" yaml:"perspective_applied"`
	DewarpApplied      bool          `json:"dewarp_applied" yaml:"dewarp_applied"`
	Pages              []PageResult  `json:"pages" yaml:"pages"`
}

// BatchReport aggregates the results of one run.
type BatchReport struct {
	RunID        string             `json:"run_id" yaml:"run_id"`
	Mode         string             `json:"mode" yaml:"mode"`
	InputDir     string             `json:"input_dir" yaml:"input_dir"`
	OutputDir    string             `json:"output_dir" yaml:"output_dir"`
	Discovered   int                `json:"discovered" yaml:"discovered"`
	TotalImages  int                `json:"total_images" yaml:"total_images"`
	Successful   int                `json:"successful" yaml:"successful"`
	Failed       int                `json:"failed" yaml:"failed"`
	PagesWritten int                `json:"pages_written" yaml:"pages_written"`
	StartedAt    time.Time          `json:"started_at" yaml:"started_at"`
	Elapsed      time.Duration      `json:"elapsed" yaml:"elapsed"`
	Results      []ProcessingResult `json:"results" yaml:"results"`
}

// SuccessRate returns the fraction of processed images that succeeded.
func (r BatchReport) SuccessRate() float64 {
	if r.TotalImages == 0 {
		return 0
	}
	return float64(r.Successful) / float64(r.TotalImages)
}

func tanDeg(deg float64) float64 {
	return math.Tan(deg * math.Pi / 180)
}
