package batch

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// WriteProcessingLog writes the human-readable log of a run to path,
// replacing any previous log.
func WriteProcessingLog(path string, report *types.BatchReport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return failure.New(failure.IO, "create processing log", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = failure.New(failure.IO, "close processing log", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "Page rectification log\n")
	fmt.Fprintf(w, "Run:      %s (%s)\n", report.RunID, report.Mode)
	fmt.Fprintf(w, "Started:  %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Input:    %s\n", report.InputDir)
	fmt.Fprintf(w, "Output:   %s\n", report.OutputDir)
	fmt.Fprintf(w, "Images discovered: %d\n", report.Discovered)
	fmt.Fprintf(w, "Images processed:  %d\n\n", report.TotalImages)

	for _, res := range report.Results {
		if res.Success {
			fmt.Fprintf(w, "[OK]   %s  pages=%d two_page=%t boundary=%t perspective=%t dewarp=%t  %s\n",
				res.SourceFilename, res.PagesGenerated, res.IsTwoPage,
				res.PageDetected, res.PerspectiveApplied, res.DewarpApplied,
				res.ProcessingTime.Round(time.Millisecond))
		} else {
			msg := res.Error
			if msg == "" {
				msg = "unknown error"
			}
			fmt.Fprintf(w, "[FAIL] %s  error: %s\n", res.SourceFilename, msg)
		}
		for _, p := range res.Pages {
			if p.OutputPath != "" {
				fmt.Fprintf(w, "       %-6s -> %s\n", p.Side, p.OutputPath)
			}
			for _, warning := range p.Warnings {
				fmt.Fprintf(w, "       %-6s warning: %s\n", p.Side, warning)
			}
		}
	}

	fmt.Fprintf(w, "\nSuccessful:    %d\n", report.Successful)
	fmt.Fprintf(w, "Failed:        %d\n", report.Failed)
	fmt.Fprintf(w, "Pages written: %d\n", report.PagesWritten)
	fmt.Fprintf(w, "Success rate:  %.1f%%\n", report.SuccessRate()*100)
	fmt.Fprintf(w, "Elapsed:       %s\n", report.Elapsed.Round(time.Millisecond))

	if err := w.Flush(); err != nil {
		return failure.New(failure.IO, "write processing log", err)
	}
	return nil
}

// WriteYAMLReport writes the full report as YAML.
func WriteYAMLReport(path string, report *types.BatchReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return failure.New(failure.IO, "write yaml report", err)
	}
	return nil
}

// PageRow is one row of the Parquet report: a written (or failed) page, or
// a source that failed before producing any page.
type PageRow struct {
	RunID              string  `parquet:"run_id"`
	Source             string  `parquet:"source"`
	Side               string  `parquet:"side"`
	Success            bool    `parquet:"success"`
	Error              string  `parquet:"error"`
	OutputPath         string  `parquet:"output_path"`
	Width              int64   `parquet:"width"`
	Height             int64   `parquet:"height"`
	IsTwoPage          bool    `parquet:"is_two_page"`
	SpineX             int64   `parquet:"spine_x"`
	SpineAngle         float64 `parquet:"spine_angle"`
	SpineConfidence    float64 `parquet:"spine_confidence"`
	PageDetected       bool    `parquet:"page_detected"`
	PerspectiveApplied bool    `parquet:"perspective_applied"`
	DewarpApplied      bool    `parquet:"dewarp_applied"`
	PostprocessApplied bool    `parquet:"postprocess_applied"`
	CurveType          string  `parquet:"curve_type"`
	CurvatureStrength  float64 `parquet:"curvature_strength"`
	Attempts           int64   `parquet:"attempts"`
	ProcessingMillis   int64   `parquet:"processing_ms"`
	Warnings           string  `parquet:"warnings"`
}

// PageRows flattens a report into Parquet rows.
func PageRows(report *types.BatchReport) []PageRow {
	var rows []PageRow
	for _, res := range report.Results {
		base := PageRow{
			RunID:            report.RunID,
			Source:           res.SourceFilename,
			IsTwoPage:        res.IsTwoPage,
			SpineX:           int64(res.Spine.XPosition),
			SpineAngle:       res.Spine.AngleDegrees,
			SpineConfidence:  res.Spine.Confidence,
			ProcessingMillis: res.ProcessingTime.Milliseconds(),
		}
		if len(res.Pages) == 0 {
			base.Error = res.Error
			rows = append(rows, base)
			continue
		}
		for _, p := range res.Pages {
			row := base
			row.Side = string(p.Side)
			row.Success = p.Success
			row.Error = p.Error
			row.OutputPath = p.OutputPath
			row.Width = int64(p.OutputDimensions.Width)
			row.Height = int64(p.OutputDimensions.Height)
			row.PageDetected = p.PageDetected
			row.PerspectiveApplied = p.PerspectiveApplied
			row.DewarpApplied = p.DewarpApplied
			row.PostprocessApplied = p.PostprocessApplied
			row.Attempts = int64(p.Attempts)
			row.Warnings = strings.Join(p.Warnings, "; ")
			if p.Curvature != nil {
				row.CurveType = string(p.Curvature.CurveType)
				row.CurvatureStrength = p.Curvature.Strength
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// WriteParquetReport writes one row per page to path.
func WriteParquetReport(path string, report *types.BatchReport) error {
	if err := parquet.WriteFile(path, PageRows(report)); err != nil {
		return failure.New(failure.IO, "write parquet report", err)
	}
	return nil
}
