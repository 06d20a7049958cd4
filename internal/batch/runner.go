package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/menta2k/page-rectifier/internal/utils"
	"github.com/menta2k/page-rectifier/pkg/analyzer"
	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/pipeline"
	"github.com/menta2k/page-rectifier/pkg/processing"
	"github.com/menta2k/page-rectifier/pkg/types"
)

// Runner drives one run.
type Runner struct {
	rc       *RunContext
	codec    *analyzer.ImageAnalyzer
	pipeline *pipeline.Pipeline
}

// NewRunner validates the run configuration and builds the pipeline. Any
// error is a Configuration failure.
func NewRunner(rc *RunContext) (*Runner, error) {
	if err := rc.Config.Validate(); err != nil {
		return nil, err
	}
	p, err := pipeline.New(rc.Config.Pipeline())
	if err != nil {
		return nil, err
	}
	return &Runner{
		rc:       rc,
		codec:    analyzer.NewWithConfig(rc.Config.Analyzer()),
		pipeline: p,
	}, nil
}

// Run processes every discovered source and writes the processing log and
// the configured reports. Only configuration-level problems (bad input
// directory, unusable output directory) abort the run; they are returned
// before any image is touched. Per-image failures end up in the report.
// A report write failure is returned together with the complete report.
func (r *Runner) Run(ctx context.Context) (*types.BatchReport, error) {
	rc := r.rc
	cfg := rc.Config
	logger := rc.Logger
	outDir := rc.OutputDir()

	if err := utils.EnsureDir(outDir); err != nil {
		return nil, err
	}
	if cfg.Output.Debug {
		if err := utils.EnsureDir(filepath.Join(outDir, "debug")); err != nil {
			return nil, err
		}
	}

	discovered, err := utils.ListImageFiles(cfg.Input.Dir, cfg.Input.Extensions)
	if err != nil {
		return nil, err
	}
	files := discovered
	if rc.Mode == ModeTest {
		var skipped []int
		files, skipped = utils.SelectIndices(discovered, cfg.Test.SampleIndices)
		for _, i := range skipped {
			logger.Warn("Sample index out of range", "index", i, "discovered", len(discovered))
		}
	}
	logger.Info("Starting run", "input", cfg.Input.Dir, "output", outDir, "discovered", len(discovered), "selected", len(files))

	report := &types.BatchReport{
		RunID:       rc.ID,
		Mode:        string(rc.Mode),
		InputDir:    cfg.Input.Dir,
		OutputDir:   outDir,
		Discovered:  len(discovered),
		TotalImages: len(files),
		StartedAt:   rc.StartedAt,
		Results:     r.processAll(ctx, files, outDir),
	}
	for _, res := range report.Results {
		if res.Success {
			report.Successful++
		} else {
			report.Failed++
		}
		for _, p := range res.Pages {
			if p.OutputPath != "" {
				report.PagesWritten++
			}
		}
	}
	report.Elapsed = time.Since(rc.StartedAt)

	logger.Info("Run finished",
		"successful", report.Successful,
		"failed", report.Failed,
		"pages", report.PagesWritten,
		"elapsed", report.Elapsed.Round(time.Millisecond))

	return report, r.writeReports(report, outDir)
}

// processAll runs the sources on a bounded worker pool. Results keep the
// discovery order regardless of completion order.
func (r *Runner) processAll(ctx context.Context, files []string, outDir string) []types.ProcessingResult {
	results := make([]types.ProcessingResult, len(files))
	workers := r.rc.Config.Batch.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, path := range files {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()

			r.rc.Logger.Info("Processing image", "file", filepath.Base(path), "progress", fmt.Sprintf("%d/%d", i+1, len(files)))
			results[i] = r.processSource(ctx, path, outDir)
		}(i, path)
	}
	wg.Wait()
	return results
}

// processSource never panics and always returns a result with a non-empty
// Error when Success is false.
func (r *Runner) processSource(ctx context.Context, path, outDir string) (res types.ProcessingResult) {
	start := time.Now()
	res.SourceFilename = filepath.Base(path)
	logger := r.rc.Logger.With("file", res.SourceFilename)

	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Error = fmt.Sprintf("panic during processing: %v", p)
			logger.Error("Recovered from panic", "panic", p)
		}
		res.ProcessingTime = time.Since(start)
	}()

	img, err := r.codec.LoadImage(path)
	if err == nil {
		err = r.codec.ValidateImage(img)
	}
	if err != nil {
		res.Error = err.Error()
		logger.Error("Failed to load image", "error", err)
		return res
	}
	b := img.Bounds()
	res.InputDimensions = types.Dimensions{Width: b.Dx(), Height: b.Dy()}

	if secs := r.rc.Config.Batch.ImageTimeoutSeconds; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs*float64(time.Second)))
		defer cancel()
	}

	out, err := r.pipeline.Process(ctx, logger, img)
	if err != nil {
		res.Error = err.Error()
		logger.Error("Pipeline failed", "error", err, "kind", string(failure.KindOf(err)))
		return res
	}

	res.Spine = out.Spine
	res.IsTwoPage = out.Spine.IsTwoPage
	res.SpineDetected = out.Spine.Detected
	res.PagesGenerated = len(out.Pages)

	var pageErrs []string
	for _, page := range out.Pages {
		pr := page.Result
		target := utils.PageOutputPath(outDir, path, pr.Side, r.rc.Config.Output.Format)
		attempts, err := r.codec.SaveWithRetry(page.Image, target, r.rc.Config.Batch.SaveRetries)
		pr.Attempts = attempts
		if err != nil {
			pr.Success = false
			pr.Error = err.Error()
			pageErrs = append(pageErrs, fmt.Sprintf("%s: %v", pr.Side, err))
			logger.Error("Failed to save page", "side", string(pr.Side), "path", target, "attempts", attempts, "error", err)
		} else {
			pr.OutputPath = target
			res.OutputDimensions = append(res.OutputDimensions, pr.OutputDimensions)
			attrs := []any{"side", string(pr.Side), "path", target}
			if info, statErr := os.Stat(target); statErr == nil {
				attrs = append(attrs, "size", utils.FormatFileSize(info.Size()))
			}
			logger.Info("Wrote page", attrs...)
		}
		res.PageDetected = res.PageDetected || pr.PageDetected
		res.PerspectiveApplied = res.PerspectiveApplied || pr.PerspectiveApplied
		res.DewarpApplied = res.DewarpApplied || pr.DewarpApplied
		res.Pages = append(res.Pages, pr)
	}

	if r.rc.Config.Output.Debug {
		r.writeOverlay(img, out, outDir, path, logger)
	}

	res.Success = len(pageErrs) == 0
	if !res.Success {
		res.Error = strings.Join(pageErrs, "; ")
	}
	return res
}

func (r *Runner) writeOverlay(img image.Image, out *pipeline.Output, outDir, source string, logger *slog.Logger) {
	var quads []types.PageBoundary
	for _, p := range out.Pages {
		if p.Result.Boundary == nil {
			continue
		}
		q := *p.Result.Boundary
		for i := range q.Corners {
			q.Corners[i].X += float64(p.Offset.X)
			q.Corners[i].Y += float64(p.Offset.Y)
		}
		quads = append(quads, q)
	}
	overlay := processing.CreateDebugOverlay(img, &out.Spine, quads)
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	target := filepath.Join(outDir, "debug", base+"_debug.png")
	if err := r.codec.SaveImage(overlay, target); err != nil {
		logger.Warn("Failed to write debug overlay", "path", target, "error", err)
	}
}

func (r *Runner) writeReports(report *types.BatchReport, outDir string) error {
	cfg := r.rc.Config
	var errs []error

	logPath := filepath.Join(outDir, cfg.Output.LogFile)
	if err := WriteProcessingLog(logPath, report); err != nil {
		errs = append(errs, err)
	} else {
		r.rc.Logger.Info("Wrote processing log", "path", logPath)
	}

	for _, format := range cfg.Output.ReportFormats {
		var err error
		var path string
		switch format {
		case "yaml":
			path = filepath.Join(outDir, "report.yaml")
			err = WriteYAMLReport(path, report)
		case "parquet":
			path = filepath.Join(outDir, "report.parquet")
			err = WriteParquetReport(path, report)
		default:
			err = failure.Newf(failure.Configuration, "write report", "unknown report format %q", format)
		}
		if err != nil {
			errs = append(errs, err)
			r.rc.Logger.Error("Failed to write report", "format", format, "error", err)
			continue
		}
		r.rc.Logger.Info("Wrote report", "format", format, "path", path)
	}
	return errors.Join(errs...)
}
