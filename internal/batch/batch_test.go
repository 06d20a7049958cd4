package batch

import (
	"context"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/menta2k/page-rectifier/internal/config"
	"github.com/menta2k/page-rectifier/pkg/analyzer"
	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createSpread renders two text pages around a dark gutter at spineX.
func createSpread(w, h, spineX int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := float64(x - spineX)
			v := 225.0
			inText := y%40 >= 20 && y%40 < 28 && y > 100 && y < h-100
			if inText && ((x > w*6/100 && d < -float64(w)*0.08) || (x < w*94/100 && d > float64(w)*0.08)) {
				v = 40
			}
			v -= 120 * math.Exp(-d*d/(2*25*25))
			if math.Abs(d) < 2 {
				v = 20
			}
			if v < 0 {
				v = 0
			}
			img.Pix[y*img.Stride+x] = uint8(v)
		}
	}
	return img
}

// createSinglePage renders text lines running across the whole page
func createSinglePage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(225)
			if y%40 >= 20 && y%40 < 28 && y > 80 && y < h-80 && x > 50 && x < w-50 {
				v = 40
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img
}

// createInputDir writes a spread, a single page, a corrupted JPEG and a
// non-image file.
func createInputDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	codec := analyzer.New()
	if err := codec.SaveImage(createSpread(1000, 1400, 500), filepath.Join(dir, "a_spread.png")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b_broken.jpg"), []byte("definitely not a jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := codec.SaveImage(createSinglePage(700, 1000), filepath.Join(dir, "c_single.png")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func testConfig(t *testing.T, input string) *config.Config {
	cfg := config.Default()
	cfg.Input.Dir = input
	cfg.Output.Dir = filepath.Join(t.TempDir(), "out")
	cfg.Test.OutputDir = filepath.Join(t.TempDir(), "test-out")
	cfg.Output.ReportFormats = []string{"yaml", "parquet"}
	return cfg
}

func runBatch(t *testing.T, mode Mode, cfg *config.Config) (*types.BatchReport, *RunContext) {
	t.Helper()
	rc := NewRunContext(mode, cfg, quietLogger())
	runner, err := NewRunner(rc)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return report, rc
}

func TestRunProcessesEverySource(t *testing.T) {
	cfg := testConfig(t, createInputDir(t))
	report, _ := runBatch(t, ModeBatch, cfg)

	if report.Discovered != 3 || report.TotalImages != 3 || len(report.Results) != 3 {
		t.Fatalf("Expected 3 sources, got discovered=%d total=%d results=%d",
			report.Discovered, report.TotalImages, len(report.Results))
	}
	if report.Successful != 2 || report.Failed != 1 {
		t.Errorf("Expected 2 successful and 1 failed, got %d/%d", report.Successful, report.Failed)
	}

	spread, broken, single := report.Results[0], report.Results[1], report.Results[2]
	if broken.SourceFilename != "b_broken.jpg" || broken.Success || broken.Error == "" {
		t.Errorf("Expected corrupted image recorded as failed with an error, got %+v", broken)
	}
	if !spread.IsTwoPage || spread.PagesGenerated != 2 {
		t.Errorf("Expected a two-page result, got two_page=%v pages=%d", spread.IsTwoPage, spread.PagesGenerated)
	}
	if single.IsTwoPage || single.PagesGenerated != 1 {
		t.Errorf("Expected a single-page result, got two_page=%v pages=%d", single.IsTwoPage, single.PagesGenerated)
	}
	if report.PagesWritten != 3 {
		t.Errorf("Expected 3 pages written, got %d", report.PagesWritten)
	}

	for _, name := range []string{"a_spread_left.png", "a_spread_right.png", "c_single_single.png", "report.yaml", "report.parquet"} {
		if _, err := os.Stat(filepath.Join(cfg.Output.Dir, name)); err != nil {
			t.Errorf("Expected %s: %v", name, err)
		}
	}

	rows, err := parquet.ReadFile[PageRow](filepath.Join(cfg.Output.Dir, "report.parquet"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("Expected 4 parquet rows, got %d", len(rows))
	}
}

func TestSaveFailureRetriesAndFailsOnlyThatSource(t *testing.T) {
	cfg := testConfig(t, createInputDir(t))
	cfg.Output.ReportFormats = nil
	if err := os.MkdirAll(filepath.Join(cfg.Output.Dir, "c_single_single.png"), 0755); err != nil {
		t.Fatal(err)
	}

	report, _ := runBatch(t, ModeBatch, cfg)
	if len(report.Results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(report.Results))
	}
	spread, single := report.Results[0], report.Results[2]

	if single.Success || single.Error == "" {
		t.Errorf("Expected the blocked source to fail with an error, got %+v", single)
	}
	if len(single.Pages) != 1 {
		t.Fatalf("Expected 1 page record, got %d", len(single.Pages))
	}
	page := single.Pages[0]
	if page.Attempts != 2 {
		t.Errorf("Expected 2 save attempts, got %d", page.Attempts)
	}
	if page.Error == "" || page.Success {
		t.Errorf("Expected a page error, got %+v", page)
	}

	if !spread.Success || spread.PagesGenerated != 2 {
		t.Errorf("Expected the spread to still succeed, got %+v", spread)
	}
	for _, p := range spread.Pages {
		if p.Attempts != 1 {
			t.Errorf("Expected %s page saved on the first attempt, got %d", p.Side, p.Attempts)
		}
	}
	if report.Successful != 1 || report.Failed != 2 {
		t.Errorf("Expected 1 successful and 2 failed, got %d/%d", report.Successful, report.Failed)
	}
}

func TestProcessingLogContents(t *testing.T) {
	cfg := testConfig(t, createInputDir(t))
	cfg.Output.ReportFormats = nil
	runBatch(t, ModeBatch, cfg)
	runBatch(t, ModeBatch, cfg)

	data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, cfg.Output.LogFile))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	log := string(data)

	if n := strings.Count(log, "Page rectification log"); n != 1 {
		t.Errorf("Expected the log to be overwritten, found %d headers", n)
	}
	for _, want := range []string{
		"Images discovered: 3",
		"[OK]   a_spread.png",
		"[FAIL] b_broken.jpg  error: ",
		"[OK]   c_single.png",
		"Successful:    2",
		"Failed:        1",
		"Elapsed:",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("Log missing %q:\n%s", want, log)
		}
	}
}

func TestTestModeUsesSampleIndices(t *testing.T) {
	cfg := testConfig(t, createInputDir(t))
	cfg.Test.SampleIndices = []int{2, 9}
	report, rc := runBatch(t, ModeTest, cfg)

	if report.Discovered != 3 || report.TotalImages != 1 {
		t.Fatalf("Expected 1 of 3 sources, got %d of %d", report.TotalImages, report.Discovered)
	}
	if report.Results[0].SourceFilename != "c_single.png" {
		t.Errorf("Expected c_single.png, got %s", report.Results[0].SourceFilename)
	}
	if rc.OutputDir() != cfg.Test.OutputDir {
		t.Errorf("Expected test output dir, got %s", rc.OutputDir())
	}
	if _, err := os.Stat(filepath.Join(cfg.Test.OutputDir, "c_single_single.png")); err != nil {
		t.Errorf("Expected page in test output dir: %v", err)
	}
}

func TestParallelRunKeepsOrder(t *testing.T) {
	cfg := testConfig(t, createInputDir(t))
	cfg.Batch.Workers = 0
	report, _ := runBatch(t, ModeBatch, cfg)

	want := []string{"a_spread.png", "b_broken.jpg", "c_single.png"}
	for i, res := range report.Results {
		if res.SourceFilename != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, res.SourceFilename)
		}
	}
}

func TestRunRejectsMissingInputDir(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing"))
	runner, err := NewRunner(NewRunContext(ModeBatch, cfg, quietLogger()))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	report, err := runner.Run(context.Background())
	if !failure.Is(err, failure.Configuration) {
		t.Errorf("Expected Configuration failure, got %v", err)
	}
	if report != nil {
		t.Error("Expected no report for an aborted run")
	}
}

func TestNewRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Quality = 0
	if _, err := NewRunner(NewRunContext(ModeBatch, cfg, quietLogger())); !failure.Is(err, failure.Configuration) {
		t.Errorf("Expected Configuration failure, got %v", err)
	}
}

func TestRunContextsAreIndependent(t *testing.T) {
	cfg := config.Default()
	batch := NewRunContext(ModeBatch, cfg, quietLogger())
	test := NewRunContext(ModeTest, cfg, quietLogger())

	test.Config.Dewarp.Strength = 2
	test.Config.Test.SampleIndices[0] = 42

	if batch.Config.Dewarp.Strength != 1 || batch.Config.Test.SampleIndices[0] == 42 {
		t.Error("Tuning the test run changed the batch run")
	}
	if cfg.Dewarp.Strength != 1 {
		t.Error("Run context mutated the caller's config")
	}
	if batch.ID == test.ID || batch.ID == "" {
		t.Errorf("Expected distinct run ids, got %q and %q", batch.ID, test.ID)
	}
}

func TestWriteProcessingLogFailureMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	report := &types.BatchReport{
		RunID:       "run-1",
		Mode:        "batch",
		Discovered:  1,
		TotalImages: 1,
		Failed:      1,
		StartedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Results:     []types.ProcessingResult{{SourceFilename: "x.jpg"}},
	}

	if err := WriteProcessingLog(path, report); err != nil {
		t.Fatalf("WriteProcessingLog failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "[FAIL] x.jpg  error: unknown error") {
		t.Errorf("Expected a non-empty failure description:\n%s", data)
	}
	if !strings.Contains(string(data), "2024-01-02T03:04:05Z") {
		t.Errorf("Expected start time in log:\n%s", data)
	}
}

func TestPageRowsForFailedSource(t *testing.T) {
	report := &types.BatchReport{
		RunID: "r",
		Results: []types.ProcessingResult{
			{SourceFilename: "bad.jpg", Error: "decode image: unexpected EOF"},
			{SourceFilename: "ok.png", Success: true, Pages: []types.PageResult{
				{Side: types.SideLeft, Success: true, Warnings: []string{"a", "b"}},
				{Side: types.SideRight, Success: true},
			}},
		},
	}

	rows := PageRows(report)
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0].Error == "" || rows[0].Side != "" {
		t.Errorf("Unexpected failed-source row %+v", rows[0])
	}
	if rows[1].Warnings != "a; b" || rows[2].Side != "right" {
		t.Errorf("Unexpected page rows %+v %+v", rows[1], rows[2])
	}
}
