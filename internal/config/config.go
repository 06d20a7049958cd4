package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/page-rectifier/pkg/analyzer"
	"github.com/menta2k/page-rectifier/pkg/failure"
	"github.com/menta2k/page-rectifier/pkg/pipeline"
)

// EnvConfigPath names the environment variable holding the default config file.
const EnvConfigPath = "PAGE_RECTIFIER_CONFIG"

// Config holds the configuration of one run. Stage sections are inlined
// from the pipeline so the file reads as flat top-level sections.
type Config struct {
	Input           InputConfig   `json:"input" yaml:"input"`
	Output          OutputConfig  `json:"output" yaml:"output"`
	pipeline.Config `yaml:",inline"`
	Batch           BatchConfig   `json:"batch" yaml:"batch"`
	Test            TestConfig    `json:"test" yaml:"test"`
	Logging         LoggingConfig `json:"logging" yaml:"logging"`
}

// InputConfig describes where source images come from
type InputConfig struct {
	Dir        string   `json:"dir" yaml:"dir"`
	Extensions []string `json:"extensions" yaml:"extensions"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Dir     string `json:"dir" yaml:"dir"`
	Format  string `json:"format" yaml:"format"`
	Quality int    `json:"quality" yaml:"quality"`
	// Debug writes spine/boundary overlays to <dir>/debug.
	Debug         bool     `json:"debug" yaml:"debug"`
	LogFile       string   `json:"log_file" yaml:"log_file"`
	ReportFormats []string `json:"report_formats" yaml:"report_formats"`
}

// BatchConfig controls how a run is scheduled
type BatchConfig struct {
	// Workers is the number of images processed at once; 0 means one per CPU.
	Workers int `json:"workers" yaml:"workers"`
	// ImageTimeoutSeconds is the soft per-image limit; 0 disables it.
	ImageTimeoutSeconds float64 `json:"image_timeout_seconds" yaml:"image_timeout_seconds"`
	SaveRetries         int     `json:"save_retries" yaml:"save_retries"`
}

// TestConfig selects the sample processed in test mode
type TestConfig struct {
	SampleIndices []int  `json:"sample_indices" yaml:"sample_indices"`
	OutputDir     string `json:"output_dir" yaml:"output_dir"`
}

// LoggingConfig selects the slog handler
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

var (
	outputFormats = []string{"png", "jpg", "jpeg", "tif", "tiff", "webp"}
	reportFormats = []string{"yaml", "parquet"}
	logLevels     = []string{"debug", "info", "warn", "error"}
	logFormats    = []string{"text", "json"}
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Input: InputConfig{
			Dir:        "./input",
			Extensions: []string{".jpg", ".jpeg", ".png", ".tif", ".tiff", ".bmp", ".webp"},
		},
		Output: OutputConfig{
			Dir:           "./output",
			Format:        "png",
			Quality:       95,
			LogFile:       "processing_log.txt",
			ReportFormats: []string{"yaml"},
		},
		Config: pipeline.DefaultConfig(),
		Batch: BatchConfig{
			Workers:     1,
			SaveRetries: 1,
		},
		Test: TestConfig{
			SampleIndices: []int{0, 1, 2},
			OutputDir:     "./output/test",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML (.yaml, .yml) or JSON (.json) file. Keys missing from
// the file keep their default values.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, failure.New(failure.Configuration, "load config", fmt.Errorf("failed to read config file: %w", err))
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, failure.Newf(failure.Configuration, "load config", "unsupported config format %q", ext)
	}
	if err != nil {
		return nil, failure.New(failure.Configuration, "load config", fmt.Errorf("failed to parse config file: %w", err))
	}
	return cfg, nil
}

// Save writes the configuration as YAML or JSON depending on the extension.
func (c *Config) Save(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml", "":
		data, err = yaml.Marshal(c)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Clone returns a deep copy, so a test-mode run can be tuned without
// touching the batch configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Input.Extensions = slices.Clone(c.Input.Extensions)
	out.Output.ReportFormats = slices.Clone(c.Output.ReportFormats)
	out.Test.SampleIndices = slices.Clone(c.Test.SampleIndices)
	return &out
}

// Validate checks if the configuration is valid. Every problem is a
// Configuration failure.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return failure.Newf(failure.Configuration, "validate config", format, args...)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return invalid("output.quality must be between 1 and 100")
	}
	if !slices.Contains(outputFormats, strings.ToLower(c.Output.Format)) {
		return invalid("output.format %q is not one of %v", c.Output.Format, outputFormats)
	}
	for _, f := range c.Output.ReportFormats {
		if !slices.Contains(reportFormats, f) {
			return invalid("output.report_formats: unknown format %q", f)
		}
	}
	if c.Output.LogFile == "" {
		return invalid("output.log_file cannot be empty")
	}
	if len(c.Input.Extensions) == 0 {
		return invalid("input.extensions cannot be empty")
	}

	if c.Preprocess.LowPercentile < 0 || c.Preprocess.HighPercentile > 1 || c.Preprocess.LowPercentile >= c.Preprocess.HighPercentile {
		return invalid("preprocess percentiles must satisfy 0 <= low < high <= 1")
	}

	if c.Spine.CentralBandRatio <= 0 || c.Spine.CentralBandRatio > 1 {
		return invalid("spine.central_band_ratio must be in (0, 1]")
	}
	if c.Spine.MinConfidence < 0 || c.Spine.MinConfidence > 1 {
		return invalid("spine.min_confidence must be between 0 and 1")
	}
	if c.Spine.ToleranceRatio < 0 {
		return invalid("spine.tolerance_ratio must not be negative")
	}
	if c.Spine.CannyLow <= 0 || c.Spine.CannyLow >= c.Spine.CannyHigh {
		return invalid("spine canny thresholds must satisfy 0 < low < high")
	}

	if c.Split.MarginRatio < 0 || c.Split.MarginRatio >= 0.25 {
		return invalid("split.margin_ratio must be in [0, 0.25)")
	}

	if c.Boundary.CannyLow <= 0 || c.Boundary.CannyLow >= c.Boundary.CannyHigh {
		return invalid("boundary canny thresholds must satisfy 0 < low < high")
	}
	if c.Boundary.MinAreaRatio <= 0 || c.Boundary.MinAreaRatio > 1 {
		return invalid("boundary.min_area_ratio must be in (0, 1]")
	}
	if c.Boundary.ApproxEpsilon <= 0 || c.Boundary.ApproxEpsilon > 0.5 {
		return invalid("boundary.approx_epsilon must be in (0, 0.5]")
	}

	if c.Perspective.MaxAspectError <= 0 || c.Perspective.MaxEdgeDeviation <= 0 {
		return invalid("perspective tolerances must be positive")
	}

	if c.Dewarp.Strength <= 0 || c.Dewarp.Strength > 4 {
		return invalid("dewarp.strength must be in (0, 4]")
	}
	if c.Dewarp.CurvatureThreshold < 0 || c.Dewarp.CurvatureThreshold > 1 {
		return invalid("dewarp.curvature_threshold must be between 0 and 1")
	}
	if c.Dewarp.MaxDeviationRatio <= 0 {
		return invalid("dewarp.max_deviation_ratio must be positive")
	}
	if c.Dewarp.MinLines < 1 {
		return invalid("dewarp.min_lines must be at least 1")
	}

	if c.Postprocess.MinRetention < 0 || c.Postprocess.MinRetention > 1 {
		return invalid("postprocess.min_retention must be between 0 and 1")
	}

	if c.Batch.Workers < 0 {
		return invalid("batch.workers must not be negative")
	}
	if c.Batch.ImageTimeoutSeconds < 0 {
		return invalid("batch.image_timeout_seconds must not be negative")
	}
	if c.Batch.SaveRetries < 0 {
		return invalid("batch.save_retries must not be negative")
	}
	for _, i := range c.Test.SampleIndices {
		if i < 0 {
			return invalid("test.sample_indices must not contain negative values")
		}
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return invalid("logging.level %q is not one of %v", c.Logging.Level, logLevels)
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Logging.Format)) {
		return invalid("logging.format %q is not one of %v", c.Logging.Format, logFormats)
	}

	if _, err := pipeline.BuildStages(c.Config); err != nil {
		return err
	}
	return nil
}

// Pipeline returns the stage settings.
func (c *Config) Pipeline() pipeline.Config {
	return c.Config
}

// Analyzer returns the codec settings derived from the output section.
func (c *Config) Analyzer() analyzer.Config {
	cfg := analyzer.DefaultConfig()
	cfg.DefaultQuality = c.Output.Quality
	return cfg
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "page-rectifier", "config.yaml")
}
