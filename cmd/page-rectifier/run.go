package main

import (
	"github.com/spf13/cobra"

	"github.com/menta2k/page-rectifier/internal/batch"
	"github.com/menta2k/page-rectifier/internal/config"
)

// runOptions are the flags that override config values for one run.
type runOptions struct {
	input   string
	output  string
	format  string
	workers int
	timeout float64
	debug   bool
	reports []string
	samples []int
}

func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if o.input != "" {
		cfg.Input.Dir = o.input
	}
	if o.format != "" {
		cfg.Output.Format = o.format
	}
	if cmd.Flags().Changed("workers") {
		cfg.Batch.Workers = o.workers
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Batch.ImageTimeoutSeconds = o.timeout
	}
	if cmd.Flags().Changed("debug") {
		cfg.Output.Debug = o.debug
	}
	if cmd.Flags().Changed("report") {
		cfg.Output.ReportFormats = o.reports
	}
	if cmd.Flags().Changed("samples") {
		cfg.Test.SampleIndices = o.samples
	}
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "input directory of scans")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&o.format, "format", "f", "", "output format: png|tiff|webp|jpg")
	cmd.Flags().IntVarP(&o.workers, "workers", "w", 1, "images processed in parallel (0 = one per CPU)")
	cmd.Flags().Float64Var(&o.timeout, "timeout", 0, "soft per-image timeout in seconds (0 = none)")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "write spine/boundary overlays to <output>/debug")
	cmd.Flags().StringSliceVar(&o.reports, "report", nil, "extra reports: yaml,parquet")
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rectify every scan in the input directory",
		Example: `  # Rectify ./scans into ./pages as lossless PNG
  page-rectifier run -i scans -o pages

  # Four workers, TIFF output, YAML and Parquet reports
  page-rectifier run -i scans -o pages -f tiff -w 4 --report yaml,parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			o.apply(cmd, cfg)
			if o.output != "" {
				cfg.Output.Dir = o.output
			}
			return execute(cmd, flags, batch.ModeBatch, cfg)
		},
	}
	addRunFlags(cmd, o)

	return cmd
}

func newTestCmd(flags *globalFlags) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Rectify a sample of the input directory for tuning",
		Long: `Runs the pipeline on the scans at the given 0-based indices of the sorted
input listing and writes the results to the test output directory. The test
run gets its own copy of the configuration.`,
		Example: `  page-rectifier test -i scans --samples 0,5,12 --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			o.apply(cmd, cfg)
			if o.output != "" {
				cfg.Test.OutputDir = o.output
			}
			return execute(cmd, flags, batch.ModeTest, cfg)
		},
	}
	addRunFlags(cmd, o)
	cmd.Flags().IntSliceVar(&o.samples, "samples", nil, "0-based indices of the scans to process")

	return cmd
}

func execute(cmd *cobra.Command, flags *globalFlags, mode batch.Mode, cfg *config.Config) error {
	logger := flags.setupLogger(cfg)

	rc := batch.NewRunContext(mode, cfg, logger)
	runner, err := batch.NewRunner(rc)
	if err != nil {
		return err
	}
	report, err := runner.Run(cmd.Context())
	if report != nil {
		printSummary(cmd, report.Successful, report.Failed, report.PagesWritten, report.SuccessRate(), report.OutputDir)
	}
	return err
}
