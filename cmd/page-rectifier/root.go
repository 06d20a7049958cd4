package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/menta2k/page-rectifier/internal/config"
	"github.com/menta2k/page-rectifier/internal/utils"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "page-rectifier",
		Short: "Rectify scanned book spreads into flat single pages",
		Long: `page-rectifier splits scanned two-page spreads along the spine, finds each
page outline, removes perspective skew and straightens curved text lines.

Every run writes one page image per detected page, a processing log and
optional YAML/Parquet reports. A failing image never stops the run.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"config file (.yaml or .json); defaults to $"+config.EnvConfigPath+" or ~/.config/page-rectifier/config.yaml")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format: text|json (overrides config)")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newTestCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))

	return cmd
}

// loadConfig reads the explicit config file, falls back to the default
// location when a file exists there, and otherwise uses the defaults.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	path := f.configPath
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("Loaded config", "path", path)
	return cfg, nil
}

// setupLogger installs the slog default logger described by cfg and the
// command line overrides.
func (f *globalFlags) setupLogger(cfg *config.Config) *slog.Logger {
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}

	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func printSummary(cmd *cobra.Command, successful, failed, pages int, rate float64, outDir string) {
	fmt.Fprintf(cmd.OutOrStdout(), "Processed %d images: %d succeeded, %d failed (%.1f%%), %d pages written to %s\n",
		successful+failed, successful, failed, rate*100, pages, outDir)
}
