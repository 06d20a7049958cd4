// Package batch runs the rectification pipeline over a directory of scans
// and writes the per-run processing log and reports.
package batch

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/page-rectifier/internal/config"
)

// Mode distinguishes full runs from sampled test runs.
type Mode string

const (
	ModeBatch Mode = "batch"
	ModeTest  Mode = "test"
)

// RunContext is created once per run and handed to every stage. It owns a
// private copy of the configuration and a logger tagged with the run id, so
// concurrent runs never share mutable state.
type RunContext struct {
	ID        string
	Mode      Mode
	Config    *config.Config
	Logger    *slog.Logger
	StartedAt time.Time
}

// NewRunContext clones cfg and derives a run logger from base (slog.Default
// when nil).
func NewRunContext(mode Mode, cfg *config.Config, base *slog.Logger) *RunContext {
	if base == nil {
		base = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	id := uuid.NewString()
	return &RunContext{
		ID:        id,
		Mode:      mode,
		Config:    cfg.Clone(),
		Logger:    base.With("run_id", id, "mode", string(mode)),
		StartedAt: time.Now(),
	}
}

// OutputDir returns where this run writes pages: the test output directory
// in test mode, the regular one otherwise.
func (rc *RunContext) OutputDir() string {
	if rc.Mode == ModeTest && rc.Config.Test.OutputDir != "" {
		return rc.Config.Test.OutputDir
	}
	return rc.Config.Output.Dir
}
