package verikit

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/verikit/verikit/flags"
	"github.com/verikit/verikit/types"
)

// Config holds the application configuration
type Config struct {
	SuiteFile          string
	Mode               types.SchedulingMode // Scheduling mode override ("" keeps the suite's own)
	Parallel           bool
	MaxConcurrency     int
	StopOnFirstFailure bool
	RetryFailed        bool          // Retry retryable tests that fail
	MaxRetries         int           // Maximum retry attempts per retryable test
	RetryDelay         time.Duration // Base delay between retries, scaled linearly
	DefaultTimeout     time.Duration // Timeout for tests that do not declare their own
	RunInterval        time.Duration // Interval between runs
	RunOnce            bool          // Indicates if the service should exit after one run
	ReportFile         string        // Path to write the JSON report ("" skips)
	Log                log.Logger

	// Flags carry defaults, so only values the user actually passed may
	// override a suite file's own configuration.
	parallelSet           bool
	maxConcurrencySet     bool
	stopOnFirstFailureSet bool
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	suiteFile := ctx.String(flags.SuiteFile.Name)
	if suiteFile == "" {
		return nil, errors.New("suite file is required")
	}
	absSuiteFile, err := filepath.Abs(suiteFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suite file '%s': %w", suiteFile, err)
	}

	mode := types.SchedulingMode(ctx.String(flags.Mode.Name))
	if mode != "" && mode != types.ModeFull && mode != types.ModeSmoke {
		return nil, fmt.Errorf("invalid mode %q: must be %q or %q", mode, types.ModeFull, types.ModeSmoke)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		SuiteFile:          absSuiteFile,
		Mode:               mode,
		Parallel:           ctx.Bool(flags.Parallel.Name),
		MaxConcurrency:     ctx.Int(flags.MaxConcurrency.Name),
		StopOnFirstFailure: ctx.Bool(flags.StopOnFirstFailure.Name),
		RetryFailed:        ctx.Bool(flags.RetryFailed.Name),
		MaxRetries:         ctx.Int(flags.MaxRetries.Name),
		RetryDelay:         ctx.Duration(flags.RetryDelay.Name),
		DefaultTimeout:     ctx.Duration(flags.DefaultTimeout.Name),
		RunInterval:        runInterval,
		RunOnce:            runOnce,
		ReportFile:         ctx.String(flags.ReportFile.Name),
		Log:                logger,

		parallelSet:           ctx.IsSet(flags.Parallel.Name),
		maxConcurrencySet:     ctx.IsSet(flags.MaxConcurrency.Name),
		stopOnFirstFailureSet: ctx.IsSet(flags.StopOnFirstFailure.Name),
	}, nil
}

// suiteOverrides folds CLI-level overrides into a suite's own configuration.
func (c *Config) suiteOverrides(base types.SuiteConfig) types.SuiteConfig {
	out := base
	if c.Mode != "" {
		out.Mode = c.Mode
	}
	if c.parallelSet {
		out.ParallelExecution = c.Parallel
	}
	if c.maxConcurrencySet && c.MaxConcurrency > 0 {
		out.MaxConcurrency = c.MaxConcurrency
	}
	if c.stopOnFirstFailureSet {
		out.StopOnFirstFailure = c.StopOnFirstFailure
	}
	if c.RetryFailed {
		out.RetryFailedTests = true
		out.MaxRetries = c.MaxRetries
		out.RetryDelay = c.RetryDelay
	}
	return out
}
