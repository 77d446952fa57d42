// Package verikit hosts the application lifecycle: it loads a suite through
// the registry, drives it through the execution engine once or on an
// interval, prints a results table and maps the outcome to exit codes.
package verikit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/verikit/verikit/engine"
	"github.com/verikit/verikit/exitcodes"
	"github.com/verikit/verikit/registry"
	"github.com/verikit/verikit/report"
	"github.com/verikit/verikit/types"
)

// App runs verification suites.
type App struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	engine   *engine.Engine
	result   *types.ExecutionState

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating verikit with config",
		"suiteFile", config.SuiteFile,
		"mode", config.Mode,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		SuiteFile:      config.SuiteFile,
		DefaultTimeout: config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	eng := engine.New(engine.Config{
		Log: config.Log,
	})
	config.Log.Info("verikit.New: created registry and engine")

	return &App{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		engine:           eng,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the verification suite, then either exits (run-once mode) or
// keeps re-running it at the configured interval.
func (a *App) Start(ctx context.Context) error {
	// Panic recovery so runtime errors exit with code 2
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	a.ctx = ctx
	a.done = make(chan struct{})
	a.running.Store(true)

	if a.config.RunOnce {
		a.config.Log.Info("Starting verikit in run-once mode")
	} else {
		a.config.Log.Info("Starting verikit in continuous mode", "interval", a.config.RunInterval)
	}

	err := a.runSuite()
	if err != nil {
		a.config.Log.Error("Runtime error running suite", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	if a.config.RunOnce {
		a.config.Log.Info("Suite completed, exiting (run-once mode)")

		if a.result != nil && a.result.Status == types.ExecutionStatusFailed {
			a.config.Log.Warn("Run-once suite completed with failures, returning exit code 1")
			return NewSuiteFailureError(fmt.Sprintf("%d of %d tests failed",
				len(a.result.FailedTests), a.result.Progress.TotalTests))
		}

		go func() {
			a.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.config.Log.Debug("Starting periodic suite runner goroutine", "interval", a.config.RunInterval)

		for {
			select {
			case <-time.After(a.config.RunInterval):
				if !a.running.Load() {
					a.config.Log.Debug("Service stopped, exiting periodic suite runner")
					return
				}

				a.config.Log.Info("Running periodic suite")
				if err := a.runSuite(); err != nil {
					a.config.Log.Error("Error running periodic suite", "error", err)
				}

			case <-a.done:
				a.config.Log.Debug("Done signal received, stopping periodic suite runner")
				return

			case <-ctx.Done():
				a.config.Log.Debug("Context canceled, stopping periodic suite runner")
				a.running.Store(false)
				return
			}
		}
	}()
	a.config.Log.Debug("verikit started successfully")
	return nil
}

// runSuite runs the loaded suite once and processes the results
func (a *App) runSuite() error {
	a.config.Log.Info("Running verification suite...")

	suite := *a.registry.Suite()
	suite.Config = a.config.suiteOverrides(suite.Config)

	state, err := a.engine.ExecuteSuite(a.ctx, &suite)
	if err != nil {
		// Suite-build failures (cycles, bad references) are runtime errors
		a.config.Log.Error("Runtime error running suite", "error", err)
		return NewRuntimeError(err)
	}
	a.result = state

	a.printResultsTable(state)
	if a.config.ReportFile != "" {
		if err := a.writeReport(state); err != nil {
			a.config.Log.Error("Failed to write report", "path", a.config.ReportFile, "error", err)
		}
	}
	a.config.Log.Info("Suite run completed", "execution_id", state.ExecutionID, "status", state.Status)
	return nil
}

// writeReport generates the verification report and writes it as JSON.
func (a *App) writeReport(state *types.ExecutionState) error {
	rep := report.Generate(state, report.Options{
		Environment: os.Getenv("VERIKIT_ENVIRONMENT"),
	})
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(a.config.ReportFile, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	a.config.Log.Info("Report written", "path", a.config.ReportFile)
	return nil
}

// Stop stops the verikit service.
func (a *App) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping verikit")

	if !a.running.Load() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	a.running.Store(false)

	a.config.Log.Debug("Sending done signal to goroutines")
	close(a.done)

	a.config.Log.Info("verikit stopped successfully")
	return nil
}

// Stopped returns true if the verikit service is stopped.
func (a *App) Stopped() bool {
	return !a.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (a *App) WaitForShutdown(ctx context.Context) error {
	a.config.Log.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.config.Log.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		a.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
