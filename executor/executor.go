// Package executor runs a single test definition to completion: it enforces
// the timeout, honors cancellation, runs setup/cleanup around the execute
// capability, normalizes results and classifies failures.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/verikit/verikit/types"
)

// cleanupGrace bounds how long a cleanup phase may run once the test itself
// is done, timed out or cancelled.
const cleanupGrace = 10 * time.Second

// Executor drives individual test executions.
type Executor struct {
	log    log.Logger
	tracer trace.Tracer
}

// New creates an executor. A nil logger falls back to the default handler.
func New(logger log.Logger) *Executor {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Executor{
		log:    logger.New("component", "executor"),
		tracer: otel.Tracer("test executor"),
	}
}

type executeOutcome struct {
	result *types.TestResult
	err    error
}

// ExecuteTest runs one test definition through setup, execute and cleanup.
// The execute capability is raced against the test's timeout (default 30s);
// a fired timer yields a failed result with a performance-classified error,
// while suite-level cancellation yields a skipped result. Cleanup runs on
// every exit path, including timeout and cancellation.
func (e *Executor) ExecuteTest(ctx context.Context, test *types.TestDefinition) *types.TestResult {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("test %s", test.ID))
	defer span.End()

	start := time.Now()

	// Cancellation observed before any work starts.
	if ctx.Err() != nil {
		return e.skippedResult(test, start, "execution cancelled before test started")
	}

	if test.Cleanup != nil {
		defer e.runCleanup(ctx, test)
	}

	if test.Setup != nil {
		if err := test.Setup(ctx); err != nil {
			e.log.Error("Test setup failed", "test", test.ID, "error", err)
			return e.failedResult(test, start, toVerificationError(err))
		}
	}

	timeout := test.EffectiveTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.log.Debug("Running test", "test", test.ID, "timeout", timeout)

	outcomeCh := make(chan executeOutcome, 1)
	go func() {
		res, err := test.Execute(runCtx)
		outcomeCh <- executeOutcome{result: res, err: err}
	}()

	select {
	case outcome := <-outcomeCh:
		return e.finishResult(ctx, test, start, outcome)
	case <-runCtx.Done():
		// The in-flight execute call observes runCtx and aborts on its own;
		// a non-cooperative body is not forcibly terminated.
		if ctx.Err() != nil {
			e.log.Debug("Test cancelled", "test", test.ID)
			return e.skippedResult(test, start, "execution cancelled")
		}
		e.log.Warn("Test timed out", "test", test.ID, "timeout", timeout)
		return e.failedResult(test, start, &types.VerificationError{
			Type:    types.ErrorTypePerformance,
			Message: fmt.Sprintf("test timed out after %v", timeout),
			Code:    "timeout",
		})
	}
}

// finishResult turns an execute outcome into a normalized TestResult.
func (e *Executor) finishResult(ctx context.Context, test *types.TestDefinition, start time.Time, outcome executeOutcome) *types.TestResult {
	end := time.Now()

	if outcome.err != nil {
		// A cooperative execute body surfacing the suite's cancellation can
		// win the race against the ctx.Done branch; that is still a skip,
		// not a failure.
		if ctx.Err() != nil && errors.Is(outcome.err, context.Canceled) {
			e.log.Debug("Test cancelled", "test", test.ID)
			return e.skippedResult(test, start, "execution cancelled")
		}
		result := outcome.result
		if result == nil {
			result = types.NewTestResult(test)
		}
		result.Status = types.TestStatusFailed
		if result.Error == nil {
			result.Error = toVerificationError(outcome.err)
		}
		result.Normalize(test, start, end)
		return result
	}

	result := outcome.result
	if result == nil {
		// A nil result with no error counts as a pass with no details.
		result = types.NewTestResult(test)
		result.Status = types.TestStatusPassed
	}
	result.Normalize(test, start, end)
	return result
}

// runCleanup executes the test's cleanup phase under its own deadline so a
// cancelled suite context cannot prevent resource release.
func (e *Executor) runCleanup(ctx context.Context, test *types.TestDefinition) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupGrace)
	defer cancel()
	if err := test.Cleanup(cleanupCtx); err != nil {
		e.log.Warn("Test cleanup failed", "test", test.ID, "error", err)
	}
}

func (e *Executor) failedResult(test *types.TestDefinition, start time.Time, verr *types.VerificationError) *types.TestResult {
	result := types.NewTestResult(test)
	result.Status = types.TestStatusFailed
	result.Error = verr
	result.Normalize(test, start, time.Now())
	return result
}

func (e *Executor) skippedResult(test *types.TestDefinition, start time.Time, reason string) *types.TestResult {
	result := types.NewTestResult(test)
	result.Status = types.TestStatusSkipped
	result.Details = map[string]any{"reason": reason}
	result.Normalize(test, start, time.Now())
	return result
}
