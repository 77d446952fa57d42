package engine

import (
	"fmt"
	"time"

	"github.com/verikit/verikit/metrics"
	"github.com/verikit/verikit/types"
)

// Dependency policy: a test runs only once every hard dependency has passed.
// A dependency that finished failed or skipped skips the dependent, and the
// skip cascades transitively. Every planned test reaches a terminal state
// unless stop-on-first-failure cuts the run short, in which case the
// remainder is left unscheduled.

// runSequential iterates the execution order one test at a time.
func (e *Engine) runSequential(exec *execution, plan *executionPlan) {
	cfg := &exec.suite.Config
	for i, id := range plan.order {
		if exec.ctx.Err() != nil {
			e.skipRemaining(exec, plan, plan.order[i:])
			return
		}
		test := plan.tests[id]
		if unmet := e.firstBlockedDependency(exec.state, plan.deps[id]); unmet != "" {
			e.applyResult(exec, id, e.dependencySkip(test, unmet))
			continue
		}

		exec.state.CurrentTest = id
		result := e.runOne(exec, test)
		e.applyResult(exec, id, result)

		if cfg.StopOnFirstFailure && result.Failed() {
			e.log.Warn("Stopping on first failure", "test", id)
			return
		}
	}
}

// runParallel keeps an in-flight set bounded by MaxConcurrency: completion
// of any one test immediately frees a slot for the next eligible test in
// execution order, not necessarily the next in program order.
func (e *Engine) runParallel(exec *execution, plan *executionPlan) {
	cfg := &exec.suite.Config
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	type completion struct {
		id     string
		result *types.TestResult
	}
	pending := append([]string(nil), plan.order...)
	inFlight := make(map[string]struct{})
	resultCh := make(chan completion)
	halted := false

	launch := func(test *types.TestDefinition) {
		inFlight[test.ID] = struct{}{}
		exec.state.CurrentTest = test.ID
		go func() {
			resultCh <- completion{id: test.ID, result: e.runOne(exec, test)}
		}()
	}

	for {
		if exec.ctx.Err() != nil {
			halted = true
		}

		if !halted {
			// Settle skip cascades, then launch while capacity remains. A
			// single pass can unlock further skips, so loop to a fixed point.
			progressed := true
			for progressed {
				progressed = false
				remaining := pending[:0]
				for _, id := range pending {
					deps := plan.deps[id]
					if !e.depsResolved(exec.state, deps) {
						remaining = append(remaining, id)
						continue
					}
					if unmet := e.firstBlockedDependency(exec.state, deps); unmet != "" {
						e.applyResult(exec, id, e.dependencySkip(plan.tests[id], unmet))
						progressed = true
						continue
					}
					if len(inFlight) >= maxConcurrency {
						remaining = append(remaining, id)
						continue
					}
					launch(plan.tests[id])
					progressed = true
				}
				pending = remaining
			}
		}

		if len(inFlight) == 0 {
			break
		}

		// At capacity or nothing else eligible: wait for the first in-flight
		// completion before making another scheduling decision.
		done := <-resultCh
		delete(inFlight, done.id)
		e.applyResult(exec, done.id, done.result)
		if cfg.StopOnFirstFailure && done.result.Failed() {
			halted = true
		}
	}

	if exec.ctx.Err() != nil {
		e.skipRemaining(exec, plan, pending)
	}
}

// runOne dispatches a single test through the executor, honoring the
// configured retry policy.
func (e *Engine) runOne(exec *execution, test *types.TestDefinition) *types.TestResult {
	cfg := &exec.suite.Config
	if cfg.RetryFailedTests && test.Retryable {
		delay := cfg.RetryDelay
		if delay <= 0 {
			delay = time.Second
		}
		return e.executor.ExecuteTestWithRetry(exec.ctx, test, cfg.MaxRetries, delay)
	}
	return e.executor.ExecuteTest(exec.ctx, test)
}

// depsResolved reports whether every dependency reached a terminal state.
func (e *Engine) depsResolved(state *types.ExecutionState, deps []string) bool {
	for _, dep := range deps {
		if !state.Resolved(dep) {
			return false
		}
	}
	return true
}

// firstBlockedDependency returns the first dependency that resolved without
// passing, or the first unresolved one. Empty when the test is runnable.
func (e *Engine) firstBlockedDependency(state *types.ExecutionState, deps []string) string {
	for _, dep := range deps {
		if !state.Passed(dep) {
			return dep
		}
	}
	return ""
}

// dependencySkip fabricates the terminal result for a test whose hard
// dependency did not pass.
func (e *Engine) dependencySkip(test *types.TestDefinition, dep string) *types.TestResult {
	e.log.Info("Skipping test, dependency not satisfied", "test", test.ID, "dependency", dep)
	now := time.Now()
	return &types.TestResult{
		TestName:     test.DisplayName(),
		Category:     test.Category,
		Status:       types.TestStatusSkipped,
		Level:        test.Level,
		Requirements: test.Requirements,
		StartTime:    now,
		EndTime:      now,
		Details:      map[string]any{"reason": fmt.Sprintf("dependency %s did not pass", dep)},
	}
}

// skipRemaining marks every not-yet-dispatched test as skipped so a
// cancelled run still accounts for its whole plan.
func (e *Engine) skipRemaining(exec *execution, plan *executionPlan, ids []string) {
	now := time.Now()
	for _, id := range ids {
		test := plan.tests[id]
		e.applyResult(exec, id, &types.TestResult{
			TestName:     test.DisplayName(),
			Category:     test.Category,
			Status:       types.TestStatusSkipped,
			Level:        test.Level,
			Requirements: test.Requirements,
			StartTime:    now,
			EndTime:      now,
			Details:      map[string]any{"reason": "execution cancelled"},
		})
	}
}

// applyResult folds a terminal result into ExecutionState. It runs only on
// the goroutine driving the execution, which is the state's single writer.
func (e *Engine) applyResult(exec *execution, id string, result *types.TestResult) {
	state := exec.state
	switch result.Status {
	case types.TestStatusFailed:
		state.FailedTests[id] = struct{}{}
	case types.TestStatusSkipped:
		state.SkippedTests[id] = struct{}{}
	default:
		state.CompletedTests[id] = struct{}{}
	}
	state.Results = append(state.Results, result)
	if state.CurrentTest == id {
		state.CurrentTest = ""
	}
	e.updateProgress(state)

	metrics.RecordTestResult(state.SuiteID, state.ExecutionID, string(result.Category),
		string(result.Level), string(result.Status), result.Duration)
	if result.Error != nil {
		metrics.RecordTestError(state.SuiteID, string(result.Error.Type))
	}

	e.sink.TestCompleted(types.TestCompletedEvent{
		ExecutionID: state.ExecutionID,
		Result:      result,
		Progress:    state.Progress,
	})
	e.sink.ProgressUpdated(types.ProgressUpdatedEvent{
		ExecutionID: state.ExecutionID,
		Progress:    state.Progress,
	})
	e.log.Debug("Test finished",
		"test", id,
		"status", result.Status,
		"duration", result.Duration,
		"progress", fmt.Sprintf("%.1f%%", state.Progress.PercentComplete))
}

// updateProgress recomputes the counters after every terminal result:
// percent complete is processed/total, and the remaining-time estimate is
// the average duration of processed tests times the remaining count.
func (e *Engine) updateProgress(state *types.ExecutionState) {
	p := &state.Progress
	p.CompletedTests = len(state.CompletedTests)
	p.FailedTests = len(state.FailedTests)
	p.SkippedTests = len(state.SkippedTests)

	processed := state.ProcessedCount()
	if p.TotalTests > 0 {
		p.PercentComplete = float64(processed) / float64(p.TotalTests) * 100
	}

	remaining := p.TotalTests - processed
	if processed > 0 && remaining > 0 {
		var total time.Duration
		for _, r := range state.Results {
			total += r.Duration
		}
		p.EstimatedTimeRemaining = total / time.Duration(processed) * time.Duration(remaining)
	} else {
		p.EstimatedTimeRemaining = 0
	}
}
