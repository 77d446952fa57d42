// Package engine is the scheduler that drives a test suite through
// setup/execute/cleanup phases. It owns the single mutable ExecutionState
// per run: every other component either reads it or returns values the
// engine folds in.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/verikit/verikit/executor"
	"github.com/verikit/verikit/metrics"
	"github.com/verikit/verikit/types"
)

// Engine executes test suites.
type Engine struct {
	log      log.Logger
	executor *executor.Executor
	sink     types.EventSink
	tracer   trace.Tracer

	mu         sync.Mutex
	executions map[string]*execution
	// history holds execution ids in start order so finished executions can
	// be evicted oldest-first once the retention cap is exceeded.
	history []string
}

// maxRetainedExecutions bounds how many finished executions stay resident
// for CancelExecution/RetryFailedTests lookups. Continuous mode would
// otherwise grow the map by one state per interval forever.
const maxRetainedExecutions = 32

// execution tracks one run for cancellation and retry lookups. The state
// field is mutated only by the goroutine driving ExecuteSuite.
type execution struct {
	state  *types.ExecutionState
	suite  *types.TestSuite
	ctx    context.Context
	cancel context.CancelFunc

	running   atomic.Bool
	cancelled atomic.Bool
}

// Config holds configuration for creating an engine.
type Config struct {
	Log  log.Logger
	Sink types.EventSink
}

// New creates an execution engine.
func New(cfg Config) *Engine {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Sink == nil {
		cfg.Sink = types.NewNoopSink()
	}
	return &Engine{
		log:        cfg.Log.New("component", "engine"),
		executor:   executor.New(cfg.Log),
		sink:       cfg.Sink,
		tracer:     otel.Tracer("execution engine"),
		executions: make(map[string]*execution),
	}
}

// ExecuteSuite runs the suite under its configuration and returns the final
// ExecutionState. Plan-time problems (invalid suite, missing dependency,
// dependency cycle) are returned as errors before any test runs; a global
// setup failure yields a state with status failed and no tests executed.
func (e *Engine) ExecuteSuite(ctx context.Context, suite *types.TestSuite) (*types.ExecutionState, error) {
	return e.run(ctx, suite, "")
}

func (e *Engine) run(ctx context.Context, suite *types.TestSuite, retryOf string) (*types.ExecutionState, error) {
	if suite == nil {
		return nil, fmt.Errorf("suite is required")
	}
	if err := suite.Validate(); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("suite %s", suite.ID))
	defer span.End()

	plan, err := buildPlan(suite)
	if err != nil {
		return nil, fmt.Errorf("building execution plan: %w", err)
	}

	state := types.NewExecutionState(uuid.New().String(), suite.ID, len(plan.order))
	state.Status = types.ExecutionStatusInitializing
	state.StartTime = time.Now()
	state.RetryOf = retryOf

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	exec := &execution{
		state:  state,
		suite:  suite,
		ctx:    runCtx,
		cancel: cancel,
	}
	exec.running.Store(true)

	e.mu.Lock()
	e.executions[state.ExecutionID] = exec
	e.history = append(e.history, state.ExecutionID)
	e.mu.Unlock()

	e.log.Info("Execution starting",
		"execution_id", state.ExecutionID,
		"suite", suite.ID,
		"tests", len(plan.order),
		"parallel", suite.Config.ParallelExecution)
	e.sink.ExecutionStarted(types.ExecutionStartedEvent{
		ExecutionID: state.ExecutionID,
		SuiteID:     suite.ID,
		Plan:        append([]string(nil), plan.order...),
	})

	// Global setup. A failure here is fatal: no tests run.
	if suite.Setup != nil {
		if err := suite.Setup(runCtx); err != nil {
			e.log.Error("Suite setup failed", "suite", suite.ID, "error", err)
			state.Errors = append(state.Errors, types.PhaseError{
				Phase:       types.PhaseSetup,
				Message:     err.Error(),
				Recoverable: false,
				Time:        time.Now(),
			})
			e.sink.ExecutionError(types.ExecutionErrorEvent{
				ExecutionID: state.ExecutionID,
				Phase:       types.PhaseSetup,
				Err:         err,
			})
			e.finalize(exec, types.ExecutionStatusFailed)
			return state, nil
		}
	}

	state.Status = types.ExecutionStatusRunning
	if suite.Config.ParallelExecution {
		e.runParallel(exec, plan)
	} else {
		e.runSequential(exec, plan)
	}

	// Global cleanup runs regardless of the outcome; a failure is recorded
	// but recoverable and does not change the final status.
	if suite.Cleanup != nil {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(runCtx), time.Minute)
		if err := suite.Cleanup(cleanupCtx); err != nil {
			e.log.Warn("Suite cleanup failed", "suite", suite.ID, "error", err)
			state.Errors = append(state.Errors, types.PhaseError{
				Phase:       types.PhaseCleanup,
				Message:     err.Error(),
				Recoverable: true,
				Time:        time.Now(),
			})
			e.sink.ExecutionError(types.ExecutionErrorEvent{
				ExecutionID: state.ExecutionID,
				Phase:       types.PhaseCleanup,
				Err:         err,
			})
		}
		cleanupCancel()
	}

	e.finalize(exec, e.finalStatus(exec))
	return state, nil
}

// finalStatus derives the terminal execution status: cancellation overrides
// everything, otherwise any failed test fails the run.
func (e *Engine) finalStatus(exec *execution) types.ExecutionStatus {
	if exec.cancelled.Load() {
		return types.ExecutionStatusCancelled
	}
	if len(exec.state.FailedTests) > 0 {
		return types.ExecutionStatusFailed
	}
	return types.ExecutionStatusCompleted
}

// finalize fixes the terminal status, sets the end time and pushes the final
// progress update and completion event.
func (e *Engine) finalize(exec *execution, status types.ExecutionStatus) {
	state := exec.state
	state.Status = status
	state.EndTime = time.Now()
	state.CurrentTest = ""
	e.updateProgress(state)
	exec.running.Store(false)

	metrics.RecordExecution(state.SuiteID, state.ExecutionID, string(status),
		state.Progress.TotalTests, len(state.CompletedTests), len(state.FailedTests),
		len(state.SkippedTests), state.EndTime.Sub(state.StartTime))

	e.sink.ProgressUpdated(types.ProgressUpdatedEvent{
		ExecutionID: state.ExecutionID,
		Progress:    state.Progress,
	})
	e.sink.ExecutionCompleted(types.ExecutionCompletedEvent{
		ExecutionID: state.ExecutionID,
		Status:      status,
	})
	e.log.Info("Execution finished",
		"execution_id", state.ExecutionID,
		"status", status,
		"completed", len(state.CompletedTests),
		"failed", len(state.FailedTests),
		"skipped", len(state.SkippedTests))

	e.evictExecutions()
}

// evictExecutions drops the oldest finished executions once the retention
// cap is exceeded. A still-running execution is never evicted; eviction
// stops at the first one encountered.
func (e *Engine) evictExecutions() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.history) > maxRetainedExecutions {
		id := e.history[0]
		if exec := e.executions[id]; exec != nil && exec.running.Load() {
			break
		}
		delete(e.executions, id)
		e.history = e.history[1:]
	}
}

// CancelExecution flips the cancellation signal for an active execution and
// returns true. Already-dispatched tests observe the signal cooperatively;
// the engine does not forcibly terminate a non-cooperative test body.
// Returns false when the execution is unknown or no longer active.
func (e *Engine) CancelExecution(executionID string) bool {
	e.mu.Lock()
	exec := e.executions[executionID]
	e.mu.Unlock()

	if exec == nil || !exec.running.Load() {
		return false
	}
	if exec.cancelled.Swap(true) {
		return false
	}
	e.log.Info("Cancelling execution", "execution_id", executionID)
	exec.cancel()
	e.sink.ExecutionCancelled(types.ExecutionCancelledEvent{ExecutionID: executionID})
	return true
}

// RetryFailedTests creates a fresh execution that re-runs only the tests
// that failed in the given execution. Dependents of those tests are not
// re-run, and dependencies outside the failed set are treated as satisfied.
// The new ExecutionState is linked to, but independent from, the original.
func (e *Engine) RetryFailedTests(ctx context.Context, executionID string) (*types.ExecutionState, error) {
	e.mu.Lock()
	orig := e.executions[executionID]
	e.mu.Unlock()

	if orig == nil {
		return nil, fmt.Errorf("unknown execution %s", executionID)
	}
	if orig.running.Load() {
		return nil, fmt.Errorf("execution %s is still running", executionID)
	}
	failed := orig.state.FailedTestIDs()
	if len(failed) == 0 {
		return nil, fmt.Errorf("execution %s has no failed tests", executionID)
	}

	retrySuite := subsetSuite(orig.suite, failed)
	e.log.Info("Retrying failed tests", "execution_id", executionID, "tests", len(failed))
	return e.run(ctx, retrySuite, executionID)
}

// ExecutionState returns the state for a known execution id, or nil.
// Callers must treat the returned value as read-only.
func (e *Engine) ExecutionState(executionID string) *types.ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec := e.executions[executionID]; exec != nil {
		return exec.state
	}
	return nil
}
