package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verikit/verikit/types"
)

func newTestEngine(sink types.EventSink) *Engine {
	return New(Config{
		Log:  log.NewLogger(log.DiscardHandler()),
		Sink: sink,
	})
}

type executionRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *executionRecorder) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
}

func (r *executionRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func suiteTest(id string, rec *executionRecorder, fail bool, deps ...string) types.TestDefinition {
	return types.TestDefinition{
		ID:           id,
		Category:     types.CategoryEndpoint,
		Level:        types.LevelMedium,
		Dependencies: deps,
		Execute: func(ctx context.Context) (*types.TestResult, error) {
			if rec != nil {
				rec.record(id)
			}
			if fail {
				return nil, errors.New("assertion failed: unexpected status")
			}
			return nil, nil
		},
	}
}

func sequentialConfig() types.SuiteConfig {
	cfg := types.DefaultSuiteConfig()
	cfg.ParallelExecution = false
	return cfg
}

func TestExecuteSuite_SequentialOrder(t *testing.T) {
	e := newTestEngine(nil)
	rec := &executionRecorder{}

	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("t2", rec, false, "t1"),
			suiteTest("t1", rec, false),
		},
		Config: sequentialConfig(),
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, types.ExecutionStatusCompleted, state.Status)
	assert.Equal(t, []string{"t1", "t2"}, rec.get())
	assert.Len(t, state.CompletedTests, 2)
	assert.Empty(t, state.FailedTests)
	assert.Empty(t, state.SkippedTests)
	assert.Equal(t, float64(100), state.Progress.PercentComplete)
	assert.False(t, state.EndTime.IsZero())
}

func TestExecuteSuite_FailedDependencySkipsDependent(t *testing.T) {
	e := newTestEngine(nil)
	rec := &executionRecorder{}

	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("t1", rec, true),
			suiteTest("t2", rec, false, "t1"),
		},
		Config: sequentialConfig(),
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, types.ExecutionStatusFailed, state.Status)
	assert.Contains(t, state.FailedTests, "t1")
	assert.Contains(t, state.SkippedTests, "t2")
	assert.Equal(t, []string{"t1"}, rec.get(), "t2 must never execute")

	require.Len(t, state.Results, 2)
	skipped := state.Results[1]
	assert.Equal(t, types.TestStatusSkipped, skipped.Status)
	assert.Equal(t, "dependency t1 did not pass", skipped.Details["reason"])
}

func TestExecuteSuite_SkipCascadesTransitively(t *testing.T) {
	e := newTestEngine(nil)

	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("a", nil, true),
			suiteTest("b", nil, false, "a"),
			suiteTest("c", nil, false, "b"),
		},
		Config: sequentialConfig(),
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)

	assert.Contains(t, state.FailedTests, "a")
	assert.Contains(t, state.SkippedTests, "b")
	assert.Contains(t, state.SkippedTests, "c")
}

func TestExecuteSuite_StopOnFirstFailure(t *testing.T) {
	e := newTestEngine(nil)
	rec := &executionRecorder{}

	cfg := sequentialConfig()
	cfg.StopOnFirstFailure = true
	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("a", rec, false),
			suiteTest("b", rec, true),
			suiteTest("c", rec, false),
		},
		Config: cfg,
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, types.ExecutionStatusFailed, state.Status)
	assert.Equal(t, []string{"a", "b"}, rec.get(), "c is never attempted")
	assert.Contains(t, state.CompletedTests, "a")
	assert.Contains(t, state.FailedTests, "b")
	assert.Len(t, state.Results, 2)
	assert.NotContains(t, state.SkippedTests, "c")
}

func TestExecuteSuite_Parallel(t *testing.T) {
	e := newTestEngine(nil)

	var peak, inFlight atomic.Int32
	slowTest := func(id string, deps ...string) types.TestDefinition {
		def := suiteTest(id, nil, false, deps...)
		def.Execute = func(ctx context.Context) (*types.TestResult, error) {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		}
		return def
	}

	cfg := types.DefaultSuiteConfig()
	cfg.MaxConcurrency = 2
	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			slowTest("a"),
			slowTest("b"),
			slowTest("c"),
			slowTest("d", "a"),
			slowTest("e", "b"),
		},
		Config: cfg,
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, types.ExecutionStatusCompleted, state.Status)
	assert.Len(t, state.CompletedTests, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecuteSuite_GlobalSetupFailure(t *testing.T) {
	e := newTestEngine(nil)
	rec := &executionRecorder{}

	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("t1", rec, false),
		},
		Config: sequentialConfig(),
		Setup: func(ctx context.Context) error {
			return errors.New("environment not reachable")
		},
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, types.ExecutionStatusFailed, state.Status)
	assert.Empty(t, rec.get(), "no tests run after a failed global setup")
	assert.Empty(t, state.Results)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, types.PhaseSetup, state.Errors[0].Phase)
	assert.False(t, state.Errors[0].Recoverable)
}

func TestExecuteSuite_GlobalCleanupFailureIsRecoverable(t *testing.T) {
	e := newTestEngine(nil)

	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("t1", nil, false),
		},
		Config: sequentialConfig(),
		Cleanup: func(ctx context.Context) error {
			return errors.New("teardown flaked")
		},
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, types.ExecutionStatusCompleted, state.Status,
		"cleanup failure must not change the final status")
	require.Len(t, state.Errors, 1)
	assert.Equal(t, types.PhaseCleanup, state.Errors[0].Phase)
	assert.True(t, state.Errors[0].Recoverable)
}

func TestExecuteSuite_InvalidSuite(t *testing.T) {
	e := newTestEngine(nil)

	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("t1", nil, false, "ghost"),
		},
		Config: sequentialConfig(),
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.Error(t, err)
	assert.Nil(t, state)
	assert.Contains(t, err.Error(), "ghost")
}

func TestExecuteSuite_CycleIsFatalBeforeAnyTestRuns(t *testing.T) {
	e := newTestEngine(nil)
	rec := &executionRecorder{}

	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("a", rec, false, "c"),
			suiteTest("b", rec, false, "a"),
			suiteTest("c", rec, false, "b"),
		},
		Config: sequentialConfig(),
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.Error(t, err)
	assert.Nil(t, state)
	assert.Contains(t, err.Error(), "cycle")
	assert.Empty(t, rec.get())
}

func TestExecuteSuite_SmokeModeFiltersToCriticalAndHigh(t *testing.T) {
	e := newTestEngine(nil)
	rec := &executionRecorder{}

	critical := suiteTest("critical", rec, false)
	critical.Level = types.LevelCritical
	high := suiteTest("high", rec, false)
	high.Level = types.LevelHigh
	medium := suiteTest("medium", rec, false)
	medium.Level = types.LevelMedium

	cfg := sequentialConfig()
	cfg.Mode = types.ModeSmoke
	suite := &types.TestSuite{
		ID:     "s1",
		Tests:  []types.TestDefinition{critical, high, medium},
		Config: cfg,
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, 2, state.Progress.TotalTests)
	assert.ElementsMatch(t, []string{"critical", "high"}, rec.get())
}

func TestCancelExecution(t *testing.T) {
	sink := types.NewChannelSink(128)
	e := newTestEngine(sink)

	blocking := func(id string) types.TestDefinition {
		def := suiteTest(id, nil, false)
		def.Execute = func(ctx context.Context) (*types.TestResult, error) {
			select {
			case <-time.After(5 * time.Second):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return def
	}

	cfg := types.DefaultSuiteConfig()
	cfg.MaxConcurrency = 1
	suite := &types.TestSuite{
		ID:     "s1",
		Tests:  []types.TestDefinition{blocking("t1"), blocking("t2"), blocking("t3")},
		Config: cfg,
	}

	type outcome struct {
		state *types.ExecutionState
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		state, err := e.ExecuteSuite(context.Background(), suite)
		done <- outcome{state, err}
	}()

	var executionID string
	for ev := range sink.Events() {
		if started, ok := ev.(types.ExecutionStartedEvent); ok {
			executionID = started.ExecutionID
			break
		}
	}
	require.NotEmpty(t, executionID)

	time.Sleep(20 * time.Millisecond)
	require.True(t, e.CancelExecution(executionID))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, types.ExecutionStatusCancelled, res.state.Status)
	assert.NotEmpty(t, res.state.SkippedTests, "unfinished tests are skipped, not failed")
	assert.Empty(t, res.state.FailedTests)

	// Cancelling again is a no-op
	assert.False(t, e.CancelExecution(executionID))
	assert.False(t, e.CancelExecution("unknown"))
}

func TestRetryFailedTests(t *testing.T) {
	e := newTestEngine(nil)

	var calls atomic.Int32
	eventually := suiteTest("flaky", nil, false)
	eventually.Execute = func(ctx context.Context) (*types.TestResult, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return nil, nil
	}

	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("stable", nil, false),
			eventually,
		},
		Config: sequentialConfig(),
	}

	first, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStatusFailed, first.Status)
	assert.Contains(t, first.FailedTests, "flaky")

	retry, err := e.RetryFailedTests(context.Background(), first.ExecutionID)
	require.NoError(t, err)
	require.NotNil(t, retry)

	assert.Equal(t, first.ExecutionID, retry.RetryOf)
	assert.NotEqual(t, first.ExecutionID, retry.ExecutionID)
	assert.Equal(t, 1, retry.Progress.TotalTests, "only failed tests re-run")
	assert.Equal(t, types.ExecutionStatusCompleted, retry.Status)
	assert.Contains(t, retry.CompletedTests, "flaky")
}

func TestEngine_EvictsOldFinishedExecutions(t *testing.T) {
	e := newTestEngine(nil)

	suite := &types.TestSuite{
		ID:     "recurring",
		Tests:  []types.TestDefinition{suiteTest("ping", nil, false)},
		Config: sequentialConfig(),
	}

	var first, last *types.ExecutionState
	for i := 0; i < maxRetainedExecutions+5; i++ {
		state, err := e.ExecuteSuite(context.Background(), suite)
		require.NoError(t, err)
		if first == nil {
			first = state
		}
		last = state
	}

	assert.Nil(t, e.ExecutionState(first.ExecutionID), "oldest execution is evicted")
	assert.NotNil(t, e.ExecutionState(last.ExecutionID), "recent execution stays resident")

	e.mu.Lock()
	retained := len(e.executions)
	e.mu.Unlock()
	assert.LessOrEqual(t, retained, maxRetainedExecutions)
}

func TestRetryFailedTests_NothingToRetry(t *testing.T) {
	e := newTestEngine(nil)

	suite := &types.TestSuite{
		ID:     "s1",
		Tests:  []types.TestDefinition{suiteTest("ok", nil, false)},
		Config: sequentialConfig(),
	}

	first, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)
	require.Equal(t, types.ExecutionStatusCompleted, first.Status)

	_, err = e.RetryFailedTests(context.Background(), first.ExecutionID)
	require.Error(t, err)

	_, err = e.RetryFailedTests(context.Background(), "unknown")
	require.Error(t, err)
}

func TestExecuteSuite_EmitsLifecycleEvents(t *testing.T) {
	sink := types.NewChannelSink(128)
	e := newTestEngine(sink)

	suite := &types.TestSuite{
		ID: "s1",
		Tests: []types.TestDefinition{
			suiteTest("t1", nil, false),
			suiteTest("t2", nil, false),
		},
		Config: sequentialConfig(),
	}

	state, err := e.ExecuteSuite(context.Background(), suite)
	require.NoError(t, err)
	sink.Close()

	var started, completed, testsDone int
	for ev := range sink.Events() {
		switch typed := ev.(type) {
		case types.ExecutionStartedEvent:
			started++
			assert.Equal(t, state.ExecutionID, typed.ExecutionID)
			assert.Equal(t, []string{"t1", "t2"}, typed.Plan)
		case types.ExecutionCompletedEvent:
			completed++
			assert.Equal(t, types.ExecutionStatusCompleted, typed.Status)
		case types.TestCompletedEvent:
			testsDone++
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 2, testsDone)
}
