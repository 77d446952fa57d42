package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verikit/verikit/types"
)

func TestExecuteTestWithRetry_AlwaysFailing(t *testing.T) {
	e := newTestExecutor()

	var attempts atomic.Int32
	test := passingTest("flaky")
	test.Retryable = true
	test.Execute = func(ctx context.Context) (*types.TestResult, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	}

	start := time.Now()
	result := e.ExecuteTestWithRetry(context.Background(), test, 2, 100*time.Millisecond)
	elapsed := time.Since(start)

	// maxRetries=2 means 3 attempts total, with waits of ~100ms then ~200ms.
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, types.TestStatusFailed, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestExecuteTestWithRetry_EventualPass(t *testing.T) {
	e := newTestExecutor()

	var attempts atomic.Int32
	test := passingTest("recovers")
	test.Retryable = true
	test.Execute = func(ctx context.Context) (*types.TestResult, error) {
		if attempts.Add(1) < 2 {
			return nil, errors.New("connection reset by peer")
		}
		return nil, nil
	}

	result := e.ExecuteTestWithRetry(context.Background(), test, 3, 10*time.Millisecond)
	assert.Equal(t, types.TestStatusPassed, result.Status)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, 2, result.Attempts)
}

func TestExecuteTestWithRetry_NotRetryable(t *testing.T) {
	e := newTestExecutor()

	var attempts atomic.Int32
	test := passingTest("fragile")
	test.Retryable = false
	test.Execute = func(ctx context.Context) (*types.TestResult, error) {
		attempts.Add(1)
		return nil, errors.New("boom")
	}

	result := e.ExecuteTestWithRetry(context.Background(), test, 3, 10*time.Millisecond)
	assert.Equal(t, types.TestStatusFailed, result.Status)
	assert.Equal(t, int32(1), attempts.Load(), "non-retryable tests get exactly one attempt")
}

func TestExecuteTestWithRetry_CancelledDuringBackoff(t *testing.T) {
	e := newTestExecutor()

	var attempts atomic.Int32
	test := passingTest("interrupted")
	test.Retryable = true
	test.Execute = func(ctx context.Context) (*types.TestResult, error) {
		attempts.Add(1)
		return nil, errors.New("boom")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result := e.ExecuteTestWithRetry(ctx, test, 5, time.Second)
	require.NotNil(t, result)
	assert.Equal(t, types.TestStatusFailed, result.Status)
	assert.Equal(t, int32(1), attempts.Load(), "cancellation during backoff stops further attempts")
}
