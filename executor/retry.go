package executor

import (
	"context"
	"time"

	"github.com/verikit/verikit/types"
)

// ExecuteTestWithRetry runs the test and, when it is marked retryable,
// re-attempts failed executions up to maxRetries more times with a linear
// backoff of retryDelay * attemptNumber between attempts. The last result is
// returned unmodified apart from its attempt counter; non-retryable tests
// and skipped results are never re-attempted.
func (e *Executor) ExecuteTestWithRetry(ctx context.Context, test *types.TestDefinition, maxRetries int, retryDelay time.Duration) *types.TestResult {
	result := e.ExecuteTest(ctx, test)
	if !test.Retryable || maxRetries <= 0 {
		return result
	}

	for attempt := 1; attempt <= maxRetries && result.Failed(); attempt++ {
		delay := retryDelay * time.Duration(attempt)
		e.log.Info("Retrying failed test", "test", test.ID, "attempt", attempt+1, "delay", delay)

		select {
		case <-ctx.Done():
			// The suite was cancelled while we were backing off; keep the
			// last real result rather than fabricating another attempt.
			return result
		case <-time.After(delay):
		}

		next := e.ExecuteTest(ctx, test)
		next.Attempts = attempt + 1
		result = next
	}
	return result
}
