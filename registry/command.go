package registry

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/verikit/verikit/types"
)

// maxCapturedOutput bounds how much command output is retained per test.
const maxCapturedOutput = 64 * 1024

// commandCapability wraps an argv vector as a test execute capability. The
// command inherits the host environment plus any extra entries, runs under
// the execution context so timeouts and cancellation kill the process, and
// fails the test on a non-zero exit status.
func commandCapability(argv []string, env []string, workDir string) func(ctx context.Context) (*types.TestResult, error) {
	return func(ctx context.Context) (*types.TestResult, error) {
		var output bytes.Buffer

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = workDir
		cmd.Env = append(os.Environ(), env...)
		cmd.Stdout = &output
		cmd.Stderr = &output

		start := time.Now()
		err := cmd.Run()
		elapsed := time.Since(start)

		result := &types.TestResult{
			Status: types.TestStatusPassed,
			Details: map[string]any{
				"output": truncateOutput(output.String()),
			},
			Metrics: &types.PerformanceMetrics{
				ResponseTime: elapsed,
			},
		}

		if err != nil {
			return result, fmt.Errorf("command %s failed: %w", argv[0], err)
		}
		return result, nil
	}
}

func truncateOutput(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[:maxCapturedOutput] + "\n[output truncated]"
}
