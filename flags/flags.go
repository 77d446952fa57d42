package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "VERIKIT"

// prefixEnvVar adds the service prefix to an env var name.
func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	SuiteFile = &cli.StringFlag{
		Name:     "suite",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("SUITE"),
		Usage:    "Path to suite definition file (eg. 'suite.yaml')",
	}
	Mode = &cli.StringFlag{
		Name:    "mode",
		Value:   "",
		EnvVars: prefixEnvVar("MODE"),
		Usage:   "Scheduling mode override: 'full' or 'smoke'",
	}
	Parallel = &cli.BoolFlag{
		Name:    "parallel",
		Value:   true,
		EnvVars: prefixEnvVar("PARALLEL"),
		Usage:   "Run independent tests concurrently",
	}
	MaxConcurrency = &cli.IntFlag{
		Name:    "max-concurrency",
		Value:   4,
		EnvVars: prefixEnvVar("MAX_CONCURRENCY"),
		Usage:   "Maximum number of tests running at once in parallel mode",
	}
	StopOnFirstFailure = &cli.BoolFlag{
		Name:    "stop-on-first-failure",
		Value:   false,
		EnvVars: prefixEnvVar("STOP_ON_FIRST_FAILURE"),
		Usage:   "Stop scheduling new tests after the first failure",
	}
	RetryFailed = &cli.BoolFlag{
		Name:    "retry-failed",
		Value:   false,
		EnvVars: prefixEnvVar("RETRY_FAILED"),
		Usage:   "Retry retryable tests that fail, with linear backoff",
	}
	MaxRetries = &cli.IntFlag{
		Name:    "max-retries",
		Value:   3,
		EnvVars: prefixEnvVar("MAX_RETRIES"),
		Usage:   "Maximum retry attempts per retryable test",
	}
	RetryDelay = &cli.DurationFlag{
		Name:    "retry-delay",
		Value:   time.Second,
		EnvVars: prefixEnvVar("RETRY_DELAY"),
		Usage:   "Base delay between retry attempts (scales linearly per attempt)",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVar("DEFAULT_TIMEOUT"),
		Usage:   "Timeout applied to tests that do not declare their own",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ReportFile = &cli.StringFlag{
		Name:    "report",
		Value:   "",
		EnvVars: prefixEnvVar("REPORT"),
		Usage:   "Path to write the JSON verification report (omit to skip)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level: trace, debug, info, warn, error",
	}
)

var requiredFlags = []cli.Flag{
	SuiteFile,
}

var optionalFlags = []cli.Flag{
	Mode,
	Parallel,
	MaxConcurrency,
	StopOnFirstFailure,
	RetryFailed,
	MaxRetries,
	RetryDelay,
	DefaultTimeout,
	RunInterval,
	ReportFile,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
