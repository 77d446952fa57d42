package aggregate

import (
	"sort"
	"time"

	"github.com/verikit/verikit/types"
)

// significantChangePercent is the response-time delta beyond which a test is
// flagged as a regression (slower) or an improvement (faster).
const significantChangePercent = 20.0

// PerformanceDelta captures one test's response-time change between runs.
type PerformanceDelta struct {
	TestName      string
	Previous      time.Duration
	Current       time.Duration
	ChangePercent float64
}

// TrendReport compares a run against a previous run of the same suite.
type TrendReport struct {
	SuccessRateDelta     float64
	AverageDurationDelta time.Duration
	NewFailures          []string
	ResolvedFailures     []string
	Regressions          []PerformanceDelta
	Improvements         []PerformanceDelta
}

// Trends compares current results against a previous run: success-rate and
// average-duration deltas, failures new to this run, failures the previous
// run had that this run resolved, and per-test response-time changes past
// the significance threshold in either direction.
func Trends(current, previous []*types.TestResult) *TrendReport {
	report := &TrendReport{
		SuccessRateDelta:     successRate(current) - successRate(previous),
		AverageDurationDelta: averageDuration(current) - averageDuration(previous),
	}

	currentFailed := failedNames(current)
	previousFailed := failedNames(previous)
	for name := range currentFailed {
		if _, ok := previousFailed[name]; !ok {
			report.NewFailures = append(report.NewFailures, name)
		}
	}
	for name := range previousFailed {
		if _, ok := currentFailed[name]; !ok {
			report.ResolvedFailures = append(report.ResolvedFailures, name)
		}
	}
	sort.Strings(report.NewFailures)
	sort.Strings(report.ResolvedFailures)

	previousTimes := make(map[string]time.Duration)
	for _, r := range previous {
		if r.Metrics != nil && r.Metrics.ResponseTime > 0 {
			previousTimes[r.TestName] = r.Metrics.ResponseTime
		}
	}
	for _, r := range current {
		if r.Metrics == nil || r.Metrics.ResponseTime <= 0 {
			continue
		}
		prev, ok := previousTimes[r.TestName]
		if !ok {
			continue
		}
		change := (float64(r.Metrics.ResponseTime) - float64(prev)) / float64(prev) * 100
		delta := PerformanceDelta{
			TestName:      r.TestName,
			Previous:      prev,
			Current:       r.Metrics.ResponseTime,
			ChangePercent: change,
		}
		switch {
		case change > significantChangePercent:
			report.Regressions = append(report.Regressions, delta)
		case change < -significantChangePercent:
			report.Improvements = append(report.Improvements, delta)
		}
	}
	return report
}

func successRate(results []*types.TestResult) float64 {
	if len(results) == 0 {
		return 0
	}
	passed := 0
	for _, r := range results {
		if r.Status == types.TestStatusPassed {
			passed++
		}
	}
	return float64(passed) / float64(len(results)) * 100
}

func averageDuration(results []*types.TestResult) time.Duration {
	if len(results) == 0 {
		return 0
	}
	var total time.Duration
	for _, r := range results {
		total += r.Duration
	}
	return total / time.Duration(len(results))
}

func failedNames(results []*types.TestResult) map[string]struct{} {
	names := make(map[string]struct{})
	for _, r := range results {
		if r.Failed() {
			names[r.TestName] = struct{}{}
		}
	}
	return names
}
