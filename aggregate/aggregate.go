// Package aggregate post-processes a result set into category/level rollups,
// duration percentiles, error rollups, coverage scores and run-over-run
// trends. Every function is pure over immutable inputs and safe to call on
// an in-flight snapshot as well as a finished run.
package aggregate

import (
	"sort"
	"time"

	"github.com/verikit/verikit/types"
)

// GroupSummary holds the per-group rollup counters.
type GroupSummary struct {
	Total           int
	Passed          int
	Failed          int
	Skipped         int
	Warning         int
	AverageDuration time.Duration
	SuccessRate     float64
}

func (g *GroupSummary) add(r *types.TestResult) {
	g.Total++
	switch r.Status {
	case types.TestStatusPassed:
		g.Passed++
	case types.TestStatusFailed:
		g.Failed++
	case types.TestStatusSkipped:
		g.Skipped++
	case types.TestStatusWarning:
		g.Warning++
	}
}

func (g *GroupSummary) finish(totalDuration time.Duration) {
	if g.Total == 0 {
		return
	}
	g.AverageDuration = totalDuration / time.Duration(g.Total)
	g.SuccessRate = float64(g.Passed) / float64(g.Total) * 100
}

// ByCategory groups results by test category and computes per-group counts,
// average duration and success rate (passed/total*100, 0 when empty).
func ByCategory(results []*types.TestResult) map[types.TestCategory]*GroupSummary {
	groups := make(map[types.TestCategory]*GroupSummary)
	durations := make(map[types.TestCategory]time.Duration)
	for _, r := range results {
		g, ok := groups[r.Category]
		if !ok {
			g = &GroupSummary{}
			groups[r.Category] = g
		}
		g.add(r)
		durations[r.Category] += r.Duration
	}
	for cat, g := range groups {
		g.finish(durations[cat])
	}
	return groups
}

// ByLevel groups results by verification level.
func ByLevel(results []*types.TestResult) map[types.VerificationLevel]*GroupSummary {
	groups := make(map[types.VerificationLevel]*GroupSummary)
	durations := make(map[types.VerificationLevel]time.Duration)
	for _, r := range results {
		g, ok := groups[r.Level]
		if !ok {
			g = &GroupSummary{}
			groups[r.Level] = g
		}
		g.add(r)
		durations[r.Level] += r.Duration
	}
	for level, g := range groups {
		g.finish(durations[level])
	}
	return groups
}

// ErrorSummary rolls failures up by error type and category.
type ErrorSummary struct {
	TotalFailures           int
	ByType                  map[types.ErrorType]int
	ByCategory              map[types.TestCategory]int
	MostFrequentType        types.ErrorType
	MostProblematicCategory types.TestCategory
	CriticalFailures        []*types.TestResult
}

// Errors counts failures by error type and by category, surfaces the single
// most frequent type and most problematic category (ties broken by first
// encounter over the result iteration), and collects every critical-level
// failure separately.
func Errors(results []*types.TestResult) *ErrorSummary {
	summary := &ErrorSummary{
		ByType:     make(map[types.ErrorType]int),
		ByCategory: make(map[types.TestCategory]int),
	}
	var typeOrder []types.ErrorType
	var categoryOrder []types.TestCategory

	for _, r := range results {
		if !r.Failed() {
			continue
		}
		summary.TotalFailures++

		errType := types.ErrorTypeUnknown
		if r.Error != nil {
			errType = r.Error.Type
		}
		if _, seen := summary.ByType[errType]; !seen {
			typeOrder = append(typeOrder, errType)
		}
		summary.ByType[errType]++

		if _, seen := summary.ByCategory[r.Category]; !seen {
			categoryOrder = append(categoryOrder, r.Category)
		}
		summary.ByCategory[r.Category]++

		if r.Level == types.LevelCritical {
			summary.CriticalFailures = append(summary.CriticalFailures, r)
		}
	}

	best := 0
	for _, t := range typeOrder {
		if summary.ByType[t] > best {
			best = summary.ByType[t]
			summary.MostFrequentType = t
		}
	}
	best = 0
	for _, c := range categoryOrder {
		if summary.ByCategory[c] > best {
			best = summary.ByCategory[c]
			summary.MostProblematicCategory = c
		}
	}
	return summary
}

// TestTiming names one test's response time.
type TestTiming struct {
	TestName     string
	ResponseTime time.Duration
}

// PerformanceSummary aggregates response-time samples.
type PerformanceSummary struct {
	Samples int
	Min     time.Duration
	Max     time.Duration
	Average time.Duration
	Median  time.Duration
	P95     time.Duration
	P99     time.Duration
	Slowest []TestTiming
	Fastest []TestTiming
}

// Performance collects every result carrying a response-time sample and
// computes min/max/average plus nearest-rank-below percentiles, along with
// the five slowest and five fastest named tests.
func Performance(results []*types.TestResult) *PerformanceSummary {
	var timings []TestTiming
	for _, r := range results {
		if r.Metrics == nil || r.Metrics.ResponseTime <= 0 {
			continue
		}
		timings = append(timings, TestTiming{TestName: r.TestName, ResponseTime: r.Metrics.ResponseTime})
	}
	summary := &PerformanceSummary{Samples: len(timings)}
	if len(timings) == 0 {
		return summary
	}

	sort.SliceStable(timings, func(i, j int) bool {
		return timings[i].ResponseTime < timings[j].ResponseTime
	})

	sorted := make([]time.Duration, len(timings))
	var total time.Duration
	for i, t := range timings {
		sorted[i] = t.ResponseTime
		total += t.ResponseTime
	}

	summary.Min = sorted[0]
	summary.Max = sorted[len(sorted)-1]
	summary.Average = total / time.Duration(len(sorted))
	summary.Median = percentile(sorted, 50)
	summary.P95 = percentile(sorted, 95)
	summary.P99 = percentile(sorted, 99)

	n := 5
	if n > len(timings) {
		n = len(timings)
	}
	summary.Fastest = append([]TestTiming(nil), timings[:n]...)
	for i := len(timings) - 1; i >= len(timings)-n; i-- {
		summary.Slowest = append(summary.Slowest, timings[i])
	}
	return summary
}

// percentile implements nearest-rank-below semantics over a sorted sample:
// index = floor(p/100 * (n-1)), with no interpolation between ranks.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}
