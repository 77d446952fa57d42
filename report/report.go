// Package report maps a finished execution state into the verification
// report shape consumed by downstream tooling. The mapping is pure: every
// field is derived from the state and its results, with no re-execution.
package report

import (
	"fmt"
	"time"

	"github.com/verikit/verikit/aggregate"
	"github.com/verikit/verikit/types"
)

// VerificationReport is the externally consumed summary of one run.
type VerificationReport struct {
	Timestamp       time.Time      `json:"timestamp"`
	Environment     string         `json:"environment"`
	Summary         Summary        `json:"summary"`
	Recommendations []string       `json:"recommendations"`
	CriticalIssues  []Issue        `json:"criticalIssues"`
	Coverage        CoverageDetail `json:"coverage"`
}

// Summary carries the headline numbers for a run.
type Summary struct {
	TotalTests         int                                   `json:"totalTests"`
	PassedTests        int                                   `json:"passedTests"`
	FailedTests        int                                   `json:"failedTests"`
	SkippedTests       int                                   `json:"skippedTests"`
	ExecutionTime      time.Duration                         `json:"executionTime"`
	OverallStatus      types.ExecutionStatus                 `json:"overallStatus"`
	CategoryResults    map[types.TestCategory]CategoryResult `json:"categoryResults"`
	PerformanceSummary *aggregate.PerformanceSummary         `json:"performanceSummary,omitempty"`
}

// CategoryResult is the per-category slice of the summary.
type CategoryResult struct {
	Total           int           `json:"total"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
	Skipped         int           `json:"skipped"`
	SuccessRate     float64       `json:"successRate"`
	AverageDuration time.Duration `json:"averageDuration"`
}

// Issue names one critical-level failure.
type Issue struct {
	TestName string             `json:"testName"`
	Category types.TestCategory `json:"category"`
	Type     types.ErrorType    `json:"type"`
	Message  string             `json:"message"`
}

// CoverageDetail embeds the coverage score and what is missing.
type CoverageDetail struct {
	Score             float64                   `json:"score"`
	MissingCategories []types.TestCategory      `json:"missingCategories,omitempty"`
	MissingLevels     []types.VerificationLevel `json:"missingLevels,omitempty"`
}

// Options configures report generation.
type Options struct {
	Environment string
}

// Generate builds a VerificationReport from a terminal execution state.
func Generate(state *types.ExecutionState, opts Options) *VerificationReport {
	categories := aggregate.ByCategory(state.Results)
	errs := aggregate.Errors(state.Results)
	perf := aggregate.Performance(state.Results)
	coverage := aggregate.Coverage(state.Results)

	summary := Summary{
		TotalTests:      state.Progress.TotalTests,
		PassedTests:     len(state.CompletedTests),
		FailedTests:     len(state.FailedTests),
		SkippedTests:    len(state.SkippedTests),
		OverallStatus:   state.Status,
		CategoryResults: make(map[types.TestCategory]CategoryResult, len(categories)),
	}
	if !state.EndTime.IsZero() {
		summary.ExecutionTime = state.EndTime.Sub(state.StartTime)
	}
	for cat, g := range categories {
		summary.CategoryResults[cat] = CategoryResult{
			Total:           g.Total,
			Passed:          g.Passed,
			Failed:          g.Failed,
			Skipped:         g.Skipped,
			SuccessRate:     g.SuccessRate,
			AverageDuration: g.AverageDuration,
		}
	}
	if perf.Samples > 0 {
		summary.PerformanceSummary = perf
	}

	report := &VerificationReport{
		Timestamp:   time.Now().UTC(),
		Environment: opts.Environment,
		Summary:     summary,
		Coverage: CoverageDetail{
			Score:             coverage.Score,
			MissingCategories: coverage.MissingCategories,
			MissingLevels:     coverage.MissingLevels,
		},
		Recommendations: recommendations(state, errs, coverage),
	}

	for _, r := range errs.CriticalFailures {
		issue := Issue{
			TestName: r.TestName,
			Category: r.Category,
			Type:     types.ErrorTypeUnknown,
		}
		if r.Error != nil {
			issue.Type = r.Error.Type
			issue.Message = r.Error.Message
		}
		report.CriticalIssues = append(report.CriticalIssues, issue)
	}

	return report
}

// recommendations derives actionable follow-ups from the aggregated views.
func recommendations(state *types.ExecutionState, errs *aggregate.ErrorSummary, coverage *aggregate.CoverageReport) []string {
	var recs []string

	if len(errs.CriticalFailures) > 0 {
		recs = append(recs, fmt.Sprintf("address %d critical-level failure(s) before release", len(errs.CriticalFailures)))
	}
	if errs.TotalFailures > 0 && errs.MostFrequentType != "" {
		recs = append(recs, fmt.Sprintf("most failures are %s errors; investigate that subsystem first", errs.MostFrequentType))
	}
	if len(state.SkippedTests) > 0 {
		recs = append(recs, fmt.Sprintf("%d test(s) were skipped; re-run after fixing their dependencies", len(state.SkippedTests)))
	}
	if coverage.Score < 50 {
		recs = append(recs, fmt.Sprintf("coverage score is %.1f; add tests for the missing categories and levels", coverage.Score))
	}

	return recs
}
