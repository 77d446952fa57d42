package verikit

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/verikit/verikit/types"
)

// printResultsTable prints the results of the verification run to the console.
func (a *App) printResultsTable(state *types.ExecutionState) {
	a.config.Log.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	duration := time.Duration(0)
	if !state.EndTime.IsZero() {
		duration = state.EndTime.Sub(state.StartTime)
	}
	t.SetTitle(fmt.Sprintf("Verification Results (%s)", formatDuration(duration)))

	t.AppendHeader(table.Row{
		"Category", "Test", "Level", "Duration", "Attempts", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Category", AutoMerge: true},
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Attempts", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	// Group rows by category, categories in declaration order
	byCategory := make(map[types.TestCategory][]*types.TestResult)
	for _, r := range state.Results {
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}

	for _, cat := range types.AllCategories {
		results := byCategory[cat]
		if len(results) == 0 {
			continue
		}
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].TestName < results[j].TestName
		})
		for i, r := range results {
			prefix := "├──"
			if i == len(results)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				string(cat),
				fmt.Sprintf("%s %s", prefix, r.TestName),
				string(r.Level),
				formatDuration(r.Duration),
				r.Attempts,
				getResultString(r.Status),
				extractKeyErrorMessage(r),
			})
		}
		t.AppendSeparator()
	}

	switch state.Status {
	case types.ExecutionStatusCompleted:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.ExecutionStatusCancelled:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d tests", state.Progress.TotalTests),
		"",
		formatDuration(duration),
		"",
		getExecutionString(state.Status),
		fmt.Sprintf("%d passed / %d failed / %d skipped",
			len(state.CompletedTests), len(state.FailedTests), len(state.SkippedTests)),
	})

	t.Render()
}

// extractKeyErrorMessage reduces a result's error to a single table-friendly
// line with any terminal escape sequences removed.
func extractKeyErrorMessage(r *types.TestResult) string {
	if r.Error == nil {
		if r.Status == types.TestStatusSkipped && r.Details != nil {
			if reason, ok := r.Details["reason"].(string); ok {
				return reason
			}
		}
		return ""
	}

	msg := stripansi.Strip(r.Error.Message)
	if idx := strings.Index(msg, "\n"); idx != -1 {
		msg = msg[:idx]
	}
	if len(msg) > 80 {
		msg = msg[:70] + "..."
	}
	if r.Error.Code != "" {
		return fmt.Sprintf("[%s] %s", r.Error.Code, msg)
	}
	return fmt.Sprintf("[%s] %s", r.Error.Type, msg)
}

// getResultString returns a short string representing one test's outcome
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPassed:
		return "✓ pass"
	case types.TestStatusSkipped:
		return "- skip"
	case types.TestStatusWarning:
		return "! warn"
	default:
		return "✗ fail"
	}
}

// getExecutionString returns a short string for the overall run outcome
func getExecutionString(status types.ExecutionStatus) string {
	switch status {
	case types.ExecutionStatusCompleted:
		return "✓ pass"
	case types.ExecutionStatusCancelled:
		return "- cancelled"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
