package aggregate

import (
	"github.com/verikit/verikit/types"
)

// CoverageReport scores how much of the category/level matrix a run touched.
type CoverageReport struct {
	Score             float64
	CoveredCategories []types.TestCategory
	MissingCategories []types.TestCategory
	CoveredLevels     []types.VerificationLevel
	MissingLevels     []types.VerificationLevel
}

// Coverage scores breadth across the known categories and levels. Category
// coverage and level coverage each contribute half of a 0..100 score.
func Coverage(results []*types.TestResult) *CoverageReport {
	seenCategories := make(map[types.TestCategory]struct{})
	seenLevels := make(map[types.VerificationLevel]struct{})
	for _, r := range results {
		seenCategories[r.Category] = struct{}{}
		seenLevels[r.Level] = struct{}{}
	}

	report := &CoverageReport{}
	for _, cat := range types.AllCategories {
		if _, ok := seenCategories[cat]; ok {
			report.CoveredCategories = append(report.CoveredCategories, cat)
		} else {
			report.MissingCategories = append(report.MissingCategories, cat)
		}
	}
	for _, level := range types.AllLevels {
		if _, ok := seenLevels[level]; ok {
			report.CoveredLevels = append(report.CoveredLevels, level)
		} else {
			report.MissingLevels = append(report.MissingLevels, level)
		}
	}

	categoryScore := float64(len(report.CoveredCategories)) / float64(len(types.AllCategories)) * 50
	levelScore := float64(len(report.CoveredLevels)) / float64(len(types.AllLevels)) * 50
	report.Score = categoryScore + levelScore
	return report
}
