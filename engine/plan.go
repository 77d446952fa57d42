package engine

import (
	"fmt"

	"github.com/verikit/verikit/depgraph"
	"github.com/verikit/verikit/types"
)

// executionPlan is the immutable schedule derived from a suite before any
// test runs: the filtered definitions, their dependency edges restricted to
// the filtered set, and a topological execution order.
type executionPlan struct {
	tests map[string]*types.TestDefinition
	deps  map[string][]string
	order []string
}

// buildPlan filters the suite's tests by the configured mode, categories and
// verification levels, then resolves dependencies over the filtered set.
// Dependencies pointing at filtered-out tests are dropped: an excluded
// prerequisite is not part of this run and cannot gate it.
func buildPlan(suite *types.TestSuite) (*executionPlan, error) {
	cfg := &suite.Config
	included := make(map[string]struct{})
	var filtered []types.TestDefinition
	for i := range suite.Tests {
		t := suite.Tests[i]
		if !cfg.WantsCategory(t.Category) || !cfg.WantsLevel(t.Level) {
			continue
		}
		if cfg.Mode == types.ModeSmoke && t.Level != types.LevelCritical && t.Level != types.LevelHigh {
			continue
		}
		included[t.ID] = struct{}{}
		filtered = append(filtered, t)
	}

	for i := range filtered {
		var kept []string
		for _, dep := range filtered[i].Dependencies {
			if _, ok := included[dep]; ok {
				kept = append(kept, dep)
			}
		}
		filtered[i].Dependencies = kept
	}

	edges, err := depgraph.ResolveDependencies(filtered)
	if err != nil {
		return nil, fmt.Errorf("resolving dependencies: %w", err)
	}
	order, err := depgraph.CreateExecutionOrder(filtered, edges)
	if err != nil {
		return nil, err
	}

	plan := &executionPlan{
		tests: make(map[string]*types.TestDefinition, len(filtered)),
		deps:  make(map[string][]string, len(edges)),
		order: order,
	}
	for i := range filtered {
		plan.tests[filtered[i].ID] = &filtered[i]
	}
	for _, edge := range edges {
		plan.deps[edge.TestID] = edge.DependsOn
	}
	return plan, nil
}

// subsetSuite derives a suite containing only the named tests, with
// dependencies outside the subset pruned. Used for retry executions: retries
// are scoped to the originally failed set, not their dependents.
func subsetSuite(suite *types.TestSuite, ids []string) *types.TestSuite {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	sub := &types.TestSuite{
		ID:      suite.ID,
		Name:    suite.Name,
		Config:  suite.Config,
		Setup:   suite.Setup,
		Cleanup: suite.Cleanup,
	}
	for i := range suite.Tests {
		t := suite.Tests[i]
		if _, ok := keep[t.ID]; !ok {
			continue
		}
		var deps []string
		for _, dep := range t.Dependencies {
			if _, ok := keep[dep]; ok {
				deps = append(deps, dep)
			}
		}
		t.Dependencies = deps
		sub.Tests = append(sub.Tests, t)
	}
	return sub
}
