// Package depgraph provides pure graph computation over suite dependency
// declarations: edge extraction, cycle detection, topological ordering and
// layered parallel grouping. It holds no state across calls.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/verikit/verikit/types"
)

// Edge captures one test's hard dependencies.
type Edge struct {
	TestID    string
	DependsOn []string
}

// CycleError is returned when the dependency graph contains a cycle.
// Path holds the full cycle, first node repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// MissingDependencyError is returned when a test references an id that does
// not exist in the suite.
type MissingDependencyError struct {
	TestID  string
	Missing string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("test %s depends on unknown test %s", e.TestID, e.Missing)
}

// ResolveDependencies extracts one edge per test with a non-empty dependency
// set, validates every referenced id exists, and checks the graph is acyclic.
// Any violation is fatal and aborts suite construction before any test runs.
func ResolveDependencies(tests []types.TestDefinition) ([]Edge, error) {
	known := make(map[string]struct{}, len(tests))
	for i := range tests {
		known[tests[i].ID] = struct{}{}
	}

	var edges []Edge
	for i := range tests {
		t := &tests[i]
		if len(t.Dependencies) == 0 {
			continue
		}
		for _, dep := range t.Dependencies {
			if _, ok := known[dep]; !ok {
				return nil, &MissingDependencyError{TestID: t.ID, Missing: dep}
			}
		}
		edges = append(edges, Edge{TestID: t.ID, DependsOn: append([]string(nil), t.Dependencies...)})
	}

	if _, err := CreateExecutionOrder(tests, edges); err != nil {
		return nil, err
	}
	return edges, nil
}

// dependencyMap indexes edges by dependent test id.
func dependencyMap(edges []Edge) map[string][]string {
	deps := make(map[string][]string, len(edges))
	for _, e := range edges {
		deps[e.TestID] = e.DependsOn
	}
	return deps
}

// CreateExecutionOrder returns a topological ordering of all test ids via
// depth-first search. Revisiting a node on the current recursion stack
// signals a cycle; the error names the full cycle path for diagnostics.
func CreateExecutionOrder(tests []types.TestDefinition, edges []Edge) ([]string, error) {
	deps := dependencyMap(edges)

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(tests))
	order := make([]string, 0, len(tests))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			// Found a back edge. Reconstruct the cycle from the stack.
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), id)
			return &CycleError{Path: path}
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		order = append(order, id)
		return nil
	}

	// Visit in declaration order so the result is deterministic.
	for i := range tests {
		if err := visit(tests[i].ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ParallelGroups partitions the execution order into waves: every wave holds
// tests whose dependencies are already in a prior wave, so two ids in the
// same wave have no transitive dependency relationship and may run
// concurrently.
func ParallelGroups(tests []types.TestDefinition, edges []Edge) ([][]string, error) {
	order, err := CreateExecutionOrder(tests, edges)
	if err != nil {
		return nil, err
	}
	deps := dependencyMap(edges)

	scheduled := make(map[string]struct{}, len(order))
	var groups [][]string
	for len(scheduled) < len(order) {
		var wave []string
		for _, id := range order {
			if _, ok := scheduled[id]; ok {
				continue
			}
			ready := true
			for _, dep := range deps[id] {
				if _, ok := scheduled[dep]; !ok {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			}
		}
		for _, id := range wave {
			scheduled[id] = struct{}{}
		}
		groups = append(groups, wave)
	}
	return groups, nil
}

// TransitiveDependencies returns every id the given test depends on,
// directly or indirectly, sorted for determinism.
func TransitiveDependencies(id string, edges []Edge) []string {
	deps := dependencyMap(edges)
	seen := make(map[string]struct{})
	var walk func(cur string)
	walk = func(cur string) {
		for _, dep := range deps[cur] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			walk(dep)
		}
	}
	walk(id)
	return sortedKeys(seen)
}

// DependentTests returns every id that depends on the given test, directly
// or indirectly, sorted for determinism. Used for diagnostics; retries are
// scoped to the originally failed set and never fan out through this.
func DependentTests(id string, edges []Edge) []string {
	dependents := make(map[string][]string)
	for _, e := range edges {
		for _, dep := range e.DependsOn {
			dependents[dep] = append(dependents[dep], e.TestID)
		}
	}
	seen := make(map[string]struct{})
	var walk func(cur string)
	walk = func(cur string) {
		for _, next := range dependents[cur] {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			walk(next)
		}
	}
	walk(id)
	return sortedKeys(seen)
}

// OptimizeExecutionOrder reorders the topological order to surface
// high-value, fast feedback earlier: within each parallel wave, tests are
// stable-sorted by verification level descending, then declared timeout
// ascending. Sorting only within waves keeps dependency order legal by
// construction.
func OptimizeExecutionOrder(tests []types.TestDefinition, edges []Edge) ([]string, error) {
	groups, err := ParallelGroups(tests, edges)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.TestDefinition, len(tests))
	for i := range tests {
		byID[tests[i].ID] = &tests[i]
	}

	var order []string
	for _, wave := range groups {
		sorted := append([]string(nil), wave...)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := byID[sorted[i]], byID[sorted[j]]
			if a.Level.Rank() != b.Level.Rank() {
				return a.Level.Rank() > b.Level.Rank()
			}
			return a.EffectiveTimeout() < b.EffectiveTimeout()
		})
		order = append(order, sorted...)
	}
	return order, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
