package depgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verikit/verikit/types"
)

func makeTest(id string, deps ...string) types.TestDefinition {
	return types.TestDefinition{
		ID:           id,
		Category:     types.CategoryEndpoint,
		Level:        types.LevelMedium,
		Dependencies: deps,
		Execute: func(ctx context.Context) (*types.TestResult, error) {
			return nil, nil
		},
	}
}

func TestResolveDependencies(t *testing.T) {
	tests := []types.TestDefinition{
		makeTest("a"),
		makeTest("b", "a"),
		makeTest("c", "a", "b"),
	}

	edges, err := ResolveDependencies(tests)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "b", edges[0].TestID)
	assert.Equal(t, []string{"a"}, edges[0].DependsOn)
	assert.Equal(t, "c", edges[1].TestID)
	assert.Equal(t, []string{"a", "b"}, edges[1].DependsOn)
}

func TestResolveDependencies_MissingReference(t *testing.T) {
	tests := []types.TestDefinition{
		makeTest("a"),
		makeTest("b", "ghost"),
	}

	_, err := ResolveDependencies(tests)
	require.Error(t, err)

	var missing *MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "b", missing.TestID)
	assert.Equal(t, "ghost", missing.Missing)
}

func TestCreateExecutionOrder_Topological(t *testing.T) {
	// Diamond with a tail: a -> (b, c) -> d -> e
	tests := []types.TestDefinition{
		makeTest("e", "d"),
		makeTest("d", "b", "c"),
		makeTest("c", "a"),
		makeTest("b", "a"),
		makeTest("a"),
	}
	edges, err := ResolveDependencies(tests)
	require.NoError(t, err)

	order, err := CreateExecutionOrder(tests, edges)
	require.NoError(t, err)
	require.Len(t, order, len(tests))

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, edge := range edges {
		for _, dep := range edge.DependsOn {
			assert.Less(t, pos[dep], pos[edge.TestID],
				"%s must come before %s", dep, edge.TestID)
		}
	}
}

func TestCreateExecutionOrder_CycleDetection(t *testing.T) {
	tests := []types.TestDefinition{
		makeTest("A", "C"),
		makeTest("B", "A"),
		makeTest("C", "B"),
	}
	edges, err := ResolveDependencies(tests)
	require.NoError(t, err)

	_, err = CreateExecutionOrder(tests, edges)
	require.Error(t, err)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Contains(t, err.Error(), "A")
	assert.Contains(t, err.Error(), "B")
	assert.Contains(t, err.Error(), "C")
}

func TestCreateExecutionOrder_Deterministic(t *testing.T) {
	tests := []types.TestDefinition{
		makeTest("z"),
		makeTest("m"),
		makeTest("a"),
	}
	edges, err := ResolveDependencies(tests)
	require.NoError(t, err)

	first, err := CreateExecutionOrder(tests, edges)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := CreateExecutionOrder(tests, edges)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// Independent tests keep their declaration order
	assert.Equal(t, []string{"z", "m", "a"}, first)
}

func TestParallelGroups(t *testing.T) {
	tests := []types.TestDefinition{
		makeTest("a"),
		makeTest("b"),
		makeTest("c", "a"),
		makeTest("d", "a", "b"),
		makeTest("e", "c", "d"),
	}
	edges, err := ResolveDependencies(tests)
	require.NoError(t, err)

	groups, err := ParallelGroups(tests, edges)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.ElementsMatch(t, []string{"a", "b"}, groups[0])
	assert.ElementsMatch(t, []string{"c", "d"}, groups[1])
	assert.ElementsMatch(t, []string{"e"}, groups[2])
}

func TestTransitiveDependencies(t *testing.T) {
	tests := []types.TestDefinition{
		makeTest("a"),
		makeTest("b", "a"),
		makeTest("c", "b"),
		makeTest("d"),
	}
	edges, err := ResolveDependencies(tests)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, TransitiveDependencies("c", edges))
	assert.Empty(t, TransitiveDependencies("a", edges))
	assert.Equal(t, []string{"b", "c"}, DependentTests("a", edges))
	assert.Empty(t, DependentTests("d", edges))
}

func TestOptimizeExecutionOrder(t *testing.T) {
	low := makeTest("low")
	low.Level = types.LevelLow
	critical := makeTest("critical")
	critical.Level = types.LevelCritical
	high := makeTest("high")
	high.Level = types.LevelHigh

	tests := []types.TestDefinition{low, critical, high}
	edges, err := ResolveDependencies(tests)
	require.NoError(t, err)

	order, err := OptimizeExecutionOrder(tests, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"critical", "high", "low"}, order)
}

func TestOptimizeExecutionOrder_RespectsDependencies(t *testing.T) {
	// A low-priority prerequisite still runs before its critical dependent.
	prereq := makeTest("prereq")
	prereq.Level = types.LevelLow
	dependent := makeTest("dependent", "prereq")
	dependent.Level = types.LevelCritical

	tests := []types.TestDefinition{dependent, prereq}
	edges, err := ResolveDependencies(tests)
	require.NoError(t, err)

	order, err := OptimizeExecutionOrder(tests, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"prereq", "dependent"}, order)
}
