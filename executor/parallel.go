package executor

import (
	"context"
	"sync"
	"time"

	"github.com/verikit/verikit/types"
)

// testWork is a unit of work dispatched to a parallel worker.
type testWork struct {
	index int
	test  *types.TestDefinition
}

type testWorkResult struct {
	index  int
	result *types.TestResult
}

// ExecuteTestsInParallel is the bounded-concurrency primitive for suites
// with no dependency relationships: it runs every test through a worker
// pool of maxConcurrency goroutines and returns results in input order.
// Dependency-aware scheduling lives in the engine, not here.
func (e *Executor) ExecuteTestsInParallel(ctx context.Context, tests []types.TestDefinition, maxConcurrency int) []*types.TestResult {
	if len(tests) == 0 {
		return nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if maxConcurrency > len(tests) {
		maxConcurrency = len(tests)
	}

	e.log.Debug("Starting parallel execution", "totalTests", len(tests), "concurrency", maxConcurrency)

	workChan := make(chan testWork)
	resultChan := make(chan testWorkResult, maxConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < maxConcurrency; i++ {
		wg.Add(1)
		go e.worker(ctx, &wg, workChan, resultChan)
	}

	go func() {
		defer close(workChan)
		for i := range tests {
			select {
			case workChan <- testWork{index: i, test: &tests[i]}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]*types.TestResult, len(tests))
	for wr := range resultChan {
		results[wr.index] = wr.result
	}

	// Tests never dispatched because of cancellation still get a terminal,
	// skipped result so callers see every test accounted for.
	for i := range results {
		if results[i] == nil {
			results[i] = e.skippedResult(&tests[i], time.Now(), "execution cancelled")
		}
	}
	return results
}

func (e *Executor) worker(ctx context.Context, wg *sync.WaitGroup, workChan <-chan testWork, resultChan chan<- testWorkResult) {
	defer wg.Done()
	for {
		select {
		case work, ok := <-workChan:
			if !ok {
				return
			}
			result := e.ExecuteTest(ctx, work.test)
			resultChan <- testWorkResult{index: work.index, result: result}
		case <-ctx.Done():
			return
		}
	}
}
