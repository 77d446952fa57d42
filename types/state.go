package types

import (
	"sort"
	"time"
)

// ExecutionStatus is the state machine for one suite run:
// idle -> initializing -> running -> completed | failed | cancelled.
type ExecutionStatus string

const (
	ExecutionStatusIdle         ExecutionStatus = "idle"
	ExecutionStatusInitializing ExecutionStatus = "initializing"
	ExecutionStatusRunning      ExecutionStatus = "running"
	ExecutionStatusCompleted    ExecutionStatus = "completed"
	ExecutionStatusFailed       ExecutionStatus = "failed"
	ExecutionStatusCancelled    ExecutionStatus = "cancelled"
)

// Active returns true while the execution can still accept results.
func (s ExecutionStatus) Active() bool {
	return s == ExecutionStatusInitializing || s == ExecutionStatusRunning
}

// Progress tracks completion counters for one execution.
type Progress struct {
	TotalTests             int
	CompletedTests         int
	FailedTests            int
	SkippedTests           int
	PercentComplete        float64
	EstimatedTimeRemaining time.Duration
}

// Phase identifies where a phase-level error occurred.
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhaseCleanup Phase = "cleanup"
)

// PhaseError records a global setup/cleanup failure. Setup errors are not
// recoverable; cleanup errors are recorded without changing the final status.
type PhaseError struct {
	Phase       Phase
	Message     string
	Recoverable bool
	Time        time.Time
}

// ExecutionState is the single mutable record for one run of a suite.
// Only the engine mutates it; everything else reads it or returns values the
// engine folds in.
type ExecutionState struct {
	ExecutionID string
	SuiteID     string
	Status      ExecutionStatus
	StartTime   time.Time
	EndTime     time.Time
	CurrentTest string

	// Disjoint id sets. A test id appears in exactly one of them once it
	// reaches a terminal state.
	CompletedTests map[string]struct{}
	FailedTests    map[string]struct{}
	SkippedTests   map[string]struct{}

	Progress Progress
	Results  []*TestResult
	Errors   []PhaseError

	// RetryOf links a retry execution back to the run it re-executes.
	RetryOf string
}

// NewExecutionState builds the initial state for a run.
func NewExecutionState(executionID, suiteID string, totalTests int) *ExecutionState {
	return &ExecutionState{
		ExecutionID:    executionID,
		SuiteID:        suiteID,
		Status:         ExecutionStatusIdle,
		CompletedTests: make(map[string]struct{}),
		FailedTests:    make(map[string]struct{}),
		SkippedTests:   make(map[string]struct{}),
		Progress:       Progress{TotalTests: totalTests},
	}
}

// Resolved reports whether the test id has reached a terminal state.
func (s *ExecutionState) Resolved(id string) bool {
	if _, ok := s.CompletedTests[id]; ok {
		return true
	}
	if _, ok := s.FailedTests[id]; ok {
		return true
	}
	_, ok := s.SkippedTests[id]
	return ok
}

// Passed reports whether the test id completed successfully.
func (s *ExecutionState) Passed(id string) bool {
	_, ok := s.CompletedTests[id]
	return ok
}

// ProcessedCount returns how many tests have reached a terminal state.
func (s *ExecutionState) ProcessedCount() int {
	return len(s.CompletedTests) + len(s.FailedTests) + len(s.SkippedTests)
}

// FailedTestIDs returns the failed set as a sorted slice, for deterministic
// retry planning and reporting.
func (s *ExecutionState) FailedTestIDs() []string {
	ids := make([]string, 0, len(s.FailedTests))
	for id := range s.FailedTests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
