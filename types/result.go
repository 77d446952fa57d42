package types

import (
	"fmt"
	"time"
)

// ErrorType is the failure taxonomy used for reporting.
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypePerformance    ErrorType = "performance"
	ErrorTypeSchema         ErrorType = "schema"
	ErrorTypeSecurity       ErrorType = "security"
	ErrorTypeDataIntegrity  ErrorType = "data-integrity"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// VerificationError is the typed error carried by a failed TestResult.
// It holds enough detail (type, message, optional code/stack) for
// root-causing without re-running the test.
type VerificationError struct {
	Type    ErrorType
	Message string
	Code    string
	Stack   string
}

func (e *VerificationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (code=%s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// NewVerificationError builds a VerificationError with the given type and message.
func NewVerificationError(errType ErrorType, format string, args ...any) *VerificationError {
	return &VerificationError{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// PerformanceMetrics carries timing data attached to a result's details.
type PerformanceMetrics struct {
	ResponseTime time.Duration
	Throughput   float64
	ErrorRate    float64
}

// TestResult is the output of one execution attempt. Immutable once returned
// by the executor; the engine only folds it into ExecutionState.
type TestResult struct {
	TestName     string
	Category     TestCategory
	Status       TestStatus
	Duration     time.Duration
	StartTime    time.Time
	EndTime      time.Time
	Error        *VerificationError
	Details      map[string]any
	Level        VerificationLevel
	Requirements []string
	Metrics      *PerformanceMetrics
	Attempts     int
}

// NewTestResult constructs a result for the given definition with the fields
// the executor always knows up front. Status defaults to in-progress and is
// finalized by the executor.
func NewTestResult(def *TestDefinition) *TestResult {
	return &TestResult{
		TestName:     def.DisplayName(),
		Category:     def.Category,
		Status:       TestStatusInProgress,
		Level:        def.Level,
		Requirements: def.Requirements,
		StartTime:    time.Now(),
		Attempts:     1,
	}
}

// Normalize fills any fields the caller-supplied execute capability omitted,
// using the owning definition, and fixes up timing invariants:
// duration is always endTime - startTime.
func (r *TestResult) Normalize(def *TestDefinition, start, end time.Time) {
	if r.TestName == "" {
		r.TestName = def.DisplayName()
	}
	if r.Category == "" {
		r.Category = def.Category
	}
	if r.Level == "" {
		r.Level = def.Level
	}
	if len(r.Requirements) == 0 {
		r.Requirements = def.Requirements
	}
	if r.Status == "" || r.Status == TestStatusNotStarted || r.Status == TestStatusInProgress {
		r.Status = TestStatusPassed
	}
	if r.StartTime.IsZero() {
		r.StartTime = start
	}
	if r.EndTime.IsZero() {
		r.EndTime = end
	}
	r.Duration = r.EndTime.Sub(r.StartTime)
	if r.Attempts == 0 {
		r.Attempts = 1
	}
}

// Failed reports whether the result ended in failure.
func (r *TestResult) Failed() bool {
	return r.Status == TestStatusFailed
}
