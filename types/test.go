package types

import (
	"context"
	"fmt"
	"time"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusNotStarted TestStatus = "not_started"
	TestStatusInProgress TestStatus = "in_progress"
	TestStatusPassed     TestStatus = "passed"
	TestStatusFailed     TestStatus = "failed"
	TestStatusSkipped    TestStatus = "skipped"
	TestStatusWarning    TestStatus = "warning"
)

// Terminal returns true once a test can no longer change status.
func (s TestStatus) Terminal() bool {
	switch s {
	case TestStatusPassed, TestStatusFailed, TestStatusSkipped, TestStatusWarning:
		return true
	}
	return false
}

// TestCategory is the functional grouping of a test
type TestCategory string

const (
	CategoryEndpoint         TestCategory = "endpoint"
	CategorySchemaCompat     TestCategory = "schema-compatibility"
	CategoryAuthentication   TestCategory = "authentication"
	CategoryPerformance      TestCategory = "performance"
	CategoryDataIntegrity    TestCategory = "data-integrity"
	CategorySecurity         TestCategory = "security"
	CategoryBackwardCompat   TestCategory = "backward-compatibility"
)

// AllCategories lists every valid category, in declaration order.
// Coverage analysis treats this as the full category universe.
var AllCategories = []TestCategory{
	CategoryEndpoint,
	CategorySchemaCompat,
	CategoryAuthentication,
	CategoryPerformance,
	CategoryDataIntegrity,
	CategorySecurity,
	CategoryBackwardCompat,
}

// Valid returns true if the category is one of the known values.
func (c TestCategory) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// VerificationLevel classifies how important a test is
type VerificationLevel string

const (
	LevelCritical VerificationLevel = "critical"
	LevelHigh     VerificationLevel = "high"
	LevelMedium   VerificationLevel = "medium"
	LevelLow      VerificationLevel = "low"
)

// AllLevels lists every valid verification level, most important first.
var AllLevels = []VerificationLevel{
	LevelCritical,
	LevelHigh,
	LevelMedium,
	LevelLow,
}

// Rank returns a sortable weight for the level. Higher means more important.
func (l VerificationLevel) Rank() int {
	switch l {
	case LevelCritical:
		return 4
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	}
	return 0
}

// Valid returns true if the level is one of the known values.
func (l VerificationLevel) Valid() bool {
	return l.Rank() > 0
}

// DefaultTestTimeout is applied when a TestDefinition declares no timeout.
const DefaultTestTimeout = 30 * time.Second

// TestDefinition is the immutable description of a single test.
// The Execute capability is supplied by the caller; Setup and Cleanup are
// optional side-effecting operations run around it.
type TestDefinition struct {
	ID           string
	Name         string
	Category     TestCategory
	Level        VerificationLevel
	Dependencies []string
	Timeout      time.Duration
	Retryable    bool
	Requirements []string

	Setup   func(ctx context.Context) error
	Cleanup func(ctx context.Context) error
	Execute func(ctx context.Context) (*TestResult, error)
}

// EffectiveTimeout returns the declared timeout, or DefaultTestTimeout when unset.
func (t *TestDefinition) EffectiveTimeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return DefaultTestTimeout
}

// DisplayName returns the name to use in logs and tables.
func (t *TestDefinition) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// SchedulingMode selects how much of a suite is run
type SchedulingMode string

const (
	ModeFull  SchedulingMode = "full"
	ModeSmoke SchedulingMode = "smoke"
)

// SuiteConfig is the configuration surface consumed by the engine.
type SuiteConfig struct {
	Mode               SchedulingMode      `yaml:"mode,omitempty"`
	Categories         []TestCategory      `yaml:"categories,omitempty"`
	Levels             []VerificationLevel `yaml:"verification_levels,omitempty"`
	ParallelExecution  bool                `yaml:"parallel,omitempty"`
	MaxConcurrency     int                 `yaml:"max_concurrency,omitempty"`
	StopOnFirstFailure bool                `yaml:"stop_on_first_failure,omitempty"`
	RetryFailedTests   bool                `yaml:"retry_failed_tests,omitempty"`
	MaxRetries         int                 `yaml:"max_retries,omitempty"`
	RetryDelay         time.Duration       `yaml:"retry_delay,omitempty"`
}

// DefaultSuiteConfig returns the documented defaults:
// full mode, parallel execution with 4 workers, no stop-on-first-failure,
// up to 3 retries for retryable tests.
func DefaultSuiteConfig() SuiteConfig {
	return SuiteConfig{
		Mode:              ModeFull,
		ParallelExecution: true,
		MaxConcurrency:    4,
		MaxRetries:        3,
		RetryDelay:        time.Second,
	}
}

// WantsCategory reports whether the config's category filter admits c.
// An empty filter admits everything.
func (c *SuiteConfig) WantsCategory(cat TestCategory) bool {
	if len(c.Categories) == 0 {
		return true
	}
	for _, want := range c.Categories {
		if want == cat {
			return true
		}
	}
	return false
}

// WantsLevel reports whether the config's level filter admits l.
func (c *SuiteConfig) WantsLevel(l VerificationLevel) bool {
	if len(c.Levels) == 0 {
		return true
	}
	for _, want := range c.Levels {
		if want == l {
			return true
		}
	}
	return false
}

// TestSuite is a named collection of test definitions plus configuration.
type TestSuite struct {
	ID     string
	Name   string
	Tests  []TestDefinition
	Config SuiteConfig

	// Optional suite-level phases. A Setup failure is fatal for the whole
	// execution; a Cleanup failure is recorded but recoverable.
	Setup   func(ctx context.Context) error
	Cleanup func(ctx context.Context) error
}

// Validate checks suite-level invariants that must hold before execution:
// non-empty ids, unique test ids, known categories and levels, and every
// dependency reference resolving to a test in the suite.
func (s *TestSuite) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("suite id is required")
	}
	seen := make(map[string]struct{}, len(s.Tests))
	for i := range s.Tests {
		t := &s.Tests[i]
		if t.ID == "" {
			return fmt.Errorf("suite %s: test at index %d has no id", s.ID, i)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("suite %s: duplicate test id %q", s.ID, t.ID)
		}
		seen[t.ID] = struct{}{}
		if !t.Category.Valid() {
			return fmt.Errorf("suite %s: test %s has unknown category %q", s.ID, t.ID, t.Category)
		}
		if !t.Level.Valid() {
			return fmt.Errorf("suite %s: test %s has unknown verification level %q", s.ID, t.ID, t.Level)
		}
		if t.Execute == nil {
			return fmt.Errorf("suite %s: test %s has no execute capability", s.ID, t.ID)
		}
	}
	for i := range s.Tests {
		t := &s.Tests[i]
		for _, dep := range t.Dependencies {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("suite %s: test %s depends on unknown test %q", s.ID, t.ID, dep)
			}
		}
	}
	return nil
}

// TestByID returns the definition with the given id, or nil.
func (s *TestSuite) TestByID(id string) *TestDefinition {
	for i := range s.Tests {
		if s.Tests[i].ID == id {
			return &s.Tests[i]
		}
	}
	return nil
}
