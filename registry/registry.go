package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/verikit/verikit/types"
)

// Registry loads suite definition files and turns them into executable suites
type Registry struct {
	config Config
	suite  *types.TestSuite
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log            log.Logger
	SuiteFile      string
	DefaultTimeout time.Duration
}

// SuiteDefinition is the on-disk shape of a suite file
type SuiteDefinition struct {
	ID     string            `yaml:"id"`
	Name   string            `yaml:"name"`
	Config types.SuiteConfig `yaml:"config"`
	Tests  []TestEntry       `yaml:"tests"`
}

// TestEntry is the on-disk shape of a single test. Command is an argv vector
// executed via the host; a non-zero exit status fails the test.
type TestEntry struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Category     string         `yaml:"category"`
	Level        string         `yaml:"level"`
	DependsOn    []string       `yaml:"depends_on"`
	Timeout      *time.Duration `yaml:"timeout"`
	Retryable    bool           `yaml:"retryable"`
	Requirements []string       `yaml:"requirements"`
	Command      []string       `yaml:"command"`
	Env          []string       `yaml:"env"`
	WorkDir      string         `yaml:"workdir"`
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.SuiteFile == "" {
		return nil, fmt.Errorf("suite file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadSuite(cfg.SuiteFile); err != nil {
		return nil, fmt.Errorf("failed to load suite: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "suite", r.suite.ID, "len(tests)", len(r.suite.Tests))

	return r, nil
}

// loadSuite loads a suite definition file and builds the executable suite
func (r *Registry) loadSuite(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, err := loadDefinition(path)
	if err != nil {
		return fmt.Errorf("failed to load definition: %w", err)
	}

	suite, err := r.buildSuite(def)
	if err != nil {
		return fmt.Errorf("failed to build suite: %w", err)
	}

	if err := suite.Validate(); err != nil {
		return fmt.Errorf("invalid suite: %w", err)
	}

	r.suite = suite

	return nil
}

// Suite returns the loaded suite
func (r *Registry) Suite() *types.TestSuite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.suite
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// loadDefinition loads a suite definition from a file
func loadDefinition(path string) (*SuiteDefinition, error) {
	log.Debug("Reading suite definition file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite file: %w", err)
	}

	// Unmarshal over a pre-populated config so a suite file only overrides
	// the fields it actually sets; everything else keeps the defaults.
	def := SuiteDefinition{Config: types.DefaultSuiteConfig()}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing suite file: %w", err)
	}

	return &def, nil
}

// buildSuite converts a definition into an executable suite
func (r *Registry) buildSuite(def *SuiteDefinition) (*types.TestSuite, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("suite id is required")
	}

	suite := &types.TestSuite{
		ID:     def.ID,
		Name:   def.Name,
		Config: def.Config,
	}

	for i := range def.Tests {
		test, err := r.buildTest(&def.Tests[i])
		if err != nil {
			return nil, fmt.Errorf("test %q: %w", def.Tests[i].ID, err)
		}
		suite.Tests = append(suite.Tests, *test)
	}

	return suite, nil
}

func (r *Registry) buildTest(entry *TestEntry) (*types.TestDefinition, error) {
	if len(entry.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}

	var timeout time.Duration
	if entry.Timeout != nil {
		timeout = *entry.Timeout
	} else {
		timeout = r.config.DefaultTimeout
	}

	return &types.TestDefinition{
		ID:           entry.ID,
		Name:         entry.Name,
		Category:     types.TestCategory(entry.Category),
		Level:        types.VerificationLevel(entry.Level),
		Dependencies: entry.DependsOn,
		Timeout:      timeout,
		Retryable:    entry.Retryable,
		Requirements: entry.Requirements,
		Execute:      commandCapability(entry.Command, entry.Env, entry.WorkDir),
	}, nil
}
