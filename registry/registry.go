// Package registry discovers and loads test-case documents and flow
// definitions from the test directory.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/flowcheck/flowcheck/coverage"
	"github.com/flowcheck/flowcheck/stubs"
	"github.com/flowcheck/flowcheck/types"
)

// DefaultPatterns are the glob patterns used to discover test files when the
// config does not override them.
var DefaultPatterns = []string{"**/*.yml", "**/*.yaml"}

// TestFile is one loaded test document: its cases plus the stub registry
// holding the file's file-level and case-level bindings.
type TestFile struct {
	Path  string
	Cases []types.TestCase
	Stubs *stubs.Registry
}

// Registry manages the test files and flow definitions for a run
type Registry struct {
	config Config
	files  []TestFile
	flows  []coverage.Flow
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log       *log.Logger
	TestDir   string
	Patterns  []string // discovery globs relative to TestDir
	FlowsFile string   // optional flow definitions for coverage accounting
}

// NewRegistry discovers and loads every test file under the configured
// directory, plus the flow definitions when given.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.TestDir == "" {
		return nil, fmt.Errorf("test directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stderr)
		cfg.Log.Error("No logger provided, using default")
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns
	}

	r := &Registry{config: cfg}

	if err := r.loadTestFiles(); err != nil {
		return nil, fmt.Errorf("failed to load test files: %w", err)
	}
	if cfg.FlowsFile != "" {
		flows, err := LoadFlows(cfg.FlowsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow definitions: %w", err)
		}
		r.flows = flows
	}

	cfg.Log.Debug("Registry loaded",
		"files", len(r.files),
		"cases", len(r.TestCases()),
		"flows", len(r.flows))

	return r, nil
}

func (r *Registry) loadTestFiles() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths, err := r.discoverPaths()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no test files found in %s", r.config.TestDir)
	}

	for _, path := range paths {
		file, err := LoadTestFile(path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		if len(file.Cases) == 0 {
			r.config.Log.Warn("Test file declares no test cases", "path", path)
			continue
		}
		r.files = append(r.files, *file)
	}
	return nil
}

func (r *Registry) discoverPaths() ([]string, error) {
	fsys := os.DirFS(r.config.TestDir)
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range r.config.Patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid test file pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			abs := filepath.Join(r.config.TestDir, m)
			if !seen[abs] {
				seen[abs] = true
				paths = append(paths, abs)
			}
		}
	}
	return paths, nil
}

// Files returns all loaded test files.
func (r *Registry) Files() []TestFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.files
}

// TestCases returns every test case across all loaded files.
func (r *Registry) TestCases() []types.TestCase {
	var cases []types.TestCase
	for _, f := range r.files {
		cases = append(cases, f.Cases...)
	}
	return cases
}

// Flows returns the loaded flow definitions.
func (r *Registry) Flows() []coverage.Flow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flows
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}
