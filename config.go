package flowcheck

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"

	"github.com/flowcheck/flowcheck/flags"
)

// Config holds the application configuration
type Config struct {
	TestDir      string
	FlowsFile    string        // Flow definitions for coverage reporting, optional
	AssistantURL string        // Base URL of the assistant under test
	RunInterval  time.Duration // Interval between test runs
	RunOnce      bool          // Indicates if the service should exit after one test run
	LogDir       string        // Directory to store per-run artifacts
	ReportFile   string        // Path of the JSON run report, optional
	Concurrency  int           // Number of test cases evaluated in parallel
	Timeout      time.Duration // Timeout for a whole test run, 0 for none
	Log          *log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger *log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	testDir := ctx.String(flags.TestDir.Name)
	if testDir == "" {
		return nil, errors.New("test directory is required")
	}
	absTestDir, err := filepath.Abs(testDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
	}

	assistantURL := ctx.String(flags.AssistantURL.Name)
	if assistantURL == "" {
		return nil, errors.New("assistant URL is required")
	}

	var absFlowsFile string
	if flowsFile := ctx.String(flags.Flows.Name); flowsFile != "" {
		absFlowsFile, err = filepath.Abs(flowsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for flows file '%s': %w", flowsFile, err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 1 {
		concurrency = 1
	}

	return &Config{
		TestDir:      absTestDir,
		FlowsFile:    absFlowsFile,
		AssistantURL: assistantURL,
		RunInterval:  runInterval,
		RunOnce:      runOnce,
		LogDir:       logDir,
		ReportFile:   ctx.String(flags.ReportFile.Name),
		Concurrency:  concurrency,
		Timeout:      ctx.Duration(flags.Timeout.Name),
		Log:          logger,
	}, nil
}
