// Package flowcheck is an end-to-end acceptance tester for conversational
// assistants. It replays scripted conversations against a running assistant
// and evaluates the emitted event stream against per-turn assertions.
package flowcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/flowcheck/flowcheck/coverage"
	"github.com/flowcheck/flowcheck/driver"
	"github.com/flowcheck/flowcheck/exitcodes"
	"github.com/flowcheck/flowcheck/logging"
	"github.com/flowcheck/flowcheck/metrics"
	"github.com/flowcheck/flowcheck/registry"
	"github.com/flowcheck/flowcheck/reporting"
	"github.com/flowcheck/flowcheck/runner"
	"github.com/flowcheck/flowcheck/types"
)

// defaultHTTPTimeout bounds individual requests to the assistant. The whole
// run is bounded separately by Config.Timeout.
const defaultHTTPTimeout = 30 * time.Second

// App runs E2E test suites against an assistant, once or periodically.
type App struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	driver   driver.Driver
	result   *runner.RunnerResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating flowcheck with config",
		"testDir", config.TestDir,
		"flowsFile", config.FlowsFile,
		"assistantURL", config.AssistantURL,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:       config.Log,
		TestDir:   config.TestDir,
		FlowsFile: config.FlowsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	config.Log.Info("flowcheck.New: loaded test registry",
		"files", len(reg.Files()),
		"cases", len(reg.TestCases()),
		"flows", len(reg.Flows()))

	return &App{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		driver:           driver.NewHTTPDriver(config.AssistantURL, defaultHTTPTimeout, config.Log),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the test suite immediately and then, unless in run-once mode,
// periodically at the configured interval.
func (a *App) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	a.ctx = ctx
	a.done = make(chan struct{})
	a.running.Store(true)

	if a.config.RunOnce {
		a.config.Log.Info("Starting flowcheck in run-once mode")
	} else {
		a.config.Log.Info("Starting flowcheck in continuous mode", "interval", a.config.RunInterval)
	}

	// Run tests immediately on startup
	err := a.runTests()
	if err != nil {
		a.config.Log.Error("Runtime error running tests", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// If in run-once mode, trigger shutdown and return
	if a.config.RunOnce {
		a.config.Log.Info("Tests completed, exiting (run-once mode)")

		if a.result != nil && a.result.Status != types.TestStatusPass {
			a.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(a.result.String())
		}

		go func() {
			a.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	// Start a goroutine for periodic test execution
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.config.Log.Debug("Starting periodic test runner goroutine", "interval", a.config.RunInterval)

		for {
			select {
			case <-time.After(a.config.RunInterval):
				if !a.running.Load() {
					a.config.Log.Debug("Service stopped, exiting periodic test runner")
					return
				}

				a.config.Log.Info("Running periodic tests")
				if err := a.runTests(); err != nil {
					a.config.Log.Error("Error running periodic tests", "error", err)
				}

			case <-a.done:
				a.config.Log.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				a.config.Log.Debug("Context canceled, stopping periodic test runner")
				a.running.Store(false)
				return
			}
		}
	}()
	a.config.Log.Debug("flowcheck started successfully")
	return nil
}

// runTests runs the full suite once and processes the results. Each run gets
// its own coverage tracker and report sink so successive runs stay isolated.
func (a *App) runTests() error {
	a.config.Log.Info("Running all test cases...")

	var sinks []logging.ResultSink
	if a.config.ReportFile != "" {
		sinks = append(sinks, reporting.NewJSONSink(a.config.ReportFile))
	}

	var tracker *coverage.Tracker
	if flows := a.registry.Flows(); len(flows) > 0 {
		tracker = coverage.NewTracker(flows)
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Registry:    a.registry,
		Driver:      a.driver,
		Coverage:    tracker,
		Log:         a.config.Log,
		Concurrency: a.config.Concurrency,
		LogDir:      a.config.LogDir,
		Sinks:       sinks,
	})
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create test runner: %w", err))
	}

	ctx := a.ctx
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	result, err := testRunner.RunAllTests(ctx)
	if err != nil {
		// This is a runtime error (not a test failure)
		a.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}
	a.result = result

	a.printResultsTable(result)
	if len(result.Coverage) > 0 {
		a.printCoverageTable(result.Coverage)
	}
	fmt.Println(result.String())

	metrics.RecordRun(
		result.RunID,
		string(result.Status),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed+result.Stats.Errored,
		result.WallClockTime,
	)

	a.config.Log.Info("Test run completed",
		"run_id", result.RunID,
		"status", result.Status,
		"artifacts", result.LogDir)
	return nil
}

// Stop stops the flowcheck service.
func (a *App) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping flowcheck")

	if !a.running.Load() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new test runs
	a.running.Store(false)

	a.config.Log.Debug("Sending done signal to goroutines")
	close(a.done)

	a.config.Log.Info("flowcheck stopped successfully")
	return nil
}

// Stopped returns true if the flowcheck service is stopped.
func (a *App) Stopped() bool {
	return !a.running.Load()
}

// Result returns the most recent run's result, nil before the first run.
func (a *App) Result() *runner.RunnerResult {
	return a.result
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (a *App) WaitForShutdown(ctx context.Context) error {
	a.config.Log.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.config.Log.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		a.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
