// Package runner drives test cases through the conversation driver and
// aggregates per-assertion verdicts into the run's result hierarchy.
package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/flowcheck/flowcheck/coverage"
	"github.com/flowcheck/flowcheck/driver"
	"github.com/flowcheck/flowcheck/harness"
	"github.com/flowcheck/flowcheck/logging"
	"github.com/flowcheck/flowcheck/metrics"
	"github.com/flowcheck/flowcheck/registry"
	"github.com/flowcheck/flowcheck/types"
)

// TestRunner defines the interface for running E2E test cases
type TestRunner interface {
	RunAllTests(ctx context.Context) (*RunnerResult, error)
	RunTestCase(ctx context.Context, file registry.TestFile, tc types.TestCase) *types.TestResult
}

// Config holds configuration for creating a new runner
type Config struct {
	Registry *registry.Registry
	Driver   driver.Driver
	Coverage *coverage.Tracker
	Log      *log.Logger
	// Concurrency is the number of test cases evaluated in parallel. Values
	// below 1 run serially. Turns within a case are always sequential.
	Concurrency int
	// LogDir is where per-run artifact directories are created. Empty
	// disables artifact logging.
	LogDir string
	// Sinks receive every finished test case result in addition to the
	// transcript files.
	Sinks []logging.ResultSink
}

type runner struct {
	registry    *registry.Registry
	driver      driver.Driver
	coverage    *coverage.Tracker
	log         *log.Logger
	concurrency int
	logDir      string
	sinks       []logging.ResultSink
	manager     *resultManager
	tracer      trace.Tracer
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Driver == nil {
		return nil, fmt.Errorf("conversation driver is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stderr)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &runner{
		registry:    cfg.Registry,
		driver:      cfg.Driver,
		coverage:    cfg.Coverage,
		log:         cfg.Log,
		concurrency: cfg.Concurrency,
		logDir:      cfg.LogDir,
		sinks:       cfg.Sinks,
		manager:     newResultManager(),
		tracer:      otel.Tracer("flowcheck/runner"),
	}, nil
}

// RunAllTests evaluates every loaded test case. Test cases are independent
// and run in up to Concurrency parallel sessions; the turns of each case are
// processed strictly in order.
func (r *runner) RunAllTests(ctx context.Context) (*RunnerResult, error) {
	runID := uuid.New().String()
	startTime := time.Now()

	ctx, span := r.tracer.Start(ctx, "run all tests", trace.WithAttributes(
		attribute.String("run_id", runID),
	))
	defer span.End()

	result := r.manager.createEmptyResult(runID, startTime)

	var fileLogger *logging.FileLogger
	if r.logDir != "" {
		var err error
		fileLogger, err = logging.NewFileLogger(r.logDir, runID, r.sinks...)
		if err != nil {
			return nil, fmt.Errorf("creating run log directory: %w", err)
		}
		result.LogDir = fileLogger.LogDirForRun()
	}

	files := r.registry.Files()
	total := 0
	for _, f := range files {
		total += len(f.Cases)
	}
	r.log.Info("Running all test cases", "run_id", runID, "files", len(files), "cases", total, "concurrency", r.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, file := range files {
		for _, tc := range file.Cases {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				caseResult := r.RunTestCase(gctx, file, tc)
				r.manager.addCaseResult(result, caseResult)
				metrics.RecordEvaluation(runID, tc.ID, tc.File, caseResult.Status)
				if fileLogger != nil {
					if err := fileLogger.LogTestCase(caseResult); err != nil {
						r.log.Error("Failed to write test case log", "case", tc.ID, "error", err)
					}
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("test run aborted: %w", err)
	}

	r.manager.finalize(result, startTime)
	r.finishCoverage(result, runID)

	if fileLogger != nil {
		if err := fileLogger.Complete(); err != nil {
			r.log.Error("Failed to complete run artifacts", "run_id", runID, "error", err)
		}
	}
	r.log.Info("Test run completed",
		"run_id", runID,
		"status", result.Status,
		"passed", result.Stats.Passed,
		"failed", result.Stats.Failed,
		"errored", result.Stats.Errored)
	return result, nil
}

// RunTestCase replays one test case through a fresh conversation session.
// Driver failures yield an error-status result rather than aborting the run.
func (r *runner) RunTestCase(ctx context.Context, file registry.TestFile, tc types.TestCase) *types.TestResult {
	ctx, span := r.tracer.Start(ctx, tc.ID, trace.WithAttributes(
		attribute.String("test_case", tc.ID),
		attribute.String("file", tc.File),
	))
	defer span.End()

	start := time.Now()
	result := &types.TestResult{
		ID:     tc.ID,
		File:   tc.File,
		Status: types.TestStatusPass,
	}

	session, err := r.driver.StartSession(ctx, driver.SessionSpec{
		CaseID:   tc.ID,
		Fixtures: tc.Fixtures,
		Stubs:    file.Stubs,
	})
	if err != nil {
		r.log.Error("Failed to start session", "case", tc.ID, "error", err)
		result.Status = types.TestStatusError
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if err := session.Close(); err != nil {
			r.log.Warn("Failed to close session", "case", tc.ID, "error", err)
		}
	}()

	for i, turn := range tc.Turns {
		outcome, err := session.SendMessage(ctx, turn.User)
		if err != nil {
			r.log.Error("Turn dispatch failed", "case", tc.ID, "turn", i, "error", err)
			result.Status = types.TestStatusError
			result.Error = fmt.Errorf("turn %d: %w", i, err)
			break
		}

		r.recordCoverage(outcome)

		turnResult := r.evaluateTurn(i, turn, outcome, tc.OrderEnabled)
		result.Turns = append(result.Turns, turnResult)

		// Fail fast at the first failing turn; its assertion verdicts are
		// all already recorded above.
		if turnResult.Status == types.TestStatusFail {
			result.Status = types.TestStatusFail
			break
		}
	}

	result.Duration = time.Since(start)
	r.log.Debug("Test case finished", "case", tc.ID, "status", result.Status, "duration", result.Duration)
	return result
}

func (r *runner) evaluateTurn(index int, turn types.Turn, outcome *driver.TurnOutcome, orderEnabled bool) types.TurnResult {
	verdicts := harness.Evaluate(turn.Assertions, outcome.Events, orderEnabled)

	turnResult := types.TurnResult{
		Index:      index,
		User:       turn.User,
		Status:     types.TestStatusPass,
		Assertions: verdicts,
		Events:     outcome.Events,
	}
	for _, v := range verdicts {
		if !v.Passed() {
			turnResult.Status = types.TestStatusFail
			metrics.RecordAssertionFailure(v.Reason)
		}
	}
	return turnResult
}

func (r *runner) recordCoverage(outcome *driver.TurnOutcome) {
	if r.coverage == nil {
		return
	}
	for _, step := range outcome.ExercisedSteps {
		r.coverage.RecordExercised(step.FlowID, step.Lines)
	}
}

// coverageSink is implemented by result sinks that also want the run's
// coverage table, such as the JSON report sink.
type coverageSink interface {
	SetCoverage([]coverage.FlowCoverage)
}

// finishCoverage snapshots the coverage report into the result, publishes
// per-flow gauges, and hands the table to any interested sinks.
func (r *runner) finishCoverage(result *RunnerResult, runID string) {
	if r.coverage == nil {
		return
	}
	report := r.coverage.Report()
	result.Coverage = report
	for _, entry := range report {
		metrics.RecordCoverage(runID, entry.Flow, entry.Percentage)
	}
	for _, sink := range r.sinks {
		if cs, ok := sink.(coverageSink); ok {
			cs.SetCoverage(report)
		}
	}
}
