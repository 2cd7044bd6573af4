// Package logging writes per-run test artifacts: one transcript per test
// case, a copy for failures, and a run summary.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/flowcheck/flowcheck/types"
)

const (
	// RunDirectoryPrefix is the standardized prefix for run directories.
	RunDirectoryPrefix = "testrun-"

	CasesDirName    = "cases"
	FailedDirName   = "failed"
	SummaryFilename = "summary.log"
)

// ResultSink is an interface for different ways of consuming test results
type ResultSink interface {
	// Consume processes a single test case result
	Consume(result *types.TestResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// FileLogger handles writing test case artifacts to files
type FileLogger struct {
	logDir    string // testrun-<runID> directory
	casesDir  string
	failedDir string
	runID     string

	mu     sync.Mutex
	sinks  []ResultSink
	total  int
	passed int
	failed int
}

// NewFileLogger creates the run directory under baseDir and returns a logger
// writing into it.
func NewFileLogger(baseDir, runID string, sinks ...ResultSink) (*FileLogger, error) {
	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	casesDir := filepath.Join(logDir, CasesDirName)
	failedDir := filepath.Join(logDir, FailedDirName)

	for _, dir := range []string{logDir, casesDir, failedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
		}
	}

	return &FileLogger{
		logDir:    logDir,
		casesDir:  casesDir,
		failedDir: failedDir,
		runID:     runID,
		sinks:     sinks,
	}, nil
}

// LogDirForRun returns the run's artifact directory.
func (l *FileLogger) LogDirForRun() string {
	return l.logDir
}

// LogTestCase writes the transcript for one finished test case and feeds the
// result to all sinks. Failing and errored cases are duplicated under
// failed/ so they are easy to find.
func (l *FileLogger) LogTestCase(result *types.TestResult) error {
	transcript := renderTranscript(result)
	name := sanitizeFilename(result.ID) + ".log"

	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	switch result.Status {
	case types.TestStatusPass:
		l.passed++
	default:
		l.failed++
	}

	if err := os.WriteFile(filepath.Join(l.casesDir, name), []byte(transcript), 0o644); err != nil {
		return fmt.Errorf("writing transcript for %q: %w", result.ID, err)
	}
	if result.Status != types.TestStatusPass {
		if err := os.WriteFile(filepath.Join(l.failedDir, name), []byte(transcript), 0o644); err != nil {
			return fmt.Errorf("writing failed transcript for %q: %w", result.ID, err)
		}
	}

	for _, sink := range l.sinks {
		if err := sink.Consume(result, l.runID); err != nil {
			return fmt.Errorf("result sink: %w", err)
		}
	}
	return nil
}

// Complete writes the run summary and completes all sinks.
func (l *FileLogger) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := fmt.Sprintf("run: %s\ntotal: %d\npassed: %d\nfailed: %d\n",
		l.runID, l.total, l.passed, l.failed)
	if err := os.WriteFile(filepath.Join(l.logDir, SummaryFilename), []byte(summary), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	for _, sink := range l.sinks {
		if err := sink.Complete(l.runID); err != nil {
			return fmt.Errorf("completing result sink: %w", err)
		}
	}
	return nil
}

func renderTranscript(result *types.TestResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "test case: %s\n", result.ID)
	fmt.Fprintf(&b, "file:      %s\n", result.File)
	fmt.Fprintf(&b, "status:    %s\n", result.Status)
	fmt.Fprintf(&b, "duration:  %.2fs\n", result.Duration.Seconds())
	if result.Error != nil {
		fmt.Fprintf(&b, "error:     %v\n", result.Error)
	}

	for _, turn := range result.Turns {
		fmt.Fprintf(&b, "\n--- turn %d ---\n", turn.Index)
		fmt.Fprintf(&b, "user: %s\n", turn.User)
		for _, ev := range turn.Events {
			fmt.Fprintf(&b, "  event %d: %s\n", ev.Position, describeEvent(ev))
		}
		for _, ar := range turn.Assertions {
			mark := "PASS"
			if !ar.Passed() {
				mark = "FAIL"
			}
			fmt.Fprintf(&b, "  [%s] %s", mark, ar.Assertion.Describe())
			if ar.Message != "" {
				fmt.Fprintf(&b, ": %s", ar.Message)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func describeEvent(ev types.Event) string {
	switch ev.Kind {
	case types.EventSlotSet:
		return fmt.Sprintf("%s %s=%v", ev.Kind, ev.SlotName, ev.SlotValue)
	case types.EventBotUttered:
		if ev.ResponseName != "" {
			return fmt.Sprintf("%s %q (%s)", ev.Kind, ev.Text, ev.ResponseName)
		}
		return fmt.Sprintf("%s %q", ev.Kind, ev.Text)
	case types.EventPatternTriggered:
		return fmt.Sprintf("%s %s %v", ev.Kind, ev.Pattern, ev.CandidateFlows)
	default:
		return fmt.Sprintf("%s %s", ev.Kind, ev.FlowID)
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}
