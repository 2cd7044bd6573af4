package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowcheck/flowcheck/coverage"
	"github.com/flowcheck/flowcheck/types"
)

// FileResult captures aggregated results for one test file
type FileResult struct {
	Path     string
	Cases    map[string]*types.TestResult
	Status   types.TestStatus
	Duration time.Duration
	Stats    ResultStats
}

// RunnerResult captures the complete test run results
type RunnerResult struct {
	Files    map[string]*FileResult
	Status   types.TestStatus
	Duration time.Duration
	// WallClockTime is the elapsed time of the run; with parallel test
	// cases it is smaller than the sum of case durations in Duration.
	WallClockTime time.Duration
	Stats         ResultStats
	RunID         string
	// LogDir is the run's artifact directory, empty when artifact logging
	// is disabled.
	LogDir string
	// Coverage is the flow step coverage report for the run, one row per
	// loaded flow. Nil when no flow definitions were loaded.
	Coverage []coverage.FlowCoverage
}

// ResultStats tracks test case statistics at each level
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Errored   int
	StartTime time.Time
	EndTime   time.Time
}

// String returns the one-line run summary printed under the results table.
func (r *RunnerResult) String() string {
	return fmt.Sprintf("Test run %s: %d/%d test cases passed (%d failed, %d errored) in %.1fs [%s]",
		r.RunID, r.Stats.Passed, r.Stats.Total, r.Stats.Failed, r.Stats.Errored,
		r.WallClockTime.Seconds(), r.Status)
}

// resultManager assembles the file/case result hierarchy. Parallel test
// cases report through it concurrently, so all mutation is serialized here.
type resultManager struct {
	mu sync.Mutex
}

func newResultManager() *resultManager {
	return &resultManager{}
}

func (m *resultManager) createEmptyResult(runID string, startTime time.Time) *RunnerResult {
	return &RunnerResult{
		Files:  make(map[string]*FileResult),
		Stats:  ResultStats{StartTime: startTime},
		RunID:  runID,
		Status: types.TestStatusPass,
	}
}

// addCaseResult places one finished test case into the hierarchy and updates
// the stats at both levels.
func (m *resultManager) addCaseResult(result *RunnerResult, caseResult *types.TestResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file := m.ensureFileExists(result, caseResult.File)
	file.Cases[caseResult.ID] = caseResult

	updateStats(&file.Stats, caseResult)
	updateStats(&result.Stats, caseResult)
	file.Duration += caseResult.Duration
	result.Duration += caseResult.Duration
}

func (m *resultManager) ensureFileExists(result *RunnerResult, path string) *FileResult {
	file, exists := result.Files[path]
	if !exists {
		file = &FileResult{
			Path:  path,
			Cases: make(map[string]*types.TestResult),
			Stats: ResultStats{StartTime: time.Now()},
		}
		result.Files[path] = file
	}
	return file
}

// finalize applies final status determination and timing to all results.
func (m *resultManager) finalize(result *RunnerResult, startTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	endTime := time.Now()
	for _, file := range result.Files {
		file.Status = determineStatus(file.Stats)
		file.Stats.EndTime = endTime
	}
	result.Status = determineStatus(result.Stats)
	result.Stats.EndTime = endTime
	result.WallClockTime = endTime.Sub(startTime)
}

func updateStats(stats *ResultStats, caseResult *types.TestResult) {
	stats.Total++
	switch caseResult.Status {
	case types.TestStatusPass:
		stats.Passed++
	case types.TestStatusError:
		stats.Errored++
	default:
		stats.Failed++
	}
}

func determineStatus(stats ResultStats) types.TestStatus {
	switch {
	case stats.Errored > 0:
		return types.TestStatusError
	case stats.Failed > 0:
		return types.TestStatusFail
	case stats.Passed == 0:
		return types.TestStatusSkip
	default:
		return types.TestStatusPass
	}
}
