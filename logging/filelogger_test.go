package logging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcheck/flowcheck/types"
)

type recordingSink struct {
	consumed  []string
	completed bool
}

func (s *recordingSink) Consume(result *types.TestResult, runID string) error {
	s.consumed = append(s.consumed, result.ID)
	return nil
}

func (s *recordingSink) Complete(runID string) error {
	s.completed = true
	return nil
}

func passingResult(id string) *types.TestResult {
	return &types.TestResult{
		ID:       id,
		File:     "cases/transfer.yml",
		Status:   types.TestStatusPass,
		Duration: 120 * time.Millisecond,
		Turns: []types.TurnResult{{
			Index:  0,
			User:   "hi",
			Status: types.TestStatusPass,
			Events: []types.Event{{Kind: types.EventBotUttered, Position: 0, Text: "Hello!"}},
			Assertions: []types.AssertionResult{{
				Assertion:       types.Assertion{Kind: types.AssertBotUtteredResponseIs, ResponseName: "utter_greet"},
				Status:          types.TestStatusPass,
				MatchedPosition: 0,
			}},
		}},
	}
}

func TestFileLoggerWritesTranscripts(t *testing.T) {
	baseDir := t.TempDir()
	sink := &recordingSink{}
	logger, err := NewFileLogger(baseDir, "run-1", sink)
	require.NoError(t, err)

	require.NoError(t, logger.LogTestCase(passingResult("transfer happy path")))

	failing := passingResult("transfer sad path")
	failing.Status = types.TestStatusFail
	failing.Turns[0].Status = types.TestStatusFail
	failing.Turns[0].Assertions[0].Status = types.TestStatusFail
	failing.Turns[0].Assertions[0].Reason = types.FailureNoMatch
	failing.Turns[0].Assertions[0].Message = "no matching event in this turn"
	require.NoError(t, logger.LogTestCase(failing))

	errored := passingResult("driver broke")
	errored.Status = types.TestStatusError
	errored.Error = errors.New("connection refused")
	errored.Turns = nil
	require.NoError(t, logger.LogTestCase(errored))

	require.NoError(t, logger.Complete())

	runDir := filepath.Join(baseDir, "testrun-run-1")
	assert.Equal(t, runDir, logger.LogDirForRun())

	assert.FileExists(t, filepath.Join(runDir, "cases", "transfer_happy_path.log"))
	assert.FileExists(t, filepath.Join(runDir, "cases", "transfer_sad_path.log"))
	assert.FileExists(t, filepath.Join(runDir, "failed", "transfer_sad_path.log"))
	assert.FileExists(t, filepath.Join(runDir, "failed", "driver_broke.log"))
	assert.NoFileExists(t, filepath.Join(runDir, "failed", "transfer_happy_path.log"))

	transcript, err := os.ReadFile(filepath.Join(runDir, "failed", "transfer_sad_path.log"))
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "[FAIL]")
	assert.Contains(t, string(transcript), "no matching event in this turn")

	summary, err := os.ReadFile(filepath.Join(runDir, "summary.log"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "total: 3")
	assert.Contains(t, string(summary), "passed: 1")
	assert.Contains(t, string(summary), "failed: 2")

	assert.Equal(t, []string{"transfer happy path", "transfer sad path", "driver broke"}, sink.consumed)
	assert.True(t, sink.completed)
}
