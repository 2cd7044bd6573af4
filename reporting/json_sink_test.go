package reporting

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcheck/flowcheck/coverage"
	"github.com/flowcheck/flowcheck/types"
)

func TestJSONSink_WritesReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	sink := NewJSONSink(path)

	pass := &types.TestResult{
		ID:       "greet_happy_path",
		File:     "greeting.yaml",
		Status:   types.TestStatusPass,
		Duration: 1200 * time.Millisecond,
		Turns: []types.TurnResult{
			{
				Index:  0,
				User:   "hi",
				Status: types.TestStatusPass,
				Assertions: []types.AssertionResult{
					{
						Assertion:       types.Assertion{Kind: types.AssertFlowStarted, FlowID: "greeting"},
						Status:          types.TestStatusPass,
						MatchedPosition: 0,
					},
				},
			},
		},
	}
	fail := &types.TestResult{
		ID:     "transfer_money",
		File:   "transfer.yaml",
		Status: types.TestStatusError,
		Error:  errors.New("session refused"),
	}

	require.NoError(t, sink.Consume(pass, "run-1"))
	require.NoError(t, sink.Consume(fail, "run-1"))
	sink.SetCoverage([]coverage.FlowCoverage{
		{
			Flow:          "greeting",
			Percentage:    50.0,
			TotalSteps:    2,
			MissingSteps:  1,
			MissingRanges: []coverage.LineRange{{Start: 5, End: 7}},
		},
	})
	require.NoError(t, sink.Complete("run-1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "run-1", doc["run_id"])

	stats := doc["stats"].(map[string]any)
	assert.Equal(t, float64(2), stats["total"])
	assert.Equal(t, float64(1), stats["passed"])
	assert.Equal(t, float64(1), stats["failed"])

	results := doc["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "greet_happy_path", first["id"])
	assert.Equal(t, float64(1200), first["duration_ms"])
	turns := first["turns"].([]any)
	require.Len(t, turns, 1)
	second := results[1].(map[string]any)
	assert.Equal(t, "session refused", second["error"])

	cov := doc["coverage"].([]any)
	require.Len(t, cov, 1)
	row := cov[0].(map[string]any)
	assert.Equal(t, "greeting", row["flow"])
	assert.Equal(t, []any{"5-7"}, row["missing_ranges"])
}

func TestJSONSink_EmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	sink := NewJSONSink(path)
	require.NoError(t, sink.Complete("run-2"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	stats := doc["stats"].(map[string]any)
	assert.Equal(t, float64(0), stats["total"])
	assert.Nil(t, doc["coverage"])
}
