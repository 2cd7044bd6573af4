package coverage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlows() []Flow {
	return []Flow{
		{ID: "check_balance", Steps: []LineRange{{Start: 2, End: 4}, {Start: 5, End: 5}}},
		{ID: "transfer_money", Steps: []LineRange{{Start: 3, End: 6}, {Start: 7, End: 9}, {Start: 10, End: 12}, {Start: 13, End: 13}}},
	}
}

func TestReport(t *testing.T) {
	tr := NewTracker(testFlows())
	tr.RecordExercised("transfer_money", LineRange{Start: 3, End: 6})
	tr.RecordExercised("transfer_money", LineRange{Start: 13, End: 13})
	tr.RecordExercised("check_balance", LineRange{Start: 2, End: 4})

	report := tr.Report()
	require.Len(t, report, 2)

	balance := report[0]
	assert.Equal(t, "check_balance", balance.Flow)
	assert.InDelta(t, 50.0, balance.Percentage, 0.001)
	assert.Equal(t, 2, balance.TotalSteps)
	assert.Equal(t, 1, balance.MissingSteps)
	assert.Equal(t, []LineRange{{Start: 5, End: 5}}, balance.MissingRanges)

	transfer := report[1]
	assert.Equal(t, "transfer_money", transfer.Flow)
	assert.InDelta(t, 50.0, transfer.Percentage, 0.001)
	assert.Equal(t, []LineRange{{Start: 7, End: 9}, {Start: 10, End: 12}}, transfer.MissingRanges)
}

func TestRecordExercisedIsIdempotent(t *testing.T) {
	tr := NewTracker(testFlows())
	tr.RecordExercised("check_balance", LineRange{Start: 2, End: 4})

	once := tr.Report()

	tr.RecordExercised("check_balance", LineRange{Start: 2, End: 4})
	twice := tr.Report()

	assert.Equal(t, once, twice)
}

func TestZeroDeclaredSteps(t *testing.T) {
	tr := NewTracker([]Flow{{ID: "empty_flow"}})

	report := tr.Report()
	require.Len(t, report, 1)
	assert.Equal(t, 0.0, report[0].Percentage)
	assert.Empty(t, report[0].MissingRanges)

	total := Total(report)
	assert.Equal(t, 0.0, total.Percentage)
}

func TestUnknownFlowIgnored(t *testing.T) {
	tr := NewTracker(testFlows())
	tr.RecordExercised("no_such_flow", LineRange{Start: 1, End: 2})

	report := tr.Report()
	require.Len(t, report, 2)
	for _, entry := range report {
		assert.Equal(t, entry.TotalSteps, entry.MissingSteps)
	}
}

func TestTotalRow(t *testing.T) {
	tr := NewTracker(testFlows())
	tr.RecordExercised("check_balance", LineRange{Start: 2, End: 4})
	tr.RecordExercised("check_balance", LineRange{Start: 5, End: 5})
	tr.RecordExercised("transfer_money", LineRange{Start: 3, End: 6})

	total := Total(tr.Report())
	assert.Equal(t, "Total", total.Flow)
	assert.Equal(t, 6, total.TotalSteps)
	assert.Equal(t, 3, total.MissingSteps)
	assert.InDelta(t, 50.0, total.Percentage, 0.001)
}

func TestConcurrentRecording(t *testing.T) {
	tr := NewTracker(testFlows())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordExercised("transfer_money", LineRange{Start: 3, End: 6})
			tr.RecordExercised("check_balance", LineRange{Start: 2, End: 4})
		}()
	}
	wg.Wait()

	total := Total(tr.Report())
	assert.Equal(t, 4, total.MissingSteps)
}

func TestParseLineRange(t *testing.T) {
	tests := []struct {
		input   string
		want    LineRange
		wantErr bool
	}{
		{input: "4-7", want: LineRange{Start: 4, End: 7}},
		{input: "4", want: LineRange{Start: 4, End: 4}},
		{input: " 10 - 12 ", want: LineRange{Start: 10, End: 12}},
		{input: "7-4", wantErr: true},
		{input: "", wantErr: true},
		{input: "a-b", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLineRange(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLineRangeString(t *testing.T) {
	assert.Equal(t, "4-7", LineRange{Start: 4, End: 7}.String())
	assert.Equal(t, "4", LineRange{Start: 4, End: 4}.String())
}
