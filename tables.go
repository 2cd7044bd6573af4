package flowcheck

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/flowcheck/flowcheck/coverage"
	"github.com/flowcheck/flowcheck/runner"
	"github.com/flowcheck/flowcheck/types"
)

// printResultsTable prints the results of the E2E test run to the console.
func (a *App) printResultsTable(result *runner.RunnerResult) {
	a.config.Log.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("E2E Test Results (%s)", formatDuration(result.WallClockTime)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Failed", "Errored", "Status", "Failure",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Errored", Align: text.AlignRight},
		{Name: "Failure", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, filePath := range sortedKeys(result.Files) {
		file := result.Files[filePath]

		// File row shows aggregate counts but is not itself a test
		t.AppendRow(table.Row{
			"File",
			file.Path,
			formatDuration(file.Duration),
			"-",
			file.Stats.Passed,
			file.Stats.Failed,
			file.Stats.Errored,
			getResultString(file.Status),
			"",
		})

		caseIDs := sortedKeys(file.Cases)
		for i, caseID := range caseIDs {
			tc := file.Cases[caseID]
			prefix := "├──"
			if i == len(caseIDs)-1 {
				prefix = "└──"
			}

			t.AppendRow(table.Row{
				"Case",
				fmt.Sprintf("%s %s", prefix, tc.ID),
				formatDuration(tc.Duration),
				"1",
				boolToInt(tc.Status == types.TestStatusPass),
				boolToInt(tc.Status == types.TestStatusFail),
				boolToInt(tc.Status == types.TestStatusError),
				getResultString(tc.Status),
				firstFailureMessage(tc),
			})
		}
		t.AppendSeparator()
	}

	switch result.Status {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.WallClockTime),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Errored,
		getResultString(result.Status),
		"",
	})

	t.Render()
}

// printCoverageTable prints per-flow step coverage with a synthetic Total row.
func (a *App) printCoverageTable(report []coverage.FlowCoverage) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Flow Step Coverage")

	t.AppendHeader(table.Row{"Flow", "Coverage", "Steps", "Missing", "Missing Lines"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Coverage", Align: text.AlignRight},
		{Name: "Steps", Align: text.AlignRight},
		{Name: "Missing", Align: text.AlignRight},
		{Name: "Missing Lines", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, entry := range report {
		t.AppendRow(table.Row{
			entry.Flow,
			fmt.Sprintf("%.2f%%", entry.Percentage),
			entry.TotalSteps,
			entry.MissingSteps,
			formatLineRanges(entry.MissingRanges),
		})
	}

	total := coverage.Total(report)
	t.AppendFooter(table.Row{
		total.Flow,
		fmt.Sprintf("%.2f%%", total.Percentage),
		total.TotalSteps,
		total.MissingSteps,
		"",
	})

	t.SetStyle(table.StyleLight)
	t.Render()
}

// firstFailureMessage extracts the most pertinent failure for display: the
// case's driver error if it errored, otherwise the first failing assertion.
func firstFailureMessage(tc *types.TestResult) string {
	if tc.Error != nil {
		return tc.Error.Error()
	}
	for _, turn := range tc.Turns {
		for _, ar := range turn.Assertions {
			if !ar.Passed() {
				msg := ar.Assertion.Describe()
				if ar.Message != "" {
					msg = fmt.Sprintf("%s: %s", msg, ar.Message)
				}
				return fmt.Sprintf("turn %d: %s", turn.Index, msg)
			}
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
