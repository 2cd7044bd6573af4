// Package reporting produces machine-readable run reports for downstream
// report generators.
package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/flowcheck/flowcheck/coverage"
	"github.com/flowcheck/flowcheck/types"
)

// JSONSink collects test case results and writes a single JSON report when
// the run completes. It satisfies logging.ResultSink.
type JSONSink struct {
	path string

	mu       sync.Mutex
	results  []caseRecord
	coverage []coverageRecord
}

// NewJSONSink creates a sink writing its report to path.
func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path}
}

type report struct {
	RunID     string           `json:"run_id"`
	CreatedAt time.Time        `json:"created_at"`
	Stats     statsRecord      `json:"stats"`
	Results   []caseRecord     `json:"results"`
	Coverage  []coverageRecord `json:"coverage,omitempty"`
}

type statsRecord struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

type caseRecord struct {
	ID         string           `json:"id"`
	File       string           `json:"file"`
	Status     types.TestStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	DurationMS int64            `json:"duration_ms"`
	Turns      []turnRecord     `json:"turns,omitempty"`
}

type turnRecord struct {
	Index      int               `json:"index"`
	User       string            `json:"user"`
	Status     types.TestStatus  `json:"status"`
	Assertions []assertionRecord `json:"assertions,omitempty"`
}

type assertionRecord struct {
	Description     string              `json:"description"`
	Status          types.TestStatus    `json:"status"`
	Reason          types.FailureReason `json:"reason,omitempty"`
	Message         string              `json:"message,omitempty"`
	MatchedPosition int                 `json:"matched_position"`
}

type coverageRecord struct {
	Flow          string   `json:"flow"`
	Percentage    float64  `json:"percentage"`
	TotalSteps    int      `json:"total_steps"`
	MissingSteps  int      `json:"missing_steps"`
	MissingRanges []string `json:"missing_ranges,omitempty"`
}

// Consume records one finished test case.
func (s *JSONSink) Consume(result *types.TestResult, runID string) error {
	record := caseRecord{
		ID:         result.ID,
		File:       result.File,
		Status:     result.Status,
		DurationMS: result.Duration.Milliseconds(),
	}
	if result.Error != nil {
		record.Error = result.Error.Error()
	}
	for _, turn := range result.Turns {
		tr := turnRecord{Index: turn.Index, User: turn.User, Status: turn.Status}
		for _, ar := range turn.Assertions {
			tr.Assertions = append(tr.Assertions, assertionRecord{
				Description:     ar.Assertion.Describe(),
				Status:          ar.Status,
				Reason:          ar.Reason,
				Message:         ar.Message,
				MatchedPosition: ar.MatchedPosition,
			})
		}
		record.Turns = append(record.Turns, tr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, record)
	return nil
}

// SetCoverage attaches the run's coverage table to the report.
func (s *JSONSink) SetCoverage(entries []coverage.FlowCoverage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coverage = s.coverage[:0]
	for _, entry := range entries {
		record := coverageRecord{
			Flow:         entry.Flow,
			Percentage:   entry.Percentage,
			TotalSteps:   entry.TotalSteps,
			MissingSteps: entry.MissingSteps,
		}
		for _, lr := range entry.MissingRanges {
			record.MissingRanges = append(record.MissingRanges, lr.String())
		}
		s.coverage = append(s.coverage, record)
	}
}

// Complete writes the aggregated report.
func (s *JSONSink) Complete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := report{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Results:   s.results,
		Coverage:  s.coverage,
	}
	for _, r := range s.results {
		doc.Stats.Total++
		if r.Status == types.TestStatusPass {
			doc.Stats.Passed++
		} else {
			doc.Stats.Failed++
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing report to %s: %w", s.path, err)
	}
	return nil
}
