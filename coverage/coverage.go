// Package coverage accumulates which flow steps a test run exercised and
// reports per-flow step coverage.
package coverage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// LineRange is the source span of one declared flow step. A single-line step
// has Start == End.
type LineRange struct {
	Start int
	End   int
}

func (lr LineRange) String() string {
	if lr.Start == lr.End {
		return strconv.Itoa(lr.Start)
	}
	return fmt.Sprintf("%d-%d", lr.Start, lr.End)
}

// ParseLineRange parses "4-7" or "4" into a LineRange.
func ParseLineRange(s string) (LineRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LineRange{}, fmt.Errorf("empty line range")
	}
	start, end, found := strings.Cut(s, "-")
	startLine, err := strconv.Atoi(strings.TrimSpace(start))
	if err != nil {
		return LineRange{}, fmt.Errorf("invalid line range %q: %w", s, err)
	}
	if !found {
		return LineRange{Start: startLine, End: startLine}, nil
	}
	endLine, err := strconv.Atoi(strings.TrimSpace(end))
	if err != nil {
		return LineRange{}, fmt.Errorf("invalid line range %q: %w", s, err)
	}
	if endLine < startLine {
		return LineRange{}, fmt.Errorf("invalid line range %q: end before start", s)
	}
	return LineRange{Start: startLine, End: endLine}, nil
}

// Flow describes one flow's declared steps for coverage accounting. Step
// identity is the flow id plus the step's line range.
type Flow struct {
	ID    string
	Steps []LineRange
}

// FlowCoverage is one row of the coverage report.
type FlowCoverage struct {
	Flow          string
	Percentage    float64
	TotalSteps    int
	MissingSteps  int
	MissingRanges []LineRange
}

type stepKey struct {
	flowID string
	lines  LineRange
}

// Tracker accumulates the set of exercised flow steps across a run. Safe for
// concurrent use from parallel test cases: recording is an idempotent set
// insert, so no cross-case ordering is needed, only atomicity per insert.
type Tracker struct {
	mu        sync.Mutex
	flows     map[string]Flow
	exercised map[stepKey]bool
}

// NewTracker creates a tracker over the given flow definitions.
func NewTracker(flows []Flow) *Tracker {
	t := &Tracker{
		flows:     make(map[string]Flow, len(flows)),
		exercised: make(map[stepKey]bool),
	}
	for _, f := range flows {
		t.flows[f.ID] = f
	}
	return t
}

// RecordExercised marks one flow step as exercised. Recording the same step
// twice is a no-op. Steps for flows outside the loaded definitions are
// ignored; they cannot contribute to any flow's totals.
func (t *Tracker) RecordExercised(flowID string, step LineRange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, known := t.flows[flowID]; !known {
		return
	}
	t.exercised[stepKey{flowID: flowID, lines: step}] = true
}

// Report returns one coverage entry per flow, ordered by flow id. A flow
// with zero declared steps reports 0.00% rather than dividing by zero.
func (t *Tracker) Report() []FlowCoverage {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.flows))
	for id := range t.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := make([]FlowCoverage, 0, len(ids))
	for _, id := range ids {
		flow := t.flows[id]
		entry := FlowCoverage{Flow: id, TotalSteps: len(flow.Steps)}
		for _, step := range flow.Steps {
			if !t.exercised[stepKey{flowID: id, lines: step}] {
				entry.MissingRanges = append(entry.MissingRanges, step)
			}
		}
		sort.Slice(entry.MissingRanges, func(i, j int) bool {
			return entry.MissingRanges[i].Start < entry.MissingRanges[j].Start
		})
		entry.MissingSteps = len(entry.MissingRanges)
		entry.Percentage = percentage(entry.TotalSteps-entry.MissingSteps, entry.TotalSteps)
		report = append(report, entry)
	}
	return report
}

// Total aggregates exercised and total step counts across all flows into the
// synthetic Total row, using the same percentage formula.
func Total(report []FlowCoverage) FlowCoverage {
	total := FlowCoverage{Flow: "Total"}
	for _, entry := range report {
		total.TotalSteps += entry.TotalSteps
		total.MissingSteps += entry.MissingSteps
	}
	total.Percentage = percentage(total.TotalSteps-total.MissingSteps, total.TotalSteps)
	return total
}

func percentage(exercised, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(exercised) / float64(total) * 100.0
}
