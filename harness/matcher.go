// Package harness evaluates a turn's declared assertions against the event
// stream the assistant produced for that turn.
//
// Matching is once-only: every event occurrence can satisfy at most one
// assertion per turn. Consumption is tracked in a set of sequence positions
// held by the evaluation pass itself; the event slice is never mutated, so
// the stream remains available for diagnostics afterwards.
package harness

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/flowcheck/flowcheck/types"
)

// Evaluate checks each assertion, in declaration order, against the turn's
// event stream and returns one verdict per assertion. The stream must be in
// sequence-position order, which is how drivers deliver it.
//
// When orderEnabled is true a cursor tracks the highest consumed position;
// candidates below the cursor are never eligible and produce an
// order-violation failure instead of silently matching an earlier,
// already-superseded event. The comparison is >=, not >, so two assertions
// may reference distinct events at the same position.
func Evaluate(assertions []types.Assertion, events []types.Event, orderEnabled bool) []types.AssertionResult {
	// Consumption is keyed by occurrence (index into the stream), not by
	// sequence position: two distinct occurrences may share a position when
	// they describe different payload fields of the same logical step.
	consumed := make([]bool, len(events))
	cursor := -1 // highest consumed sequence position so far

	results := make([]types.AssertionResult, 0, len(assertions))
	for _, a := range assertions {
		results = append(results, evalOne(a, events, consumed, &cursor, orderEnabled))
	}
	return results
}

func evalOne(a types.Assertion, events []types.Event, consumed []bool, cursor *int, orderEnabled bool) types.AssertionResult {
	if a.Kind == types.AssertSlotWasNotSet {
		return evalAbsence(a, events, consumed)
	}

	var (
		sawConsumed bool
		earlyPos    = -1
	)
	for i, ev := range events {
		if !satisfies(a, ev) {
			continue
		}
		if consumed[i] {
			sawConsumed = true
			continue
		}
		if orderEnabled && ev.Position < *cursor {
			earlyPos = ev.Position
			continue
		}
		// Lowest eligible unseen occurrence. Consume exactly this one.
		consumed[i] = true
		if ev.Position > *cursor {
			*cursor = ev.Position
		}
		return types.AssertionResult{
			Assertion:       a,
			Status:          types.TestStatusPass,
			MatchedPosition: ev.Position,
		}
	}

	res := types.AssertionResult{
		Assertion:       a,
		Status:          types.TestStatusFail,
		MatchedPosition: -1,
	}
	switch {
	case earlyPos >= 0:
		res.Reason = types.FailureOrderViolation
		res.Message = fmt.Sprintf("%s: matching event at position %d occurs before an already matched event (cursor %d)",
			a.Describe(), earlyPos, *cursor)
	case sawConsumed:
		res.Reason = types.FailureAlreadyConsumed
		res.Message = fmt.Sprintf("%s: the only matching events were already consumed by earlier assertions", a.Describe())
	default:
		res.Reason = types.FailureNoMatch
		res.Message = fmt.Sprintf("%s: no matching event in this turn", a.Describe())
	}
	return res
}

// evalAbsence handles slot_was_not_set, which matches by absence over the
// unseen remainder of the stream and never consumes an event. The order
// cursor does not apply: absence is a property of the whole turn.
func evalAbsence(a types.Assertion, events []types.Event, consumed []bool) types.AssertionResult {
	for i, ev := range events {
		if ev.Kind != types.EventSlotSet || ev.SlotName != a.SlotName || consumed[i] {
			continue
		}
		return types.AssertionResult{
			Assertion:       a,
			Status:          types.TestStatusFail,
			Reason:          types.FailureUnexpectedSlotSet,
			Message:         fmt.Sprintf("slot %q was unexpectedly set to %v at position %d", a.SlotName, ev.SlotValue, ev.Position),
			MatchedPosition: -1,
		}
	}
	return types.AssertionResult{
		Assertion:       a,
		Status:          types.TestStatusPass,
		MatchedPosition: -1,
	}
}

// satisfies reports whether a single event occurrence meets the assertion's
// predicate, ignoring consumption and ordering state.
func satisfies(a types.Assertion, ev types.Event) bool {
	switch a.Kind {
	case types.AssertFlowStarted:
		return ev.Kind == types.EventFlowStarted && ev.FlowID == a.FlowID
	case types.AssertFlowCompleted:
		return ev.Kind == types.EventFlowCompleted && ev.FlowID == a.FlowID
	case types.AssertFlowCancelled:
		return ev.Kind == types.EventFlowCancelled && ev.FlowID == a.FlowID
	case types.AssertSlotWasSet:
		if ev.Kind != types.EventSlotSet || ev.SlotName != a.SlotName {
			return false
		}
		if !a.HasSlotValue {
			return true
		}
		return slotValueEqual(a.SlotValue, ev.SlotValue)
	case types.AssertBotUtteredTextMatches:
		return ev.Kind == types.EventBotUttered && a.TextPattern != nil && a.TextPattern.MatchString(ev.Text)
	case types.AssertBotUtteredResponseIs:
		return ev.Kind == types.EventBotUttered && ev.ResponseName == a.ResponseName
	case types.AssertButtonsRendered:
		if ev.Kind != types.EventBotUttered || len(ev.Buttons) == 0 {
			return false
		}
		if a.ButtonsSubset {
			return buttonsSubset(a.Buttons, ev.Buttons)
		}
		return slices.Equal(a.Buttons, ev.Buttons)
	case types.AssertPatternClarificationTriggered:
		if ev.Kind != types.EventPatternTriggered || ev.Pattern != types.PatternClarification {
			return false
		}
		for _, flow := range a.CandidateFlows {
			if !slices.Contains(ev.CandidateFlows, flow) {
				return false
			}
		}
		return true
	}
	return false
}

func buttonsSubset(expected, actual []types.Button) bool {
	for _, b := range expected {
		if !slices.Contains(actual, b) {
			return false
		}
	}
	return true
}

// slotValueEqual compares an expected slot value against an observed one.
// Numbers are normalized first: YAML decodes integers as int while drivers
// deliver JSON numbers as float64, and the two must compare equal.
func slotValueEqual(expected, observed any) bool {
	return reflect.DeepEqual(normalize(expected), normalize(observed))
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}
