package harness

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcheck/flowcheck/types"
)

func slotSet(pos int, name string, value any) types.Event {
	return types.Event{Kind: types.EventSlotSet, Position: pos, SlotName: name, SlotValue: value}
}

func botUttered(pos int, text string) types.Event {
	return types.Event{Kind: types.EventBotUttered, Position: pos, Text: text}
}

func assertSlotWasSet(name string, value any) types.Assertion {
	return types.Assertion{Kind: types.AssertSlotWasSet, SlotName: name, SlotValue: value, HasSlotValue: true}
}

func assertTextMatches(t *testing.T, pattern string) types.Assertion {
	t.Helper()
	re, err := regexp.Compile(pattern)
	require.NoError(t, err)
	return types.Assertion{Kind: types.AssertBotUtteredTextMatches, TextPattern: re}
}

func TestEvaluate_RepeatedSlotAssertionsConsumeDistinctOccurrences(t *testing.T) {
	// Two assertions on the same slot must each consume a different
	// occurrence, pairing with the events in production order.
	events := []types.Event{
		slotSet(0, "x", "a"),
		slotSet(1, "x", "b"),
	}
	assertions := []types.Assertion{
		assertSlotWasSet("x", "a"),
		assertSlotWasSet("x", "b"),
	}

	results := Evaluate(assertions, events, true)
	require.Len(t, results, 2)

	assert.True(t, results[0].Passed())
	assert.Equal(t, 0, results[0].MatchedPosition)
	assert.True(t, results[1].Passed())
	assert.Equal(t, 1, results[1].MatchedPosition)
}

func TestEvaluate_ManySlotSetsStrictlyIncreasingPositions(t *testing.T) {
	const n = 5
	var events []types.Event
	var assertions []types.Assertion
	for i := 0; i < n; i++ {
		events = append(events, slotSet(i, "x", i))
		assertions = append(assertions, assertSlotWasSet("x", i))
	}

	results := Evaluate(assertions, events, true)
	require.Len(t, results, n)

	prev := -1
	for i, res := range results {
		require.True(t, res.Passed(), "assertion %d should pass", i)
		assert.Greater(t, res.MatchedPosition, prev, "positions must strictly increase")
		prev = res.MatchedPosition
	}
}

func TestEvaluate_OrderViolation(t *testing.T) {
	events := []types.Event{
		botUttered(0, "hi"),
		slotSet(1, "x", "a"),
	}
	assertions := []types.Assertion{
		assertSlotWasSet("x", "a"),
		assertTextMatches(t, "hi"),
	}

	results := Evaluate(assertions, events, true)
	require.Len(t, results, 2)

	assert.True(t, results[0].Passed())
	assert.Equal(t, 1, results[0].MatchedPosition)

	assert.False(t, results[1].Passed())
	assert.Equal(t, types.FailureOrderViolation, results[1].Reason)
	assert.Equal(t, -1, results[1].MatchedPosition)
}

func TestEvaluate_UnorderedModeNeverProducesOrderViolation(t *testing.T) {
	events := []types.Event{
		botUttered(0, "hi"),
		slotSet(1, "x", "a"),
	}
	assertions := []types.Assertion{
		assertSlotWasSet("x", "a"),
		assertTextMatches(t, "hi"),
	}

	results := Evaluate(assertions, events, false)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Passed())
		assert.NotEqual(t, types.FailureOrderViolation, res.Reason)
	}
}

func TestEvaluate_SameCursorPositionStaysEligible(t *testing.T) {
	// The cursor comparison is >=, so a second assertion may match an event
	// at the same position as the previous match only if it is a distinct
	// occurrence; here positions differ but the first match sets the cursor
	// to its own position without excluding it.
	events := []types.Event{
		{Kind: types.EventFlowStarted, Position: 0, FlowID: "transfer"},
		slotSet(0, "x", "a"), // co-occurring position, distinct occurrence
	}
	assertions := []types.Assertion{
		{Kind: types.AssertFlowStarted, FlowID: "transfer"},
		assertSlotWasSet("x", "a"),
	}

	results := Evaluate(assertions, events, true)
	require.Len(t, results, 2)
	assert.True(t, results[0].Passed())
	assert.True(t, results[1].Passed())
}

func TestEvaluate_AlreadyConsumedIsDistinctFromNoMatch(t *testing.T) {
	events := []types.Event{
		slotSet(0, "x", "a"),
	}
	assertions := []types.Assertion{
		assertSlotWasSet("x", "a"),
		assertSlotWasSet("x", "a"),
		assertSlotWasSet("y", "b"),
	}

	results := Evaluate(assertions, events, false)
	require.Len(t, results, 3)

	assert.True(t, results[0].Passed())
	assert.Equal(t, types.FailureAlreadyConsumed, results[1].Reason)
	assert.Equal(t, types.FailureNoMatch, results[2].Reason)
}

func TestEvaluate_SlotWasNotSet(t *testing.T) {
	t.Run("passes when no event for the slot exists", func(t *testing.T) {
		events := []types.Event{slotSet(0, "other", 1)}
		assertions := []types.Assertion{{Kind: types.AssertSlotWasNotSet, SlotName: "x"}}

		results := Evaluate(assertions, events, false)
		require.Len(t, results, 1)
		assert.True(t, results[0].Passed())
		assert.Equal(t, -1, results[0].MatchedPosition)
	})

	t.Run("fails with unexpected_slot_set when the slot was set", func(t *testing.T) {
		events := []types.Event{slotSet(0, "x", "a")}
		assertions := []types.Assertion{{Kind: types.AssertSlotWasNotSet, SlotName: "x"}}

		results := Evaluate(assertions, events, false)
		require.Len(t, results, 1)
		assert.False(t, results[0].Passed())
		assert.Equal(t, types.FailureUnexpectedSlotSet, results[0].Reason)
	})

	t.Run("ignores occurrences consumed by earlier assertions", func(t *testing.T) {
		events := []types.Event{slotSet(0, "x", "a")}
		assertions := []types.Assertion{
			assertSlotWasSet("x", "a"),
			{Kind: types.AssertSlotWasNotSet, SlotName: "x"},
		}

		results := Evaluate(assertions, events, false)
		require.Len(t, results, 2)
		assert.True(t, results[0].Passed())
		assert.True(t, results[1].Passed(), "consumed occurrence is not part of the remaining stream")
	})

	t.Run("does not consume anything", func(t *testing.T) {
		events := []types.Event{slotSet(0, "x", "a")}
		assertions := []types.Assertion{
			{Kind: types.AssertSlotWasNotSet, SlotName: "y"},
			assertSlotWasSet("x", "a"),
		}

		results := Evaluate(assertions, events, false)
		require.Len(t, results, 2)
		assert.True(t, results[0].Passed())
		assert.True(t, results[1].Passed())
	})
}

func TestEvaluate_SlotValueSemantics(t *testing.T) {
	t.Run("numeric values compare across yaml and json decodings", func(t *testing.T) {
		events := []types.Event{slotSet(0, "amount", float64(50))}
		assertions := []types.Assertion{assertSlotWasSet("amount", 50)}

		results := Evaluate(assertions, events, false)
		require.Len(t, results, 1)
		assert.True(t, results[0].Passed())
	})

	t.Run("nil expected value matches only a reset slot", func(t *testing.T) {
		events := []types.Event{
			slotSet(0, "x", "a"),
			slotSet(1, "x", nil),
		}
		assertions := []types.Assertion{assertSlotWasSet("x", nil)}

		results := Evaluate(assertions, events, false)
		require.Len(t, results, 1)
		require.True(t, results[0].Passed())
		assert.Equal(t, 1, results[0].MatchedPosition)
	})

	t.Run("assertion without value matches any occurrence", func(t *testing.T) {
		events := []types.Event{slotSet(0, "x", "whatever")}
		assertions := []types.Assertion{{Kind: types.AssertSlotWasSet, SlotName: "x"}}

		results := Evaluate(assertions, events, false)
		require.Len(t, results, 1)
		assert.True(t, results[0].Passed())
	})
}

func TestEvaluate_FlowLifecycle(t *testing.T) {
	events := []types.Event{
		{Kind: types.EventFlowStarted, Position: 0, FlowID: "transfer"},
		{Kind: types.EventFlowCancelled, Position: 1, FlowID: "weather"},
		{Kind: types.EventFlowCompleted, Position: 2, FlowID: "transfer"},
	}
	assertions := []types.Assertion{
		{Kind: types.AssertFlowStarted, FlowID: "transfer"},
		{Kind: types.AssertFlowCancelled, FlowID: "weather"},
		{Kind: types.AssertFlowCompleted, FlowID: "transfer"},
	}

	results := Evaluate(assertions, events, true)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.True(t, res.Passed(), "assertion %d", i)
		assert.Equal(t, i, res.MatchedPosition)
	}
}

func TestEvaluate_BotUtterances(t *testing.T) {
	events := []types.Event{
		{Kind: types.EventBotUttered, Position: 0, Text: "How much would you like to transfer?", ResponseName: "utter_ask_amount"},
		{Kind: types.EventBotUttered, Position: 1, Text: "Anything else?", Buttons: []types.Button{
			{Title: "Yes", Payload: "/affirm"},
			{Title: "No", Payload: "/deny"},
		}},
	}

	t.Run("text match and response name hit distinct occurrences", func(t *testing.T) {
		assertions := []types.Assertion{
			{Kind: types.AssertBotUtteredResponseIs, ResponseName: "utter_ask_amount"},
			assertTextMatches(t, "Anything else"),
		}
		results := Evaluate(assertions, events, true)
		require.Len(t, results, 2)
		assert.True(t, results[0].Passed())
		assert.True(t, results[1].Passed())
	})

	t.Run("buttons equality", func(t *testing.T) {
		assertions := []types.Assertion{{
			Kind: types.AssertButtonsRendered,
			Buttons: []types.Button{
				{Title: "Yes", Payload: "/affirm"},
				{Title: "No", Payload: "/deny"},
			},
		}}
		results := Evaluate(assertions, events, false)
		require.Len(t, results, 1)
		assert.True(t, results[0].Passed())
		assert.Equal(t, 1, results[0].MatchedPosition)
	})

	t.Run("buttons subset", func(t *testing.T) {
		assertions := []types.Assertion{{
			Kind:          types.AssertButtonsRendered,
			Buttons:       []types.Button{{Title: "No", Payload: "/deny"}},
			ButtonsSubset: true,
		}}
		results := Evaluate(assertions, events, false)
		require.Len(t, results, 1)
		assert.True(t, results[0].Passed())
	})

	t.Run("buttons mismatch fails with no_matching_event", func(t *testing.T) {
		assertions := []types.Assertion{{
			Kind:    types.AssertButtonsRendered,
			Buttons: []types.Button{{Title: "Maybe", Payload: "/maybe"}},
		}}
		results := Evaluate(assertions, events, false)
		require.Len(t, results, 1)
		assert.Equal(t, types.FailureNoMatch, results[0].Reason)
	})
}

func TestEvaluate_PatternClarification(t *testing.T) {
	events := []types.Event{{
		Kind:           types.EventPatternTriggered,
		Position:       0,
		Pattern:        types.PatternClarification,
		CandidateFlows: []string{"transfer_money", "check_balance"},
	}}

	t.Run("unscoped", func(t *testing.T) {
		results := Evaluate([]types.Assertion{{Kind: types.AssertPatternClarificationTriggered}}, events, false)
		require.Len(t, results, 1)
		assert.True(t, results[0].Passed())
	})

	t.Run("scoped to contained flows", func(t *testing.T) {
		results := Evaluate([]types.Assertion{{
			Kind:           types.AssertPatternClarificationTriggered,
			CandidateFlows: []string{"check_balance"},
		}}, events, false)
		require.Len(t, results, 1)
		assert.True(t, results[0].Passed())
	})

	t.Run("scoped to a missing flow fails", func(t *testing.T) {
		results := Evaluate([]types.Assertion{{
			Kind:           types.AssertPatternClarificationTriggered,
			CandidateFlows: []string{"book_flight"},
		}}, events, false)
		require.Len(t, results, 1)
		assert.Equal(t, types.FailureNoMatch, results[0].Reason)
	})
}

func TestEvaluate_AlwaysReturnsFullVerdictSlice(t *testing.T) {
	// A failing assertion never truncates the verdicts for the turn.
	events := []types.Event{slotSet(0, "x", "a")}
	assertions := []types.Assertion{
		assertSlotWasSet("y", "nope"),
		assertSlotWasSet("x", "a"),
		assertTextMatches(t, "anything"),
	}

	results := Evaluate(assertions, events, true)
	require.Len(t, results, 3)
	assert.False(t, results[0].Passed())
	assert.True(t, results[1].Passed())
	assert.False(t, results[2].Passed())
}

func TestEvaluate_DoesNotMutateEvents(t *testing.T) {
	events := []types.Event{slotSet(0, "x", "a"), slotSet(1, "x", "b")}
	original := make([]types.Event, len(events))
	copy(original, events)

	Evaluate([]types.Assertion{assertSlotWasSet("x", "a")}, events, true)

	assert.Equal(t, original, events, "event log must stay replayable after evaluation")
}
