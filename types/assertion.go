package types

import (
	"fmt"
	"regexp"
	"strings"
)

// AssertionKind discriminates the expectations a user turn can declare.
type AssertionKind string

const (
	AssertFlowStarted                   AssertionKind = "flow_started"
	AssertFlowCompleted                 AssertionKind = "flow_completed"
	AssertFlowCancelled                 AssertionKind = "flow_cancelled"
	AssertSlotWasSet                    AssertionKind = "slot_was_set"
	AssertSlotWasNotSet                 AssertionKind = "slot_was_not_set"
	AssertBotUtteredTextMatches         AssertionKind = "bot_uttered_text_matches"
	AssertBotUtteredResponseIs          AssertionKind = "bot_uttered_response_is"
	AssertButtonsRendered               AssertionKind = "buttons_rendered"
	AssertPatternClarificationTriggered AssertionKind = "pattern_clarification_triggered"
)

// Assertion is one declared expectation about the events produced during a
// turn. Only the fields relevant to the kind are populated.
type Assertion struct {
	Kind AssertionKind

	FlowID string

	SlotName string
	// SlotValue is only meaningful when HasSlotValue is true; a nil value
	// with HasSlotValue set asserts that the slot was reset to unset.
	SlotValue    any
	HasSlotValue bool

	TextPattern  *regexp.Regexp
	ResponseName string

	Buttons       []Button
	ButtonsSubset bool // expected buttons are a subset of the rendered ones

	CandidateFlows []string
}

// Describe renders the assertion for failure messages and transcripts.
func (a Assertion) Describe() string {
	switch a.Kind {
	case AssertFlowStarted:
		return fmt.Sprintf("flow %q started", a.FlowID)
	case AssertFlowCompleted:
		return fmt.Sprintf("flow %q completed", a.FlowID)
	case AssertFlowCancelled:
		return fmt.Sprintf("flow %q cancelled", a.FlowID)
	case AssertSlotWasSet:
		if a.HasSlotValue {
			return fmt.Sprintf("slot %q was set to %v", a.SlotName, a.SlotValue)
		}
		return fmt.Sprintf("slot %q was set", a.SlotName)
	case AssertSlotWasNotSet:
		return fmt.Sprintf("slot %q was not set", a.SlotName)
	case AssertBotUtteredTextMatches:
		return fmt.Sprintf("bot utterance matches %q", a.TextPattern)
	case AssertBotUtteredResponseIs:
		return fmt.Sprintf("bot uttered response %q", a.ResponseName)
	case AssertButtonsRendered:
		titles := make([]string, len(a.Buttons))
		for i, b := range a.Buttons {
			titles[i] = b.Title
		}
		return fmt.Sprintf("buttons rendered [%s]", strings.Join(titles, ", "))
	case AssertPatternClarificationTriggered:
		if len(a.CandidateFlows) > 0 {
			return fmt.Sprintf("clarification triggered for flows [%s]", strings.Join(a.CandidateFlows, ", "))
		}
		return "clarification triggered"
	}
	return string(a.Kind)
}
