package types

import "time"

// FailureReason classifies why an assertion failed, so reports can
// distinguish "wrong" from "right but late".
type FailureReason string

const (
	FailureNone              FailureReason = ""
	FailureNoMatch           FailureReason = "no_matching_event"
	FailureAlreadyConsumed   FailureReason = "event_already_consumed"
	FailureOrderViolation    FailureReason = "event_out_of_order"
	FailureUnexpectedSlotSet FailureReason = "unexpected_slot_set"
)

// AssertionResult is the verdict for a single assertion within a turn.
type AssertionResult struct {
	Assertion Assertion
	Status    TestStatus
	Reason    FailureReason
	Message   string
	// MatchedPosition is the sequence position of the event the assertion
	// consumed, or -1 when nothing was consumed (failures and the
	// non-consuming slot_was_not_set kind).
	MatchedPosition int
}

// Passed reports whether the assertion held.
func (r AssertionResult) Passed() bool {
	return r.Status == TestStatusPass
}

// TurnResult captures the outcome of one user turn: the full event stream it
// produced and the verdict for every declared assertion.
type TurnResult struct {
	Index      int
	User       string
	Status     TestStatus
	Assertions []AssertionResult
	Events     []Event
}

// TestResult captures the outcome of a single test case run
type TestResult struct {
	ID       string
	File     string
	Status   TestStatus
	Error    error
	Duration time.Duration
	Turns    []TurnResult
}

// FailedAssertions returns the failing assertion verdicts across all turns.
func (tr *TestResult) FailedAssertions() []AssertionResult {
	var failed []AssertionResult
	for _, turn := range tr.Turns {
		for _, ar := range turn.Assertions {
			if !ar.Passed() {
				failed = append(failed, ar)
			}
		}
	}
	return failed
}
