package types

// EventKind discriminates the behavioral records in a turn's event stream.
type EventKind string

const (
	EventFlowStarted      EventKind = "flow_started"
	EventFlowCompleted    EventKind = "flow_completed"
	EventFlowCancelled    EventKind = "flow_cancelled"
	EventSlotSet          EventKind = "slot_set"
	EventBotUttered       EventKind = "bot_uttered"
	EventPatternTriggered EventKind = "pattern_triggered"
)

// PatternClarification is the pattern name the assistant reports when it
// asks the user to disambiguate between candidate flows.
const PatternClarification = "pattern_clarification"

// Button is a quick-reply button attached to a bot utterance.
type Button struct {
	Title   string `json:"title" yaml:"title"`
	Payload string `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Event is a single behavioral record emitted by the assistant during one
// user turn. Events are immutable once recorded; consumption bookkeeping is
// kept outside the event (see harness) so the stream stays inspectable for
// failure diagnostics after evaluation.
type Event struct {
	Kind     EventKind `json:"kind"`
	Position int       `json:"position"` // sequence position within the turn, strictly increasing

	// Flow lifecycle and pattern events.
	FlowID         string   `json:"flow_id,omitempty"`
	Pattern        string   `json:"pattern,omitempty"`
	CandidateFlows []string `json:"candidate_flows,omitempty"`

	// Slot events.
	SlotName  string `json:"slot_name,omitempty"`
	SlotValue any    `json:"slot_value,omitempty"`

	// Bot utterances.
	Text         string   `json:"text,omitempty"`
	ResponseName string   `json:"response,omitempty"`
	Buttons      []Button `json:"buttons,omitempty"`
}
