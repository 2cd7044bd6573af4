package types

// StubResult is the canned payload returned instead of invoking a real
// custom action. The events and responses are forwarded to the conversation
// driver verbatim; their shape is owned by the assistant's action protocol,
// not by the evaluator.
type StubResult struct {
	Events    []map[string]any `yaml:"events" json:"events"`
	Responses []map[string]any `yaml:"responses" json:"responses"`
}
