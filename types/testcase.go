package types

// Turn is one user input of a test case together with the expectations
// declared against the assistant's reaction to it. Legacy bot/utter steps in
// a test file are folded into the preceding user turn's assertions at load
// time, so by the time a test case reaches the runner every turn is a user
// turn.
type Turn struct {
	User       string
	Assertions []Assertion
}

// TestCase is one scripted conversation to replay against the assistant.
type TestCase struct {
	ID   string
	File string

	Turns []Turn

	// OrderEnabled enforces that assertions within a turn match events in
	// non-decreasing stream order.
	OrderEnabled bool

	// Fixtures are slot presets applied to the session before the first turn.
	Fixtures map[string]any
}

// FullName returns the display identifier used in results and logs.
func (tc TestCase) FullName() string {
	if tc.File == "" {
		return tc.ID
	}
	return tc.File + "::" + tc.ID
}
