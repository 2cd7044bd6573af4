// Package driver dispatches test-case turns to a running assistant and
// materializes each turn's event stream for evaluation.
package driver

import (
	"context"

	"github.com/flowcheck/flowcheck/coverage"
	"github.com/flowcheck/flowcheck/types"
)

// ExercisedStep identifies one flow step the assistant executed during a
// turn, for coverage accounting.
type ExercisedStep struct {
	FlowID string             `json:"flow_id"`
	Lines  coverage.LineRange `json:"-"`
}

// TurnOutcome is everything the assistant produced for one user turn. The
// event stream is fully materialized: the evaluator never sees a partial
// turn.
type TurnOutcome struct {
	Events         []types.Event
	ExercisedSteps []ExercisedStep
}

// StubResolver answers mid-turn custom-action calls. A session must respond
// before the assistant can resume producing events for the turn.
type StubResolver interface {
	Resolve(testCaseID, actionName string) (types.StubResult, bool)
}

// SessionSpec describes one conversation session to open.
type SessionSpec struct {
	// CaseID scopes stub resolution and names the session.
	CaseID string
	// Fixtures are slot presets applied before the first turn.
	Fixtures map[string]any
	// Stubs resolves pending custom actions; nil means every action call is
	// reported as not stubbed and runs for real.
	Stubs StubResolver
}

// Driver opens conversation sessions against a running assistant.
type Driver interface {
	StartSession(ctx context.Context, spec SessionSpec) (Session, error)
}

// Session is one conversation. Turns must be dispatched strictly in order;
// later turns depend on earlier stubs and slots having been applied.
type Session interface {
	// SendMessage submits one user input and blocks until the turn's event
	// stream is complete.
	SendMessage(ctx context.Context, text string) (*TurnOutcome, error)
	Close() error
}
