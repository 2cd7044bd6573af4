package driver

import (
	"context"
	"fmt"
	"sync"
)

// ScriptDriver replays pre-recorded turn outcomes instead of talking to a
// live assistant. It backs the runner's tests and offline replay of captured
// transcripts.
type ScriptDriver struct {
	mu      sync.Mutex
	scripts map[string][]TurnOutcome

	// Started records the session specs opened, in order, for inspection.
	Started []SessionSpec
}

// NewScriptDriver creates a driver that scripts each test case's turns.
func NewScriptDriver() *ScriptDriver {
	return &ScriptDriver{scripts: make(map[string][]TurnOutcome)}
}

// Script registers the turn outcomes to replay for a test case, one per user
// turn.
func (d *ScriptDriver) Script(caseID string, outcomes ...TurnOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[caseID] = outcomes
}

// StartSession opens a scripted session for spec.CaseID.
func (d *ScriptDriver) StartSession(ctx context.Context, spec SessionSpec) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	outcomes, ok := d.scripts[spec.CaseID]
	if !ok {
		return nil, fmt.Errorf("no script registered for test case %q", spec.CaseID)
	}
	d.Started = append(d.Started, spec)
	return &scriptSession{outcomes: outcomes}, nil
}

type scriptSession struct {
	mu       sync.Mutex
	outcomes []TurnOutcome
	next     int
}

func (s *scriptSession) SendMessage(ctx context.Context, text string) (*TurnOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.outcomes) {
		return nil, fmt.Errorf("script exhausted after %d turns", len(s.outcomes))
	}
	outcome := s.outcomes[s.next]
	s.next++
	return &outcome, nil
}

func (s *scriptSession) Close() error { return nil }
